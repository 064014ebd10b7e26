// Package markdown renders assistant markdown replies for terminal display.
package markdown
