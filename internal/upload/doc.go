// ABOUTME: Package documentation for the attachment upload orchestrator.
// ABOUTME: Describes validation, classification, and conversation sync.

// Package upload validates, classifies, and transmits user-supplied
// documents, then synchronizes the outcome back into the conversation: a
// confirmation turn on acceptance followed, after a short delay, by a
// synthetic notification turn sent to the agent so it can react to the new
// document. Exactly one upload may be in flight at a time.
package upload
