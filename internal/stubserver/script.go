// ABOUTME: Canned assistant replies for the stub backend
// ABOUTME: Keyword matching picks a reply; chunking simulates token streaming

package stubserver

import (
	"fmt"
	"strings"
)

// Reply picks a canned assistant response for the given user message.
// Keyword matches produce domain-flavored answers so the terminal client has
// something realistic to render; anything else is echoed back.
func Reply(input string) string {
	lower := strings.ToLower(input)

	switch {
	case strings.Contains(lower, "uploaded my passport bio page"):
		return "Thanks! I've received your **passport bio page**. I'll extract your details from it.\n\nNext, please upload a recent *passport photo*."
	case strings.Contains(lower, "uploaded my passport photo"):
		return "Got your **passport photo**. Your documents are complete for now."
	case strings.Contains(lower, "visa"):
		return "I can help with that visa application. To get started I'll need:\n\n- your **passport bio page**\n- a recent *passport photo*\n- your travel dates\n\nYou can upload documents at any time."
	case strings.Contains(lower, "document"):
		return "For most applications you'll need:\n\n1. passport bio page\n2. passport-size photo\n3. proof of funds\n\n> Requirements vary by country and visa type."
	case strings.Contains(lower, "markdown") || strings.Contains(lower, "list"):
		return "Here is a **markdown** response:\n\n- First item\n- Second item with `code`\n- Third item\n\n> This is a blockquote."
	}

	return fmt.Sprintf("Echo: **%s**\n\nI received your message and am responding with some *formatted* text.", input)
}

// chunkReply splits a reply into small fragments so the client sees
// incremental accumulation instead of one large frame. Boundaries fall
// mid-word on purpose.
func chunkReply(reply string, size int) []string {
	if size <= 0 {
		size = 8
	}
	runes := []rune(reply)
	var chunks []string
	for len(runes) > 0 {
		n := size
		if n > len(runes) {
			n = len(runes)
		}
		chunks = append(chunks, string(runes[:n]))
		runes = runes[n:]
	}
	return chunks
}
