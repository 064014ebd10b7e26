// ABOUTME: Filename-based document classification heuristics.
// ABOUTME: Best-effort only; the backend treats the result as a hint.

package upload

import "strings"

// DocumentType is the inferred classification sent with an upload.
type DocumentType string

const (
	DocTypeBioPage DocumentType = "passport_bio_page"
	DocTypePhoto   DocumentType = "passport_photo"
)

// Describe returns the human-readable name used in conversation turns.
func (d DocumentType) Describe() string {
	switch d {
	case DocTypePhoto:
		return "passport photo"
	default:
		return "passport bio page"
	}
}

// Classify infers a document type from the filename using case-insensitive
// substring matching. Unrecognized names default to the bio page, the common
// case for visa applications.
func Classify(filename string) DocumentType {
	name := strings.ToLower(filename)

	switch {
	case strings.Contains(name, "passport") && strings.Contains(name, "bio"):
		return DocTypeBioPage
	case strings.Contains(name, "passport") && (strings.Contains(name, "photo") || strings.Contains(name, "pic")):
		return DocTypePhoto
	case strings.Contains(name, "passport"):
		return DocTypeBioPage
	case strings.Contains(name, "photo") || strings.Contains(name, "pic"):
		return DocTypePhoto
	default:
		return DocTypeBioPage
	}
}
