package staging

import "strings"

// DocumentType is the backend's document role for a staged file.
// Exactly one file per role is allowed in a submission.
type DocumentType string

const (
	DocOfferingMemo DocumentType = "OM"
	DocRentRoll     DocumentType = "RR"
	DocT12          DocumentType = "T12"
)

// IsValid reports whether the document type is one the backend accepts
func (d DocumentType) IsValid() bool {
	switch d {
	case DocOfferingMemo, DocRentRoll, DocT12:
		return true
	}
	return false
}

// StagedFile is a file the user selected but has not yet submitted.
// DocumentType stays nil until the user assigns a role; the validator,
// not the store, enforces role completeness and uniqueness so the UI can
// show conflicts before blocking submission.
type StagedFile struct {
	ID           string        `json:"id"`
	Filename     string        `json:"filename"`
	ContentType  string        `json:"content_type"`
	Size         int64         `json:"size"`
	Data         []byte        `json:"-"`
	DocumentType *DocumentType `json:"document_type"`
}

// IncomingFile is the frontend's shape for a file being added to staging
type IncomingFile struct {
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// FileKind maps a media type to the backend's file_type discriminator.
// The backend only distinguishes pdf from excel; everything else is sent
// through as "other" and rejected server-side.
func FileKind(contentType string) string {
	ct := strings.ToLower(contentType)
	switch {
	case strings.Contains(ct, "pdf"):
		return "pdf"
	case strings.Contains(ct, "spreadsheet"), strings.Contains(ct, "excel"), strings.Contains(ct, "ms-excel"):
		return "excel"
	case strings.Contains(ct, "csv"):
		return "excel"
	default:
		return "other"
	}
}
