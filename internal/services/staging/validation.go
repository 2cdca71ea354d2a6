package staging

import "fmt"

// MaxFilesPerSubmission is the backend's hard cap: one document per role,
// three roles (OM, RR, T12).
const MaxFilesPerSubmission = 3

// ValidationError represents a submission policy violation
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateFiles checks a staged file set against the submission policy.
// Rules are evaluated in a fixed order and the first failing rule wins,
// so callers get a deterministic reason when several rules apply:
//  1. at least one file
//  2. at most MaxFilesPerSubmission files
//  3. every file has a document type assigned
//  4. no two files share a document type
func ValidateFiles(files []StagedFile) error {
	if len(files) == 0 {
		return &ValidationError{"Files", "at least one file required"}
	}

	if len(files) > MaxFilesPerSubmission {
		return &ValidationError{"Files", fmt.Sprintf("too many files: maximum %d per submission", MaxFilesPerSubmission)}
	}

	for _, f := range files {
		if f.DocumentType == nil {
			return &ValidationError{"DocumentType", "unassigned document type(s)"}
		}
		if !f.DocumentType.IsValid() {
			return &ValidationError{"DocumentType", fmt.Sprintf("unknown document type: %s", *f.DocumentType)}
		}
	}

	seen := make(map[DocumentType]bool, len(files))
	for _, f := range files {
		if seen[*f.DocumentType] {
			return &ValidationError{"DocumentType", fmt.Sprintf("duplicate document type: %s", *f.DocumentType)}
		}
		seen[*f.DocumentType] = true
	}

	return nil
}
