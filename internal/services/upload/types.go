package upload

import "time"

// Submission phases, in order. A submission moves strictly forward and
// stops at completed or failed.
const (
	PhaseRequesting   = "requesting"
	PhaseTransferring = "transferring"
	PhaseConfirming   = "confirming"
	PhaseTracking     = "tracking"
	PhaseCompleted    = "completed"
	PhaseFailed       = "failed"
)

// FailureKind classifies why a submission failed so the UI can choose
// between "fix your files" and "try again later" messaging.
type FailureKind string

const (
	FailureValidation  FailureKind = "validation"
	FailureNegotiation FailureKind = "negotiation"
	FailureTransfer    FailureKind = "transfer"
	FailureConfirm     FailureKind = "confirm"
	FailureJobFailed   FailureKind = "job_failed"
	FailurePollTimeout FailureKind = "poll_timeout"
	FailureAuth        FailureKind = "auth"
)

// Backend job statuses returned by the status endpoint
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobSucceeded = "succeeded"
	JobFailed    = "failed"
)

// RequestedFile describes one staged file in the upload negotiation
type RequestedFile struct {
	DocumentType     string `json:"document_type"`
	FileType         string `json:"file_type"`
	OriginalFilename string `json:"original_filename"`
}

// RequestUploadInput is the body for POST /api/v1/upload/request-upload.
// DealID is empty for a brand-new deal; the backend allocates one.
type RequestUploadInput struct {
	DealID string          `json:"deal_id,omitempty"`
	Files  []RequestedFile `json:"files"`
}

// PresignedUploadInfo is the backend's per-file answer to a request:
// where to PUT the bytes and where they will live in storage.
type PresignedUploadInfo struct {
	DocumentType     string `json:"document_type"`
	FileType         string `json:"file_type"`
	OriginalFilename string `json:"original_filename"`
	UploadURL        string `json:"upload_url"`
	FilePath         string `json:"file_path"`
	UniqueFilename   string `json:"unique_filename"`
}

// RequestUploadOutput is the response to the upload negotiation
type RequestUploadOutput struct {
	DealID     string                `json:"deal_id"`
	UploadID   string                `json:"upload_id"`
	UploadInfo []PresignedUploadInfo `json:"upload_info"`
	Message    string                `json:"message"`
}

// ConfirmUploadInput is the body for POST /api/v1/upload/confirm
type ConfirmUploadInput struct {
	UploadID             string `json:"upload_id"`
	DealID               string `json:"deal_id"`
	UploadedSuccessfully bool   `json:"uploaded_successfully"`
}

// ConfirmUploadOutput is the response to the upload confirmation.
// ProcessingCompleted is true when the backend processed the documents
// inline and there is no job to track.
type ConfirmUploadOutput struct {
	ConfirmResult       string `json:"confirm_result"`
	JobID               string `json:"job_id"`
	DealID              string `json:"deal_id"`
	ProcessingCompleted bool   `json:"processing_completed"`
}

// JobStatusResponse is the backend's view of one extraction job
type JobStatusResponse struct {
	JobID      string  `json:"job_id"`
	DealID     string  `json:"deal_id"`
	Status     string  `json:"status"`
	Stage      string  `json:"stage"`
	Attempts   int     `json:"attempts"`
	CreatedAt  *string `json:"created_at,omitempty"`
	StartedAt  *string `json:"started_at,omitempty"`
	FinishedAt *string `json:"finished_at,omitempty"`
	ErrorText  string  `json:"error_text,omitempty"`
}

// Terminal reports whether the job has reached a final state
func (j *JobStatusResponse) Terminal() bool {
	return j.Status == JobSucceeded || j.Status == JobFailed
}

// SubmissionFailure records why a submission stopped. Filenames is set
// for transfer failures so the UI can name the files that did not land.
type SubmissionFailure struct {
	Kind      FailureKind `json:"kind"`
	Message   string      `json:"message"`
	Filenames []string    `json:"filenames,omitempty"`
}

// SubmissionProgress tracks one submission end to end
type SubmissionProgress struct {
	TaskID      string             `json:"task_id"`
	DealID      string             `json:"deal_id,omitempty"`
	UploadID    string             `json:"upload_id,omitempty"`
	JobID       string             `json:"job_id,omitempty"`
	Phase       string             `json:"phase"`
	Progress    int                `json:"progress"` // 0-100
	Stage       string             `json:"stage,omitempty"`
	Messages    []string           `json:"messages"`
	Failure     *SubmissionFailure `json:"failure,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	CompletedAt *time.Time         `json:"completed_at,omitempty"`
}
