package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2/pkg/runtime"
	"gorm.io/gorm"

	"dealdesk-desktop/internal/api"
	"dealdesk-desktop/internal/models"
	"dealdesk-desktop/internal/services/staging"
)

// Service orchestrates document submissions: negotiate presigned URLs,
// transfer file bytes to storage, confirm the upload, then track the
// extraction job until it settles. Each submission runs in its own
// goroutine and reports through the task store and wails events.
type Service struct {
	db        *gorm.DB
	ctx       context.Context
	client    *api.Client
	taskStore map[string]*SubmissionProgress
	cancels   map[string]context.CancelFunc
	taskMu    sync.RWMutex
	emit      func(event string, payload interface{})
}

// NewService creates a new upload service. The API client is attached
// later, once a session exists.
func NewService(db *gorm.DB, ctx context.Context) *Service {
	s := &Service{
		db:        db,
		ctx:       ctx,
		taskStore: make(map[string]*SubmissionProgress),
		cancels:   make(map[string]context.CancelFunc),
	}
	if ctx != nil {
		s.emit = func(event string, payload interface{}) {
			runtime.EventsEmit(ctx, event, payload)
		}
	}
	return s
}

// SetClient attaches the authenticated API client. Submissions started
// without one fail immediately with an auth failure.
func (s *Service) SetClient(client *api.Client) {
	s.taskMu.Lock()
	s.client = client
	s.taskMu.Unlock()
}

// StartSubmission validates the staged files and, if they pass, starts a
// background submission. DealID is empty for a new deal. Returns the task
// ID to poll or subscribe on.
func (s *Service) StartSubmission(dealID string, files []staging.StagedFile) (string, error) {
	if err := staging.ValidateFiles(files); err != nil {
		// Record the rejection as a settled task so every submission
		// attempt reads back as one discriminated outcome.
		taskID := uuid.New().String()
		now := time.Now()
		progress := &SubmissionProgress{
			TaskID:      taskID,
			DealID:      dealID,
			Phase:       PhaseFailed,
			Messages:    []string{err.Error()},
			Failure:     &SubmissionFailure{Kind: FailureValidation, Message: err.Error()},
			StartedAt:   now,
			CompletedAt: &now,
		}

		s.taskMu.Lock()
		s.taskStore[taskID] = progress
		s.taskMu.Unlock()

		s.persistTask(taskID)
		s.emitTaskEvent(taskID)
		return taskID, err
	}

	s.taskMu.RLock()
	client := s.client
	s.taskMu.RUnlock()
	if client == nil {
		return "", fmt.Errorf("not signed in")
	}

	taskID := uuid.New().String()
	progress := &SubmissionProgress{
		TaskID:    taskID,
		DealID:    dealID,
		Phase:     PhaseRequesting,
		Progress:  0,
		Messages:  []string{fmt.Sprintf("Submitting %d document(s)...", len(files))},
		StartedAt: time.Now(),
	}

	trackCtx, cancel := context.WithCancel(context.Background())

	s.taskMu.Lock()
	s.taskStore[taskID] = progress
	s.cancels[taskID] = cancel
	s.taskMu.Unlock()

	s.persistTask(taskID)
	s.emitTaskEvent(taskID)

	go s.performSubmission(trackCtx, taskID, dealID, client, files)

	return taskID, nil
}

// GetSubmissionProgress returns a snapshot of a submission's progress.
// Falls back to the persisted task row for submissions from a previous
// run. A copy is returned so callers never race the orchestrator.
func (s *Service) GetSubmissionProgress(taskID string) (*SubmissionProgress, error) {
	s.taskMu.RLock()
	progress, exists := s.taskStore[taskID]
	var snapshot SubmissionProgress
	if exists {
		snapshot = *progress
		snapshot.Messages = append([]string(nil), progress.Messages...)
	}
	s.taskMu.RUnlock()

	if exists {
		return &snapshot, nil
	}

	if s.db != nil {
		var row models.UploadTask
		if err := s.db.First(&row, "id = ?", taskID).Error; err == nil {
			return taskFromRow(&row), nil
		}
	}

	return nil, fmt.Errorf("task not found: %s", taskID)
}

// ListUnsettledTasks returns persisted tasks that were still mid-flight
// when the app last exited. The scheduler re-polls their jobs.
func (s *Service) ListUnsettledTasks() ([]models.UploadTask, error) {
	if s.db == nil {
		return nil, nil
	}

	var rows []models.UploadTask
	err := s.db.Where("phase = ?", PhaseTracking).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled tasks: %w", err)
	}
	return rows, nil
}

// CancelTracking stops watching a submission's extraction job. The job
// keeps running server-side; only the client-side polling stops.
func (s *Service) CancelTracking(taskID string) {
	s.taskMu.Lock()
	cancel, exists := s.cancels[taskID]
	s.taskMu.Unlock()

	if exists {
		cancel()
	}
}

// ResumeTracking re-attaches a poller to a persisted mid-flight task,
// typically after an app restart.
func (s *Service) ResumeTracking(taskID string) error {
	s.taskMu.RLock()
	client := s.client
	_, inMemory := s.taskStore[taskID]
	s.taskMu.RUnlock()

	if client == nil {
		return fmt.Errorf("not signed in")
	}
	if inMemory {
		return nil // still being tracked by this run
	}
	if s.db == nil {
		return fmt.Errorf("task not found: %s", taskID)
	}

	var row models.UploadTask
	if err := s.db.First(&row, "id = ?", taskID).Error; err != nil {
		return fmt.Errorf("task not found: %s", taskID)
	}
	if row.Phase != PhaseTracking || row.JobID == "" {
		return fmt.Errorf("task %s is not trackable (phase=%s)", taskID, row.Phase)
	}

	progress := taskFromRow(&row)
	trackCtx, cancel := context.WithCancel(context.Background())

	s.taskMu.Lock()
	s.taskStore[taskID] = progress
	s.cancels[taskID] = cancel
	s.taskMu.Unlock()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.failTask(taskID, FailureJobFailed, fmt.Sprintf("Panic while tracking: %v", r), nil)
			}
		}()
		s.trackJob(trackCtx, taskID, client, row.JobID)
	}()

	return nil
}

func (s *Service) performSubmission(ctx context.Context, taskID, dealID string, client *api.Client, files []staging.StagedFile) {
	defer func() {
		if r := recover(); r != nil {
			s.failTask(taskID, FailureJobFailed, fmt.Sprintf("Panic during submission: %v", r), nil)
		}
	}()

	// Phase 1: negotiate presigned upload URLs
	s.updateProgress(taskID, PhaseRequesting, 5, "Requesting upload URLs...")

	reqBody := RequestUploadInput{DealID: dealID}
	for _, f := range files {
		reqBody.Files = append(reqBody.Files, RequestedFile{
			DocumentType:     string(*f.DocumentType),
			FileType:         staging.FileKind(f.ContentType),
			OriginalFilename: f.Filename,
		})
	}

	resp, err := client.Post("api/v1/upload/request-upload", reqBody)
	if err != nil {
		s.failTask(taskID, FailureNegotiation, fmt.Sprintf("upload negotiation failed: %v", err), nil)
		return
	}
	if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
		s.failTask(taskID, FailureAuth, "upload negotiation failed: not authorized", nil)
		return
	}
	if !resp.IsSuccess() {
		s.failTask(taskID, FailureNegotiation, fmt.Sprintf("upload negotiation failed: HTTP %d", resp.StatusCode()), nil)
		return
	}

	var grant RequestUploadOutput
	if err := json.Unmarshal(resp.Body(), &grant); err != nil {
		s.failTask(taskID, FailureNegotiation, fmt.Sprintf("upload negotiation failed: %v", err), nil)
		return
	}

	// The grant must answer every requested file, in request order.
	// Anything else means client and backend disagree about the
	// submission and no bytes should move.
	if len(grant.UploadInfo) != len(files) {
		s.failTask(taskID, FailureNegotiation,
			fmt.Sprintf("upload negotiation failed: requested %d URLs, got %d", len(files), len(grant.UploadInfo)), nil)
		return
	}
	for i, info := range grant.UploadInfo {
		if info.DocumentType != string(*files[i].DocumentType) {
			s.failTask(taskID, FailureNegotiation,
				fmt.Sprintf("upload negotiation failed: slot %d is %s, expected %s", i, info.DocumentType, *files[i].DocumentType), nil)
			return
		}
	}

	s.taskMu.Lock()
	if p, exists := s.taskStore[taskID]; exists {
		p.DealID = grant.DealID
		p.UploadID = grant.UploadID
	}
	s.taskMu.Unlock()

	// Phase 2: transfer file bytes, one goroutine per file. Every
	// transfer settles before the outcome is judged; a fast failure
	// never abandons an in-flight sibling.
	s.updateProgress(taskID, PhaseTransferring, 20, fmt.Sprintf("Uploading %d file(s) to storage...", len(files)))

	transferErrs := make([]error, len(files))
	var wg sync.WaitGroup
	var doneMu sync.Mutex
	done := 0

	for i := range files {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			transferErrs[idx] = s.transferFile(client, grant.UploadInfo[idx], files[idx])

			doneMu.Lock()
			done++
			completed := done
			doneMu.Unlock()

			// 20..60 spread across file completions
			pct := 20 + (40*completed)/len(files)
			if transferErrs[idx] == nil {
				s.updateProgress(taskID, PhaseTransferring, pct, fmt.Sprintf("Uploaded %s", files[idx].Filename))
			} else {
				s.updateProgress(taskID, PhaseTransferring, pct, fmt.Sprintf("Upload failed for %s", files[idx].Filename))
			}
		}(i)
	}
	wg.Wait()

	var failedFiles []string
	for i, terr := range transferErrs {
		if terr != nil {
			failedFiles = append(failedFiles, files[i].Filename)
			log.Printf("Transfer failed for %s: %v", files[i].Filename, terr)
		}
	}
	if len(failedFiles) > 0 {
		s.failTask(taskID, FailureTransfer,
			fmt.Sprintf("%d of %d file(s) failed to upload", len(failedFiles), len(files)), failedFiles)
		return
	}

	// Phase 3: confirm the upload so the backend starts extraction
	s.updateProgress(taskID, PhaseConfirming, 65, "Confirming upload...")

	confirmBody := ConfirmUploadInput{
		UploadID:             grant.UploadID,
		DealID:               grant.DealID,
		UploadedSuccessfully: true,
	}

	resp, err = client.Post("api/v1/upload/confirm", confirmBody)
	if err != nil {
		s.failTask(taskID, FailureConfirm, fmt.Sprintf("upload confirmation failed: %v", err), nil)
		return
	}
	if !resp.IsSuccess() {
		s.failTask(taskID, FailureConfirm, fmt.Sprintf("upload confirmation failed: %s", backendMessage(resp)), nil)
		return
	}

	var confirm ConfirmUploadOutput
	if err := json.Unmarshal(resp.Body(), &confirm); err != nil {
		s.failTask(taskID, FailureConfirm, fmt.Sprintf("upload confirmation failed: %v", err), nil)
		return
	}

	if confirm.ProcessingCompleted {
		s.completeTask(taskID, "Documents processed")
		return
	}

	s.taskMu.Lock()
	if p, exists := s.taskStore[taskID]; exists {
		p.JobID = confirm.JobID
	}
	s.taskMu.Unlock()

	// Phase 4: track the extraction job
	s.trackJob(ctx, taskID, client, confirm.JobID)
}

func (s *Service) trackJob(ctx context.Context, taskID string, client *api.Client, jobID string) {
	s.updateProgress(taskID, PhaseTracking, 70, "Processing documents...")

	poller := NewPoller(client)
	poller.onStatus = func(attempt int, status *JobStatusResponse) {
		s.taskMu.Lock()
		if p, exists := s.taskStore[taskID]; exists && p.Stage != status.Stage && status.Stage != "" {
			p.Stage = status.Stage
			p.Messages = append(p.Messages, fmt.Sprintf("Processing: %s", status.Stage))
			// creep toward 95 while the job runs; completion sets 100
			if p.Progress < 95 {
				p.Progress += 5
			}
		}
		s.taskMu.Unlock()
		s.emitTaskEvent(taskID)
	}

	status, err := poller.Track(ctx, jobID)
	switch {
	case err == nil && status.Status == JobSucceeded:
		s.completeTask(taskID, "Documents processed")
	case err == nil:
		msg := status.ErrorText
		if msg == "" {
			msg = "document processing failed"
		}
		s.failTask(taskID, FailureJobFailed, msg, nil)
	case errors.Is(err, ErrPollTimeout):
		s.failTask(taskID, FailurePollTimeout,
			"document processing is taking longer than expected; check back later", nil)
	case ctx.Err() != nil:
		// Deliberate cancel: leave the task tracking, just note it.
		s.appendMessage(taskID, "Stopped watching; processing continues in the background")
	default:
		// Contact lost, not a backend-reported failure. The job may
		// still be running, so the result is unknown rather than failed.
		s.failTask(taskID, FailurePollTimeout,
			fmt.Sprintf("lost contact with the processing job; check back later: %v", err), nil)
	}
}

// backendMessage pulls the error text out of an API error response.
// The backend reports failures as {"detail": "..."}; fall back to the
// HTTP status when the body carries no usable text.
func backendMessage(resp *resty.Response) string {
	var body struct {
		Detail  string `json:"detail"`
		Message string `json:"message"`
	}
	if json.Unmarshal(resp.Body(), &body) == nil {
		if body.Detail != "" {
			return body.Detail
		}
		if body.Message != "" {
			return body.Message
		}
	}
	return fmt.Sprintf("HTTP %d", resp.StatusCode())
}

func (s *Service) transferFile(client *api.Client, info PresignedUploadInfo, file staging.StagedFile) error {
	contentType := file.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	resp, err := client.Transfer(info.UploadURL, file.Data, contentType)
	if err != nil {
		return fmt.Errorf("storage transfer failed: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("storage returned HTTP %d", resp.StatusCode())
	}
	return nil
}

func (s *Service) completeTask(taskID, message string) {
	now := time.Now()

	s.taskMu.Lock()
	if p, exists := s.taskStore[taskID]; exists {
		p.Phase = PhaseCompleted
		p.Progress = 100
		p.CompletedAt = &now
		p.Messages = append(p.Messages, message)
	}
	s.taskMu.Unlock()

	s.persistTask(taskID)
	s.emitTaskEvent(taskID)
}

func (s *Service) failTask(taskID string, kind FailureKind, message string, filenames []string) {
	now := time.Now()

	s.taskMu.Lock()
	if p, exists := s.taskStore[taskID]; exists {
		p.Phase = PhaseFailed
		p.CompletedAt = &now
		p.Failure = &SubmissionFailure{Kind: kind, Message: message, Filenames: filenames}
		p.Messages = append(p.Messages, message)
	}
	s.taskMu.Unlock()

	log.Printf("Submission %s failed (%s): %s", taskID, kind, message)
	s.persistTask(taskID)
	s.emitTaskEvent(taskID)
}

func (s *Service) updateProgress(taskID, phase string, progress int, message string) {
	s.taskMu.Lock()
	if p, exists := s.taskStore[taskID]; exists {
		p.Phase = phase
		if progress > p.Progress {
			p.Progress = progress
		}
		if message != "" {
			p.Messages = append(p.Messages, message)
		}
	}
	s.taskMu.Unlock()

	s.persistTask(taskID)
	s.emitTaskEvent(taskID)
}

func (s *Service) appendMessage(taskID, message string) {
	s.taskMu.Lock()
	if p, exists := s.taskStore[taskID]; exists {
		p.Messages = append(p.Messages, message)
	}
	s.taskMu.Unlock()

	s.emitTaskEvent(taskID)
}

// persistTask mirrors the in-memory progress to the task row so a
// submission survives an app restart.
func (s *Service) persistTask(taskID string) {
	if s.db == nil {
		return
	}

	s.taskMu.RLock()
	p, exists := s.taskStore[taskID]
	if !exists {
		s.taskMu.RUnlock()
		return
	}
	row := rowFromTask(p)
	s.taskMu.RUnlock()

	if err := s.db.Save(row).Error; err != nil {
		log.Printf("Failed to persist task %s: %v", taskID, err)
	}
}

func (s *Service) emitTaskEvent(taskID string) {
	if s.emit == nil {
		return
	}

	s.taskMu.RLock()
	p, exists := s.taskStore[taskID]
	if !exists {
		s.taskMu.RUnlock()
		return
	}
	payload := map[string]interface{}{
		"task_id":  p.TaskID,
		"deal_id":  p.DealID,
		"phase":    p.Phase,
		"progress": p.Progress,
		"messages": append([]string(nil), p.Messages...),
	}
	if len(p.Messages) > 0 {
		payload["message"] = p.Messages[len(p.Messages)-1]
	}
	if p.Stage != "" {
		payload["stage"] = p.Stage
	}
	if p.Failure != nil {
		payload["failure"] = p.Failure
	}
	s.taskMu.RUnlock()

	s.emit(fmt.Sprintf("upload:%s", taskID), payload)
}

func rowFromTask(p *SubmissionProgress) *models.UploadTask {
	messages, _ := json.Marshal(p.Messages)

	row := &models.UploadTask{
		ID:       p.TaskID,
		DealID:   p.DealID,
		UploadID: p.UploadID,
		JobID:    p.JobID,
		Phase:    p.Phase,
		Progress: p.Progress,
		Messages: string(messages),
	}
	if p.Failure != nil {
		failure, _ := json.Marshal(p.Failure)
		row.Failure = string(failure)
	}
	return row
}

func taskFromRow(row *models.UploadTask) *SubmissionProgress {
	p := &SubmissionProgress{
		TaskID:    row.ID,
		DealID:    row.DealID,
		UploadID:  row.UploadID,
		JobID:     row.JobID,
		Phase:     row.Phase,
		Progress:  row.Progress,
		StartedAt: row.CreatedAt,
	}
	if row.Messages != "" {
		_ = json.Unmarshal([]byte(row.Messages), &p.Messages)
	}
	if row.Failure != "" {
		p.Failure = &SubmissionFailure{}
		_ = json.Unmarshal([]byte(row.Failure), p.Failure)
	}
	if row.Phase == PhaseCompleted || row.Phase == PhaseFailed {
		completedAt := row.UpdatedAt
		p.CompletedAt = &completedAt
	}
	return p
}
