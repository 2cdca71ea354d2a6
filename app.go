package main

import (
	"context"
	"fmt"
	"log"

	"gorm.io/gorm"

	"dealdesk-desktop/internal/api"
	"dealdesk-desktop/internal/crypto"
	"dealdesk-desktop/internal/database"
	"dealdesk-desktop/internal/services/scheduler"
	"dealdesk-desktop/internal/services/session"
	"dealdesk-desktop/internal/services/staging"
	"dealdesk-desktop/internal/services/upload"
	"dealdesk-desktop/internal/services/verification"
	"dealdesk-desktop/internal/services/wizard"
)

// App struct - main application state
type App struct {
	ctx context.Context
	db  *gorm.DB

	sessionService      *session.Service
	stagingStore        *staging.Store
	uploadService       *upload.Service
	verificationService *verification.Service
	wizardService       *wizard.Service
	schedulerService    *scheduler.Service
}

// NewApp creates a new App application struct
func NewApp() *App {
	return &App{}
}

// startup is called when the app starts. The context is saved
// so we can call the runtime methods
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	log.Println("Application starting up...")

	// Initialize encryption (FATAL if this fails - sessions cannot be
	// stored without it)
	if err := crypto.InitEncryption(); err != nil {
		log.Fatalf("FATAL: Encryption initialization failed: %v\nSessions cannot be stored without encryption.", err)
	}

	db, err := database.Init()
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	a.db = db

	a.sessionService = session.NewService(db, ctx)
	a.stagingStore = staging.NewStore(ctx)
	a.uploadService = upload.NewService(db, ctx)
	a.verificationService = verification.NewService(db, ctx)
	a.wizardService = wizard.NewService(ctx)

	// Hand the authenticated client to the services that talk to the
	// backend, whenever a session is established or restored.
	a.sessionService.OnLogin(func(client *api.Client) {
		a.uploadService.SetClient(client)
		a.verificationService.SetClient(client)
	})

	a.schedulerService = scheduler.NewService(db, ctx, a.uploadService, a.verificationService)
	if err := a.schedulerService.Start(); err != nil {
		log.Printf("WARNING: Failed to start scheduler: %v", err)
	}
	a.seedDefaultJobs()

	// Pick up where the last run left off, if a session survives.
	if _, err := a.sessionService.Restore(); err != nil {
		log.Printf("No session to restore: %v", err)
	}

	log.Println("Startup complete")
}

// shutdown is called when the app is closing
func (a *App) shutdown(ctx context.Context) {
	log.Println("Application shutting down...")

	if a.schedulerService != nil {
		a.schedulerService.Stop()
	}

	if err := database.Close(); err != nil {
		log.Printf("Error closing database: %v", err)
	}

	log.Println("Shutdown complete")
}

// seedDefaultJobs makes sure the background upkeep jobs exist. Upsert
// keys on name, so user-tuned schedules survive.
func (a *App) seedDefaultJobs() {
	defaults := []scheduler.UpsertJobRequest{
		{Name: "task-refresh", JobType: "task_refresh", Cron: "*/2 * * * *", Enabled: true},
		{Name: "draft-autosave", JobType: "draft_autosave", Cron: "*/1 * * * *", Enabled: true},
	}

	for _, req := range defaults {
		jobs, err := a.schedulerService.ListJobs()
		if err != nil {
			log.Printf("WARNING: Could not list scheduled jobs: %v", err)
			return
		}
		exists := false
		for _, job := range jobs {
			if job.Name == req.Name {
				exists = true
				break
			}
		}
		if !exists {
			if _, err := a.schedulerService.UpsertJob(req); err != nil {
				log.Printf("WARNING: Failed to seed job %s: %v", req.Name, err)
			}
		}
	}
}

// ====================================================================================
// WAILS-BOUND METHODS - Exposed to Frontend
// ====================================================================================

// Session Methods

// Login signs the user in with email and password
func (a *App) Login(email, password string) (*session.UserInfo, error) {
	return a.sessionService.Login(email, password)
}

// Logout drops the current session
func (a *App) Logout() error {
	return a.sessionService.Logout()
}

// CurrentUser returns the signed-in identity
func (a *App) CurrentUser() (*session.UserInfo, error) {
	return a.sessionService.CurrentUser()
}

// IsAuthenticated reports whether a session is active
func (a *App) IsAuthenticated() bool {
	return a.sessionService.IsAuthenticated()
}

// Ping checks that the backend is reachable with the current session
func (a *App) Ping() error {
	client, err := a.sessionService.Client()
	if err != nil {
		return err
	}

	resp, err := client.Get("health", nil)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	if resp.StatusCode() != 200 {
		return fmt.Errorf("backend health check failed with status %d", resp.StatusCode())
	}
	return nil
}

// Staging Methods

// AddFiles stages files for submission and returns their IDs
func (a *App) AddFiles(files []staging.IncomingFile) []string {
	return a.stagingStore.AddFiles(files)
}

// RemoveStagedFile removes one staged file
func (a *App) RemoveStagedFile(id string) {
	a.stagingStore.RemoveFile(id)
}

// SetDocumentType assigns a document role to a staged file. An empty
// docType clears the assignment.
func (a *App) SetDocumentType(id string, docType string) error {
	if docType == "" {
		a.stagingStore.SetDocumentType(id, nil)
		return nil
	}

	dt := staging.DocumentType(docType)
	if !dt.IsValid() {
		return &staging.ValidationError{Field: "DocumentType", Message: "unknown document type: " + docType}
	}
	a.stagingStore.SetDocumentType(id, &dt)
	return nil
}

// ClearStaging resets the staged file set
func (a *App) ClearStaging() {
	a.stagingStore.Clear()
}

// ListStagedFiles returns the currently staged files
func (a *App) ListStagedFiles() []staging.StagedFile {
	return a.stagingStore.Files()
}

// StagingError returns the last staging validation error, if any
func (a *App) StagingError() string {
	return a.stagingStore.Err()
}

// Upload Methods

// SubmitDocuments validates the staged files and starts a submission.
// On a validation failure the reason is recorded on the staging store
// and as a settled failed task; no network phase runs. On success
// staging is cleared (the submission holds its own copies) and the
// task ID is returned.
func (a *App) SubmitDocuments(dealID string) (string, error) {
	files := a.stagingStore.Files()

	taskID, err := a.uploadService.StartSubmission(dealID, files)
	if err != nil {
		a.stagingStore.SetErr(err.Error())
		return taskID, err
	}

	a.stagingStore.Clear()
	return taskID, nil
}

// GetSubmissionProgress returns the progress of a submission
func (a *App) GetSubmissionProgress(taskID string) (*upload.SubmissionProgress, error) {
	return a.uploadService.GetSubmissionProgress(taskID)
}

// CancelTracking stops watching a submission's processing job
func (a *App) CancelTracking(taskID string) {
	a.uploadService.CancelTracking(taskID)
}

// ResumeTracking re-attaches a poller to a persisted mid-flight task
func (a *App) ResumeTracking(taskID string) error {
	return a.uploadService.ResumeTracking(taskID)
}

// Verification Methods

// LoadDraft loads a deal's draft into the verification store
func (a *App) LoadDraft(dealID string) (*verification.VerificationState, error) {
	return a.verificationService.LoadDraft(dealID)
}

// UpdatePropertyDetails merges edited property fields into the store
func (a *App) UpdatePropertyDetails(patch verification.PropertyDetailsPatch) {
	a.verificationService.UpdatePropertyDetails(patch)
}

// UpdateRentRollData replaces the rent roll wholesale
func (a *App) UpdateRentRollData(rows []verification.RentRollRow) {
	a.verificationService.UpdateRentRollData(rows)
}

// UpdateT12Data replaces the T-12 line items wholesale
func (a *App) UpdateT12Data(rows []verification.T12Row) {
	a.verificationService.UpdateT12Data(rows)
}

// GetVerificationState returns the merged verification state
func (a *App) GetVerificationState() *verification.VerificationState {
	return a.verificationService.State()
}

// HasUnsavedChanges reports whether verification edits are unpersisted
func (a *App) HasUnsavedChanges() bool {
	return a.verificationService.HasUnsavedChanges()
}

// HasRentRollData reports whether the loaded deal carries rent roll rows
func (a *App) HasRentRollData() bool {
	return a.verificationService.HasRentRollData()
}

// HasT12Data reports whether the loaded deal carries T-12 line items
func (a *App) HasT12Data() bool {
	return a.verificationService.HasT12Data()
}

// PersistDeal flushes verification edits to the backend
func (a *App) PersistDeal() error {
	return a.verificationService.Persist()
}

// UpdateDealStatus moves a deal through the pipeline
func (a *App) UpdateDealStatus(dealID, status string) error {
	return a.verificationService.UpdateDealStatus(dealID, status)
}

// ListDeals returns the user's deal pipeline
func (a *App) ListDeals() ([]verification.DealSummary, error) {
	return a.verificationService.ListDeals()
}

// GetDocumentURLs returns the signed source-document URLs for the
// loaded deal
func (a *App) GetDocumentURLs() verification.DocumentURLs {
	return a.verificationService.DocumentURLs()
}

// Wizard Methods

// ApplyRoute updates the wizard state for the frontend's route
func (a *App) ApplyRoute(route string) wizard.UIState {
	return a.wizardService.ApplyRoute(route)
}

// GetWizardState returns the current wizard UI state
func (a *App) GetWizardState() wizard.UIState {
	return a.wizardService.State()
}

// GetStepStatuses returns each wizard step's completion status
func (a *App) GetStepStatuses() map[string]string {
	return a.wizardService.StepStatuses()
}

// Scheduler Methods

// ListScheduledJobs returns all scheduled background jobs
func (a *App) ListScheduledJobs() ([]scheduler.JobListResponse, error) {
	return a.schedulerService.ListJobs()
}

// UpsertScheduledJob creates or updates a scheduled job
func (a *App) UpsertScheduledJob(req scheduler.UpsertJobRequest) (string, error) {
	return a.schedulerService.UpsertJob(req)
}

// DeleteScheduledJob removes a scheduled job
func (a *App) DeleteScheduledJob(jobID string) error {
	return a.schedulerService.DeleteJob(jobID)
}
