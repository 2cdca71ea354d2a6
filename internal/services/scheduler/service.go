package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"dealdesk-desktop/internal/models"
)

// UploadServiceInterface is the slice of the upload service the
// scheduler needs to resume orphaned tasks.
type UploadServiceInterface interface {
	ListUnsettledTasks() ([]models.UploadTask, error)
	ResumeTracking(taskID string) error
}

// VerificationServiceInterface is the slice of the verification service
// the scheduler needs to autosave dirty drafts.
type VerificationServiceInterface interface {
	HasUnsavedChanges() bool
	ActiveDealID() string
	Persist() error
}

// Service handles scheduled job management and execution
type Service struct {
	db           *gorm.DB
	ctx          context.Context
	cron         *cron.Cron
	jobs         map[string]cron.EntryID // jobID -> cron entry ID
	jobsMu       sync.RWMutex
	upload       UploadServiceInterface
	verification VerificationServiceInterface
}

// NewService creates a new scheduler service
func NewService(db *gorm.DB, ctx context.Context, upload UploadServiceInterface, verification VerificationServiceInterface) *Service {
	// Create cron scheduler with seconds support
	c := cron.New(cron.WithSeconds())

	return &Service{
		db:           db,
		ctx:          ctx,
		cron:         c,
		jobs:         make(map[string]cron.EntryID),
		upload:       upload,
		verification: verification,
	}
}

// Start initializes the scheduler and loads enabled jobs from database
func (s *Service) Start() error {
	log.Println("Starting scheduler...")

	if err := s.db.AutoMigrate(&ScheduledJob{}); err != nil {
		return fmt.Errorf("failed to migrate scheduled_jobs table: %w", err)
	}

	s.cron.Start()

	// Load all enabled jobs from database
	var jobs []ScheduledJob
	if err := s.db.Where("enabled = ?", true).Find(&jobs).Error; err != nil {
		return fmt.Errorf("failed to load scheduled jobs: %w", err)
	}

	for _, job := range jobs {
		if err := s.scheduleJob(&job); err != nil {
			log.Printf("WARNING: Failed to schedule job %s (%s): %v", job.Name, job.ID, err)
		} else {
			log.Printf("Scheduled job: %s (%s) with cron: %s", job.Name, job.ID, job.Cron)
		}
	}

	log.Printf("Scheduler started with %d enabled jobs", len(jobs))
	return nil
}

// Stop gracefully stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		log.Println("Scheduler stopped")
	}
}

// ListJobs retrieves all scheduled jobs
func (s *Service) ListJobs() ([]JobListResponse, error) {
	var jobs []ScheduledJob
	if err := s.db.Order("created_at DESC").Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	responses := make([]JobListResponse, len(jobs))
	for i, job := range jobs {
		responses[i] = s.toJobListResponse(&job)
	}

	return responses, nil
}

// UpsertJob creates or updates a scheduled job
func (s *Service) UpsertJob(req UpsertJobRequest) (string, error) {
	if req.Name == "" || req.JobType == "" || req.Cron == "" {
		return "", fmt.Errorf("name, job_type, and cron are required")
	}
	if req.JobType != "task_refresh" && req.JobType != "draft_autosave" {
		return "", fmt.Errorf("unknown job type: %s", req.JobType)
	}

	// Normalize and validate cron expression (convert 5-field to 6-field)
	normalizedCron, err := normalizeCron(req.Cron)
	if err != nil {
		return "", err
	}
	req.Cron = normalizedCron

	// Find or create job
	var job ScheduledJob
	result := s.db.Where("name = ?", req.Name).First(&job)

	if result.Error != nil {
		if result.Error == gorm.ErrRecordNotFound {
			job = ScheduledJob{
				ID:   uuid.New().String(),
				Name: req.Name,
			}
		} else {
			return "", fmt.Errorf("failed to query job: %w", result.Error)
		}
	}

	job.JobType = req.JobType
	job.Cron = req.Cron
	job.Timezone = req.Timezone
	if job.Timezone == "" {
		job.Timezone = "UTC"
	}
	job.Enabled = req.Enabled

	payloadStr := ""
	if req.Payload != nil {
		switch p := req.Payload.(type) {
		case string:
			payloadStr = p
		default:
			data, err := json.Marshal(p)
			if err != nil {
				return "", fmt.Errorf("failed to marshal payload: %w", err)
			}
			payloadStr = string(data)
		}
	}
	job.Payload = payloadStr

	// Calculate next run time (cron parser uses the 6-field format stored in DB)
	schedule, err := sixFieldParser().Parse(job.Cron)
	if err != nil {
		return "", fmt.Errorf("failed to parse cron for next run: %w", err)
	}
	nextRun := schedule.Next(time.Now())
	job.NextRunAt = &nextRun

	if result.Error == gorm.ErrRecordNotFound {
		if err := s.db.Create(&job).Error; err != nil {
			return "", fmt.Errorf("failed to create job: %w", err)
		}
	} else {
		if err := s.db.Save(&job).Error; err != nil {
			return "", fmt.Errorf("failed to update job: %w", err)
		}
	}

	if err := s.rescheduleJob(job.ID); err != nil {
		return "", fmt.Errorf("failed to reschedule job: %w", err)
	}

	return job.ID, nil
}

// DeleteJob removes a scheduled job
func (s *Service) DeleteJob(jobID string) error {
	s.jobsMu.Lock()
	if entryID, exists := s.jobs[jobID]; exists {
		s.cron.Remove(entryID)
		delete(s.jobs, jobID)
	}
	s.jobsMu.Unlock()

	if err := s.db.Delete(&ScheduledJob{}, "id = ?", jobID).Error; err != nil {
		return fmt.Errorf("failed to delete job: %w", err)
	}

	return nil
}

// scheduleJob adds a job to the cron scheduler
func (s *Service) scheduleJob(job *ScheduledJob) error {
	if !job.Enabled {
		return nil
	}

	s.jobsMu.Lock()
	if entryID, exists := s.jobs[job.ID]; exists {
		s.cron.Remove(entryID)
	}
	s.jobsMu.Unlock()

	entryID, err := s.cron.AddFunc(job.Cron, func() {
		s.executeJob(job.ID)
	})

	if err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}

	s.jobsMu.Lock()
	s.jobs[job.ID] = entryID
	s.jobsMu.Unlock()

	return nil
}

// rescheduleJob reloads a job from database and reschedules it
func (s *Service) rescheduleJob(jobID string) error {
	var job ScheduledJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			// Job was deleted, remove from cron
			s.jobsMu.Lock()
			if entryID, exists := s.jobs[jobID]; exists {
				s.cron.Remove(entryID)
				delete(s.jobs, jobID)
			}
			s.jobsMu.Unlock()
			return nil
		}
		return fmt.Errorf("failed to load job: %w", err)
	}

	return s.scheduleJob(&job)
}

// executeJob runs a scheduled job
func (s *Service) executeJob(jobID string) {
	log.Printf("Executing scheduled job: %s", jobID)

	var job ScheduledJob
	if err := s.db.First(&job, "id = ?", jobID).Error; err != nil {
		log.Printf("ERROR: Failed to load job %s: %v", jobID, err)
		return
	}

	now := time.Now()
	job.LastRunAt = &now

	schedule, err := sixFieldParser().Parse(job.Cron)
	if err != nil {
		log.Printf("WARNING: Failed to parse cron for next run: %v", err)
	} else {
		nextRun := schedule.Next(now)
		job.NextRunAt = &nextRun
	}

	if err := s.db.Save(&job).Error; err != nil {
		log.Printf("WARNING: Failed to update job run times: %v", err)
	}

	switch job.JobType {
	case "task_refresh":
		s.runTaskRefreshJob()
	case "draft_autosave":
		s.runDraftAutosaveJob()
	default:
		log.Printf("WARNING: Unknown job type: %s", job.JobType)
	}

	log.Printf("Completed scheduled job: %s", jobID)
}

// runTaskRefreshJob re-attaches pollers to submissions that were still
// tracking when the app last exited, so their outcomes are not lost.
func (s *Service) runTaskRefreshJob() {
	if s.upload == nil {
		return
	}

	tasks, err := s.upload.ListUnsettledTasks()
	if err != nil {
		log.Printf("ERROR: Failed to list unsettled tasks: %v", err)
		return
	}
	if len(tasks) == 0 {
		return
	}

	log.Printf("Resuming %d unsettled upload task(s)", len(tasks))
	for _, task := range tasks {
		if err := s.upload.ResumeTracking(task.ID); err != nil {
			log.Printf("WARNING: Failed to resume task %s: %v", task.ID, err)
		}
	}
}

// runDraftAutosaveJob persists the verification store when it has
// unsaved edits, so a crash loses at most one autosave interval.
func (s *Service) runDraftAutosaveJob() {
	if s.verification == nil {
		return
	}

	if !s.verification.HasUnsavedChanges() || s.verification.ActiveDealID() == "" {
		return
	}

	if err := s.verification.Persist(); err != nil {
		log.Printf("WARNING: Draft autosave failed: %v", err)
		return
	}
	log.Printf("Autosaved draft for deal %s", s.verification.ActiveDealID())
}

func sixFieldParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// normalizeCron converts 5-field cron to 6-field format by prepending seconds
// 5-field: "minute hour day month dow" (standard cron)
// 6-field: "second minute hour day month dow" (robfig/cron with WithSeconds)
func normalizeCron(cronExpr string) (string, error) {
	cronExpr = strings.TrimSpace(cronExpr)

	fields := strings.Fields(cronExpr)
	if len(fields) == 6 {
		if _, err := sixFieldParser().Parse(cronExpr); err == nil {
			return cronExpr, nil
		}
	}

	if len(fields) == 5 {
		if _, err := cron.ParseStandard(cronExpr); err != nil {
			return "", fmt.Errorf("invalid 5-field cron expression: %w", err)
		}
		// Prepend seconds (0 = run at 0 seconds of the minute)
		return "0 " + cronExpr, nil
	}

	return "", fmt.Errorf("invalid cron expression: expected 5 or 6 fields, got %d", len(fields))
}

func (s *Service) toJobListResponse(job *ScheduledJob) JobListResponse {
	resp := JobListResponse{
		ID:        job.ID,
		Name:      job.Name,
		JobType:   job.JobType,
		Cron:      job.Cron,
		Timezone:  job.Timezone,
		Enabled:   job.Enabled,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
		UpdatedAt: job.UpdatedAt.Format(time.RFC3339),
	}

	if job.LastRunAt != nil {
		lastRun := job.LastRunAt.Format(time.RFC3339)
		resp.LastRunAt = &lastRun
	}

	if job.NextRunAt != nil {
		nextRun := job.NextRunAt.Format(time.RFC3339)
		resp.NextRun = &nextRun
	}

	return resp
}
