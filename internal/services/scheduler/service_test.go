package scheduler

import (
	"context"
	"fmt"
	"testing"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealdesk-desktop/internal/models"
)

func TestNormalizeCron(t *testing.T) {
	t.Run("Should convert 5-field to 6-field cron", func(t *testing.T) {
		tests := []struct {
			name     string
			input    string
			expected string
		}{
			{
				name:     "Every minute",
				input:    "* * * * *",
				expected: "0 * * * * *",
			},
			{
				name:     "Autosave every minute",
				input:    "*/1 * * * *",
				expected: "0 */1 * * * *",
			},
			{
				name:     "Task refresh every 5 minutes",
				input:    "*/5 * * * *",
				expected: "0 */5 * * * *",
			},
			{
				name:     "Nightly at 2 AM",
				input:    "0 2 * * *",
				expected: "0 0 2 * * *",
			},
			{
				name:     "Weekdays at 9 AM",
				input:    "0 9 * * 1-5",
				expected: "0 0 9 * * 1-5",
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				result, err := normalizeCron(tt.input)
				require.NoError(t, err)
				assert.Equal(t, tt.expected, result)
			})
		}
	})

	t.Run("Should keep 6-field cron unchanged", func(t *testing.T) {
		tests := []string{
			"0 0 2 * * *",
			"0 */15 * * * *",
			"30 0 2 * * 1",
		}

		for _, input := range tests {
			t.Run(input, func(t *testing.T) {
				result, err := normalizeCron(input)
				require.NoError(t, err)
				assert.Equal(t, input, result)
			})
		}
	})

	t.Run("Should fail with invalid field count", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
		}{
			{"Too few fields (4)", "0 2 * *"},
			{"Too many fields (7)", "0 0 2 * * * 2025"},
			{"Empty string", ""},
			{"Single field", "*"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := normalizeCron(tt.input)
				assert.Error(t, err)
				assert.Contains(t, err.Error(), "invalid cron expression")
			})
		}
	})

	t.Run("Should handle cron with extra whitespace", func(t *testing.T) {
		input := "  0   2   *   *   *  "
		// Leading/trailing whitespace is trimmed, internal structure kept
		expected := "0 0   2   *   *   *"

		result, err := normalizeCron(input)
		require.NoError(t, err)
		assert.Equal(t, expected, result)
	})
}

type fakeUploadService struct {
	tasks      []models.UploadTask
	listErr    error
	resumed    []string
	resumeErrs map[string]error
}

func (f *fakeUploadService) ListUnsettledTasks() ([]models.UploadTask, error) {
	return f.tasks, f.listErr
}

func (f *fakeUploadService) ResumeTracking(taskID string) error {
	f.resumed = append(f.resumed, taskID)
	return f.resumeErrs[taskID]
}

type fakeVerificationService struct {
	dirty     bool
	dealID    string
	persisted int
	persistFn error
}

func (f *fakeVerificationService) HasUnsavedChanges() bool { return f.dirty }
func (f *fakeVerificationService) ActiveDealID() string    { return f.dealID }
func (f *fakeVerificationService) Persist() error {
	f.persisted++
	return f.persistFn
}

func TestRunTaskRefreshJob(t *testing.T) {
	t.Run("Should resume every unsettled task", func(t *testing.T) {
		upload := &fakeUploadService{
			tasks: []models.UploadTask{
				{ID: "task-1", Phase: "tracking"},
				{ID: "task-2", Phase: "tracking"},
			},
		}
		svc := &Service{upload: upload}

		svc.runTaskRefreshJob()

		assert.Equal(t, []string{"task-1", "task-2"}, upload.resumed)
	})

	t.Run("Should keep going when one resume fails", func(t *testing.T) {
		upload := &fakeUploadService{
			tasks: []models.UploadTask{
				{ID: "task-1"},
				{ID: "task-2"},
			},
			resumeErrs: map[string]error{"task-1": fmt.Errorf("not signed in")},
		}
		svc := &Service{upload: upload}

		svc.runTaskRefreshJob()

		assert.Equal(t, []string{"task-1", "task-2"}, upload.resumed)
	})

	t.Run("Should do nothing without an upload service", func(t *testing.T) {
		svc := &Service{}
		svc.runTaskRefreshJob() // must not panic
	})
}

func TestRunDraftAutosaveJob(t *testing.T) {
	t.Run("Should persist a dirty draft", func(t *testing.T) {
		verification := &fakeVerificationService{dirty: true, dealID: "deal-1"}
		svc := &Service{verification: verification}

		svc.runDraftAutosaveJob()

		assert.Equal(t, 1, verification.persisted)
	})

	t.Run("Should skip a clean draft", func(t *testing.T) {
		verification := &fakeVerificationService{dirty: false, dealID: "deal-1"}
		svc := &Service{verification: verification}

		svc.runDraftAutosaveJob()

		assert.Equal(t, 0, verification.persisted)
	})

	t.Run("Should skip when no deal is loaded", func(t *testing.T) {
		verification := &fakeVerificationService{dirty: true}
		svc := &Service{verification: verification}

		svc.runDraftAutosaveJob()

		assert.Equal(t, 0, verification.persisted)
	})
}

func TestServiceCreation(t *testing.T) {
	ctx := context.Background()

	t.Run("Should create new scheduler service", func(t *testing.T) {
		service := NewService(nil, ctx, &fakeUploadService{}, &fakeVerificationService{})

		assert.NotNil(t, service)
		assert.NotNil(t, service.jobs)
		assert.NotNil(t, service.cron)
	})
}

func TestUpsertJobValidation(t *testing.T) {
	t.Run("Should reject unknown job types before touching the database", func(t *testing.T) {
		svc := &Service{jobs: make(map[string]cron.EntryID)}

		_, err := svc.UpsertJob(UpsertJobRequest{
			Name:    "mystery",
			JobType: "mine_bitcoin",
			Cron:    "0 2 * * *",
		})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "unknown job type")
	})

	t.Run("Should require name, job type and cron", func(t *testing.T) {
		svc := &Service{jobs: make(map[string]cron.EntryID)}

		_, err := svc.UpsertJob(UpsertJobRequest{Name: "incomplete"})

		require.Error(t, err)
	})
}
