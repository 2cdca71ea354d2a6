package upload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"dealdesk-desktop/internal/api"
)

// ErrPollTimeout is returned when a job outlives the polling budget
// without reaching a terminal state. The job itself may still finish
// server-side; this only means the client stopped watching.
var ErrPollTimeout = errors.New("job polling timed out")

const (
	defaultPollInterval    = 2 * time.Second
	defaultPollMaxAttempts = 150
	defaultPollTimeout     = 5 * time.Minute

	// Tolerated consecutive transport failures before the poll aborts.
	// A single dropped request mid-extraction should not fail the run.
	maxConsecutivePollErrors = 3
)

// Poller watches one extraction job until it finishes, fails, or the
// polling budget runs out. Queries are strictly sequential; the next
// request is only sent after the previous response is handled.
type Poller struct {
	client      *api.Client
	interval    time.Duration
	maxAttempts int
	timeout     time.Duration

	// onStatus, when set, is called after every successful status read.
	// The orchestrator uses it to surface stage changes to the UI.
	onStatus func(attempt int, status *JobStatusResponse)
}

// NewPoller creates a poller configured from environment variables,
// falling back to defaults suited to document extraction jobs.
func NewPoller(client *api.Client) *Poller {
	return &Poller{
		client:      client,
		interval:    getEnvDuration("UPLOAD_POLL_INTERVAL", defaultPollInterval),
		maxAttempts: getEnvInt("UPLOAD_POLL_MAX_ATTEMPTS", defaultPollMaxAttempts),
		timeout:     getEnvDuration("UPLOAD_POLL_TIMEOUT", defaultPollTimeout),
	}
}

// Track polls the job status endpoint until the job reaches a terminal
// state. Returns the terminal status, or ErrPollTimeout when the attempt
// or time budget is exhausted first, or ctx.Err() on cancellation.
func (p *Poller) Track(ctx context.Context, jobID string) (*JobStatusResponse, error) {
	deadline := time.Now().Add(p.timeout)
	consecutiveErrs := 0

	log.Printf("Tracking job %s (interval=%s, max attempts=%d)", jobID, p.interval, p.maxAttempts)

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		status, err := p.fetchStatus(jobID)
		if err != nil {
			consecutiveErrs++
			if consecutiveErrs >= maxConsecutivePollErrors {
				// Repeated transport failures mean the outcome is
				// unknown, the same as running out of budget.
				return nil, fmt.Errorf("%w: status query failed %d times in a row: %v", ErrPollTimeout, consecutiveErrs, err)
			}
			log.Printf("Job %s status query failed (attempt %d): %v", jobID, attempt, err)
		} else {
			consecutiveErrs = 0

			if p.onStatus != nil {
				p.onStatus(attempt, status)
			}

			if status.Terminal() {
				log.Printf("Job %s reached %s after %d poll(s)", jobID, status.Status, attempt)
				return status, nil
			}
		}

		if time.Now().After(deadline) {
			return nil, ErrPollTimeout
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.interval):
		}
	}

	return nil, ErrPollTimeout
}

func (p *Poller) fetchStatus(jobID string) (*JobStatusResponse, error) {
	resp, err := p.client.Get(fmt.Sprintf("api/v1/upload/%s/status", jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}

	if !resp.IsSuccess() {
		return nil, fmt.Errorf("status request returned HTTP %d: %s", resp.StatusCode(), resp.String())
	}

	var status JobStatusResponse
	if err := json.Unmarshal(resp.Body(), &status); err != nil {
		return nil, fmt.Errorf("failed to parse job status: %w", err)
	}

	return &status, nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
		log.Printf("Invalid %s=%q, using default %d", key, v, fallback)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		log.Printf("Invalid %s=%q, using default %s", key, v, fallback)
	}
	return fallback
}
