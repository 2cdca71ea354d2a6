package wizard

import (
	"context"
	"strings"
	"sync"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"dealdesk-desktop/internal/services/staging"
)

// routeSteps maps route prefixes to wizard steps. Longest prefix wins;
// anything unmatched lands on the upload step.
var routeSteps = []struct {
	prefix string
	step   Step
}{
	{"/upload/details", StepVerifyDetails},
	{"/upload/rr", StepVerifyRentRoll},
	{"/upload/t-12", StepVerifyT12},
	{"/upload/model", StepModelReady},
	{"/upload", StepUpload},
}

// panelDocs gives the document slice shown beside each verification
// step. Steps absent here keep the panel closed.
var panelDocs = map[Step]staging.DocumentType{
	StepVerifyDetails:  staging.DocOfferingMemo,
	StepVerifyRentRoll: staging.DocRentRoll,
	StepVerifyT12:      staging.DocT12,
}

// DeriveStep resolves a route to its wizard step
func DeriveStep(route string) Step {
	for _, rs := range routeSteps {
		if strings.HasPrefix(route, rs.prefix) {
			return rs.step
		}
	}
	return StepUpload
}

// DeriveUIState computes the full UI state for a route. Pure: the same
// route always yields the same state.
func DeriveUIState(route string) UIState {
	step := DeriveStep(route)
	state := UIState{
		Route:     route,
		StepIndex: int(step),
	}
	if doc, ok := panelDocs[step]; ok {
		state.PanelOpen = true
		state.SelectedDocument = &doc
	}
	return state
}

// StepStatus classifies a step relative to the current one
func StepStatus(step, current Step) string {
	switch {
	case step < current:
		return StatusCompleted
	case step == current:
		return StatusCurrent
	default:
		return StatusPending
	}
}

// Service tracks the wizard's route-derived state for the session
type Service struct {
	mu    sync.RWMutex
	state UIState
	emit  func(event string, payload interface{})
}

// NewService creates a wizard service starting at the upload step
func NewService(ctx context.Context) *Service {
	s := &Service{state: DeriveUIState("/upload")}
	if ctx != nil {
		s.emit = func(event string, payload interface{}) {
			runtime.EventsEmit(ctx, event, payload)
		}
	}
	return s
}

// ApplyRoute recomputes the UI state for the route and stores it.
// Idempotent: re-applying the same route changes nothing and emits no
// event; only an actual state change notifies the UI.
func (s *Service) ApplyRoute(route string) UIState {
	next := DeriveUIState(route)

	s.mu.Lock()
	changed := !statesEqual(s.state, next)
	if changed {
		s.state = next
	}
	s.mu.Unlock()

	if changed && s.emit != nil {
		s.emit("wizard:changed", next)
	}
	return next
}

// State returns the current route-derived UI state
func (s *Service) State() UIState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// StepStatuses returns the completion status of every navigable step
// plus the terminal one, keyed by step name.
func (s *Service) StepStatuses() map[string]string {
	s.mu.RLock()
	current := Step(s.state.StepIndex)
	s.mu.RUnlock()

	statuses := make(map[string]string, len(stepNames))
	for step := StepUpload; step <= StepModelReady; step++ {
		statuses[step.String()] = StepStatus(step, current)
	}
	return statuses
}

func statesEqual(a, b UIState) bool {
	if a.Route != b.Route || a.StepIndex != b.StepIndex || a.PanelOpen != b.PanelOpen {
		return false
	}
	if (a.SelectedDocument == nil) != (b.SelectedDocument == nil) {
		return false
	}
	return a.SelectedDocument == nil || *a.SelectedDocument == *b.SelectedDocument
}
