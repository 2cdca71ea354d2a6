package wizard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dealdesk-desktop/internal/services/staging"
)

func TestDeriveUIState(t *testing.T) {
	tests := []struct {
		name      string
		route     string
		stepIndex int
		panelOpen bool
		document  *staging.DocumentType
	}{
		{"upload root", "/upload", 0, false, nil},
		{"verify details", "/upload/details", 1, true, docPtr(staging.DocOfferingMemo)},
		{"verify rent roll", "/upload/rr", 2, true, docPtr(staging.DocRentRoll)},
		{"verify t12", "/upload/t-12", 3, true, docPtr(staging.DocT12)},
		{"model ready", "/upload/model", 4, false, nil},
		{"nested verify route", "/upload/rr/rows/3", 2, true, docPtr(staging.DocRentRoll)},
		{"unrelated route", "/settings", 0, false, nil},
		{"empty route", "", 0, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := DeriveUIState(tt.route)

			assert.Equal(t, tt.stepIndex, state.StepIndex)
			assert.Equal(t, tt.panelOpen, state.PanelOpen)
			if tt.document == nil {
				assert.Nil(t, state.SelectedDocument)
			} else {
				require.NotNil(t, state.SelectedDocument)
				assert.Equal(t, *tt.document, *state.SelectedDocument)
			}
		})
	}

	t.Run("Should be pure for repeated evaluation", func(t *testing.T) {
		first := DeriveUIState("/upload/t-12")
		second := DeriveUIState("/upload/t-12")

		assert.Equal(t, first, second)
	})
}

func docPtr(d staging.DocumentType) *staging.DocumentType {
	return &d
}

func TestStepStatus(t *testing.T) {
	t.Run("Should classify steps around the current one", func(t *testing.T) {
		assert.Equal(t, StatusCompleted, StepStatus(StepUpload, StepVerifyRentRoll))
		assert.Equal(t, StatusCompleted, StepStatus(StepVerifyDetails, StepVerifyRentRoll))
		assert.Equal(t, StatusCurrent, StepStatus(StepVerifyRentRoll, StepVerifyRentRoll))
		assert.Equal(t, StatusPending, StepStatus(StepVerifyT12, StepVerifyRentRoll))
		assert.Equal(t, StatusPending, StepStatus(StepModelReady, StepVerifyRentRoll))
	})
}

func TestNavigable(t *testing.T) {
	t.Run("Should mark every step navigable except the terminal one", func(t *testing.T) {
		assert.True(t, StepUpload.Navigable())
		assert.True(t, StepVerifyDetails.Navigable())
		assert.True(t, StepVerifyRentRoll.Navigable())
		assert.True(t, StepVerifyT12.Navigable())
		assert.False(t, StepModelReady.Navigable())
	})
}

func TestApplyRoute(t *testing.T) {
	t.Run("Should update state and emit on a route change", func(t *testing.T) {
		svc := NewService(nil)
		var events int
		svc.emit = func(event string, payload interface{}) {
			assert.Equal(t, "wizard:changed", event)
			events++
		}

		state := svc.ApplyRoute("/upload/rr")

		assert.Equal(t, 2, state.StepIndex)
		assert.True(t, state.PanelOpen)
		assert.Equal(t, 1, events)
		assert.Equal(t, state, svc.State())
	})

	t.Run("Should be idempotent for the same route", func(t *testing.T) {
		svc := NewService(nil)
		var events int
		svc.emit = func(event string, payload interface{}) { events++ }

		first := svc.ApplyRoute("/upload/t-12")
		second := svc.ApplyRoute("/upload/t-12")

		assert.Equal(t, first, second)
		assert.Equal(t, 1, events, "re-applying the same route must not emit again")
	})

	t.Run("Should close the panel and clear the selection on leaving", func(t *testing.T) {
		svc := NewService(nil)

		svc.ApplyRoute("/upload/rr")
		state := svc.ApplyRoute("/upload")

		assert.Equal(t, 0, state.StepIndex)
		assert.False(t, state.PanelOpen)
		assert.Nil(t, state.SelectedDocument)
	})
}

func TestStepStatuses(t *testing.T) {
	t.Run("Should report all steps relative to the current route", func(t *testing.T) {
		svc := NewService(nil)
		svc.ApplyRoute("/upload/rr")

		statuses := svc.StepStatuses()

		assert.Equal(t, StatusCompleted, statuses["upload"])
		assert.Equal(t, StatusCompleted, statuses["verify_details"])
		assert.Equal(t, StatusCurrent, statuses["verify_rent_roll"])
		assert.Equal(t, StatusPending, statuses["verify_t12"])
		assert.Equal(t, StatusPending, statuses["model_ready"])
	})
}
