package wizard

import "dealdesk-desktop/internal/services/staging"

// Step is one stage of the deal creation wizard
type Step int

const (
	StepUpload Step = iota
	StepVerifyDetails
	StepVerifyRentRoll
	StepVerifyT12
	StepModelReady
)

var stepNames = map[Step]string{
	StepUpload:         "upload",
	StepVerifyDetails:  "verify_details",
	StepVerifyRentRoll: "verify_rent_roll",
	StepVerifyT12:      "verify_t12",
	StepModelReady:     "model_ready",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

// Navigable reports whether the user can jump to the step directly.
// ModelReady is terminal; it is reached, never chosen.
func (s Step) Navigable() bool {
	return s >= StepUpload && s <= StepVerifyT12
}

// Step completion status relative to the current step
const (
	StatusCompleted = "completed"
	StatusCurrent   = "current"
	StatusPending   = "pending"
)

// UIState is everything the shell derives from the current route: the
// active step, whether the document side panel is open, and which
// document slice it shows.
type UIState struct {
	Route            string                `json:"route"`
	StepIndex        int                   `json:"step_index"`
	PanelOpen        bool                  `json:"panel_open"`
	SelectedDocument *staging.DocumentType `json:"selected_document,omitempty"`
}
