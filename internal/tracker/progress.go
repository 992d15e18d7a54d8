package tracker

import (
	"fmt"

	"github.com/slipstream-hr/slipstream/internal/models"
)

// ProgressView is the display-ready projection of a raw progress
// payload: a clamped percentage plus an optional detail line
type ProgressView struct {
	Percentage int
	DetailText string
}

// NormalizeProgress projects a raw progress payload into a ProgressView.
// Percentage is clamped to [0,100] whatever the backend reports; a nil
// payload renders as 0%, which is what a freshly queued job shows.
func NormalizeProgress(raw *models.RawProgress) ProgressView {
	if raw == nil {
		return ProgressView{}
	}

	view := ProgressView{Percentage: clampPercentage(raw.Percentage)}

	if raw.Structured && raw.Total > 0 {
		view.DetailText = fmt.Sprintf("%s: %d of %d", stageLabel(raw.Stage), raw.Processed, raw.Total)
	}

	return view
}

// stageLabel renders a wire stage name for display
func stageLabel(stage string) string {
	if stage == "" {
		return "Processing"
	}
	return stage
}

func clampPercentage(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
