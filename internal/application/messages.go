package application

import (
	"strconv"

	"github.com/davarch/ci-tracker/internal/domain"
)

func completionMessage(s domain.StatusSnapshot) (title, body string) {
	noun := "Job"
	if s.Kind == domain.KindPipeline {
		noun = "Pipeline"
	}
	title = titleFor(noun, s.Status)

	if s.Kind == domain.KindPipeline {
		body = "Pipeline #" + strconv.FormatInt(s.ID, 10) + " on " + s.Ref
	} else {
		body = s.Name + " on " + s.Ref
	}
	return title, body
}

func discoveryMessage(s domain.StatusSnapshot) (title, body string) {
	return "🆕 New job detected", s.Name + " on " + s.Ref + " (" + string(s.Status) + ")"
}

func titleFor(noun string, s domain.Status) string {
	switch s {
	case domain.StatusSuccess:
		return "✅ " + noun + " completed"
	case domain.StatusFailed:
		return "❌ " + noun + " failed"
	case domain.StatusCanceled:
		return "⛔ " + noun + " canceled"
	case domain.StatusRunning:
		return "▶️ " + noun + " running"
	default:
		return "ℹ️ " + noun + ": " + string(s)
	}
}
