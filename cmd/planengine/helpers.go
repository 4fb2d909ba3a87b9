package main

import (
	"github.com/dagrunner/planengine/internal/model"
)

// taskEventView is the JSON-lines shape errors/status render, grounded on
// agent_cli.py's cmd_errors dict literal.
type taskEventView struct {
	CreatedAt string         `json:"created_at"`
	TaskID    string         `json:"task_id,omitempty"`
	EventType string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
}

// filterErrorEvents keeps only TASK_ERROR entries, newest first, capped at
// limit.
func filterErrorEvents(events []model.TaskEvent, limit int) []taskEventView {
	var out []taskEventView
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		e := events[i]
		if e.EventType != "TASK_ERROR" {
			continue
		}
		view := taskEventView{
			CreatedAt: e.CreatedAt.Format("2006-01-02T15:04:05.000Z07:00"),
			EventType: e.EventType,
			Payload:   e.Payload,
		}
		if e.TaskID != nil {
			view.TaskID = *e.TaskID
		}
		out = append(out, view)
	}
	return out
}

func truncateString(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
