package models

import "time"

// ActionType identifies one kind of deception-surface mutation.
type ActionType string

const (
	ActionBannerChange   ActionType = "BANNER_CHANGE"
	ActionHoneyfile      ActionType = "HONEYFILE_MODIFICATION"
	ActionServiceRestart ActionType = "SERVICE_RESTART"
)

// Adaptation is one append-only audit record for an attempted response
// action. Never mutated after insertion.
type Adaptation struct {
	ID             string            `json:"id"`
	Timestamp      time.Time         `json:"timestamp"`
	TriggerEventID string            `json:"trigger_event_id"`
	TriggerIP      string            `json:"trigger_ip"`
	Severity       Severity          `json:"severity"`
	ActionType     ActionType        `json:"action_type"`
	Details        map[string]string `json:"details,omitempty"`
	Success        bool              `json:"success"`
	ErrorMessage   string            `json:"error_message,omitempty"`
}
