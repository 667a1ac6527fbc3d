package models

import "time"

// Severity is the per-event threat tier assigned by classification.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// SeverityForScore buckets a continuous anomaly score into a tier.
func SeverityForScore(score float64) Severity {
	switch {
	case score >= 0.7:
		return SeverityHigh
	case score >= 0.5:
		return SeverityMedium
	default:
		return SeverityLow
	}
}

// Event is the canonical record produced by the normalizer. The ID is
// assigned on persist. The classification fields (Severity, AnomalyScore,
// Label, IsAnalyzed) are written exactly once by the processor after a
// successful oracle call; everything else is immutable after normalization.
type Event struct {
	ID        string    `json:"id,omitempty"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	SourceIP  string    `json:"source_ip"`
	SessionID string    `json:"session_id,omitempty"`
	Sensor    string    `json:"sensor,omitempty"`
	Protocol  string    `json:"protocol,omitempty"`

	SourcePort int `json:"source_port,omitempty"`
	DestPort   int `json:"destination_port,omitempty"`

	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
	Command  string `json:"command,omitempty"`
	Input    string `json:"input_data,omitempty"`
	Message  string `json:"message,omitempty"`

	ClientVersion string  `json:"client_version,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
	FileURL       string  `json:"file_url,omitempty"`
	FileOutfile   string  `json:"file_outfile,omitempty"`
	FileHash      string  `json:"file_shasum,omitempty"`
	DstIP         string  `json:"dst_ip,omitempty"`
	DstPort       int     `json:"dst_port,omitempty"`

	Severity     Severity `json:"severity,omitempty"`
	AnomalyScore float64  `json:"anomaly_score,omitempty"`
	Label        string   `json:"label,omitempty"`
	IsAnalyzed   bool     `json:"is_analyzed"`
}

// Payload concatenates the free-text fields sent to the scoring oracle.
func (e *Event) Payload() string {
	out := e.Message
	if e.Command != "" {
		if out != "" {
			out += " "
		}
		out += e.Command
	}
	if e.Input != "" && e.Input != e.Command {
		if out != "" {
			out += " "
		}
		out += e.Input
	}
	return out
}
