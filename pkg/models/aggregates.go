package models

import "time"

// Session tracks one continuous interaction span keyed by session id.
// EventCount is monotonically non-decreasing; IsActive flips true to false
// exactly once, on the session-closed event.
type Session struct {
	SessionID        string    `json:"session_id"`
	SourceIP         string    `json:"source_ip"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time,omitempty"`
	EventCount       int64     `json:"event_count"`
	CommandCount     int64     `json:"command_count"`
	FailedLoginCount int64     `json:"failed_login_count"`
	SuccessfulLogin  bool      `json:"successful_login"`
	ClientVersion    string    `json:"client_version,omitempty"`
	IsActive         bool      `json:"is_active"`
}

// Attacker is the behavioral profile aggregated per source address.
// The per-severity counters only grow once classification completes, so
// their sum never exceeds TotalEvents.
type Attacker struct {
	IP                  string    `json:"ip_address"`
	FirstSeen           time.Time `json:"first_seen"`
	LastSeen            time.Time `json:"last_seen"`
	TotalEvents         int64     `json:"total_events"`
	TotalSessions       int64     `json:"total_sessions"`
	SuccessfulLogins    int64     `json:"successful_logins"`
	FailedLogins        int64     `json:"failed_logins"`
	CommandsExecuted    int64     `json:"commands_executed"`
	LowSeverityCount    int64     `json:"low_severity_count"`
	MediumSeverityCount int64     `json:"medium_severity_count"`
	HighSeverityCount   int64     `json:"high_severity_count"`

	// Filled by external network enrichment; consumed by campaign grouping.
	ASN string `json:"asn,omitempty"`
	ISP string `json:"isp,omitempty"`
}
