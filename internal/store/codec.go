package store

import (
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"decoynet/pkg/models"
)

func marshalJSON(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshalJSON(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if unix, err := strconv.ParseInt(value, 10, 64); err == nil && unix > 0 {
		return time.Unix(unix, 0).UTC()
	}
	return time.Time{}
}

func parseInt(value string) int64 {
	n, _ := strconv.ParseInt(value, 10, 64)
	return n
}

func parseFloat(value string) float64 {
	f, _ := strconv.ParseFloat(value, 64)
	return f
}

func eventFromHash(id string, hash map[string]string) models.Event {
	ev := models.Event{
		ID:            id,
		EventType:     hash["event_type"],
		Timestamp:     parseTime(hash["timestamp"]),
		SourceIP:      hash["source_ip"],
		SessionID:     hash["session_id"],
		Sensor:        hash["sensor"],
		Protocol:      hash["protocol"],
		SourcePort:    int(parseInt(hash["source_port"])),
		DestPort:      int(parseInt(hash["destination_port"])),
		Username:      hash["username"],
		Password:      hash["password"],
		Command:       hash["command"],
		Input:         hash["input_data"],
		Message:       hash["message"],
		ClientVersion: hash["client_version"],
		FileURL:       hash["file_url"],
		FileHash:      hash["file_shasum"],
		Label:         hash["label"],
		AnomalyScore:  parseFloat(hash["anomaly_score"]),
		IsAnalyzed:    hash["is_analyzed"] == "1",
	}
	if sev := hash["severity"]; sev != "" {
		ev.Severity = models.Severity(sev)
	}
	return ev
}

func attackerFromHash(ip string, hash map[string]string) models.Attacker {
	return models.Attacker{
		IP:                  ip,
		TotalEvents:         parseInt(hash["total_events"]),
		TotalSessions:       parseInt(hash["total_sessions"]),
		SuccessfulLogins:    parseInt(hash["successful_logins"]),
		FailedLogins:        parseInt(hash["failed_logins"]),
		CommandsExecuted:    parseInt(hash["commands_executed"]),
		LowSeverityCount:    parseInt(hash["low_severity_count"]),
		MediumSeverityCount: parseInt(hash["medium_severity_count"]),
		HighSeverityCount:   parseInt(hash["high_severity_count"]),
		ASN:                 hash["asn"],
		ISP:                 hash["isp"],
	}
}

func campaignFromHash(typ models.CampaignType, indicator string, hash map[string]string) models.Campaign {
	c := models.Campaign{
		ID:         hash["id"],
		Type:       typ,
		Indicator:  indicator,
		IPCount:    int(parseInt(hash["ip_count"])),
		FirstSeen:  parseTime(hash["first_seen"]),
		LastSeen:   parseTime(hash["last_seen"]),
		EventCount: parseInt(hash["event_count"]),
		Confidence: parseFloat(hash["confidence"]),
		IsActive:   hash["is_active"] == "1",
		DetectedAt: parseTime(hash["detected_at"]),
	}
	if raw := hash["ip_list"]; raw != "" {
		_ = unmarshalJSON([]byte(raw), &c.IPs)
	}
	return c
}
