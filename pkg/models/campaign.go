package models

import "time"

// CampaignType names one of the correlation dimensions.
type CampaignType string

const (
	CampaignCommandPattern     CampaignType = "COMMAND_PATTERN"
	CampaignCredentialStuffing CampaignType = "CREDENTIAL_STUFFING"
	CampaignCoordinatedTiming  CampaignType = "COORDINATED_TIMING"
	CampaignNetwork            CampaignType = "NETWORK_CAMPAIGN"
)

// Campaign is a cluster of coordinated activity across source addresses,
// upserted by the detector keyed on (Type, Indicator).
type Campaign struct {
	ID         string       `json:"id"`
	Type       CampaignType `json:"campaign_type"`
	Indicator  string       `json:"indicator"`
	IPCount    int          `json:"ip_count"`
	IPs        []string     `json:"ip_list"`
	FirstSeen  time.Time    `json:"first_seen"`
	LastSeen   time.Time    `json:"last_seen"`
	EventCount int64        `json:"event_count"`
	Confidence float64      `json:"confidence"`
	IsActive   bool         `json:"is_active"`
	DetectedAt time.Time    `json:"detected_at"`
}

// Key returns the upsert identity for the campaign.
func (c *Campaign) Key() string {
	return string(c.Type) + "|" + c.Indicator
}
