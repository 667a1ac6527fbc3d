package campaign

import (
	"sort"
	"time"

	"decoynet/pkg/models"
)

// Thresholds configures the qualification rules shared by the grouping
// strategies. These are fixed policy constants, not adaptive values.
type Thresholds struct {
	MinIPs           int
	MinCommandHits   int
	MinBucketEvents  int
	MinNetworkEvents int
}

// Defaults fills unset thresholds.
func (t Thresholds) withDefaults() Thresholds {
	if t.MinIPs <= 0 {
		t.MinIPs = 3
	}
	if t.MinCommandHits <= 0 {
		t.MinCommandHits = 5
	}
	if t.MinBucketEvents <= 0 {
		t.MinBucketEvents = 10
	}
	if t.MinNetworkEvents <= 0 {
		t.MinNetworkEvents = 20
	}
	return t
}

// Confidence combines normalized source count and event count, capped at 1.
func Confidence(ipCount int, eventCount int64) float64 {
	ipScore := float64(ipCount) / 10
	if ipScore > 1 {
		ipScore = 1
	}
	eventScore := float64(eventCount) / 100
	if eventScore > 1 {
		eventScore = 1
	}
	return ipScore*0.6 + eventScore*0.4
}

type group struct {
	indicator string
	ips       map[string]struct{}
	first     time.Time
	last      time.Time
	events    int64
}

func (g *group) observe(ip string, ts time.Time) {
	g.ips[ip] = struct{}{}
	g.events++
	if g.first.IsZero() || ts.Before(g.first) {
		g.first = ts
	}
	if ts.After(g.last) {
		g.last = ts
	}
}

func (g *group) campaign(typ models.CampaignType, detectedAt time.Time) models.Campaign {
	ips := make([]string, 0, len(g.ips))
	for ip := range g.ips {
		ips = append(ips, ip)
	}
	sort.Strings(ips)
	return models.Campaign{
		Type:       typ,
		Indicator:  g.indicator,
		IPCount:    len(ips),
		IPs:        ips,
		FirstSeen:  g.first,
		LastSeen:   g.last,
		EventCount: g.events,
		Confidence: Confidence(len(ips), g.events),
		IsActive:   true,
		DetectedAt: detectedAt,
	}
}

// DetectCommandCampaigns groups events by identical command text.
func DetectCommandCampaigns(events []models.Event, th Thresholds, now time.Time) []models.Campaign {
	th = th.withDefaults()
	groups := make(map[string]*group)
	for i := range events {
		ev := &events[i]
		if ev.Command == "" {
			continue
		}
		g := groups[ev.Command]
		if g == nil {
			g = &group{indicator: ev.Command, ips: make(map[string]struct{})}
			groups[ev.Command] = g
		}
		g.observe(ev.SourceIP, ev.Timestamp)
	}
	return qualify(groups, models.CampaignCommandPattern, now, func(g *group) bool {
		return len(g.ips) >= th.MinIPs && g.events >= int64(th.MinCommandHits)
	}, 10)
}

// DetectCredentialCampaigns groups events by identical credential pair.
func DetectCredentialCampaigns(events []models.Event, th Thresholds, now time.Time) []models.Campaign {
	th = th.withDefaults()
	groups := make(map[string]*group)
	for i := range events {
		ev := &events[i]
		if ev.Username == "" && ev.Password == "" {
			continue
		}
		indicator := ev.Username + ":" + ev.Password
		g := groups[indicator]
		if g == nil {
			g = &group{indicator: indicator, ips: make(map[string]struct{})}
			groups[indicator] = g
		}
		g.observe(ev.SourceIP, ev.Timestamp)
	}
	return qualify(groups, models.CampaignCredentialStuffing, now, func(g *group) bool {
		return len(g.ips) >= th.MinIPs
	}, 10)
}

// DetectTimingCampaigns groups events into one-minute buckets to surface
// synchronized bursts from many sources.
func DetectTimingCampaigns(events []models.Event, th Thresholds, now time.Time) []models.Campaign {
	th = th.withDefaults()
	groups := make(map[string]*group)
	for i := range events {
		ev := &events[i]
		bucket := ev.Timestamp.UTC().Truncate(time.Minute)
		indicator := bucket.Format(time.RFC3339)
		g := groups[indicator]
		if g == nil {
			g = &group{indicator: indicator, ips: make(map[string]struct{}), first: bucket, last: bucket}
			groups[indicator] = g
		}
		g.ips[ev.SourceIP] = struct{}{}
		g.events++
	}
	return qualify(groups, models.CampaignCoordinatedTiming, now, func(g *group) bool {
		return len(g.ips) >= th.MinIPs && g.events >= int64(th.MinBucketEvents)
	}, 5)
}

// DetectNetworkCampaigns groups already-profiled attackers by ASN/ISP.
// Attackers without network enrichment are skipped.
func DetectNetworkCampaigns(attackers []models.Attacker, th Thresholds, now time.Time) []models.Campaign {
	th = th.withDefaults()
	groups := make(map[string]*group)
	for i := range attackers {
		a := &attackers[i]
		if a.ASN == "" {
			continue
		}
		indicator := a.ASN
		if a.ISP != "" {
			indicator = a.ASN + " (" + a.ISP + ")"
		}
		g := groups[indicator]
		if g == nil {
			g = &group{indicator: indicator, ips: make(map[string]struct{})}
			groups[indicator] = g
		}
		g.ips[a.IP] = struct{}{}
		g.events += a.TotalEvents
		if g.first.IsZero() || (!a.FirstSeen.IsZero() && a.FirstSeen.Before(g.first)) {
			g.first = a.FirstSeen
		}
		if a.LastSeen.After(g.last) {
			g.last = a.LastSeen
		}
	}
	return qualify(groups, models.CampaignNetwork, now, func(g *group) bool {
		return len(g.ips) >= th.MinIPs && g.events >= int64(th.MinNetworkEvents)
	}, 5)
}

func qualify(groups map[string]*group, typ models.CampaignType, now time.Time, ok func(*group) bool, limit int) []models.Campaign {
	out := make([]models.Campaign, 0, len(groups))
	for _, g := range groups {
		if ok(g) {
			out = append(out, g.campaign(typ, now))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IPCount != out[j].IPCount {
			return out[i].IPCount > out[j].IPCount
		}
		if out[i].EventCount != out[j].EventCount {
			return out[i].EventCount > out[j].EventCount
		}
		return out[i].Indicator < out[j].Indicator
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}
