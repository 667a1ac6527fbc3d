package campaign

import (
	"context"
	"time"

	"decoynet/internal/logger"
	"decoynet/internal/metrics"
	"decoynet/pkg/models"
)

// Store is the persistence surface the detector needs. It only reads
// already-committed aggregate state and writes idempotent campaign upserts.
type Store interface {
	EventsSince(ctx context.Context, since time.Time, limit int64) ([]models.Event, error)
	RecentAttackers(ctx context.Context, since time.Time) ([]models.Attacker, error)
	UpsertCampaign(ctx context.Context, c *models.Campaign) error
	DeactivateCampaignsBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Config controls detection cadence and thresholds.
type Config struct {
	Interval   time.Duration
	Window     time.Duration
	Thresholds Thresholds
	MaxEvents  int64
}

// Detector correlates events and attacker profiles across source addresses
// on a fixed cadence, independent of per-event processing.
type Detector struct {
	store Store
	cfg   Config
	now   func() time.Time
}

// NewDetector creates a campaign detector.
func NewDetector(store Store, cfg Config) *Detector {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Window <= 0 {
		cfg.Window = 1 * time.Hour
	}
	if cfg.MaxEvents <= 0 {
		cfg.MaxEvents = 50000
	}
	return &Detector{store: store, cfg: cfg, now: time.Now}
}

// Run executes detection cycles until ctx is cancelled. The first cycle
// runs immediately.
func (d *Detector) Run(ctx context.Context) {
	logger.Infof("Campaign detector started (interval=%s window=%s)", d.cfg.Interval, d.cfg.Window)
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	d.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.cycle(ctx)
		}
	}
}

func (d *Detector) cycle(ctx context.Context) {
	campaigns, err := d.DetectOnce(ctx)
	if err != nil {
		// Skip this cycle; the next scheduled tick resumes.
		logger.Errorf("Campaign detection cycle failed: %v", err)
		return
	}
	if len(campaigns) > 0 {
		logger.Infof("Detected %d potential attack campaigns", len(campaigns))
	}

	cutoff := d.now().Add(-2 * d.cfg.Window)
	flipped, err := d.store.DeactivateCampaignsBefore(ctx, cutoff)
	if err != nil {
		logger.Errorf("Failed to deactivate stale campaigns: %v", err)
	} else if flipped > 0 {
		logger.Infof("Deactivated %d stale campaigns", flipped)
	}
}

// DetectOnce runs the four strategies over the trailing window and upserts
// every qualifying campaign. Running it twice on unchanged data refreshes
// the same (type, indicator) records without duplication.
func (d *Detector) DetectOnce(ctx context.Context) ([]models.Campaign, error) {
	now := d.now()
	since := now.Add(-d.cfg.Window)

	events, err := d.store.EventsSince(ctx, since, d.cfg.MaxEvents)
	if err != nil {
		return nil, err
	}
	attackers, err := d.store.RecentAttackers(ctx, since)
	if err != nil {
		return nil, err
	}

	var campaigns []models.Campaign
	campaigns = append(campaigns, DetectCommandCampaigns(events, d.cfg.Thresholds, now)...)
	campaigns = append(campaigns, DetectCredentialCampaigns(events, d.cfg.Thresholds, now)...)
	campaigns = append(campaigns, DetectTimingCampaigns(events, d.cfg.Thresholds, now)...)
	campaigns = append(campaigns, DetectNetworkCampaigns(attackers, d.cfg.Thresholds, now)...)

	for i := range campaigns {
		c := &campaigns[i]
		if err := d.store.UpsertCampaign(ctx, c); err != nil {
			logger.Errorf("Failed to record campaign %s: %v", c.Key(), err)
			continue
		}
		metrics.CampaignsDetected.WithLabelValues(string(c.Type)).Inc()
		logger.Infof("Campaign recorded (type=%s ips=%d confidence=%.2f)", c.Type, c.IPCount, c.Confidence)
	}
	return campaigns, nil
}
