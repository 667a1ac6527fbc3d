package processor

import (
	"context"
	"time"

	"decoynet/internal/logger"
	"decoynet/internal/metrics"
	"decoynet/internal/oracle"
	"decoynet/pkg/models"
)

// Store is the persistence surface the processor needs.
type Store interface {
	PersistEvent(ctx context.Context, ev *models.Event) (string, error)
	ApplySessionEvent(ctx context.Context, ev *models.Event) error
	ApplyAttackerEvent(ctx context.Context, ev *models.Event) error
	UpdateEventClassification(ctx context.Context, id string, severity models.Severity, score float64, label string) error
	IncrAttackerSeverity(ctx context.Context, ip string, severity models.Severity) error
}

// Classifier scores one event, returning nil when classification is
// unavailable.
type Classifier interface {
	Classify(ctx context.Context, ev *models.Event) (*oracle.Result, error)
}

// Responder mutates the deception surface for a high-severity trigger.
type Responder interface {
	TryAdapt(ctx context.Context, ev *models.Event, result *oracle.Result)
}

// Config controls processor behavior.
type Config struct {
	AutoAdapt bool
}

// Processor runs the per-event pipeline: persist, aggregate, classify,
// respond. Steps are fault-isolated: a failed step is logged and later
// independent steps still run. Nothing retries and nothing rolls back.
type Processor struct {
	store      Store
	classifier Classifier
	responder  Responder
	autoAdapt  bool
}

// New creates a processor. classifier and responder may be nil, which
// disables the corresponding steps.
func New(store Store, classifier Classifier, responder Responder, cfg Config) *Processor {
	return &Processor{
		store:      store,
		classifier: classifier,
		responder:  responder,
		autoAdapt:  cfg.AutoAdapt,
	}
}

// Process runs one event through the pipeline. The returned error reflects
// only the persist step; enrichment failures are contained.
func (p *Processor) Process(ctx context.Context, ev *models.Event) error {
	start := time.Now()
	defer func() {
		metrics.ProcessingDuration.Observe(float64(time.Since(start).Milliseconds()))
	}()
	metrics.EventsProcessed.WithLabelValues(ev.EventType).Inc()

	id, err := p.store.PersistEvent(ctx, ev)
	if err != nil {
		logger.Errorf("Failed to persist event (type=%s ip=%s): %v", ev.EventType, ev.SourceIP, err)
		return err
	}
	ev.ID = id

	if err := p.store.ApplySessionEvent(ctx, ev); err != nil {
		logger.Errorf("Failed to update session %s: %v", ev.SessionID, err)
	}
	if err := p.store.ApplyAttackerEvent(ctx, ev); err != nil {
		logger.Errorf("Failed to update attacker %s: %v", ev.SourceIP, err)
	}

	result := p.classify(ctx, ev)
	if result == nil {
		// Unclassified events keep is_analyzed=false and can never
		// trigger adaptation: severity is not assumed.
		return nil
	}

	if p.autoAdapt && result.Severity == models.SeverityHigh && p.responder != nil {
		p.responder.TryAdapt(ctx, ev, result)
	}
	return nil
}

func (p *Processor) classify(ctx context.Context, ev *models.Event) *oracle.Result {
	if p.classifier == nil {
		metrics.Classifications.WithLabelValues("skipped").Inc()
		return nil
	}

	result, err := p.classifier.Classify(ctx, ev)
	if err != nil {
		metrics.Classifications.WithLabelValues("failed").Inc()
		return nil
	}
	if result == nil {
		metrics.Classifications.WithLabelValues("skipped").Inc()
		return nil
	}
	metrics.Classifications.WithLabelValues("classified").Inc()

	if err := p.store.UpdateEventClassification(ctx, ev.ID, result.Severity, result.Score, result.Label); err != nil {
		logger.Errorf("Failed to write classification for event %s: %v", ev.ID, err)
	} else {
		ev.Severity = result.Severity
		ev.AnomalyScore = result.Score
		ev.Label = result.Label
		ev.IsAnalyzed = true
	}

	if err := p.store.IncrAttackerSeverity(ctx, ev.SourceIP, result.Severity); err != nil {
		logger.Errorf("Failed to bump severity counter for %s: %v", ev.SourceIP, err)
	}

	logger.Debugf("Classification complete (event=%s severity=%s score=%.3f)", ev.ID, result.Severity, result.Score)
	return result
}
