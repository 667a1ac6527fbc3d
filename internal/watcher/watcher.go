package watcher

import (
	"context"

	json "github.com/goccy/go-json"

	"decoynet/internal/input/tail"
	"decoynet/internal/logger"
	"decoynet/internal/metrics"
	"decoynet/internal/normalize"
	"decoynet/internal/processor"
)

// Watcher consumes one deception service's stream sequentially, so within a
// source events reach the processor in append order. Watchers for different
// sources run concurrently.
type Watcher struct {
	source normalize.Source
	tailer *tail.Tailer
	norm   *normalize.Normalizer
	proc   *processor.Processor
}

// New creates a watcher for one source stream.
func New(source normalize.Source, tailer *tail.Tailer, norm *normalize.Normalizer, proc *processor.Processor) *Watcher {
	return &Watcher{source: source, tailer: tailer, norm: norm, proc: proc}
}

// Run follows the stream until ctx is cancelled. Malformed lines are dropped
// and logged, never fatal.
func (w *Watcher) Run(ctx context.Context) error {
	logger.Infof("Watcher started (source=%s)", w.source)
	return w.tailer.Run(ctx, func(line []byte) {
		w.handleLine(ctx, line)
	})
}

func (w *Watcher) handleLine(ctx context.Context, line []byte) {
	metrics.LinesRead.WithLabelValues(string(w.source)).Inc()

	var raw map[string]interface{}
	if err := json.Unmarshal(line, &raw); err != nil {
		metrics.LinesDropped.WithLabelValues(string(w.source), "malformed").Inc()
		logger.Warnf("Dropping malformed line (source=%s): %v", w.source, err)
		return
	}

	ev := w.norm.Normalize(raw, w.source)
	if ev == nil {
		metrics.LinesDropped.WithLabelValues(string(w.source), "filtered").Inc()
		logger.Debugf("Record filtered (source=%s)", w.source)
		return
	}

	logger.Debugf("Received event (source=%s type=%s ip=%s session=%s)",
		w.source, ev.EventType, ev.SourceIP, ev.SessionID)

	if err := w.proc.Process(ctx, ev); err != nil {
		logger.Errorf("Event processing failed (source=%s type=%s): %v", w.source, ev.EventType, err)
	}
}
