package adapt

import (
	"bytes"
	"context"
	"math/rand"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"decoynet/internal/logger"
	"decoynet/internal/metrics"
	"decoynet/internal/oracle"
	"decoynet/pkg/models"
)

// Store is the persistence surface the engine needs: the append-only audit
// trail plus the observed client-version distribution for banner selection.
type Store interface {
	AppendAdaptation(ctx context.Context, a *models.Adaptation) error
	ClientVersionCounts(ctx context.Context) (map[string]int64, error)
}

// Config controls the adaptation engine.
type Config struct {
	Cooldown       time.Duration
	BannerConfig   string
	HoneyfilesPath string
	RestartCommand string
	RestartTimeout time.Duration
}

// Engine mutates the deception surface in response to high-severity
// triggers. One shared cooldown gates all automated response; admission is
// a compare-and-swap so two near-simultaneous triggers cannot both pass.
type Engine struct {
	store Store
	cfg   Config

	// Unix nanos of the last completed adaptation; 0 means never.
	lastAdaptation atomic.Int64

	now    func() time.Time
	runCmd func(ctx context.Context, command string) (string, string, error)

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewEngine creates an adaptation engine.
func NewEngine(store Store, cfg Config) *Engine {
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 300 * time.Second
	}
	if cfg.RestartTimeout <= 0 {
		cfg.RestartTimeout = 30 * time.Second
	}
	e := &Engine{
		store: store,
		cfg:   cfg,
		now:   time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	e.runCmd = e.runShell
	return e
}

// TryAdapt runs the response actions for one trigger unless the cooldown is
// still in effect. A request inside the cooldown is a logged no-op, not an
// error. Each action is best-effort and individually audited; the cooldown
// anchor is set once, after all actions complete.
func (e *Engine) TryAdapt(ctx context.Context, ev *models.Event, result *oracle.Result) {
	if !e.claim() {
		metrics.AdaptationsSkipped.Inc()
		logger.Infof("Adaptation in cooldown period, skipping (event=%s ip=%s)", ev.ID, ev.SourceIP)
		return
	}

	severity := models.SeverityHigh
	if result != nil {
		severity = result.Severity
	}
	logger.Infof("Starting adaptation (event=%s ip=%s severity=%s)", ev.ID, ev.SourceIP, severity)

	e.record(ctx, ev, severity, e.rotateBanner(ctx))
	e.record(ctx, ev, severity, e.seedHoneyfiles(ev))
	e.record(ctx, ev, severity, e.restartService(ctx))

	e.lastAdaptation.Store(e.now().UnixNano())
	logger.Infof("Adaptation complete (event=%s)", ev.ID)
}

// claim atomically checks the cooldown and reserves the slot.
func (e *Engine) claim() bool {
	for {
		last := e.lastAdaptation.Load()
		now := e.now()
		if last != 0 && now.Sub(time.Unix(0, last)) < e.cfg.Cooldown {
			return false
		}
		if e.lastAdaptation.CompareAndSwap(last, now.UnixNano()) {
			return true
		}
	}
}

// actionResult is what one sub-action reports for its audit record.
type actionResult struct {
	action  models.ActionType
	details map[string]string
	err     error
}

func (e *Engine) record(ctx context.Context, ev *models.Event, severity models.Severity, res actionResult) {
	rec := &models.Adaptation{
		Timestamp:      e.now(),
		TriggerEventID: ev.ID,
		TriggerIP:      ev.SourceIP,
		Severity:       severity,
		ActionType:     res.action,
		Details:        res.details,
		Success:        res.err == nil,
	}
	status := "success"
	if res.err != nil {
		rec.ErrorMessage = res.err.Error()
		status = "failure"
		logger.Errorf("Adaptation action %s failed: %v", res.action, res.err)
	}
	metrics.AdaptationActions.WithLabelValues(string(res.action), status).Inc()

	if err := e.store.AppendAdaptation(ctx, rec); err != nil {
		logger.Errorf("Failed to record adaptation %s: %v", res.action, err)
	}
}

func (e *Engine) restartService(ctx context.Context) actionResult {
	res := actionResult{action: models.ActionServiceRestart, details: map[string]string{}}
	if strings.TrimSpace(e.cfg.RestartCommand) == "" {
		res.details["skipped"] = "no restart command configured"
		return res
	}

	logger.Infof("Restarting deception service")
	stdout, stderr, err := e.runCmd(ctx, e.cfg.RestartCommand)
	res.details["stdout"] = stdout
	res.details["stderr"] = stderr
	if stderr != "" {
		logger.Warnf("Restart command stderr: %s", stderr)
	}
	if err != nil {
		res.err = err
		return res
	}
	logger.Infof("Deception service restarted")
	return res
}

func (e *Engine) runShell(ctx context.Context, command string) (string, string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, e.cfg.RestartTimeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, "sh", "-c", command)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return strings.TrimSpace(stdout.String()), strings.TrimSpace(stderr.String()), err
}

func (e *Engine) randFloat() float64 {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Float64()
}

func (e *Engine) randIntn(n int) int {
	e.rngMu.Lock()
	defer e.rngMu.Unlock()
	return e.rng.Intn(n)
}
