package oracle

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"syscall"
	"time"

	json "github.com/goccy/go-json"

	"decoynet/internal/analyzer"
	"decoynet/internal/logger"
	"decoynet/internal/metrics"
	"decoynet/pkg/models"
)

// Config configures the classification client.
type Config struct {
	URL           string
	Timeout       time.Duration
	ProbeInterval time.Duration
	ProbeTimeout  time.Duration
}

// Result is one classification outcome, oracle score merged with the local
// command analysis.
type Result struct {
	Score           float64                   `json:"score"`
	Label           string                    `json:"label"`
	Severity        models.Severity           `json:"severity"`
	CommandAnalysis *analyzer.CommandAnalysis `json:"command_analysis,omitempty"`
}

// Client calls the external scoring oracle and tracks its liveness on an
// independent probe timer. When the oracle is unhealthy, Classify returns
// nothing instead of blocking ingestion.
type Client struct {
	baseURL       string
	client        *http.Client
	probeClient   *http.Client
	probeInterval time.Duration
	analyzer      *analyzer.Analyzer
	healthy       atomic.Bool
}

// NewClient creates a classification client. The analyzer supplies the local
// rule-based score merged into oracle results.
func NewClient(cfg Config, an *analyzer.Analyzer) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("oracle URL is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 60 * time.Second
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 5 * time.Second
	}
	return &Client{
		baseURL:       cfg.URL,
		client:        &http.Client{Timeout: cfg.Timeout},
		probeClient:   &http.Client{Timeout: cfg.ProbeTimeout},
		probeInterval: cfg.ProbeInterval,
		analyzer:      an,
	}, nil
}

// Healthy reports the current health flag.
func (c *Client) Healthy() bool {
	return c.healthy.Load()
}

// Run probes the oracle liveness endpoint until ctx is cancelled. The probe
// loop is fully decoupled from the ingestion path.
func (c *Client) Run(ctx context.Context) {
	c.Probe()
	ticker := time.NewTicker(c.probeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Probe()
		}
	}
}

// Probe performs one health check and updates the health flag.
func (c *Client) Probe() bool {
	resp, err := c.probeClient.Get(c.baseURL + "/health")
	if err != nil {
		c.setHealthy(false)
		logger.Warnf("Oracle health check failed: %v", err)
		return false
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	ok := resp.StatusCode == http.StatusOK
	c.setHealthy(ok)
	if ok {
		logger.Debugf("Oracle health check: OK")
	} else {
		logger.Warnf("Oracle health check returned %s", resp.Status)
	}
	return ok
}

func (c *Client) setHealthy(ok bool) {
	c.healthy.Store(ok)
	if ok {
		metrics.OracleHealthy.Set(1)
	} else {
		metrics.OracleHealthy.Set(0)
	}
}

type classifyRequest struct {
	HoneypotID string `json:"honeypotId"`
	SrcIP      string `json:"srcIp"`
	Event      string `json:"event"`
	Payload    string `json:"payload"`
	Timestamp  string `json:"timestamp"`
}

type classifyResponse struct {
	Score *float64               `json:"score"`
	Label *string                `json:"label"`
	Extra map[string]interface{} `json:"explanation"`
}

// Classify scores one event. Returns (nil, nil) when the oracle is
// unhealthy; never blocks ingestion waiting on a dead dependency.
// Connection-refused flips the health flag immediately; timeouts and other
// transport errors are logged but assumed transient.
func (c *Client) Classify(ctx context.Context, ev *models.Event) (*Result, error) {
	if !c.healthy.Load() {
		logger.Debugf("Oracle unhealthy, skipping classification (event=%s)", ev.ID)
		return nil, nil
	}

	body, err := json.Marshal(classifyRequest{
		HoneypotID: ev.Sensor,
		SrcIP:      ev.SourceIP,
		Event:      ev.EventType,
		Payload:    ev.Payload(),
		Timestamp:  ev.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/classify", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if errors.Is(err, syscall.ECONNREFUSED) {
			// Faster failover than waiting for the next probe tick.
			c.setHealthy(false)
			logger.Errorf("Oracle connection refused, marking unhealthy")
		} else if isTimeout(err) {
			logger.Errorf("Oracle classify timeout: %v", err)
		} else {
			logger.Errorf("Oracle classify failed: %v", err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("oracle classify returned %s", resp.Status)
	}

	var parsed classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode classify response: %w", err)
	}

	result := &Result{Label: "normal"}
	if parsed.Score != nil {
		result.Score = *parsed.Score
	}
	if parsed.Label != nil {
		result.Label = *parsed.Label
	}
	c.mergeLocal(ev, result)
	result.Severity = models.SeverityForScore(result.Score)
	return result, nil
}

// mergeLocal folds the rule-based command score into the oracle result.
// Local detection can escalate the oracle's verdict, never de-escalate it.
func (c *Client) mergeLocal(ev *models.Event, result *Result) {
	if c.analyzer == nil || ev.Command == "" {
		return
	}
	ca := c.analyzer.AnalyzeCommand(ev.Command)
	result.CommandAnalysis = &ca
	if ca.RiskScore >= 70 || ca.IsDangerous {
		result.Label = "anomalous"
		if result.Score < 0.85 {
			result.Score = 0.85
		}
	}
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
