package oracle

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"decoynet/internal/analyzer"
	"decoynet/pkg/models"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(Config{URL: url, Timeout: 2 * time.Second}, analyzer.New(nil))
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestNewClientRequiresURL(t *testing.T) {
	if _, err := NewClient(Config{}, nil); err == nil {
		t.Fatalf("expected error for missing URL")
	}
}

func TestProbeSetsHealthFlag(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(status)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	if c.Healthy() {
		t.Fatalf("expected unhealthy before first probe")
	}
	if !c.Probe() {
		t.Fatalf("expected probe success")
	}
	if !c.Healthy() {
		t.Fatalf("expected healthy after probe")
	}

	status = http.StatusServiceUnavailable
	if c.Probe() {
		t.Fatalf("expected probe failure on 503")
	}
	if c.Healthy() {
		t.Fatalf("expected unhealthy after failed probe")
	}
}

func TestProbeUnreachableOracle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	c := newTestClient(t, srv.URL)
	if c.Probe() {
		t.Fatalf("expected probe failure for closed server")
	}
	if c.Healthy() {
		t.Fatalf("expected unhealthy")
	}
}

func TestClassifySkipsWhenUnhealthy(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1")

	res, err := c.Classify(context.Background(), &models.Event{ID: "e1"})
	if err != nil {
		t.Fatalf("expected silent skip, got %v", err)
	}
	if res != nil {
		t.Fatalf("expected nil result while unhealthy, got %+v", res)
	}
}

func TestClassifyUsesOracleScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/classify":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"score": 0.92, "label": "anomalous"}`))
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.Probe()

	ev := &models.Event{
		ID:        "e1",
		EventType: "cowrie.command.input",
		SourceIP:  "203.0.113.5",
		Sensor:    "cowrie",
		Timestamp: time.Now(),
		Command:   "echo hello",
	}
	res, err := c.Classify(context.Background(), ev)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Score != 0.92 || res.Label != "anomalous" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Severity != models.SeverityHigh {
		t.Fatalf("expected HIGH severity for 0.92, got %s", res.Severity)
	}
	if res.CommandAnalysis == nil {
		t.Fatalf("expected command analysis attached")
	}
}

func TestClassifyLocalEscalation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/classify":
			w.Header().Set("Content-Type", "application/json")
			// Oracle sees nothing wrong.
			w.Write([]byte(`{"score": 0.1, "label": "normal"}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.Probe()

	ev := &models.Event{
		ID:        "e2",
		EventType: "cowrie.command.input",
		SourceIP:  "203.0.113.5",
		Timestamp: time.Now(),
		Command:   "rm -rf /",
	}
	res, err := c.Classify(context.Background(), ev)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Label != "anomalous" {
		t.Fatalf("expected local escalation to anomalous, got %q", res.Label)
	}
	if res.Score < 0.85 {
		t.Fatalf("expected score floor 0.85, got %v", res.Score)
	}
	if res.Severity != models.SeverityHigh {
		t.Fatalf("expected HIGH severity, got %s", res.Severity)
	}
}

func TestClassifyNeverDeescalates(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/classify":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"score": 0.95, "label": "anomalous"}`))
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.Probe()

	ev := &models.Event{
		ID:        "e3",
		EventType: "cowrie.command.input",
		SourceIP:  "203.0.113.5",
		Timestamp: time.Now(),
		Command:   "rm -rf /",
	}
	res, err := c.Classify(context.Background(), ev)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if res.Score != 0.95 {
		t.Fatalf("expected oracle score preserved, got %v", res.Score)
	}
}

func TestClassifyConnectionRefusedFlipsHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	c := newTestClient(t, srv.URL)
	c.Probe()
	if !c.Healthy() {
		t.Fatalf("expected healthy after probe")
	}
	srv.Close()

	ev := &models.Event{ID: "e4", Timestamp: time.Now()}
	if _, err := c.Classify(context.Background(), ev); err == nil {
		t.Fatalf("expected transport error")
	}
	if c.Healthy() {
		t.Fatalf("expected health flag cleared on connection refused")
	}
}

func TestClassifyServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/classify":
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	c.Probe()

	ev := &models.Event{ID: "e5", Timestamp: time.Now()}
	if _, err := c.Classify(context.Background(), ev); err == nil {
		t.Fatalf("expected error on 500")
	}
	if !c.Healthy() {
		t.Fatalf("500 response must not flip the health flag")
	}
}
