package normalize

import (
	"testing"
	"time"
)

func fixedNormalizer(at time.Time) *Normalizer {
	return &Normalizer{now: func() time.Time { return at }}
}

func TestNormalizeShellCommandInput(t *testing.T) {
	n := New()

	ev := n.Normalize(map[string]interface{}{
		"eventid":   "cowrie.command.input",
		"timestamp": "2026-03-01T12:00:00.000000Z",
		"src_ip":    "203.0.113.7",
		"session":   "abc123",
		"input":     "cat /etc/passwd",
		"message":   "CMD: cat /etc/passwd",
	}, SourceShell)
	if ev == nil {
		t.Fatalf("expected event")
	}
	if ev.EventType != string(KindCommandInput) {
		t.Fatalf("unexpected event type %q", ev.EventType)
	}
	if ev.Command != "cat /etc/passwd" || ev.Input != ev.Command {
		t.Fatalf("command not captured: %+v", ev)
	}
	if ev.SourceIP != "203.0.113.7" || ev.SessionID != "abc123" {
		t.Fatalf("identity fields wrong: %+v", ev)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !ev.Timestamp.Equal(want) {
		t.Fatalf("timestamp = %v, want %v", ev.Timestamp, want)
	}
	if ev.Sensor != "cowrie" || ev.Protocol != "ssh" {
		t.Fatalf("defaults not applied: sensor=%q protocol=%q", ev.Sensor, ev.Protocol)
	}
}

func TestNormalizeShellFiltersDiagnosticEvents(t *testing.T) {
	n := New()

	for _, eventid := range []string{"cowrie.client.size", "cowrie.client.var", "cowrie.log.open"} {
		ev := n.Normalize(map[string]interface{}{"eventid": eventid, "src_ip": "1.2.3.4"}, SourceShell)
		if ev != nil {
			t.Fatalf("expected %s to be filtered, got %+v", eventid, ev)
		}
	}
	if ev := n.Normalize(map[string]interface{}{"no_eventid": true}, SourceShell); ev != nil {
		t.Fatalf("expected untagged record to be dropped")
	}
}

func TestNormalizeShellLoginFields(t *testing.T) {
	n := New()

	ev := n.Normalize(map[string]interface{}{
		"eventid":  "cowrie.login.failed",
		"username": "root",
		"password": "123456",
		"src_ip":   "198.51.100.9",
		"session":  "s1",
	}, SourceShell)
	if ev == nil || ev.Username != "root" || ev.Password != "123456" {
		t.Fatalf("login fields not captured: %+v", ev)
	}
}

func TestNormalizeShellClientVersion(t *testing.T) {
	n := New()

	ev := n.Normalize(map[string]interface{}{
		"eventid": "cowrie.client.version",
		"version": "SSH-2.0-libssh2_1.8.0",
		"src_ip":  "198.51.100.9",
		"session": "s1",
	}, SourceShell)
	if ev == nil || ev.ClientVersion != "SSH-2.0-libssh2_1.8.0" {
		t.Fatalf("client version not captured: %+v", ev)
	}
}

func TestNormalizeShellFallbacks(t *testing.T) {
	at := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	n := fixedNormalizer(at)

	ev := n.Normalize(map[string]interface{}{
		"eventid":   "cowrie.session.connect",
		"timestamp": "not-a-timestamp",
	}, SourceShell)
	if ev == nil {
		t.Fatalf("expected event")
	}
	if ev.SourceIP != "unknown" {
		t.Fatalf("expected unknown source IP, got %q", ev.SourceIP)
	}
	if !ev.Timestamp.Equal(at) {
		t.Fatalf("expected ingestion-time fallback, got %v", ev.Timestamp)
	}
}

func TestNormalizeTrapHTTPDefaults(t *testing.T) {
	at := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)
	n := fixedNormalizer(at)

	ev := n.Normalize(map[string]interface{}{
		"sourceIP": "192.0.2.55",
		"method":   "POST",
		"path":     "/admin/login.php",
	}, SourceHTTP)
	if ev == nil {
		t.Fatalf("expected event")
	}
	if ev.EventType != "http.request" {
		t.Fatalf("unexpected event type %q", ev.EventType)
	}
	if ev.DestPort != 8080 {
		t.Fatalf("expected default port 8080, got %d", ev.DestPort)
	}
	if ev.SessionID == "" {
		t.Fatalf("expected synthetic session id")
	}
	if ev.Message != "POST /admin/login.php" {
		t.Fatalf("unexpected synthesized message %q", ev.Message)
	}
	if ev.Protocol != "HTTP" || ev.Sensor != "http_honeypot" {
		t.Fatalf("defaults not applied: %+v", ev)
	}
}

func TestNormalizeTrapFTPAliases(t *testing.T) {
	n := New()

	ev := n.Normalize(map[string]interface{}{
		"src_ip":   "192.0.2.77",
		"src_port": float64(50123),
		"command":  "RETR secrets.zip",
	}, SourceFTP)
	if ev == nil {
		t.Fatalf("expected event")
	}
	if ev.SourceIP != "192.0.2.77" || ev.SourcePort != 50123 {
		t.Fatalf("alias fields not resolved: %+v", ev)
	}
	if ev.DestPort != 2121 {
		t.Fatalf("expected default port 2121, got %d", ev.DestPort)
	}
	if ev.Message != "FTP: RETR secrets.zip" {
		t.Fatalf("unexpected message %q", ev.Message)
	}
	if ev.Command != "RETR secrets.zip" {
		t.Fatalf("command not captured: %+v", ev)
	}
}

func TestParseTimestampLayouts(t *testing.T) {
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := fixedNormalizer(at)

	cases := []struct {
		in   string
		want time.Time
	}{
		{"2026-02-03T10:20:30Z", time.Date(2026, 2, 3, 10, 20, 30, 0, time.UTC)},
		{"2026-02-03T10:20:30.123456Z", time.Date(2026, 2, 3, 10, 20, 30, 123456000, time.UTC)},
		{"2026-02-03 10:20:30", time.Date(2026, 2, 3, 10, 20, 30, 0, time.UTC)},
		{"", at},
		{"garbage", at},
	}
	for _, tc := range cases {
		if got := n.parseTimestamp(tc.in); !got.Equal(tc.want) {
			t.Fatalf("parseTimestamp(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
