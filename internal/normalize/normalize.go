package normalize

import (
	"fmt"
	"strings"
	"time"

	"decoynet/pkg/models"
)

// Source identifies which deception service a raw record came from.
type Source string

const (
	SourceShell Source = "shell"
	SourceHTTP  Source = "http"
	SourceFTP   Source = "ftp"
)

// Kind is the tagged event kind used by the shell emulator stream.
type Kind string

const (
	KindLoginSuccess   Kind = "cowrie.login.success"
	KindLoginFailed    Kind = "cowrie.login.failed"
	KindCommandInput   Kind = "cowrie.command.input"
	KindSessionConnect Kind = "cowrie.session.connect"
	KindSessionClosed  Kind = "cowrie.session.closed"
	KindClientVersion  Kind = "cowrie.client.version"
	KindFileDownload   Kind = "cowrie.session.file_download"
	KindTCPIPRequest   Kind = "cowrie.direct-tcpip.request"

	// Diagnostic chatter, filtered before processing.
	KindClientSize Kind = "cowrie.client.size"
	KindClientVar  Kind = "cowrie.client.var"
	KindLogOpen    Kind = "cowrie.log.open"
)

// Filtered reports whether a shell event kind is pure diagnostic chatter.
func Filtered(kind Kind) bool {
	switch kind {
	case KindClientSize, KindClientVar, KindLogOpen:
		return true
	}
	return false
}

// Normalizer maps source-specific raw records onto the canonical Event.
// now is injectable for tests.
type Normalizer struct {
	now func() time.Time
}

// New creates a Normalizer.
func New() *Normalizer {
	return &Normalizer{now: time.Now}
}

// Normalize converts one raw decoded record into an Event, or nil when the
// record is filtered. It never fails on missing optional fields.
func (n *Normalizer) Normalize(raw map[string]interface{}, source Source) *models.Event {
	switch source {
	case SourceShell:
		return n.normalizeShell(raw)
	case SourceHTTP, SourceFTP:
		return n.normalizeTrap(raw, source)
	}
	return nil
}

func (n *Normalizer) normalizeShell(raw map[string]interface{}) *models.Event {
	kind := Kind(getString(raw, "eventid"))
	if kind == "" || Filtered(kind) {
		return nil
	}

	ev := &models.Event{
		EventType: string(kind),
		Timestamp: n.parseTimestamp(getString(raw, "timestamp")),
		SourceIP:  fallbackIP(getString(raw, "src_ip", "src_host")),
		SessionID: getString(raw, "session"),
		Sensor:    defaultStr(getString(raw, "sensor"), "cowrie"),
		Protocol:  defaultStr(getString(raw, "protocol"), "ssh"),
		Message:   getString(raw, "message"),
	}

	switch kind {
	case KindLoginSuccess, KindLoginFailed:
		ev.Username = getString(raw, "username")
		ev.Password = getString(raw, "password")
	case KindCommandInput:
		ev.Command = getString(raw, "input")
		ev.Input = ev.Command
	case KindSessionConnect, KindClientVersion:
		ev.ClientVersion = getString(raw, "version")
	case KindSessionClosed:
		ev.Duration = getFloat(raw, "duration")
	case KindFileDownload:
		ev.FileURL = getString(raw, "url")
		ev.FileOutfile = getString(raw, "outfile")
		ev.FileHash = getString(raw, "shasum")
	case KindTCPIPRequest:
		ev.DstIP = getString(raw, "dst_ip")
		ev.DstPort = getInt(raw, "dst_port")
	}

	return ev
}

func (n *Normalizer) normalizeTrap(raw map[string]interface{}, source Source) *models.Event {
	kind := getString(raw, "eventType", "type")
	if kind == "" {
		kind = string(source) + ".request"
	}

	ev := &models.Event{
		EventType:  kind,
		Timestamp:  n.parseTimestamp(getString(raw, "timestamp")),
		SourceIP:   fallbackIP(getString(raw, "sourceIP", "src_ip", "source_ip")),
		SourcePort: getInt(raw, "sourcePort", "src_port", "source_port"),
		DestPort:   getInt(raw, "destination_port"),
		Protocol:   defaultStr(getString(raw, "protocol"), strings.ToUpper(string(source))),
		Sensor:     defaultStr(getString(raw, "sensor"), string(source)+"_honeypot"),
		SessionID:  getString(raw, "session"),
		Username:   getString(raw, "username"),
		Password:   getString(raw, "password"),
		Command:    getString(raw, "command", "path", "method"),
		Input:      getString(raw, "body", "request", "command", "payload"),
		Message:    getString(raw, "message"),
	}

	if ev.DestPort == 0 {
		ev.DestPort = defaultPort(source)
	}
	if ev.SessionID == "" {
		ev.SessionID = fmt.Sprintf("%s-%d", source, n.now().UnixNano())
	}
	if ev.Message == "" {
		ev.Message = synthesizeMessage(raw, source)
	}

	return ev
}

func synthesizeMessage(raw map[string]interface{}, source Source) string {
	switch source {
	case SourceHTTP:
		method := defaultStr(getString(raw, "method"), "GET")
		path := defaultStr(getString(raw, "path"), "/")
		return method + " " + path
	case SourceFTP:
		cmd := getString(raw, "command", "action")
		if cmd == "" {
			cmd = "command"
		}
		return "FTP: " + cmd
	}
	return ""
}

func defaultPort(source Source) int {
	switch source {
	case SourceHTTP:
		return 8080
	case SourceFTP:
		return 2121
	}
	return 0
}

// parseTimestamp accepts RFC3339 variants plus a few lenient layouts and
// falls back to ingestion time.
func (n *Normalizer) parseTimestamp(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return n.now()
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC()
		}
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.000000",
		"2006-01-02 15:04:05.000",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t
		}
	}
	return n.now()
}

func fallbackIP(ip string) string {
	if strings.TrimSpace(ip) == "" {
		return "unknown"
	}
	return ip
}

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func getString(root map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		v, ok := root[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case string:
			if val != "" {
				return val
			}
		case fmt.Stringer:
			return val.String()
		case int:
			return fmt.Sprintf("%d", val)
		case int64:
			return fmt.Sprintf("%d", val)
		case float64:
			if val == float64(int64(val)) {
				return fmt.Sprintf("%d", int64(val))
			}
			return fmt.Sprintf("%f", val)
		}
	}
	return ""
}

func getInt(root map[string]interface{}, keys ...string) int {
	for _, key := range keys {
		v, ok := root[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case int:
			return val
		case int64:
			return int(val)
		case float64:
			return int(val)
		case string:
			var parsed int
			if _, err := fmt.Sscanf(val, "%d", &parsed); err == nil {
				return parsed
			}
		}
	}
	return 0
}

func getFloat(root map[string]interface{}, keys ...string) float64 {
	for _, key := range keys {
		v, ok := root[key]
		if !ok {
			continue
		}
		switch val := v.(type) {
		case float64:
			return val
		case int:
			return float64(val)
		case int64:
			return float64(val)
		case string:
			var parsed float64
			if _, err := fmt.Sscanf(val, "%g", &parsed); err == nil {
				return parsed
			}
		}
	}
	return 0
}
