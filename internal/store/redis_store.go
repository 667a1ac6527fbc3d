package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"decoynet/internal/normalize"
	"decoynet/pkg/models"
)

// Config configures Redis access for pipeline state.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisStore persists events, session/attacker aggregates, adaptation audit
// records and campaigns. Counter updates use HINCRBY so concurrent watchers
// touching the same key serialize at the storage boundary instead of racing
// in process.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore constructs a Redis-backed store and verifies connectivity.
func NewRedisStore(cfg Config) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "decoynet"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisStore{client: client, prefix: strings.TrimSpace(cfg.KeyPrefix)}, nil
}

// PersistEvent writes one event and indexes it by timestamp, returning the
// assigned id.
func (s *RedisStore) PersistEvent(ctx context.Context, ev *models.Event) (string, error) {
	id := uuid.NewString()

	fields := map[string]interface{}{
		"event_type": ev.EventType,
		"timestamp":  ev.Timestamp.UTC().Format(time.RFC3339Nano),
		"source_ip":  ev.SourceIP,
	}
	setIf := func(k, v string) {
		if v != "" {
			fields[k] = v
		}
	}
	setIf("session_id", ev.SessionID)
	setIf("sensor", ev.Sensor)
	setIf("protocol", ev.Protocol)
	setIf("username", ev.Username)
	setIf("password", ev.Password)
	setIf("command", ev.Command)
	setIf("input_data", ev.Input)
	setIf("message", ev.Message)
	setIf("client_version", ev.ClientVersion)
	setIf("file_url", ev.FileURL)
	setIf("file_shasum", ev.FileHash)
	if ev.SourcePort > 0 {
		fields["source_port"] = strconv.Itoa(ev.SourcePort)
	}
	if ev.DestPort > 0 {
		fields["destination_port"] = strconv.Itoa(ev.DestPort)
	}

	pipe := s.client.Pipeline()
	pipe.HSet(ctx, s.eventKey(id), fields)
	pipe.ZAdd(ctx, s.eventsByTSKey(), redis.Z{Score: float64(ev.Timestamp.Unix()), Member: id})
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("persist event: %w", err)
	}
	return id, nil
}

// UpdateEventClassification writes the classification fields exactly once.
func (s *RedisStore) UpdateEventClassification(ctx context.Context, id string, severity models.Severity, score float64, label string) error {
	err := s.client.HSet(ctx, s.eventKey(id),
		"severity", string(severity),
		"anomaly_score", strconv.FormatFloat(score, 'f', -1, 64),
		"label", label,
		"is_analyzed", "1",
		"analyzed_at", strconv.FormatInt(time.Now().Unix(), 10),
	).Err()
	if err != nil {
		return fmt.Errorf("update event classification: %w", err)
	}
	return nil
}

// ApplySessionEvent upserts the session aggregate for one event. Creation
// and increments ride the same pipeline; all counter math happens in Redis.
func (s *RedisStore) ApplySessionEvent(ctx context.Context, ev *models.Event) error {
	if ev.SessionID == "" {
		return nil
	}
	key := s.sessionKey(ev.SessionID)
	ts := ev.Timestamp.UTC().Format(time.RFC3339Nano)

	pipe := s.client.Pipeline()
	pipe.HSetNX(ctx, key, "session_id", ev.SessionID)
	pipe.HSetNX(ctx, key, "source_ip", ev.SourceIP)
	pipe.HSetNX(ctx, key, "start_time", ts)
	pipe.HSetNX(ctx, key, "is_active", "1")
	pipe.HIncrBy(ctx, key, "event_count", 1)

	switch normalize.Kind(ev.EventType) {
	case normalize.KindCommandInput:
		pipe.HIncrBy(ctx, key, "command_count", 1)
	case normalize.KindLoginFailed:
		pipe.HIncrBy(ctx, key, "failed_login_count", 1)
	case normalize.KindLoginSuccess:
		pipe.HSet(ctx, key, "successful_login", "1")
	case normalize.KindSessionClosed:
		pipe.HSet(ctx, key, "end_time", ts, "is_active", "0")
	}
	if ev.ClientVersion != "" {
		pipe.HSet(ctx, key, "client_version", ev.ClientVersion)
		pipe.HIncrBy(ctx, s.clientVersionsKey(), ev.ClientVersion, 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert session %s: %w", ev.SessionID, err)
	}
	return nil
}

// ApplyAttackerEvent upserts the attacker profile for one event. First/last
// seen ride LT/GT sorted sets so unordered arrival cannot regress them.
func (s *RedisStore) ApplyAttackerEvent(ctx context.Context, ev *models.Event) error {
	ip := ev.SourceIP
	if ip == "" {
		return nil
	}
	key := s.attackerKey(ip)
	ts := float64(ev.Timestamp.Unix())

	pipe := s.client.Pipeline()
	pipe.HSetNX(ctx, key, "ip_address", ip)
	pipe.HIncrBy(ctx, key, "total_events", 1)
	pipe.ZAddArgs(ctx, s.attackersFirstKey(), redis.ZAddArgs{LT: true, Members: []redis.Z{{Score: ts, Member: ip}}})
	pipe.ZAddArgs(ctx, s.attackersLastKey(), redis.ZAddArgs{GT: true, Members: []redis.Z{{Score: ts, Member: ip}}})

	switch normalize.Kind(ev.EventType) {
	case normalize.KindLoginSuccess:
		pipe.HIncrBy(ctx, key, "successful_logins", 1)
	case normalize.KindLoginFailed:
		pipe.HIncrBy(ctx, key, "failed_logins", 1)
	case normalize.KindCommandInput:
		pipe.HIncrBy(ctx, key, "commands_executed", 1)
	case normalize.KindSessionConnect:
		pipe.HIncrBy(ctx, key, "total_sessions", 1)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert attacker %s: %w", ip, err)
	}
	return nil
}

// IncrAttackerSeverity bumps exactly one per-severity counter after an
// event's classification completes.
func (s *RedisStore) IncrAttackerSeverity(ctx context.Context, ip string, severity models.Severity) error {
	field := strings.ToLower(string(severity)) + "_severity_count"
	if err := s.client.HIncrBy(ctx, s.attackerKey(ip), field, 1).Err(); err != nil {
		return fmt.Errorf("incr attacker severity %s: %w", ip, err)
	}
	return nil
}

// SetAttackerNetwork records ASN/ISP enrichment for campaign grouping.
func (s *RedisStore) SetAttackerNetwork(ctx context.Context, ip, asn, isp string) error {
	if err := s.client.HSet(ctx, s.attackerKey(ip), "asn", asn, "isp", isp).Err(); err != nil {
		return fmt.Errorf("set attacker network %s: %w", ip, err)
	}
	return nil
}

// EventsSince returns events whose timestamp is on or after since, oldest
// first, up to limit.
func (s *RedisStore) EventsSince(ctx context.Context, since time.Time, limit int64) ([]models.Event, error) {
	if limit <= 0 {
		limit = 10000
	}
	ids, err := s.client.ZRangeByScore(ctx, s.eventsByTSKey(), &redis.ZRangeBy{
		Min:   strconv.FormatInt(since.Unix(), 10),
		Max:   "+inf",
		Count: limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read event index: %w", err)
	}

	events := make([]models.Event, 0, len(ids))
	for _, id := range ids {
		hash, err := s.client.HGetAll(ctx, s.eventKey(id)).Result()
		if err != nil || len(hash) == 0 {
			continue
		}
		events = append(events, eventFromHash(id, hash))
	}
	return events, nil
}

// RecentAttackers returns attacker profiles last seen on or after since.
func (s *RedisStore) RecentAttackers(ctx context.Context, since time.Time) ([]models.Attacker, error) {
	ips, err := s.client.ZRangeByScore(ctx, s.attackersLastKey(), &redis.ZRangeBy{
		Min: strconv.FormatInt(since.Unix(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("read attacker index: %w", err)
	}

	out := make([]models.Attacker, 0, len(ips))
	for _, ip := range ips {
		hash, err := s.client.HGetAll(ctx, s.attackerKey(ip)).Result()
		if err != nil || len(hash) == 0 {
			continue
		}
		a := attackerFromHash(ip, hash)
		if first, err := s.client.ZScore(ctx, s.attackersFirstKey(), ip).Result(); err == nil && first > 0 {
			a.FirstSeen = time.Unix(int64(first), 0).UTC()
		}
		if last, err := s.client.ZScore(ctx, s.attackersLastKey(), ip).Result(); err == nil && last > 0 {
			a.LastSeen = time.Unix(int64(last), 0).UTC()
		}
		out = append(out, a)
	}
	return out, nil
}

// AppendAdaptation appends one audit record. Records are never mutated.
func (s *RedisStore) AppendAdaptation(ctx context.Context, a *models.Adaptation) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	data, err := marshalJSON(a)
	if err != nil {
		return fmt.Errorf("encode adaptation: %w", err)
	}
	if err := s.client.RPush(ctx, s.adaptationsKey(), data).Err(); err != nil {
		return fmt.Errorf("append adaptation: %w", err)
	}
	return nil
}

// Adaptations returns the most recent audit records, newest last.
func (s *RedisStore) Adaptations(ctx context.Context, limit int64) ([]models.Adaptation, error) {
	if limit <= 0 {
		limit = 100
	}
	raws, err := s.client.LRange(ctx, s.adaptationsKey(), -limit, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read adaptations: %w", err)
	}
	out := make([]models.Adaptation, 0, len(raws))
	for _, raw := range raws {
		var a models.Adaptation
		if err := unmarshalJSON([]byte(raw), &a); err != nil {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// UpsertCampaign creates or refreshes the campaign keyed by
// (type, indicator). Repeated detections refresh, never duplicate.
func (s *RedisStore) UpsertCampaign(ctx context.Context, c *models.Campaign) error {
	key := s.campaignKey(c.Type, c.Indicator)
	ips, err := marshalJSON(c.IPs)
	if err != nil {
		return fmt.Errorf("encode campaign ips: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.HSetNX(ctx, key, "id", uuid.NewString())
	pipe.HSetNX(ctx, key, "campaign_type", string(c.Type))
	pipe.HSetNX(ctx, key, "indicator", c.Indicator)
	pipe.HSetNX(ctx, key, "first_seen", c.FirstSeen.UTC().Format(time.RFC3339Nano))
	pipe.HSetNX(ctx, key, "detected_at", c.DetectedAt.UTC().Format(time.RFC3339Nano))
	pipe.HSet(ctx, key,
		"ip_count", strconv.Itoa(c.IPCount),
		"ip_list", string(ips),
		"last_seen", c.LastSeen.UTC().Format(time.RFC3339Nano),
		"event_count", strconv.FormatInt(c.EventCount, 10),
		"confidence", strconv.FormatFloat(c.Confidence, 'f', -1, 64),
		"is_active", "1",
	)
	pipe.ZAdd(ctx, s.campaignsKey(), redis.Z{Score: float64(c.LastSeen.Unix()), Member: campaignMember(c.Type, c.Indicator)})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("upsert campaign %s: %w", c.Key(), err)
	}
	return nil
}

// DeactivateCampaignsBefore marks campaigns whose last_seen is older than
// cutoff inactive, returning how many flipped.
func (s *RedisStore) DeactivateCampaignsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	members, err := s.client.ZRangeByScore(ctx, s.campaignsKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(cutoff.Unix(), 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("read campaign index: %w", err)
	}

	flipped := 0
	for _, member := range members {
		typ, indicator, ok := splitCampaignMember(member)
		if !ok {
			continue
		}
		key := s.campaignKey(typ, indicator)
		active, err := s.client.HGet(ctx, key, "is_active").Result()
		if err != nil || active != "1" {
			continue
		}
		if err := s.client.HSet(ctx, key, "is_active", "0").Err(); err == nil {
			flipped++
		}
	}
	return flipped, nil
}

// ActiveCampaigns returns all currently active campaign records.
func (s *RedisStore) ActiveCampaigns(ctx context.Context) ([]models.Campaign, error) {
	members, err := s.client.ZRange(ctx, s.campaignsKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read campaign index: %w", err)
	}
	out := make([]models.Campaign, 0, len(members))
	for _, member := range members {
		typ, indicator, ok := splitCampaignMember(member)
		if !ok {
			continue
		}
		hash, err := s.client.HGetAll(ctx, s.campaignKey(typ, indicator)).Result()
		if err != nil || len(hash) == 0 || hash["is_active"] != "1" {
			continue
		}
		out = append(out, campaignFromHash(typ, indicator, hash))
	}
	return out, nil
}

// ClientVersionCounts returns the observed client-version distribution used
// for banner selection.
func (s *RedisStore) ClientVersionCounts(ctx context.Context) (map[string]int64, error) {
	hash, err := s.client.HGetAll(ctx, s.clientVersionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("read client versions: %w", err)
	}
	out := make(map[string]int64, len(hash))
	for version, count := range hash {
		n, _ := strconv.ParseInt(count, 10, 64)
		out[version] = n
	}
	return out, nil
}

// Close closes Redis resources.
func (s *RedisStore) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

func (s *RedisStore) eventKey(id string) string    { return s.prefix + ":event:" + id }
func (s *RedisStore) eventsByTSKey() string        { return s.prefix + ":events_by_ts" }
func (s *RedisStore) sessionKey(sid string) string { return s.prefix + ":session:" + sid }
func (s *RedisStore) attackerKey(ip string) string { return s.prefix + ":attacker:" + ip }
func (s *RedisStore) attackersFirstKey() string    { return s.prefix + ":attackers_first" }
func (s *RedisStore) attackersLastKey() string     { return s.prefix + ":attackers_last" }
func (s *RedisStore) adaptationsKey() string       { return s.prefix + ":adaptations" }
func (s *RedisStore) campaignsKey() string         { return s.prefix + ":campaigns" }
func (s *RedisStore) clientVersionsKey() string    { return s.prefix + ":client_versions" }

func (s *RedisStore) campaignKey(typ models.CampaignType, indicator string) string {
	return s.prefix + ":campaign:" + campaignMember(typ, indicator)
}

func campaignMember(typ models.CampaignType, indicator string) string {
	return string(typ) + "|" + indicator
}

func splitCampaignMember(member string) (models.CampaignType, string, bool) {
	parts := strings.SplitN(member, "|", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", false
	}
	return models.CampaignType(parts[0]), parts[1], true
}
