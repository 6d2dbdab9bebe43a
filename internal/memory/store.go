package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/circuitbreaker"
	"github.com/kestrel-ops/kestrel/internal/metrics"
)

// Store is the memory store adapter. It translates (memory type, actor,
// session, query) into namespaced append-only operations against Redis and
// insulates the rest of the system from the raw client.
//
// A memory outage must never abort an investigation: Save reports failure as
// a boolean and Retrieve degrades to an empty result. Callers treat empty as
// "no information", never as an error signal.
type Store struct {
	client     *circuitbreaker.RedisWrapper
	logger     *zap.Logger
	ttl        time.Duration
	maxPerSpace int64
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithTTL overrides the record expiry policy.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) { s.ttl = ttl }
}

// WithMaxRecords caps how many records a namespace retains.
func WithMaxRecords(n int64) StoreOption {
	return func(s *Store) { s.maxPerSpace = n }
}

// NewStore creates a memory store adapter over a circuit-breaker wrapped
// Redis client.
func NewStore(client *circuitbreaker.RedisWrapper, logger *zap.Logger, opts ...StoreOption) *Store {
	s := &Store{
		client:      client,
		logger:      logger,
		ttl:         30 * 24 * time.Hour,
		maxPerSpace: 500,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Save appends one event to the store. It returns false (and logs a warning)
// on any failure, including caller mistakes; nothing escapes this boundary.
func (s *Store) Save(ctx context.Context, memType Type, actorID string, payload map[string]interface{}, sessionID string) bool {
	if s == nil || s.client == nil {
		return false
	}

	if memType == TypePreferences {
		sessionID = "" // preferences never carry a session scope
	} else if requiresSession(memType) && sessionID == "" {
		s.logger.Warn("Memory save missing required session id",
			zap.String("memory_type", string(memType)),
			zap.String("actor_id", actorID),
		)
		metrics.MemorySaves.WithLabelValues(string(memType), "invalid").Inc()
		return false
	}

	ns, err := Namespace(memType, actorID, sessionID)
	if err != nil {
		s.logger.Warn("Memory save rejected", zap.Error(err), zap.String("memory_type", string(memType)))
		metrics.MemorySaves.WithLabelValues(string(memType), "invalid").Inc()
		return false
	}

	rec := Record{
		ID:        uuid.New().String(),
		Namespace: ns,
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		s.logger.Warn("Memory record marshal failed", zap.Error(err), zap.String("namespace", ns))
		metrics.MemorySaves.WithLabelValues(string(memType), "error").Inc()
		return false
	}

	key := s.key(ns)
	if err := s.client.RPush(ctx, key, data).Err(); err != nil {
		s.logger.Warn("Memory save failed",
			zap.String("namespace", ns),
			zap.Error(err),
		)
		metrics.MemorySaves.WithLabelValues(string(memType), "error").Inc()
		return false
	}

	// Retention is best-effort; a failed trim or expire does not fail the save.
	if s.maxPerSpace > 0 {
		_ = s.client.LTrim(ctx, key, -s.maxPerSpace, -1).Err()
	}
	if s.ttl > 0 {
		_ = s.client.Expire(ctx, key, s.ttl).Err()
	}

	metrics.MemorySaves.WithLabelValues(string(memType), "ok").Inc()
	return true
}

// Retrieve returns up to maxResults records matching the query, most relevant
// first. An empty sessionID requests the cross-session scope for the
// session-scoped types; for preferences the session is always ignored.
// Any failure yields an empty slice.
func (s *Store) Retrieve(ctx context.Context, memType Type, actorID, query string, maxResults int, sessionID string) []Record {
	if s == nil || s.client == nil {
		return nil
	}
	if maxResults <= 0 {
		maxResults = 10
	}

	scope := "session"
	if memType == TypePreferences || sessionID == "" {
		scope = "cross_session"
	}
	if memType == TypePreferences {
		sessionID = ""
	}

	ns, err := Namespace(memType, actorID, sessionID)
	if err != nil {
		s.logger.Warn("Memory retrieve rejected", zap.Error(err), zap.String("memory_type", string(memType)))
		metrics.RecordMemoryFetch(string(memType), scope, "error", 0)
		return nil
	}

	keys := []string{s.key(ns)}
	if sessionID == "" && requiresSession(memType) {
		// Cross-session: the actor-level namespace plus every session
		// namespace under it.
		pattern := s.key(ns) + "/*"
		if extra, err := s.client.Keys(ctx, pattern).Result(); err == nil {
			keys = append(keys, extra...)
		} else {
			s.logger.Warn("Memory cross-session key scan failed", zap.String("pattern", pattern), zap.Error(err))
		}
	}

	var records []Record
	for _, key := range keys {
		raw, err := s.client.LRange(ctx, key, 0, -1).Result()
		if err != nil {
			s.logger.Warn("Memory retrieve failed",
				zap.String("key", key),
				zap.Error(err),
			)
			continue
		}
		for _, item := range raw {
			var rec Record
			if err := json.Unmarshal([]byte(item), &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
	}

	if len(records) == 0 {
		metrics.RecordMemoryFetch(string(memType), scope, "miss", 0)
		return nil
	}

	records = rankByRelevance(records, query)
	if len(records) > maxResults {
		records = records[:maxResults]
	}

	metrics.RecordMemoryFetch(string(memType), scope, "hit", len(records))
	return records
}

// Healthy reports whether the underlying client currently accepts requests.
func (s *Store) Healthy(ctx context.Context) bool {
	if s == nil || s.client == nil {
		return false
	}
	return s.client.Ping(ctx).Err() == nil
}

func (s *Store) key(namespace string) string {
	return "memory:" + namespace
}

// rankByRelevance orders records by word overlap with the query, breaking
// ties by recency. An empty query sorts purely by recency.
func rankByRelevance(records []Record, query string) []Record {
	type scored struct {
		rec   Record
		score float64
	}

	queryTokens := tokenSet(query)
	items := make([]scored, 0, len(records))
	for _, rec := range records {
		items = append(items, scored{rec: rec, score: overlapScore(queryTokens, rec)})
	}

	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].rec.CreatedAt.After(items[j].rec.CreatedAt)
	})

	out := make([]Record, len(items))
	for i, it := range items {
		out[i] = it.rec
	}
	return out
}

func overlapScore(queryTokens map[string]bool, rec Record) float64 {
	if len(queryTokens) == 0 {
		return 0
	}
	data, err := json.Marshal(rec.Payload)
	if err != nil {
		return 0
	}
	recTokens := tokenSet(string(data))
	if len(recTokens) == 0 {
		return 0
	}
	common := 0
	for tok := range queryTokens {
		if recTokens[tok] {
			common++
		}
	}
	return float64(common) / float64(len(queryTokens))
}

func tokenSet(text string) map[string]bool {
	fields := strings.Fields(strings.ToLower(text))
	out := make(map[string]bool, len(fields))
	for _, f := range fields {
		f = strings.Trim(f, `.,:;"'{}[]()`)
		if f != "" {
			out[f] = true
		}
	}
	return out
}
