package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kestrel-ops/kestrel/internal/circuitbreaker"
	"github.com/kestrel-ops/kestrel/internal/metrics"
)

// Manager handles session persistence with a Redis backend and a local LRU
// cache in front of it. The Redis client is injected; the manager never
// constructs its own connections.
type Manager struct {
	client      *circuitbreaker.RedisWrapper
	logger      *zap.Logger
	ttl         time.Duration
	maxHistory  int
	mu          sync.RWMutex
	localCache  map[string]*Session
	cacheAccess map[string]time.Time
	maxSessions int
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithTTL overrides the session expiry.
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) { m.ttl = ttl }
}

// WithMaxHistory caps how many history messages a session retains.
func WithMaxHistory(n int) ManagerOption {
	return func(m *Manager) { m.maxHistory = n }
}

// NewManager creates a session manager over a circuit-breaker wrapped Redis
// client.
func NewManager(client *circuitbreaker.RedisWrapper, logger *zap.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		client:      client,
		logger:      logger,
		ttl:         24 * time.Hour,
		maxHistory:  100,
		localCache:  make(map[string]*Session),
		cacheAccess: make(map[string]time.Time),
		maxSessions: 10000,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// GetOrCreate returns the session with the given ID if it exists and belongs
// to userID, or creates it. A session ID owned by a different user is never
// reused; a fresh ID is generated instead.
func (m *Manager) GetOrCreate(ctx context.Context, sessionID, userID, actorID string) (*Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if actorID == "" {
		actorID = userID
	}
	if sessionID == "" {
		return m.create(ctx, uuid.New().String(), userID, actorID)
	}

	existing, err := m.Get(ctx, sessionID)
	if err == nil {
		if existing.UserID != userID {
			m.logger.Warn("Session ID owned by different user, generating new ID",
				zap.String("requested_session_id", sessionID),
				zap.String("requesting_user", userID),
			)
			return m.create(ctx, uuid.New().String(), userID, actorID)
		}
		return existing, nil
	}
	if err != ErrSessionNotFound && err != ErrSessionExpired {
		return nil, err
	}
	return m.create(ctx, sessionID, userID, actorID)
}

func (m *Manager) create(ctx context.Context, sessionID, userID, actorID string) (*Session, error) {
	now := time.Now()
	session := &Session{
		ID:        sessionID,
		UserID:    userID,
		ActorID:   actorID,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(m.ttl),
		Metadata:  make(map[string]interface{}),
		History:   make([]Message, 0),
	}

	if err := m.save(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}
	m.cachePut(session)

	m.logger.Info("Created new session",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID),
	)
	metrics.SessionsCreated.Inc()
	return session, nil
}

// Get retrieves a session by ID.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	m.mu.RLock()
	if session, ok := m.localCache[sessionID]; ok {
		m.mu.RUnlock()
		metrics.SessionCacheHits.Inc()
		if session.IsExpired() {
			_ = m.Delete(ctx, sessionID)
			return nil, ErrSessionExpired
		}
		m.mu.Lock()
		m.cacheAccess[sessionID] = time.Now()
		m.mu.Unlock()
		return session, nil
	}
	m.mu.RUnlock()
	metrics.SessionCacheMisses.Inc()

	data, err := m.client.Get(ctx, m.key(sessionID)).Bytes()
	if err == redis.Nil {
		return nil, ErrSessionNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if session.IsExpired() {
		_ = m.Delete(ctx, sessionID)
		return nil, ErrSessionExpired
	}

	m.cachePut(&session)
	return &session, nil
}

// Update persists a modified session.
func (m *Manager) Update(ctx context.Context, session *Session) error {
	if session == nil {
		return fmt.Errorf("session is nil")
	}
	session.UpdatedAt = time.Now()

	if err := m.save(ctx, session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	m.mu.Lock()
	m.localCache[session.ID] = session
	m.mu.Unlock()
	return nil
}

// AddMessage appends a message to session history, trimming to the
// configured cap.
func (m *Manager) AddMessage(ctx context.Context, sessionID string, msg Message) error {
	session, err := m.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}

	session.History = append(session.History, msg)
	if len(session.History) > m.maxHistory {
		session.History = session.History[len(session.History)-m.maxHistory:]
	}
	return m.Update(ctx, session)
}

// Rotate closes out a session after a save-report action and starts a fresh
// one for the same user and actor. Conversation history does not carry over;
// the new session records the ID it rotated from.
func (m *Manager) Rotate(ctx context.Context, sessionID string) (*Session, error) {
	old, err := m.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	fresh, err := m.create(ctx, uuid.New().String(), old.UserID, old.ActorID)
	if err != nil {
		return nil, err
	}
	fresh.RotatedFrom = old.ID
	if err := m.Update(ctx, fresh); err != nil {
		return nil, err
	}

	m.logger.Info("Rotated session",
		zap.String("old_session_id", old.ID),
		zap.String("new_session_id", fresh.ID),
	)
	return fresh, nil
}

// Delete removes a session.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	if err := m.client.Del(ctx, m.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	m.mu.Lock()
	delete(m.localCache, sessionID)
	delete(m.cacheAccess, sessionID)
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()
	return nil
}

// CleanupExpired removes expired sessions from Redis.
func (m *Manager) CleanupExpired(ctx context.Context) (int, error) {
	keys, err := m.client.Keys(ctx, "session:*").Result()
	if err != nil {
		return 0, fmt.Errorf("failed to list sessions: %w", err)
	}

	cleaned := 0
	for _, key := range keys {
		data, err := m.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var session Session
		if err := json.Unmarshal(data, &session); err != nil {
			continue
		}
		if session.IsExpired() {
			if err := m.client.Del(ctx, key).Err(); err == nil {
				cleaned++
			}
		}
	}

	m.logger.Info("Cleaned up expired sessions", zap.Int("count", cleaned))
	return cleaned, nil
}

// RedisWrapper exposes the underlying wrapper for health checks.
func (m *Manager) RedisWrapper() *circuitbreaker.RedisWrapper {
	return m.client
}

func (m *Manager) key(sessionID string) string {
	return "session:" + sessionID
}

func (m *Manager) save(ctx context.Context, session *Session) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		ttl = m.ttl
	}
	return m.client.Set(ctx, m.key(session.ID), data, ttl).Err()
}

func (m *Manager) cachePut(session *Session) {
	m.mu.Lock()
	m.localCache[session.ID] = session
	m.cacheAccess[session.ID] = time.Now()
	m.evictLocked()
	metrics.SessionCacheSize.Set(float64(len(m.localCache)))
	m.mu.Unlock()
}

// evictLocked removes the least recently accessed half of the cache once it
// exceeds maxSessions. Caller holds m.mu.
func (m *Manager) evictLocked() {
	if len(m.localCache) <= m.maxSessions {
		return
	}

	type accessEntry struct {
		id   string
		time time.Time
	}
	entries := make([]accessEntry, 0, len(m.localCache))
	for id := range m.localCache {
		entries = append(entries, accessEntry{id: id, time: m.cacheAccess[id]})
	}
	for i := 0; i < len(entries)-1; i++ {
		for j := i + 1; j < len(entries); j++ {
			if entries[j].time.Before(entries[i].time) {
				entries[i], entries[j] = entries[j], entries[i]
			}
		}
	}

	toRemove := m.maxSessions / 2
	for i := 0; i < toRemove && i < len(entries); i++ {
		delete(m.localCache, entries[i].id)
		delete(m.cacheAccess, entries[i].id)
		metrics.SessionCacheEvictions.Inc()
	}
}
