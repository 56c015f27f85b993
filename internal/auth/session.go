package auth

import (
	"sync"
	"time"
)

// trackedToken is the bookkeeping entry for one issued session token.
type trackedToken struct {
	sessionID string
	expiresAt time.Time
	revoked   bool
}

// TokenStore tracks every bearer token a TokenIssuer has minted, so a
// token can be revoked before its natural expiry (e.g. when its
// DebugSession is torn down) and so expired entries are reclaimed in the
// background instead of accumulating forever.
type TokenStore struct {
	mu              sync.RWMutex
	tokens          map[string]*trackedToken
	tokenOrder      []string // insertion order, for capacity eviction
	cleanupInterval time.Duration
	maxTokens       int
	stopCleanup     chan struct{}
	stopOnce        sync.Once
}

// TokenStoreConfig configures a TokenStore.
type TokenStoreConfig struct {
	CleanupInterval time.Duration
	MaxTokens       int
}

// NewTokenStore creates a TokenStore with the given config, starting a
// background goroutine that reclaims expired entries.
func NewTokenStore(cfg TokenStoreConfig) *TokenStore {
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1000
	}

	ts := &TokenStore{
		tokens:          make(map[string]*trackedToken),
		tokenOrder:      make([]string, 0),
		cleanupInterval: cfg.CleanupInterval,
		maxTokens:       cfg.MaxTokens,
		stopCleanup:     make(chan struct{}),
	}

	go ts.cleanup()

	return ts
}

// Track records a newly issued token. The oldest token is evicted once
// the store is at capacity (LRU by issuance order), mirroring how a
// single-process token store should bound its own memory.
func (ts *TokenStore) Track(token, sessionID string, expiresAt time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	for len(ts.tokens) >= ts.maxTokens && len(ts.tokenOrder) > 0 {
		oldest := ts.tokenOrder[0]
		ts.tokenOrder = ts.tokenOrder[1:]
		delete(ts.tokens, oldest)
	}

	ts.tokens[token] = &trackedToken{sessionID: sessionID, expiresAt: expiresAt}
	ts.tokenOrder = append(ts.tokenOrder, token)
}

// Revoke marks token as no longer usable, independent of its expiry.
func (ts *TokenStore) Revoke(token string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.tokens[token]; ok {
		t.revoked = true
	}
}

// RevokeSession revokes every tracked token scoped to sessionID, for use
// when a DebugSession terminates.
func (ts *TokenStore) RevokeSession(sessionID string) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, t := range ts.tokens {
		if t.sessionID == sessionID {
			t.revoked = true
		}
	}
}

// IsRevoked reports whether token has been explicitly revoked or is
// untracked (a token this store never issued is treated as revoked, not
// merely unknown, since the validator only consults a store it trusts).
func (ts *TokenStore) IsRevoked(token string) bool {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	t, ok := ts.tokens[token]
	if !ok {
		return true
	}
	return t.revoked
}

// cleanup periodically reclaims expired tokens.
func (ts *TokenStore) cleanup() {
	ticker := time.NewTicker(ts.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ts.mu.Lock()
			now := time.Now()
			newOrder := make([]string, 0, len(ts.tokenOrder))
			for _, token := range ts.tokenOrder {
				t, exists := ts.tokens[token]
				if exists && now.After(t.expiresAt) {
					delete(ts.tokens, token)
				} else if exists {
					newOrder = append(newOrder, token)
				}
			}
			ts.tokenOrder = newOrder
			ts.mu.Unlock()
		case <-ts.stopCleanup:
			return
		}
	}
}

// Stop stops the cleanup goroutine. Safe to call more than once.
func (ts *TokenStore) Stop() {
	ts.stopOnce.Do(func() { close(ts.stopCleanup) })
}

// Count returns the number of currently tracked tokens.
func (ts *TokenStore) Count() int {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return len(ts.tokens)
}
