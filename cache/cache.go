// Package cache provides the content-addressed verification cache. Keys are
// derived from the order- and case-normalized request, scoped by artifact
// kind. Caching is an optimization, never a correctness dependency: backend
// errors are logged and treated as misses.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/platewise/platewise/recipe"
)

// DefaultTTL is how long a verified result stays valid.
const DefaultTTL = time.Hour

// noHintSentinel stands in for an absent type hint so "no hint" hashes
// differently from an empty-string item.
const noHintSentinel = "\x00none"

// ErrMiss signals a key not present (or expired) in the backend.
var ErrMiss = errors.New("cache miss")

// Backend is the swappable storage boundary: get/set-with-TTL over a string
// key and an opaque serialized value. Implementations must be safe for
// concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Key derives the deterministic cache key for a request. Items are trimmed
// and lower-cased then sorted, so the key is invariant under permutation
// and case changes of the input list. The artifact kind prefixes the digest
// to avoid cross-kind collisions.
func Key(kind recipe.Kind, items []string, typeHint string) string {
	norm := make([]string, 0, len(items))
	for _, it := range items {
		norm = append(norm, strings.ToLower(strings.TrimSpace(it)))
	}
	sort.Strings(norm)

	hint := strings.ToLower(strings.TrimSpace(typeHint))
	if hint == "" {
		hint = noHintSentinel
	}

	digest := sha256.Sum256([]byte(strings.Join(norm, "\x1f") + "\x1f" + hint))
	return string(kind) + ":" + hex.EncodeToString(digest[:])
}

// Store wraps a Backend with response serialization and miss-on-error
// semantics.
type Store struct {
	backend Backend
	ttl     time.Duration
	logger  *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithTTL overrides the default entry TTL.
func WithTTL(ttl time.Duration) StoreOption {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithLogger sets the logger for backend failures.
func WithLogger(logger *slog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a Store over the given backend.
func NewStore(backend Backend, opts ...StoreOption) *Store {
	s := &Store{
		backend: backend,
		ttl:     DefaultTTL,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TTL returns the configured entry lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get returns the cached response for a key, or (nil, false) on a miss.
// Backend errors are logged and reported as misses.
func (s *Store) Get(ctx context.Context, key string) (*recipe.Response, bool) {
	data, err := s.backend.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrMiss) {
			s.logger.Warn("Cache read failed, treating as miss", "key", key, "error", err)
		}
		return nil, false
	}

	var resp recipe.Response
	if err := json.Unmarshal(data, &resp); err != nil {
		s.logger.Warn("Cached value undecodable, treating as miss", "key", key, "error", err)
		return nil, false
	}
	return &resp, true
}

// Put stores a response under a key. The whole entry is replaced; cached
// values are never mutated in place. Backend errors are logged, not raised.
func (s *Store) Put(ctx context.Context, key string, resp *recipe.Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("Cache encode failed, skipping write", "key", key, "error", err)
		return
	}
	if err := s.backend.Set(ctx, key, data, s.ttl); err != nil {
		s.logger.Warn("Cache write failed", "key", key, "error", err)
	}
}
