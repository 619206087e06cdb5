// Package rulesvc serves active rulesets to the evaluation pipeline,
// caching them with a bounded TTL so rule amendments propagate without
// a redeploy and the hot path stays off the origin.
package rulesvc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
)

// ErrRulesetUnavailable is returned when no active ruleset can be obtained
// for a scope: the origin failed and no cached copy is servable.
var ErrRulesetUnavailable = errors.New("no active ruleset available")

// staleFactor extends the cache retention beyond the freshness TTL so an
// expired entry is still around to serve when the origin is down.
const staleFactor = 12

// Service is the caching front for active rulesets. Freshness is tracked
// per scope against the injected clock; expired entries are refreshed
// through singleflight so concurrent evaluations trigger one origin fetch.
type Service struct {
	cache      domain.Cache
	origin     Origin
	ttl        time.Duration
	serveStale bool
	logger     *slog.Logger
	metrics    *metrics.Metrics

	clock func() time.Time
	sf    singleflight.Group

	mu      sync.Mutex
	fetched map[string]time.Time
}

// New creates a rules service. Metrics may be nil.
func New(cache domain.Cache, origin Origin, cfg domain.RulesServiceConfig, logger *slog.Logger, m *metrics.Metrics) *Service {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cache:      cache,
		origin:     origin,
		ttl:        ttl,
		serveStale: cfg.ServeStale,
		logger:     logger,
		metrics:    m,
		clock:      time.Now,
		fetched:    make(map[string]time.Time),
	}
}

// ActiveRuleset returns the active ruleset for a scope. The second return
// is true when the entry is served stale: the TTL has lapsed and the origin
// could not be reached, but ServeStale policy allows the old copy.
func (s *Service) ActiveRuleset(ctx context.Context, tenantID string, key domain.RulesetKey) (*domain.Ruleset, bool, error) {
	if tenantID == "" {
		return nil, false, fmt.Errorf("tenantID is required")
	}

	scope := tenantID + "/" + key.String()

	if s.fresh(scope) {
		rs, err := s.cache.GetRuleset(ctx, tenantID, key)
		if err != nil {
			s.logger.Warn("ruleset cache read failed", "scope", scope, "error", err)
		}
		if rs != nil {
			s.metrics.IncrementRulesetCache("hit")
			return rs, false, nil
		}
		// Evicted under us; fall through to a refetch.
	}
	s.metrics.IncrementRulesetCache("miss")

	v, err, _ := s.sf.Do(scope, func() (any, error) {
		return s.refresh(ctx, tenantID, key, scope)
	})
	if err == nil {
		return v.(*domain.Ruleset), false, nil
	}

	// Origin failed. Serve the expired copy if policy allows.
	if s.serveStale {
		rs, cacheErr := s.cache.GetRuleset(ctx, tenantID, key)
		if cacheErr == nil && rs != nil {
			s.metrics.IncrementRulesetCache("stale")
			s.logger.Warn("serving stale ruleset", "scope", scope, "version", rs.RulesetVersion, "error", err)
			return rs, true, nil
		}
	}

	return nil, false, fmt.Errorf("%w: %s: %v", ErrRulesetUnavailable, scope, err)
}

// Invalidate drops the cached ruleset for a scope. Called from the publish
// path and from the invalidation worker on TopicRulesetPublished, so a new
// version is visible on the next evaluation rather than after the TTL.
func (s *Service) Invalidate(ctx context.Context, tenantID string, key domain.RulesetKey) {
	scope := tenantID + "/" + key.String()

	s.mu.Lock()
	delete(s.fetched, scope)
	s.mu.Unlock()

	if err := s.cache.DeleteRuleset(ctx, tenantID, key); err != nil {
		s.logger.Warn("ruleset cache invalidation failed", "scope", scope, "error", err)
	}
	s.logger.Info("ruleset cache invalidated", "scope", scope)
}

func (s *Service) refresh(ctx context.Context, tenantID string, key domain.RulesetKey, scope string) (*domain.Ruleset, error) {
	start := s.clock()
	rs, err := s.origin.FetchActive(ctx, tenantID, key)
	s.metrics.ObserveOriginLatency(s.clock().Sub(start))
	if err != nil {
		s.metrics.IncrementOriginError()
		return nil, err
	}

	retention := s.ttl
	if s.serveStale {
		retention = s.ttl * staleFactor
	}
	if err := s.cache.SetRuleset(ctx, tenantID, key, rs, retention); err != nil {
		s.logger.Warn("ruleset cache write failed", "scope", scope, "error", err)
	}

	s.mu.Lock()
	s.fetched[scope] = s.clock()
	s.mu.Unlock()

	return rs, nil
}

func (s *Service) fresh(scope string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	at, ok := s.fetched[scope]
	return ok && s.clock().Sub(at) < s.ttl
}
