package worker

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/bus"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/rulesvc"
)

type countingOrigin struct {
	mu      sync.Mutex
	calls   int
	version string
}

func (o *countingOrigin) FetchActive(ctx context.Context, tenantID string, key domain.RulesetKey) (*domain.Ruleset, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.calls++
	return &domain.Ruleset{
		ID:             "rs-" + o.version,
		TenantID:       tenantID,
		Domain:         key.Domain,
		Jurisdiction:   key.Jurisdiction,
		RulesetVersion: o.version,
		Status:         domain.StatusActive,
	}, nil
}

func (o *countingOrigin) setVersion(v string) {
	o.mu.Lock()
	o.version = v
	o.mu.Unlock()
}

func TestInvalidatorDropsCacheOnPublishEvent(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"
	key := domain.RulesetKey{Domain: "icc.ucp600", Jurisdiction: "global"}

	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	origin := &countingOrigin{version: "1"}
	svc := rulesvc.New(cache.NewLRUCache(100), origin, domain.RulesServiceConfig{
		TTL: time.Hour,
	}, nil, nil)

	w := NewInvalidator(eventBus, svc, nil)
	if err := w.Start([]string{tenantID}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	// Prime the cache with version 1.
	rs, _, err := svc.ActiveRuleset(ctx, tenantID, key)
	if err != nil {
		t.Fatalf("ActiveRuleset failed: %v", err)
	}
	if rs.RulesetVersion != "1" {
		t.Fatalf("expected version 1, got %s", rs.RulesetVersion)
	}

	// Publish version 2 and emit the event the publisher would.
	origin.setVersion("2")
	payload, _ := json.Marshal(domain.RulesetPublishedEvent{
		TenantID:       tenantID,
		Domain:         key.Domain,
		Jurisdiction:   key.Jurisdiction,
		RulesetVersion: "2",
	})
	if err := eventBus.Publish(ctx, tenantID, domain.TopicRulesetPublished, payload); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	// The TTL is an hour, so only the invalidation can surface version 2.
	deadline := time.Now().Add(time.Second)
	for {
		rs, _, err = svc.ActiveRuleset(ctx, tenantID, key)
		if err != nil {
			t.Fatalf("ActiveRuleset failed: %v", err)
		}
		if rs.RulesetVersion == "2" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("cache never invalidated; still serving version %s", rs.RulesetVersion)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestInvalidatorIgnoresMalformedEvent(t *testing.T) {
	ctx := context.Background()
	tenantID := "tenant-001"

	eventBus := bus.NewChannelBus(10)
	defer eventBus.Close()

	origin := &countingOrigin{version: "1"}
	svc := rulesvc.New(cache.NewLRUCache(100), origin, domain.RulesServiceConfig{
		TTL: time.Hour,
	}, nil, nil)

	w := NewInvalidator(eventBus, svc, nil)
	if err := w.Start([]string{tenantID}); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer w.Stop()

	if err := eventBus.Publish(ctx, tenantID, domain.TopicRulesetPublished, []byte("not-json")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	// Worker must survive the bad payload and keep serving.
	time.Sleep(50 * time.Millisecond)
	if _, _, err := svc.ActiveRuleset(ctx, tenantID, domain.RulesetKey{Domain: "icc.ucp600", Jurisdiction: "global"}); err != nil {
		t.Fatalf("ActiveRuleset failed after malformed event: %v", err)
	}
}
