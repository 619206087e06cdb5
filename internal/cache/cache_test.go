package cache

import (
	"context"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestLRUCache(t *testing.T) {
	cache := NewLRUCache(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		err := cache.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute)
		if err != nil {
			t.Fatalf("Set failed: %v", err)
		}

		val, err := cache.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}

		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, tenantID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "key2", []byte("value2"), time.Minute)

		err := cache.Delete(ctx, tenantID, "key2")
		if err != nil {
			t.Fatalf("Delete failed: %v", err)
		}

		val, _ := cache.Get(ctx, tenantID, "key2")
		if val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "expiring", []byte("temp"), 10*time.Millisecond)

		// Should be available immediately
		val, _ := cache.Get(ctx, tenantID, "expiring")
		if val == nil {
			t.Error("expected value before expiration")
		}

		// Wait for expiration
		time.Sleep(20 * time.Millisecond)

		val, _ = cache.Get(ctx, tenantID, "expiring")
		if val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		smallCache := NewLRUCache(3)

		_ = smallCache.Set(ctx, tenantID, "a", []byte("1"), time.Minute)
		_ = smallCache.Set(ctx, tenantID, "b", []byte("2"), time.Minute)
		_ = smallCache.Set(ctx, tenantID, "c", []byte("3"), time.Minute)

		// Access 'a' to make it recently used
		_, _ = smallCache.Get(ctx, tenantID, "a")

		// Add 'd' - should evict 'b' (oldest accessed)
		_ = smallCache.Set(ctx, tenantID, "d", []byte("4"), time.Minute)

		// 'b' should be evicted
		val, _ := smallCache.Get(ctx, tenantID, "b")
		if val != nil {
			t.Error("expected 'b' to be evicted")
		}

		// 'a' should still be there
		val, _ = smallCache.Get(ctx, tenantID, "a")
		if val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		tenant1 := "tenant-001"
		tenant2 := "tenant-002"

		_ = cache.Set(ctx, tenant1, "shared-key", []byte("tenant1-value"), time.Minute)
		_ = cache.Set(ctx, tenant2, "shared-key", []byte("tenant2-value"), time.Minute)

		val1, _ := cache.Get(ctx, tenant1, "shared-key")
		val2, _ := cache.Get(ctx, tenant2, "shared-key")

		if string(val1) != "tenant1-value" {
			t.Errorf("expected 'tenant1-value', got '%s'", string(val1))
		}
		if string(val2) != "tenant2-value" {
			t.Errorf("expected 'tenant2-value', got '%s'", string(val2))
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		err := cache.Set(ctx, "", "key", []byte("value"), time.Minute)
		if err == nil {
			t.Error("expected error for empty tenantID")
		}

		_, err = cache.Get(ctx, "", "key")
		if err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("RulesetCache", func(t *testing.T) {
		key := domain.RulesetKey{Domain: "icc.ucp600", Jurisdiction: "global"}
		rs := &domain.Ruleset{
			ID:             "rs-001",
			TenantID:       tenantID,
			Domain:         key.Domain,
			Jurisdiction:   key.Jurisdiction,
			RulesetVersion: "3",
			Status:         domain.StatusActive,
			Rules: []domain.Rule{{
				RuleID:   "LC-AMT-001",
				Severity: domain.SeverityCritical,
				Conditions: []domain.Condition{{
					Field:    "invoice.amount",
					Operator: domain.OpEquals,
					Operand:  domain.FieldRef("lc.amount"),
				}},
			}},
		}

		err := cache.SetRuleset(ctx, tenantID, key, rs, time.Minute)
		if err != nil {
			t.Fatalf("SetRuleset failed: %v", err)
		}

		retrieved, err := cache.GetRuleset(ctx, tenantID, key)
		if err != nil {
			t.Fatalf("GetRuleset failed: %v", err)
		}

		if retrieved.RulesetVersion != rs.RulesetVersion {
			t.Errorf("expected version %s, got %s", rs.RulesetVersion, retrieved.RulesetVersion)
		}
		if len(retrieved.Rules) != 1 || retrieved.Rules[0].RuleID != "LC-AMT-001" {
			t.Errorf("rules did not survive the round trip: %+v", retrieved.Rules)
		}

		if err := cache.DeleteRuleset(ctx, tenantID, key); err != nil {
			t.Fatalf("DeleteRuleset failed: %v", err)
		}
		retrieved, _ = cache.GetRuleset(ctx, tenantID, key)
		if retrieved != nil {
			t.Error("expected nil after DeleteRuleset")
		}
	})

	t.Run("RulesetScopeIsolation", func(t *testing.T) {
		ucp := domain.RulesetKey{Domain: "icc.ucp600", Jurisdiction: "global"}
		isbp := domain.RulesetKey{Domain: "icc.isbp745", Jurisdiction: "global"}

		_ = cache.SetRuleset(ctx, tenantID, ucp, &domain.Ruleset{RulesetVersion: "3"}, time.Minute)
		_ = cache.SetRuleset(ctx, tenantID, isbp, &domain.Ruleset{RulesetVersion: "7"}, time.Minute)

		got, _ := cache.GetRuleset(ctx, tenantID, ucp)
		if got == nil || got.RulesetVersion != "3" {
			t.Errorf("expected ucp600 version 3, got %+v", got)
		}
		got, _ = cache.GetRuleset(ctx, tenantID, isbp)
		if got == nil || got.RulesetVersion != "7" {
			t.Errorf("expected isbp745 version 7, got %+v", got)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, tenantID, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, tenantID, "k2", []byte("v2"), time.Minute)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, tenantID, "k", []byte("v"), time.Minute)

		err := testCache.Close()
		if err != nil {
			t.Errorf("Close failed: %v", err)
		}

		// Cache should be empty after close
		val, _ := testCache.Get(ctx, tenantID, "k")
		if val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type:         "memory",
			LocalMaxSize: 100,
		}

		cache, err := New(cfg)
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		_, ok := cache.(*LRUCache)
		if !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		cfg := domain.CacheConfig{
			Type: "memcached",
		}

		_, err := New(cfg)
		if err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
