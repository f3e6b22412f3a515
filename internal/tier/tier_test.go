package tier

import (
	"context"
	"testing"
	"time"

	"github.com/agentmemory/memd/internal/types"
)

func available(n int) ProbeFunc {
	return func(ctx context.Context) types.LayerHealth {
		return types.LayerHealth{Status: types.StatusAvailable, DocCount: n}
	}
}

func disabled() ProbeFunc {
	return func(ctx context.Context) types.LayerHealth {
		return types.LayerHealth{Status: types.StatusDisabled}
	}
}

func unhealthy(msg string) ProbeFunc {
	return func(ctx context.Context) types.LayerHealth {
		return types.LayerHealth{Status: types.StatusUnhealthy, Message: msg}
	}
}

func TestDetectFullTier(t *testing.T) {
	d := New(available(10), available(20), available(5), 500*time.Millisecond, time.Minute)
	result := d.Detect(context.Background(), false)
	if result.Tier != types.TierFull {
		t.Fatalf("Tier = %v, want Full", result.Tier)
	}
}

func TestDetectHybridTierWhenTopicsDown(t *testing.T) {
	d := New(available(10), available(20), unhealthy("no topics yet"), 500*time.Millisecond, time.Minute)
	result := d.Detect(context.Background(), false)
	if result.Tier != types.TierHybrid {
		t.Fatalf("Tier = %v, want Hybrid", result.Tier)
	}
}

func TestDetectSemanticTierVectorOnly(t *testing.T) {
	d := New(disabled(), available(20), disabled(), 500*time.Millisecond, time.Minute)
	result := d.Detect(context.Background(), false)
	if result.Tier != types.TierSemantic {
		t.Fatalf("Tier = %v, want Semantic", result.Tier)
	}
}

func TestDetectKeywordTierBM25Only(t *testing.T) {
	d := New(available(20), disabled(), disabled(), 500*time.Millisecond, time.Minute)
	result := d.Detect(context.Background(), false)
	if result.Tier != types.TierKeyword {
		t.Fatalf("Tier = %v, want Keyword", result.Tier)
	}
}

func TestDetectAgenticTierEverythingDown(t *testing.T) {
	d := New(disabled(), disabled(), disabled(), 500*time.Millisecond, time.Minute)
	result := d.Detect(context.Background(), false)
	if result.Tier != types.TierAgentic {
		t.Fatalf("Tier = %v, want Agentic", result.Tier)
	}
}

func TestDetectCachesWithinTTL(t *testing.T) {
	calls := 0
	probe := func(ctx context.Context) types.LayerHealth {
		calls++
		return types.LayerHealth{Status: types.StatusAvailable}
	}
	d := New(probe, probe, probe, 500*time.Millisecond, time.Minute)

	d.Detect(context.Background(), false)
	d.Detect(context.Background(), false)
	if calls != 3 {
		t.Fatalf("expected exactly one detection pass (3 probe calls), got %d", calls)
	}
}

func TestDetectForceBypassesCache(t *testing.T) {
	calls := 0
	probe := func(ctx context.Context) types.LayerHealth {
		calls++
		return types.LayerHealth{Status: types.StatusAvailable}
	}
	d := New(probe, probe, probe, 500*time.Millisecond, time.Minute)

	d.Detect(context.Background(), false)
	d.Detect(context.Background(), true)
	if calls != 6 {
		t.Fatalf("expected two detection passes (6 probe calls), got %d", calls)
	}
}
