package retrieval

import (
	"context"

	"golang.org/x/time/rate"
)

// callBudget bounds the number of backend round-trips a single Execute
// call may make (spec §4.9's max_rpc_calls). It is a zero-refill token
// bucket: burst tokens are handed out once and never replenish, so
// Allow degrades from true to false as the budget is spent instead of
// resetting mid-call the way a steady-state rate limiter would.
type callBudget struct {
	limiter *rate.Limiter
}

// newCallBudget builds a budget capped at max calls. max<=0 means
// unbounded.
func newCallBudget(max int) *callBudget {
	if max <= 0 {
		return &callBudget{}
	}
	return &callBudget{limiter: rate.NewLimiter(rate.Limit(0), max)}
}

func (b *callBudget) allow() bool {
	if b == nil || b.limiter == nil {
		return true
	}
	return b.limiter.Allow()
}

type budgetCtxKey struct{}
type maxDepthCtxKey struct{}

func withCallBudget(ctx context.Context, b *callBudget) context.Context {
	return context.WithValue(ctx, budgetCtxKey{}, b)
}

// consumeRPCCall reports whether ctx's call budget still has room for
// one more backend round-trip, consuming it if so. A context carrying
// no budget (e.g. an Executor driven directly in a test) always allows
// the call.
func consumeRPCCall(ctx context.Context) bool {
	b, _ := ctx.Value(budgetCtxKey{}).(*callBudget)
	return b.allow()
}

// withMaxDepth carries a per-request max_depth override for the agentic
// layer, which otherwise falls back to its constructor default.
func withMaxDepth(ctx context.Context, depth int) context.Context {
	return context.WithValue(ctx, maxDepthCtxKey{}, depth)
}

func maxDepthOverride(ctx context.Context) (int, bool) {
	d, ok := ctx.Value(maxDepthCtxKey{}).(int)
	return d, ok && d > 0
}
