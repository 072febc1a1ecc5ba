package nodes

import (
	"context"
	"time"

	"github.com/cloudwego/eino/compose"

	"github.com/aptify/knowledge-rag/internal/agent/model"
	errx "github.com/aptify/knowledge-rag/internal/core/error"
	logx "github.com/aptify/knowledge-rag/pkg/logger"
)

const (
	DefaultMaxRegenerations = 2
	DefaultMaxRewrites      = 2
)

// ===== Small helpers to keep handlers simple/readable =====
// normalizeLimit returns def when n is negative. Zero is a valid budget.
func normalizeLimit(n, def int) int {
	if n < 0 {
		return def
	}
	return n
}

// NewBudget builds the per-question budget from configured limits.
func NewBudget(maxRegenerations, maxRewrites int, timeout time.Duration) model.Budget {
	return model.NewBudget(
		normalizeLimit(maxRegenerations, DefaultMaxRegenerations),
		normalizeLimit(maxRewrites, DefaultMaxRewrites),
	).WithTimeout(timeout)
}

// spendRegenerationAndCheck consumes one regeneration. Returns false when the
// branch let a regeneration through with nothing left, which is a wiring bug.
func spendRegenerationAndCheck(st *model.WorkflowState) bool {
	if !st.Budget.SpendRegeneration() {
		return false
	}
	st.Regenerations++
	return true
}

// spendRewriteAndCheck consumes one rewrite, see spendRegenerationAndCheck.
func spendRewriteAndCheck(st *model.WorkflowState) bool {
	if !st.Budget.SpendRewrite() {
		return false
	}
	st.Rewrites++
	return true
}

// enter is the state pre-handler shared by every node: it refuses to enter
// a state once the question's context is done, and records the transition.
func enter[I any](node string) compose.StatePreHandler[I, *model.AppState] {
	return func(ctx context.Context, in I, state *model.AppState) (I, error) {
		if err := ctx.Err(); err != nil {
			logx.Warn().Str("request_id", state.RequestID).Str("node", node).Err(err).Msg("question cancelled")
			return in, errx.Cancelled("nodes."+node, err)
		}
		state.Path = append(state.Path, node)
		return in, nil
	}
}

// path returns a copy of the transitions recorded so far.
func path(ctx context.Context) (requestID string, out []string, startedAt time.Time) {
	_ = compose.ProcessState(ctx, func(_ context.Context, state *model.AppState) error {
		requestID = state.RequestID
		out = append([]string(nil), state.Path...)
		startedAt = state.StartedAt
		return nil
	})
	return requestID, out, startedAt
}
