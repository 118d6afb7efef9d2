// Package advisory is the best-effort boundary to an advice provider.
//
// Nothing in the rule engine waits on it. The Advisor runs analysis in the
// background, cancels superseded requests and merges results by request
// sequence number so a slow response never overwrites a fresher one.
package advisory

import (
	"context"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/curb-dev/curb/internal/logging"
	"github.com/curb-dev/curb/internal/model"
)

// FallbackMessage replaces any reply the gateway failed to produce.
const FallbackMessage = "Advice is unavailable right now. Your alerts and savings are still up to date."

// DefaultTimeout bounds a single gateway call.
const DefaultTimeout = 5 * time.Second

// Result is an analysis outcome. Its content is opaque to the engine.
type Result struct {
	Suggestions  []string
	Explanations []string
}

// Empty reports whether r carries nothing.
func (r Result) Empty() bool {
	return len(r.Suggestions) == 0 && len(r.Explanations) == 0
}

// Gateway produces advice for a transaction set. Both calls may fail or be
// slow; implementations must honour ctx.
type Gateway interface {
	Analyze(ctx context.Context, txns []model.Transaction) (Result, error)
	Chat(ctx context.Context, txns []model.Transaction, question string) (string, error)
}

// Advisor wraps a Gateway with timeouts, cancellation and latest-wins merging.
type Advisor struct {
	gw      Gateway
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.Mutex
	issued  uint64
	applied uint64
	cancel  context.CancelFunc
	latest  Result
	wg      sync.WaitGroup
}

// NewAdvisor creates an Advisor. A non-positive timeout uses DefaultTimeout.
func NewAdvisor(gw Gateway, timeout time.Duration, logger *slog.Logger) *Advisor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Advisor{gw: gw, timeout: timeout, logger: logging.WithComponent(logger, logging.ComponentAdvisory)}
}

// Refresh starts a background analysis of txns and returns its sequence
// number. Any analysis still in flight is cancelled.
func (a *Advisor) Refresh(ctx context.Context, txns []model.Transaction) uint64 {
	snapshot := slices.Clone(txns)

	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.issued++
	seq := a.issued
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	a.cancel = cancel
	a.wg.Add(1)
	a.mu.Unlock()

	go func() {
		defer a.wg.Done()
		defer cancel()

		res, err := a.gw.Analyze(callCtx, snapshot)
		if err != nil {
			a.logger.Warn("analysis failed", "seq", seq, "error", err)
			return
		}
		if !a.merge(seq, res) {
			a.logger.Debug("stale analysis dropped", "seq", seq)
		}
	}()
	return seq
}

// merge folds res into the latest result unless a newer request has already
// been applied.
func (a *Advisor) merge(seq uint64, res Result) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if seq <= a.applied {
		return false
	}
	a.applied = seq
	a.latest.Suggestions = appendNew(a.latest.Suggestions, res.Suggestions)
	a.latest.Explanations = appendNew(a.latest.Explanations, res.Explanations)
	return true
}

func appendNew(dst, src []string) []string {
	for _, s := range src {
		s = strings.TrimSpace(s)
		if s != "" && !slices.Contains(dst, s) {
			dst = append(dst, s)
		}
	}
	return dst
}

// Latest returns a copy of the merged result and the sequence number of the
// last applied analysis (0 when none).
func (a *Advisor) Latest() (Result, uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Result{
		Suggestions:  slices.Clone(a.latest.Suggestions),
		Explanations: slices.Clone(a.latest.Explanations),
	}, a.applied
}

// Wait blocks until every started analysis has finished or ctx is done.
func (a *Advisor) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset drops the merged result, e.g. when the active user changes.
// In-flight analyses for the previous state are cancelled and ignored.
func (a *Advisor) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.applied = a.issued
	a.latest = Result{}
}

// Close cancels in-flight work and waits for it to stop.
func (a *Advisor) Close() {
	a.mu.Lock()
	if a.cancel != nil {
		a.cancel()
	}
	a.mu.Unlock()
	a.wg.Wait()
}

// Ask answers question synchronously. Failures and empty replies are logged
// and replaced with FallbackMessage.
func (a *Advisor) Ask(ctx context.Context, txns []model.Transaction, question string) string {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	reply, err := a.gw.Chat(ctx, txns, question)
	if err != nil {
		a.logger.Warn("chat failed", "error", err)
		return FallbackMessage
	}
	if strings.TrimSpace(reply) == "" {
		a.logger.Warn("chat returned an empty reply")
		return FallbackMessage
	}
	return reply
}
