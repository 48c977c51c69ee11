package llm

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/tablesage/tablesage/pkg/apperrors"
	"github.com/tablesage/tablesage/pkg/retry"
)

const (
	// maxConcurrentCalls bounds in-flight provider requests process-wide.
	maxConcurrentCalls = 4
	// attemptTimeout caps a single provider attempt.
	attemptTimeout = 30 * time.Second
)

// Gateway is the mediated path for every LLM call. It enforces the cost
// ceiling before dialing, bounds concurrency, retries transient failures,
// and converts exhausted retries into an LLMUnavailable error so callers
// can fall back deterministically.
type Gateway struct {
	client    Client
	ledger    *CostLedger
	estimator *Estimator
	prices    *PriceTable
	sem       *semaphore.Weighted
	retryCfg  *retry.Config
	logger    *zap.Logger
}

// NewGateway wires a gateway around the provider client.
func NewGateway(client Client, ledger *CostLedger, prices *PriceTable, logger *zap.Logger) *Gateway {
	return &Gateway{
		client:    client,
		ledger:    ledger,
		estimator: NewEstimator(),
		prices:    prices,
		sem:       semaphore.NewWeighted(maxConcurrentCalls),
		retryCfg:  retry.LLMConfig(),
		logger:    logger.Named("llm.gateway"),
	}
}

// SetRetry overrides the default retry policy. A nil config keeps the
// current policy.
func (g *Gateway) SetRetry(cfg *retry.Config) {
	if cfg != nil {
		g.retryCfg = cfg
	}
}

// Usage returns the ledger snapshot.
func (g *Gateway) Usage() Usage {
	return g.ledger.Snapshot()
}

// Model returns the underlying client's model identifier.
func (g *Gateway) Model() string {
	return g.client.Model()
}

// CallText performs one guarded completion and returns the raw text.
func (g *Gateway) CallText(ctx context.Context, prompt, system string) (string, error) {
	result, err := g.call(ctx, prompt, system, false)
	if err != nil {
		return "", err
	}
	return result.Content, nil
}

// CallJSON performs one guarded completion and returns the extracted JSON
// object. A response with no salvageable JSON counts as a failed attempt
// and is retried.
func (g *Gateway) CallJSON(ctx context.Context, prompt, system string) (map[string]any, error) {
	result, err := g.call(ctx, prompt, system, true)
	if err != nil {
		return nil, err
	}
	return ParseObject[map[string]any](result.Content)
}

func (g *Gateway) call(ctx context.Context, prompt, system string, wantJSON bool) (*GenerateResult, error) {
	projectedTokens := g.estimator.CountRequest(prompt, system)
	projectedCost := g.prices.Cost(g.client.Model(), projectedTokens)

	if err := g.ledger.Reserve(projectedCost); err != nil {
		g.logger.Warn("llm call rejected by cost ceiling",
			zap.Int("projected_tokens", projectedTokens),
			zap.Float64("projected_cost_usd", projectedCost))
		return nil, err
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return nil, apperrors.Wrap(apperrors.KindCancelled, "llm call cancelled while queued", err)
	}
	defer g.sem.Release(1)

	result, err := retry.DoWithResult(ctx, g.retryCfg, func() (*GenerateResult, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		defer cancel()

		res, err := g.client.Generate(attemptCtx, prompt, system)
		if err != nil {
			return nil, err
		}
		if res.Content == "" {
			return nil, NewError(ErrorTypeResponse, "empty response", true, nil)
		}
		if wantJSON {
			if _, jerr := ExtractJSON(res.Content); jerr != nil {
				// Charge the spend even though the shape is unusable.
				g.charge(res)
				return nil, NewError(ErrorTypeResponse, "response is not valid JSON", true, jerr)
			}
		}
		return res, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, apperrors.Wrap(apperrors.KindCancelled, "llm call cancelled", err)
		}
		return nil, apperrors.Wrap(apperrors.KindLLMUnavailable, "llm call failed after retries", err)
	}

	g.charge(result)
	return result, nil
}

func (g *Gateway) charge(res *GenerateResult) {
	tokens := res.TotalTokens
	if tokens == 0 {
		// Providers without usage reporting fall back to estimates.
		tokens = g.estimator.Count(res.Content)
	}
	g.ledger.Charge(tokens, g.prices.Cost(g.client.Model(), tokens))
}
