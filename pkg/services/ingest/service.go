package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/seclens/auditgate/pkg/adapters"
	"github.com/seclens/auditgate/pkg/models/api"
	"github.com/seclens/auditgate/pkg/models/domain"
	"github.com/seclens/auditgate/pkg/services/gate"
	"github.com/seclens/auditgate/pkg/services/ratelimit"
	"github.com/seclens/auditgate/pkg/services/trend"
	runstore "github.com/seclens/auditgate/pkg/store/run"
)

const (
	storageAttempts = 3
	storageBackoff  = 50 * time.Millisecond
)

// PolicyResolver returns the active policy for a repo. Implementations
// must be pure lookups; the gateway passes the result straight into the
// decision engine.
type PolicyResolver func(repoFingerprint string) domain.SeverityPolicy

// Gateway is the ingestion entry point: it validates envelopes, replays
// committed outcomes, enforces per-repo rate limits, decides the gate
// verdict and persists exactly one Run per idempotency key.
type Gateway struct {
	runs      runstore.Store
	limiter   *ratelimit.Limiter
	trends    *trend.Aggregator
	policyFor PolicyResolver
	now       func() time.Time
	newID     func() string
}

type Option func(*Gateway)

// WithClock replaces the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithIDGenerator replaces the fallback run-id generator, for tests.
func WithIDGenerator(newID func() string) Option {
	return func(g *Gateway) { g.newID = newID }
}

func NewGateway(
	runs runstore.Store,
	limiter *ratelimit.Limiter,
	trends *trend.Aggregator,
	policyFor PolicyResolver,
	opts ...Option,
) *Gateway {
	g := &Gateway{
		runs:      runs,
		limiter:   limiter,
		trends:    trends,
		policyFor: policyFor,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Submit admits one scan submission. Replays of a committed idempotency
// key return the committed outcome verbatim and are never rate-limited.
// Rate-limit rejections surface as domain.ErrRateLimited before any Run
// exists; transient storage failures surface as domain.ErrStorageUnavailable
// after bounded internal retries, and the caller retries with the same key.
func (g *Gateway) Submit(ctx context.Context, envelope api.SubmissionEnvelope) (domain.SubmitResult, error) {
	submission, err := ValidateEnvelope(envelope)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	// Dedup before rate limit: a retry of recorded work costs no tokens.
	existing, err := g.lookup(ctx, submission.IdempotencyKey)
	if err == nil {
		return domain.SubmitResult{
			RunID:            existing.ID,
			Status:           existing.Status,
			DedupeSkipped:    true,
			RateLimitSkipped: true,
		}, nil
	}
	if !errors.Is(err, domain.ErrRunNotFound) {
		return domain.SubmitResult{}, err
	}

	if !g.limiter.TryAcquire(submission.RepoFingerprint) {
		return domain.SubmitResult{}, fmt.Errorf(
			"%w: repo %s", domain.ErrRateLimited, submission.RepoFingerprint)
	}

	policy := g.policyFor(submission.RepoFingerprint)
	verdict := gate.Decide(submission.Findings, submission.ScanFailed, policy)

	run := g.buildRun(submission, verdict, policy.Version)
	created, durable, err := g.create(ctx, run)
	if err != nil {
		return domain.SubmitResult{}, err
	}

	if created {
		g.trends.Notify(ctx, durable)
	} else {
		zerolog.Ctx(ctx).Debug().
			Str("idempotency_key", submission.IdempotencyKey).
			Str("run_id", durable.ID).
			Msg("lost create race, replaying winner")
	}

	return domain.SubmitResult{
		RunID:            durable.ID,
		Status:           durable.Status,
		DedupeSkipped:    !created,
		RateLimitSkipped: false,
	}, nil
}

func (g *Gateway) buildRun(submission domain.Submission, verdict domain.Verdict, policyVersion string) domain.Run {
	id := submission.RunID
	if id == "" {
		id = g.newID()
	}
	return domain.Run{
		ID:              id,
		RepoFingerprint: submission.RepoFingerprint,
		Status:          verdict,
		Findings:        submission.Findings,
		StartedAt:       submission.StartedAt,
		DurationMs:      submission.DurationMs,
		CostEstimate:    submission.CostEstimate,
		TokensIn:        submission.TokensIn,
		TokensOut:       submission.TokensOut,
		IdempotencyKey:  submission.IdempotencyKey,
		RequestedMode:   submission.RequestedMode,
		PolicyVersion:   policyVersion,
		CreatedAt:       g.now().UTC(),
	}
}

func (g *Gateway) lookup(ctx context.Context, key string) (domain.Run, error) {
	var lastErr error
	for attempt := 0; attempt < storageAttempts; attempt++ {
		row, err := g.runs.GetByIdempotencyKey(ctx, key)
		if err == nil {
			return adapters.MapStoreRowToDomainRun(row), nil
		}
		if errors.Is(err, domain.ErrRunNotFound) {
			return domain.Run{}, err
		}
		lastErr = err
		if attempt < storageAttempts-1 {
			g.sleep(ctx, attempt)
		}
	}
	return domain.Run{}, fmt.Errorf("%w: idempotency lookup: %v", domain.ErrStorageUnavailable, lastErr)
}

func (g *Gateway) create(ctx context.Context, run domain.Run) (bool, domain.Run, error) {
	row := adapters.MapDomainRunToStoreRow(run)

	var lastErr error
	for attempt := 0; attempt < storageAttempts; attempt++ {
		created, durable, err := g.runs.Create(ctx, row)
		if err == nil {
			return created, adapters.MapStoreRowToDomainRun(durable), nil
		}
		lastErr = err
		if attempt < storageAttempts-1 {
			g.sleep(ctx, attempt)
		}
	}
	return false, domain.Run{}, fmt.Errorf("%w: persist run: %v", domain.ErrStorageUnavailable, lastErr)
}

func (g *Gateway) sleep(ctx context.Context, attempt int) {
	select {
	case <-ctx.Done():
	case <-time.After(storageBackoff << attempt):
	}
}
