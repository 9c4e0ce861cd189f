// Package engine provides the policy decision point for healthcare records
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ParthasarathiMohanty986/healthcare-security/internal/attributes"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/audit"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/emergency"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/metrics"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/policy"
	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

const (
	// ReasonEvaluationFailed is the denial reason when evaluation errors or panics
	ReasonEvaluationFailed = "Policy evaluation failed"
	// ReasonInvalidRequest is the denial reason for a request missing its principal or resource
	ReasonInvalidRequest = "Invalid access request"
)

// Config configures the decision engine
type Config struct {
	// ParallelWorkers is the number of workers used by DecideAll
	ParallelWorkers int `mapstructure:"parallel_workers" yaml:"parallel_workers"`
}

// DefaultConfig returns a default engine configuration
func DefaultConfig() Config {
	return Config{ParallelWorkers: 16}
}

// Option configures an Engine
type Option func(*Engine)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics recorder
func WithMetrics(m metrics.Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// Engine resolves attributes, evaluates policy and audits every decision. It
// also fronts the emergency token lifecycle.
type Engine struct {
	resolver   *attributes.Resolver
	evaluator  *policy.Evaluator
	tokens     *emergency.Manager
	sink       audit.Sink
	workerPool *WorkerPool

	now     func() time.Time
	logger  *zap.Logger
	metrics metrics.Metrics
}

// New creates a new decision engine
func New(cfg Config, resolver *attributes.Resolver, evaluator *policy.Evaluator, tokens *emergency.Manager, sink audit.Sink, opts ...Option) (*Engine, error) {
	if resolver == nil {
		return nil, fmt.Errorf("attribute resolver is required")
	}
	if evaluator == nil {
		return nil, fmt.Errorf("policy evaluator is required")
	}
	if tokens == nil {
		return nil, fmt.Errorf("token manager is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("audit sink is required")
	}

	e := &Engine{
		resolver:   resolver,
		evaluator:  evaluator,
		tokens:     tokens,
		sink:       sink,
		workerPool: NewWorkerPool(cfg.ParallelWorkers),
		now:        time.Now,
		logger:     zap.NewNop(),
		metrics:    metrics.NewNoOpMetrics(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Decide evaluates one access request and writes exactly one audit entry for
// it. It always returns a decision; failures inside evaluation become denials.
func (e *Engine) Decide(ctx context.Context, req *types.AccessRequest) *types.Decision {
	start := time.Now()
	e.metrics.IncActiveRequests()
	defer e.metrics.DecActiveRequests()

	now := e.now()
	decision := e.evaluate(req, now)

	e.metrics.RecordDecision(string(decision.Resource.ResourceType), decision.AccessGranted, time.Since(start))
	if decision.AccessGranted && decision.Passed(types.CheckEmergencyOverride) {
		e.metrics.RecordEmergencyOverride()
	}

	e.record(ctx, decision, now)
	return decision
}

// evaluate resolves and evaluates req, turning errors and panics into denials
func (e *Engine) evaluate(req *types.AccessRequest, now time.Time) (decision *types.Decision) {
	var (
		p   types.PrincipalAttrs
		r   types.ResourceAttrs
		env types.EnvAttrs
	)

	defer func() {
		if rec := recover(); rec != nil {
			e.metrics.RecordEvaluationFailure()
			e.logger.Error("Policy evaluation panicked",
				zap.String("principal", p.ID),
				zap.String("resource", r.ResourceID),
				zap.Any("panic", rec),
			)
			decision = policy.Deny(p, r, env, ReasonEvaluationFailed)
		}
	}()

	if req == nil || req.Principal == nil || req.Resource == nil {
		if req != nil {
			r.ResourceType = req.ResourceType
			if req.Principal != nil {
				p = e.resolver.ResolvePrincipal(req.Principal, now)
			}
		}
		return policy.Deny(p, r, env, ReasonInvalidRequest)
	}

	p = e.resolver.ResolvePrincipal(req.Principal, now)
	r = e.resolver.ResolveResource(req.ResourceType, req.Resource)
	env = e.resolver.ResolveEnvironment(req.IsEmergency, req.Location, now)

	d, err := e.evaluator.Evaluate(p, r, env)
	if err != nil {
		e.metrics.RecordEvaluationFailure()
		e.logger.Error("Policy evaluation failed",
			zap.String("principal", p.ID),
			zap.String("resource", r.ResourceID),
			zap.Error(err),
		)
		return policy.Deny(p, r, env, ReasonEvaluationFailed)
	}
	return d
}

// record writes the audit entry for a decision. Audit failures are surfaced
// through logs and metrics and never change the decision.
func (e *Engine) record(ctx context.Context, d *types.Decision, now time.Time) {
	entry := types.NewAuditEntryBuilder(types.AuditAction(d.Resource.ResourceType.ActionTag()), d.Principal.ID, now).
		WithResource(string(d.Resource.ResourceType), d.Resource.ResourceID).
		WithGranted(d.AccessGranted).
		WithEmergency(d.Environment.IsEmergency).
		WithOrigin(audit.OriginFrom(ctx)).
		WithDetail("patient_id", d.Resource.PatientID).
		WithDetail("checks_passed", d.PassedDescriptions()).
		WithDetail("checks_failed", d.FailedDescriptions()).
		WithDetail("reasons", d.Reasons).
		WithDetail("user_role", string(d.Principal.Role)).
		WithDetail("user_department", d.Principal.Department).
		WithDetail("clearance_level", d.Principal.ClearanceLevel).
		WithDetail("resource_sensitivity", d.Resource.SensitivityLevel).
		Build()
	entry.ID = uuid.NewString()

	if err := e.sink.Append(ctx, entry); err != nil {
		e.metrics.RecordAuditFailure(string(entry.Action))
		e.logger.Error("Failed to write audit entry",
			zap.String("action", string(entry.Action)),
			zap.String("actor", entry.Actor),
			zap.String("resource_id", entry.ResourceID),
			zap.Bool("granted", entry.Granted),
			zap.Error(err),
		)
	}
}

// DecideAll evaluates requests in parallel and returns decisions in request
// order. Each request is audited exactly once.
func (e *Engine) DecideAll(ctx context.Context, requests []*types.AccessRequest) []*types.Decision {
	decisions := make([]*types.Decision, len(requests))
	var wg sync.WaitGroup

	for i, req := range requests {
		i, req := i, req
		wg.Add(1)
		err := e.workerPool.Submit(ctx, func() {
			defer wg.Done()
			decisions[i] = e.Decide(ctx, req)
		})
		if err != nil {
			wg.Done()
			decisions[i] = e.Decide(ctx, req)
		}
	}

	wg.Wait()
	return decisions
}

// UpgradeIfTokenValid reports whether tokenID is an active, unexpired token
// issued to requester for subjectID. It does not count as a token use.
func (e *Engine) UpgradeIfTokenValid(ctx context.Context, requester, subjectID, tokenID string) bool {
	_, ok := e.tokens.Active(ctx, tokenID, requester, subjectID)
	return ok
}

// UpgradeForResource is UpgradeIfTokenValid restricted to tokens whose scope
// covers the resource type
func (e *Engine) UpgradeForResource(ctx context.Context, requester, subjectID, tokenID string, resourceType types.ResourceType) bool {
	tok, ok := e.tokens.Active(ctx, tokenID, requester, subjectID)
	return ok && tok.Scope.Covers(resourceType)
}

// IssueToken issues an emergency access token, or returns the active one
func (e *Engine) IssueToken(ctx context.Context, requester *types.Principal, subjectID, reason string) (*types.IssueResult, error) {
	return e.tokens.Issue(ctx, requester, subjectID, reason)
}

// ValidateToken validates a token on behalf of its owner
func (e *Engine) ValidateToken(ctx context.Context, tokenID, requester string) (*types.ValidationResult, error) {
	return e.tokens.Validate(ctx, tokenID, requester)
}

// RevokeToken revokes a token on behalf of its owner
func (e *Engine) RevokeToken(ctx context.Context, tokenID, requester string) (*types.RevokeResult, error) {
	return e.tokens.Revoke(ctx, tokenID, requester)
}

// ListTokens lists the requester's tokens, newest first
func (e *Engine) ListTokens(ctx context.Context, requester string) ([]*types.EmergencyToken, error) {
	return e.tokens.List(ctx, requester)
}

// Tokens returns the token manager
func (e *Engine) Tokens() *emergency.Manager {
	return e.tokens
}

// Shutdown stops the worker pool and closes the audit sink
func (e *Engine) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.workerPool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("failed to stop worker pool: %w", ctx.Err())
	}

	if err := audit.Close(e.sink); err != nil {
		return fmt.Errorf("failed to close audit sink: %w", err)
	}
	return nil
}
