package emergency

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ParthasarathiMohanty986/healthcare-security/internal/audit"
	"github.com/ParthasarathiMohanty986/healthcare-security/internal/metrics"
	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// DefaultValidity is how long a newly issued token stays valid
const DefaultValidity = 10 * time.Minute

// resourceTypeToken is the audit resource type for token lifecycle entries
const resourceTypeToken = "emergency_token"

// Config for the token manager
type Config struct {
	Validity time.Duration `mapstructure:"validity" yaml:"validity"`
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{Validity: DefaultValidity}
}

// Validate validates the configuration
func (c Config) Validate() error {
	if c.Validity <= 0 {
		return fmt.Errorf("token validity must be positive, got %s", c.Validity)
	}
	return nil
}

// Option configures a Manager
type Option func(*Manager)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithIDGenerator overrides token id generation
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(m *Manager) { m.logger = logger }
}

// WithMetrics sets the metrics recorder
func WithMetrics(mt metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

// Manager runs the token state machine over a Store and records every
// transition in the audit sink
type Manager struct {
	store    Store
	sink     audit.Sink
	validity time.Duration
	now      func() time.Time
	newID    func() string
	logger   *zap.Logger
	metrics  metrics.Metrics
}

// NewManager creates a token manager
func NewManager(store Store, sink audit.Sink, cfg Config, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("token store is required")
	}
	if sink == nil {
		return nil, fmt.Errorf("audit sink is required")
	}
	if cfg.Validity == 0 {
		cfg.Validity = DefaultValidity
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{
		store:    store,
		sink:     sink,
		validity: cfg.Validity,
		now:      time.Now,
		newID:    uuid.NewString,
		logger:   zap.NewNop(),
		metrics:  metrics.NewNoOpMetrics(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Validity returns the configured token lifetime
func (m *Manager) Validity() time.Duration {
	return m.validity
}

// Issue creates a token for (requester, patientID) or returns the one the
// requester already holds for that patient
func (m *Manager) Issue(ctx context.Context, requester *types.Principal, patientID, reason string) (*types.IssueResult, error) {
	if requester == nil || requester.ID == "" {
		return nil, fmt.Errorf("%w: requester is required", types.ErrInvalidInput)
	}
	if !requester.IsEmergencyAuthorized {
		return nil, types.ErrNotAuthorized
	}
	if patientID == "" {
		return nil, fmt.Errorf("%w: patient id is required", types.ErrInvalidInput)
	}
	if reason == "" {
		return nil, fmt.Errorf("%w: emergency reason is required", types.ErrInvalidInput)
	}

	now := m.now().UTC()
	candidate := &types.EmergencyToken{
		ID:          m.newID(),
		RequestedBy: requester.ID,
		PatientID:   patientID,
		Reason:      reason,
		IssuedAt:    now,
		ExpiresAt:   now.Add(m.validity),
		Status:      types.TokenActive,
		Scope:       types.FullScope(),
	}

	tok, created, err := m.store.CreateIfAbsent(ctx, candidate, now)
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	result := &types.IssueResult{
		Token:           tok,
		AlreadyExisted:  !created,
		RemainingTime:   tok.RemainingTime(now),
		ValidityMinutes: int(m.validity / time.Minute),
	}

	if !created {
		m.metrics.RecordTokenEvent(metrics.TokenEventReused)
		result.Message = fmt.Sprintf("Active emergency token already exists for patient %s", patientID)
		return result, nil
	}

	m.metrics.RecordTokenEvent(metrics.TokenEventIssued)
	m.logger.Warn("Emergency access token issued",
		zap.String("token", tok.ShortID()),
		zap.String("requester", requester.ID),
		zap.String("patient_id", patientID),
		zap.Time("expires_at", tok.ExpiresAt),
	)
	m.record(ctx, types.NewAuditEntryBuilder(types.ActionTokenIssued, requester.ID, now).
		WithResource(resourceTypeToken, tok.ID).
		WithDetail("token_id", tok.ID).
		WithDetail("patient_id", patientID).
		WithDetail("reason", reason).
		WithDetail("expires_at", tok.ExpiresAt.Format(time.RFC3339)).
		WithDetail("validity_minutes", result.ValidityMinutes).
		WithDetail("user_role", string(requester.Role)).
		WithDetail("user_department", requester.Department), true)

	result.Message = fmt.Sprintf("Emergency access granted for %d minutes", result.ValidityMinutes)
	return result, nil
}

type validateOutcome int

const (
	outcomeUsed validateOutcome = iota
	outcomeExpired
	outcomeTerminal
)

// Validate checks a token on behalf of its owner. A valid token has its usage
// recorded. The first check after expiry moves it to expired.
func (m *Manager) Validate(ctx context.Context, tokenID, requesterID string) (*types.ValidationResult, error) {
	if tokenID == "" || requesterID == "" {
		return nil, fmt.Errorf("%w: token id and requester are required", types.ErrInvalidInput)
	}

	now := m.now().UTC()
	var outcome validateOutcome
	tok, err := m.store.Update(ctx, tokenID, func(t *types.EmergencyToken) error {
		if t.RequestedBy != requesterID {
			return types.ErrNotFound
		}
		switch {
		case t.IsValidAt(now):
			t.TimesUsed++
			used := now
			t.LastUsedAt = &used
			outcome = outcomeUsed
			return nil
		case t.Status == types.TokenActive:
			t.Status = types.TokenExpired
			outcome = outcomeExpired
			return nil
		default:
			outcome = outcomeTerminal
			return ErrUnchanged
		}
	})
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}

	result := &types.ValidationResult{
		TokenID:   tok.ID,
		PatientID: tok.PatientID,
		Status:    tok.Status,
		TimesUsed: tok.TimesUsed,
		Scope:     tok.Scope,
	}

	switch outcome {
	case outcomeUsed:
		m.metrics.RecordTokenEvent(metrics.TokenEventUsed)
		result.Valid = true
		result.RemainingTime = tok.RemainingTime(now)
		result.Message = "Token is valid"
		m.record(ctx, types.NewAuditEntryBuilder(types.ActionTokenUsed, requesterID, now).
			WithResource(resourceTypeToken, tok.ID).
			WithDetail("token_id", tok.ID).
			WithDetail("patient_id", tok.PatientID).
			WithDetail("times_used", tok.TimesUsed), true)

	case outcomeExpired:
		m.metrics.RecordTokenEvent(metrics.TokenEventExpired)
		expiredAt := tok.ExpiresAt
		result.ExpiredAt = &expiredAt
		result.Message = "Token has expired"
		m.logger.Info("Emergency access token expired",
			zap.String("token", tok.ShortID()),
			zap.String("requester", requesterID),
		)
		m.record(ctx, types.NewAuditEntryBuilder(types.ActionTokenExpired, requesterID, now).
			WithResource(resourceTypeToken, tok.ID).
			WithDetail("token_id", tok.ID).
			WithDetail("patient_id", tok.PatientID).
			WithDetail("expired_at", tok.ExpiresAt.Format(time.RFC3339)).
			WithDetail("times_used", tok.TimesUsed), false)

	case outcomeTerminal:
		result.Message = fmt.Sprintf("Token is %s", tok.Status)
		if tok.Status == types.TokenExpired {
			expiredAt := tok.ExpiresAt
			result.ExpiredAt = &expiredAt
		}
	}
	return result, nil
}

// Revoke ends a token early on behalf of its owner. Revoking an expired
// token marks it revoked; revoking twice succeeds without a second audit
// entry.
func (m *Manager) Revoke(ctx context.Context, tokenID, requesterID string) (*types.RevokeResult, error) {
	if tokenID == "" || requesterID == "" {
		return nil, fmt.Errorf("%w: token id and requester are required", types.ErrInvalidInput)
	}

	now := m.now().UTC()
	var previous types.TokenStatus
	tok, err := m.store.Update(ctx, tokenID, func(t *types.EmergencyToken) error {
		if t.RequestedBy != requesterID {
			return types.ErrNotFound
		}
		previous = t.Status
		if t.Status == types.TokenRevoked {
			return ErrUnchanged
		}
		t.Status = types.TokenRevoked
		return nil
	})
	if err != nil {
		if errors.Is(err, types.ErrNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, fmt.Errorf("failed to revoke token: %w", err)
	}

	if previous != types.TokenRevoked {
		m.metrics.RecordTokenEvent(metrics.TokenEventRevoked)
		m.logger.Info("Emergency access token revoked",
			zap.String("token", tok.ShortID()),
			zap.String("requester", requesterID),
			zap.String("previous_status", string(previous)),
		)
		m.record(ctx, types.NewAuditEntryBuilder(types.ActionTokenRevoked, requesterID, now).
			WithResource(resourceTypeToken, tok.ID).
			WithDetail("token_id", tok.ID).
			WithDetail("patient_id", tok.PatientID).
			WithDetail("previous_status", string(previous)).
			WithDetail("times_used", tok.TimesUsed), false)
	}

	return &types.RevokeResult{
		TokenID:        tok.ID,
		Status:         tok.Status,
		PreviousStatus: previous,
		Message:        "Token revoked",
	}, nil
}

// Active returns the token if it belongs to requesterID, targets patientID
// and is valid now. It records nothing and changes nothing, so it can back
// per-request emergency upgrades without touching usage counts.
func (m *Manager) Active(ctx context.Context, tokenID, requesterID, patientID string) (*types.EmergencyToken, bool) {
	if tokenID == "" || requesterID == "" || patientID == "" {
		return nil, false
	}

	tok, err := m.store.Get(ctx, tokenID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			m.logger.Error("Failed to look up emergency token",
				zap.String("token_id", tokenID),
				zap.Error(err),
			)
		}
		return nil, false
	}
	if tok.RequestedBy != requesterID || tok.PatientID != patientID || !tok.IsValidAt(m.now()) {
		return nil, false
	}
	return tok, true
}

// List returns every token issued to requesterID, newest first
func (m *Manager) List(ctx context.Context, requesterID string) ([]*types.EmergencyToken, error) {
	if requesterID == "" {
		return nil, fmt.Errorf("%w: requester is required", types.ErrInvalidInput)
	}
	tokens, err := m.store.ListByRequester(ctx, requesterID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	sortNewestFirst(tokens)
	return tokens, nil
}

// RemainingTime formats the token's remaining validity at the current time
func (m *Manager) RemainingTime(tok *types.EmergencyToken) string {
	return tok.RemainingTime(m.now())
}

// record appends an audit entry. granted is true for events that open or
// exercise emergency access (issue, use) and false for events that end it
// (expiry, revocation). A failed append is logged and counted but never
// fails the token operation, which has already been committed.
func (m *Manager) record(ctx context.Context, b *types.AuditEntryBuilder, granted bool) {
	entry := b.WithGranted(granted).
		WithEmergency(true).
		WithOrigin(audit.OriginFrom(ctx)).
		Build()
	entry.ID = uuid.NewString()

	if err := m.sink.Append(ctx, entry); err != nil {
		m.metrics.RecordAuditFailure(string(entry.Action))
		m.logger.Error("Failed to write audit entry",
			zap.String("action", string(entry.Action)),
			zap.String("actor", entry.Actor),
			zap.String("entry_id", entry.ID),
			zap.Error(err),
		)
	}
}
