package types

import (
	"fmt"
	"time"
)

// TokenStatus is the lifecycle state of an emergency access token
type TokenStatus string

const (
	TokenActive  TokenStatus = "active"
	TokenExpired TokenStatus = "expired"
	TokenRevoked TokenStatus = "revoked"
)

// IsTerminal reports whether no further transition out of s is possible
func (s TokenStatus) IsTerminal() bool {
	return s == TokenExpired || s == TokenRevoked
}

// AccessScope lists which resource kinds a token covers
type AccessScope struct {
	EHR     bool `json:"ehr_data"`
	Reports bool `json:"medical_reports"`
	Lab     bool `json:"lab_results"`
}

// FullScope covers every resource kind
func FullScope() AccessScope {
	return AccessScope{EHR: true, Reports: true, Lab: true}
}

// Covers reports whether the scope includes the resource type
func (s AccessScope) Covers(t ResourceType) bool {
	switch t {
	case ResourceEHR:
		return s.EHR
	case ResourceReport:
		return s.Reports
	case ResourceLab:
		return s.Lab
	default:
		return false
	}
}

// EmergencyToken is a time-boxed break-glass credential. Tokens are never
// deleted; they only move from active to expired or revoked.
type EmergencyToken struct {
	ID          string      `json:"token_id"`
	RequestedBy string      `json:"requested_by"`
	PatientID   string      `json:"patient_id"`
	Reason      string      `json:"reason"`
	IssuedAt    time.Time   `json:"issued_at"`
	ExpiresAt   time.Time   `json:"expires_at"`
	Status      TokenStatus `json:"status"`
	Scope       AccessScope `json:"access_scope"`
	TimesUsed   int         `json:"times_used"`
	LastUsedAt  *time.Time  `json:"last_used_at,omitempty"`
}

// Clone returns a deep copy
func (t *EmergencyToken) Clone() *EmergencyToken {
	if t == nil {
		return nil
	}
	c := *t
	if t.LastUsedAt != nil {
		lu := *t.LastUsedAt
		c.LastUsedAt = &lu
	}
	return &c
}

// IsValidAt reports whether the token is active and unexpired at now
func (t *EmergencyToken) IsValidAt(now time.Time) bool {
	return t.Status == TokenActive && now.Before(t.ExpiresAt)
}

// RemainingTime formats the time left as "<m>m <s>s", or "Expired" when the
// token is no longer valid at now.
func (t *EmergencyToken) RemainingTime(now time.Time) string {
	if !t.IsValidAt(now) {
		return "Expired"
	}
	secs := int(t.ExpiresAt.Sub(now).Seconds())
	return fmt.Sprintf("%dm %ds", secs/60, secs%60)
}

// ShortID is the display form used in logs
func (t *EmergencyToken) ShortID() string {
	if len(t.ID) < 8 {
		return "EAT-" + t.ID
	}
	return "EAT-" + t.ID[:8]
}

// IssueResult is returned by token issuance
type IssueResult struct {
	Token           *EmergencyToken `json:"token"`
	AlreadyExisted  bool            `json:"already_existed"`
	RemainingTime   string          `json:"remaining_time"`
	ValidityMinutes int             `json:"validity_minutes"`
	Message         string          `json:"message"`
}

// ValidationResult is returned by explicit token validation. An expired or
// revoked token yields Valid=false rather than an error.
type ValidationResult struct {
	Valid         bool        `json:"valid"`
	Message       string      `json:"message"`
	TokenID       string      `json:"token_id"`
	PatientID     string      `json:"patient_id,omitempty"`
	Status        TokenStatus `json:"status"`
	RemainingTime string      `json:"remaining_time,omitempty"`
	TimesUsed     int         `json:"times_used"`
	Scope         AccessScope `json:"access_scope"`
	ExpiredAt     *time.Time  `json:"expired_at,omitempty"`
}

// RevokeResult is returned by token revocation
type RevokeResult struct {
	TokenID        string      `json:"token_id"`
	Status         TokenStatus `json:"status"`
	PreviousStatus TokenStatus `json:"previous_status"`
	Message        string      `json:"message"`
}
