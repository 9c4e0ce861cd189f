package types

import (
	"time"
)

// AuditAction tags what an audit entry records
type AuditAction string

const (
	ActionAccessEHR    AuditAction = "ACCESS_EHR"
	ActionAccessReport AuditAction = "ACCESS_REPORT"
	ActionAccessLab    AuditAction = "ACCESS_LAB"

	ActionTokenIssued  AuditAction = "EMERGENCY_TOKEN_ISSUED"
	ActionTokenUsed    AuditAction = "EMERGENCY_TOKEN_USED"
	ActionTokenExpired AuditAction = "EMERGENCY_TOKEN_EXPIRED"
	ActionTokenRevoked AuditAction = "EMERGENCY_TOKEN_REVOKED"
)

// AuditEntry is a single append-only audit record
type AuditEntry struct {
	ID           string                 `json:"id" db:"id"`
	Actor        string                 `json:"actor" db:"actor"`
	Action       AuditAction            `json:"action" db:"action"`
	ResourceType string                 `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   string                 `json:"resource_id,omitempty" db:"resource_id"`
	Granted      bool                   `json:"access_granted" db:"access_granted"`
	Emergency    bool                   `json:"is_emergency" db:"is_emergency"`
	Details      map[string]interface{} `json:"details,omitempty" db:"details"`
	Timestamp    time.Time              `json:"timestamp" db:"timestamp"`
	Origin       string                 `json:"ip_address,omitempty" db:"ip_address"`

	// Tamper detection (hash chain)
	PrevHash string `json:"prev_hash,omitempty" db:"prev_hash"`
	Hash     string `json:"hash,omitempty" db:"hash"`
}

// AuditEntryBuilder provides a fluent interface for building audit entries
type AuditEntryBuilder struct {
	entry *AuditEntry
}

// NewAuditEntryBuilder creates a new audit entry builder
func NewAuditEntryBuilder(action AuditAction, actor string, at time.Time) *AuditEntryBuilder {
	return &AuditEntryBuilder{
		entry: &AuditEntry{
			Action:    action,
			Actor:     actor,
			Timestamp: at.UTC(),
			Details:   make(map[string]interface{}),
		},
	}
}

// WithResource sets the resource type and id
func (b *AuditEntryBuilder) WithResource(resourceType, resourceID string) *AuditEntryBuilder {
	b.entry.ResourceType = resourceType
	b.entry.ResourceID = resourceID
	return b
}

// WithGranted sets the granted flag
func (b *AuditEntryBuilder) WithGranted(granted bool) *AuditEntryBuilder {
	b.entry.Granted = granted
	return b
}

// WithEmergency sets the emergency flag
func (b *AuditEntryBuilder) WithEmergency(emergency bool) *AuditEntryBuilder {
	b.entry.Emergency = emergency
	return b
}

// WithOrigin sets the origin address
func (b *AuditEntryBuilder) WithOrigin(origin string) *AuditEntryBuilder {
	b.entry.Origin = origin
	return b
}

// WithDetail adds a detail key-value pair
func (b *AuditEntryBuilder) WithDetail(key string, value interface{}) *AuditEntryBuilder {
	b.entry.Details[key] = value
	return b
}

// Build returns the constructed audit entry
func (b *AuditEntryBuilder) Build() *AuditEntry {
	return b.entry
}

// AuditQuery represents search criteria for audit entries
type AuditQuery struct {
	Actor     string
	Actions   []AuditAction
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
}

// Matches reports whether e satisfies the query
func (q *AuditQuery) Matches(e *AuditEntry) bool {
	if q == nil {
		return true
	}
	if q.Actor != "" && e.Actor != q.Actor {
		return false
	}
	if len(q.Actions) > 0 {
		found := false
		for _, a := range q.Actions {
			if a == e.Action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.StartTime != nil && e.Timestamp.Before(*q.StartTime) {
		return false
	}
	if q.EndTime != nil && e.Timestamp.After(*q.EndTime) {
		return false
	}
	return true
}
