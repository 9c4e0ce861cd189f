// Package types provides shared types for the healthcare access decision engine
package types

import (
	"fmt"
	"strings"
	"time"
)

// Role is the job function of a principal
type Role string

const (
	RoleDoctor         Role = "doctor"
	RoleNurse          Role = "nurse"
	RoleAdmin          Role = "admin"
	RoleEmergencyStaff Role = "emergency_staff"
	RoleLabTechnician  Role = "lab_technician"
	RoleReceptionist   Role = "receptionist"
)

// Roles lists every known role
var Roles = []Role{
	RoleDoctor,
	RoleNurse,
	RoleAdmin,
	RoleEmergencyStaff,
	RoleLabTechnician,
	RoleReceptionist,
}

// IsValid reports whether r is one of the enumerated roles
func (r Role) IsValid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Clearance and sensitivity levels are totally ordered integers in this range
const (
	MinLevel = 1
	MaxLevel = 5
)

// ClockTime is a time of day with second precision
type ClockTime struct {
	Hour   int `json:"hour" yaml:"hour"`
	Minute int `json:"minute" yaml:"minute"`
	Second int `json:"second" yaml:"second"`
}

// ParseClockTime parses "HH:MM" or "HH:MM:SS"
func ParseClockTime(s string) (ClockTime, error) {
	layouts := []string{"15:04:05", "15:04"}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, strings.TrimSpace(s)); err == nil {
			return ClockTime{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return ClockTime{}, fmt.Errorf("invalid time of day %q", s)
}

// ClockTimeOf returns the time-of-day component of t
func ClockTimeOf(t time.Time) ClockTime {
	return ClockTime{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}
}

// Seconds returns seconds since midnight
func (c ClockTime) Seconds() int {
	return c.Hour*3600 + c.Minute*60 + c.Second
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// WorkingHours is an inclusive time-of-day window
type WorkingHours struct {
	Start ClockTime `json:"start" yaml:"start"`
	End   ClockTime `json:"end" yaml:"end"`
}

// Contains reports whether t falls within [Start, End]
func (w WorkingHours) Contains(t ClockTime) bool {
	s := t.Seconds()
	return w.Start.Seconds() <= s && s <= w.End.Seconds()
}

// Principal is an authenticated requester as handed over by the identity layer.
// The engine reads it and never mutates it.
type Principal struct {
	ID                    string        `json:"id"`
	Username              string        `json:"username"`
	Role                  Role          `json:"role"`
	Department            string        `json:"department"`
	Specialization        string        `json:"specialization,omitempty"`
	Certifications        []string      `json:"certifications,omitempty"`
	ClearanceLevel        int           `json:"clearance_level"`
	IsEmergencyAuthorized bool          `json:"is_emergency_authorized"`
	WorkingHours          *WorkingHours `json:"working_hours,omitempty"`
	CurrentLocation       string        `json:"current_location,omitempty"`
}

// PrincipalAttrs is the normalized attribute set of a principal for one request
type PrincipalAttrs struct {
	ID                    string   `json:"user_id"`
	Username              string   `json:"username"`
	Role                  Role     `json:"role"`
	Department            string   `json:"department"`
	Specialization        string   `json:"specialization,omitempty"`
	ClearanceLevel        int      `json:"clearance_level"`
	Certifications        []string `json:"certifications"`
	IsEmergencyAuthorized bool     `json:"is_emergency_authorized"`
	CurrentLocation       string   `json:"current_location,omitempty"`
	WithinWorkingHours    bool     `json:"within_working_hours"`
	CurrentTime           string   `json:"current_time"`
	CurrentDate           string   `json:"current_date"`
}

// ToMap converts PrincipalAttrs to a map for CEL evaluation
func (p PrincipalAttrs) ToMap() map[string]interface{} {
	certs := make([]string, len(p.Certifications))
	copy(certs, p.Certifications)
	return map[string]interface{}{
		"id":                      p.ID,
		"username":                p.Username,
		"role":                    string(p.Role),
		"department":              p.Department,
		"specialization":          p.Specialization,
		"clearance_level":         int64(p.ClearanceLevel),
		"certifications":          certs,
		"is_emergency_authorized": p.IsEmergencyAuthorized,
		"current_location":        p.CurrentLocation,
		"within_working_hours":    p.WithinWorkingHours,
	}
}

// Shift is the hospital shift band a request falls into
type Shift string

const (
	ShiftMorning Shift = "morning"
	ShiftEvening Shift = "evening"
	ShiftNight   Shift = "night"
)

// EnvAttrs is the per-request environment. It is never persisted.
type EnvAttrs struct {
	IsEmergency bool      `json:"is_emergency"`
	Location    string    `json:"location,omitempty"`
	Shift       Shift     `json:"current_shift"`
	Timestamp   time.Time `json:"timestamp"`
}

// ToMap converts EnvAttrs to a map for CEL evaluation
func (e EnvAttrs) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"is_emergency":  e.IsEmergency,
		"location":      e.Location,
		"current_shift": string(e.Shift),
		"hour":          int64(e.Timestamp.Hour()),
	}
}

// AccessRequest is a single request presented to the decision point
type AccessRequest struct {
	Principal    *Principal
	ResourceType ResourceType
	Resource     Resource
	IsEmergency  bool
	Location     string
}
