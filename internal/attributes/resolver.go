// Package attributes derives the normalized principal, resource and environment
// attribute sets that policy evaluation works on
package attributes

import (
	"fmt"
	"time"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// ShiftBoundaries are the hours at which each shift starts
type ShiftBoundaries struct {
	MorningStart int `mapstructure:"morning_start" yaml:"morning_start"`
	EveningStart int `mapstructure:"evening_start" yaml:"evening_start"`
	NightStart   int `mapstructure:"night_start" yaml:"night_start"`
}

// DefaultShiftBoundaries returns the 6/14/22 hospital shift pattern
func DefaultShiftBoundaries() ShiftBoundaries {
	return ShiftBoundaries{
		MorningStart: 6,
		EveningStart: 14,
		NightStart:   22,
	}
}

// Validate checks the boundaries are ordered hours of the day
func (s ShiftBoundaries) Validate() error {
	if s.MorningStart < 0 || s.NightStart > 24 {
		return fmt.Errorf("shift boundaries must be within 0-24, got %d/%d/%d",
			s.MorningStart, s.EveningStart, s.NightStart)
	}
	if !(s.MorningStart < s.EveningStart && s.EveningStart < s.NightStart) {
		return fmt.Errorf("shift boundaries must be increasing, got %d/%d/%d",
			s.MorningStart, s.EveningStart, s.NightStart)
	}
	return nil
}

// Shift buckets an hour into a shift band
func (s ShiftBoundaries) Shift(hour int) types.Shift {
	switch {
	case s.MorningStart <= hour && hour < s.EveningStart:
		return types.ShiftMorning
	case s.EveningStart <= hour && hour < s.NightStart:
		return types.ShiftEvening
	default:
		return types.ShiftNight
	}
}

// Resolver derives attribute sets. It holds only immutable configuration and
// is safe for concurrent use.
type Resolver struct {
	shifts ShiftBoundaries
}

// NewResolver creates a resolver using the given shift boundaries
func NewResolver(shifts ShiftBoundaries) *Resolver {
	return &Resolver{shifts: shifts}
}

// ResolvePrincipal copies the principal's identity fields and computes whether
// now falls inside the principal's working hours. Without a configured window
// the principal is always within working hours.
func (r *Resolver) ResolvePrincipal(p *types.Principal, now time.Time) types.PrincipalAttrs {
	within := true
	if p.WorkingHours != nil {
		within = p.WorkingHours.Contains(types.ClockTimeOf(now))
	}

	certs := make([]string, len(p.Certifications))
	copy(certs, p.Certifications)

	return types.PrincipalAttrs{
		ID:                    p.ID,
		Username:              p.Username,
		Role:                  p.Role,
		Department:            p.Department,
		Specialization:        p.Specialization,
		ClearanceLevel:        p.ClearanceLevel,
		Certifications:        certs,
		IsEmergencyAuthorized: p.IsEmergencyAuthorized,
		CurrentLocation:       p.CurrentLocation,
		WithinWorkingHours:    within,
		CurrentTime:           types.ClockTimeOf(now).String(),
		CurrentDate:           now.Format("2006-01-02"),
	}
}

// ResolveResource projects a resource into its uniform attributes. Unset levels
// resolve to 1, the least restrictive value; role and clearance checks still apply.
func (r *Resolver) ResolveResource(resourceType types.ResourceType, res types.Resource) types.ResourceAttrs {
	v := res.View()

	sensitivity := v.SensitivityLevel
	if sensitivity <= 0 {
		sensitivity = types.MinLevel
	}
	required := v.RequiredClearance
	if required <= 0 {
		required = types.MinLevel
	}

	fields := make(map[string]string, len(v.Fields))
	for k, val := range v.Fields {
		fields[k] = val
	}

	attrs := types.ResourceAttrs{
		ResourceType:       resourceType,
		ResourceID:         v.ID,
		PatientID:          v.PatientID,
		SensitivityLevel:   sensitivity,
		RequiredClearance:  required,
		RequiredDepartment: v.RequiredDepartment,
		PatientConsent:     v.PatientConsent,
		Fields:             fields,
	}
	if resourceType == types.ResourceEHR {
		attrs.RecordType = fields["record_type"]
	}
	return attrs
}

// ResolveEnvironment buckets now into a shift and passes the emergency flag
// and location through unchanged
func (r *Resolver) ResolveEnvironment(isEmergency bool, location string, now time.Time) types.EnvAttrs {
	return types.EnvAttrs{
		IsEmergency: isEmergency,
		Location:    location,
		Shift:       r.shifts.Shift(now.Hour()),
		Timestamp:   now,
	}
}
