package types

// CheckID identifies a single policy check
type CheckID string

const (
	CheckClearance         CheckID = "clearance"
	CheckDepartment        CheckID = "department"
	CheckConsent           CheckID = "consent"
	CheckEmergencyOverride CheckID = "emergency_override"
	CheckRoleSensitivity   CheckID = "role_sensitivity"
	CheckCondition         CheckID = "condition"
	CheckEvaluation        CheckID = "evaluation"
)

// Overridable reports whether the emergency override supersedes this check
func (c CheckID) Overridable() bool {
	return c == CheckClearance || c == CheckDepartment
}

// CheckResult is the outcome of one check. Reason is set only on failures.
type CheckResult struct {
	Check       CheckID `json:"check"`
	Name        string  `json:"name,omitempty"`
	Description string  `json:"description"`
	Reason      string  `json:"reason,omitempty"`
}

// Decision is the result of a policy evaluation
type Decision struct {
	AccessGranted bool           `json:"access_granted"`
	ChecksPassed  []CheckResult  `json:"checks_passed"`
	ChecksFailed  []CheckResult  `json:"checks_failed"`
	Reasons       []string       `json:"reasons"`
	Principal     PrincipalAttrs `json:"user"`
	Resource      ResourceAttrs  `json:"resource"`
	Environment   EnvAttrs       `json:"environment"`
}

// PassedDescriptions returns the descriptions of passed checks in order
func (d *Decision) PassedDescriptions() []string {
	return descriptions(d.ChecksPassed)
}

// FailedDescriptions returns the descriptions of failed checks in order
func (d *Decision) FailedDescriptions() []string {
	return descriptions(d.ChecksFailed)
}

// Failed reports whether the given check is among the failures
func (d *Decision) Failed(id CheckID) bool {
	for _, c := range d.ChecksFailed {
		if c.Check == id {
			return true
		}
	}
	return false
}

// Passed reports whether the given check is among the passes
func (d *Decision) Passed(id CheckID) bool {
	for _, c := range d.ChecksPassed {
		if c.Check == id {
			return true
		}
	}
	return false
}

func descriptions(results []CheckResult) []string {
	out := make([]string, 0, len(results))
	for _, r := range results {
		out = append(out, r.Description)
	}
	return out
}
