package policy

import (
	"fmt"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

const (
	ReasonInsufficientClearance = "Insufficient clearance level"
	ReasonWrongDepartment       = "Wrong department for this record"
	ReasonNoConsent             = "Patient has not given consent"
)

// Evaluator maps the three attribute sets to a decision. It is stateless apart
// from the role table and is safe for concurrent use.
type Evaluator struct {
	roles      *RoleTable
	conditions []*Condition
}

// NewEvaluator creates an evaluator. A nil table uses the default role minimums.
func NewEvaluator(roles *RoleTable, conditions ...*Condition) *Evaluator {
	if roles == nil {
		roles = &RoleTable{minimums: DefaultRoleMinClearance()}
	}
	return &Evaluator{roles: roles, conditions: conditions}
}

// Roles returns the role table used for the role-sensitivity check
func (e *Evaluator) Roles() *RoleTable {
	return e.roles
}

// checklist accumulates check outcomes in evaluation order
type checklist struct {
	passed []types.CheckResult
	failed []types.CheckResult
}

func (c *checklist) pass(id types.CheckID, format string, args ...interface{}) {
	c.passed = append(c.passed, types.CheckResult{Check: id, Description: fmt.Sprintf(format, args...)})
}

func (c *checklist) fail(id types.CheckID, reason, format string, args ...interface{}) {
	c.failed = append(c.failed, types.CheckResult{
		Check:       id,
		Description: fmt.Sprintf(format, args...),
		Reason:      reason,
	})
}

// strikeOverridable removes failures the emergency override supersedes
func (c *checklist) strikeOverridable() {
	kept := c.failed[:0]
	for _, f := range c.failed {
		if !f.Check.Overridable() {
			kept = append(kept, f)
		}
	}
	c.failed = kept
}

// Evaluate runs the checks in their fixed order: clearance, department,
// consent, emergency override, role-vs-sensitivity, then custom conditions.
// Access is granted iff no failure survives the override.
func (e *Evaluator) Evaluate(p types.PrincipalAttrs, r types.ResourceAttrs, env types.EnvAttrs) (*types.Decision, error) {
	var cl checklist

	// 1. clearance
	if p.ClearanceLevel >= r.RequiredClearance {
		cl.pass(types.CheckClearance, "Clearance Level: %d >= %d", p.ClearanceLevel, r.RequiredClearance)
	} else {
		cl.fail(types.CheckClearance, ReasonInsufficientClearance,
			"Clearance Level: %d < %d required", p.ClearanceLevel, r.RequiredClearance)
	}

	// 2. department
	if r.RequiredDepartment != "" {
		switch {
		case p.Department == r.RequiredDepartment:
			cl.pass(types.CheckDepartment, "Department: %s matches %s", p.Department, r.RequiredDepartment)
		case p.Role == types.RoleAdmin || p.Role == types.RoleEmergencyStaff:
			cl.pass(types.CheckDepartment, "Department: %s may access %s records", p.Role, r.RequiredDepartment)
		default:
			cl.fail(types.CheckDepartment, ReasonWrongDepartment,
				"Department: %s != %s required", p.Department, r.RequiredDepartment)
		}
	}

	// 3. consent
	if r.PatientConsent {
		cl.pass(types.CheckConsent, "Patient Consent: Granted")
	} else {
		cl.fail(types.CheckConsent, ReasonNoConsent, "Patient Consent: Not granted")
	}

	// 4. emergency override
	if env.IsEmergency && p.IsEmergencyAuthorized {
		cl.pass(types.CheckEmergencyOverride, "Emergency Override: Authorized")
		cl.strikeOverridable()
	}

	// 5. role vs sensitivity
	roleMin := e.roles.MinClearance(p.Role)
	if r.SensitivityLevel <= roleMin || p.ClearanceLevel >= r.SensitivityLevel {
		cl.pass(types.CheckRoleSensitivity, "Role Access: %s can access sensitivity %d", p.Role, r.SensitivityLevel)
	} else {
		cl.fail(types.CheckRoleSensitivity,
			fmt.Sprintf("Role %s insufficient for sensitivity level %d", p.Role, r.SensitivityLevel),
			"Role Access: %s cannot access sensitivity %d", p.Role, r.SensitivityLevel)
	}

	for _, cond := range e.conditions {
		ok, err := cond.Evaluate(p, r, env)
		if err != nil {
			return nil, fmt.Errorf("%w: condition %s: %v", types.ErrEvaluationFailure, cond.Name, err)
		}
		if ok {
			cl.passed = append(cl.passed, types.CheckResult{
				Check:       types.CheckCondition,
				Name:        cond.Name,
				Description: fmt.Sprintf("Condition %s: satisfied", cond.Name),
			})
		} else {
			cl.failed = append(cl.failed, types.CheckResult{
				Check:       types.CheckCondition,
				Name:        cond.Name,
				Description: fmt.Sprintf("Condition %s: not satisfied", cond.Name),
				Reason:      cond.Reason,
			})
		}
	}

	reasons := make([]string, 0, len(cl.failed))
	for _, f := range cl.failed {
		reasons = append(reasons, f.Reason)
	}
	if cl.passed == nil {
		cl.passed = []types.CheckResult{}
	}
	if cl.failed == nil {
		cl.failed = []types.CheckResult{}
	}

	return &types.Decision{
		AccessGranted: len(cl.failed) == 0,
		ChecksPassed:  cl.passed,
		ChecksFailed:  cl.failed,
		Reasons:       reasons,
		Principal:     p,
		Resource:      r,
		Environment:   env,
	}, nil
}

// Deny builds a denial for a request that could not be evaluated
func Deny(p types.PrincipalAttrs, r types.ResourceAttrs, env types.EnvAttrs, reason string) *types.Decision {
	return &types.Decision{
		AccessGranted: false,
		ChecksPassed:  []types.CheckResult{},
		ChecksFailed: []types.CheckResult{{
			Check:       types.CheckEvaluation,
			Description: "Evaluation: failed",
			Reason:      reason,
		}},
		Reasons:     []string{reason},
		Principal:   p,
		Resource:    r,
		Environment: env,
	}
}
