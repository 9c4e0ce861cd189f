package policy

import (
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// ConditionSpec is the configuration form of a custom condition
type ConditionSpec struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Expression string `mapstructure:"expression" yaml:"expression"`
	Reason     string `mapstructure:"reason" yaml:"reason"`
}

// Condition is a compiled CEL expression evaluated as an extra check after the
// built-in ones. The emergency override never supersedes it.
type Condition struct {
	Name       string
	Expression string
	Reason     string
	program    cel.Program
}

func newConditionEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("principal", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("resource", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("environment", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// CompileConditions compiles every spec, failing on the first invalid one
func CompileConditions(specs []ConditionSpec) ([]*Condition, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	env, err := newConditionEnv()
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(specs))
	out := make([]*Condition, 0, len(specs))
	for _, spec := range specs {
		if spec.Name == "" {
			return nil, fmt.Errorf("condition name is required")
		}
		if seen[spec.Name] {
			return nil, fmt.Errorf("duplicate condition %q", spec.Name)
		}
		seen[spec.Name] = true

		ast, issues := env.Compile(spec.Expression)
		if issues != nil && issues.Err() != nil {
			return nil, fmt.Errorf("condition %q: CEL compilation failed: %w", spec.Name, issues.Err())
		}
		outType := ast.OutputType()
		if !outType.IsExactType(cel.BoolType) && !outType.IsExactType(cel.DynType) {
			return nil, fmt.Errorf("condition %q must evaluate to bool, got %s", spec.Name, outType)
		}

		prog, err := env.Program(ast)
		if err != nil {
			return nil, fmt.Errorf("condition %q: CEL program creation failed: %w", spec.Name, err)
		}

		reason := spec.Reason
		if reason == "" {
			reason = fmt.Sprintf("Condition %s not satisfied", spec.Name)
		}
		out = append(out, &Condition{
			Name:       spec.Name,
			Expression: spec.Expression,
			Reason:     reason,
			program:    prog,
		})
	}
	return out, nil
}

// Evaluate runs the condition against the request's attributes
func (c *Condition) Evaluate(p types.PrincipalAttrs, r types.ResourceAttrs, env types.EnvAttrs) (bool, error) {
	result, _, err := c.program.Eval(map[string]interface{}{
		"principal":   p.ToMap(),
		"resource":    r.ToMap(),
		"environment": env.ToMap(),
	})
	if err != nil {
		return false, fmt.Errorf("CEL evaluation failed: %w", err)
	}

	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return boolean")
	}
	return b, nil
}
