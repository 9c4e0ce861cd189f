// Package policy evaluates access requests against the clearance, department,
// consent, emergency-override and role-sensitivity rules
package policy

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ParthasarathiMohanty986/healthcare-security/pkg/types"
)

// DefaultRoleMinClearance is the clearance each role is trusted with by default
func DefaultRoleMinClearance() map[types.Role]int {
	return map[types.Role]int{
		types.RoleDoctor:         3,
		types.RoleNurse:          1,
		types.RoleAdmin:          5,
		types.RoleEmergencyStaff: 4,
		types.RoleLabTechnician:  2,
		types.RoleReceptionist:   1,
	}
}

// RoleTable maps roles to the sensitivity they may read regardless of their
// own clearance. It can be replaced at runtime by the file watcher.
type RoleTable struct {
	mu       sync.RWMutex
	base     map[types.Role]int
	minimums map[types.Role]int
}

// NewRoleTable creates a table from the defaults merged with overrides. The
// result is the base that later replacements are layered over.
func NewRoleTable(overrides map[types.Role]int) (*RoleTable, error) {
	base := mergeMinimums(DefaultRoleMinClearance(), overrides)
	if err := validateMinimums(base); err != nil {
		return nil, err
	}
	return &RoleTable{base: base, minimums: mergeMinimums(base, nil)}, nil
}

// MinClearance returns the role's minimum clearance. Unknown roles get 1.
func (t *RoleTable) MinClearance(role types.Role) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if level, ok := t.minimums[role]; ok {
		return level
	}
	return types.MinLevel
}

// Replace swaps the table contents after validation. Roles absent from
// minimums keep their base value: the defaults with the construction
// overrides applied.
func (t *RoleTable) Replace(minimums map[types.Role]int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	merged := mergeMinimums(t.base, minimums)
	if err := validateMinimums(merged); err != nil {
		return err
	}
	t.minimums = merged
	return nil
}

// Snapshot returns a copy of the current table
func (t *RoleTable) Snapshot() map[types.Role]int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[types.Role]int, len(t.minimums))
	for k, v := range t.minimums {
		out[k] = v
	}
	return out
}

// mergeMinimums returns a copy of base with overrides applied
func mergeMinimums(base, overrides map[types.Role]int) map[types.Role]int {
	out := make(map[types.Role]int, len(base)+len(overrides))
	for role, level := range base {
		out[role] = level
	}
	for role, level := range overrides {
		out[role] = level
	}
	return out
}

func validateMinimums(m map[types.Role]int) error {
	roles := make([]string, 0, len(m))
	for role := range m {
		roles = append(roles, string(role))
	}
	sort.Strings(roles)

	for _, name := range roles {
		role := types.Role(name)
		if !role.IsValid() {
			return fmt.Errorf("unknown role %q in role table", role)
		}
		if level := m[role]; level < types.MinLevel || level > types.MaxLevel {
			return fmt.Errorf("role %q: minimum clearance %d outside %d-%d",
				role, level, types.MinLevel, types.MaxLevel)
		}
	}
	return nil
}

// roleTableFile is the on-disk format of a role table
type roleTableFile struct {
	RoleMinClearance map[string]int `yaml:"role_min_clearance"`
}

// LoadRoleTableFile reads role minimums from a YAML file
func LoadRoleTableFile(path string) (map[types.Role]int, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read role table: %w", err)
	}

	var f roleTableFile
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("failed to parse role table %s: %w", path, err)
	}
	if len(f.RoleMinClearance) == 0 {
		return nil, fmt.Errorf("role table %s defines no roles", path)
	}

	out := make(map[types.Role]int, len(f.RoleMinClearance))
	for role, level := range f.RoleMinClearance {
		out[types.Role(role)] = level
	}
	if err := validateMinimums(out); err != nil {
		return nil, fmt.Errorf("role table %s: %w", path, err)
	}
	return out, nil
}
