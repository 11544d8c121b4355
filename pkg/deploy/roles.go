package deploy

import (
	"slices"
	"strings"
)

// RoleRule 配方声明的可接受角色
type RoleRule struct {
	Allowed []string
	// Exact 所选角色必须与 Allowed 完全一致; 否则只需是 Allowed 的子集
	Exact bool
	// Any 接受任意已配置的角色, 忽略 Allowed
	Any bool
}

// Exactly 要求所选角色集合与 roles 相同
func Exactly(roles ...string) *RoleRule { return &RoleRule{Allowed: roles, Exact: true} }

// SubsetOf 要求所选角色都在 roles 中
func SubsetOf(roles ...string) *RoleRule { return &RoleRule{Allowed: roles} }

// AnyRole 接受任意角色, 但不能为空
func AnyRole() *RoleRule { return &RoleRule{Any: true} }

// Validate 空选择总是失败. Exact 规则下每个角色只能选一次, 子集规则允许重复
func (r RoleRule) Validate(recipe string, selected []string) error {
	fail := &RoleError{Recipe: recipe, Selected: selected, Rule: r}
	if len(selected) == 0 {
		return fail
	}
	if r.Any {
		return nil
	}
	seen := map[string]bool{}
	for _, role := range selected {
		if !slices.Contains(r.Allowed, role) {
			return fail
		}
		if r.Exact && seen[role] {
			return fail
		}
		seen[role] = true
	}
	if r.Exact && len(seen) != len(r.Allowed) {
		return fail
	}
	return nil
}

func (r RoleRule) String() string {
	switch {
	case r.Any:
		return "any configured role"
	case r.Exact:
		return "exactly " + strings.Join(r.Allowed, ",")
	default:
		return "any of " + strings.Join(r.Allowed, ",")
	}
}
