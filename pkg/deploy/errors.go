package deploy

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrRoleMismatch  = errors.New("role mismatch")
	ErrStepFailed    = errors.New("step failed")
	ErrPrecondition  = errors.New("precondition not met")
	ErrLocked        = errors.New("deployment locked")
	ErrUnknownRecipe = errors.New("unknown recipe")
)

// RoleError 配方不接受所选的角色, 在任何远程动作之前返回
type RoleError struct {
	Recipe   string
	Selected []string
	Rule     RoleRule
}

func (e *RoleError) Error() string {
	if e == nil {
		return ""
	}
	want := strings.Join(e.Rule.Allowed, ",")
	switch {
	case e.Rule.Exact:
		want = "exactly " + want
	case e.Rule.Any:
		want = "at least one configured role"
	default:
		want = "a subset of " + want
	}
	return fmt.Sprintf("%s: recipe %s requires %s, got [%s]", ErrRoleMismatch, e.Recipe, want, strings.Join(e.Selected, ","))
}

func (e *RoleError) Unwrap() error { return ErrRoleMismatch }

// StepError 一个步骤失败, Output 为命令的原始输出
type StepError struct {
	Step   string
	Host   string
	Output string
	Err    error
}

func (e *StepError) Error() string {
	if e == nil {
		return ""
	}
	where := e.Step
	if e.Host != "" {
		where = fmt.Sprintf("[%s] %s", e.Host, e.Step)
	}
	msg := fmt.Sprintf("%s: %v", where, e.Err)
	if out := strings.TrimSpace(e.Output); out != "" {
		msg += "\n" + out
	}
	return msg
}

func (e *StepError) Unwrap() error { return e.Err }

func (e *StepError) Is(target error) bool { return target == ErrStepFailed }
