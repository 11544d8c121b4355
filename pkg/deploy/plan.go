package deploy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/wentf9/xdeploy/pkg/logger"
	"github.com/wentf9/xdeploy/pkg/metrics"
)

// Status 步骤状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// Step 计划中的一个命名步骤. Host 为空表示本地步骤
type Step struct {
	Name string
	Host string
	// After 同一主机上必须已经成功的步骤
	After []string
	Run   func(ctx context.Context) (string, error)
}

type Result struct {
	Name     string        `json:"name"`
	Host     string        `json:"host,omitempty"`
	Status   Status        `json:"status"`
	Output   string        `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

// Report 一次配方执行的结果
type Report struct {
	Recipe     string
	Roles      []string
	Results    []Result
	Artifact   *Artifact
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Succeeded 所有步骤 (包括收尾步骤) 都没有失败
func (r *Report) Succeeded() bool { return r.Err == nil }

// Plan 有序的步骤列表. 第一个失败的步骤之后的步骤全部跳过, 不重试也不回滚;
// Finally 中的步骤总是执行
type Plan struct {
	Recipe  string
	Steps   []Step
	Finally []Step
	// Out 非空时输出每个步骤的开始信息
	Out io.Writer
	Now func() time.Time
	// Artifact 由备份步骤填写
	Artifact *Artifact
}

func (p *Plan) Add(steps ...Step) *Plan {
	p.Steps = append(p.Steps, steps...)
	return p
}

func (p *Plan) Defer(steps ...Step) *Plan {
	p.Finally = append(p.Finally, steps...)
	return p
}

func (p *Plan) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Plan) Execute(ctx context.Context) (*Report, error) {
	report := &Report{Recipe: p.Recipe, StartedAt: p.now()}
	results := make([]Result, len(p.Steps))
	for i, s := range p.Steps {
		results[i] = Result{Name: s.Name, Host: s.Host, Status: StatusPending}
	}

	var failed error
	for i, step := range p.Steps {
		if failed != nil {
			results[i].Status = StatusSkipped
			continue
		}
		if err := ctx.Err(); err != nil {
			results[i].Status = StatusSkipped
			failed = err
			continue
		}
		if missing := unmet(step, results[:i]); len(missing) > 0 {
			err := fmt.Errorf("%w: %s requires %v", ErrPrecondition, step.Name, missing)
			results[i].Status = StatusFailed
			results[i].Err = err.Error()
			failed = &StepError{Step: step.Name, Host: step.Host, Err: err}
			metrics.ObserveStep(p.Recipe, step.Name, string(StatusFailed), 0)
			continue
		}
		if err := p.runStep(ctx, step, &results[i]); err != nil {
			failed = err
		}
	}

	errs := []error{failed}
	for _, step := range p.Finally {
		res := Result{Name: step.Name, Host: step.Host}
		errs = append(errs, p.runStep(context.WithoutCancel(ctx), step, &res))
		results = append(results, res)
	}

	report.Results = results
	report.Artifact = p.Artifact
	report.FinishedAt = p.now()
	report.Err = errors.Join(errs...)
	return report, report.Err
}

func (p *Plan) runStep(ctx context.Context, step Step, res *Result) error {
	log := logger.Logger.With("recipe", p.Recipe, "step", step.Name, "host", step.Host)
	if p.Out != nil {
		if step.Host != "" {
			fmt.Fprintf(p.Out, "[%s] %s\n", step.Host, step.Name)
		} else {
			fmt.Fprintf(p.Out, "[local] %s\n", step.Name)
		}
	}

	res.Status = StatusRunning
	start := p.now()
	log.Debug("step started")
	out, err := step.Run(ctx)
	res.Duration = p.now().Sub(start)
	res.Output = out

	if err != nil {
		res.Status = StatusFailed
		res.Err = err.Error()
		metrics.ObserveStep(p.Recipe, step.Name, string(StatusFailed), res.Duration)
		log.Error("step failed", "err", err)
		return &StepError{Step: step.Name, Host: step.Host, Output: out, Err: err}
	}
	res.Status = StatusSucceeded
	metrics.ObserveStep(p.Recipe, step.Name, string(StatusSucceeded), res.Duration)
	log.Info("step succeeded", "duration", res.Duration)
	return nil
}

func unmet(step Step, done []Result) []string {
	var missing []string
	for _, name := range step.After {
		ok := slices.ContainsFunc(done, func(r Result) bool {
			return r.Name == name && r.Host == step.Host && r.Status == StatusSucceeded
		})
		if !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
