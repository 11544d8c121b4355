package storage

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/wentf9/xdeploy/pkg/deploy"
	"github.com/wentf9/xdeploy/pkg/jsonfield"
)

// DeployRecord 一次配方执行的历史记录, 步骤结果以 JSON 文本存放
type DeployRecord struct {
	ID         uint64          `gorm:"primaryKey;autoIncrement"`
	Recipe     string          `gorm:"size:64;index"`
	Roles      jsonfield.Field `gorm:"type:text"`
	Operator   string          `gorm:"size:190"`
	Status     string          `gorm:"size:16;index"` // succeeded | failed
	Error      string          `gorm:"type:text"`
	Steps      jsonfield.Field `gorm:"type:longtext"`
	Artifact   jsonfield.Field `gorm:"type:text"`
	StartedAt  time.Time       `gorm:"index"`
	FinishedAt time.Time
	CreatedAt  time.Time
}

// NewRecord 把执行报告转换成历史记录
func NewRecord(report *deploy.Report, operator string) *DeployRecord {
	rec := &DeployRecord{
		Recipe:     report.Recipe,
		Operator:   operator,
		Status:     string(deploy.StatusSucceeded),
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	}
	if len(report.Roles) > 0 {
		rec.Roles = jsonfield.Of(report.Roles)
	}
	if len(report.Results) > 0 {
		rec.Steps = jsonfield.Of(report.Results)
	}
	if report.Artifact != nil {
		rec.Artifact = jsonfield.Of(report.Artifact)
	}
	if report.Err != nil {
		rec.Status = string(deploy.StatusFailed)
		rec.Error = report.Err.Error()
	}
	return rec
}

// GormRecorder 实现 deploy.Recorder
type GormRecorder struct {
	DB       *gorm.DB
	Operator string
}

func (r *GormRecorder) Record(ctx context.Context, report *deploy.Report) error {
	if r == nil || r.DB == nil {
		return errors.New("history database not configured")
	}
	return r.DB.WithContext(ctx).Create(NewRecord(report, r.Operator)).Error
}

// Recent 按时间倒序返回最近的记录
func Recent(ctx context.Context, db *gorm.DB, recipe string, limit int) ([]DeployRecord, error) {
	q := db.WithContext(ctx).Order("id DESC").Limit(limit)
	if recipe != "" {
		q = q.Where("recipe = ?", recipe)
	}
	var out []DeployRecord
	return out, q.Find(&out).Error
}
