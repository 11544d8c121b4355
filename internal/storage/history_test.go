package storage

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wentf9/xdeploy/pkg/deploy"
)

func TestNewRecordSucceeded(t *testing.T) {
	start := time.Date(2018, 1, 2, 15, 4, 0, 0, time.UTC)
	report := &deploy.Report{
		Recipe:     "deploy-backend",
		Roles:      []string{"backend"},
		Results:    []deploy.Result{{Name: "connect", Host: "b1", Status: deploy.StatusSucceeded}},
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
	}
	rec := NewRecord(report, "ops")
	require.Equal(t, "succeeded", rec.Status)
	require.Equal(t, "ops", rec.Operator)
	require.True(t, rec.Artifact.IsNull())

	roles, err := rec.Roles.Value()
	require.NoError(t, err)
	require.Equal(t, "[\n  \"backend\"\n]", roles)

	steps, err := rec.Steps.Value()
	require.NoError(t, err)
	require.Contains(t, steps, `"status": "succeeded"`)
}

func TestNewRecordFailedWithArtifact(t *testing.T) {
	report := &deploy.Report{
		Recipe:   "migrate",
		Artifact: &deploy.Artifact{Path: "backup/data_201801021504.sql", Size: 10},
		Err:      errors.New("migrate: exit status 1"),
	}
	rec := NewRecord(report, "")
	require.Equal(t, "failed", rec.Status)
	require.Equal(t, "migrate: exit status 1", rec.Error)
	require.True(t, rec.Roles.IsNull())

	v, err := rec.Artifact.Value()
	require.NoError(t, err)
	require.Contains(t, v, `"path": "backup/data_201801021504.sql"`)
}

func TestGormRecorderWithoutDB(t *testing.T) {
	var r *GormRecorder
	require.Error(t, r.Record(t.Context(), &deploy.Report{}))
}
