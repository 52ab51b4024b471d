package crons

import (
	"context"
	"errors"
	"testing"

	"hhfoundation/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingExpirer struct {
	calls int
	err   error
}

func (c *countingExpirer) ExpireStale(context.Context) (int, error) {
	c.calls++
	return 2, c.err
}

type countingAuditor struct{ calls int }

func (c *countingAuditor) Audit(context.Context) (*service.IntegrityReport, error) {
	c.calls++
	return &service.IntegrityReport{}, nil
}

func TestJobLookup(t *testing.T) {
	exp, aud := &countingExpirer{}, &countingAuditor{}
	r := New(exp, aud)

	r.Job(JobExpireHelps)()
	r.Job(JobIntegrityAudit)()
	assert.Equal(t, 1, exp.calls)
	assert.Equal(t, 1, aud.calls)
	assert.Nil(t, r.Job("nope"))
}

func TestExpireErrorIsSwallowed(t *testing.T) {
	exp := &countingExpirer{err: errors.New("db down")}
	r := New(exp, nil)
	assert.NotPanics(t, r.Job(JobExpireHelps))
	assert.NotPanics(t, r.Job(JobIntegrityAudit))
}

func TestStartValidatesSchedules(t *testing.T) {
	r := New(&countingExpirer{}, nil)
	assert.Error(t, r.Start(Schedules{"nope": "0 * * * * *"}))

	r = New(&countingExpirer{}, nil)
	assert.Error(t, r.Start(Schedules{JobExpireHelps: "not a spec"}))

	r = New(&countingExpirer{}, nil)
	require.NoError(t, r.Start(Schedules{JobExpireHelps: "0 */5 * * * *", JobIntegrityAudit: ""}))
	r.Stop()
}
