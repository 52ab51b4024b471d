package crons

import (
	"context"
	"time"

	"hhfoundation/internal/service"

	"github.com/pkg/errors"
	"github.com/robfig/cron"
	"github.com/rs/zerolog/log"
)

// Job names, also used as the "job" log field.
const (
	JobExpireHelps    = "expire_helps"
	JobIntegrityAudit = "integrity_audit"
)

type HelpExpirer interface {
	ExpireStale(ctx context.Context) (int, error)
}

type Auditor interface {
	Audit(ctx context.Context) (*service.IntegrityReport, error)
}

// Schedules maps a job name to its six-field cron spec (seconds first).
// A job with an empty spec is not scheduled.
type Schedules map[string]string

type Runner struct {
	cron    *cron.Cron
	helps   HelpExpirer
	auditor Auditor
	timeout time.Duration
}

func New(helps HelpExpirer, auditor Auditor) *Runner {
	return &Runner{cron: cron.New(), helps: helps, auditor: auditor, timeout: 2 * time.Minute}
}

// Job returns the callback for id, or nil when id is unknown.
func (r *Runner) Job(id string) func() {
	switch id {
	case JobExpireHelps:
		return r.expireHelps
	case JobIntegrityAudit:
		return r.audit
	}
	return nil
}

// Start registers every schedule and starts the cron loop.
func (r *Runner) Start(schedules Schedules) error {
	for id, spec := range schedules {
		if spec == "" {
			continue
		}
		job := r.Job(id)
		if job == nil {
			return errors.Errorf("unknown cron job %q", id)
		}
		if err := r.cron.AddFunc(spec, job); err != nil {
			return errors.Wrapf(err, "schedule %s", id)
		}
		log.Info().Str("section", "cron").Str("job", id).Str("spec", spec).Msg("job scheduled")
	}
	r.cron.Start()
	return nil
}

func (r *Runner) Stop() {
	r.cron.Stop()
}

func (r *Runner) expireHelps() {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	n, err := r.helps.ExpireStale(ctx)
	if err != nil {
		log.Error().Err(err).Str("section", "cron").Str("job", JobExpireHelps).Msg("expire failed")
		return
	}
	if n > 0 {
		log.Info().Str("section", "cron").Str("job", JobExpireHelps).Int("expired", n).Msg("stale helps expired")
	}
}

func (r *Runner) audit() {
	if r.auditor == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	if _, err := r.auditor.Audit(ctx); err != nil {
		log.Error().Err(err).Str("section", "cron").Str("job", JobIntegrityAudit).Msg("audit failed")
	}
}
