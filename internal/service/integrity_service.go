package service

import (
	"context"
	"fmt"
	"time"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/metrics"
	"hhfoundation/internal/repository"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type IntegrityStore interface {
	SlotUsage(ctx context.Context) ([]repository.SlotUsage, error)
	SendersWithMultipleActive(ctx context.Context) ([]repository.SenderActiveCount, error)
	MirrorMismatches(ctx context.Context) ([]repository.MirrorMismatch, error)
	DuplicateMirrors(ctx context.Context) ([]uint, error)
	TotalsMismatches(ctx context.Context) ([]repository.TotalsMismatch, error)
}

const (
	ViolationQuotaExceeded   = "QUOTA_EXCEEDED"
	ViolationMultipleActive  = "MULTIPLE_ACTIVE"
	ViolationMirrorMismatch  = "MIRROR_MISMATCH"
	ViolationDuplicateMirror = "DUPLICATE_MIRROR"
	ViolationTotalsMismatch  = "TOTALS_MISMATCH"
)

type Violation struct {
	Kind   string `json:"kind"`
	UserID uint   `json:"user_id,omitempty"`
	HelpID uint   `json:"help_id,omitempty"`
	Level  string `json:"level,omitempty"`
	Detail string `json:"detail"`
}

type IntegrityReport struct {
	CheckedAt  time.Time   `json:"checked_at"`
	Violations []Violation `json:"violations"`
}

func (r *IntegrityReport) OK() bool { return len(r.Violations) == 0 }

// IntegrityService audits stored help data against the matching rules.
type IntegrityService struct {
	store IntegrityStore
}

func NewIntegrityService(store IntegrityStore) *IntegrityService {
	return &IntegrityService{store: store}
}

func (s *IntegrityService) Audit(ctx context.Context) (*IntegrityReport, error) {
	rep := &IntegrityReport{CheckedAt: time.Now(), Violations: []Violation{}}

	usage, err := s.store.SlotUsage(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "slot usage")
	}
	for _, u := range usage {
		if q := domain.Quota(u.Level); u.Used > q {
			rep.Violations = append(rep.Violations, Violation{
				Kind: ViolationQuotaExceeded, UserID: u.ReceiverID, Level: u.Level,
				Detail: fmt.Sprintf("%d slots held, quota %d", u.Used, q),
			})
		}
	}

	multi, err := s.store.SendersWithMultipleActive(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "active senders")
	}
	for _, m := range multi {
		rep.Violations = append(rep.Violations, Violation{
			Kind: ViolationMultipleActive, UserID: m.SenderID,
			Detail: fmt.Sprintf("%d active helps", m.Active),
		})
	}

	mirrors, err := s.store.MirrorMismatches(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "mirror mismatches")
	}
	for _, m := range mirrors {
		detail := "receive record missing"
		if m.ReceiveStatus != "" {
			detail = fmt.Sprintf("send %s, receive %s", m.SendStatus, m.ReceiveStatus)
		}
		rep.Violations = append(rep.Violations, Violation{Kind: ViolationMirrorMismatch, HelpID: m.SendHelpID, Detail: detail})
	}

	dups, err := s.store.DuplicateMirrors(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "duplicate mirrors")
	}
	for _, id := range dups {
		rep.Violations = append(rep.Violations, Violation{Kind: ViolationDuplicateMirror, HelpID: id, Detail: "more than one receive record"})
	}

	totals, err := s.store.TotalsMismatches(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "totals")
	}
	for _, t := range totals {
		rep.Violations = append(rep.Violations, Violation{
			Kind: ViolationTotalsMismatch, UserID: t.UserID,
			Detail: fmt.Sprintf("sent %d/%d received %d/%d (user/ledger)", t.TotalSent, t.LedgerSent, t.TotalReceived, t.LedgerRecv),
		})
	}

	metrics.IntegrityViolations.Set(float64(len(rep.Violations)))
	ev := log.Info()
	if !rep.OK() {
		ev = log.Warn()
	}
	ev.Str("section", "integrity").Int("violations", len(rep.Violations)).Msg("integrity audit finished")
	return rep, nil
}
