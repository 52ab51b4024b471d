package service

import (
	"context"
	"errors"
	"testing"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIntegrity struct {
	usage   []repository.SlotUsage
	multi   []repository.SenderActiveCount
	mirrors []repository.MirrorMismatch
	dups    []uint
	totals  []repository.TotalsMismatch
	err     error
}

func (f *fakeIntegrity) SlotUsage(context.Context) ([]repository.SlotUsage, error) {
	return f.usage, f.err
}

func (f *fakeIntegrity) SendersWithMultipleActive(context.Context) ([]repository.SenderActiveCount, error) {
	return f.multi, nil
}

func (f *fakeIntegrity) MirrorMismatches(context.Context) ([]repository.MirrorMismatch, error) {
	return f.mirrors, nil
}

func (f *fakeIntegrity) DuplicateMirrors(context.Context) ([]uint, error) {
	return f.dups, nil
}

func (f *fakeIntegrity) TotalsMismatches(context.Context) ([]repository.TotalsMismatch, error) {
	return f.totals, nil
}

func TestIntegrityAudit_Clean(t *testing.T) {
	svc := NewIntegrityService(&fakeIntegrity{usage: []repository.SlotUsage{
		{ReceiverID: 1, Level: domain.LevelStar, Used: domain.Quota(domain.LevelStar)},
	}})
	rep, err := svc.Audit(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.OK())
}

func TestIntegrityAudit_Violations(t *testing.T) {
	svc := NewIntegrityService(&fakeIntegrity{
		usage:   []repository.SlotUsage{{ReceiverID: 1, Level: domain.LevelStar, Used: 4}},
		multi:   []repository.SenderActiveCount{{SenderID: 2, Active: 2}},
		mirrors: []repository.MirrorMismatch{{SendHelpID: 7, SendStatus: domain.HelpStatusConfirmed}},
		dups:    []uint{8},
		totals:  []repository.TotalsMismatch{{UserID: 3, TotalSent: 300}},
	})
	rep, err := svc.Audit(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Violations, 5)

	kinds := map[string]Violation{}
	for _, v := range rep.Violations {
		kinds[v.Kind] = v
	}
	assert.Equal(t, uint(1), kinds[ViolationQuotaExceeded].UserID)
	assert.Equal(t, "receive record missing", kinds[ViolationMirrorMismatch].Detail)
	assert.Equal(t, uint(8), kinds[ViolationDuplicateMirror].HelpID)
	assert.Equal(t, uint(3), kinds[ViolationTotalsMismatch].UserID)
}

func TestIntegrityAudit_StoreError(t *testing.T) {
	svc := NewIntegrityService(&fakeIntegrity{err: errors.New("db down")})
	_, err := svc.Audit(context.Background())
	assert.Error(t, err)
}
