package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/models"
	"hhfoundation/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func activeUser(id uint, level string, referrals int, age time.Duration) *models.User {
	return &models.User{
		ID:            id,
		UserCode:      fmt.Sprintf("HH%06d", id),
		FullName:      fmt.Sprintf("User %d", id),
		Email:         fmt.Sprintf("user%d@example.com", id),
		Role:          domain.RoleUser,
		Level:         level,
		ReferralCount: referrals,
		IsActivated:   true,
		CreatedAt:     t0.Add(-age),
	}
}

type helpFixture struct {
	users    *fakeUsers
	helps    *fakeHelps
	notifier *fakeNotifier
	tickets  *fakeTickets
	settings fakeSettings
	svc      *HelpService
}

func newHelpFixture(users ...*models.User) *helpFixture {
	f := &helpFixture{
		users:    newFakeUsers(users...),
		notifier: &fakeNotifier{},
		tickets:  &fakeTickets{},
		settings: fakeSettings{},
	}
	f.helps = newFakeHelps(f.users)
	f.svc = NewHelpService(HelpConfig{PaymentWindow: 24 * time.Hour, CandidateLimit: 50},
		f.helps, f.users, f.settings, f.tickets, f.notifier, nil)
	f.svc.now = func() time.Time { return t0 }
	return f
}

func TestRankCandidates(t *testing.T) {
	cands := []repository.Candidate{
		{User: *activeUser(2, domain.LevelStar, 1, time.Hour)},
		{User: *activeUser(3, domain.LevelStar, 5, time.Hour)},
		{User: *activeUser(4, domain.LevelStar, 5, 2*time.Hour)},
		{User: *activeUser(5, domain.LevelStar, 9, time.Hour), UsedSlots: 3},
		{User: *activeUser(1, domain.LevelStar, 20, time.Hour)},
	}
	held := activeUser(6, domain.LevelStar, 50, time.Hour)
	held.IsReceivingHeld = true
	cands = append(cands, repository.Candidate{User: *held})

	ranked := RankCandidates(cands, 1, 3)
	ids := make([]uint, len(ranked))
	for i, c := range ranked {
		ids[i] = c.ID
	}
	// 1 is the sender, 5 is full, 6 is held; 4 is older than 3 at equal referrals
	assert.Equal(t, []uint{4, 3, 2}, ids)
}

func TestMatch_PicksTopRankedAndIsIdempotent(t *testing.T) {
	f := newHelpFixture(
		activeUser(1, domain.LevelStar, 0, time.Hour),
		activeUser(2, domain.LevelStar, 3, time.Hour),
		activeUser(3, domain.LevelStar, 7, time.Hour),
	)
	ctx := context.Background()

	res, err := f.svc.Match(ctx, 1)
	require.NoError(t, err)
	assert.False(t, res.Existing)
	assert.Equal(t, uint(3), res.Help.ReceiverID)
	assert.Equal(t, int64(300), res.Help.Amount)
	assert.Equal(t, domain.HelpStatusPending, res.Help.Status)
	require.NotNil(t, res.Receiver)
	assert.Equal(t, uint(3), res.Receiver.ID)
	assert.True(t, f.notifier.has(3, domain.NotifHelpAssigned))

	again, err := f.svc.Match(ctx, 1)
	require.NoError(t, err)
	assert.True(t, again.Existing)
	assert.Equal(t, res.Help.ID, again.Help.ID)
}

func TestMatch_NeverAssignsStaff(t *testing.T) {
	admin := activeUser(9, domain.LevelStar, 100, 2*time.Hour)
	admin.Role = domain.RoleAdmin
	f := newHelpFixture(activeUser(1, domain.LevelStar, 0, time.Hour), admin, activeUser(2, domain.LevelStar, 0, time.Hour))

	res, err := f.svc.Match(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint(2), res.Help.ReceiverID)
}

func TestMatch_RespectsQuota(t *testing.T) {
	f := newHelpFixture(activeUser(10, domain.LevelStar, 0, time.Hour))
	for id := uint(1); id <= 4; id++ {
		u := activeUser(id, domain.LevelStar, 0, time.Hour)
		u.IsReceivingHeld = true // senders only
		f.users.byID[id] = u
	}
	ctx := context.Background()
	for id := uint(1); id <= 3; id++ {
		res, err := f.svc.Match(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, uint(10), res.Help.ReceiverID)
	}
	_, err := f.svc.Match(ctx, 4)
	assert.ErrorIs(t, err, ErrNoReceiver)

	used, _ := f.helps.UsedSlots(ctx, 10, domain.LevelStar)
	assert.Equal(t, int64(3), used)
}

func TestMatch_ConcurrentSendersNeverExceedQuota(t *testing.T) {
	f := newHelpFixture(
		activeUser(100, domain.LevelStar, 2, time.Hour),
		activeUser(101, domain.LevelStar, 1, time.Hour),
	)
	for id := uint(1); id <= 10; id++ {
		u := activeUser(id, domain.LevelStar, 0, time.Hour)
		u.IsReceivingHeld = true
		f.users.byID[id] = u
	}
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	assigned, waiting := 0, 0
	for id := uint(1); id <= 10; id++ {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			_, err := f.svc.Match(ctx, id)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				assigned++
			} else if assert.ErrorIs(t, err, ErrNoReceiver) {
				waiting++
			}
		}(id)
	}
	wg.Wait()

	assert.Equal(t, 6, assigned)
	assert.Equal(t, 4, waiting)
	for _, r := range []uint{100, 101} {
		used, _ := f.helps.UsedSlots(ctx, r, domain.LevelStar)
		assert.LessOrEqual(t, used, int64(3))
	}
}

func TestMatch_FallsThroughWhenReceiverFillsDuringReserve(t *testing.T) {
	f := newHelpFixture(
		activeUser(1, domain.LevelStar, 0, time.Hour),
		activeUser(2, domain.LevelStar, 9, time.Hour),
		activeUser(3, domain.LevelStar, 1, time.Hour),
	)
	f.helps.reserve = func(sh *models.SendHelp) error {
		if sh.ReceiverID == 2 {
			return repository.ErrReceiverFull
		}
		return nil
	}
	res, err := f.svc.Match(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint(3), res.Help.ReceiverID)
}

func TestMatch_ManualQueueFirst(t *testing.T) {
	queued := activeUser(3, domain.LevelStar, 0, time.Minute)
	f := newHelpFixture(
		activeUser(1, domain.LevelStar, 0, time.Hour),
		activeUser(2, domain.LevelStar, 50, time.Hour),
		queued,
	)
	f.helps.queue = []repository.QueuedCandidate{{EntryID: 77, Candidate: repository.Candidate{User: *queued}}}

	res, err := f.svc.Match(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, uint(3), res.Help.ReceiverID)
	require.NotNil(t, res.Help.ManualQueueID)
	assert.Equal(t, uint(77), *res.Help.ManualQueueID)
}

func TestMatch_SenderChecks(t *testing.T) {
	inactive := activeUser(1, domain.LevelStar, 0, time.Hour)
	inactive.IsActivated = false
	blocked := activeUser(2, domain.LevelStar, 0, time.Hour)
	blocked.IsBlocked = true
	f := newHelpFixture(inactive, blocked, activeUser(3, domain.LevelStar, 0, time.Hour), activeUser(4, domain.LevelStar, 0, time.Hour))
	ctx := context.Background()

	_, err := f.svc.Match(ctx, 1)
	assert.ErrorIs(t, err, ErrNotActivated)
	_, err = f.svc.Match(ctx, 2)
	assert.ErrorIs(t, err, ErrAccountBlocked)

	f.settings[domain.SettingMatchingEnabled] = "false"
	_, err = f.svc.Match(ctx, 3)
	assert.ErrorIs(t, err, ErrMatchingDisabled)
}

func TestLevelAmountOverride(t *testing.T) {
	f := newHelpFixture()
	assert.Equal(t, int64(2000), f.svc.LevelAmount(domain.LevelGold))
	f.settings["help_amount_gold"] = "2500"
	assert.Equal(t, int64(2500), f.svc.LevelAmount(domain.LevelGold))
}

func matchedFixture(t *testing.T) (*helpFixture, *models.SendHelp) {
	t.Helper()
	f := newHelpFixture(
		activeUser(1, domain.LevelStar, 0, time.Hour),
		activeUser(2, domain.LevelStar, 0, time.Hour),
	)
	f.users.byID[1].IsReceivingHeld = true
	res, err := f.svc.Match(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, uint(2), res.Help.ReceiverID)
	return f, res.Help
}

func TestSubmitPayment(t *testing.T) {
	f, sh := matchedFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitPayment(ctx, 1, sh.ID, "12", "https://img/1.png", nil)
	assert.ErrorIs(t, err, ErrInvalidUTR)

	wrong := int64(999)
	_, err = f.svc.SubmitPayment(ctx, 1, sh.ID, "UTR123456", "https://img/1.png", &wrong)
	assert.ErrorIs(t, err, ErrAmountMismatch)

	_, err = f.svc.SubmitPayment(ctx, 1, sh.ID, "UTR123456", "", nil)
	assert.ErrorIs(t, err, ErrScreenshotRequired)

	_, err = f.svc.SubmitPayment(ctx, 2, sh.ID, "UTR123456", "https://img/1.png", nil)
	assert.ErrorIs(t, err, repository.ErrNotParticipant)

	got, err := f.svc.SubmitPayment(ctx, 1, sh.ID, "utr123456", "https://img/1.png", nil)
	require.NoError(t, err)
	assert.Equal(t, domain.HelpStatusPaymentSubmitted, got.Status)
	assert.Equal(t, "UTR123456", *got.UTR)
	assert.True(t, f.notifier.has(2, domain.NotifPaymentProof))

	replay, err := f.svc.SubmitPayment(ctx, 1, sh.ID, "UTR123456", "", nil)
	require.NoError(t, err)
	assert.Equal(t, got.ID, replay.ID)

	_, err = f.svc.SubmitPayment(ctx, 1, sh.ID, "OTHER98765", "https://img/2.png", nil)
	assert.ErrorIs(t, err, repository.ErrProofAlreadySent)
}

func TestConfirm_SettlesOnce(t *testing.T) {
	f, sh := matchedFixture(t)
	ctx := context.Background()

	_, err := f.svc.Confirm(ctx, 2, sh.ID)
	assert.ErrorIs(t, err, repository.ErrInvalidTransition, "pending help cannot be confirmed")

	_, err = f.svc.SubmitPayment(ctx, 1, sh.ID, "UTR555555", "https://img/1.png", nil)
	require.NoError(t, err)

	_, err = f.svc.Confirm(ctx, 1, sh.ID)
	assert.ErrorIs(t, err, repository.ErrNotParticipant)

	done, err := f.svc.Confirm(ctx, 2, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HelpStatusConfirmed, done.Status)

	_, err = f.svc.Confirm(ctx, 2, sh.ID)
	assert.ErrorIs(t, err, repository.ErrAlreadySettled)

	recv, _ := f.users.GetByID(ctx, 2)
	sender, _ := f.users.GetByID(ctx, 1)
	assert.Equal(t, int64(300), recv.TotalReceived)
	assert.Equal(t, int64(300), recv.TotalEarnings)
	assert.Equal(t, int64(300), sender.TotalSent)
	assert.True(t, f.notifier.has(1, domain.NotifHelpConfirmed))

	// sender is free to be matched again; receiver still holds the confirmed slot
	used, _ := f.helps.UsedSlots(ctx, 2, domain.LevelStar)
	assert.Equal(t, int64(1), used)
	cur, err := f.svc.Current(ctx, 1)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestDisputeOpensTicketAndForceConfirm(t *testing.T) {
	f, sh := matchedFixture(t)
	ctx := context.Background()
	_, err := f.svc.SubmitPayment(ctx, 1, sh.ID, "UTR777777", "https://img/1.png", nil)
	require.NoError(t, err)

	_, err = f.svc.Dispute(ctx, 2, sh.ID, "  ")
	assert.ErrorIs(t, err, ErrReasonRequired)

	d, err := f.svc.Dispute(ctx, 2, sh.ID, "amount not received")
	require.NoError(t, err)
	assert.Equal(t, domain.HelpStatusDisputed, d.Status)
	require.Len(t, f.tickets.tickets, 1)
	assert.Equal(t, sh.ID, *f.tickets.tickets[0].HelpID)
	assert.Equal(t, domain.TicketCategoryPayment, f.tickets.tickets[0].Category)

	_, err = f.svc.Confirm(ctx, 2, sh.ID)
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)

	done, err := f.svc.ForceConfirm(ctx, 99, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.HelpStatusConfirmed, done.Status)
}

func TestExpireStaleFreesSlot(t *testing.T) {
	f, sh := matchedFixture(t)
	ctx := context.Background()

	n, err := f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "assignment is still inside the payment window")

	f.svc.now = func() time.Time { return t0.Add(25 * time.Hour) }
	n, err = f.svc.ExpireStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ := f.helps.GetByID(ctx, sh.ID)
	assert.Equal(t, domain.HelpStatusExpired, got.Status)
	used, _ := f.helps.UsedSlots(ctx, 2, domain.LevelStar)
	assert.Zero(t, used)
	assert.True(t, f.notifier.has(1, domain.NotifHelpExpired))
	assert.True(t, f.notifier.has(2, domain.NotifHelpExpired))
}

func TestCancel(t *testing.T) {
	f, sh := matchedFixture(t)
	ctx := context.Background()

	c, err := f.svc.Cancel(ctx, 99, sh.ID, "duplicate account")
	require.NoError(t, err)
	assert.Equal(t, domain.HelpStatusCancelled, c.Status)

	_, err = f.svc.Cancel(ctx, 99, sh.ID, "")
	assert.ErrorIs(t, err, repository.ErrInvalidTransition)

	_, err = f.svc.Cancel(ctx, 99, 12345, "")
	assert.ErrorIs(t, err, ErrHelpNotFound)
}
