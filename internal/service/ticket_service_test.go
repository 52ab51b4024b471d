package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"hhfoundation/internal/domain"
	"hhfoundation/pkg/mailer"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []mailer.Message
}

func (m *recordingMailer) Send(_ context.Context, msg mailer.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

func newTicketFixture() (*TicketService, *fakeTickets, *fakeNotifier, *recordingMailer) {
	users := newFakeUsers(activeUser(1, domain.LevelStar, 0, time.Hour), activeUser(2, domain.LevelStar, 0, time.Hour))
	tickets := &fakeTickets{}
	notifier := &fakeNotifier{}
	mail := &recordingMailer{}
	return NewTicketService(tickets, users, notifier, mail), tickets, notifier, mail
}

func TestTicket_CreateValidation(t *testing.T) {
	svc, _, _, _ := newTicketFixture()
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, "", "body", "")
	assert.ErrorIs(t, err, ErrTicketFieldsMissing)
	_, err = svc.Create(ctx, 1, "Subject", "body", "lottery")
	assert.ErrorIs(t, err, ErrInvalidCategory)

	tk, err := svc.Create(ctx, 1, " Payment missing ", "I paid but nothing happened", "payment")
	require.NoError(t, err)
	assert.Equal(t, "Payment missing", tk.Subject)
	assert.Equal(t, domain.TicketCategoryPayment, tk.Category)
	assert.Equal(t, domain.TicketStatusOpen, tk.Status)

	general, err := svc.Create(ctx, 1, "Hello", "question", "")
	require.NoError(t, err)
	assert.Equal(t, domain.TicketCategoryGeneral, general.Category)
}

func TestTicket_OwnershipAndReplies(t *testing.T) {
	svc, tickets, notifier, mail := newTicketFixture()
	ctx := context.Background()
	tk, err := svc.Create(ctx, 1, "Help", "where is my pin", domain.TicketCategoryEpin)
	require.NoError(t, err)

	_, err = svc.Get(ctx, 2, tk.ID, false)
	assert.ErrorIs(t, err, ErrTicketNotFound)
	_, err = svc.Reply(ctx, 2, tk.ID, "not mine", false)
	assert.ErrorIs(t, err, ErrTicketNotFound)

	_, err = svc.Reply(ctx, 99, tk.ID, "on it", true)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketStatusAnswered, tickets.tickets[0].Status)
	assert.True(t, notifier.has(1, domain.NotifTicketReply))
	require.Len(t, mail.sent, 1)
	assert.Equal(t, "user1@example.com", mail.sent[0].ToEmail)
	assert.Equal(t, "on it", mail.sent[0].Text)

	reply, err := svc.Reply(ctx, 1, tk.ID, "thanks", false)
	require.NoError(t, err)
	assert.False(t, reply.IsStaff)
	assert.Equal(t, domain.TicketStatusOpen, tickets.tickets[0].Status)
	assert.Len(t, mail.sent, 1)
}

func TestTicket_ClosedRefusesReplies(t *testing.T) {
	svc, _, _, _ := newTicketFixture()
	ctx := context.Background()
	tk, err := svc.Create(ctx, 1, "Help", "body", "")
	require.NoError(t, err)

	assert.ErrorIs(t, svc.SetStatus(ctx, 99, tk.ID, "archived"), ErrInvalidStatus)
	require.NoError(t, svc.SetStatus(ctx, 99, tk.ID, "closed"))

	_, err = svc.Reply(ctx, 1, tk.ID, "still there?", false)
	assert.ErrorIs(t, err, ErrTicketClosed)
	_, err = svc.Reply(ctx, 99, tk.ID, "closing note", true)
	assert.ErrorIs(t, err, ErrTicketClosed)

	assert.ErrorIs(t, svc.SetStatus(ctx, 99, 42, domain.TicketStatusOpen), ErrTicketNotFound)
}
