package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/models"
	"hhfoundation/pkg/mailer"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrTicketClosed        = errors.New("ticket is closed")
	ErrTicketFieldsMissing = errors.New("subject and message are required")
	ErrInvalidCategory     = errors.New("invalid ticket category")
	ErrInvalidStatus       = errors.New("invalid status")
)

var ticketCategories = []string{
	domain.TicketCategoryGeneral,
	domain.TicketCategoryPayment,
	domain.TicketCategoryEpin,
	domain.TicketCategoryAccount,
}

var ticketStatuses = []string{domain.TicketStatusOpen, domain.TicketStatusAnswered, domain.TicketStatusClosed}

type TicketService struct {
	tickets  TicketStore
	users    UserStore
	notifier Notifier
	mail     mailer.Mailer
}

func NewTicketService(tickets TicketStore, users UserStore, notifier Notifier, mail mailer.Mailer) *TicketService {
	if mail == nil {
		mail = mailer.Nop{}
	}
	return &TicketService{tickets: tickets, users: users, notifier: notifier, mail: mail}
}

func (s *TicketService) Create(ctx context.Context, userID uint, subject, message, category string) (*models.Ticket, error) {
	subject = strings.TrimSpace(subject)
	message = strings.TrimSpace(message)
	if subject == "" || message == "" {
		return nil, ErrTicketFieldsMissing
	}
	category = strings.ToUpper(strings.TrimSpace(category))
	if category == "" {
		category = domain.TicketCategoryGeneral
	}
	if !inSlice(ticketCategories, category) {
		return nil, ErrInvalidCategory
	}
	t := &models.Ticket{
		UserID:   userID,
		Subject:  subject,
		Message:  message,
		Category: category,
		Status:   domain.TicketStatusOpen,
	}
	if err := s.tickets.Create(t); err != nil {
		return nil, pkgerrors.Wrap(err, "create ticket")
	}
	log.Info().Str("section", "ticket").Uint("ticket_id", t.ID).Uint("user_id", userID).Str("category", category).Msg("ticket opened")
	return t, nil
}

// Get returns a ticket with its replies. Non-admins only see their own tickets.
func (s *TicketService) Get(_ context.Context, userID, id uint, isAdmin bool) (*models.Ticket, error) {
	t, err := s.tickets.GetByID(id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTicketNotFound
	}
	if err != nil {
		return nil, err
	}
	if !isAdmin && t.UserID != userID {
		return nil, ErrTicketNotFound
	}
	return t, nil
}

func (s *TicketService) Mine(_ context.Context, userID uint, limit, offset int) ([]models.Ticket, error) {
	return s.tickets.ListByUser(userID, limit, offset)
}

func (s *TicketService) List(_ context.Context, status string, page, limit int) ([]models.Ticket, int64, error) {
	return s.tickets.List(strings.ToUpper(status), page, limit)
}

// Reply appends a message. A staff reply marks the ticket ANSWERED and tells the user by
// notification and email; a user reply reopens it.
func (s *TicketService) Reply(ctx context.Context, authorID, id uint, message string, isAdmin bool) (*models.TicketReply, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrTicketFieldsMissing
	}
	t, err := s.Get(ctx, authorID, id, isAdmin)
	if err != nil {
		return nil, err
	}
	if t.IsClosed() {
		return nil, ErrTicketClosed
	}
	status := domain.TicketStatusOpen
	if isAdmin {
		status = domain.TicketStatusAnswered
	}
	reply := &models.TicketReply{TicketID: t.ID, AuthorID: authorID, IsStaff: isAdmin, Message: message}
	if err := s.tickets.AddReply(reply, status); err != nil {
		return nil, pkgerrors.Wrap(err, "add reply")
	}
	if isAdmin {
		s.tellOwner(ctx, t, message)
	}
	return reply, nil
}

func (s *TicketService) tellOwner(ctx context.Context, t *models.Ticket, message string) {
	if s.notifier != nil {
		if err := s.notifier.Notify(t.UserID, domain.NotifTicketReply, "Support replied", t.Subject,
			map[string]interface{}{"ticket_id": t.ID}); err != nil {
			log.Warn().Err(err).Str("section", "ticket").Msg("notify failed")
		}
	}
	owner := t.User
	if owner == nil {
		u, err := s.users.GetByID(ctx, t.UserID)
		if err != nil {
			log.Warn().Err(err).Str("section", "ticket").Uint("ticket_id", t.ID).Msg("load ticket owner")
			return
		}
		owner = u
	}
	err := s.mail.Send(ctx, mailer.Message{
		ToName:  owner.FullName,
		ToEmail: owner.Email,
		Subject: fmt.Sprintf("Re: %s (ticket #%d)", t.Subject, t.ID),
		Text:    message,
	})
	if err != nil {
		log.Error().Err(err).Str("section", "ticket").Uint("ticket_id", t.ID).Msg("reply email failed")
	}
}

func (s *TicketService) SetStatus(_ context.Context, adminID, id uint, status string) error {
	status = strings.ToUpper(strings.TrimSpace(status))
	if !inSlice(ticketStatuses, status) {
		return ErrInvalidStatus
	}
	err := s.tickets.SetStatus(id, status)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrTicketNotFound
	}
	if err != nil {
		return err
	}
	log.Info().Str("section", "ticket").Uint("ticket_id", id).Uint("admin_id", adminID).Str("status", status).Msg("ticket status changed")
	return nil
}

func inSlice(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
