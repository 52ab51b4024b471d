package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/events"
	"hhfoundation/internal/metrics"
	"hhfoundation/internal/models"
	"hhfoundation/internal/repository"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrNoReceiver         = errors.New("no eligible receiver available, retry later")
	ErrNotActivated       = errors.New("account is not activated")
	ErrAccountBlocked     = errors.New("account is blocked")
	ErrMatchingDisabled   = errors.New("matching is currently disabled")
	ErrHelpNotFound       = errors.New("help not found")
	ErrInvalidUTR         = errors.New("UTR must be 6 to 32 letters or digits")
	ErrAmountMismatch     = errors.New("amount does not match the level amount")
	ErrScreenshotRequired = errors.New("payment screenshot is required")
	ErrReasonRequired     = errors.New("a reason is required")
)

var utrPattern = regexp.MustCompile(`^[A-Z0-9]{6,32}$`)

// NormalizeUTR upper-cases and validates a UTR reference.
func NormalizeUTR(raw string) (string, error) {
	utr := strings.ToUpper(strings.TrimSpace(raw))
	if !utrPattern.MatchString(utr) {
		return "", ErrInvalidUTR
	}
	return utr, nil
}

// MatchResult is a sender's current assignment with the receiver's public details.
type MatchResult struct {
	Help     *models.SendHelp      `json:"send_help"`
	Receiver *models.PublicProfile `json:"receiver"`
	Existing bool                  `json:"existing"`
}

type QuotaProgress struct {
	Level string `json:"level"`
	Used  int64  `json:"used"`
	Quota int    `json:"quota"`
}

type HelpConfig struct {
	PaymentWindow  time.Duration
	CandidateLimit int
}

// HelpService owns the help lifecycle: matching, proof, settlement, disputes and expiry.
type HelpService struct {
	cfg      HelpConfig
	helps    HelpStore
	users    UserStore
	settings SettingStore
	tickets  TicketStore
	notifier Notifier
	events   events.Publisher
	now      func() time.Time
}

func NewHelpService(cfg HelpConfig, helps HelpStore, users UserStore, settings SettingStore, tickets TicketStore, notifier Notifier, pub events.Publisher) *HelpService {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 50
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &HelpService{
		cfg:      cfg,
		helps:    helps,
		users:    users,
		settings: settings,
		tickets:  tickets,
		notifier: notifier,
		events:   pub,
		now:      time.Now,
	}
}

// LevelAmount is the help amount for level, honouring the help_amount_<level> override.
func (s *HelpService) LevelAmount(level string) int64 {
	def := domain.Amount(level)
	if s.settings == nil {
		return def
	}
	return s.settings.Int64(domain.SettingHelpAmountPrefix+strings.ToLower(level), def)
}

// Match returns the sender's active assignment, or reserves a new receiver for them.
func (s *HelpService) Match(ctx context.Context, senderID uint) (*MatchResult, error) {
	sender, err := s.users.GetByID(ctx, senderID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load sender")
	}
	if sender.IsBlocked {
		return nil, ErrAccountBlocked
	}
	if !sender.IsActivated {
		return nil, ErrNotActivated
	}

	if res, err := s.existing(ctx, senderID); res != nil || err != nil {
		if res != nil {
			metrics.Matches.WithLabelValues(sender.Level, "existing").Inc()
		}
		return res, err
	}

	if s.settings != nil && !s.settings.Bool(domain.SettingMatchingEnabled, true) {
		return nil, ErrMatchingDisabled
	}

	quota := domain.Quota(sender.Level)
	if quota == 0 {
		return nil, domain.ErrUnknownLevel
	}

	queued, err := s.helps.QueuedCandidates(ctx, sender.Level)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load manual queue")
	}
	for _, q := range queued {
		if !eligible(&q.Candidate, senderID, quota) {
			continue
		}
		entryID := q.EntryID
		res, done, err := s.tryReserve(ctx, sender, &q.User, quota, &entryID)
		if done {
			return res, err
		}
	}

	cands, err := s.helps.Candidates(ctx, sender.Level, senderID, quota, s.cfg.CandidateLimit)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load candidates")
	}
	for _, c := range RankCandidates(cands, senderID, quota) {
		c := c
		res, done, err := s.tryReserve(ctx, sender, &c.User, quota, nil)
		if done {
			return res, err
		}
	}

	metrics.Matches.WithLabelValues(sender.Level, "waiting").Inc()
	log.Info().Str("section", "matcher").Uint("sender_id", senderID).Str("level", sender.Level).Msg("no eligible receiver")
	return nil, ErrNoReceiver
}

func (s *HelpService) existing(ctx context.Context, senderID uint) (*MatchResult, error) {
	sh, err := s.helps.ActiveForSender(ctx, senderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load active help")
	}
	res := &MatchResult{Help: sh, Existing: true}
	if sh.Receiver != nil {
		p := sh.Receiver.Public()
		res.Receiver = &p
	}
	return res, nil
}

// tryReserve attempts one receiver. done=false means move on to the next candidate.
func (s *HelpService) tryReserve(ctx context.Context, sender, receiver *models.User, quota int, queueID *uint) (*MatchResult, bool, error) {
	sh := &models.SendHelp{
		SenderID:      sender.ID,
		ReceiverID:    receiver.ID,
		Level:         sender.Level,
		Amount:        s.LevelAmount(sender.Level),
		ManualQueueID: queueID,
		AssignedAt:    s.now(),
	}
	err := s.helps.Reserve(ctx, sh, quota)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrReceiverFull), errors.Is(err, repository.ErrReceiverIneligible):
		metrics.ReserveConflicts.Inc()
		log.Debug().Str("section", "matcher").Uint("receiver_id", receiver.ID).Err(err).Msg("candidate skipped")
		return nil, false, nil
	case errors.Is(err, repository.ErrActiveHelpExists):
		// a concurrent request for the same sender won
		res, err := s.existing(ctx, sender.ID)
		if res == nil && err == nil {
			err = ErrNoReceiver
		}
		return res, true, err
	default:
		metrics.Matches.WithLabelValues(sender.Level, "error").Inc()
		return nil, true, pkgerrors.Wrap(err, "reserve receiver")
	}

	metrics.Matches.WithLabelValues(sender.Level, "assigned").Inc()
	log.Info().Str("section", "matcher").
		Uint("send_help_id", sh.ID).Uint("sender_id", sender.ID).Uint("receiver_id", receiver.ID).
		Str("level", sh.Level).Bool("manual_queue", queueID != nil).
		Msg("receiver assigned")

	full, err := s.users.GetByID(ctx, receiver.ID)
	if err == nil {
		receiver = full
	}
	p := receiver.Public()
	s.notify(receiver.ID, domain.NotifHelpAssigned, "New help assigned",
		fmt.Sprintf("%s will send you ₹%d", sender.FullName, sh.Amount), sh)
	s.publish(ctx, events.HelpAssigned, sh)
	return &MatchResult{Help: sh, Receiver: &p}, true, nil
}

func eligible(c *repository.Candidate, senderID uint, quota int) bool {
	return c.ID != senderID && c.CanReceive() && c.UsedSlots < quota
}

// RankCandidates drops ineligible or full candidates and orders the rest by referral count
// (highest first), then oldest account, then lowest id.
func RankCandidates(cands []repository.Candidate, senderID uint, quota int) []repository.Candidate {
	out := make([]repository.Candidate, 0, len(cands))
	for i := range cands {
		if eligible(&cands[i], senderID, quota) {
			out = append(out, cands[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.ReferralCount != b.ReferralCount {
			return a.ReferralCount > b.ReferralCount
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}

// SubmitPayment attaches proof to the sender's PENDING help.
func (s *HelpService) SubmitPayment(ctx context.Context, senderID, helpID uint, rawUTR, screenshotURL string, amount *int64) (*models.SendHelp, error) {
	utr, err := NormalizeUTR(rawUTR)
	if err != nil {
		return nil, err
	}
	cur, err := s.load(ctx, helpID)
	if err != nil {
		return nil, err
	}
	if cur.SenderID != senderID {
		return nil, repository.ErrNotParticipant
	}
	if amount != nil && *amount != cur.Amount {
		return nil, ErrAmountMismatch
	}
	if screenshotURL == "" && cur.UTR == nil {
		return nil, ErrScreenshotRequired
	}
	sh, replayed, err := s.helps.SubmitPayment(ctx, helpID, senderID, utr, screenshotURL)
	if err != nil {
		return nil, err
	}
	if replayed {
		return sh, nil
	}
	log.Info().Str("section", "payment").Uint("send_help_id", sh.ID).Uint("sender_id", senderID).Msg("payment proof submitted")
	s.notify(sh.ReceiverID, domain.NotifPaymentProof, "Payment submitted",
		fmt.Sprintf("Payment of ₹%d marked as sent (UTR %s). Please verify and confirm.", sh.Amount, utr), sh)
	s.publish(ctx, events.HelpPaymentSubmitted, sh)
	return sh, nil
}

// Confirm settles a submitted help on behalf of its receiver.
func (s *HelpService) Confirm(ctx context.Context, receiverID, helpID uint) (*models.SendHelp, error) {
	return s.settle(ctx, helpID, receiverID, false)
}

// ForceConfirm lets an admin settle a submitted or disputed help.
func (s *HelpService) ForceConfirm(ctx context.Context, adminID, helpID uint) (*models.SendHelp, error) {
	sh, err := s.settle(ctx, helpID, 0, true)
	if err == nil {
		log.Info().Str("section", "settlement").Uint("admin_id", adminID).Uint("send_help_id", helpID).Msg("help force-confirmed")
	}
	return sh, err
}

func (s *HelpService) settle(ctx context.Context, helpID, receiverID uint, force bool) (*models.SendHelp, error) {
	sh, err := s.helps.Confirm(ctx, helpID, receiverID, force)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHelpNotFound
		}
		return nil, err
	}
	metrics.Settlements.WithLabelValues(sh.Level).Inc()
	metrics.SettledAmount.WithLabelValues(sh.Level).Add(float64(sh.Amount))
	log.Info().Str("section", "settlement").
		Uint("send_help_id", sh.ID).Uint("sender_id", sh.SenderID).Uint("receiver_id", sh.ReceiverID).
		Int64("amount", sh.Amount).Msg("help confirmed")
	s.notify(sh.SenderID, domain.NotifHelpConfirmed, "Help confirmed",
		fmt.Sprintf("Your help of ₹%d has been confirmed", sh.Amount), sh)
	s.notify(sh.ReceiverID, domain.NotifHelpConfirmed, "Help received",
		fmt.Sprintf("₹%d has been added to your earnings", sh.Amount), sh)
	s.publish(ctx, events.HelpConfirmed, sh)
	return sh, nil
}

// Dispute contests a submitted payment and opens a support ticket for it.
func (s *HelpService) Dispute(ctx context.Context, receiverID, helpID uint, reason string) (*models.SendHelp, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	sh, err := s.helps.Dispute(ctx, helpID, receiverID, reason)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHelpNotFound
		}
		return nil, err
	}
	if s.tickets != nil {
		id := sh.ID
		t := &models.Ticket{
			UserID:   receiverID,
			Subject:  fmt.Sprintf("Payment dispute for help #%d", sh.ID),
			Message:  reason,
			Category: domain.TicketCategoryPayment,
			Status:   domain.TicketStatusOpen,
			HelpID:   &id,
		}
		if err := s.tickets.Create(t); err != nil {
			log.Error().Err(err).Str("section", "settlement").Uint("send_help_id", sh.ID).Msg("failed to open dispute ticket")
		}
	}
	log.Info().Str("section", "settlement").Uint("send_help_id", sh.ID).Msg("help disputed")
	s.notify(sh.SenderID, domain.NotifHelpDisputed, "Payment disputed",
		"The receiver could not verify your payment. Support will review it.", sh)
	s.publish(ctx, events.HelpDisputed, sh)
	return sh, nil
}

// Cancel is the admin path to close any unsettled help, freeing the receiver's slot.
func (s *HelpService) Cancel(ctx context.Context, adminID, helpID uint, reason string) (*models.SendHelp, error) {
	sh, err := s.helps.Close(ctx, helpID, domain.HelpStatusCancelled, domain.ActiveHelpStatuses)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrHelpNotFound
		}
		return nil, err
	}
	metrics.HelpsClosed.WithLabelValues(domain.HelpStatusCancelled).Inc()
	log.Info().Str("section", "settlement").Uint("admin_id", adminID).Uint("send_help_id", sh.ID).Str("reason", reason).Msg("help cancelled")
	body := "An administrator cancelled this help"
	if reason != "" {
		body += ": " + reason
	}
	s.notify(sh.SenderID, domain.NotifHelpCancelled, "Help cancelled", body, sh)
	s.notify(sh.ReceiverID, domain.NotifHelpCancelled, "Help cancelled", body, sh)
	s.publish(ctx, events.HelpCancelled, sh)
	return sh, nil
}

// ExpireStale expires PENDING helps older than the payment window and returns how many it closed.
func (s *HelpService) ExpireStale(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.cfg.PaymentWindow)
	stale, err := s.helps.ListStalePending(ctx, cutoff, 500)
	if err != nil {
		return 0, pkgerrors.Wrap(err, "list stale helps")
	}
	n := 0
	for _, h := range stale {
		sh, err := s.helps.Close(ctx, h.ID, domain.HelpStatusExpired, []string{domain.HelpStatusPending})
		if errors.Is(err, repository.ErrInvalidTransition) {
			continue // proof arrived meanwhile
		}
		if err != nil {
			log.Error().Err(err).Str("section", "expiry").Uint("send_help_id", h.ID).Msg("expire failed")
			continue
		}
		n++
		metrics.HelpsClosed.WithLabelValues(domain.HelpStatusExpired).Inc()
		s.notify(sh.SenderID, domain.NotifHelpExpired, "Help expired",
			"No payment was submitted in time. You can request a new receiver.", sh)
		s.notify(sh.ReceiverID, domain.NotifHelpExpired, "Help expired",
			"The assigned sender did not pay in time. Your slot is free again.", sh)
		s.publish(ctx, events.HelpExpired, sh)
	}
	if n > 0 {
		log.Info().Str("section", "expiry").Int("expired", n).Msg("expired stale helps")
	}
	return n, nil
}

// Current returns the sender's active help, or nil.
func (s *HelpService) Current(ctx context.Context, senderID uint) (*MatchResult, error) {
	return s.existing(ctx, senderID)
}

func (s *HelpService) Get(ctx context.Context, userID, helpID uint, isAdmin bool) (*models.SendHelp, error) {
	sh, err := s.load(ctx, helpID)
	if err != nil {
		return nil, err
	}
	if !isAdmin && sh.SenderID != userID && sh.ReceiverID != userID {
		return nil, repository.ErrNotParticipant
	}
	return sh, nil
}

func (s *HelpService) History(ctx context.Context, senderID uint, limit, offset int) ([]models.SendHelp, error) {
	return s.helps.ListBySender(ctx, senderID, limit, offset)
}

func (s *HelpService) Incoming(ctx context.Context, receiverID uint, status string, limit, offset int) ([]models.ReceiveHelp, error) {
	return s.helps.ListIncoming(ctx, receiverID, status, limit, offset)
}

// Progress reports how many of the user's receive slots at their level are taken.
func (s *HelpService) Progress(ctx context.Context, u *models.User) (*QuotaProgress, error) {
	used, err := s.helps.UsedSlots(ctx, u.ID, u.Level)
	if err != nil {
		return nil, err
	}
	return &QuotaProgress{Level: u.Level, Used: used, Quota: domain.Quota(u.Level)}, nil
}

func (s *HelpService) load(ctx context.Context, id uint) (*models.SendHelp, error) {
	sh, err := s.helps.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrHelpNotFound
	}
	return sh, err
}

func (s *HelpService) notify(userID uint, notifType, title, body string, sh *models.SendHelp) {
	if s.notifier == nil {
		return
	}
	data := map[string]interface{}{"send_help_id": sh.ID, "status": sh.Status}
	if err := s.notifier.Notify(userID, notifType, title, body, data); err != nil {
		log.Warn().Err(err).Uint("user_id", userID).Str("type", notifType).Msg("notify failed")
	}
}

func (s *HelpService) publish(ctx context.Context, typ string, sh *models.SendHelp) {
	s.events.Publish(ctx, events.Event{
		Type:       typ,
		HelpID:     sh.ID,
		SenderID:   sh.SenderID,
		ReceiverID: sh.ReceiverID,
		Level:      sh.Level,
		Amount:     sh.Amount,
		Status:     sh.Status,
	})
}
