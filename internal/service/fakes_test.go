package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/models"
	"hhfoundation/internal/repository"

	"gorm.io/gorm"
)

type fakeUsers struct {
	mu     sync.Mutex
	byID   map[uint]*models.User
	nextID uint
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{byID: map[uint]*models.User{}}
	for _, u := range users {
		if u.ID > f.nextID {
			f.nextID = u.ID
		}
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Create(_ context.Context, u *models.User, sponsorID uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ex := range f.byID {
		if ex.Email == u.Email {
			return repository.ErrEmailTaken
		}
	}
	f.nextID++
	u.ID = f.nextID
	u.UserCode = fmt.Sprintf("HH%06d", u.ID)
	u.CreatedAt = time.Now()
	f.byID[u.ID] = u
	if sp, ok := f.byID[sponsorID]; ok {
		sp.ReferralCount++
	}
	return nil
}

func (f *fakeUsers) Count(context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.byID)), nil
}

func (f *fakeUsers) GetByID(_ context.Context, id uint) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUsers) find(match func(*models.User) bool) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.Email == email })
}

func (f *fakeUsers) GetByCode(_ context.Context, code string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.UserCode == code })
}

func (f *fakeUsers) GetByGoogleID(_ context.Context, gid string) (*models.User, error) {
	return f.find(func(u *models.User) bool { return u.GoogleID != nil && *u.GoogleID == gid })
}

func (f *fakeUsers) AdminIDs(context.Context) ([]uint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uint
	for _, u := range f.byID {
		if u.IsAdmin() {
			ids = append(ids, u.ID)
		}
	}
	return ids, nil
}

func (f *fakeUsers) Update(_ context.Context, u *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *u
	f.byID[u.ID] = &cp
	return nil
}

func (f *fakeUsers) UpdateFields(_ context.Context, id uint, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for k, v := range updates {
		switch k {
		case "is_activated":
			u.IsActivated = v.(bool)
		case "is_blocked":
			u.IsBlocked = v.(bool)
		case "is_receiving_held":
			u.IsReceivingHeld = v.(bool)
		case "level":
			u.Level = v.(string)
		case "fcm_token":
			u.FCMToken = v.(string)
		case "full_name":
			u.FullName = v.(string)
		case "phone":
			u.Phone = v.(string)
		case "password_hash":
			u.PasswordHash = v.(string)
		case "google_id":
			gid := v.(string)
			u.GoogleID = &gid
		}
	}
	return nil
}

// fakeHelps keeps help records in memory and applies the same slot rules as the database.
type fakeHelps struct {
	mu      sync.Mutex
	users   *fakeUsers
	helps   map[uint]*models.SendHelp
	queue   []repository.QueuedCandidate
	nextID  uint
	reserve func(sh *models.SendHelp) error // optional hook run before a reservation
}

func newFakeHelps(users *fakeUsers) *fakeHelps {
	return &fakeHelps{users: users, helps: map[uint]*models.SendHelp{}}
}

func (f *fakeHelps) usedLocked(receiverID uint, level string) int {
	n := 0
	for _, h := range f.helps {
		if h.ReceiverID == receiverID && h.Level == level && inSlice(domain.SlotHoldingStatuses, h.Status) {
			n++
		}
	}
	return n
}

func (f *fakeHelps) GetByID(_ context.Context, id uint) (*models.SendHelp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.helps[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *h
	return &cp, nil
}

func (f *fakeHelps) ActiveForSender(ctx context.Context, senderID uint) (*models.SendHelp, error) {
	f.mu.Lock()
	var found *models.SendHelp
	for _, h := range f.helps {
		if h.SenderID == senderID && h.IsActive() {
			cp := *h
			found = &cp
		}
	}
	f.mu.Unlock()
	if found == nil {
		return nil, gorm.ErrRecordNotFound
	}
	found.Receiver, _ = f.users.GetByID(ctx, found.ReceiverID)
	return found, nil
}

func (f *fakeHelps) QueuedCandidates(context.Context, string) ([]repository.QueuedCandidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]repository.QueuedCandidate(nil), f.queue...), nil
}

func (f *fakeHelps) Candidates(_ context.Context, level string, excludeID uint, quota, limit int) ([]repository.Candidate, error) {
	f.users.mu.Lock()
	f.mu.Lock()
	var out []repository.Candidate
	for _, u := range f.users.byID {
		if u.ID == excludeID || u.Level != level || !u.CanReceive() {
			continue
		}
		used := f.usedLocked(u.ID, level)
		if used >= quota {
			continue
		}
		out = append(out, repository.Candidate{User: *u, UsedSlots: used})
	}
	f.mu.Unlock()
	f.users.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeHelps) UsedSlots(_ context.Context, receiverID uint, level string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(f.usedLocked(receiverID, level)), nil
}

func (f *fakeHelps) Reserve(ctx context.Context, sh *models.SendHelp, quota int) error {
	if f.reserve != nil {
		if err := f.reserve(sh); err != nil {
			return err
		}
	}
	recv, err := f.users.GetByID(ctx, sh.ReceiverID)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if !recv.CanReceive() || recv.Level != sh.Level || recv.ID == sh.SenderID {
		return repository.ErrReceiverIneligible
	}
	if f.usedLocked(recv.ID, sh.Level) >= quota {
		return repository.ErrReceiverFull
	}
	for _, h := range f.helps {
		if h.SenderID == sh.SenderID && h.IsActive() {
			return repository.ErrActiveHelpExists
		}
	}
	f.nextID++
	sh.ID = f.nextID
	sh.Status = domain.HelpStatusPending
	sh.ActiveKey = models.SenderActiveKey(sh.SenderID)
	cp := *sh
	f.helps[sh.ID] = &cp
	return nil
}

func (f *fakeHelps) SubmitPayment(_ context.Context, id, senderID uint, utr, screenshotURL string) (*models.SendHelp, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.helps[id]
	if !ok {
		return nil, false, gorm.ErrRecordNotFound
	}
	if h.SenderID != senderID {
		return nil, false, repository.ErrNotParticipant
	}
	if h.UTR != nil {
		if *h.UTR == utr {
			cp := *h
			return &cp, true, nil
		}
		return nil, false, repository.ErrProofAlreadySent
	}
	if h.Status != domain.HelpStatusPending {
		return nil, false, repository.ErrInvalidTransition
	}
	for _, o := range f.helps {
		if o.UTR != nil && *o.UTR == utr {
			return nil, false, repository.ErrUTRTaken
		}
	}
	now := time.Now()
	h.UTR = &utr
	h.ScreenshotURL = screenshotURL
	h.Status = domain.HelpStatusPaymentSubmitted
	h.SubmittedAt = &now
	cp := *h
	return &cp, false, nil
}

func (f *fakeHelps) Confirm(_ context.Context, id, receiverID uint, force bool) (*models.SendHelp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.helps[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if receiverID != 0 && h.ReceiverID != receiverID {
		return nil, repository.ErrNotParticipant
	}
	switch {
	case h.Status == domain.HelpStatusConfirmed:
		return nil, repository.ErrAlreadySettled
	case h.Status == domain.HelpStatusPaymentSubmitted:
	case h.Status == domain.HelpStatusDisputed && force:
	default:
		return nil, repository.ErrInvalidTransition
	}
	now := time.Now()
	h.Status = domain.HelpStatusConfirmed
	h.ConfirmedAt = &now
	h.ActiveKey = nil
	f.users.mu.Lock()
	f.users.byID[h.ReceiverID].TotalReceived += h.Amount
	f.users.byID[h.ReceiverID].TotalEarnings += h.Amount
	f.users.byID[h.SenderID].TotalSent += h.Amount
	f.users.mu.Unlock()
	cp := *h
	return &cp, nil
}

func (f *fakeHelps) Dispute(_ context.Context, id, receiverID uint, reason string) (*models.SendHelp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.helps[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if h.ReceiverID != receiverID {
		return nil, repository.ErrNotParticipant
	}
	if h.Status != domain.HelpStatusPaymentSubmitted {
		return nil, repository.ErrInvalidTransition
	}
	h.Status = domain.HelpStatusDisputed
	h.DisputeReason = reason
	cp := *h
	return &cp, nil
}

func (f *fakeHelps) Close(_ context.Context, id uint, status string, from []string) (*models.SendHelp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.helps[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if !inSlice(from, h.Status) {
		return nil, repository.ErrInvalidTransition
	}
	now := time.Now()
	h.Status = status
	h.ClosedAt = &now
	h.ActiveKey = nil
	cp := *h
	return &cp, nil
}

func (f *fakeHelps) ListStalePending(_ context.Context, cutoff time.Time, limit int) ([]models.SendHelp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SendHelp
	for _, h := range f.helps {
		if h.Status == domain.HelpStatusPending && h.AssignedAt.Before(cutoff) {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (f *fakeHelps) ListBySender(_ context.Context, senderID uint, limit, offset int) ([]models.SendHelp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.SendHelp
	for _, h := range f.helps {
		if h.SenderID == senderID {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (f *fakeHelps) ListIncoming(_ context.Context, receiverID uint, status string, limit, offset int) ([]models.ReceiveHelp, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ReceiveHelp
	for _, h := range f.helps {
		if h.ReceiverID == receiverID && (status == "" || h.Status == status) {
			out = append(out, models.ReceiveHelp{SendHelpID: h.ID, ReceiverID: h.ReceiverID, SenderID: h.SenderID, Status: h.Status, Amount: h.Amount})
		}
	}
	return out, nil
}

func (f *fakeHelps) Counterparties(_ context.Context, a, b uint) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.helps {
		if (h.SenderID == a && h.ReceiverID == b) || (h.SenderID == b && h.ReceiverID == a) {
			return true, nil
		}
	}
	return false, nil
}

type fakeSettings map[string]string

func (f fakeSettings) Bool(key string, def bool) bool {
	v, ok := f[key]
	if !ok {
		return def
	}
	return v == "true"
}

func (f fakeSettings) Int64(key string, def int64) int64 {
	v, ok := f[key]
	if !ok {
		return def
	}
	var n int64
	for _, c := range v {
		n = n*10 + int64(c-'0')
	}
	return n
}

type sentNotification struct {
	UserID uint
	Type   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (f *fakeNotifier) Notify(userID uint, notifType, _, _ string, _ map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentNotification{UserID: userID, Type: notifType})
	return nil
}

func (f *fakeNotifier) has(userID uint, typ string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.sent {
		if n.UserID == userID && n.Type == typ {
			return true
		}
	}
	return false
}

type fakeTickets struct {
	mu      sync.Mutex
	tickets []*models.Ticket
	replies []*models.TicketReply
}

func (f *fakeTickets) Create(t *models.Ticket) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	t.ID = uint(len(f.tickets) + 1)
	f.tickets = append(f.tickets, t)
	return nil
}

func (f *fakeTickets) GetByID(id uint) (*models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == 0 || int(id) > len(f.tickets) {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *f.tickets[id-1]
	return &cp, nil
}

func (f *fakeTickets) ListByUser(userID uint, limit, offset int) ([]models.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Ticket
	for _, t := range f.tickets {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTickets) List(status string, page, limit int) ([]models.Ticket, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Ticket
	for _, t := range f.tickets {
		if status == "" || t.Status == status {
			out = append(out, *t)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeTickets) AddReply(reply *models.TicketReply, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replies = append(f.replies, reply)
	f.tickets[reply.TicketID-1].Status = status
	return nil
}

func (f *fakeTickets) SetStatus(id uint, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == 0 || int(id) > len(f.tickets) {
		return gorm.ErrRecordNotFound
	}
	f.tickets[id-1].Status = status
	return nil
}

func (f fakeSettings) Set(key, value string) error {
	f[key] = value
	return nil
}
