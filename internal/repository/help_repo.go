package repository

import (
	"context"
	"errors"
	"time"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrReceiverFull         = errors.New("receiver quota is full")
	ErrReceiverIneligible   = errors.New("receiver is not eligible")
	ErrActiveHelpExists     = errors.New("sender already has an active help")
	ErrNotParticipant       = errors.New("not a participant of this help")
	ErrInvalidTransition    = errors.New("help is not in a state that allows this action")
	ErrAlreadySettled       = errors.New("help already confirmed")
	ErrProofAlreadySent     = errors.New("payment proof already submitted with a different reference")
	ErrUTRTaken             = errors.New("UTR reference already used")
	ErrReceiveMirrorMissing = errors.New("receive help record missing")
)

// Candidate is a potential receiver with the number of quota slots already taken at its level.
type Candidate struct {
	models.User
	UsedSlots int `gorm:"column:used_slots"`
}

type HelpRepository struct {
	db *gorm.DB
}

func NewHelpRepository(db *gorm.DB) *HelpRepository {
	return &HelpRepository{db: db}
}

func (r *HelpRepository) GetByID(ctx context.Context, id uint) (*models.SendHelp, error) {
	var sh models.SendHelp
	err := r.db.WithContext(ctx).Preload("Sender").Preload("Receiver.PaymentMethod").First(&sh, id).Error
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

// ActiveForSender returns the sender's non-terminal help with the receiver preloaded.
func (r *HelpRepository) ActiveForSender(ctx context.Context, senderID uint) (*models.SendHelp, error) {
	var sh models.SendHelp
	err := r.db.WithContext(ctx).
		Preload("Receiver.PaymentMethod").
		Where("sender_id = ? AND status IN ?", senderID, domain.ActiveHelpStatuses).
		Order("id DESC").
		First(&sh).Error
	if err != nil {
		return nil, err
	}
	return &sh, nil
}

// Candidates returns eligible receivers at level under quota, best first, in a single query.
func (r *HelpRepository) Candidates(ctx context.Context, level string, excludeID uint, quota, limit int) ([]Candidate, error) {
	slots := r.db.Model(&models.SendHelp{}).
		Select("receiver_id, COUNT(*) AS used_slots").
		Where("level = ? AND status IN ?", level, domain.SlotHoldingStatuses).
		Group("receiver_id")
	var list []Candidate
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Select("users.*, COALESCE(s.used_slots, 0) AS used_slots").
		Joins("LEFT JOIN (?) AS s ON s.receiver_id = users.id", slots).
		Where("users.is_activated = ? AND users.is_blocked = ? AND users.is_receiving_held = ?", true, false, false).
		Where("users.role = ?", domain.RoleUser).
		Where("users.level = ? AND users.id <> ?", level, excludeID).
		Where("COALESCE(s.used_slots, 0) < ?", quota).
		Order("users.referral_count DESC, users.created_at ASC, users.id ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

// QueuedCandidates returns manual queue entries for level (oldest first) with their slot usage.
func (r *HelpRepository) QueuedCandidates(ctx context.Context, level string) ([]QueuedCandidate, error) {
	var entries []models.ManualReceiverEntry
	if err := r.db.WithContext(ctx).Preload("User").
		Where("level = ?", level).Order("created_at ASC, id ASC").Find(&entries).Error; err != nil {
		return nil, err
	}
	out := make([]QueuedCandidate, 0, len(entries))
	for _, e := range entries {
		if e.User == nil {
			continue
		}
		used, err := r.UsedSlots(ctx, e.UserID, level)
		if err != nil {
			return nil, err
		}
		out = append(out, QueuedCandidate{EntryID: e.ID, Candidate: Candidate{User: *e.User, UsedSlots: int(used)}})
	}
	return out, nil
}

// QueuedCandidate is a manual queue entry resolved to its user.
type QueuedCandidate struct {
	EntryID uint
	Candidate
}

func (r *HelpRepository) UsedSlots(ctx context.Context, receiverID uint, level string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.SendHelp{}).
		Where("receiver_id = ? AND level = ? AND status IN ?", receiverID, level, domain.SlotHoldingStatuses).
		Count(&n).Error
	return n, err
}

// Reserve assigns sh.ReceiverID to sh.SenderID. The receiver row is locked and its slot usage
// recounted inside the transaction, so concurrent reservations cannot exceed quota.
func (r *HelpRepository) Reserve(ctx context.Context, sh *models.SendHelp, quota int) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var recv models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&recv, sh.ReceiverID).Error; err != nil {
			return err
		}
		if !recv.CanReceive() || recv.Level != sh.Level || recv.ID == sh.SenderID {
			return ErrReceiverIneligible
		}
		var used int64
		if err := tx.Model(&models.SendHelp{}).
			Where("receiver_id = ? AND level = ? AND status IN ?", recv.ID, sh.Level, domain.SlotHoldingStatuses).
			Count(&used).Error; err != nil {
			return err
		}
		if int(used) >= quota {
			return ErrReceiverFull
		}
		sh.Status = domain.HelpStatusPending
		sh.ActiveKey = models.SenderActiveKey(sh.SenderID)
		if sh.AssignedAt.IsZero() {
			sh.AssignedAt = time.Now()
		}
		if err := tx.Create(sh).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrActiveHelpExists
			}
			return err
		}
		rh := &models.ReceiveHelp{
			SendHelpID: sh.ID,
			ReceiverID: sh.ReceiverID,
			SenderID:   sh.SenderID,
			Level:      sh.Level,
			Amount:     sh.Amount,
			Status:     domain.HelpStatusPending,
		}
		if err := tx.Create(rh).Error; err != nil {
			return err
		}
		// the queue entry has done its job once the receiver is full
		if sh.ManualQueueID != nil && int(used)+1 >= quota {
			return tx.Delete(&models.ManualReceiverEntry{}, *sh.ManualQueueID).Error
		}
		return nil
	})
}

// SubmitPayment records proof for a PENDING help. Resubmitting the same UTR is a no-op and
// reports replayed=true.
func (r *HelpRepository) SubmitPayment(ctx context.Context, id, senderID uint, utr, screenshotURL string) (sh *models.SendHelp, replayed bool, err error) {
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := lockHelp(tx, id)
		if err != nil {
			return err
		}
		sh = cur
		if cur.SenderID != senderID {
			return ErrNotParticipant
		}
		if cur.UTR != nil {
			if *cur.UTR == utr {
				replayed = true
				return nil
			}
			return ErrProofAlreadySent
		}
		if cur.Status != domain.HelpStatusPending {
			return ErrInvalidTransition
		}
		now := time.Now()
		res := tx.Model(&models.SendHelp{}).
			Where("id = ? AND status = ?", cur.ID, domain.HelpStatusPending).
			Updates(map[string]interface{}{
				"status":         domain.HelpStatusPaymentSubmitted,
				"utr":            utr,
				"screenshot_url": screenshotURL,
				"submitted_at":   now,
			})
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
				return ErrUTRTaken
			}
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrInvalidTransition
		}
		if err := updateMirror(tx, cur.ID, map[string]interface{}{"status": domain.HelpStatusPaymentSubmitted}); err != nil {
			return err
		}
		sh.Status = domain.HelpStatusPaymentSubmitted
		sh.UTR = &utr
		sh.ScreenshotURL = screenshotURL
		sh.SubmittedAt = &now
		return nil
	})
	return sh, replayed, err
}

// Confirm settles a help in one transaction: both records confirmed, running totals
// incremented, ledger written. receiverID 0 means an admin acting on any receiver's behalf;
// force additionally allows settling a DISPUTED help.
func (r *HelpRepository) Confirm(ctx context.Context, id, receiverID uint, force bool) (*models.SendHelp, error) {
	var sh *models.SendHelp
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := lockHelp(tx, id)
		if err != nil {
			return err
		}
		sh = cur
		if receiverID != 0 && cur.ReceiverID != receiverID {
			return ErrNotParticipant
		}
		switch {
		case cur.Status == domain.HelpStatusConfirmed:
			return ErrAlreadySettled
		case cur.Status == domain.HelpStatusPaymentSubmitted:
		case cur.Status == domain.HelpStatusDisputed && force:
		default:
			return ErrInvalidTransition
		}
		now := time.Now()
		res := tx.Model(&models.SendHelp{}).
			Where("id = ? AND status = ?", cur.ID, cur.Status).
			Updates(map[string]interface{}{
				"status":       domain.HelpStatusConfirmed,
				"confirmed_at": now,
				"active_key":   nil,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrInvalidTransition
		}
		if err := updateMirror(tx, cur.ID, map[string]interface{}{
			"status":       domain.HelpStatusConfirmed,
			"confirmed_at": now,
		}); err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", cur.ReceiverID).Updates(map[string]interface{}{
			"total_received": gorm.Expr("total_received + ?", cur.Amount),
			"total_earnings": gorm.Expr("total_earnings + ?", cur.Amount),
		}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.User{}).Where("id = ?", cur.SenderID).
			Update("total_sent", gorm.Expr("total_sent + ?", cur.Amount)).Error; err != nil {
			return err
		}
		entries := []models.LedgerEntry{
			{UserID: cur.SenderID, SendHelpID: cur.ID, Type: domain.LedgerHelpSent, Amount: cur.Amount},
			{UserID: cur.ReceiverID, SendHelpID: cur.ID, Type: domain.LedgerHelpReceived, Amount: cur.Amount},
		}
		if err := tx.Create(&entries).Error; err != nil {
			return err
		}
		sh.Status = domain.HelpStatusConfirmed
		sh.ConfirmedAt = &now
		sh.ActiveKey = nil
		return nil
	})
	return sh, err
}

// Dispute marks a submitted payment as contested by the receiver. The slot stays reserved.
func (r *HelpRepository) Dispute(ctx context.Context, id, receiverID uint, reason string) (*models.SendHelp, error) {
	var sh *models.SendHelp
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := lockHelp(tx, id)
		if err != nil {
			return err
		}
		sh = cur
		if cur.ReceiverID != receiverID {
			return ErrNotParticipant
		}
		if cur.Status != domain.HelpStatusPaymentSubmitted {
			return ErrInvalidTransition
		}
		if err := tx.Model(&models.SendHelp{}).Where("id = ?", cur.ID).Updates(map[string]interface{}{
			"status":         domain.HelpStatusDisputed,
			"dispute_reason": reason,
		}).Error; err != nil {
			return err
		}
		sh.Status = domain.HelpStatusDisputed
		sh.DisputeReason = reason
		return updateMirror(tx, cur.ID, map[string]interface{}{"status": domain.HelpStatusDisputed})
	})
	return sh, err
}

// Close moves an active help to a terminal status (EXPIRED or CANCELLED), freeing the slot.
// Only helps whose current status is in from are closed.
func (r *HelpRepository) Close(ctx context.Context, id uint, status string, from []string) (*models.SendHelp, error) {
	var sh *models.SendHelp
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cur, err := lockHelp(tx, id)
		if err != nil {
			return err
		}
		sh = cur
		if !contains(from, cur.Status) {
			return ErrInvalidTransition
		}
		now := time.Now()
		if err := tx.Model(&models.SendHelp{}).Where("id = ?", cur.ID).Updates(map[string]interface{}{
			"status":     status,
			"closed_at":  now,
			"active_key": nil,
		}).Error; err != nil {
			return err
		}
		sh.Status = status
		sh.ClosedAt = &now
		sh.ActiveKey = nil
		return updateMirror(tx, cur.ID, map[string]interface{}{"status": status})
	})
	return sh, err
}

// ListStalePending returns PENDING helps assigned before cutoff.
func (r *HelpRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.SendHelp, error) {
	var list []models.SendHelp
	err := r.db.WithContext(ctx).
		Where("status = ? AND assigned_at < ?", domain.HelpStatusPending, cutoff).
		Order("assigned_at ASC").Limit(limit).Find(&list).Error
	return list, err
}

func (r *HelpRepository) ListBySender(ctx context.Context, senderID uint, limit, offset int) ([]models.SendHelp, error) {
	var list []models.SendHelp
	err := r.db.WithContext(ctx).Preload("Receiver").
		Where("sender_id = ?", senderID).
		Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

func (r *HelpRepository) ListIncoming(ctx context.Context, receiverID uint, status string, limit, offset int) ([]models.ReceiveHelp, error) {
	q := r.db.WithContext(ctx).Preload("SendHelp").Preload("Sender").Where("receiver_id = ?", receiverID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var list []models.ReceiveHelp
	err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

// List is the admin view with optional filters.
func (r *HelpRepository) List(ctx context.Context, status, level string, page, limit int) ([]models.SendHelp, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.SendHelp{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if level != "" {
		q = q.Where("level = ?", level)
	}
	var total int64
	q.Count(&total)
	var list []models.SendHelp
	err := q.Preload("Sender").Preload("Receiver").Order("id DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

// Counterparties reports whether a and b share any help record, in either direction.
func (r *HelpRepository) Counterparties(ctx context.Context, a, b uint) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.SendHelp{}).
		Where("(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)", a, b, b, a).
		Count(&n).Error
	return n > 0, err
}

func lockHelp(tx *gorm.DB, id uint) (*models.SendHelp, error) {
	var sh models.SendHelp
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&sh, id).Error; err != nil {
		return nil, err
	}
	return &sh, nil
}

func updateMirror(tx *gorm.DB, sendHelpID uint, updates map[string]interface{}) error {
	res := tx.Model(&models.ReceiveHelp{}).Where("send_help_id = ?", sendHelpID).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected != 1 {
		return ErrReceiveMirrorMissing
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
