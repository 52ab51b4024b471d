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
	ErrEpinNotOwned        = errors.New("epin does not belong to you")
	ErrEpinNotUnused       = errors.New("epin already used or transferred")
	ErrAlreadyActivated    = errors.New("account already activated")
	ErrInsufficientEpins   = errors.New("not enough unused epins")
	ErrRequestNotPending   = errors.New("epin request already reviewed")
	ErrEpinRequestUTRTaken = errors.New("UTR reference already used for an epin request")
)

type EpinRepository struct {
	db *gorm.DB
}

func NewEpinRepository(db *gorm.DB) *EpinRepository {
	return &EpinRepository{db: db}
}

// ExistingCodes returns which of codes are already taken.
func (r *EpinRepository) ExistingCodes(ctx context.Context, codes []string) ([]string, error) {
	var taken []string
	err := r.db.WithContext(ctx).Unscoped().Model(&models.Epin{}).Where("code IN ?", codes).Pluck("code", &taken).Error
	return taken, err
}

// CreateBatch inserts pins atomically. A code collision returns gorm.ErrDuplicatedKey.
func (r *EpinRepository) CreateBatch(ctx context.Context, pins []models.Epin) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.CreateInBatches(&pins, 100).Error
	})
}

func (r *EpinRepository) GetByCode(ctx context.Context, code string) (*models.Epin, error) {
	var p models.Epin
	if err := r.db.WithContext(ctx).Where("code = ?", code).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

// Use marks an UNUSED pin owned by ownerID as USED and activates targetID.
func (r *EpinRepository) Use(ctx context.Context, code string, ownerID, targetID uint) (*models.Epin, error) {
	var pin models.Epin
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("code = ?", code).First(&pin).Error; err != nil {
			return err
		}
		if pin.OwnerID == nil || *pin.OwnerID != ownerID {
			return ErrEpinNotOwned
		}
		var target models.User
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&target, targetID).Error; err != nil {
			return err
		}
		if target.IsActivated {
			return ErrAlreadyActivated
		}
		now := time.Now()
		res := tx.Model(&models.Epin{}).
			Where("id = ? AND status = ?", pin.ID, domain.EpinStatusUnused).
			Updates(map[string]interface{}{
				"status":     domain.EpinStatusUsed,
				"used_by_id": targetID,
				"used_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected != 1 {
			return ErrEpinNotUnused
		}
		pin.Status = domain.EpinStatusUsed
		pin.UsedByID = &targetID
		pin.UsedAt = &now
		return tx.Model(&models.User{}).Where("id = ?", targetID).Updates(map[string]interface{}{
			"is_activated": true,
			"activated_at": now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return &pin, nil
}

// Transfer moves len(newCodes) of the owner's UNUSED pins to recipientID. Each source pin
// becomes TRANSFERRED and a fresh UNUSED pin with ParentID set is issued to the recipient.
func (r *EpinRepository) Transfer(ctx context.Context, ownerID, recipientID uint, newCodes []string) ([]models.Epin, error) {
	var issued []models.Epin
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var src []models.Epin
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("owner_id = ? AND status = ?", ownerID, domain.EpinStatusUnused).
			Order("id ASC").Limit(len(newCodes)).Find(&src).Error; err != nil {
			return err
		}
		if len(src) < len(newCodes) {
			return ErrInsufficientEpins
		}
		now := time.Now()
		issued = make([]models.Epin, 0, len(src))
		for i, p := range src {
			res := tx.Model(&models.Epin{}).
				Where("id = ? AND status = ?", p.ID, domain.EpinStatusUnused).
				Updates(map[string]interface{}{
					"status":         domain.EpinStatusTransferred,
					"transferred_to": recipientID,
					"transferred_at": now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected != 1 {
				return ErrEpinNotUnused
			}
			parent := p.ID
			owner := recipientID
			issued = append(issued, models.Epin{
				Code:      newCodes[i],
				Status:    domain.EpinStatusUnused,
				OwnerID:   &owner,
				ParentID:  &parent,
				CreatedBy: ownerID,
			})
		}
		return tx.Create(&issued).Error
	})
	if err != nil {
		return nil, err
	}
	return issued, nil
}

func (r *EpinRepository) ListByOwner(ctx context.Context, ownerID uint, status string, limit, offset int) ([]models.Epin, error) {
	q := r.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var list []models.Epin
	err := q.Order("id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

func (r *EpinRepository) CountByOwner(ctx context.Context, ownerID uint, status string) (int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Epin{}).Where("owner_id = ?", ownerID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var n int64
	err := q.Count(&n).Error
	return n, err
}

// List is the admin view. ownerID 0 means any owner.
func (r *EpinRepository) List(ctx context.Context, status string, ownerID uint, page, limit int) ([]models.Epin, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.Epin{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	if ownerID != 0 {
		q = q.Where("owner_id = ?", ownerID)
	}
	var total int64
	q.Count(&total)
	var list []models.Epin
	err := q.Order("id DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

func (r *EpinRepository) CreateRequest(ctx context.Context, req *models.EpinRequest) error {
	err := r.db.WithContext(ctx).Create(req).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrEpinRequestUTRTaken
	}
	return err
}

func (r *EpinRepository) GetRequest(ctx context.Context, id uint) (*models.EpinRequest, error) {
	var req models.EpinRequest
	if err := r.db.WithContext(ctx).First(&req, id).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

// ListRequests filters by user (0 = all) and status.
func (r *EpinRepository) ListRequests(ctx context.Context, userID uint, status string, page, limit int) ([]models.EpinRequest, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.EpinRequest{})
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	q.Count(&total)
	var list []models.EpinRequest
	err := q.Preload("User").Order("id DESC").Limit(limit).Offset((page - 1) * limit).Find(&list).Error
	return list, total, err
}

// ApproveRequest marks a pending request approved and issues one pin per code to the requester.
func (r *EpinRepository) ApproveRequest(ctx context.Context, id, adminID uint, codes []string) (*models.EpinRequest, []models.Epin, error) {
	var req models.EpinRequest
	var pins []models.Epin
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&req, id).Error; err != nil {
			return err
		}
		if req.Status != domain.EpinRequestPending {
			return ErrRequestNotPending
		}
		now := time.Now()
		if err := tx.Model(&models.EpinRequest{}).Where("id = ?", req.ID).Updates(map[string]interface{}{
			"status":      domain.EpinRequestApproved,
			"reviewed_by": adminID,
			"reviewed_at": now,
		}).Error; err != nil {
			return err
		}
		req.Status = domain.EpinRequestApproved
		req.ReviewedBy = &adminID
		req.ReviewedAt = &now
		owner := req.UserID
		reqID := req.ID
		pins = make([]models.Epin, len(codes))
		for i, c := range codes {
			pins[i] = models.Epin{Code: c, Status: domain.EpinStatusUnused, OwnerID: &owner, RequestID: &reqID, CreatedBy: adminID}
		}
		return tx.Create(&pins).Error
	})
	if err != nil {
		return nil, nil, err
	}
	return &req, pins, nil
}

func (r *EpinRepository) RejectRequest(ctx context.Context, id, adminID uint, reason string) (*models.EpinRequest, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&models.EpinRequest{}).
		Where("id = ? AND status = ?", id, domain.EpinRequestPending).
		Updates(map[string]interface{}{
			"status":        domain.EpinRequestRejected,
			"reject_reason": reason,
			"reviewed_by":   adminID,
			"reviewed_at":   now,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetRequest(ctx, id); err != nil {
			return nil, err
		}
		return nil, ErrRequestNotPending
	}
	return r.GetRequest(ctx, id)
}
