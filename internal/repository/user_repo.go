package repository

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrEmailTaken = errors.New("email already registered")

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// generateUserCode returns "HH" followed by 6 random digits.
func generateUserCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s%06d", domain.UserCodePrefix, n.Int64()), nil
}

// Create inserts u with a fresh unique user code. When sponsorID is non-zero the
// sponsor's referral_count is incremented in the same transaction.
func (r *UserRepository) Create(ctx context.Context, u *models.User, sponsorID uint) error {
	for i := 0; i < 10; i++ {
		code, err := generateUserCode()
		if err != nil {
			return err
		}
		u.UserCode = code
		err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(u).Error; err != nil {
				return err
			}
			if sponsorID == 0 {
				return nil
			}
			return tx.Model(&models.User{}).Where("id = ?", sponsorID).
				UpdateColumn("referral_count", gorm.Expr("referral_count + 1")).Error
		})
		if err == nil {
			return nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return err
		}
		var n int64
		r.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", u.Email).Count(&n)
		if n > 0 {
			return ErrEmailTaken
		}
		u.ID = 0
		// user code collision: retry with a new code
	}
	return fmt.Errorf("failed to generate a unique user code after retries")
}

func (r *UserRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Count(&n).Error
	return n, err
}

func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Preload("PaymentMethod").First(&u, id).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("email = ?", email).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByCode(ctx context.Context, code string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("user_code = ?", code).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) GetByGoogleID(ctx context.Context, googleID string) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("google_id = ?", googleID).First(&u).Error
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) Update(ctx context.Context, u *models.User) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Save(u).Error
}

func (r *UserRepository) UpdateFields(ctx context.Context, id uint, updates map[string]interface{}) error {
	res := r.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpsertPaymentMethod replaces the user's payment method.
func (r *UserRepository) UpsertPaymentMethod(ctx context.Context, pm *models.PaymentMethod) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"type", "upi_id", "account_holder", "account_number", "ifsc", "bank_name",
			"wallet_name", "wallet_phone", "updated_at",
		}),
	}).Create(pm).Error
}

// ListDownline returns the users directly sponsored by code.
func (r *UserRepository) ListDownline(ctx context.Context, code string, limit, offset int) ([]models.User, error) {
	var list []models.User
	err := r.db.WithContext(ctx).Where("sponsor_code = ?", code).
		Order("created_at DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

// Search is the admin user list with optional text and level filters.
func (r *UserRepository) Search(ctx context.Context, search, level string, page, limit int) ([]models.User, int64, error) {
	q := r.db.WithContext(ctx).Model(&models.User{})
	if search != "" {
		like := "%" + search + "%"
		q = q.Where("user_code LIKE ? OR email LIKE ? OR full_name LIKE ? OR phone LIKE ?", like, like, like, like)
	}
	if level != "" {
		q = q.Where("level = ?", level)
	}
	var total int64
	q.Count(&total)
	var users []models.User
	err := q.Order("created_at DESC").Limit(limit).Offset((page - 1) * limit).Find(&users).Error
	return users, total, err
}

// IDs returns the ids of all non-blocked users, optionally restricted to a level.
func (r *UserRepository) IDs(ctx context.Context, level string) ([]uint, error) {
	q := r.db.WithContext(ctx).Model(&models.User{}).Where("is_blocked = ?", false)
	if level != "" {
		q = q.Where("level = ?", level)
	}
	var ids []uint
	err := q.Pluck("id", &ids).Error
	return ids, err
}

// AdminIDs returns the ids of admin accounts.
func (r *UserRepository) AdminIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("role = ?", domain.RoleAdmin).Pluck("id", &ids).Error
	return ids, err
}
