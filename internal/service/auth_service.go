package service

import (
	"context"
	"errors"
	"strings"

	"hhfoundation/config"
	"hhfoundation/internal/auth"
	"hhfoundation/internal/domain"
	"hhfoundation/internal/models"
	"hhfoundation/internal/repository"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrEmailExists         = errors.New("email already registered")
	ErrInvalidCreds        = errors.New("invalid email or password")
	ErrSponsorRequired     = errors.New("sponsor_id is required")
	ErrSponsorNotFound     = errors.New("sponsor not found")
	ErrRegistrationClosed  = errors.New("registration is currently closed")
	ErrGoogleNotRegistered = errors.New("no account for this Google email; register with a sponsor first")
	ErrPasswordNotSet      = errors.New("account uses Google sign-in; set a password first")
	ErrWeakPassword        = errors.New("password must be at least 8 characters")
)

type RegisterInput struct {
	FullName    string
	Email       string
	Phone       string
	Password    string
	SponsorCode string
}

type AuthService struct {
	cfg      *config.Config
	userRepo UserStore
	settings SettingStore
	notifier Notifier
}

func NewAuthService(cfg *config.Config, userRepo UserStore, settings SettingStore, notifier Notifier) *AuthService {
	return &AuthService{cfg: cfg, userRepo: userRepo, settings: settings, notifier: notifier}
}

func (s *AuthService) tokens(u *models.User) (string, string, error) {
	access, err := auth.GenerateAccessToken(&s.cfg.JWT, u.ID, u.Email, u.Role)
	if err != nil {
		return "", "", err
	}
	refresh, err := auth.GenerateRefreshToken(&s.cfg.JWT, u.ID)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// Register creates a user under a sponsor. Only the very first account may omit the sponsor.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*models.User, string, string, error) {
	if s.settings != nil && !s.settings.Bool(domain.SettingRegistrationOpen, true) {
		return nil, "", "", ErrRegistrationClosed
	}
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if len(in.Password) < 8 {
		return nil, "", "", ErrWeakPassword
	}
	phone := ""
	if strings.TrimSpace(in.Phone) != "" {
		p, err := models.NormalizePhone(in.Phone)
		if err != nil {
			return nil, "", "", err
		}
		phone = p
	}

	_, err := s.userRepo.GetByEmail(ctx, email)
	if err == nil {
		return nil, "", "", ErrEmailExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", "", err
	}

	var sponsor *models.User
	code := strings.ToUpper(strings.TrimSpace(in.SponsorCode))
	if code == "" {
		n, err := s.userRepo.Count(ctx)
		if err != nil {
			return nil, "", "", err
		}
		if n > 0 {
			return nil, "", "", ErrSponsorRequired
		}
	} else {
		sponsor, err = s.userRepo.GetByCode(ctx, code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", "", ErrSponsorNotFound
		}
		if err != nil {
			return nil, "", "", err
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", "", err
	}
	u := &models.User{
		FullName:     strings.TrimSpace(in.FullName),
		Email:        email,
		Phone:        phone,
		PasswordHash: string(hash),
		Role:         domain.RoleUser,
		Level:        domain.LevelStar,
	}
	var sponsorID uint
	if sponsor != nil {
		u.SponsorCode = sponsor.UserCode
		u.UplineCode = sponsor.UserCode
		sponsorID = sponsor.ID
	}
	if err := s.userRepo.Create(ctx, u, sponsorID); err != nil {
		if errors.Is(err, repository.ErrEmailTaken) {
			return nil, "", "", ErrEmailExists
		}
		return nil, "", "", pkgerrors.Wrap(err, "create user")
	}
	log.Info().Str("section", "auth").Uint("user_id", u.ID).Str("user_code", u.UserCode).Str("sponsor", u.SponsorCode).Msg("user registered")
	if sponsor != nil && s.notifier != nil {
		_ = s.notifier.Notify(sponsor.ID, domain.NotifNewReferral, "New referral",
			u.FullName+" joined with your sponsor ID", map[string]interface{}{"user_id": u.UserCode})
	}
	access, refresh, err := s.tokens(u)
	if err != nil {
		return u, "", "", err
	}
	return u, access, refresh, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*models.User, string, string, error) {
	u, err := s.userRepo.GetByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", "", ErrInvalidCreds
		}
		return nil, "", "", err
	}
	if u.PasswordHash == "" {
		return nil, "", "", ErrInvalidCreds
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", "", ErrInvalidCreds
	}
	if u.IsBlocked {
		return nil, "", "", ErrAccountBlocked
	}
	access, refresh, err := s.tokens(u)
	if err != nil {
		return nil, "", "", err
	}
	return u, access, refresh, nil
}

// LoginWithGoogle signs in an existing account by Google ID, linking the ID on first use by
// verified email. Unknown emails are refused because registration needs a sponsor.
func (s *AuthService) LoginWithGoogle(ctx context.Context, googleID, email string) (*models.User, string, string, error) {
	u, err := s.userRepo.GetByGoogleID(ctx, googleID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", "", err
	}
	if u == nil {
		u, err = s.userRepo.GetByEmail(ctx, strings.ToLower(email))
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, "", "", ErrGoogleNotRegistered
		}
		if err != nil {
			return nil, "", "", err
		}
		if err := s.userRepo.UpdateFields(ctx, u.ID, map[string]interface{}{"google_id": googleID}); err != nil {
			return nil, "", "", err
		}
		gid := googleID
		u.GoogleID = &gid
	}
	if u.IsBlocked {
		return nil, "", "", ErrAccountBlocked
	}
	access, refresh, err := s.tokens(u)
	if err != nil {
		return nil, "", "", err
	}
	return u, access, refresh, nil
}

// ChangePassword updates the user's password. Requires current password verification.
func (s *AuthService) ChangePassword(ctx context.Context, userID uint, currentPassword, newPassword string) error {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil || u == nil {
		return ErrInvalidCreds
	}
	if u.PasswordHash == "" {
		return ErrPasswordNotSet
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(currentPassword)); err != nil {
		return ErrInvalidCreds
	}
	if len(newPassword) < 8 {
		return ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	return s.userRepo.UpdateFields(ctx, userID, map[string]interface{}{"password_hash": string(hash)})
}

func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (access, refresh string, err error) {
	userID, err := auth.ParseRefreshToken(&s.cfg.JWT, refreshToken)
	if err != nil {
		return "", "", err
	}
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return "", "", auth.ErrInvalidToken
	}
	if u.IsBlocked {
		return "", "", ErrAccountBlocked
	}
	return s.tokens(u)
}
