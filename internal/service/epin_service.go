package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strings"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/metrics"
	"hhfoundation/internal/models"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var (
	ErrInvalidQuantity  = fmt.Errorf("quantity must be between 1 and %d", domain.MaxEpinBatch)
	ErrUserNotFound     = errors.New("user not found")
	ErrNotDownline      = errors.New("E-PIN can only activate yourself or your direct referrals")
	ErrSelfTransfer     = errors.New("cannot transfer E-PINs to yourself")
	ErrEpinNotFound     = errors.New("E-PIN not found")
	ErrRequestNotFound  = errors.New("E-PIN request not found")
	ErrCodeSpaceCrowded = errors.New("could not generate unique E-PIN codes")
)

const epinAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// generateEpinCode returns an 8 character code drawn uniformly from epinAlphabet.
func generateEpinCode() (string, error) {
	const maxByte = 252 // largest multiple of 36 below 256
	out := make([]byte, 0, domain.EpinLength)
	buf := make([]byte, domain.EpinLength*2)
	for len(out) < domain.EpinLength {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= maxByte {
				continue
			}
			out = append(out, epinAlphabet[int(b)%len(epinAlphabet)])
			if len(out) == domain.EpinLength {
				break
			}
		}
	}
	return string(out), nil
}

type EpinService struct {
	epins    EpinStore
	users    UserStore
	notifier Notifier
	newCode  func() (string, error)
}

func NewEpinService(epins EpinStore, users UserStore, notifier Notifier) *EpinService {
	return &EpinService{epins: epins, users: users, notifier: notifier, newCode: generateEpinCode}
}

// uniqueCodes returns n codes that are distinct from each other and from every stored pin.
// Colliding codes are regenerated.
func (s *EpinService) uniqueCodes(ctx context.Context, n int) ([]string, error) {
	codes := make([]string, 0, n)
	seen := make(map[string]bool, n)
	for round := 0; round < 10; round++ {
		fresh := make([]string, 0, n-len(codes))
		for len(codes)+len(fresh) < n {
			c, err := s.newCode()
			if err != nil {
				return nil, pkgerrors.Wrap(err, "generate code")
			}
			if seen[c] {
				continue
			}
			seen[c] = true
			fresh = append(fresh, c)
		}
		taken, err := s.epins.ExistingCodes(ctx, fresh)
		if err != nil {
			return nil, pkgerrors.Wrap(err, "check codes")
		}
		takenSet := make(map[string]bool, len(taken))
		for _, c := range taken {
			takenSet[c] = true
		}
		for _, c := range fresh {
			if !takenSet[c] {
				codes = append(codes, c)
			}
		}
		if len(codes) == n {
			return codes, nil
		}
		log.Debug().Str("section", "epin").Int("collisions", len(taken)).Msg("regenerating colliding codes")
	}
	return nil, ErrCodeSpaceCrowded
}

func (s *EpinService) notify(userID uint, typ, title, body string, data map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(userID, typ, title, body, data); err != nil {
		log.Warn().Err(err).Str("section", "epin").Uint("user_id", userID).Msg("notify failed")
	}
}

// Generate issues n UNUSED pins, assigned to the user with ownerCode when it is set.
func (s *EpinService) Generate(ctx context.Context, adminID uint, n int, ownerCode string) ([]models.Epin, error) {
	if n < 1 || n > domain.MaxEpinBatch {
		return nil, ErrInvalidQuantity
	}
	var owner *models.User
	if code := strings.ToUpper(strings.TrimSpace(ownerCode)); code != "" {
		u, err := s.users.GetByCode(ctx, code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		if err != nil {
			return nil, err
		}
		owner = u
	}

	var pins []models.Epin
	for attempt := 0; attempt < 3; attempt++ {
		codes, err := s.uniqueCodes(ctx, n)
		if err != nil {
			return nil, err
		}
		pins = make([]models.Epin, n)
		for i, c := range codes {
			pins[i] = models.Epin{Code: c, Status: domain.EpinStatusUnused, CreatedBy: adminID}
			if owner != nil {
				id := owner.ID
				pins[i].OwnerID = &id
			}
		}
		err = s.epins.CreateBatch(ctx, pins)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// a concurrent batch took one of the codes between check and insert
			continue
		}
		if err != nil {
			return nil, pkgerrors.Wrap(err, "create epins")
		}
		metrics.EpinsGenerated.Add(float64(n))
		log.Info().Str("section", "epin").Uint("admin_id", adminID).Int("count", n).Msg("epins generated")
		if owner != nil {
			s.notify(owner.ID, domain.NotifEpinReceived, "E-PINs received",
				fmt.Sprintf("%d new E-PIN(s) were added to your account", n), map[string]interface{}{"count": n})
		}
		return pins, nil
	}
	return nil, ErrCodeSpaceCrowded
}

// Use applies ownerID's pin to activate the owner or one of their direct referrals.
// An empty targetCode means the owner.
func (s *EpinService) Use(ctx context.Context, ownerID uint, code, targetCode string) (*models.Epin, error) {
	owner, err := s.users.GetByID(ctx, ownerID)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "load owner")
	}
	target := owner
	if tc := strings.ToUpper(strings.TrimSpace(targetCode)); tc != "" && tc != owner.UserCode {
		target, err = s.users.GetByCode(ctx, tc)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		if err != nil {
			return nil, err
		}
		if target.SponsorCode != owner.UserCode {
			return nil, ErrNotDownline
		}
	}

	pin, err := s.epins.Use(ctx, strings.ToUpper(strings.TrimSpace(code)), owner.ID, target.ID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrEpinNotFound
	}
	if err != nil {
		return nil, err
	}
	metrics.EpinsUsed.Inc()
	log.Info().Str("section", "epin").Str("epin", pin.Code).Uint("owner_id", owner.ID).Uint("target_id", target.ID).Msg("epin used")
	s.notify(target.ID, domain.NotifAccountActive, "Account activated",
		"Your account is now active. You can start sending help.", map[string]interface{}{"epin": pin.Code})
	return pin, nil
}

// Transfer moves qty of the owner's unused pins to the user with recipientCode.
func (s *EpinService) Transfer(ctx context.Context, ownerID uint, recipientCode string, qty int) ([]models.Epin, error) {
	if qty < 1 || qty > domain.MaxEpinBatch {
		return nil, ErrInvalidQuantity
	}
	recipient, err := s.users.GetByCode(ctx, strings.ToUpper(strings.TrimSpace(recipientCode)))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	if recipient.ID == ownerID {
		return nil, ErrSelfTransfer
	}
	codes, err := s.uniqueCodes(ctx, qty)
	if err != nil {
		return nil, err
	}
	issued, err := s.epins.Transfer(ctx, ownerID, recipient.ID, codes)
	if err != nil {
		return nil, err
	}
	log.Info().Str("section", "epin").Uint("owner_id", ownerID).Uint("recipient_id", recipient.ID).Int("count", qty).Msg("epins transferred")
	s.notify(recipient.ID, domain.NotifEpinReceived, "E-PINs received",
		fmt.Sprintf("%d E-PIN(s) were transferred to you", qty), map[string]interface{}{"count": qty})
	return issued, nil
}

func (s *EpinService) Mine(ctx context.Context, ownerID uint, status string, limit, offset int) ([]models.Epin, error) {
	return s.epins.ListByOwner(ctx, ownerID, strings.ToUpper(status), limit, offset)
}

// Request records a paid request for qty new pins.
func (s *EpinService) Request(ctx context.Context, userID uint, qty int, utr, screenshotURL string) (*models.EpinRequest, error) {
	if qty < 1 || qty > domain.MaxEpinBatch {
		return nil, ErrInvalidQuantity
	}
	ref, err := NormalizeUTR(utr)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(screenshotURL) == "" {
		return nil, ErrScreenshotRequired
	}
	req := &models.EpinRequest{
		UserID:        userID,
		Quantity:      qty,
		UTR:           ref,
		ScreenshotURL: screenshotURL,
		Status:        domain.EpinRequestPending,
	}
	if err := s.epins.CreateRequest(ctx, req); err != nil {
		return nil, err
	}
	log.Info().Str("section", "epin").Uint("user_id", userID).Uint("request_id", req.ID).Int("quantity", qty).Msg("epin request created")
	admins, err := s.users.AdminIDs(ctx)
	if err != nil {
		log.Warn().Err(err).Str("section", "epin").Msg("load admins")
	}
	for _, id := range admins {
		s.notify(id, domain.NotifEpinRequest, "New E-PIN request",
			fmt.Sprintf("%d E-PIN(s) requested, UTR %s", qty, ref), map[string]interface{}{"request_id": req.ID})
	}
	return req, nil
}

// Approve generates the requested pins for the requester.
func (s *EpinService) Approve(ctx context.Context, adminID, requestID uint) (*models.EpinRequest, []models.Epin, error) {
	req, err := s.epins.GetRequest(ctx, requestID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	for attempt := 0; attempt < 3; attempt++ {
		codes, err := s.uniqueCodes(ctx, req.Quantity)
		if err != nil {
			return nil, nil, err
		}
		approved, pins, err := s.epins.ApproveRequest(ctx, requestID, adminID, codes)
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		metrics.EpinsGenerated.Add(float64(len(pins)))
		log.Info().Str("section", "epin").Uint("admin_id", adminID).Uint("request_id", requestID).Int("count", len(pins)).Msg("epin request approved")
		s.notify(approved.UserID, domain.NotifEpinRequest, "E-PIN request approved",
			fmt.Sprintf("%d E-PIN(s) were added to your account", len(pins)), map[string]interface{}{"request_id": requestID})
		return approved, pins, nil
	}
	return nil, nil, ErrCodeSpaceCrowded
}

func (s *EpinService) Reject(ctx context.Context, adminID, requestID uint, reason string) (*models.EpinRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	req, err := s.epins.RejectRequest(ctx, requestID, adminID, reason)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}
	s.notify(req.UserID, domain.NotifEpinRequest, "E-PIN request rejected", reason, map[string]interface{}{"request_id": requestID})
	return req, nil
}

// Requests lists E-PIN purchase requests. userID 0 means every user.
func (s *EpinService) Requests(ctx context.Context, userID uint, status string, page, limit int) ([]models.EpinRequest, int64, error) {
	return s.epins.ListRequests(ctx, userID, strings.ToUpper(status), page, limit)
}

// List is the admin view of all pins, optionally filtered by status and owner.
func (s *EpinService) List(ctx context.Context, status string, ownerID uint, page, limit int) ([]models.Epin, int64, error) {
	return s.epins.List(ctx, strings.ToUpper(status), ownerID, page, limit)
}
