package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"hhfoundation/internal/domain"
	"hhfoundation/internal/models"
	"hhfoundation/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type fakeEpins struct {
	mu       sync.Mutex
	users    *fakeUsers
	pins     []*models.Epin
	requests []*models.EpinRequest
}

func (f *fakeEpins) ExistingCodes(_ context.Context, codes []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var taken []string
	for _, c := range codes {
		for _, p := range f.pins {
			if p.Code == c {
				taken = append(taken, c)
			}
		}
	}
	return taken, nil
}

func (f *fakeEpins) CreateBatch(_ context.Context, pins []models.Epin) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range pins {
		pins[i].ID = uint(len(f.pins) + 1)
		cp := pins[i]
		f.pins = append(f.pins, &cp)
	}
	return nil
}

func (f *fakeEpins) find(code string) *models.Epin {
	for _, p := range f.pins {
		if p.Code == code {
			return p
		}
	}
	return nil
}

func (f *fakeEpins) Use(ctx context.Context, code string, ownerID, targetID uint) (*models.Epin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.find(code)
	if p == nil {
		return nil, gorm.ErrRecordNotFound
	}
	if p.OwnerID == nil || *p.OwnerID != ownerID {
		return nil, repository.ErrEpinNotOwned
	}
	target, err := f.users.GetByID(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.IsActivated {
		return nil, repository.ErrAlreadyActivated
	}
	if p.Status != domain.EpinStatusUnused {
		return nil, repository.ErrEpinNotUnused
	}
	p.Status = domain.EpinStatusUsed
	p.UsedByID = &targetID
	_ = f.users.UpdateFields(ctx, targetID, map[string]interface{}{"is_activated": true})
	cp := *p
	return &cp, nil
}

func (f *fakeEpins) Transfer(_ context.Context, ownerID, recipientID uint, newCodes []string) ([]models.Epin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var src []*models.Epin
	for _, p := range f.pins {
		if p.OwnerID != nil && *p.OwnerID == ownerID && p.Status == domain.EpinStatusUnused && len(src) < len(newCodes) {
			src = append(src, p)
		}
	}
	if len(src) < len(newCodes) {
		return nil, repository.ErrInsufficientEpins
	}
	var issued []models.Epin
	for i, p := range src {
		p.Status = domain.EpinStatusTransferred
		p.TransferredTo = &recipientID
		parent, owner := p.ID, recipientID
		np := &models.Epin{ID: uint(len(f.pins) + 1), Code: newCodes[i], Status: domain.EpinStatusUnused, OwnerID: &owner, ParentID: &parent}
		f.pins = append(f.pins, np)
		issued = append(issued, *np)
	}
	return issued, nil
}

func (f *fakeEpins) ListByOwner(_ context.Context, ownerID uint, status string, limit, offset int) ([]models.Epin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Epin
	for _, p := range f.pins {
		if p.OwnerID != nil && *p.OwnerID == ownerID && (status == "" || p.Status == status) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeEpins) CountByOwner(ctx context.Context, ownerID uint, status string) (int64, error) {
	list, err := f.ListByOwner(ctx, ownerID, status, 0, 0)
	return int64(len(list)), err
}

func (f *fakeEpins) CreateRequest(_ context.Context, req *models.EpinRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.UTR == req.UTR {
			return repository.ErrEpinRequestUTRTaken
		}
	}
	req.ID = uint(len(f.requests) + 1)
	f.requests = append(f.requests, req)
	return nil
}

func (f *fakeEpins) GetRequest(_ context.Context, id uint) (*models.EpinRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == 0 || int(id) > len(f.requests) {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *f.requests[id-1]
	return &cp, nil
}

func (f *fakeEpins) ApproveRequest(_ context.Context, id, adminID uint, codes []string) (*models.EpinRequest, []models.Epin, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req := f.requests[id-1]
	if req.Status != domain.EpinRequestPending {
		return nil, nil, repository.ErrRequestNotPending
	}
	req.Status = domain.EpinRequestApproved
	req.ReviewedBy = &adminID
	var pins []models.Epin
	for _, c := range codes {
		owner := req.UserID
		p := &models.Epin{ID: uint(len(f.pins) + 1), Code: c, Status: domain.EpinStatusUnused, OwnerID: &owner, CreatedBy: adminID}
		f.pins = append(f.pins, p)
		pins = append(pins, *p)
	}
	cp := *req
	return &cp, pins, nil
}

func (f *fakeEpins) RejectRequest(_ context.Context, id, adminID uint, reason string) (*models.EpinRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id == 0 || int(id) > len(f.requests) {
		return nil, gorm.ErrRecordNotFound
	}
	req := f.requests[id-1]
	if req.Status != domain.EpinRequestPending {
		return nil, repository.ErrRequestNotPending
	}
	req.Status = domain.EpinRequestRejected
	req.RejectReason = reason
	cp := *req
	return &cp, nil
}

func (f *fakeEpins) List(_ context.Context, status string, ownerID uint, page, limit int) ([]models.Epin, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Epin
	for _, p := range f.pins {
		if status != "" && p.Status != status {
			continue
		}
		if ownerID != 0 && (p.OwnerID == nil || *p.OwnerID != ownerID) {
			continue
		}
		out = append(out, *p)
	}
	return out, int64(len(out)), nil
}

func (f *fakeEpins) ListRequests(_ context.Context, userID uint, status string, page, limit int) ([]models.EpinRequest, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.EpinRequest
	for _, r := range f.requests {
		if (userID == 0 || r.UserID == userID) && (status == "" || r.Status == status) {
			out = append(out, *r)
		}
	}
	return out, int64(len(out)), nil
}

type epinFixture struct {
	users    *fakeUsers
	epins    *fakeEpins
	notifier *fakeNotifier
	svc      *EpinService
}

func newEpinFixture(users ...*models.User) *epinFixture {
	f := &epinFixture{users: newFakeUsers(users...), notifier: &fakeNotifier{}}
	f.epins = &fakeEpins{users: f.users}
	f.svc = NewEpinService(f.epins, f.users, f.notifier)
	return f
}

func inactiveUser(id uint, sponsorCode string) *models.User {
	u := activeUser(id, domain.LevelStar, 0, time.Hour)
	u.IsActivated = false
	u.SponsorCode = sponsorCode
	return u
}

func TestGenerateEpinCode(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		c, err := generateEpinCode()
		require.NoError(t, err)
		assert.Regexp(t, `^[A-Z0-9]{8}$`, c)
		seen[c] = true
	}
	assert.Greater(t, len(seen), 190)
}

func TestGenerate(t *testing.T) {
	owner := activeUser(2, domain.LevelStar, 0, time.Hour)
	f := newEpinFixture(owner)

	pins, err := f.svc.Generate(context.Background(), 1, 25, owner.UserCode)
	require.NoError(t, err)
	require.Len(t, pins, 25)
	codes := map[string]bool{}
	for _, p := range pins {
		assert.Equal(t, domain.EpinStatusUnused, p.Status)
		require.NotNil(t, p.OwnerID)
		assert.Equal(t, owner.ID, *p.OwnerID)
		codes[p.Code] = true
	}
	assert.Len(t, codes, 25)
	assert.True(t, f.notifier.has(owner.ID, domain.NotifEpinReceived))

	_, err = f.svc.Generate(context.Background(), 1, 0, "")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.svc.Generate(context.Background(), 1, domain.MaxEpinBatch+1, "")
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	_, err = f.svc.Generate(context.Background(), 1, 1, "HH999999")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGenerate_RegeneratesCollisions(t *testing.T) {
	f := newEpinFixture()
	f.epins.pins = []*models.Epin{{ID: 1, Code: "AAAAAAAA", Status: domain.EpinStatusUnused}}
	seq := []string{"AAAAAAAA", "AAAAAAAA", "BBBBBBBB", "CCCCCCCC"}
	f.svc.newCode = func() (string, error) {
		c := seq[0]
		seq = seq[1:]
		return c, nil
	}

	pins, err := f.svc.Generate(context.Background(), 1, 2, "")
	require.NoError(t, err)
	assert.Equal(t, "BBBBBBBB", pins[0].Code)
	assert.Equal(t, "CCCCCCCC", pins[1].Code)
}

func TestUse(t *testing.T) {
	owner := activeUser(1, domain.LevelStar, 0, time.Hour)
	child := inactiveUser(2, owner.UserCode)
	stranger := inactiveUser(3, "HH000099")
	f := newEpinFixture(owner, child, stranger)
	pins, err := f.svc.Generate(context.Background(), 9, 2, owner.UserCode)
	require.NoError(t, err)

	_, err = f.svc.Use(context.Background(), owner.ID, pins[0].Code, stranger.UserCode)
	assert.ErrorIs(t, err, ErrNotDownline)

	used, err := f.svc.Use(context.Background(), owner.ID, pins[0].Code, child.UserCode)
	require.NoError(t, err)
	assert.Equal(t, domain.EpinStatusUsed, used.Status)
	assert.True(t, f.users.byID[child.ID].IsActivated)
	assert.True(t, f.notifier.has(child.ID, domain.NotifAccountActive))

	// the same pin cannot be applied twice
	f.users.byID[child.ID].IsActivated = false
	_, err = f.svc.Use(context.Background(), owner.ID, pins[0].Code, child.UserCode)
	assert.ErrorIs(t, err, repository.ErrEpinNotUnused)

	_, err = f.svc.Use(context.Background(), child.ID, pins[1].Code, "")
	assert.ErrorIs(t, err, repository.ErrEpinNotOwned)

	_, err = f.svc.Use(context.Background(), owner.ID, "ZZZZZZZZ", "")
	assert.ErrorIs(t, err, ErrEpinNotFound)
}

func TestTransfer(t *testing.T) {
	owner := activeUser(1, domain.LevelStar, 0, time.Hour)
	other := activeUser(2, domain.LevelStar, 0, time.Hour)
	f := newEpinFixture(owner, other)
	_, err := f.svc.Generate(context.Background(), 9, 3, owner.UserCode)
	require.NoError(t, err)

	issued, err := f.svc.Transfer(context.Background(), owner.ID, other.UserCode, 2)
	require.NoError(t, err)
	require.Len(t, issued, 2)
	for _, p := range issued {
		assert.Equal(t, other.ID, *p.OwnerID)
		assert.NotNil(t, p.ParentID)
	}
	left, err := f.svc.Mine(context.Background(), owner.ID, domain.EpinStatusUnused, 50, 0)
	require.NoError(t, err)
	assert.Len(t, left, 1)
	moved, err := f.svc.Mine(context.Background(), owner.ID, "transferred", 50, 0)
	require.NoError(t, err)
	assert.Len(t, moved, 2)

	_, err = f.svc.Transfer(context.Background(), owner.ID, other.UserCode, 5)
	assert.ErrorIs(t, err, repository.ErrInsufficientEpins)
	_, err = f.svc.Transfer(context.Background(), owner.ID, owner.UserCode, 1)
	assert.ErrorIs(t, err, ErrSelfTransfer)
}

func TestEpinRequestLifecycle(t *testing.T) {
	user := activeUser(2, domain.LevelStar, 0, time.Hour)
	f := newEpinFixture(user)

	_, err := f.svc.Request(context.Background(), user.ID, 2, "utr", "https://img/1.png")
	assert.ErrorIs(t, err, ErrInvalidUTR)
	_, err = f.svc.Request(context.Background(), user.ID, 2, "UTR123456", "")
	assert.ErrorIs(t, err, ErrScreenshotRequired)

	req, err := f.svc.Request(context.Background(), user.ID, 2, "utr123456", "https://img/1.png")
	require.NoError(t, err)
	assert.Equal(t, "UTR123456", req.UTR)
	_, err = f.svc.Request(context.Background(), user.ID, 1, "UTR123456", "https://img/2.png")
	assert.ErrorIs(t, err, repository.ErrEpinRequestUTRTaken)

	approved, pins, err := f.svc.Approve(context.Background(), 1, req.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EpinRequestApproved, approved.Status)
	assert.Len(t, pins, 2)
	assert.True(t, f.notifier.has(user.ID, domain.NotifEpinRequest))

	_, _, err = f.svc.Approve(context.Background(), 1, req.ID)
	assert.ErrorIs(t, err, repository.ErrRequestNotPending)
	_, err = f.svc.Reject(context.Background(), 1, req.ID, "duplicate")
	assert.ErrorIs(t, err, repository.ErrRequestNotPending)

	second, err := f.svc.Request(context.Background(), user.ID, 1, "UTR999999", "https://img/3.png")
	require.NoError(t, err)
	_, err = f.svc.Reject(context.Background(), 1, second.ID, " ")
	assert.ErrorIs(t, err, ErrReasonRequired)
	rejected, err := f.svc.Reject(context.Background(), 1, second.ID, "payment not found")
	require.NoError(t, err)
	assert.Equal(t, domain.EpinRequestRejected, rejected.Status)

	_, _, err = f.svc.Approve(context.Background(), 1, 42)
	assert.ErrorIs(t, err, ErrRequestNotFound)

	mine, total, err := f.svc.Requests(context.Background(), user.ID, "rejected", 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Equal(t, second.ID, mine[0].ID)
}
