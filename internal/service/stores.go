package service

import (
	"context"
	"time"

	"hhfoundation/internal/models"
	"hhfoundation/internal/repository"
)

// The interfaces below are satisfied by the gorm repositories and by test fakes.

type UserStore interface {
	Create(ctx context.Context, u *models.User, sponsorID uint) error
	Count(ctx context.Context) (int64, error)
	GetByID(ctx context.Context, id uint) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByCode(ctx context.Context, code string) (*models.User, error)
	GetByGoogleID(ctx context.Context, googleID string) (*models.User, error)
	Update(ctx context.Context, u *models.User) error
	UpdateFields(ctx context.Context, id uint, updates map[string]interface{}) error
	AdminIDs(ctx context.Context) ([]uint, error)
}

type HelpStore interface {
	GetByID(ctx context.Context, id uint) (*models.SendHelp, error)
	ActiveForSender(ctx context.Context, senderID uint) (*models.SendHelp, error)
	QueuedCandidates(ctx context.Context, level string) ([]repository.QueuedCandidate, error)
	Candidates(ctx context.Context, level string, excludeID uint, quota, limit int) ([]repository.Candidate, error)
	UsedSlots(ctx context.Context, receiverID uint, level string) (int64, error)
	Reserve(ctx context.Context, sh *models.SendHelp, quota int) error
	SubmitPayment(ctx context.Context, id, senderID uint, utr, screenshotURL string) (*models.SendHelp, bool, error)
	Confirm(ctx context.Context, id, receiverID uint, force bool) (*models.SendHelp, error)
	Dispute(ctx context.Context, id, receiverID uint, reason string) (*models.SendHelp, error)
	Close(ctx context.Context, id uint, status string, from []string) (*models.SendHelp, error)
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]models.SendHelp, error)
	ListBySender(ctx context.Context, senderID uint, limit, offset int) ([]models.SendHelp, error)
	ListIncoming(ctx context.Context, receiverID uint, status string, limit, offset int) ([]models.ReceiveHelp, error)
	Counterparties(ctx context.Context, a, b uint) (bool, error)
}

type SettingStore interface {
	Bool(key string, def bool) bool
	Int64(key string, def int64) int64
}

type TicketStore interface {
	Create(t *models.Ticket) error
	GetByID(id uint) (*models.Ticket, error)
	ListByUser(userID uint, limit, offset int) ([]models.Ticket, error)
	List(status string, page, limit int) ([]models.Ticket, int64, error)
	AddReply(reply *models.TicketReply, status string) error
	SetStatus(id uint, status string) error
}

type EpinStore interface {
	ExistingCodes(ctx context.Context, codes []string) ([]string, error)
	CreateBatch(ctx context.Context, pins []models.Epin) error
	Use(ctx context.Context, code string, ownerID, targetID uint) (*models.Epin, error)
	Transfer(ctx context.Context, ownerID, recipientID uint, newCodes []string) ([]models.Epin, error)
	ListByOwner(ctx context.Context, ownerID uint, status string, limit, offset int) ([]models.Epin, error)
	CountByOwner(ctx context.Context, ownerID uint, status string) (int64, error)
	List(ctx context.Context, status string, ownerID uint, page, limit int) ([]models.Epin, int64, error)
	CreateRequest(ctx context.Context, req *models.EpinRequest) error
	GetRequest(ctx context.Context, id uint) (*models.EpinRequest, error)
	ListRequests(ctx context.Context, userID uint, status string, page, limit int) ([]models.EpinRequest, int64, error)
	ApproveRequest(ctx context.Context, id, adminID uint, codes []string) (*models.EpinRequest, []models.Epin, error)
	RejectRequest(ctx context.Context, id, adminID uint, reason string) (*models.EpinRequest, error)
}

type ChatStore interface {
	GetOrCreateThread(ctx context.Context, key string, low, high uint) (*models.ChatThread, error)
	GetThread(ctx context.Context, key string) (*models.ChatThread, error)
	AddMessage(ctx context.Context, th *models.ChatThread, msg *models.ChatMessage, preview string) error
	Messages(ctx context.Context, threadID, beforeID uint, limit int) ([]models.ChatMessage, error)
	MarkRead(ctx context.Context, th *models.ChatThread, userID uint) error
	ThreadsFor(ctx context.Context, userID uint, limit, offset int) ([]models.ChatThread, error)
	UnreadTotal(ctx context.Context, userID uint) (int64, error)
}

// Notifier persists an in-app notification and pushes it to the user's device.
type Notifier interface {
	Notify(userID uint, notifType, title, body string, data map[string]interface{}) error
}
