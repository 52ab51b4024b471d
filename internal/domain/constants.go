package domain

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// Help record statuses. One enum is shared by send_helps and receive_helps.
const (
	HelpStatusPending          = "PENDING"
	HelpStatusPaymentSubmitted = "PAYMENT_SUBMITTED"
	HelpStatusConfirmed        = "CONFIRMED"
	HelpStatusDisputed         = "DISPUTED"
	HelpStatusExpired          = "EXPIRED"
	HelpStatusCancelled        = "CANCELLED"
)

// SlotHoldingStatuses occupy one of the receiver's quota slots.
var SlotHoldingStatuses = []string{
	HelpStatusPending,
	HelpStatusPaymentSubmitted,
	HelpStatusDisputed,
	HelpStatusConfirmed,
}

// ActiveHelpStatuses are non-terminal; a sender may hold at most one.
var ActiveHelpStatuses = []string{
	HelpStatusPending,
	HelpStatusPaymentSubmitted,
	HelpStatusDisputed,
}

const (
	EpinStatusUnused      = "UNUSED"
	EpinStatusUsed        = "USED"
	EpinStatusTransferred = "TRANSFERRED"
)

const (
	EpinRequestPending  = "PENDING"
	EpinRequestApproved = "APPROVED"
	EpinRequestRejected = "REJECTED"
)

const (
	PaymentMethodUPI         = "UPI"
	PaymentMethodBank        = "BANK"
	PaymentMethodPhoneWallet = "PHONE_WALLET"
)

const (
	TicketStatusOpen     = "OPEN"
	TicketStatusAnswered = "ANSWERED"
	TicketStatusClosed   = "CLOSED"
)

const (
	TicketCategoryGeneral = "GENERAL"
	TicketCategoryPayment = "PAYMENT"
	TicketCategoryEpin    = "EPIN"
	TicketCategoryAccount = "ACCOUNT"
)

const (
	LedgerHelpSent     = "HELP_SENT"
	LedgerHelpReceived = "HELP_RECEIVED"
)

const (
	NotifHelpAssigned   = "HELP_ASSIGNED"
	NotifPaymentProof   = "PAYMENT_SUBMITTED"
	NotifHelpConfirmed  = "HELP_CONFIRMED"
	NotifHelpDisputed   = "HELP_DISPUTED"
	NotifHelpExpired    = "HELP_EXPIRED"
	NotifHelpCancelled  = "HELP_CANCELLED"
	NotifEpinReceived   = "EPIN_RECEIVED"
	NotifEpinRequest    = "EPIN_REQUEST"
	NotifAccountActive  = "ACCOUNT_ACTIVATED"
	NotifTicketReply    = "TICKET_REPLY"
	NotifBroadcast      = "BROADCAST"
	NotifChatMessage    = "CHAT_MESSAGE"
	NotifLevelQuotaFull = "LEVEL_QUOTA_FULL"
	NotifNewReferral    = "NEW_REFERRAL"
)

// Global settings keys.
const (
	SettingMatchingEnabled  = "matching_enabled"
	SettingRegistrationOpen = "registration_open"
	SettingHelpAmountPrefix = "help_amount_"
)

// DefaultSettings are seeded on first start.
var DefaultSettings = map[string]string{
	SettingMatchingEnabled:  "true",
	SettingRegistrationOpen: "true",
}

const (
	UserCodePrefix = "HH"
	EpinLength     = 8
	MaxEpinBatch   = 500
)
