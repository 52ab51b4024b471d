package models

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"hhfoundation/internal/domain"

	"github.com/nyaruka/phonenumbers"
	"gorm.io/gorm"
)

var (
	ErrInvalidPaymentMethod = errors.New("invalid payment method")
	ErrInvalidUPI           = errors.New("invalid UPI id")
	ErrInvalidBankDetails   = errors.New("account holder, account number and IFSC are required")
	ErrInvalidIFSC          = errors.New("invalid IFSC code")
	ErrInvalidPhone         = errors.New("invalid phone number")
)

var (
	upiPattern  = regexp.MustCompile(`^[a-zA-Z0-9.\-_]{2,256}@[a-zA-Z]{2,64}$`)
	ifscPattern = regexp.MustCompile(`^[A-Z]{4}0[A-Z0-9]{6}$`)
)

// DefaultPhoneRegion is used when a number is given without a country code.
const DefaultPhoneRegion = "IN"

// PaymentMethod is where a user receives help. Exactly one per user.
type PaymentMethod struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	UserID        uint           `gorm:"uniqueIndex;not null" json:"-"`
	Type          string         `gorm:"size:20;not null" json:"type"` // UPI | BANK | PHONE_WALLET
	UPIID         string         `gorm:"column:upi_id;size:255" json:"upi_id,omitempty"`
	AccountHolder string         `gorm:"size:100" json:"account_holder,omitempty"`
	AccountNumber string         `gorm:"size:34" json:"account_number,omitempty"`
	IFSC          string         `gorm:"column:ifsc;size:11" json:"ifsc,omitempty"`
	BankName      string         `gorm:"size:100" json:"bank_name,omitempty"`
	WalletName    string         `gorm:"size:50" json:"wallet_name,omitempty"` // e.g. PhonePe, Paytm, GPay
	WalletPhone   string         `gorm:"size:20" json:"wallet_phone,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`
}

func (PaymentMethod) TableName() string { return "payment_methods" }

// Normalize validates the variant's fields, clears fields that belong to other
// variants and normalizes phone numbers to E.164.
func (p *PaymentMethod) Normalize() error {
	p.Type = strings.ToUpper(strings.TrimSpace(p.Type))
	switch p.Type {
	case domain.PaymentMethodUPI:
		p.UPIID = strings.TrimSpace(p.UPIID)
		if !upiPattern.MatchString(p.UPIID) {
			return ErrInvalidUPI
		}
		p.AccountHolder, p.AccountNumber, p.IFSC, p.BankName = "", "", "", ""
		p.WalletName, p.WalletPhone = "", ""
	case domain.PaymentMethodBank:
		p.AccountHolder = strings.TrimSpace(p.AccountHolder)
		p.AccountNumber = strings.ReplaceAll(strings.TrimSpace(p.AccountNumber), " ", "")
		p.IFSC = strings.ToUpper(strings.TrimSpace(p.IFSC))
		if p.AccountHolder == "" || p.AccountNumber == "" || p.IFSC == "" {
			return ErrInvalidBankDetails
		}
		if !ifscPattern.MatchString(p.IFSC) {
			return ErrInvalidIFSC
		}
		p.UPIID, p.WalletName, p.WalletPhone = "", "", ""
	case domain.PaymentMethodPhoneWallet:
		phone, err := NormalizePhone(p.WalletPhone)
		if err != nil {
			return err
		}
		p.WalletPhone = phone
		p.WalletName = strings.TrimSpace(p.WalletName)
		p.UPIID, p.AccountHolder, p.AccountNumber, p.IFSC, p.BankName = "", "", "", "", ""
	default:
		return ErrInvalidPaymentMethod
	}
	return nil
}

// NormalizePhone parses raw (default region IN) and returns it in E.164 form.
func NormalizePhone(raw string) (string, error) {
	num, err := phonenumbers.Parse(strings.TrimSpace(raw), DefaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", ErrInvalidPhone
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
