package model

import (
	"errors"
	"math"
	"regexp"
	"strings"
	"time"
)

// DefaultFestivalName is assigned when a donation arrives without a festival.
// Records created before the festival field existed are read back with this
// value as well.
const DefaultFestivalName = "General Donation"

// Festivals the collection form offers; "Other" permits free text.
var Festivals = []string{
	"Ganpati Festival",
	"Holi",
	"Diwali",
	"Ram Navami",
	"Navratri",
	"Durga Puja",
	"Kali Puja",
	"Saraswati Puja",
	"Other",
}

var (
	ErrMissingRequiredFields = errors.New("please fill in all required fields")
	ErrInvalidAmount         = errors.New("please enter a valid amount")
	ErrInvalidMobileNumber   = errors.New("please enter a valid 10-digit mobile number")
	ErrInvalidEmail          = errors.New("please enter a valid email address")
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type Donation struct {
	ID           int64     `json:"id"            db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	MandalName   string    `json:"mandal_name"   db:"mandal_name"   gorm:"column:mandal_name;not null;index"`
	DonorName    string    `json:"donor_name"    db:"donor_name"    gorm:"column:donor_name;not null;index"`
	Amount       float64   `json:"amount"        db:"amount"        gorm:"column:amount;not null;index"`
	MobileNumber string    `json:"mobile_number" db:"mobile_number" gorm:"column:mobile_number;not null"`
	Email        string    `json:"email,omitempty" db:"email"       gorm:"column:email"`
	DonationDate string    `json:"donation_date" db:"donation_date" gorm:"column:donation_date;not null;index"` // YYYY-MM-DD
	DonationTime string    `json:"donation_time" db:"donation_time" gorm:"column:donation_time;not null"`       // HH:MM:SS
	ReceiptID    string    `json:"receipt_id"    db:"receipt_id"    gorm:"column:receipt_id;not null"`
	FestivalName string    `json:"festival_name" db:"festival_name" gorm:"column:festival_name;index"`
	CreatedAt    time.Time `json:"created_at"    db:"created_at"    gorm:"column:created_at;autoCreateTime"`
}

func (Donation) TableName() string { return "donations" }

// DonationCreateRequest is the raw form input for recording a donation.
type DonationCreateRequest struct {
	MandalName   string  `json:"mandal_name"`
	DonorName    string  `json:"donor_name"`
	Amount       float64 `json:"amount"`
	MobileNumber string  `json:"mobile_number"`
	Email        string  `json:"email"`
	FestivalName string  `json:"festival_name"`
}

// Validate applies the submission gate rules in order; the first failure wins
// and nothing is persisted.
func (p DonationCreateRequest) Validate() error {
	if strings.TrimSpace(p.DonorName) == "" || strings.TrimSpace(p.MobileNumber) == "" {
		return ErrMissingRequiredFields
	}
	if p.Amount <= 0 || math.IsNaN(p.Amount) || math.IsInf(p.Amount, 0) {
		return ErrInvalidAmount
	}
	if !IsValidMobileNumber(strings.TrimSpace(p.MobileNumber)) {
		return ErrInvalidMobileNumber
	}
	if e := strings.TrimSpace(p.Email); e != "" && !IsValidEmail(e) {
		return ErrInvalidEmail
	}
	return nil
}

// IsValidMobileNumber reports whether m is exactly 10 ASCII digits.
func IsValidMobileNumber(m string) bool {
	if len(m) != 10 {
		return false
	}
	for i := 0; i < len(m); i++ {
		if m[i] < '0' || m[i] > '9' {
			return false
		}
	}
	return true
}

// IsValidEmail applies the loose local@domain.tld shape check.
func IsValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// DonationFilter narrows List queries; zero values mean "all".
type DonationFilter struct {
	DonorName string // exact match on donor_name
	StartDate string // inclusive, YYYY-MM-DD
	EndDate   string // inclusive, YYYY-MM-DD
}

// DonationStats is the aggregate view over all stored donations.
type DonationStats struct {
	Count         int64   `json:"count"`
	TotalAmount   float64 `json:"total_amount"`
	AverageAmount float64 `json:"average_amount"`
}
