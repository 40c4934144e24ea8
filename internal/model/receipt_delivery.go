package model

import "time"

// DeliveryChannel is the sink a rendered receipt was handed to.
type DeliveryChannel string

const (
	DeliveryChannelSMS   DeliveryChannel = "sms"
	DeliveryChannelEmail DeliveryChannel = "email"
	DeliveryChannelPDF   DeliveryChannel = "pdf"
)

type DeliveryStatus string

const (
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
)

// DeliveryJob is the queue payload that asks the processor to deliver a
// donation's receipt. An empty Channels slice means "every channel the
// donation supports".
type DeliveryJob struct {
	DonationID int64             `json:"donation_id"`
	ReceiptID  string            `json:"receipt_id"`
	Channels   []DeliveryChannel `json:"channels,omitempty"`
}

// ReceiptDelivery records one attempt to deliver a receipt for a donation.
type ReceiptDelivery struct {
	ID          int64           `json:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	DonationID  int64           `json:"donation_id"  gorm:"column:donation_id;not null;index"`
	ReceiptID   string          `json:"receipt_id"   gorm:"column:receipt_id;not null"`
	Channel     DeliveryChannel `json:"channel"      gorm:"column:channel;not null"`
	Status      DeliveryStatus  `json:"status"       gorm:"column:status;not null"`
	Detail      string          `json:"detail,omitempty" gorm:"column:detail"`
	DeliveredAt *time.Time      `json:"delivered_at,omitempty" gorm:"column:delivered_at"`
	CreatedAt   time.Time       `json:"created_at"   gorm:"column:created_at;autoCreateTime"`
}

func (ReceiptDelivery) TableName() string { return "receipt_deliveries" }
