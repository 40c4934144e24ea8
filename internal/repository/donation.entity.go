package repository

import (
	"time"

	"github.com/neemapp/chanda-gateway/internal/model"
)

type DonationEntity struct {
	ID           int64     `db:"id"            gorm:"primaryKey;autoIncrement;column:id"`
	MandalName   string    `db:"mandal_name"   gorm:"column:mandal_name;not null;index"`
	DonorName    string    `db:"donor_name"    gorm:"column:donor_name;not null;index"`
	Amount       float64   `db:"amount"        gorm:"column:amount;not null;index"`
	MobileNumber string    `db:"mobile_number" gorm:"column:mobile_number;not null"`
	Email        string    `db:"email"         gorm:"column:email"`
	DonationDate string    `db:"donation_date" gorm:"column:donation_date;not null;index"`
	DonationTime string    `db:"donation_time" gorm:"column:donation_time;not null"`
	ReceiptID    string    `db:"receipt_id"    gorm:"column:receipt_id;not null"`
	FestivalName string    `db:"festival_name" gorm:"column:festival_name;index"`
	CreatedAt    time.Time `db:"created_at"    gorm:"column:created_at;autoCreateTime"`
}

func (DonationEntity) TableName() string {
	return "donations"
}

func toDonationEntity(d *model.Donation) *DonationEntity {
	if d == nil {
		return nil
	}
	return &DonationEntity{
		ID:           d.ID,
		MandalName:   d.MandalName,
		DonorName:    d.DonorName,
		Amount:       d.Amount,
		MobileNumber: d.MobileNumber,
		Email:        d.Email,
		DonationDate: d.DonationDate,
		DonationTime: d.DonationTime,
		ReceiptID:    d.ReceiptID,
		FestivalName: d.FestivalName,
		CreatedAt:    d.CreatedAt,
	}
}

func toDonationModel(e *DonationEntity) *model.Donation {
	if e == nil {
		return nil
	}
	festival := e.FestivalName
	if festival == "" {
		// Legacy rows predate the festival column; never surface an empty
		// festival to callers.
		festival = model.DefaultFestivalName
	}
	return &model.Donation{
		ID:           e.ID,
		MandalName:   e.MandalName,
		DonorName:    e.DonorName,
		Amount:       e.Amount,
		MobileNumber: e.MobileNumber,
		Email:        e.Email,
		DonationDate: e.DonationDate,
		DonationTime: e.DonationTime,
		ReceiptID:    e.ReceiptID,
		FestivalName: festival,
		CreatedAt:    e.CreatedAt,
	}
}

func toDonationModels(entities []*DonationEntity) []*model.Donation {
	if entities == nil {
		return nil
	}
	models := make([]*model.Donation, len(entities))
	for i, e := range entities {
		models[i] = toDonationModel(e)
	}
	return models
}
