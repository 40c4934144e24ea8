package repository

import (
	"time"

	"github.com/neemapp/chanda-gateway/internal/model"
)

type ReceiptDeliveryEntity struct {
	ID          int64      `db:"id"           gorm:"primaryKey;autoIncrement;column:id"`
	DonationID  int64      `db:"donation_id"  gorm:"column:donation_id;not null;index"`
	ReceiptID   string     `db:"receipt_id"   gorm:"column:receipt_id;not null"`
	Channel     string     `db:"channel"      gorm:"column:channel;not null"`
	Status      string     `db:"status"       gorm:"column:status;not null"`
	Detail      string     `db:"detail"       gorm:"column:detail"`
	DeliveredAt *time.Time `db:"delivered_at" gorm:"column:delivered_at"`
	CreatedAt   time.Time  `db:"created_at"   gorm:"column:created_at;autoCreateTime"`
}

func (ReceiptDeliveryEntity) TableName() string {
	return "receipt_deliveries"
}

func toReceiptDeliveryEntity(d *model.ReceiptDelivery) *ReceiptDeliveryEntity {
	if d == nil {
		return nil
	}
	return &ReceiptDeliveryEntity{
		ID:          d.ID,
		DonationID:  d.DonationID,
		ReceiptID:   d.ReceiptID,
		Channel:     string(d.Channel),
		Status:      string(d.Status),
		Detail:      d.Detail,
		DeliveredAt: d.DeliveredAt,
		CreatedAt:   d.CreatedAt,
	}
}

func toReceiptDeliveryModel(e *ReceiptDeliveryEntity) *model.ReceiptDelivery {
	if e == nil {
		return nil
	}
	return &model.ReceiptDelivery{
		ID:          e.ID,
		DonationID:  e.DonationID,
		ReceiptID:   e.ReceiptID,
		Channel:     model.DeliveryChannel(e.Channel),
		Status:      model.DeliveryStatus(e.Status),
		Detail:      e.Detail,
		DeliveredAt: e.DeliveredAt,
		CreatedAt:   e.CreatedAt,
	}
}

func toReceiptDeliveryModels(entities []*ReceiptDeliveryEntity) []*model.ReceiptDelivery {
	if entities == nil {
		return nil
	}
	models := make([]*model.ReceiptDelivery, len(entities))
	for i, e := range entities {
		models[i] = toReceiptDeliveryModel(e)
	}
	return models
}
