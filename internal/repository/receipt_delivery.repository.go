package repository

import (
	"context"

	"github.com/neemapp/chanda-gateway/internal/model"
	"github.com/neemapp/chanda-gateway/pkg/pg"
)

type ReceiptDeliveryRepository struct {
	*pg.DB
}

func NewReceiptDeliveryRepository(db *pg.DB) *ReceiptDeliveryRepository {
	return &ReceiptDeliveryRepository{
		db,
	}
}

func (r *ReceiptDeliveryRepository) Create(ctx context.Context, d *model.ReceiptDelivery) (*model.ReceiptDelivery, error) {
	entity := toReceiptDeliveryEntity(d)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toReceiptDeliveryModel(entity), nil
}

// ListByDonation returns the delivery history for one donation, newest first.
func (r *ReceiptDeliveryRepository) ListByDonation(ctx context.Context, donationID int64) ([]*model.ReceiptDelivery, error) {
	var entities []*ReceiptDeliveryEntity
	err := r.Read(ctx).Model(&ReceiptDeliveryEntity{}).
		Where("donation_id = ?", donationID).
		Order("id DESC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toReceiptDeliveryModels(entities), nil
}
