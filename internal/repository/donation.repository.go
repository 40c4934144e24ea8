package repository

import (
	"context"
	"errors"

	"github.com/neemapp/chanda-gateway/internal/model"
	"github.com/neemapp/chanda-gateway/pkg/pg"
)

var (
	// ErrNotFound is returned when a donation does not exist.
	ErrNotFound = errors.New("donation not found")
)

type DonationRepository struct {
	*pg.DB
}

func NewDonationRepository(db *pg.DB) *DonationRepository {
	return &DonationRepository{
		db,
	}
}

// Create inserts one donation. The festival default is applied here, at write
// time, so it exists in exactly one place.
func (r *DonationRepository) Create(ctx context.Context, d *model.Donation) (*model.Donation, error) {
	if d.FestivalName == "" {
		d.FestivalName = model.DefaultFestivalName
	}
	entity := toDonationEntity(d)

	if err := r.Write(ctx).Create(entity).Error; err != nil {
		return nil, err
	}

	return toDonationModel(entity), nil
}

// CreateWithTotals inserts the donation and reads the running count and
// total inside the same transaction, so the live event always carries the
// totals as of this insert even when writers race.
func (r *DonationRepository) CreateWithTotals(ctx context.Context, d *model.Donation) (*model.Donation, int64, float64, error) {
	var (
		created *model.Donation
		count   int64
		total   float64
	)
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		if created, err = r.Create(ctx, d); err != nil {
			return err
		}
		if count, err = r.GetCount(ctx); err != nil {
			return err
		}
		total, err = r.GetTotalAmount(ctx)
		return err
	})
	if err != nil {
		return nil, 0, 0, err
	}
	return created, count, total, nil
}

// List returns every donation, most recent first.
func (r *DonationRepository) List(ctx context.Context) ([]*model.Donation, error) {
	var entities []*DonationEntity
	if err := r.Read(ctx).Model(&DonationEntity{}).Order("id DESC").Find(&entities).Error; err != nil {
		return nil, err
	}
	return toDonationModels(entities), nil
}

// SearchByDonor returns donations whose donor_name matches exactly.
func (r *DonationRepository) SearchByDonor(ctx context.Context, donorName string) ([]*model.Donation, error) {
	var entities []*DonationEntity
	err := r.Read(ctx).Model(&DonationEntity{}).
		Where("donor_name = ?", donorName).
		Order("id DESC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toDonationModels(entities), nil
}

// GetByDateRange returns donations whose donation_date falls inside the
// closed interval [start, end]. The column holds fixed-width zero-padded
// YYYY-MM-DD strings, so plain string comparison orders correctly.
func (r *DonationRepository) GetByDateRange(ctx context.Context, start, end string) ([]*model.Donation, error) {
	var entities []*DonationEntity
	err := r.Read(ctx).Model(&DonationEntity{}).
		Where("donation_date >= ? AND donation_date <= ?", start, end).
		Order("id DESC").
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	return toDonationModels(entities), nil
}

// GetByReceiptID looks a donation up by its printed receipt identifier.
func (r *DonationRepository) GetByReceiptID(ctx context.Context, receiptID string) (*model.Donation, error) {
	var entities []*DonationEntity
	err := r.Read(ctx).Model(&DonationEntity{}).
		Where("receipt_id = ?", receiptID).
		Limit(1).
		Find(&entities).Error
	if err != nil {
		return nil, err
	}
	if len(entities) == 0 {
		return nil, ErrNotFound
	}
	return toDonationModel(entities[0]), nil
}

func (r *DonationRepository) GetTotalAmount(ctx context.Context) (float64, error) {
	var total float64
	err := r.Read(ctx).Model(&DonationEntity{}).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *DonationRepository) GetCount(ctx context.Context) (int64, error) {
	var count int64
	if err := r.Read(ctx).Model(&DonationEntity{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// BackfillFestivalNames patches rows created before the festival column
// existed, setting the default wherever it is absent. One-off admin
// operation; returns the number of rows touched.
func (r *DonationRepository) BackfillFestivalNames(ctx context.Context) (int64, error) {
	res := r.Write(ctx).Model(&DonationEntity{}).
		Where("festival_name IS NULL OR festival_name = ''").
		Update("festival_name", model.DefaultFestivalName)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}
