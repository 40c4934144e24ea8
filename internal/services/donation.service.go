package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neemapp/chanda-gateway/internal/live"
	"github.com/neemapp/chanda-gateway/internal/model"
	"github.com/neemapp/chanda-gateway/internal/receipt"
	"github.com/neemapp/chanda-gateway/internal/repository"
	"github.com/neemapp/chanda-gateway/pkg/logger"
	"github.com/neemapp/chanda-gateway/pkg/prom"
)

var (
	ErrNotFound         = errors.New("donation not found")
	ErrInvalidDateRange = errors.New("invalid date range")
	ErrUnknownChannel   = errors.New("unknown delivery channel")
)

type DonationRepository interface {
	CreateWithTotals(ctx context.Context, d *model.Donation) (*model.Donation, int64, float64, error)
	List(ctx context.Context) ([]*model.Donation, error)
	SearchByDonor(ctx context.Context, donorName string) ([]*model.Donation, error)
	GetByDateRange(ctx context.Context, start, end string) ([]*model.Donation, error)
	GetByReceiptID(ctx context.Context, receiptID string) (*model.Donation, error)
	GetTotalAmount(ctx context.Context) (float64, error)
	GetCount(ctx context.Context) (int64, error)
	BackfillFestivalNames(ctx context.Context) (int64, error)
}

// DeliveryPublisher hands receipt delivery jobs to the processor.
type DeliveryPublisher interface {
	PublishJSON(ctx context.Context, data interface{}, metadata map[string]string) (string, error)
}

// EventBroadcaster pushes donation events to live subscribers.
type EventBroadcaster interface {
	Broadcast(event *live.DonationEvent)
}

type DonationService struct {
	repo          DonationRepository
	deliveryQueue DeliveryPublisher
	broadcaster   EventBroadcaster
	defaultMandal string
	now           func() time.Time
}

func NewDonationService(repo DonationRepository, deliveryQueue DeliveryPublisher, broadcaster EventBroadcaster, defaultMandal string) *DonationService {
	return &DonationService{
		repo:          repo,
		deliveryQueue: deliveryQueue,
		broadcaster:   broadcaster,
		defaultMandal: defaultMandal,
		now:           time.Now,
	}
}

// Create validates the form input, stamps the server-side fields and
// persists the donation. Receipt delivery and the live broadcast happen
// after the write; their failure never fails the request.
func (s *DonationService) Create(ctx context.Context, p model.DonationCreateRequest) (*model.Donation, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	mandal := strings.TrimSpace(p.MandalName)
	if mandal == "" {
		mandal = s.defaultMandal
	}

	date, tod := receipt.CurrentDateTime(s.now())

	d := &model.Donation{
		MandalName:   mandal,
		DonorName:    strings.TrimSpace(p.DonorName),
		Amount:       p.Amount,
		MobileNumber: strings.TrimSpace(p.MobileNumber),
		Email:        strings.TrimSpace(p.Email),
		DonationDate: date,
		DonationTime: tod,
		ReceiptID:    receipt.GenerateID(),
		FestivalName: strings.TrimSpace(p.FestivalName),
	}

	created, count, total, err := s.repo.CreateWithTotals(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("create donation: %w", err)
	}

	prom.IncCounterVec(prom.SystemDonations, prom.MetricDonationsCreated, created.FestivalName)
	prom.AddHistogram(prom.SystemDonations, prom.MetricDonationAmount, created.Amount)

	s.enqueueDelivery(ctx, created, nil)
	s.broadcastCreated(created, count, total)

	return created, nil
}

func (s *DonationService) enqueueDelivery(ctx context.Context, d *model.Donation, channels []model.DeliveryChannel) {
	if s.deliveryQueue == nil {
		return
	}

	job := model.DeliveryJob{
		DonationID: d.ID,
		ReceiptID:  d.ReceiptID,
		Channels:   channels,
	}

	if _, err := s.deliveryQueue.PublishJSON(ctx, job, map[string]string{"receipt_id": d.ReceiptID}); err != nil {
		logger.Error("Failed to enqueue receipt delivery", "error", err, "receipt_id", d.ReceiptID)
	}
}

func (s *DonationService) broadcastCreated(d *model.Donation, count int64, total float64) {
	if s.broadcaster == nil {
		return
	}

	s.broadcaster.Broadcast(&live.DonationEvent{
		Type:        live.EventDonationCreated,
		Donation:    d,
		Count:       count,
		TotalAmount: total,
	})
}

func (s *DonationService) List(ctx context.Context) ([]*model.Donation, error) {
	return s.repo.List(ctx)
}

// SearchByDonor returns donations whose donor name matches exactly.
func (s *DonationService) SearchByDonor(ctx context.Context, donorName string) ([]*model.Donation, error) {
	return s.repo.SearchByDonor(ctx, strings.TrimSpace(donorName))
}

// GetByDateRange returns donations between start and end, both inclusive.
func (s *DonationService) GetByDateRange(ctx context.Context, start, end string) ([]*model.Donation, error) {
	if !validDate(start) || !validDate(end) || start > end {
		return nil, ErrInvalidDateRange
	}
	return s.repo.GetByDateRange(ctx, start, end)
}

func validDate(date string) bool {
	_, err := time.Parse("2006-01-02", date)
	return err == nil
}

// GetStats returns totals over every stored donation. The average is 0
// when nothing has been collected yet.
func (s *DonationService) GetStats(ctx context.Context) (*model.DonationStats, error) {
	count, err := s.repo.GetCount(ctx)
	if err != nil {
		return nil, err
	}
	total, err := s.repo.GetTotalAmount(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.DonationStats{
		Count:       count,
		TotalAmount: total,
	}
	if count > 0 {
		stats.AverageAmount = receipt.RoundAverage(total, count)
	}
	return stats, nil
}

func (s *DonationService) GetByReceiptID(ctx context.Context, receiptID string) (*model.Donation, error) {
	d, err := s.repo.GetByReceiptID(ctx, receiptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return d, nil
}

// RenderReceipt returns the printable HTML receipt for a donation.
func (s *DonationService) RenderReceipt(ctx context.Context, receiptID string) (string, error) {
	d, err := s.GetByReceiptID(ctx, receiptID)
	if err != nil {
		return "", err
	}

	html, err := receipt.RenderHTML(d)
	if err != nil {
		return "", fmt.Errorf("render receipt: %w", err)
	}

	prom.IncCounter(prom.SystemReceipts, prom.MetricReceiptsRendered)
	return html, nil
}

// Share re-queues receipt delivery for an existing donation. With no
// channels every supported channel is attempted.
func (s *DonationService) Share(ctx context.Context, receiptID string, channels []model.DeliveryChannel) error {
	for _, ch := range channels {
		switch ch {
		case model.DeliveryChannelSMS, model.DeliveryChannelEmail, model.DeliveryChannelPDF:
		default:
			return fmt.Errorf("%w: %s", ErrUnknownChannel, ch)
		}
	}

	d, err := s.GetByReceiptID(ctx, receiptID)
	if err != nil {
		return err
	}

	s.enqueueDelivery(ctx, d, channels)
	return nil
}

// ExportReport renders the HTML report over the donations selected by the
// filter; a zero filter covers the whole collection.
func (s *DonationService) ExportReport(ctx context.Context, filter model.DonationFilter) (string, error) {
	var (
		donations []*model.Donation
		err       error
	)
	switch {
	case strings.TrimSpace(filter.DonorName) != "":
		donations, err = s.repo.SearchByDonor(ctx, strings.TrimSpace(filter.DonorName))
	case filter.StartDate != "" || filter.EndDate != "":
		if !validDate(filter.StartDate) || !validDate(filter.EndDate) || filter.StartDate > filter.EndDate {
			return "", ErrInvalidDateRange
		}
		donations, err = s.repo.GetByDateRange(ctx, filter.StartDate, filter.EndDate)
	default:
		donations, err = s.repo.List(ctx)
	}
	if err != nil {
		return "", err
	}
	return receipt.RenderReport(donations, s.now())
}

// BackfillFestivals stamps the default festival onto legacy rows that
// predate the festival field. Safe to run repeatedly.
func (s *DonationService) BackfillFestivals(ctx context.Context) (int64, error) {
	rows, err := s.repo.BackfillFestivalNames(ctx)
	if err != nil {
		return 0, err
	}

	if rows > 0 {
		prom.AddCounter(prom.SystemDonations, prom.MetricFestivalBackfillRows, float64(rows))
	}

	logger.Info("Festival backfill completed", "rows", rows)
	return rows, nil
}
