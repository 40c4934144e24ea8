package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	gateway "github.com/neemapp/chanda-gateway/internal/gateways"
	"github.com/neemapp/chanda-gateway/internal/model"
	"github.com/neemapp/chanda-gateway/internal/queue"
	"github.com/neemapp/chanda-gateway/internal/receipt"
	"github.com/neemapp/chanda-gateway/internal/repository"
	"github.com/neemapp/chanda-gateway/pkg/logger"
	"github.com/neemapp/chanda-gateway/pkg/prom"
)

type DonationReader interface {
	GetByReceiptID(ctx context.Context, receiptID string) (*model.Donation, error)
}

type DeliveryRecorder interface {
	Create(ctx context.Context, rd *model.ReceiptDelivery) (*model.ReceiptDelivery, error)
}

// ReceiptDeliveryProcessor consumes delivery jobs, renders the receipt and
// pushes it through every requested channel, recording one delivery row per
// attempt.
type ReceiptDeliveryProcessor struct {
	client      *gateway.Client
	donations   DonationReader
	deliveries  DeliveryRecorder
	idempotency *IdempotencyService
}

func NewReceiptDeliveryProcessor(client *gateway.Client, donations DonationReader, deliveries DeliveryRecorder, idempotency *IdempotencyService) *ReceiptDeliveryProcessor {
	return &ReceiptDeliveryProcessor{
		client:      client,
		donations:   donations,
		deliveries:  deliveries,
		idempotency: idempotency,
	}
}

func (p *ReceiptDeliveryProcessor) GetType() string {
	return "receipt-delivery"
}

// Process handles one delivery job with idempotency guarantees.
func (p *ReceiptDeliveryProcessor) Process(ctx context.Context, queueMessage *queue.Message) error {
	var job model.DeliveryJob
	if err := json.Unmarshal(queueMessage.Data, &job); err != nil {
		logger.Error("Failed to unmarshal delivery job", "error", err)
		return err // trigger DLQ move after retries
	}

	jobID := queueMessage.ID

	procCtx, err := p.idempotency.AcquireProcessingLock(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrAlreadyProcessed) {
			logger.Info("Delivery job already processed, skipping", "job_id", jobID, "receipt_id", job.ReceiptID)
			return nil
		}
		if errors.Is(err, ErrMaxRetriesExceeded) {
			logger.Error("Delivery job exhausted retries", "job_id", jobID, "receipt_id", job.ReceiptID)
			// No ack; the entry stays pending until the queue's own
			// attempt budget runs out and it is dead-lettered
			return err
		}
		if errors.Is(err, ErrLockAcquireFailed) {
			return errors.New("lock held by another consumer")
		}
		logger.Error("Failed to acquire lock", "job_id", jobID, "error", err)
		return err
	}

	defer func() {
		if procCtx.lockAcquired {
			p.idempotency.ReleaseLock(ctx, procCtx)
		}
	}()

	donation, err := p.donations.GetByReceiptID(ctx, job.ReceiptID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// The donation is gone; a retry cannot succeed
			logger.Warn("Donation missing for delivery job", "receipt_id", job.ReceiptID)
			p.idempotency.MarkSuccess(ctx, procCtx)
			return nil
		}
		p.idempotency.MarkFailure(ctx, procCtx, err)
		return err
	}

	channels := job.Channels
	if len(channels) == 0 {
		channels = defaultChannels(donation)
	}

	logger.Info("Processing receipt delivery",
		"job_id", jobID,
		"receipt_id", job.ReceiptID,
		"channels", len(channels),
		"retry_count", procCtx.RetryCount,
		"is_retry", procCtx.IsRetry)

	var firstErr error
	for _, channel := range channels {
		start := time.Now()
		detail, err := p.deliver(ctx, channel, donation)
		prom.ObserveDeliveryDuration(string(channel), time.Since(start).Seconds())

		record := &model.ReceiptDelivery{
			DonationID: donation.ID,
			ReceiptID:  donation.ReceiptID,
			Channel:    channel,
			Detail:     detail,
		}

		if err != nil {
			record.Status = model.DeliveryStatusFailed
			record.Detail = err.Error()
			prom.IncCounterVec(prom.SystemDeliveries, prom.MetricDeliveryAttempts, string(channel), string(model.DeliveryStatusFailed))

			logger.Error("Receipt delivery failed", "receipt_id", donation.ReceiptID, "channel", string(channel), "error", err)

			// A missing channel will not appear on retry; everything else might
			if firstErr == nil && !errors.Is(err, gateway.ErrChannelNotConfigured) {
				firstErr = err
			}
		} else {
			now := time.Now()
			record.Status = model.DeliveryStatusDelivered
			record.DeliveredAt = &now
			prom.IncCounterVec(prom.SystemDeliveries, prom.MetricDeliveryAttempts, string(channel), string(model.DeliveryStatusDelivered))

			logger.Info("Receipt delivered", "receipt_id", donation.ReceiptID, "channel", string(channel))
		}

		if _, err := p.deliveries.Create(ctx, record); err != nil {
			// The delivery itself happened; do not retry the job over bookkeeping
			logger.Error("Failed to save delivery record", "receipt_id", donation.ReceiptID, "channel", string(channel), "error", err)
		}
	}

	if firstErr != nil {
		p.idempotency.MarkFailure(ctx, procCtx, firstErr)
		return firstErr
	}

	if err := p.idempotency.MarkSuccess(ctx, procCtx); err != nil {
		logger.Error("Failed to mark success", "job_id", jobID, "error", err)
	}
	return nil
}

// defaultChannels picks every channel the donation supports: SMS always,
// email only when the donor left an address.
func defaultChannels(d *model.Donation) []model.DeliveryChannel {
	channels := []model.DeliveryChannel{model.DeliveryChannelSMS}
	if d.Email != "" {
		channels = append(channels, model.DeliveryChannelEmail)
	}
	return channels
}

func (p *ReceiptDeliveryProcessor) deliver(ctx context.Context, channel model.DeliveryChannel, d *model.Donation) (string, error) {
	switch channel {
	case model.DeliveryChannelSMS:
		res, err := p.client.SendSMS(ctx, &gateway.SMSRequest{
			ReceiptID:   d.ReceiptID,
			PhoneNumber: d.MobileNumber,
			Content:     receipt.SMSText(d),
		})
		if err != nil {
			return "", err
		}
		if res.Status != gateway.StatusDelivered {
			return "", fmt.Errorf("sms provider returned status %s", res.Status)
		}
		return "provider " + res.ProviderID, nil

	case model.DeliveryChannelEmail:
		if d.Email == "" {
			return "", errors.New("donation has no email address")
		}
		html, err := receipt.RenderHTML(d)
		if err != nil {
			return "", err
		}
		res, err := p.client.SendMail(ctx, &gateway.MailRequest{
			ReceiptID: d.ReceiptID,
			To:        d.Email,
			Subject:   receipt.EmailSubject(d),
			HTMLBody:  html,
		})
		if err != nil {
			return "", err
		}
		if res.Status != gateway.StatusDelivered {
			return "", fmt.Errorf("mail provider returned status %s", res.Status)
		}
		return "sent to " + d.Email, nil

	case model.DeliveryChannelPDF:
		html, err := receipt.RenderHTML(d)
		if err != nil {
			return "", err
		}
		pdf, err := p.client.ConvertPDF(ctx, []byte(html))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("pdf generated, %d bytes", len(pdf)), nil

	default:
		return "", fmt.Errorf("unknown delivery channel: %s", channel)
	}
}
