package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/neemapp/chanda-gateway/internal/model"
	"github.com/neemapp/chanda-gateway/pkg/logger"
	"github.com/valyala/fasthttp"
)

var (
	ErrChannelUnavailable   = errors.New("delivery channel unavailable")
	ErrChannelNotConfigured = errors.New("delivery channel not configured")
)

// SMSRequest is the payload for the SMS provider.
type SMSRequest struct {
	ReceiptID   string `json:"receipt_id"`
	PhoneNumber string `json:"phone_number"`
	Content     string `json:"content"`
}

// MailRequest is the payload for the mail provider.
type MailRequest struct {
	ReceiptID string `json:"receipt_id"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	HTMLBody  string `json:"html_body"`
}

// DeliveryResponse is what both providers return on send.
type DeliveryResponse struct {
	ReceiptID   string     `json:"receipt_id"`
	Status      string     `json:"status"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	ErrorCode   string     `json:"error_code,omitempty"`
	ErrorMsg    string     `json:"error_message,omitempty"`
	ProviderID  string     `json:"provider_id"`
	ProcessedAt time.Time  `json:"processed_at"`
}

const StatusDelivered = "DELIVERED"

type Config struct {
	SMSProviderURL          string
	MailProviderURL         string
	PdfConverterURL         string
	Timeout                 time.Duration
	MaxRetries              int
	RetryDelay              time.Duration
	MaxConns                int
	HealthCheckInterval     time.Duration
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration
}

// Client talks to the delivery backends. Channels whose URL is left empty
// are simply unconfigured: calls against them fail fast with
// ErrChannelNotConfigured rather than timing out.
type Client struct {
	config    *Config
	endpoints map[model.DeliveryChannel]*Endpoint
	mu        sync.RWMutex
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}

	client := &Client{
		config:    config,
		endpoints: make(map[model.DeliveryChannel]*Endpoint),
		stopCh:    make(chan struct{}),
	}

	for channel, url := range map[model.DeliveryChannel]string{
		model.DeliveryChannelSMS:   config.SMSProviderURL,
		model.DeliveryChannelEmail: config.MailProviderURL,
		model.DeliveryChannelPDF:   config.PdfConverterURL,
	} {
		if url == "" {
			logger.Warn("Delivery channel not configured, skipping", "channel", string(channel))
			continue
		}

		httpClient := &fasthttp.Client{
			MaxConnsPerHost:     config.MaxConns,
			ReadTimeout:         config.Timeout,
			WriteTimeout:        config.Timeout,
			MaxIdleConnDuration: 60 * time.Second,
		}
		client.endpoints[channel] = NewEndpoint(channel, url, httpClient)
		logger.Info("Delivery endpoint initialized", "channel", string(channel), "url", url)
	}

	if len(client.endpoints) == 0 {
		return nil, errors.New("at least one delivery channel is required")
	}

	if config.HealthCheckInterval > 0 {
		client.wg.Add(1)
		go client.healthChecker()
	}

	logger.Info("Delivery client initialized", "channels", len(client.endpoints), "timeout", config.Timeout)

	return client, nil
}

func (c *Client) Close() {
	close(c.stopCh)
	c.wg.Wait()
}

// Available reports whether a channel is configured and its circuit closed.
func (c *Client) Available(channel model.DeliveryChannel) bool {
	ep, ok := c.endpoints[channel]
	return ok && ep.IsAvailable()
}

func (c *Client) endpoint(channel model.DeliveryChannel) (*Endpoint, error) {
	ep, ok := c.endpoints[channel]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotConfigured, channel)
	}
	if !ep.IsAvailable() {
		return nil, fmt.Errorf("%w: %s", ErrChannelUnavailable, channel)
	}
	return ep, nil
}

// SendSMS delivers a receipt summary to the donor's phone.
func (c *Client) SendSMS(ctx context.Context, req *SMSRequest) (*DeliveryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	response, err := c.send(ctx, model.DeliveryChannelSMS, "POST", "/api/v1/sms/send", "application/json", body)
	if err != nil {
		return nil, err
	}

	var resp DeliveryResponse
	if err := json.Unmarshal(response, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	logger.Info("SMS receipt sent", "receipt_id", req.ReceiptID, "status", resp.Status)
	return &resp, nil
}

// SendMail delivers the full HTML receipt to the donor's mailbox.
func (c *Client) SendMail(ctx context.Context, req *MailRequest) (*DeliveryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	response, err := c.send(ctx, model.DeliveryChannelEmail, "POST", "/api/v1/mail/send", "application/json", body)
	if err != nil {
		return nil, err
	}

	var resp DeliveryResponse
	if err := json.Unmarshal(response, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	logger.Info("Mail receipt sent", "receipt_id", req.ReceiptID, "status", resp.Status)
	return &resp, nil
}

// ConvertPDF renders receipt HTML into PDF bytes through the converter.
func (c *Client) ConvertPDF(ctx context.Context, html []byte) ([]byte, error) {
	return c.send(ctx, model.DeliveryChannelPDF, "POST", "/api/v1/convert", "text/html; charset=utf-8", html)
}

// send runs the retry loop against a single channel's endpoint.
func (c *Client) send(ctx context.Context, channel model.DeliveryChannel, method, path, contentType string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.config.RetryDelay):
			}
		}

		ep, err := c.endpoint(channel)
		if err != nil {
			if errors.Is(err, ErrChannelNotConfigured) {
				return nil, err
			}
			lastErr = err
			continue
		}

		startTime := time.Now()
		response, err := c.doRequest(ctx, ep, method, path, contentType, body)
		latency := time.Since(startTime).Milliseconds()

		if err != nil {
			ep.metrics.RecordFailure()
			c.checkCircuitBreaker(ep)

			logger.Warn("Delivery request failed, retrying", "error", err, "channel", string(channel), "attempt", attempt+1)

			lastErr = err
			continue
		}

		ep.metrics.RecordSuccess(latency)
		return response, nil
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

// doRequest performs one HTTP request with a deadline
func (c *Client) doRequest(ctx context.Context, ep *Endpoint, method, path, contentType string, body []byte) ([]byte, error) {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(ep.url + path)
	req.Header.SetMethod(method)
	req.Header.SetContentType(contentType)

	if body != nil {
		req.SetBody(body)
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(c.config.Timeout)
	}

	if err := ep.client.DoDeadline(req, resp, deadline); err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	statusCode := resp.StatusCode()
	if statusCode != fasthttp.StatusOK && statusCode != fasthttp.StatusAccepted {
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", statusCode, resp.Body())
	}

	result := make([]byte, len(resp.Body()))
	copy(result, resp.Body())

	return result, nil
}

func (c *Client) checkCircuitBreaker(ep *Endpoint) {
	consecutiveFails := ep.metrics.ConsecutiveFails.Load()
	if consecutiveFails >= int32(c.config.CircuitBreakerThreshold) && c.config.CircuitBreakerThreshold > 0 {
		ep.SetState(StateCircuitOpen)
		openUntil := time.Now().Add(c.config.CircuitBreakerTimeout).Unix()
		ep.circuitOpenUntil.Store(openUntil)

		logger.Warn("Circuit breaker opened", "channel", string(ep.channel), "consecutive_fails", consecutiveFails, "timeout", c.config.CircuitBreakerTimeout)
	}
}

func (c *Client) healthChecker() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.performHealthChecks()
		case <-c.stopCh:
			return
		}
	}
}

func (c *Client) performHealthChecks() {
	ctx, cancel := context.WithTimeout(context.Background(), c.config.Timeout)
	defer cancel()

	for _, ep := range c.endpoints {
		healthy := c.checkEndpointHealth(ctx, ep)
		ep.lastHealthCheck.Store(time.Now().Unix())

		oldState := ep.GetState()
		newState := oldState

		if healthy {
			if oldState == StateUnhealthy || oldState == StateDegraded {
				newState = StateHealthy
			}
		} else if oldState != StateCircuitOpen {
			newState = StateUnhealthy
		}

		if newState != oldState {
			ep.SetState(newState)
			logger.Info("Delivery endpoint state changed", "channel", string(ep.channel), "old_state", stateString(oldState), "new_state", stateString(newState))
		}
	}
}

func (c *Client) checkEndpointHealth(ctx context.Context, ep *Endpoint) bool {
	response, err := c.doRequest(ctx, ep, "GET", "/health", "application/json", nil)
	if err != nil {
		return false
	}

	var health struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(response, &health); err != nil {
		return false
	}

	return health.Status == "healthy"
}

// GetEndpointStats returns per-channel delivery statistics.
func (c *Client) GetEndpointStats() []EndpointStats {
	stats := make([]EndpointStats, 0, len(c.endpoints))
	for _, ep := range c.endpoints {
		stats = append(stats, EndpointStats{
			Channel:          string(ep.channel),
			URL:              ep.url,
			State:            stateString(ep.GetState()),
			TotalRequests:    ep.metrics.TotalRequests.Load(),
			SuccessfulReqs:   ep.metrics.SuccessfulReqs.Load(),
			FailedReqs:       ep.metrics.FailedReqs.Load(),
			SuccessRate:      ep.metrics.SuccessRate(),
			AvgLatencyMs:     ep.metrics.AvgLatencyMs(),
			P95LatencyMs:     ep.metrics.P95LatencyMs(),
			LastLatencyMs:    ep.metrics.LastLatencyMs.Load(),
			ConsecutiveFails: ep.metrics.ConsecutiveFails.Load(),
		})
	}
	return stats
}
