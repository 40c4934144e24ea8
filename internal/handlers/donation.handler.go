package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/fasthttp/router"

	"github.com/neemapp/chanda-gateway/internal/model"
	"github.com/neemapp/chanda-gateway/internal/services"
	xhttp "github.com/neemapp/chanda-gateway/pkg/http"
)

type DonationService interface {
	Create(ctx context.Context, p model.DonationCreateRequest) (*model.Donation, error)
	List(ctx context.Context) ([]*model.Donation, error)
	SearchByDonor(ctx context.Context, donorName string) ([]*model.Donation, error)
	GetByDateRange(ctx context.Context, start, end string) ([]*model.Donation, error)
	GetStats(ctx context.Context) (*model.DonationStats, error)
	GetByReceiptID(ctx context.Context, receiptID string) (*model.Donation, error)
	RenderReceipt(ctx context.Context, receiptID string) (string, error)
	Share(ctx context.Context, receiptID string, channels []model.DeliveryChannel) error
	ExportReport(ctx context.Context, filter model.DonationFilter) (string, error)
	BackfillFestivals(ctx context.Context) (int64, error)
}

// PDFConverter turns receipt HTML into PDF bytes.
type PDFConverter interface {
	ConvertPDF(ctx context.Context, html []byte) ([]byte, error)
}

type DonationHandler struct {
	svc DonationService
	pdf PDFConverter
}

func NewDonationHandler(donationService DonationService, pdf PDFConverter) *DonationHandler {
	return &DonationHandler{
		svc: donationService,
		pdf: pdf,
	}
}

func RegisterDonationRoutes(e *router.Group, h *DonationHandler) {
	e.POST("/donations", h.CreateDonation)
	e.GET("/donations", h.ListDonations)
	e.GET("/donations/search", h.SearchDonations)
	e.GET("/donations/range", h.DonationsByDateRange)
	e.GET("/donations/stats", h.DonationStats)
	e.GET("/donations/export", h.ExportReport)
	e.GET("/festivals", h.ListFestivals)
	e.GET("/receipts/{receipt_id}", h.GetReceipt)
	e.GET("/receipts/{receipt_id}/pdf", h.GetReceiptPDF)
	e.POST("/receipts/{receipt_id}/share", h.ShareReceipt)
	e.POST("/admin/festival-backfill", h.BackfillFestivals)
}

type listDonationsResponse struct {
	Items []*model.Donation `json:"items"`
	Total int               `json:"total"`
}

type shareRequest struct {
	Channels []model.DeliveryChannel `json:"channels"`
}

type backfillResponse struct {
	UpdatedRows int64 `json:"updated_rows"`
}

/* --------------------------------- Routes ----------------------------------- */

func (h *DonationHandler) CreateDonation(ctx *xhttp.RequestCtx) {
	var req model.DonationCreateRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	d, err := h.svc.Create(ctx, req)
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusCreated, d)
}

func (h *DonationHandler) ListDonations(ctx *xhttp.RequestCtx) {
	items, err := h.svc.List(ctx)
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listDonationsResponse{Items: items, Total: len(items)})
}

func (h *DonationHandler) SearchDonations(ctx *xhttp.RequestCtx) {
	donorName := query(ctx, "donor_name")
	if strings.TrimSpace(donorName) == "" {
		writeError(ctx, xhttp.StatusBadRequest, "donor_name is required")
		return
	}

	items, err := h.svc.SearchByDonor(ctx, donorName)
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listDonationsResponse{Items: items, Total: len(items)})
}

func (h *DonationHandler) DonationsByDateRange(ctx *xhttp.RequestCtx) {
	start := query(ctx, "start")
	end := query(ctx, "end")

	items, err := h.svc.GetByDateRange(ctx, start, end)
	if err != nil {
		if errors.Is(err, services.ErrInvalidDateRange) {
			writeError(ctx, xhttp.StatusBadRequest, err.Error())
			return
		}
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, listDonationsResponse{Items: items, Total: len(items)})
}

func (h *DonationHandler) DonationStats(ctx *xhttp.RequestCtx) {
	stats, err := h.svc.GetStats(ctx)
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, stats)
}

func (h *DonationHandler) ListFestivals(ctx *xhttp.RequestCtx) {
	writeJSON(ctx, xhttp.StatusOK, map[string]interface{}{"festivals": model.Festivals})
}

func (h *DonationHandler) GetReceipt(ctx *xhttp.RequestCtx) {
	html, err := h.svc.RenderReceipt(ctx, param(ctx, "receipt_id"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeHTML(ctx, html)
}

func (h *DonationHandler) GetReceiptPDF(ctx *xhttp.RequestCtx) {
	receiptID := param(ctx, "receipt_id")

	html, err := h.svc.RenderReceipt(ctx, receiptID)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}

	if h.pdf == nil {
		writeError(ctx, xhttp.StatusServiceUnavailable, "pdf conversion is not available")
		return
	}

	pdf, err := h.pdf.ConvertPDF(ctx, []byte(html))
	if err != nil {
		writeError(ctx, xhttp.StatusServiceUnavailable, "pdf conversion failed: "+err.Error())
		return
	}

	ctx.Response.Header.Set("Content-Type", "application/pdf")
	ctx.Response.Header.Set("Content-Disposition", `attachment; filename="receipt-`+receiptID+`.pdf"`)
	ctx.Response.SetStatusCode(xhttp.StatusOK)
	ctx.Response.SetBodyRaw(pdf)
}

func (h *DonationHandler) ShareReceipt(ctx *xhttp.RequestCtx) {
	var req shareRequest
	if len(ctx.PostBody()) > 0 {
		if err := readJSON(ctx, &req); err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}

	err := h.svc.Share(ctx, param(ctx, "receipt_id"), req.Channels)
	if err != nil {
		if errors.Is(err, services.ErrUnknownChannel) {
			writeError(ctx, xhttp.StatusBadRequest, err.Error())
			return
		}
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusAccepted, map[string]string{"status": "queued"})
}

func (h *DonationHandler) ExportReport(ctx *xhttp.RequestCtx) {
	filter := model.DonationFilter{
		DonorName: query(ctx, "donor_name"),
		StartDate: query(ctx, "start"),
		EndDate:   query(ctx, "end"),
	}

	html, err := h.svc.ExportReport(ctx, filter)
	if err != nil {
		if errors.Is(err, services.ErrInvalidDateRange) {
			writeError(ctx, xhttp.StatusBadRequest, err.Error())
			return
		}
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}
	writeHTML(ctx, html)
}

func (h *DonationHandler) BackfillFestivals(ctx *xhttp.RequestCtx) {
	rows, err := h.svc.BackfillFestivals(ctx)
	if err != nil {
		writeError(ctx, xhttp.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(ctx, xhttp.StatusOK, backfillResponse{UpdatedRows: rows})
}

/* --------------------------------- Helpers ----------------------------------- */

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeHTML(ctx *xhttp.RequestCtx, html string) {
	ctx.Response.Header.Set("Content-Type", "text/html; charset=utf-8")
	ctx.Response.SetStatusCode(xhttp.StatusOK)
	ctx.Response.SetBodyString(html)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	if errors.Is(err, services.ErrNotFound) {
		writeError(ctx, xhttp.StatusNotFound, err.Error())
		return
	}
	writeError(ctx, xhttp.StatusInternalServerError, err.Error())
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func param(ctx *xhttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}
