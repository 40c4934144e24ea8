package handlers

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"github.com/neemapp/chanda-gateway/internal/model"
	"github.com/neemapp/chanda-gateway/internal/services"
	xhttp "github.com/neemapp/chanda-gateway/pkg/http"
)

type MockDonationService struct {
	mock.Mock
}

func (m *MockDonationService) Create(ctx context.Context, p model.DonationCreateRequest) (*model.Donation, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Donation), args.Error(1)
}

func (m *MockDonationService) List(ctx context.Context) ([]*model.Donation, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Donation), args.Error(1)
}

func (m *MockDonationService) SearchByDonor(ctx context.Context, donorName string) ([]*model.Donation, error) {
	args := m.Called(ctx, donorName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Donation), args.Error(1)
}

func (m *MockDonationService) GetByDateRange(ctx context.Context, start, end string) ([]*model.Donation, error) {
	args := m.Called(ctx, start, end)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Donation), args.Error(1)
}

func (m *MockDonationService) GetStats(ctx context.Context) (*model.DonationStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DonationStats), args.Error(1)
}

func (m *MockDonationService) GetByReceiptID(ctx context.Context, receiptID string) (*model.Donation, error) {
	args := m.Called(ctx, receiptID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Donation), args.Error(1)
}

func (m *MockDonationService) RenderReceipt(ctx context.Context, receiptID string) (string, error) {
	args := m.Called(ctx, receiptID)
	return args.String(0), args.Error(1)
}

func (m *MockDonationService) Share(ctx context.Context, receiptID string, channels []model.DeliveryChannel) error {
	args := m.Called(ctx, receiptID, channels)
	return args.Error(0)
}

func (m *MockDonationService) ExportReport(ctx context.Context, filter model.DonationFilter) (string, error) {
	args := m.Called(ctx, filter)
	return args.String(0), args.Error(1)
}

func (m *MockDonationService) BackfillFestivals(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

type MockPDFConverter struct {
	mock.Mock
}

func (m *MockPDFConverter) ConvertPDF(ctx context.Context, html []byte) ([]byte, error) {
	args := m.Called(ctx, html)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]byte), args.Error(1)
}

func setupTestContext(method, path string, body []byte) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	return ctx
}

func TestDonationHandler_CreateDonation(t *testing.T) {
	t.Run("successful creation", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc, nil)

		reqBody := model.DonationCreateRequest{
			DonorName:    "Asha Patel",
			Amount:       500,
			MobileNumber: "9876543210",
			FestivalName: "Ganpati Festival",
		}
		bodyBytes, _ := json.Marshal(reqBody)

		expected := &model.Donation{
			ID:           1,
			DonorName:    "Asha Patel",
			Amount:       500,
			ReceiptID:    "NMABC12345",
			FestivalName: "Ganpati Festival",
		}

		svc.On("Create", mock.Anything, mock.MatchedBy(func(p model.DonationCreateRequest) bool {
			return p.DonorName == "Asha Patel" && p.Amount == 500
		})).Return(expected, nil)

		ctx := setupTestContext("POST", "/api/v1/donations", bodyBytes)
		handler.CreateDonation(ctx)

		assert.Equal(t, 201, ctx.Response.StatusCode())

		var response model.Donation
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Equal(t, int64(1), response.ID)
		assert.Equal(t, "NMABC12345", response.ReceiptID)

		svc.AssertExpectations(t)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		handler := NewDonationHandler(new(MockDonationService), nil)

		ctx := setupTestContext("POST", "/api/v1/donations", []byte("invalid json"))
		handler.CreateDonation(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("validation error surfaces the form message", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc, nil)

		svc.On("Create", mock.Anything, mock.Anything).
			Return(nil, model.ErrInvalidMobileNumber)

		bodyBytes, _ := json.Marshal(model.DonationCreateRequest{DonorName: "X", Amount: 1, MobileNumber: "123"})
		ctx := setupTestContext("POST", "/api/v1/donations", bodyBytes)
		handler.CreateDonation(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())

		var response map[string]string
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Equal(t, "please enter a valid 10-digit mobile number", response["error"])
	})
}

func TestDonationHandler_ListDonations(t *testing.T) {
	svc := new(MockDonationService)
	handler := NewDonationHandler(svc, nil)

	svc.On("List", mock.Anything).Return([]*model.Donation{{ID: 2}, {ID: 1}}, nil)

	ctx := setupTestContext("GET", "/api/v1/donations", nil)
	handler.ListDonations(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())

	var response listDonationsResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
	assert.Equal(t, 2, response.Total)
	assert.Equal(t, int64(2), response.Items[0].ID)
}

func TestDonationHandler_SearchDonations(t *testing.T) {
	t.Run("missing donor_name", func(t *testing.T) {
		handler := NewDonationHandler(new(MockDonationService), nil)

		ctx := setupTestContext("GET", "/api/v1/donations/search", nil)
		handler.SearchDonations(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("exact match search", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc, nil)

		svc.On("SearchByDonor", mock.Anything, "Asha Patel").
			Return([]*model.Donation{{ID: 1, DonorName: "Asha Patel"}}, nil)

		ctx := setupTestContext("GET", "/api/v1/donations/search?donor_name=Asha+Patel", nil)
		handler.SearchDonations(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response listDonationsResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Equal(t, 1, response.Total)

		svc.AssertExpectations(t)
	})
}

func TestDonationHandler_DonationsByDateRange(t *testing.T) {
	t.Run("invalid range", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc, nil)

		svc.On("GetByDateRange", mock.Anything, "bad", "range").
			Return(nil, services.ErrInvalidDateRange)

		ctx := setupTestContext("GET", "/api/v1/donations/range?start=bad&end=range", nil)
		handler.DonationsByDateRange(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("valid range", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc, nil)

		svc.On("GetByDateRange", mock.Anything, "2024-01-01", "2024-01-31").
			Return([]*model.Donation{{ID: 1}}, nil)

		ctx := setupTestContext("GET", "/api/v1/donations/range?start=2024-01-01&end=2024-01-31", nil)
		handler.DonationsByDateRange(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
	})
}

func TestDonationHandler_DonationStats(t *testing.T) {
	svc := new(MockDonationService)
	handler := NewDonationHandler(svc, nil)

	svc.On("GetStats", mock.Anything).
		Return(&model.DonationStats{Count: 3, TotalAmount: 1500, AverageAmount: 500}, nil)

	ctx := setupTestContext("GET", "/api/v1/donations/stats", nil)
	handler.DonationStats(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())

	var stats model.DonationStats
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &stats))
	assert.Equal(t, int64(3), stats.Count)
	assert.Equal(t, float64(500), stats.AverageAmount)
}

func TestDonationHandler_ExportReport(t *testing.T) {
	t.Run("forwards filters from the query string", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc, nil)

		svc.On("ExportReport", mock.Anything, model.DonationFilter{DonorName: "Asha Patel"}).
			Return("<html>report</html>", nil)

		ctx := setupTestContext("GET", "/api/v1/donations/export?donor_name=Asha+Patel", nil)
		handler.ExportReport(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Header.ContentType()), "text/html")
		assert.Contains(t, string(ctx.Response.Body()), "report")
		svc.AssertExpectations(t)
	})

	t.Run("invalid date filter is 400", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc, nil)

		svc.On("ExportReport", mock.Anything, mock.Anything).
			Return("", services.ErrInvalidDateRange)

		ctx := setupTestContext("GET", "/api/v1/donations/export?start=bad&end=2024-09-30", nil)
		handler.ExportReport(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestDonationHandler_GetReceipt(t *testing.T) {
	t.Run("renders HTML", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc, nil)

		svc.On("RenderReceipt", mock.Anything, "NMABC12345").
			Return("<html>receipt</html>", nil)

		ctx := setupTestContext("GET", "/api/v1/receipts/NMABC12345", nil)
		ctx.SetUserValue("receipt_id", "NMABC12345")
		handler.GetReceipt(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.Contains(t, string(ctx.Response.Header.ContentType()), "text/html")
		assert.Contains(t, string(ctx.Response.Body()), "receipt")
	})

	t.Run("unknown receipt is 404", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc, nil)

		svc.On("RenderReceipt", mock.Anything, "NMMISSING").
			Return("", services.ErrNotFound)

		ctx := setupTestContext("GET", "/api/v1/receipts/NMMISSING", nil)
		ctx.SetUserValue("receipt_id", "NMMISSING")
		handler.GetReceipt(ctx)

		assert.Equal(t, 404, ctx.Response.StatusCode())
	})
}

func TestDonationHandler_GetReceiptPDF(t *testing.T) {
	t.Run("converter unavailable", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc, nil)

		svc.On("RenderReceipt", mock.Anything, "NMABC12345").
			Return("<html>receipt</html>", nil)

		ctx := setupTestContext("GET", "/api/v1/receipts/NMABC12345/pdf", nil)
		ctx.SetUserValue("receipt_id", "NMABC12345")
		handler.GetReceiptPDF(ctx)

		assert.Equal(t, 503, ctx.Response.StatusCode())
	})

	t.Run("returns PDF bytes", func(t *testing.T) {
		svc := new(MockDonationService)
		pdf := new(MockPDFConverter)
		handler := NewDonationHandler(svc, pdf)

		svc.On("RenderReceipt", mock.Anything, "NMABC12345").
			Return("<html>receipt</html>", nil)
		pdf.On("ConvertPDF", mock.Anything, []byte("<html>receipt</html>")).
			Return([]byte("%PDF-1.4"), nil)

		ctx := setupTestContext("GET", "/api/v1/receipts/NMABC12345/pdf", nil)
		ctx.SetUserValue("receipt_id", "NMABC12345")
		handler.GetReceiptPDF(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		assert.Equal(t, "application/pdf", string(ctx.Response.Header.ContentType()))
		assert.Equal(t, "%PDF-1.4", string(ctx.Response.Body()))
	})
}

func TestDonationHandler_ShareReceipt(t *testing.T) {
	t.Run("default channels", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc, nil)

		svc.On("Share", mock.Anything, "NMABC12345", []model.DeliveryChannel(nil)).Return(nil)

		ctx := setupTestContext("POST", "/api/v1/receipts/NMABC12345/share", nil)
		ctx.SetUserValue("receipt_id", "NMABC12345")
		handler.ShareReceipt(ctx)

		assert.Equal(t, 202, ctx.Response.StatusCode())
	})

	t.Run("unknown channel", func(t *testing.T) {
		svc := new(MockDonationService)
		handler := NewDonationHandler(svc, nil)

		svc.On("Share", mock.Anything, "NMABC12345", []model.DeliveryChannel{"fax"}).
			Return(services.ErrUnknownChannel)

		body, _ := json.Marshal(shareRequest{Channels: []model.DeliveryChannel{"fax"}})
		ctx := setupTestContext("POST", "/api/v1/receipts/NMABC12345/share", body)
		ctx.SetUserValue("receipt_id", "NMABC12345")
		handler.ShareReceipt(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestDonationHandler_BackfillFestivals(t *testing.T) {
	svc := new(MockDonationService)
	handler := NewDonationHandler(svc, nil)

	svc.On("BackfillFestivals", mock.Anything).Return(int64(12), nil)

	ctx := setupTestContext("POST", "/api/v1/admin/festival-backfill", nil)
	handler.BackfillFestivals(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())

	var response backfillResponse
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
	assert.Equal(t, int64(12), response.UpdatedRows)
}

func TestHealthHandler_GetHealth(t *testing.T) {
	t.Run("all components healthy", func(t *testing.T) {
		handler := NewHealthHandler(map[string]HealthChecker{
			"database": func(ctx context.Context) error { return nil },
		})

		ctx := setupTestContext("GET", "/api/v1/health", nil)
		handler.GetHealth(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())

		var response healthResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Equal(t, "healthy", response.Status)
		assert.Equal(t, "ok", response.Components["database"])
	})

	t.Run("failed component flips status", func(t *testing.T) {
		handler := NewHealthHandler(map[string]HealthChecker{
			"redis": func(ctx context.Context) error { return assert.AnError },
		})

		ctx := setupTestContext("GET", "/api/v1/health", nil)
		handler.GetHealth(ctx)

		assert.Equal(t, 503, ctx.Response.StatusCode())

		var response healthResponse
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &response))
		assert.Equal(t, "unhealthy", response.Status)
	})
}
