package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/neemapp/chanda-gateway/internal/model"
	"github.com/neemapp/chanda-gateway/internal/queue"
	"github.com/neemapp/chanda-gateway/internal/repository"
	"github.com/neemapp/chanda-gateway/internal/services"
	"github.com/neemapp/chanda-gateway/pkg/pg"
	"github.com/neemapp/chanda-gateway/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testDB = pg.DB

type TestEnvironment struct {
	DB              *pg.DB
	Redis           *miniredis.Miniredis
	RedisAdapter    redis.RedisAdapter
	Queue           *queue.Queue
	DonationRepo    *repository.DonationRepository
	DeliveryRepo    *repository.ReceiptDeliveryRepository
	DonationService *services.DonationService
}

func setupE2EEnvironment(t *testing.T) *TestEnvironment {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.DonationEntity{},
		&repository.ReceiptDeliveryEntity{},
	)
	require.NoError(t, err)

	pgDB := &testDB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	mr, err := miniredis.Run()
	require.NoError(t, err)

	// Use unique connection name per test to avoid global adapter caching issues
	connName := fmt.Sprintf("test-%d", time.Now().UnixNano())
	redisAdapter, err := redis.NewRedisAdapter(connName, "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	queueConfig := queue.QueueConfig{
		Name:              "test:deliveries",
		ConsumerGroup:     "test-group",
		ConsumerName:      "test-consumer",
		MaxRetries:        3,
		VisibilityTimeout: 5 * time.Second,
		PollInterval:      100 * time.Millisecond,
		BatchSize:         10,
		MaxLen:            1000,
		EnableDLQ:         true,
	}

	q, err := queue.NewQueue(redisAdapter, queueConfig)
	require.NoError(t, err)

	donationRepo := repository.NewDonationRepository(pgDB)
	deliveryRepo := repository.NewReceiptDeliveryRepository(pgDB)

	donationService := services.NewDonationService(donationRepo, q, nil, "Shree Ganesh Mandal")

	return &TestEnvironment{
		DB:              pgDB,
		Redis:           mr,
		RedisAdapter:    redisAdapter,
		Queue:           q,
		DonationRepo:    donationRepo,
		DeliveryRepo:    deliveryRepo,
		DonationService: donationService,
	}
}

func (env *TestEnvironment) Cleanup() {
	// Stop queue first (gracefully drain messages)
	if env.Queue != nil {
		_ = env.Queue.Stop(5 * time.Second)
	}
	// Give time for any in-flight operations to complete
	time.Sleep(100 * time.Millisecond)
	// Then close Redis
	if env.Redis != nil {
		env.Redis.Close()
	}
}

func TestE2E_DonationCreationAndEnqueue(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	req := model.DonationCreateRequest{
		DonorName:    "Ram Sharma",
		Amount:       501,
		MobileNumber: "9876543210",
		FestivalName: "Ganpati Festival",
	}

	d, err := env.DonationService.Create(ctx, req)
	require.NoError(t, err)
	assert.NotZero(t, d.ID)
	assert.Equal(t, "Shree Ganesh Mandal", d.MandalName)
	assert.Regexp(t, regexp.MustCompile(`^NM[0-9A-Z]+$`), d.ReceiptID)
	assert.NotEmpty(t, d.DonationDate)
	assert.NotEmpty(t, d.DonationTime)

	stats, err := env.Queue.GetStats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.TotalMessages, int64(1))
}

func TestE2E_ValidationRejectsBadInput(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	req := model.DonationCreateRequest{
		DonorName:    "Ram Sharma",
		Amount:       501,
		MobileNumber: "123",
	}

	d, err := env.DonationService.Create(ctx, req)
	assert.ErrorIs(t, err, model.ErrInvalidMobileNumber)
	assert.Nil(t, d)

	var count int64
	env.DB.Read(ctx).Model(&repository.DonationEntity{}).Count(&count)
	assert.Equal(t, int64(0), count)

	stats, err := env.Queue.GetStats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.TotalMessages)
}

func TestE2E_DeliveryJobConsumption(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	req := model.DonationCreateRequest{
		DonorName:    "Sita Patil",
		Amount:       1100,
		MobileNumber: "9123456780",
	}

	d, err := env.DonationService.Create(ctx, req)
	require.NoError(t, err)

	received := make(chan bool, 1)
	handler := func(ctx context.Context, qMsg *queue.Message) error {
		var job model.DeliveryJob
		err := json.Unmarshal(qMsg.Data, &job)
		assert.NoError(t, err)
		assert.Equal(t, d.ID, job.DonationID)
		assert.Equal(t, d.ReceiptID, job.ReceiptID)
		assert.Empty(t, job.Channels)
		assert.Equal(t, d.ReceiptID, qMsg.Metadata["receipt_id"])
		received <- true
		return nil
	}

	err = env.Queue.Consume(handler)
	require.NoError(t, err)

	select {
	case <-received:
	case <-time.After(3 * time.Second):
		t.Fatal("delivery job not consumed within timeout")
	}
}

func TestE2E_SearchAndStats(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	donors := []struct {
		name   string
		amount float64
	}{
		{"Ram Sharma", 100},
		{"Ram Sharma", 200},
		{"Sita Patil", 351},
	}
	for _, d := range donors {
		req := model.DonationCreateRequest{
			DonorName:    d.name,
			Amount:       d.amount,
			MobileNumber: "9876543210",
		}
		_, err := env.DonationService.Create(ctx, req)
		require.NoError(t, err)
	}

	matches, err := env.DonationService.SearchByDonor(ctx, "Ram Sharma")
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	stats, err := env.DonationService.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Count)
	assert.Equal(t, float64(651), stats.TotalAmount)
	assert.Equal(t, float64(217), stats.AverageAmount)
}

func TestE2E_ReceiptRendering(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	req := model.DonationCreateRequest{
		DonorName:    "Ram Sharma",
		Amount:       501,
		MobileNumber: "9876543210",
		FestivalName: "Diwali",
	}

	d, err := env.DonationService.Create(ctx, req)
	require.NoError(t, err)

	html, err := env.DonationService.RenderReceipt(ctx, d.ReceiptID)
	require.NoError(t, err)
	assert.True(t, strings.Contains(html, "Ram Sharma"))
	assert.True(t, strings.Contains(html, d.ReceiptID))
	assert.True(t, strings.Contains(html, "Diwali"))
}

func TestE2E_ShareUnknownReceipt(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	err := env.DonationService.Share(ctx, "NMDOESNOTEXIST", nil)
	assert.ErrorIs(t, err, services.ErrNotFound)
}

func TestE2E_ShareEnqueuesChannels(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	req := model.DonationCreateRequest{
		DonorName:    "Sita Patil",
		Amount:       1100,
		MobileNumber: "9123456780",
		Email:        "sita@example.com",
	}

	d, err := env.DonationService.Create(ctx, req)
	require.NoError(t, err)

	err = env.DonationService.Share(ctx, d.ReceiptID, []model.DeliveryChannel{model.DeliveryChannelEmail})
	require.NoError(t, err)

	stats, err := env.Queue.GetStats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.TotalMessages, int64(2))
}

func TestE2E_DeliveryRecordCreation(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	req := model.DonationCreateRequest{
		DonorName:    "Ram Sharma",
		Amount:       501,
		MobileNumber: "9876543210",
	}

	d, err := env.DonationService.Create(ctx, req)
	require.NoError(t, err)

	deliveredAt := time.Now()
	row, err := env.DeliveryRepo.Create(ctx, &model.ReceiptDelivery{
		DonationID:  d.ID,
		ReceiptID:   d.ReceiptID,
		Channel:     model.DeliveryChannelSMS,
		Status:      model.DeliveryStatusDelivered,
		DeliveredAt: &deliveredAt,
	})
	require.NoError(t, err)
	assert.NotZero(t, row.ID)

	rows, err := env.DeliveryRepo.ListByDonation(ctx, d.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, model.DeliveryChannelSMS, rows[0].Channel)
	assert.Equal(t, model.DeliveryStatusDelivered, rows[0].Status)
}

func TestE2E_FestivalBackfill(t *testing.T) {
	env := setupE2EEnvironment(t)
	defer env.Cleanup()

	ctx := context.Background()

	legacy := &repository.DonationEntity{
		MandalName:   "Shree Ganesh Mandal",
		DonorName:    "Old Donor",
		Amount:       51,
		MobileNumber: "9876543210",
		DonationDate: "2023-01-15",
		DonationTime: "09:00:00",
		ReceiptID:    "NMLEGACY00001",
		FestivalName: "",
	}
	err := env.DB.Write(ctx).Create(legacy).Error
	require.NoError(t, err)

	rows, err := env.DonationService.BackfillFestivals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)

	d, err := env.DonationService.GetByReceiptID(ctx, "NMLEGACY00001")
	require.NoError(t, err)
	assert.Equal(t, model.DefaultFestivalName, d.FestivalName)

	// idempotent
	rows, err = env.DonationService.BackfillFestivals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), rows)
}
