package helpers

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/neemapp/chanda-gateway/internal/model"
	"github.com/neemapp/chanda-gateway/internal/receipt"
	"github.com/neemapp/chanda-gateway/internal/repository"
	"github.com/neemapp/chanda-gateway/pkg/pg"
	"github.com/neemapp/chanda-gateway/pkg/redis"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func SetupTestDB(t *testing.T) *pg.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)

	err = db.AutoMigrate(
		&repository.DonationEntity{},
		&repository.ReceiptDeliveryEntity{},
	)
	require.NoError(t, err)

	pgDB := &pg.DB{}
	pgDBValue := reflect.ValueOf(pgDB).Elem()

	readField := pgDBValue.FieldByName("read")
	writeField := pgDBValue.FieldByName("write")

	readField = reflect.NewAt(readField.Type(), readField.Addr().UnsafePointer()).Elem()
	writeField = reflect.NewAt(writeField.Type(), writeField.Addr().UnsafePointer()).Elem()

	readField.Set(reflect.ValueOf(db))
	writeField.Set(reflect.ValueOf(db))

	return pgDB
}

func SetupTestRedis(t *testing.T) (*miniredis.Miniredis, redis.RedisAdapter) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	adapter, err := redis.NewRedisAdapter("test", "", &goredis.UniversalOptions{
		Addrs: []string{mr.Addr()},
	})
	require.NoError(t, err)

	return mr, adapter
}

func CreateTestDonation(t *testing.T, db *pg.DB, donorName string, amount float64, festival string) *repository.DonationEntity {
	ctx := context.Background()
	date, tod := receipt.CurrentDateTime(time.Now())
	d := &repository.DonationEntity{
		MandalName:   "Shree Ganesh Mandal",
		DonorName:    donorName,
		Amount:       amount,
		MobileNumber: "9876543210",
		DonationDate: date,
		DonationTime: tod,
		ReceiptID:    receipt.GenerateID(),
		FestivalName: festival,
	}
	err := db.Write(ctx).Create(d).Error
	require.NoError(t, err)
	return d
}

func CreateTestDelivery(t *testing.T, db *pg.DB, donationID int64, receiptID string, channel model.DeliveryChannel, status model.DeliveryStatus) *repository.ReceiptDeliveryEntity {
	ctx := context.Background()
	deliveredAt := time.Now()
	row := &repository.ReceiptDeliveryEntity{
		DonationID:  donationID,
		ReceiptID:   receiptID,
		Channel:     string(channel),
		Status:      string(status),
		DeliveredAt: &deliveredAt,
	}
	err := db.Write(ctx).Create(row).Error
	require.NoError(t, err)
	return row
}

func WaitForCondition(t *testing.T, timeout time.Duration, condition func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

func AssertEventually(t *testing.T, timeout time.Duration, condition func() bool, msg string) {
	if !WaitForCondition(t, timeout, condition) {
		t.Fatal(msg)
	}
}

func ContextWithTimeout(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

func Ptr[T any](v T) *T {
	return &v
}
