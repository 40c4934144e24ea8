package processor

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/neemapp/chanda-gateway/pkg/redis"
)

// Mock Redis adapter for testing
type mockRedisAdapter struct {
	data map[string][]byte
	ttls map[string]time.Time
}

func newMockRedisAdapter() *mockRedisAdapter {
	return &mockRedisAdapter{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Time),
	}
}

func (m *mockRedisAdapter) SetNX(key string, value []byte, ttl time.Duration) (bool, error) {
	if _, exists := m.data[key]; exists {
		return false, nil
	}
	m.data[key] = value
	if ttl > 0 {
		m.ttls[key] = time.Now().Add(ttl)
	}
	return true, nil
}

func (m *mockRedisAdapter) Set(key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	if ttl > 0 {
		m.ttls[key] = time.Now().Add(ttl)
	}
	return nil
}

func (m *mockRedisAdapter) Get(key string) ([]byte, error) {
	if ttl, ok := m.ttls[key]; ok && time.Now().After(ttl) {
		delete(m.data, key)
		delete(m.ttls, key)
		return nil, redis.NilError
	}
	if value, ok := m.data[key]; ok {
		return value, nil
	}
	return nil, redis.NilError
}

func (m *mockRedisAdapter) Del(key string) error {
	delete(m.data, key)
	delete(m.ttls, key)
	return nil
}

func (m *mockRedisAdapter) Exist(keys ...string) (int64, error) {
	var n int64
	for _, key := range keys {
		if _, err := m.Get(key); err == nil {
			n++
		}
	}
	return n, nil
}

func (m *mockRedisAdapter) Client() goredis.UniversalClient { return nil }

func (m *mockRedisAdapter) XAdd(key string, values map[string]interface{}) (string, error) {
	return "", nil
}

func (m *mockRedisAdapter) XAddWithID(key, id string, values map[string]interface{}) (string, error) {
	return "", nil
}

func (m *mockRedisAdapter) XReadGroup(group, consumer, key, id string, count int64) ([]redis.StreamMessage, error) {
	return nil, nil
}

func (m *mockRedisAdapter) XAck(key, group string, ids ...string) error { return nil }

func (m *mockRedisAdapter) XGroupCreateMkStream(key, group, start string) error { return nil }

func (m *mockRedisAdapter) XLen(key string) (int64, error) { return 0, nil }

func (m *mockRedisAdapter) XTrimApprox(key string, maxLen int64) error { return nil }

func (m *mockRedisAdapter) XPending(key, group string) (*goredis.XPending, error) { return nil, nil }

func (m *mockRedisAdapter) XPendingExt(key, group string, start, end string, count int64) ([]goredis.XPendingExt, error) {
	return nil, nil
}

func (m *mockRedisAdapter) XClaim(key, group, consumer string, minIdle time.Duration, ids ...string) ([]redis.StreamMessage, error) {
	return nil, nil
}

func TestIdempotencyService_AcquireProcessingLock_FirstAttempt(t *testing.T) {
	adapter := newMockRedisAdapter()
	svc := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
	ctx := context.Background()

	pc, err := svc.AcquireProcessingLock(ctx, "1700000000000-0")
	if err != nil {
		t.Fatalf("expected lock to be acquired, got %v", err)
	}
	if pc.JobID != "1700000000000-0" {
		t.Errorf("unexpected job id %q", pc.JobID)
	}
	if pc.RetryCount != 0 || pc.IsRetry {
		t.Errorf("first attempt should not be a retry: count=%d retry=%v", pc.RetryCount, pc.IsRetry)
	}
	if !pc.lockAcquired {
		t.Error("lock should be marked acquired")
	}
}

func TestIdempotencyService_AcquireProcessingLock_Concurrent(t *testing.T) {
	adapter := newMockRedisAdapter()
	svc := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
	ctx := context.Background()

	_, err := svc.AcquireProcessingLock(ctx, "job-1")
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	_, err = svc.AcquireProcessingLock(ctx, "job-1")
	if !errors.Is(err, ErrLockAcquireFailed) {
		t.Errorf("expected ErrLockAcquireFailed, got %v", err)
	}
}

func TestIdempotencyService_MarkSuccess(t *testing.T) {
	adapter := newMockRedisAdapter()
	svc := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
	ctx := context.Background()

	pc, err := svc.AcquireProcessingLock(ctx, "job-2")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if err := svc.MarkSuccess(ctx, pc); err != nil {
		t.Fatalf("mark success failed: %v", err)
	}

	processed, err := svc.IsProcessed(ctx, "job-2")
	if err != nil {
		t.Fatalf("is processed check failed: %v", err)
	}
	if !processed {
		t.Error("job should be marked processed")
	}

	// A second acquire must be refused
	_, err = svc.AcquireProcessingLock(ctx, "job-2")
	if !errors.Is(err, ErrAlreadyProcessed) {
		t.Errorf("expected ErrAlreadyProcessed, got %v", err)
	}
}

func TestIdempotencyService_MarkFailure_WithRetry(t *testing.T) {
	adapter := newMockRedisAdapter()
	svc := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
	ctx := context.Background()

	pc, err := svc.AcquireProcessingLock(ctx, "job-3")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if err := svc.MarkFailure(ctx, pc, errors.New("provider down")); err != nil {
		t.Fatalf("mark failure failed: %v", err)
	}

	count, err := svc.GetRetryCount(ctx, "job-3")
	if err != nil {
		t.Fatalf("get retry count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("expected retry count 1, got %d", count)
	}

	// Lock is released, so the next consumer sees a retry
	pc2, err := svc.AcquireProcessingLock(ctx, "job-3")
	if err != nil {
		t.Fatalf("reacquire failed: %v", err)
	}
	if !pc2.IsRetry || pc2.RetryCount != 1 {
		t.Errorf("expected retry context, got count=%d retry=%v", pc2.RetryCount, pc2.IsRetry)
	}
}

func TestIdempotencyService_MaxRetriesExceeded(t *testing.T) {
	adapter := newMockRedisAdapter()
	config := DefaultIdempotencyConfig()
	config.MaxRetries = 2
	svc := NewIdempotencyService(adapter, config)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		pc, err := svc.AcquireProcessingLock(ctx, "job-4")
		if err != nil {
			t.Fatalf("acquire %d failed: %v", i, err)
		}
		if err := svc.MarkFailure(ctx, pc, errors.New("still down")); err != nil {
			t.Fatalf("mark failure %d failed: %v", i, err)
		}
	}

	_, err := svc.AcquireProcessingLock(ctx, "job-4")
	if !errors.Is(err, ErrMaxRetriesExceeded) {
		t.Errorf("expected ErrMaxRetriesExceeded, got %v", err)
	}
}

func TestIdempotencyService_ReleaseLock(t *testing.T) {
	adapter := newMockRedisAdapter()
	svc := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
	ctx := context.Background()

	pc, err := svc.AcquireProcessingLock(ctx, "job-5")
	if err != nil {
		t.Fatalf("acquire failed: %v", err)
	}

	if err := svc.ReleaseLock(ctx, pc); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if pc.lockAcquired {
		t.Error("lock should be marked released")
	}

	// Released lock can be reacquired
	if _, err := svc.AcquireProcessingLock(ctx, "job-5"); err != nil {
		t.Errorf("reacquire after release failed: %v", err)
	}
}

func TestIdempotencyService_GetRetryCount_Unknown(t *testing.T) {
	adapter := newMockRedisAdapter()
	svc := NewIdempotencyService(adapter, DefaultIdempotencyConfig())
	ctx := context.Background()

	count, err := svc.GetRetryCount(ctx, "never-seen")
	if err != nil {
		t.Fatalf("get retry count failed: %v", err)
	}
	if count != 0 {
		t.Errorf("expected 0 for unknown job, got %d", count)
	}
}
