package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	db "github.com/glkeru/loyalty/wallet/internal/db"
	model "github.com/glkeru/loyalty/wallet/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type pushRecorder struct {
	mu     sync.Mutex
	tokens []string
}

func (p *pushRecorder) Notify(ctx context.Context, pushToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tokens = append(p.tokens, pushToken)
	return nil
}

func (p *pushRecorder) Tokens() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string{}, p.tokens...)
}

func newTestLedger() (*LedgerService, *DeviceService, *db.MemoryStore, *pushRecorder) {
	logger := zap.NewNop()
	kv := db.NewMemoryStore()
	push := &pushRecorder{}
	devices := NewDeviceService(logger, kv)
	ledger := NewLedgerService(logger, kv, devices, push)
	return ledger, devices, kv, push
}

func TestRegisterIdempotent(t *testing.T) {
	ledger, _, kv, _ := newTestLedger()
	ctx := context.Background()

	first, created, err := ledger.Register(ctx, "Alice", "A@x.com")
	require.NoError(t, err)
	require.True(t, created)
	require.True(t, model.ValidSerialNumber(first.SerialNumber))
	require.Equal(t, "a@x.com", first.Email)
	require.Equal(t, 0, first.Points)

	second, created, err := ledger.Register(ctx, "Alice", "a@x.com")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.SerialNumber, second.SerialNumber)

	// оба индекса указывают на одну карту
	raw1, err := kv.Get(ctx, model.KeyContact("a@x.com"))
	require.NoError(t, err)
	raw2, err := kv.Get(ctx, model.KeySerial(first.SerialNumber))
	require.NoError(t, err)
	require.Equal(t, raw1, raw2)
}

func TestRegisterValidation(t *testing.T) {
	ledger, _, _, _ := newTestLedger()
	ctx := context.Background()

	tests := []struct {
		name  string
		email string
	}{
		{"", "a@x.com"},
		{"Alice", ""},
		{"Alice", "not-an-email"},
		{"Alice", "a@x"},
	}

	for _, ts := range tests {
		_, _, err := ledger.Register(ctx, ts.name, ts.email)
		require.ErrorIs(t, err, model.ErrValidation, "name=%q email=%q", ts.name, ts.email)
	}
}

func TestApplyDeltaScenario(t *testing.T) {
	ledger, _, _, _ := newTestLedger()
	ctx := context.Background()

	customer, _, err := ledger.Register(ctx, "Alice", "a@x.com")
	require.NoError(t, err)
	serial := customer.SerialNumber

	// начисление
	oldPoints, newPoints, err := ledger.ApplyDelta(ctx, serial, 10, "")
	require.NoError(t, err)
	require.Equal(t, 0, oldPoints)
	require.Equal(t, 10, newPoints)

	// списание больше баланса обрезается до нуля
	oldPoints, newPoints, err = ledger.ApplyDelta(ctx, serial, -25, "")
	require.NoError(t, err)
	require.Equal(t, 10, oldPoints)
	require.Equal(t, 0, newPoints)

	got, err := ledger.LookupBySerial(ctx, serial)
	require.NoError(t, err)
	require.Equal(t, 0, got.Points)
	require.Len(t, got.Transactions, 2)
	require.Equal(t, model.ActionEarned, got.Transactions[0].Action)
	require.Equal(t, 10, got.Transactions[0].NewBalance)
	require.Equal(t, model.ActionRedeemed, got.Transactions[1].Action)
	require.Equal(t, -25, got.Transactions[1].PointsChange)
	require.Equal(t, 0, got.Transactions[1].NewBalance)
	require.Equal(t, int64(3), got.Version)
	require.False(t, got.LastUpdated.Before(got.CreatedAt))
}

func TestApplyDeltaFold(t *testing.T) {
	ledger, _, _, _ := newTestLedger()
	ctx := context.Background()

	customer, _, err := ledger.Register(ctx, "Bob", "b@x.com")
	require.NoError(t, err)

	deltas := []int{5, -2, 100, -300, 7}
	balance := 0
	for _, d := range deltas {
		_, newPoints, err := ledger.ApplyDelta(ctx, customer.SerialNumber, d, model.ActionAdjusted)
		require.NoError(t, err)
		balance += d
		if balance < 0 {
			balance = 0
		}
		require.Equal(t, balance, newPoints)
	}

	got, err := ledger.LookupBySerial(ctx, customer.SerialNumber)
	require.NoError(t, err)
	require.Equal(t, balance, got.Points)
	require.Len(t, got.Transactions, len(deltas))
	for i, tnx := range got.Transactions {
		require.Equal(t, deltas[i], tnx.PointsChange)
	}
}

func TestApplyDeltaUnknownSerial(t *testing.T) {
	ledger, _, _, _ := newTestLedger()

	_, _, err := ledger.ApplyDelta(context.Background(), model.NewSerialNumber(), 10, "")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestApplyDeltaUnknownAction(t *testing.T) {
	ledger, _, _, _ := newTestLedger()
	ctx := context.Background()

	customer, _, err := ledger.Register(ctx, "Bob", "b@x.com")
	require.NoError(t, err)

	_, _, err = ledger.ApplyDelta(ctx, customer.SerialNumber, 10, "stolen")
	require.ErrorIs(t, err, model.ErrValidation)
}

// хранилище, в котором запись всегда проигрывает гонку
type conflictStore struct {
	*db.MemoryStore
	casCalls int32
}

func (s *conflictStore) CompareAndSwap(ctx context.Context, key string, oldValue string, newValue string) error {
	atomic.AddInt32(&s.casCalls, 1)
	return fmt.Errorf("key %s: %w", key, model.ErrConflict)
}

// после исчерпания повторов CAS возвращается конфликт
func TestApplyDeltaConflictExhausted(t *testing.T) {
	logger := zap.NewNop()
	kv := &conflictStore{MemoryStore: db.NewMemoryStore()}
	devices := NewDeviceService(logger, kv)
	ledger := NewLedgerService(logger, kv, devices, nil)
	ctx := context.Background()

	customer, _, err := ledger.Register(ctx, "Henry", "h@x.com")
	require.NoError(t, err)

	_, _, err = ledger.ApplyDelta(ctx, customer.SerialNumber, 10, "")
	require.ErrorIs(t, err, model.ErrConflict)
	require.Equal(t, int32(casAttempts), atomic.LoadInt32(&kv.casCalls))

	// баланс не изменился
	got, err := ledger.LookupBySerial(ctx, customer.SerialNumber)
	require.NoError(t, err)
	require.Equal(t, 0, got.Points)
	require.Empty(t, got.Transactions)
}

// хранилище, зависающее до отмены контекста
type stallStore struct{}

func (s *stallStore) Get(ctx context.Context, key string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (s *stallStore) Put(ctx context.Context, key string, value string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *stallStore) PutIfAbsent(ctx context.Context, key string, value string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *stallStore) CompareAndSwap(ctx context.Context, key string, oldValue string, newValue string) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *stallStore) Delete(ctx context.Context, key string) error {
	<-ctx.Done()
	return ctx.Err()
}

// зависшее хранилище не блокирует операции без дедлайна в контексте вызова
func TestStoreOperationsBounded(t *testing.T) {
	logger := zap.NewNop()
	kv := &stallStore{}
	devices := NewDeviceService(logger, kv)
	ledger := NewLedgerService(logger, kv, devices, nil)

	done := make(chan error, 1)
	go func() {
		done <- ledger.PurchaseProcess(context.Background(), `{"serialNumber": "`+model.NewSerialNumber()+`", "points": 1}`)
	}()
	select {
	case err := <-done:
		require.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(storeTimeout + time.Second):
		t.Fatal("PurchaseProcess did not return")
	}

	_, err := devices.ListTokens(context.Background(), model.NewSerialNumber())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

// параллельные пары записей не теряют обновления
func TestApplyDeltaConcurrent(t *testing.T) {
	ledger, _, _, _ := newTestLedger()
	ctx := context.Background()

	customer, _, err := ledger.Register(ctx, "Carol", "c@x.com")
	require.NoError(t, err)
	serial := customer.SerialNumber

	const rounds = 25
	for i := 0; i < rounds; i++ {
		wg := &sync.WaitGroup{}
		wg.Add(2)
		errs := make(chan error, 2)
		for _, d := range []int{1, 2} {
			go func(d int) {
				defer wg.Done()
				_, _, err := ledger.ApplyDelta(ctx, serial, d, model.ActionEarned)
				errs <- err
			}(d)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}
	}

	got, err := ledger.LookupBySerial(ctx, serial)
	require.NoError(t, err)
	require.Equal(t, rounds*3, got.Points)
	require.Len(t, got.Transactions, rounds*2)
}

// расхождение индексов лечится при чтении по email
func TestLookupByContactHealsStaleIndex(t *testing.T) {
	ledger, _, kv, _ := newTestLedger()
	ctx := context.Background()

	customer, _, err := ledger.Register(ctx, "Dave", "d@x.com")
	require.NoError(t, err)

	stale, err := kv.Get(ctx, model.KeyContact("d@x.com"))
	require.NoError(t, err)

	_, _, err = ledger.ApplyDelta(ctx, customer.SerialNumber, 42, "")
	require.NoError(t, err)

	// откатываем вторичный индекс
	require.NoError(t, kv.Put(ctx, model.KeyContact("d@x.com"), stale))

	got, err := ledger.LookupByContact(ctx, "d@x.com")
	require.NoError(t, err)
	require.Equal(t, 42, got.Points)

	healed, err := kv.Get(ctx, model.KeyContact("d@x.com"))
	require.NoError(t, err)
	auth, err := kv.Get(ctx, model.KeySerial(customer.SerialNumber))
	require.NoError(t, err)
	require.Equal(t, auth, healed)
}

// незавершенная регистрация: есть только ключ контакта
func TestLookupByContactHealsMissingSerial(t *testing.T) {
	ledger, _, kv, _ := newTestLedger()
	ctx := context.Background()

	customer, _, err := ledger.Register(ctx, "Eve", "e@x.com")
	require.NoError(t, err)
	require.NoError(t, kv.Delete(ctx, model.KeySerial(customer.SerialNumber)))

	got, err := ledger.LookupByContact(ctx, "e@x.com")
	require.NoError(t, err)
	require.Equal(t, customer.SerialNumber, got.SerialNumber)

	_, err = kv.Get(ctx, model.KeySerial(customer.SerialNumber))
	require.NoError(t, err)
}

// после изменения баланса устройства получают wake-up
func TestApplyDeltaNotifiesDevices(t *testing.T) {
	ledger, devices, _, push := newTestLedger()
	ctx := context.Background()

	customer, _, err := ledger.Register(ctx, "Frank", "f@x.com")
	require.NoError(t, err)
	require.NoError(t, devices.Register(ctx, "device-1", customer.SerialNumber, "token-1"))
	require.NoError(t, devices.Register(ctx, "device-2", customer.SerialNumber, "token-2"))

	_, _, err = ledger.ApplyDelta(ctx, customer.SerialNumber, 5, "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(push.Tokens()) == 2
	}, time.Second, 10*time.Millisecond)
	require.ElementsMatch(t, []string{"token-1", "token-2"}, push.Tokens())
}

func TestGetPurchase(t *testing.T) {
	serial := model.NewSerialNumber()

	got, points, err := GetPurchase(`{"serialNumber": "` + serial + `", "points": 3, "orderId": "o-1"}`)
	require.NoError(t, err)
	require.Equal(t, serial, got)
	require.Equal(t, 3, points)

	_, _, err = GetPurchase(`{"points": 3}`)
	require.Error(t, err)

	_, _, err = GetPurchase(`{"serialNumber": "` + serial + `", "points": 0}`)
	require.Error(t, err)

	_, _, err = GetPurchase(`not json`)
	require.Error(t, err)
}

func TestPurchaseProcess(t *testing.T) {
	ledger, _, _, _ := newTestLedger()
	ctx := context.Background()

	customer, _, err := ledger.Register(ctx, "Grace", "g@x.com")
	require.NoError(t, err)

	err = ledger.PurchaseProcess(ctx, `{"serialNumber": "`+customer.SerialNumber+`", "points": 7, "orderId": "o-2"}`)
	require.NoError(t, err)

	got, err := ledger.LookupBySerial(ctx, customer.SerialNumber)
	require.NoError(t, err)
	require.Equal(t, 7, got.Points)
	require.Equal(t, model.ActionEarned, got.Transactions[0].Action)

	err = ledger.PurchaseProcess(ctx, `{"serialNumber": "`+model.NewSerialNumber()+`", "points": 7}`)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestLookupUnknown(t *testing.T) {
	ledger, _, _, _ := newTestLedger()
	ctx := context.Background()

	_, err := ledger.LookupByContact(ctx, "nobody@x.com")
	require.ErrorIs(t, err, model.ErrNotFound)

	_, err = ledger.LookupBySerial(ctx, model.NewSerialNumber())
	require.ErrorIs(t, err, model.ErrNotFound)
	require.False(t, errors.Is(err, model.ErrConflict))
}
