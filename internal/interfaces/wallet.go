package wallet

import (
	"context"

	model "github.com/glkeru/loyalty/wallet/internal/models"
)

//go:generate mockgen -destination=./../api/mock_wallet_test.go -package=wallet . PassRenderer,PushTransport

// Хранилище ключ-значение
// PutIfAbsent и CompareAndSwap возвращают model.ErrConflict,
// Get и CompareAndSwap - model.ErrNotFound, если ключа нет
type KeyValueStore interface {
	Get(ctx context.Context, key string) (value string, err error)
	Put(ctx context.Context, key string, value string) error
	PutIfAbsent(ctx context.Context, key string, value string) error
	CompareAndSwap(ctx context.Context, key string, oldValue string, newValue string) error
	Delete(ctx context.Context, key string) error
}

// Сервис подписи пассов
type PassRenderer interface {
	Render(ctx context.Context, customer model.Customer) (pass []byte, err error)
}

// Отправка wake-up уведомления на устройство
type PushTransport interface {
	Notify(ctx context.Context, pushToken string) error
}
