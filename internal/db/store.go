package wallet

import (
	"fmt"
	"os"

	interf "github.com/glkeru/loyalty/wallet/internal/interfaces"
	"go.uber.org/zap"
)

// Выбор бэкенда по WALLET_STORE: redis (по умолчанию), mongo, postgres, memory
func NewStoreFromEnv(logger *zap.Logger) (interf.KeyValueStore, error) {
	backend := os.Getenv("WALLET_STORE")
	switch backend {
	case "", "redis":
		return NewRedisStore()
	case "mongo":
		return NewMongoStore()
	case "postgres":
		return NewPostgresStore(logger)
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown store backend: %s", backend)
	}
}
