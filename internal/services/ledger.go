package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	interf "github.com/glkeru/loyalty/wallet/internal/interfaces"
	model "github.com/glkeru/loyalty/wallet/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// максимум повторов CAS на запись баланса
const casAttempts = 5

// лимит времени на операцию с хранилищем
const storeTimeout = 2 * time.Second

type LedgerService struct {
	logger  *zap.Logger
	kv      interf.KeyValueStore
	devices *DeviceService
	push    interf.PushTransport
}

func NewLedgerService(logger *zap.Logger, kv interf.KeyValueStore, devices *DeviceService, push interf.PushTransport) *LedgerService {
	return &LedgerService{logger, kv, devices, push}
}

// Регистрация клиента
// Повторная регистрация на тот же email возвращает существующую карту
func (l *LedgerService) Register(ctx context.Context, name string, email string) (customer model.Customer, created bool, err error) {
	if name == "" || !model.ValidEmail(email) {
		return customer, false, fmt.Errorf("name and email are required: %w", model.ErrValidation)
	}
	email = strings.ToLower(email)

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	// существующая карта
	customer, err = l.LookupByContact(ctx, email)
	if err == nil {
		return customer, false, nil
	}
	if !errors.Is(err, model.ErrNotFound) {
		return customer, false, err
	}

	now := time.Now().UTC()
	customer = model.Customer{
		SerialNumber: model.NewSerialNumber(),
		Name:         name,
		Email:        email,
		Points:       0,
		CreatedAt:    now,
		LastUpdated:  now,
		Version:      1,
	}
	data, err := json.Marshal(customer)
	if err != nil {
		return customer, false, err
	}

	// ключ контакта резервирует email, проигравший гонку забирает чужую карту
	err = l.kv.PutIfAbsent(ctx, model.KeyContact(email), string(data))
	if err != nil {
		if errors.Is(err, model.ErrConflict) {
			customer, err = l.LookupByContact(ctx, email)
			return customer, false, err
		}
		return customer, false, err
	}
	err = l.kv.Put(ctx, model.KeySerial(customer.SerialNumber), string(data))
	if err != nil {
		return customer, false, err
	}
	return customer, true, nil
}

// Поиск по серийному номеру - авторитетный ключ
func (l *LedgerService) LookupBySerial(ctx context.Context, serial string) (customer model.Customer, err error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	raw, err := l.kv.Get(ctx, model.KeySerial(serial))
	if err != nil {
		return customer, err
	}
	err = json.Unmarshal([]byte(raw), &customer)
	return customer, err
}

// Поиск по email
// Ключ serial авторитетный, расхождение индексов лечится при чтении
func (l *LedgerService) LookupByContact(ctx context.Context, email string) (customer model.Customer, err error) {
	email = strings.ToLower(email)
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	raw, err := l.kv.Get(ctx, model.KeyContact(email))
	if err != nil {
		return customer, err
	}
	if err = json.Unmarshal([]byte(raw), &customer); err != nil {
		return customer, err
	}

	authraw, err := l.kv.Get(ctx, model.KeySerial(customer.SerialNumber))
	if errors.Is(err, model.ErrNotFound) {
		// незавершенная регистрация - дописываем авторитетный ключ
		if err = l.kv.Put(ctx, model.KeySerial(customer.SerialNumber), raw); err != nil {
			return customer, err
		}
		return customer, nil
	}
	if err != nil {
		return customer, err
	}
	if authraw != raw {
		if err := l.kv.Put(ctx, model.KeyContact(email), authraw); err != nil {
			l.logger.Error("contact index heal",
				zap.Error(err),
				zap.String("email", email),
			)
		}
		if err = json.Unmarshal([]byte(authraw), &customer); err != nil {
			return customer, err
		}
	}
	return customer, nil
}

// Изменение баланса: CAS по авторитетному ключу с повторами
// Списание больше текущего баланса обрезается до нуля
func (l *LedgerService) ApplyDelta(ctx context.Context, serial string, delta int, action string) (oldPoints int, newPoints int, err error) {
	if action == "" {
		if delta > 0 {
			action = model.ActionEarned
		} else {
			action = model.ActionRedeemed
		}
	}
	switch action {
	case model.ActionEarned, model.ActionRedeemed, model.ActionAdjusted:
	default:
		return 0, 0, fmt.Errorf("unknown action %s: %w", action, model.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	key := model.KeySerial(serial)
	for attempt := 0; attempt < casAttempts; attempt++ {
		raw, err := l.kv.Get(ctx, key)
		if err != nil {
			return 0, 0, err
		}
		var customer model.Customer
		if err := json.Unmarshal([]byte(raw), &customer); err != nil {
			return 0, 0, err
		}

		oldPoints = customer.Points
		newPoints = oldPoints + delta
		if newPoints < 0 {
			newPoints = 0
		}
		now := time.Now().UTC()
		customer.Points = newPoints
		customer.LastUpdated = now
		customer.Version++
		customer.Transactions = append(customer.Transactions, model.Transaction{
			Date:         now,
			PointsChange: delta,
			Action:       action,
			NewBalance:   newPoints,
		})
		data, err := json.Marshal(customer)
		if err != nil {
			return 0, 0, err
		}

		err = l.kv.CompareAndSwap(ctx, key, raw, string(data))
		if errors.Is(err, model.ErrConflict) {
			select {
			case <-ctx.Done():
				return 0, 0, ctx.Err()
			case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
			}
			continue
		}
		if err != nil {
			return 0, 0, err
		}

		// вторичный индекс, при сбое вылечится при следующем чтении
		if err := l.kv.Put(ctx, model.KeyContact(customer.Email), string(data)); err != nil {
			l.logger.Error("contact index update",
				zap.Error(err),
				zap.String("serial", serial),
			)
		}
		l.notifyDevices(serial)
		return oldPoints, newPoints, nil
	}
	return 0, 0, fmt.Errorf("apply delta %s: %w", serial, model.ErrConflict)
}

// Разбудить устройства после изменения баланса, best effort
func (l *LedgerService) notifyDevices(serial string) {
	if l.push == nil || l.devices == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		tokens, err := l.devices.ListTokens(ctx, serial)
		if err != nil {
			l.logger.Error("list devices",
				zap.Error(err),
				zap.String("serial", serial),
			)
			return
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, token := range tokens {
			token := token
			g.Go(func() error {
				if err := l.push.Notify(gctx, token); err != nil {
					l.logger.Error("push notify",
						zap.Error(err),
						zap.String("serial", serial),
					)
				}
				return nil
			})
		}
		g.Wait()
	}()
}

type PurchaseStruct struct {
	SerialNumber string `json:"serialNumber"`
	Points       int    `json:"points"`
	OrderId      string `json:"orderId"`
}

func GetPurchase(purchaseJson string) (serial string, points int, err error) {
	purchase := &PurchaseStruct{}
	err = json.Unmarshal([]byte(purchaseJson), purchase)
	if err != nil {
		return
	}

	serial = purchase.SerialNumber
	if serial == "" {
		return "", 0, fmt.Errorf("invalid purchase: serialNumber field is required")
	}
	points = purchase.Points
	if points <= 0 {
		return "", 0, fmt.Errorf("invalid purchase: points must be positive")
	}
	return
}

// Начисление баллов по покупке
func (l *LedgerService) PurchaseProcess(ctx context.Context, purchase string) error {
	serial, points, err := GetPurchase(purchase)
	if err != nil {
		return err
	}
	_, _, err = l.ApplyDelta(ctx, serial, points, model.ActionEarned)
	return err
}
