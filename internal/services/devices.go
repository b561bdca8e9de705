package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	interf "github.com/glkeru/loyalty/wallet/internal/interfaces"
	model "github.com/glkeru/loyalty/wallet/internal/models"
	"go.uber.org/zap"
)

type DeviceService struct {
	logger *zap.Logger
	kv     interf.KeyValueStore
}

func NewDeviceService(logger *zap.Logger, kv interf.KeyValueStore) *DeviceService {
	return &DeviceService{logger, kv}
}

// Регистрация устройства, повторная регистрация перезаписывает токен
// Существование карты здесь не проверяется: регистрация может обогнать создание карты
func (d *DeviceService) Register(ctx context.Context, deviceId string, serial string, pushToken string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	reg := model.DeviceRegistration{
		PushToken:    pushToken,
		RegisteredAt: time.Now().UTC(),
	}
	data, err := json.Marshal(reg)
	if err != nil {
		return err
	}
	if err := d.kv.Put(ctx, model.KeyDevice(deviceId, serial), string(data)); err != nil {
		return err
	}
	return d.updateIndex(ctx, serial, func(tokens map[string]string) {
		tokens[deviceId] = pushToken
	})
}

// Удаление регистрации, отсутствующая запись - не ошибка
func (d *DeviceService) Unregister(ctx context.Context, deviceId string, serial string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	if err := d.kv.Delete(ctx, model.KeyDevice(deviceId, serial)); err != nil && !errors.Is(err, model.ErrNotFound) {
		return err
	}
	return d.updateIndex(ctx, serial, func(tokens map[string]string) {
		delete(tokens, deviceId)
	})
}

// Токены устройств карты
func (d *DeviceService) ListTokens(ctx context.Context, serial string) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	raw, err := d.kv.Get(ctx, model.KeyDevices(serial))
	if errors.Is(err, model.ErrNotFound) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	tokens := map[string]string{}
	err = json.Unmarshal([]byte(raw), &tokens)
	return tokens, err
}

// Индекс устройств карты, CAS-цикл
func (d *DeviceService) updateIndex(ctx context.Context, serial string, change func(map[string]string)) error {
	key := model.KeyDevices(serial)
	for attempt := 0; attempt < casAttempts; attempt++ {
		raw, err := d.kv.Get(ctx, key)
		if errors.Is(err, model.ErrNotFound) {
			tokens := map[string]string{}
			change(tokens)
			if len(tokens) == 0 {
				return nil
			}
			data, err := json.Marshal(tokens)
			if err != nil {
				return err
			}
			err = d.kv.PutIfAbsent(ctx, key, string(data))
			if errors.Is(err, model.ErrConflict) {
				continue
			}
			return err
		}
		if err != nil {
			return err
		}

		tokens := map[string]string{}
		if err := json.Unmarshal([]byte(raw), &tokens); err != nil {
			return err
		}
		change(tokens)
		data, err := json.Marshal(tokens)
		if err != nil {
			return err
		}
		if string(data) == raw {
			return nil
		}
		err = d.kv.CompareAndSwap(ctx, key, raw, string(data))
		if errors.Is(err, model.ErrConflict) {
			continue
		}
		return err
	}
	return fmt.Errorf("device index %s: %w", serial, model.ErrConflict)
}
