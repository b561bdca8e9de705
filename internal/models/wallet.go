package wallet

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Типы операций
const (
	ActionEarned   = "earned"
	ActionRedeemed = "redeemed"
	ActionAdjusted = "adjusted"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("invalid request")
)

// Карта лояльности
// SerialNumber - серийный номер пасса, он же токен авторизации устройства
type Customer struct {
	SerialNumber string        `json:"serialNumber"`
	Name         string        `json:"name"`
	Email        string        `json:"email"`
	Points       int           `json:"points"`
	CreatedAt    time.Time     `json:"createdAt"`
	LastUpdated  time.Time     `json:"lastUpdated"`
	Version      int64         `json:"version"`
	Transactions []Transaction `json:"transactions,omitempty"`
}

// Транзакции
type Transaction struct {
	Date         time.Time `json:"date"`
	PointsChange int       `json:"pointsChange"` // изменение баланса, может быть отрицательным
	Action       string    `json:"action"`
	NewBalance   int       `json:"newBalance"` // баланс после применения
}

// Регистрация устройства
type DeviceRegistration struct {
	PushToken    string    `json:"pushToken"`
	RegisteredAt time.Time `json:"registeredAt"`
}

var serialRegexp = regexp.MustCompile(`^FD[0-9A-F]{32}$`)
var emailRegexp = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// Новый серийный номер
func NewSerialNumber() string {
	return "FD" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))
}

func ValidSerialNumber(serial string) bool {
	return serialRegexp.MatchString(serial)
}

func ValidEmail(email string) bool {
	return emailRegexp.MatchString(email)
}

// Ключи хранилища
func KeyContact(email string) string { return "account:" + email }

func KeySerial(serial string) string { return "serial:" + serial }

func KeyDevice(device string, serial string) string { return "device:" + device + ":" + serial }

func KeyDevices(serial string) string { return "devices:" + serial }
