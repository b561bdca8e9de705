package wallet

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	interf "github.com/glkeru/loyalty/wallet/internal/interfaces"
	model "github.com/glkeru/loyalty/wallet/internal/models"
	service "github.com/glkeru/loyalty/wallet/internal/services"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type WalletHandler struct {
	router   *mux.Router
	ledger   *service.LedgerService
	devices  *service.DeviceService
	renderer interf.PassRenderer
	logger   *zap.Logger
}

type RegisterRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type UpdatePointsRequest struct {
	Points *int   `json:"points"`
	Action string `json:"action"`
}

type UpdatePointsResponse struct {
	Success      bool   `json:"success"`
	OldPoints    int    `json:"oldPoints"`
	NewPoints    int    `json:"newPoints"`
	PointsChange int    `json:"pointsChange"`
	SerialNumber string `json:"serialNumber"`
}

type RegisterDeviceRequest struct {
	PushToken string `json:"pushToken"`
}

func NewHandler(ledger *service.LedgerService, devices *service.DeviceService, renderer interf.PassRenderer, logger *zap.Logger) *WalletHandler {
	router := mux.NewRouter()
	handler := &WalletHandler{router, ledger, devices, renderer, logger}
	router.HandleFunc("/accounts", handler.RegisterHandler).Methods(http.MethodPost)
	router.HandleFunc("/accounts", handler.LookupHandler).Methods(http.MethodGet)
	router.HandleFunc("/accounts/{serial}/points", handler.UpdatePointsHandler).Methods(http.MethodPost)
	router.HandleFunc("/accounts/{serial}/pass", handler.DownloadPassHandler).Methods(http.MethodPost)
	router.HandleFunc("/devices/passes/{serial}", handler.PassHandler).Methods(http.MethodGet)
	router.HandleFunc("/devices/{device}/accounts/{serial}", handler.RegisterDeviceHandler).Methods(http.MethodPost)
	router.HandleFunc("/devices/{device}/accounts/{serial}", handler.UnregisterDeviceHandler).Methods(http.MethodDelete)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return handler
}

func (h *WalletHandler) ServeHTTP(w http.ResponseWriter, res *http.Request) {
	h.router.ServeHTTP(w, res)
}

func (h *WalletHandler) Log(msg string, service string, err error) {
	h.logger.Error(msg,
		zap.String("service", service),
		zap.Error(err),
	)
}

func (h *WalletHandler) writeJSON(w http.ResponseWriter, status int, body any) {
	j, err := json.Marshal(body)
	if err != nil {
		h.Log("Marshal", "writeJSON", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(j)
}

// Регистрация клиента
func (h *WalletHandler) RegisterHandler(w http.ResponseWriter, req *http.Request) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		h.Log("Get request body", "RegisterHandler", err)
		http.Error(w, "Body is empty", http.StatusBadRequest)
		return
	}
	defer req.Body.Close()

	reg := &RegisterRequest{}
	err = json.Unmarshal(body, reg)
	if err != nil {
		h.Log("Unmarshal", "RegisterHandler", err)
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}

	customer, created, err := h.ledger.Register(req.Context(), reg.Name, reg.Email)
	if err != nil {
		if errors.Is(err, model.ErrValidation) {
			http.Error(w, "Name and email are required", http.StatusBadRequest)
			return
		}
		h.Log("Register", "RegisterHandler", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.writeJSON(w, status, customer)
}

// Поиск карты по email
func (h *WalletHandler) LookupHandler(w http.ResponseWriter, req *http.Request) {
	contact := req.URL.Query().Get("contact")
	if contact == "" {
		http.Error(w, "Contact required", http.StatusBadRequest)
		return
	}

	customer, err := h.ledger.LookupByContact(req.Context(), contact)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			http.Error(w, "Customer not found", http.StatusNotFound)
			return
		}
		h.Log("Lookup", "LookupHandler", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Cache-Control", "no-cache")
	h.writeJSON(w, http.StatusOK, customer)
}

// Изменение баланса
func (h *WalletHandler) UpdatePointsHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	serial := vars["serial"]

	body, err := io.ReadAll(req.Body)
	if err != nil {
		h.Log("Get request body", "UpdatePointsHandler", err)
		http.Error(w, "Body is empty", http.StatusBadRequest)
		return
	}
	defer req.Body.Close()

	update := &UpdatePointsRequest{}
	err = json.Unmarshal(body, update)
	if err != nil {
		h.Log("Unmarshal", "UpdatePointsHandler", err)
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}
	if update.Points == nil {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	oldPoints, newPoints, err := h.ledger.ApplyDelta(req.Context(), serial, *update.Points, update.Action)
	if err != nil {
		switch {
		case errors.Is(err, model.ErrValidation):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, model.ErrNotFound):
			http.Error(w, "Customer not found", http.StatusNotFound)
		case errors.Is(err, model.ErrConflict):
			h.Log("Apply delta conflict", "UpdatePointsHandler", err)
			http.Error(w, "Conflict, try again", http.StatusConflict)
		default:
			h.Log("Apply delta", "UpdatePointsHandler", err)
			http.Error(w, "Failed to update points", http.StatusInternalServerError)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, &UpdatePointsResponse{
		Success:      true,
		OldPoints:    oldPoints,
		NewPoints:    newPoints,
		PointsChange: *update.Points,
		SerialNumber: serial,
	})
}

// Выдача пасса устройству
// Авторизация проверяется до поиска карты, чтобы не раскрывать существование
func (h *WalletHandler) PassHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	serial := vars["serial"]

	auth := req.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "ApplePass ") {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	token := strings.TrimPrefix(auth, "ApplePass ")
	if token != serial {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	customer, err := h.ledger.LookupBySerial(req.Context(), serial)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			http.Error(w, "Pass not found", http.StatusNotFound)
			return
		}
		h.Log("Lookup", "PassHandler", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	// условный GET: пасс не изменился - не перерисовываем
	if since, err := http.ParseTime(req.Header.Get("If-Modified-Since")); err == nil {
		if !customer.LastUpdated.Truncate(time.Second).After(since) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	}

	pass, err := h.renderer.Render(req.Context(), customer)
	if err != nil {
		h.Log("Render", "PassHandler", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apple.pkpass")
	w.Header().Set("Last-Modified", customer.LastUpdated.UTC().Format(http.TimeFormat))
	w.WriteHeader(http.StatusOK)
	w.Write(pass)
}

// Скачивание пасса после регистрации
func (h *WalletHandler) DownloadPassHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	serial := vars["serial"]

	customer, err := h.ledger.LookupBySerial(req.Context(), serial)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			http.Error(w, "Customer not found", http.StatusNotFound)
			return
		}
		h.Log("Lookup", "DownloadPassHandler", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	pass, err := h.renderer.Render(req.Context(), customer)
	if err != nil {
		h.Log("Render", "DownloadPassHandler", err)
		http.Error(w, "Failed to generate pass", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.apple.pkpass")
	w.Header().Set("Content-Disposition", `attachment; filename="loyalty.pkpass"`)
	w.WriteHeader(http.StatusOK)
	w.Write(pass)
}

// Регистрация устройства
// Карта не обязана существовать, но серийный номер должен быть синтаксически валидным
func (h *WalletHandler) RegisterDeviceHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	device := vars["device"]
	serial := vars["serial"]

	if !model.ValidSerialNumber(serial) {
		http.Error(w, "Invalid serial number", http.StatusBadRequest)
		return
	}

	body, err := io.ReadAll(req.Body)
	if err != nil {
		h.Log("Get request body", "RegisterDeviceHandler", err)
		http.Error(w, "Body is empty", http.StatusBadRequest)
		return
	}
	defer req.Body.Close()

	reg := &RegisterDeviceRequest{}
	err = json.Unmarshal(body, reg)
	if err != nil {
		h.Log("Unmarshal", "RegisterDeviceHandler", err)
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}
	if device == "" || reg.PushToken == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	err = h.devices.Register(req.Context(), device, serial, reg.PushToken)
	if err != nil {
		h.Log("Register device", "RegisterDeviceHandler", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

// Удаление регистрации устройства, идемпотентно
func (h *WalletHandler) UnregisterDeviceHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	device := vars["device"]
	serial := vars["serial"]

	if device == "" {
		http.Error(w, "Missing deviceLibraryIdentifier", http.StatusBadRequest)
		return
	}

	err := h.devices.Unregister(req.Context(), device, serial)
	if err != nil {
		h.Log("Unregister device", "UnregisterDeviceHandler", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}
