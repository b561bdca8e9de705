package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	model "github.com/glkeru/loyalty/wallet/internal/models"
)

// Клиент сервиса подписи пассов
// Сервис получает описание полей и возвращает подписанный .pkpass
type PasskitClient struct {
	url     string
	baseURL string
	client  *http.Client
}

type PassField struct {
	Key           string `json:"key"`
	Label         string `json:"label"`
	Value         string `json:"value"`
	ChangeMessage string `json:"changeMessage,omitempty"`
}

type Barcode struct {
	Message         string `json:"message"`
	Format          string `json:"format"`
	MessageEncoding string `json:"messageEncoding"`
}

type StoreCard struct {
	HeaderFields    []PassField `json:"headerFields"`
	PrimaryFields   []PassField `json:"primaryFields"`
	SecondaryFields []PassField `json:"secondaryFields"`
	BackFields      []PassField `json:"backFields"`
}

type PassRequest struct {
	SerialNumber        string    `json:"serialNumber"`
	Description         string    `json:"description"`
	OrganizationName    string    `json:"organizationName"`
	BackgroundColor     string    `json:"backgroundColor"`
	ForegroundColor     string    `json:"foregroundColor"`
	LabelColor          string    `json:"labelColor"`
	LogoText            string    `json:"logoText"`
	WebServiceURL       string    `json:"webServiceURL"`
	AuthenticationToken string    `json:"authenticationToken"`
	Barcodes            []Barcode `json:"barcodes"`
	StoreCard           StoreCard `json:"storeCard"`
}

func NewPasskitClient() (*PasskitClient, error) {
	// config
	host := os.Getenv("PASSKIT_HOST")
	if host == "" {
		return nil, fmt.Errorf("env PASSKIT_HOST is not set")
	}
	port := os.Getenv("PASSKIT_PORT")
	if port == "" {
		return nil, fmt.Errorf("env PASSKIT_PORT is not set")
	}
	base := os.Getenv("WALLET_BASE_URL")
	if base == "" {
		return nil, fmt.Errorf("env WALLET_BASE_URL is not set")
	}
	return &PasskitClient{
		url:     host + ":" + port,
		baseURL: base,
		client:  &http.Client{Timeout: 5 * time.Second},
	}, nil
}

// Сборка описания пасса и вызов подписи
func (p *PasskitClient) Render(ctx context.Context, customer model.Customer) (pass []byte, err error) {
	request := &PassRequest{
		SerialNumber:        customer.SerialNumber,
		Description:         "The Flying Dutchman Loyalty Card",
		OrganizationName:    "The Flying Dutchman",
		BackgroundColor:     "rgb(102, 126, 234)",
		ForegroundColor:     "rgb(255, 255, 255)",
		LabelColor:          "rgb(255, 255, 255)",
		LogoText:            "The Flying Dutchman",
		WebServiceURL:       p.baseURL,
		AuthenticationToken: customer.SerialNumber,
		Barcodes: []Barcode{
			{
				Message:         customer.SerialNumber,
				Format:          "PKBarcodeFormatQR",
				MessageEncoding: "iso-8859-1",
			},
		},
		StoreCard: StoreCard{
			HeaderFields: []PassField{
				{Key: "points", Label: "AVAILABLE", Value: strconv.Itoa(customer.Points), ChangeMessage: "Your balance is now %@"},
			},
			PrimaryFields: []PassField{
				{Key: "name", Label: "CARD OF", Value: customer.Name},
			},
			SecondaryFields: []PassField{
				{Key: "member-since", Label: "MEMBER SINCE", Value: customer.CreatedAt.Format("2006-01-02")},
			},
			BackFields: []PassField{
				{Key: "email", Label: "Email", Value: customer.Email},
				{Key: "serial", Label: "Card Number", Value: customer.SerialNumber},
				{Key: "last-updated", Label: "Last Updated", Value: customer.LastUpdated.Format("2006-01-02 15:04:05")},
				{Key: "terms", Label: "Terms & Conditions", Value: "Earn 1 point for every purchase. Redeem points for free drinks and food items. Points never expire."},
			},
		},
	}

	data, err := json.Marshal(request)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewBuffer(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("passkit service HTTP error: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}
