package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"
)

type DeliverRequest struct {
	PushToken string `json:"pushToken"`
}

// Доставка wake-up на push-шлюз
func Deliver(ctx context.Context, pushToken string) error {

	// config
	host := os.Getenv("PUSH_GATEWAY_HOST")
	if host == "" {
		return fmt.Errorf("env PUSH_GATEWAY_HOST is not set")
	}
	port := os.Getenv("PUSH_GATEWAY_PORT")
	if port == "" {
		return fmt.Errorf("env PUSH_GATEWAY_PORT is not set")
	}

	data, err := json.Marshal(&DeliverRequest{pushToken})
	if err != nil {
		return err
	}

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, host+":"+port, bytes.NewBuffer(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("push gateway HTTP error: %s", resp.Status)
	}
	return nil
}
