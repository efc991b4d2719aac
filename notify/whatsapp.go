package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"bitbucket.org/easyadvisor/fingov_backend/config"
)

var ErrGatewayFailed = errors.New("failed to deliver message via gateway")

type WhatsAppClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewWhatsAppClient reads WHATSAPP_API_URL and WHATSAPP_API_TOKEN. With no
// URL the client runs in mock mode and every send succeeds.
func NewWhatsAppClient() *WhatsAppClient {
	return &WhatsAppClient{
		baseURL: strings.TrimSpace(os.Getenv("WHATSAPP_API_URL")),
		token:   strings.TrimSpace(os.Getenv("WHATSAPP_API_TOKEN")),
		http:    &http.Client{Timeout: 12 * time.Second},
	}
}

func (c *WhatsAppClient) Mock() bool {
	return c.baseURL == ""
}

type gatewayMessage struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

func (c *WhatsAppClient) Send(ctx context.Context, to string, message string) error {
	if c.Mock() {
		config.GetLogger().WithField("to", to).Info("whatsapp gateway not configured; mock send")
		return nil
	}

	body, err := json.Marshal(gatewayMessage{To: to, Message: message})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayFailed, err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: gateway error %d: %s", ErrGatewayFailed, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
