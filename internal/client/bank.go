// Package client holds the HTTP clients the payment service uses to
// reach its collaborators.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/careforall/settlement/internal/service"
	"github.com/shopspring/decimal"
)

// BankClient implements service.BankAPI over the bank service's HTTP
// surface.
type BankClient struct {
	baseURL string
	http    *http.Client
}

func NewBankClient(baseURL string) *BankClient {
	return &BankClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

type bankResponse struct {
	Success       bool   `json:"success"`
	HoldID        string `json:"holdId"`
	TransactionID string `json:"transactionId"`
	Error         string `json:"error"`
}

func (c *BankClient) AuthorizePayment(ctx context.Context, accountNumber string, amount decimal.Decimal, reference string) (string, error) {
	resp, err := c.post(ctx, "/v1/bank/authorize", map[string]interface{}{
		"accountNumber": accountNumber,
		"amount":        amount,
		"reference":     reference,
	})
	if err != nil {
		return "", err
	}
	return resp.HoldID, nil
}

func (c *BankClient) CapturePayment(ctx context.Context, holdID string) (string, error) {
	resp, err := c.post(ctx, "/v1/bank/capture", map[string]interface{}{"holdId": holdID})
	if err != nil {
		return "", err
	}
	return resp.TransactionID, nil
}

func (c *BankClient) ReleaseHold(ctx context.Context, holdID string) error {
	_, err := c.post(ctx, "/v1/bank/release", map[string]interface{}{"holdId": holdID})
	return err
}

func (c *BankClient) post(ctx context.Context, path string, body interface{}) (*bankResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bank %s: %w", path, err)
	}
	defer res.Body.Close()

	var out bankResponse
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("bank %s: decode response: %w", path, err)
	}
	if res.StatusCode >= 500 {
		return nil, fmt.Errorf("bank %s: server error: %s", path, out.Error)
	}
	if !out.Success {
		return nil, mapBankError(out.Error)
	}
	return &out, nil
}

// mapBankError turns the bank's error strings back into the shared
// sentinels so the orchestrator can tell business failures from I/O
// failures across the service boundary.
func mapBankError(msg string) error {
	switch {
	case msg == service.ErrAccountNotFound.Error():
		return service.ErrAccountNotFound
	case msg == service.ErrAccountInactive.Error():
		return service.ErrAccountInactive
	case msg == service.ErrInsufficientFunds.Error():
		return service.ErrInsufficientFunds
	case msg == service.ErrHoldNotFound.Error():
		return service.ErrHoldNotFound
	case msg == service.ErrHoldExpired.Error():
		return service.ErrHoldExpired
	case strings.Contains(msg, "hold is"):
		return fmt.Errorf("%s: %w", msg, service.ErrHoldNotActive)
	default:
		return fmt.Errorf("%s: %w", msg, service.ErrBankRejected)
	}
}
