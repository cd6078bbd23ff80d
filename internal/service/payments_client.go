package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// PaymentsClient is a pass-through to the payment/escrow collaborator.
// It only requests movements; completion arrives asynchronously as
// payment events on the broker.
type PaymentsClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewPaymentsClient creates a client for the payment collaborator
func NewPaymentsClient(baseURL, token string) *PaymentsClient {
	return &PaymentsClient{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 15 * time.Second},
	}
}

type refundRequest struct {
	OrderID int64  `json:"order_id"`
	Amount  int64  `json:"amount"`
	Reason  string `json:"reason,omitempty"`
}

// RequestRefund asks the collaborator to return escrowed funds to the buyer
func (p *PaymentsClient) RequestRefund(ctx context.Context, orderID int64, amount int64, reason string) error {
	body, err := json.Marshal(refundRequest{OrderID: orderID, Amount: amount, Reason: reason})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/refunds", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("unexpected status: %d, body: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
