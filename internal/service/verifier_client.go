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

// FunctionVerifier calls the serverless verification function over HTTP.
// The function owns code validation (including expiry) and triggers the
// escrow payout on success.
type FunctionVerifier struct {
	url    string
	token  string
	client *http.Client
}

// NewFunctionVerifier creates a verifier backed by the remote function
func NewFunctionVerifier(url, token string) *FunctionVerifier {
	return &FunctionVerifier{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: 15 * time.Second},
	}
}

// Verify submits the code to the verification function
func (f *FunctionVerifier) Verify(ctx context.Context, req VerifyRequest) (*VerifyResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+f.token)

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var result VerifyResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		return &result, nil
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		// The function reports validation failures with a non-2xx status
		// and the same JSON shape.
		var result VerifyResult
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode response: %w", err)
		}
		result.Success = false
		return &result, nil
	default:
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status: %d, body: %s", resp.StatusCode, string(respBody))
	}
}
