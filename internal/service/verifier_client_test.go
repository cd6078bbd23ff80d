package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFunctionVerifierSuccess(t *testing.T) {
	var got VerifyRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer service-token", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		json.NewEncoder(w).Encode(VerifyResult{Success: true})
	}))
	defer srv.Close()

	verifier := NewFunctionVerifier(srv.URL, "service-token")
	result, err := verifier.Verify(context.Background(), VerifyRequest{
		VerificationCode: "482913",
		OrderID:          103,
		SellerID:         "seller-1",
	})
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, int64(103), got.OrderID)
	assert.Equal(t, "482913", got.VerificationCode)
}

func TestFunctionVerifierRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(VerifyResult{Success: false, Error: "Invalid code"})
	}))
	defer srv.Close()

	verifier := NewFunctionVerifier(srv.URL, "token")
	result, err := verifier.Verify(context.Background(), VerifyRequest{
		VerificationCode: "000000",
		OrderID:          1,
		SellerID:         "seller-1",
	})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "Invalid code", result.Error)
}

func TestFunctionVerifierServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	verifier := NewFunctionVerifier(srv.URL, "token")
	_, err := verifier.Verify(context.Background(), VerifyRequest{
		VerificationCode: "482913",
		OrderID:          1,
		SellerID:         "seller-1",
	})
	assert.Error(t, err)
}
