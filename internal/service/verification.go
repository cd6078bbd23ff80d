package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"github.com/kingwillyo/BellBuy-sub001/internal/auth"
	"github.com/kingwillyo/BellBuy-sub001/internal/models"
	"github.com/kingwillyo/BellBuy-sub001/internal/util"

	"go.uber.org/zap"
)

// CodeLength is the length of a delivery verification code.
const CodeLength = 6

// GenerateCode produces a random numeric delivery code.
func GenerateCode() (string, error) {
	upper := big.NewInt(1)
	for i := 0; i < CodeLength; i++ {
		upper.Mul(upper, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, upper)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n), nil
}

// ValidCodeFormat reports whether code is a well-formed delivery code.
// Checked before any network call; the verifier stays authoritative.
func ValidCodeFormat(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// VerificationService mediates the buyer-seller delivery handshake. The
// seller submits the code the buyer handed over; the remote verification
// function validates it (including expiry) and triggers the escrow payout.
// This service only pre-checks what it can judge locally and applies the
// resulting completion.
type VerificationService struct {
	store      OrderStore
	cache      OrderCache
	verifier   Verifier
	settlement *SettlementService
	logger     *zap.Logger
	lockTTL    time.Duration
}

// NewVerificationService creates a new verification service
func NewVerificationService(store OrderStore, cache OrderCache, verifier Verifier, settlement *SettlementService) *VerificationService {
	return &VerificationService{
		store:      store,
		cache:      cache,
		verifier:   verifier,
		settlement: settlement,
		logger:     util.NamedLogger("verification"),
		lockTTL:    30 * time.Second,
	}
}

// CanVerify reports whether an order is eligible for code submission.
// Kept deliberately strict: only confirmed orders pass the local gate,
// mirroring the seller-facing flow. The verifier re-validates regardless.
func CanVerify(status models.OrderStatus) bool {
	return status == models.OrderStatusConfirmed
}

// SubmitVerificationCode validates and submits a delivery code for an
// order. Locally detectable failures (format, eligibility, authorization)
// return before any network call. Verifier rejections are surfaced
// verbatim and leave the order untouched so the seller can retry until
// the code expires. Submission is a completing mutation, so it holds the
// same per-order lock as the lifecycle transitions: a concurrent
// submission fails fast with ErrOrderBusy instead of reaching the
// verifier twice.
func (v *VerificationService) SubmitVerificationCode(ctx context.Context, caller auth.Caller, orderID int64, code string) error {
	ctx, span := util.StartSpan(ctx, "VerificationService.SubmitVerificationCode")
	defer span.End()

	if !ValidCodeFormat(code) {
		util.VerificationFailedTotal.WithLabelValues("bad_format").Inc()
		return ErrCodeFormat
	}

	acquired, err := v.cache.AcquireOrderLock(ctx, orderID, v.lockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire order lock: %w", err)
	}
	if !acquired {
		return ErrOrderBusy
	}
	defer func() {
		if err := v.cache.ReleaseOrderLock(ctx, orderID); err != nil {
			v.logger.Warn("Failed to release order lock",
				zap.Int64("order_id", orderID), zap.Error(err))
		}
	}()

	order, err := v.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if order.SellerID != caller.UserID {
		return ErrNotSeller
	}
	if !CanVerify(order.Status) {
		util.VerificationFailedTotal.WithLabelValues("not_verifiable").Inc()
		return fmt.Errorf("%w: status is %s", ErrNotVerifiable, order.Status)
	}

	util.VerificationAttemptsTotal.Inc()
	start := time.Now()
	result, err := v.verifier.Verify(ctx, VerifyRequest{
		VerificationCode: code,
		OrderID:          order.ID,
		SellerID:         caller.UserID,
	})
	util.VerificationLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		util.VerificationFailedTotal.WithLabelValues("network").Inc()
		return fmt.Errorf("verification request failed: %w", err)
	}

	if !result.Success {
		util.VerificationFailedTotal.WithLabelValues("rejected").Inc()
		v.logger.Warn("Verification rejected",
			zap.Int64("order_id", order.ID),
			zap.String("reason", result.Error))
		return &VerificationError{Message: result.Error}
	}

	return v.settlement.OnVerificationSuccess(ctx, order)
}
