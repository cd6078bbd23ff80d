package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/kingwillyo/BellBuy-sub001/internal/auth"
	"github.com/kingwillyo/BellBuy-sub001/internal/models"
	"github.com/kingwillyo/BellBuy-sub001/internal/realtime"
	"github.com/kingwillyo/BellBuy-sub001/internal/service"
	"github.com/kingwillyo/BellBuy-sub001/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler contains HTTP handlers
type Handler struct {
	orders       *service.OrderService
	verification *service.VerificationService
	hub          *realtime.Hub
	jwtSecret    string
}

// NewHandler creates a new HTTP handler
func NewHandler(orders *service.OrderService, verification *service.VerificationService, hub *realtime.Hub, jwtSecret string) *Handler {
	return &Handler{
		orders:       orders,
		verification: verification,
		hub:          hub,
		jwtSecret:    jwtSecret,
	}
}

// SetupRoutes sets up HTTP routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	router.Use(gin.Recovery())
	router.Use(prometheusMiddleware())
	router.Use(gin.Logger())

	router.GET("/health", h.healthCheck)
	router.GET("/ready", h.readinessCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authed := router.Group("/", authMiddleware(h.jwtSecret))
	authed.GET("/ws", h.serveWS)

	v1 := authed.Group("/api/v1")
	{
		v1.POST("/orders", h.checkout)
		v1.GET("/orders", h.listOrders)
		v1.GET("/orders/:id", h.getOrder)
		v1.POST("/orders/:id/confirm", h.confirmOrder)
		v1.POST("/orders/:id/confirm-pickup", h.confirmPickup)
		v1.POST("/orders/:id/reject", h.rejectOrder)
		v1.POST("/orders/:id/cancel", h.cancelOrder)
		v1.POST("/orders/:id/status", h.updateStatus)
		v1.POST("/orders/:id/verify", h.submitVerificationCode)
	}
}

func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().Unix(),
	})
}

func (h *Handler) readinessCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ready",
		"time":   time.Now().Unix(),
	})
}

// checkout handles order creation
func (h *Handler) checkout(c *gin.Context) {
	var req service.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request body",
			"details": err.Error(),
		})
		return
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = c.GetHeader("Idempotency-Key")
	}

	resp, err := h.orders.Checkout(c.Request.Context(), getCaller(c), &req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

func (h *Handler) listOrders(c *gin.Context) {
	orders, err := h.orders.ListOrders(c.Request.Context(), getCaller(c), c.Query("role"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": orders})
}

func (h *Handler) getOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	caller := getCaller(c)
	order, items, err := h.orders.GetOrder(c.Request.Context(), caller, orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderResponse(caller, order, items))
}

// orderResponse shapes the order detail payload. The delivery code is the
// buyer's secret: only they may read it, and only while it is still live.
func orderResponse(caller auth.Caller, order *models.Order, items []models.OrderItem) gin.H {
	resp := gin.H{
		"order": order,
		"items": items,
	}
	if caller.UserID == order.BuyerID && order.VerificationCode != "" {
		resp["verification_code"] = order.VerificationCode
	}
	return resp
}

func (h *Handler) confirmOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	outcome, err := h.orders.ConfirmOrder(c.Request.Context(), getCaller(c), orderID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

func (h *Handler) confirmPickup(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	if err := h.orders.ConfirmPickup(c.Request.Context(), getCaller(c), orderID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.OrderStatusConfirmed})
}

func (h *Handler) rejectOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	if err := h.orders.RejectOrder(c.Request.Context(), getCaller(c), orderID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.OrderStatusRejected})
}

func (h *Handler) cancelOrder(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	if err := h.orders.CancelOrder(c.Request.Context(), getCaller(c), orderID); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": models.OrderStatusCancelled})
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) updateStatus(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	newStatus, err := models.ParseOrderStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.orders.UpdateStatus(c.Request.Context(), getCaller(c), orderID, newStatus); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": newStatus})
}

type verifyRequest struct {
	VerificationCode string `json:"verification_code" binding:"required"`
}

func (h *Handler) submitVerificationCode(c *gin.Context) {
	orderID, ok := orderIDParam(c)
	if !ok {
		return
	}

	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	err := h.verification.SubmitVerificationCode(c.Request.Context(), getCaller(c), orderID, req.VerificationCode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  models.OrderStatusCompleted,
	})
}

func (h *Handler) serveWS(c *gin.Context) {
	h.hub.ServeWS(c.Writer, c.Request, getCaller(c).UserID)
}

func orderIDParam(c *gin.Context) (int64, bool) {
	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return 0, false
	}
	return orderID, true
}

// respondError maps service errors onto HTTP statuses. Backend-reported
// verification failures keep their message verbatim.
func respondError(c *gin.Context, err error) {
	var verr *service.VerificationError

	switch {
	case errors.Is(err, store.ErrOrderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotSeller), errors.Is(err, service.ErrNotParticipant):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidTransition), errors.Is(err, service.ErrNotVerifiable):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrOrderBusy):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrCodeFormat), errors.Is(err, service.ErrInvalidOrder):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &verr):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": verr.Message, "success": false})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
