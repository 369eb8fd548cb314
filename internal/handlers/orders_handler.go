package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/bitebuddy-orders/internal/lifecycle"
	"github.com/imrishuroy/bitebuddy-orders/internal/orders"
	"github.com/imrishuroy/bitebuddy-orders/internal/payment"
	"github.com/imrishuroy/bitebuddy-orders/internal/validation"
	"github.com/imrishuroy/bitebuddy-orders/internal/webhook"
)

// IdempotencyHeader optionally deduplicates POST /orders.
const IdempotencyHeader = "Idempotency-Key"

// OrderService is the lifecycle surface the routes expose.
type OrderService interface {
	CreateOrder(ctx context.Context, in lifecycle.CreateOrderInput, idempotencyKey string) (*orders.Order, bool, error)
	GetOrder(ctx context.Context, orderID string) (*orders.Order, error)
	ListOrders(ctx context.Context, email string) (*lifecycle.OrderList, error)
	UpdateStatus(ctx context.Context, orderID string, in lifecycle.UpdateStatusInput) (*orders.Order, error)
	RecordPayment(ctx context.Context, orderID, transactionID string, status orders.PaymentStatus) (*orders.Order, error)
	CancelOrder(ctx context.Context, orderID, reason string) (*orders.Order, error)
	CreatePaymentIntent(ctx context.Context, orderID string) (*payment.Intent, error)
	VerifyPayment(ctx context.Context, orderID, intentID string) (*lifecycle.VerifyResult, error)
	Refund(ctx context.Context, orderID string, in lifecycle.RefundInput) (*lifecycle.RefundResult, error)
	PaymentHistory(ctx context.Context, email string) ([]payment.IntentSummary, error)
}

// WebhookProcessor verifies and applies processor callbacks.
type WebhookProcessor interface {
	Verify(payload []byte, header string) (*webhook.Event, error)
	Handle(ctx context.Context, ev *webhook.Event) (webhook.Outcome, error)
}

// HandlerConfig groups dependencies for the route handlers.
type HandlerConfig struct {
	Orders   OrderService
	Webhooks WebhookProcessor
	Log      *logrus.Entry
}

type ordersHandler struct {
	svc OrderService
	v   *validatorv10.Validate
	log *logrus.Entry
}

// RegisterOrdersRoutes registers routes for order API.
func RegisterOrdersRoutes(r gin.IRouter, cfg HandlerConfig) {
	h := &ordersHandler{svc: cfg.Orders, v: validation.New(), log: cfg.Log}

	g := r.Group("/orders")
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:orderId", h.get)
	g.PUT("/:orderId/status", h.updateStatus)
	g.PUT("/:orderId/payment", h.markPayment)
	g.PUT("/:orderId/cancel", h.cancel)
}

func (h *ordersHandler) create(c *gin.Context) {
	var req validation.CreateOrderRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		// BindAndValidate already wrote a 400
		return
	}

	items := make([]orders.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, orders.Item{
			ItemID:    it.ItemID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Size:      it.Size,
			UnitPrice: it.UnitPrice,
		})
	}
	in := lifecycle.CreateOrderInput{
		CustomerEmail:   req.CustomerEmail,
		CustomerName:    req.CustomerName,
		CustomerPhone:   req.CustomerPhone,
		DeliveryAddress: req.DeliveryAddress,
		Items:           items,
		TotalAmount:     req.TotalAmount,
		PaymentMethod:   orders.PaymentMethod(req.PaymentMethod),
		Notes:           req.Notes,
	}

	key := strings.TrimSpace(c.GetHeader(IdempotencyHeader))
	order, replayed, err := h.svc.CreateOrder(c.Request.Context(), in, key)
	if err != nil {
		writeError(c, loggerFrom(c, h.log), err)
		return
	}

	c.Header("Location", fmt.Sprintf("/orders/%s", order.OrderID))
	if replayed {
		c.Header("Idempotent-Replayed", "true")
		c.JSON(http.StatusOK, gin.H{"order": order})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"order": order})
}

func (h *ordersHandler) get(c *gin.Context) {
	order, err := h.svc.GetOrder(c.Request.Context(), c.Param("orderId"))
	if err != nil {
		writeError(c, loggerFrom(c, h.log), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *ordersHandler) list(c *gin.Context) {
	list, err := h.svc.ListOrders(c.Request.Context(), c.Query("email"))
	if err != nil {
		writeError(c, loggerFrom(c, h.log), err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ordersHandler) updateStatus(c *gin.Context) {
	var req validation.UpdateStatusRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	order, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("orderId"), lifecycle.UpdateStatusInput{
		Status:        orders.Status(req.Status),
		TransactionID: req.TransactionID,
		Message:       req.Message,
	})
	if err != nil {
		writeError(c, loggerFrom(c, h.log), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *ordersHandler) markPayment(c *gin.Context) {
	var req validation.MarkPaymentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	order, err := h.svc.RecordPayment(c.Request.Context(), c.Param("orderId"), req.TransactionID, orders.PaymentStatus(req.PaymentStatus))
	if err != nil {
		writeError(c, loggerFrom(c, h.log), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}

func (h *ordersHandler) cancel(c *gin.Context) {
	var req validation.CancelRequest
	if err := validation.BindOptionalAndValidate(c, &req, h.v); err != nil {
		return
	}
	order, err := h.svc.CancelOrder(c.Request.Context(), c.Param("orderId"), req.Reason)
	if err != nil {
		writeError(c, loggerFrom(c, h.log), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": order})
}
