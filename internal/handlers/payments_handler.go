package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/bitebuddy-orders/internal/lifecycle"
	"github.com/imrishuroy/bitebuddy-orders/internal/validation"
	"github.com/imrishuroy/bitebuddy-orders/internal/webhook"
)

// maxWebhookBody caps the signed payload read into memory.
const maxWebhookBody = 64 << 10

type paymentsHandler struct {
	svc      OrderService
	webhooks WebhookProcessor
	v        *validatorv10.Validate
	log      *logrus.Entry
}

// RegisterPaymentsRoutes registers the payment and webhook routes.
func RegisterPaymentsRoutes(r gin.IRouter, cfg HandlerConfig) {
	h := &paymentsHandler{svc: cfg.Orders, webhooks: cfg.Webhooks, v: validation.New(), log: cfg.Log}

	g := r.Group("/payments")
	g.POST("/intent", h.createIntent)
	g.POST("/verify", h.verify)
	g.POST("/refund", h.refund)
	g.GET("/history", h.history)
	g.POST("/webhook", h.webhook)
}

func (h *paymentsHandler) createIntent(c *gin.Context) {
	var req validation.CreateIntentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	intent, err := h.svc.CreatePaymentIntent(c.Request.Context(), req.OrderID)
	if err != nil {
		writeError(c, loggerFrom(c, h.log), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clientSecret": intent.ClientSecret, "paymentIntentId": intent.ID})
}

func (h *paymentsHandler) verify(c *gin.Context) {
	var req validation.VerifyPaymentRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	res, err := h.svc.VerifyPayment(c.Request.Context(), req.OrderID, req.PaymentIntentID)
	if err != nil {
		writeError(c, loggerFrom(c, h.log), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"paymentStatus": res.Verification.Status,
		"amount":        res.Verification.Amount,
		"order":         res.Order,
	})
}

func (h *paymentsHandler) refund(c *gin.Context) {
	var req validation.RefundRequest
	if err := validation.BindAndValidate(c, &req, h.v); err != nil {
		return
	}
	res, err := h.svc.Refund(c.Request.Context(), req.OrderID, lifecycle.RefundInput{
		TransactionID: req.TransactionID,
		Amount:        req.Amount,
		Reason:        req.Reason,
	})
	if err != nil {
		writeError(c, loggerFrom(c, h.log), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"refund": res.Refund, "order": res.Order})
}

func (h *paymentsHandler) history(c *gin.Context) {
	payments, err := h.svc.PaymentHistory(c.Request.Context(), c.Query("email"))
	if err != nil {
		writeError(c, loggerFrom(c, h.log), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"payments": payments})
}

// webhook must see the raw body: the signature covers the exact bytes sent.
func (h *paymentsHandler) webhook(c *gin.Context) {
	log := loggerFrom(c, h.log)
	payload, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload_too_large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body"})
		return
	}

	ev, err := h.webhooks.Verify(payload, c.GetHeader(webhook.SignatureHeader))
	if err != nil {
		log.WithError(err).Warn("rejected webhook delivery")
		writeError(c, log, err)
		return
	}

	outcome, err := h.webhooks.Handle(c.Request.Context(), ev)
	if err != nil {
		writeError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "outcome": outcome})
}
