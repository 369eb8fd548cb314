package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/imrishuroy/bitebuddy-orders/internal/lifecycle"
	"github.com/imrishuroy/bitebuddy-orders/internal/payment"
	"github.com/imrishuroy/bitebuddy-orders/internal/webhook"
)

// writeError maps domain errors onto HTTP responses.
func writeError(c *gin.Context, log *logrus.Entry, err error) {
	var (
		ve *lifecycle.ValidationError
		nf *lifecycle.NotFoundError
		ge *payment.GatewayError
		se *webhook.SignatureError
	)
	switch {
	case errors.As(err, &ve):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": map[string]string{ve.Field: ve.Reason},
		})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found", "orderId": nf.OrderID})
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		body := gin.H{"error": "invalid_transition", "message": err.Error()}
		if current, ok := lifecycle.CurrentStatus(err); ok {
			body["currentStatus"] = current
		}
		c.JSON(http.StatusConflict, body)
	case errors.Is(err, lifecycle.ErrConcurrentUpdate):
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent_update", "message": "order is being modified, retry"})
	case errors.As(err, &ge):
		log.WithError(err).WithField("code", ge.Code).Warn("payment gateway error")
		c.JSON(http.StatusBadGateway, gin.H{"error": "payment_gateway_error", "code": ge.Code, "message": ge.Error()})
	case errors.As(err, &se):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature"})
	default:
		log.WithError(err).Error("request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}
