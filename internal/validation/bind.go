package validation

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	validatorv10 "github.com/go-playground/validator/v10"
)

// BindAndValidate binds JSON body into `out` and runs validation.
// If validation fails, it writes a 400 response and returns an error for the handler to short-circuit.
func BindAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := c.ShouldBindJSON(out); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "invalid_request_body",
			"msg":   err.Error(),
		})
		return err
	}
	return validate(c, out, v)
}

// BindOptionalAndValidate is BindAndValidate for endpoints whose body may be
// omitted entirely. An empty body leaves `out` at its zero value.
func BindOptionalAndValidate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(out); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "invalid_request_body",
				"msg":   err.Error(),
			})
			return err
		}
	}
	return validate(c, out, v)
}

func validate(c *gin.Context, out interface{}, v *validatorv10.Validate) error {
	if err := v.Struct(out); err != nil {
		// return structured validation errors
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "validation_failed",
			"fields": validationErrorsToMap(err),
		})
		return err
	}
	return nil
}

func validationErrorsToMap(err error) map[string]string {
	out := map[string]string{}
	var ve validatorv10.ValidationErrors
	if !errors.As(err, &ve) {
		out["error"] = err.Error()
		return out
	}
	for _, fe := range ve {
		out[fieldPath(fe)] = describe(fe)
	}
	return out
}

// fieldPath drops the root struct name: CreateOrderRequest.items[0].quantity -> items[0].quantity
func fieldPath(fe validatorv10.FieldError) string {
	ns := fe.Namespace()
	for i := 0; i < len(ns); i++ {
		if ns[i] == '.' {
			return ns[i+1:]
		}
	}
	return ns
}

func describe(fe validatorv10.FieldError) string {
	switch fe.Tag() {
	case "required", "notblank":
		return "is required"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param() + " characters"
	case "gt":
		return "must be greater than " + fe.Param()
	case "gte":
		return "must not be negative"
	case "email":
		return "must be a valid email address"
	case "order_status":
		return fmt.Sprintf("unknown order status %q", fe.Value())
	case "payment_status":
		return fmt.Sprintf("unknown payment status %q", fe.Value())
	case "payment_method":
		return fmt.Sprintf("unknown payment method %q", fe.Value())
	case "total_covers_items":
		return "must be at least the item subtotal " + fe.Param()
	default:
		return fe.Error()
	}
}
