package validation

import (
	"fmt"
	"math"
	"reflect"
	"strings"

	validatorv10 "github.com/go-playground/validator/v10"

	"github.com/imrishuroy/bitebuddy-orders/internal/orders"
)

// New returns a configured validator with the order vocabulary and
// struct-level validation registered.
func New() *validatorv10.Validate {
	v := validatorv10.New()

	// report json field names instead of Go ones
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	mustRegister(v, "order_status", func(fl validatorv10.FieldLevel) bool {
		_, err := orders.ParseStatus(fl.Field().String())
		return err == nil
	})
	mustRegister(v, "payment_status", func(fl validatorv10.FieldLevel) bool {
		_, err := orders.ParsePaymentStatus(fl.Field().String())
		return err == nil
	})
	mustRegister(v, "payment_method", func(fl validatorv10.FieldLevel) bool {
		switch orders.PaymentMethod(fl.Field().String()) {
		case orders.MethodCard, orders.MethodUPI, orders.MethodWallet, orders.MethodCash:
			return true
		}
		return false
	})
	mustRegister(v, "notblank", func(fl validatorv10.FieldLevel) bool {
		return strings.TrimSpace(fl.Field().String()) != ""
	})

	// totals may add tax and delivery on top of the items, never less
	v.RegisterStructValidation(createOrderStructValidation, CreateOrderRequest{})

	return v
}

func mustRegister(v *validatorv10.Validate, tag string, fn validatorv10.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("register %s: %v", tag, err))
	}
}

// createOrderStructValidation verifies totalAmount covers the item subtotal (in cents)
func createOrderStructValidation(sl validatorv10.StructLevel) {
	req := sl.Current().Interface().(CreateOrderRequest)

	var sum float64
	for _, it := range req.Items {
		sum += float64(it.Quantity) * it.UnitPrice
	}

	sumCents := int64(math.Round(sum * 100))
	totalCents := int64(math.Round(req.TotalAmount * 100))
	if totalCents < sumCents {
		sl.ReportError(req.TotalAmount, "totalAmount", "TotalAmount", "total_covers_items", fmt.Sprintf("%.2f", sum))
	}
}
