package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/imrishuroy/bitebuddy-orders/internal/orders"
)

var statusMessages = map[orders.Status]string{
	orders.StatusPending:   "Your order has been received and is awaiting confirmation.",
	orders.StatusConfirmed: "Your order has been confirmed! We are preparing your food.",
	orders.StatusPreparing: "Your food is being prepared in our kitchen.",
	orders.StatusOnTheWay:  "Your order is on the way! Our delivery partner will arrive soon.",
	orders.StatusDelivered: "Your order has been delivered. Thank you for ordering!",
	orders.StatusCancelled: "Your order has been cancelled as requested.",
}

var funcs = template.FuncMap{
	"rupees":        func(v float64) string { return fmt.Sprintf("₹%.2f", v) },
	"lineTotal":     func(it orders.Item) float64 { return float64(it.Quantity) * it.UnitPrice },
	"statusMessage": func(s orders.Status) string { return statusMessages[s] },
	"upper":         func(s orders.Status) string { return strings.ToUpper(string(s)) },
	"when":          func(n Notification) string { return n.Order.EstimatedDelivery.Format("02 Jan 2006 15:04") },
}

const layout = `{{define "layout"}}<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<div style="background-color: #28a745; color: white; padding: 20px; text-align: center;"><h1>{{template "title" .}}</h1></div>
<div style="padding: 20px;"><p>Hi {{.Order.CustomerName}},</p>{{template "body" .}}
<p><strong>Order ID:</strong> {{.Order.OrderID}}</p></div>
<div style="background-color: #f8f9fa; padding: 20px; text-align: center;"><p style="color: #666; font-size: 12px;">This is an automated email. Please do not reply to this email.</p></div>
</div>{{end}}
{{define "items"}}<ul>{{range .Order.Items}}<li>{{.Quantity}}x {{.Name}}{{if .Size}} ({{.Size}}){{end}} - {{rupees (lineTotal .)}}</li>{{end}}</ul>{{end}}`

type emailTemplate struct {
	subject string
	tmpl    *template.Template
}

func mustTemplate(subject, title, body string) emailTemplate {
	t := template.Must(template.New("email").Funcs(funcs).Parse(layout))
	template.Must(t.New("title").Parse(title))
	template.Must(t.New("body").Parse(body))
	return emailTemplate{subject: subject, tmpl: t}
}

var templates = map[Kind]emailTemplate{
	KindOrderConfirmation: mustTemplate("Order Confirmation - %s", "Order Placed!",
		`<p>Thank you for your order! Your food will be prepared and delivered soon.</p>{{template "items" .}}
<p><strong>Total Amount:</strong> {{rupees .Order.TotalAmount}}</p><p><strong>Estimated Delivery:</strong> {{when .}}</p>
<p><strong>Delivery Address:</strong> {{.Order.DeliveryAddress}}</p>`),
	KindPaymentReceipt: mustTemplate("Order Receipt - BiteBuddy #%s", "Payment Received",
		`<p>{{.Message}}</p>{{template "items" .}}<p><strong>Total Paid:</strong> {{rupees .Order.TotalAmount}}</p>
<p><strong>Transaction:</strong> {{.Order.TransactionID}}</p><p><strong>Payment Method:</strong> {{.Order.PaymentMethod}}</p>`),
	KindStatusUpdate: mustTemplate("Order Status Update - %s", "Order Status Update",
		`<div style="background-color: #e7f3ff; padding: 15px; border-left: 4px solid #28a745;"><h3>Status: {{upper .Order.Status}}</h3>
<p>{{statusMessage .Order.Status}}</p></div>{{if .Message}}<p>{{.Message}}</p>{{end}}`),
	KindOrderCancelled: mustTemplate("Order Cancelled - %s", "Order Cancelled",
		`<p>{{statusMessage .Order.Status}}</p>{{if .Message}}<p><strong>Reason:</strong> {{.Message}}</p>{{end}}`),
	KindRefundProcessed: mustTemplate("Refund Processed - BiteBuddy Order #%s", "Refund Confirmation",
		`<p>Your refund has been processed successfully.</p><p><strong>Refund Amount:</strong> {{rupees .Amount}}</p>
<p>The refund will appear in your account within 3-5 business days.</p>`),
}

// Render returns the subject and HTML body for n.
func Render(n Notification) (string, string, error) {
	et, ok := templates[n.Kind]
	if !ok {
		return "", "", fmt.Errorf("no template for notification kind %q", n.Kind)
	}
	var buf bytes.Buffer
	if err := et.tmpl.ExecuteTemplate(&buf, "layout", n); err != nil {
		return "", "", fmt.Errorf("render %s: %w", n.Kind, err)
	}
	return fmt.Sprintf(et.subject, n.Order.OrderID), buf.String(), nil
}
