package email

import (
	"bytes"
	"html/template"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// OrderItem is one line of an order e-mail.
type OrderItem struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
	Size     string
	Color    string
}

func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is what the order templates render.
type Order struct {
	CustomOrderID int
	Name          string
	Items         []OrderItem
	Subtotal      decimal.Decimal
	CouponCode    string
	Discount      decimal.Decimal
	Total         decimal.Decimal
	PaymentMethod string
}

// TicketReply is what the ticket reply template renders.
type TicketReply struct {
	TicketID string
	Subject  string
	Message  string
}

var templates = template.Must(template.New("email").Funcs(template.FuncMap{
	"money": formatMoney,
}).Parse(`
{{define "layout-start"}}<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
{{end}}

{{define "layout-end"}}
		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">
		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This is an automated message. If you have any questions, open a support ticket from your account.
		</p>
	</div>
</body>
</html>{{end}}

{{define "items"}}
		<table style="width: 100%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left; font-weight: 600;">Item</th>
					<th style="padding: 12px; text-align: center; font-weight: 600;">Qty</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Price</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Total</th>
				</tr>
			</thead>
			<tbody>
			{{range .Items}}
				<tr>
					<td style="padding: 12px; border-bottom: 1px solid #eee;">{{.Name}}{{if .Size}} / {{.Size}}{{end}}{{if .Color}} / {{.Color}}{{end}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">{{.Quantity}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">{{money .Price}}</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">{{money .LineTotal}}</td>
				</tr>
			{{end}}
			</tbody>
		</table>
{{end}}

{{define "order-placed"}}{{template "layout-start"}}
	<div style="background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Thank you for your order</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">Hi {{.Name}}, we have received your order.</p>

		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order number</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">{{.CustomOrderID}}</p>
		</div>

		<h2 style="font-size: 18px; border-bottom: 2px solid #667eea; padding-bottom: 10px;">Order summary</h2>
		{{template "items" .}}

		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">
			<p style="margin: 0; font-size: 14px; color: #666;">Subtotal {{money .Subtotal}}</p>
			{{if .CouponCode}}<p style="margin: 0; font-size: 14px; color: #666;">Coupon {{.CouponCode}} &minus;{{money .Discount}}</p>{{end}}
			<span style="font-size: 14px; color: #666;">Total</span>
			<span style="font-size: 24px; font-weight: bold; color: #667eea; margin-left: 10px;">{{money .Total}}</span>
		</div>
{{template "layout-end"}}{{end}}

{{define "order-cancelled"}}{{template "layout-start"}}
	<div style="background: #6c757d; padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">Your order was cancelled</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0;">Hi {{.Name}}, order <strong>{{.CustomOrderID}}</strong> has been cancelled.</p>
		{{template "items" .}}
		<p>If you already paid, the refund of {{money .Total}} is handled with your payment method.</p>
{{template "layout-end"}}{{end}}

{{define "ticket-reply"}}{{template "layout-start"}}
	<div style="background: linear-gradient(135deg, #667eea 0%, #764ba2 100%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">New reply on your ticket</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<p style="margin-top: 0; font-size: 14px; color: #666;">{{.Subject}}</p>
		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 20px 0; white-space: pre-wrap;">{{.Message}}</div>
		<p style="font-size: 12px; color: #999;">Ticket {{.TicketID}}</p>
{{template "layout-end"}}{{end}}
`))

func render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", errors.Wrapf(err, "render %s", name)
	}
	return buf.String(), nil
}

// BuildOrderConfirmationBody renders the order confirmation e-mail.
func BuildOrderConfirmationBody(o Order) (string, error) { return render("order-placed", o) }

// BuildOrderCancelledBody renders the cancellation notice.
func BuildOrderCancelledBody(o Order) (string, error) { return render("order-cancelled", o) }

// BuildTicketReplyBody renders the notice sent when an admin answers a
// ticket.
func BuildTicketReplyBody(r TicketReply) (string, error) { return render("ticket-reply", r) }

// formatMoney formats an amount with two decimals and comma separators.
func formatMoney(d decimal.Decimal) string {
	str := d.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(str, ".")
	sign := ""
	if d.IsNegative() {
		sign = "-"
	}
	if len(intPart) <= 3 {
		return sign + "$" + intPart + "." + frac
	}

	var result strings.Builder
	remainder := len(intPart) % 3
	if remainder > 0 {
		result.WriteString(intPart[:remainder])
		result.WriteString(",")
	}

	for i := remainder; i < len(intPart); i += 3 {
		result.WriteString(intPart[i : i+3])
		if i+3 < len(intPart) {
			result.WriteString(",")
		}
	}

	return sign + "$" + result.String() + "." + frac
}
