package mailer

import (
	"context"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"checkout/internal/domain"
)

type Item struct {
	Title     string
	Quantity  int
	UnitPrice float64
}

type Confirmation struct {
	To      string
	Name    string
	OrderID string
	Amount  float64
	Items   []Item
}

type Mailer struct {
	host     string
	port     int
	username string
	password string
	from     string
	logger   *zap.Logger
}

func New(host string, port int, username, password, from string, logger *zap.Logger) *Mailer {
	return &Mailer{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		logger:   logger,
	}
}

var bodyTemplate = template.Must(template.New("confirmation").Funcs(template.FuncMap{
	"brl": func(v float64) string { return BRL(v) },
	"total": func(i Item) string {
		return BRL(i.UnitPrice * float64(i.Quantity))
	},
}).Parse(`<div style="font-family:sans-serif;max-width:560px;margin:0 auto;padding:16px">
  <h2 style="margin:0 0 12px 0">Pagamento confirmado</h2>
  <p style="margin:0 0 12px 0">Olá, <strong>{{.Name}}</strong>!</p>
  <p style="margin:0 0 12px 0">Recebemos o seu pagamento do pedido <strong>{{.OrderID}}</strong>.</p>
  {{if .Items}}<table style="width:100%;border-collapse:collapse;margin-top:12px">
    <thead><tr>
      <th style="text-align:left;padding:8px">Item</th>
      <th style="text-align:center;padding:8px">Qtd</th>
      <th style="text-align:right;padding:8px">Preço</th>
    </tr></thead>
    <tbody>{{range .Items}}
      <tr>
        <td style="padding:8px">{{.Title}}</td>
        <td style="padding:8px;text-align:center">{{.Quantity}}</td>
        <td style="padding:8px;text-align:right">{{total .}}</td>
      </tr>{{end}}
    </tbody>
  </table>{{end}}
  <p style="margin:12px 0 4px 0"><strong>Total:</strong> {{brl .Amount}}</p>
  <p style="margin-top:20px;color:#666;font-size:12px">Se você não reconhece esta compra, entre em contato com nosso suporte.</p>
</div>`))

// SendPaymentConfirmation sends the order confirmation email. When SMTP is
// not configured the send is skipped with a warning so local development does
// not require a mail server. Respects ctx for cancellation; smtp.SendMail
// itself has no context support.
func (m *Mailer) SendPaymentConfirmation(ctx context.Context, c Confirmation) error {
	if m.host == "" || m.from == "" {
		m.logger.Warn("SMTP not configured, skipping confirmation email",
			zap.String("to", c.To),
			zap.String("order_id", c.OrderID))
		return nil
	}

	name := c.Name
	if name == "" {
		name = "Cliente"
	}

	var body strings.Builder
	if err := bodyTemplate.Execute(&body, struct {
		Name    string
		OrderID string
		Amount  float64
		Items   []Item
	}{name, c.OrderID, c.Amount, c.Items}); err != nil {
		return &domain.NotificationError{Err: fmt.Errorf("failed to render email body: %w", err)}
	}

	subject := fmt.Sprintf("Pagamento confirmado – Pedido %s", c.OrderID)

	var msg strings.Builder
	msg.WriteString(fmt.Sprintf("From: %s\r\n", m.from))
	msg.WriteString(fmt.Sprintf("To: %s\r\n", c.To))
	msg.WriteString(fmt.Sprintf("Subject: %s\r\n", subject))
	msg.WriteString("MIME-version: 1.0\r\n")
	msg.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n")
	msg.WriteString("\r\n")
	msg.WriteString(body.String())

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	auth := smtp.PlainAuth("", m.username, m.password, m.host)

	done := make(chan error, 1)
	go func() {
		done <- smtp.SendMail(addr, auth, m.from, []string{c.To}, []byte(msg.String()))
	}()

	select {
	case err := <-done:
		if err != nil {
			return &domain.NotificationError{Err: err}
		}
	case <-ctx.Done():
		return &domain.NotificationError{Err: ctx.Err()}
	}

	m.logger.Info("Confirmation email sent",
		zap.String("to", c.To),
		zap.String("order_id", c.OrderID))
	return nil
}

// BRL formats an amount as Brazilian currency, e.g. 1234.5 -> "R$ 1.234,50".
func BRL(v float64) string {
	neg := v < 0
	if neg {
		v = -v
	}
	s := fmt.Sprintf("%.2f", v)
	intPart, decPart, _ := strings.Cut(s, ".")

	var grouped strings.Builder
	for i, d := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			grouped.WriteByte('.')
		}
		grouped.WriteRune(d)
	}

	out := "R$ " + grouped.String() + "," + decPart
	if neg {
		out = "-" + out
	}
	return out
}
