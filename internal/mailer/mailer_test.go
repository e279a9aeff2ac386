package mailer

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBRL(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{0, "R$ 0,00"},
		{2, "R$ 2,00"},
		{2.5, "R$ 2,50"},
		{1234.56, "R$ 1.234,56"},
		{1234567.8, "R$ 1.234.567,80"},
		{-10, "-R$ 10,00"},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, BRL(tt.in))
	}
}

func TestSendSkippedWhenUnconfigured(t *testing.T) {
	m := New("", 0, "", "", "", zap.NewNop())
	err := m.SendPaymentConfirmation(context.Background(), Confirmation{
		To:      "a@b.com",
		OrderID: "order_1",
		Amount:  2.00,
	})
	require.NoError(t, err)
}

func TestBodyTemplateRenders(t *testing.T) {
	var out = struct {
		Name    string
		OrderID string
		Amount  float64
		Items   []Item
	}{"João Silva", "order_1", 51.0, []Item{{Title: "Produto Digital", Quantity: 2, UnitPrice: 25.5}}}

	var sb strings.Builder
	require.NoError(t, bodyTemplate.Execute(&sb, out))
	body := sb.String()
	require.Contains(t, body, "João Silva")
	require.Contains(t, body, "order_1")
	require.Contains(t, body, "Produto Digital")
	// item total 2 × 25,50 and the order total are both R$ 51,00
	require.Contains(t, body, "R$ 51,00")
}
