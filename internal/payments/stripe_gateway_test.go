package payments

import (
	"context"
	"testing"

	"github.com/minalesh/marketplace-backend/pkg/config"
	pkgstripe "github.com/minalesh/marketplace-backend/pkg/stripe"
)

func TestStripeGatewayChargesSettlementCurrency(t *testing.T) {
	t.Parallel()

	client, err := pkgstripe.NewClient(context.Background(), config.StripeConfig{
		APIKey:             "sk_test_gateway",
		SettlementCurrency: "USD",
	}, nil)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	gw, ok := NewStripeGateway(client).(*stripeGateway)
	if !ok {
		t.Fatalf("expected stripe gateway, got %T", NewStripeGateway(client))
	}
	if got := gw.intentCurrency("etb"); got != "usd" {
		t.Fatalf("expected configured settlement currency, got %q", got)
	}
}

func TestStripeGatewayFallsBackToOrderCurrency(t *testing.T) {
	t.Parallel()

	gw := &stripeGateway{}
	if got := gw.intentCurrency("etb"); got != "etb" {
		t.Fatalf("expected order currency fallback, got %q", got)
	}
}
