package payments

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/paymentintent"

	pkgstripe "github.com/minalesh/marketplace-backend/pkg/stripe"
)

type stripeGateway struct {
	settlementCurrency string
}

// NewStripeGateway wraps the package-level Stripe bindings behind the
// Gateway interface so services stay testable. Intents are created with
// manual capture; settlement happens through Capture, not at authorization.
func NewStripeGateway(api *pkgstripe.Client) Gateway {
	if api == nil {
		return nil
	}
	return &stripeGateway{settlementCurrency: api.SettlementCurrency()}
}

// CreateIntent charges in the configured settlement currency; Stripe cannot
// settle every order currency, so the order's own currency rides along as
// metadata when the two differ.
func (g *stripeGateway) CreateIntent(ctx context.Context, input CreateIntentInput) (*IntentHandle, error) {
	currency := g.intentCurrency(input.Currency)
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(input.AmountMinor),
		Currency:      stripe.String(currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	for key, value := range input.Metadata {
		params.AddMetadata(key, value)
	}
	if input.Currency != "" && input.Currency != currency {
		params.AddMetadata("order_currency", input.Currency)
	}

	intent, err := paymentintent.New(params)
	if err != nil {
		return nil, err
	}
	return &IntentHandle{IntentID: intent.ID, ClientSecret: intent.ClientSecret}, nil
}

// intentCurrency picks the currency an intent is created in: the configured
// settlement currency when one is set, the order's own currency otherwise.
func (g *stripeGateway) intentCurrency(orderCurrency string) string {
	if g.settlementCurrency != "" {
		return g.settlementCurrency
	}
	return orderCurrency
}

func (g *stripeGateway) Capture(ctx context.Context, input CaptureInput) (*CaptureResult, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if input.AmountMinor != nil {
		params.AmountToCapture = stripe.Int64(*input.AmountMinor)
	}
	if !input.Final {
		params.FinalCapture = stripe.Bool(false)
	}

	intent, err := paymentintent.Capture(input.IntentID, params)
	if err != nil {
		return nil, err
	}
	return &CaptureResult{
		CapturedMinor: intent.AmountReceived,
		Status:        string(intent.Status),
	}, nil
}
