package pricing

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/minalesh/marketplace-backend/internal/rates"
	"github.com/minalesh/marketplace-backend/pkg/db/models"
	"github.com/minalesh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
)

// DefaultMaxItemQuantity caps how many units a single line item may carry.
const DefaultMaxItemQuantity = 999

// DefaultTaxRate applies when no tax rate is configured for the destination
// country. It is a business default, not an error fallback.
var DefaultTaxRate = decimal.RequireFromString("0.15")

// LineItem is one priced cart line. UnitPrice is the already-resolved
// effective price, snapshotted by the caller.
type LineItem struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	UnitPrice decimal.Decimal
	Quantity  int
}

// Input carries everything a quote needs. At defaults to now and anchors the
// coupon validity check, so replays of a stored quote stay deterministic.
type Input struct {
	Items          []LineItem
	CouponCode     string
	ShippingMethod string
	ShippingZone   string
	Country        string
	At             time.Time
}

// Quote is the computed total breakdown. Every amount is rounded to two
// decimals with half-up rounding before it feeds the next step. CouponID and
// ShippingMethodID identify the rate rows that actually applied so the order
// can record them.
type Quote struct {
	Subtotal         decimal.Decimal
	Discount         decimal.Decimal
	AppliedCoupon    string
	CouponID         *uuid.UUID
	Shipping         decimal.Decimal
	ShippingMethodID *uuid.UUID
	TaxRate          decimal.Decimal
	Tax              decimal.Decimal
	Total            decimal.Decimal
}

// Options tunes the calculator.
type Options struct {
	DefaultTaxRate  decimal.Decimal
	MaxItemQuantity int
}

// Calculator computes order totals from cart lines plus the rate tables.
type Calculator interface {
	Quote(ctx context.Context, input Input) (*Quote, error)
}

type calculator struct {
	rates          rates.Repository
	defaultTaxRate decimal.Decimal
	maxItemQty     int
}

// NewCalculator builds a pricing calculator over the rate tables.
func NewCalculator(repo rates.Repository, opts Options) (Calculator, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "rates repository is required")
	}
	taxRate := opts.DefaultTaxRate
	if taxRate.IsZero() || taxRate.IsNegative() {
		taxRate = DefaultTaxRate
	}
	maxQty := opts.MaxItemQuantity
	if maxQty <= 0 {
		maxQty = DefaultMaxItemQuantity
	}
	return &calculator{rates: repo, defaultTaxRate: taxRate, maxItemQty: maxQty}, nil
}

// Quote runs the full pricing pass: subtotal, coupon, shipping, tax, total.
// A coupon that cannot apply (unknown, out of window, below minimum purchase)
// is skipped, never an error; an unknown shipping selection is an error
// because the client chose it explicitly.
func (c *calculator) Quote(ctx context.Context, input Input) (*Quote, error) {
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}
	at := input.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	subtotal := decimal.Zero
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		if item.Quantity > c.maxItemQty {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line quantity exceeds per-item limit").
				WithDetails(map[string]any{"product_id": item.ProductID, "limit": c.maxItemQty})
		}
		if item.UnitPrice.IsNegative() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unit price cannot be negative").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}
		line := round2(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity))))
		subtotal = subtotal.Add(line)
	}
	subtotal = round2(subtotal)

	discount, coupon, err := c.couponDiscount(ctx, input.CouponCode, subtotal, at)
	if err != nil {
		return nil, err
	}

	shipping, err := c.shippingAmount(ctx, input, subtotal.Sub(discount))
	if err != nil {
		return nil, err
	}

	taxRate, err := c.taxRate(ctx, input.Country)
	if err != nil {
		return nil, err
	}
	taxable := subtotal.Sub(discount).Add(shipping.amount)
	tax := round2(taxable.Mul(taxRate))

	quote := &Quote{
		Subtotal: subtotal,
		Discount: discount,
		Shipping: shipping.amount,
		TaxRate:  taxRate,
		Tax:      tax,
		Total:    round2(taxable.Add(tax)),
	}
	if coupon != nil {
		id := coupon.ID
		quote.AppliedCoupon = coupon.Code
		quote.CouponID = &id
	}
	if shipping.rateID != uuid.Nil {
		id := shipping.rateID
		quote.ShippingMethodID = &id
	}
	return quote, nil
}

func (c *calculator) couponDiscount(ctx context.Context, code string, subtotal decimal.Decimal, at time.Time) (decimal.Decimal, *models.Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return decimal.Zero, nil, nil
	}

	coupon, err := c.rates.FindActiveCoupon(ctx, code, at)
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
			return decimal.Zero, nil, nil
		}
		return decimal.Zero, nil, err
	}
	if subtotal.LessThan(coupon.MinimumPurchase) {
		return decimal.Zero, nil, nil
	}

	var discount decimal.Decimal
	switch coupon.DiscountType {
	case enums.DiscountTypePercentage:
		discount = subtotal.Mul(coupon.DiscountValue).Div(decimal.NewFromInt(100))
		if coupon.MaximumDiscount != nil && discount.GreaterThan(*coupon.MaximumDiscount) {
			discount = *coupon.MaximumDiscount
		}
	case enums.DiscountTypeFixedAmount:
		discount = coupon.DiscountValue
		if discount.GreaterThan(subtotal) {
			discount = subtotal
		}
	default:
		return decimal.Zero, nil, pkgerrors.New(pkgerrors.CodeInternal, "unknown discount type").
			WithDetails(map[string]any{"discount_type": string(coupon.DiscountType)})
	}
	return round2(discount), coupon, nil
}

// shippingQuote carries both the charge and which rate row produced it; the
// rate ID is kept even when the free-shipping threshold zeroes the charge.
type shippingQuote struct {
	amount decimal.Decimal
	rateID uuid.UUID
}

func (c *calculator) shippingAmount(ctx context.Context, input Input, afterDiscount decimal.Decimal) (shippingQuote, error) {
	if strings.TrimSpace(input.ShippingMethod) == "" {
		return shippingQuote{amount: decimal.Zero}, nil
	}

	rate, err := c.rates.FindShippingRate(ctx, input.ShippingMethod, input.ShippingZone)
	if err != nil {
		return shippingQuote{amount: decimal.Zero}, err
	}
	if rate.FreeShippingThreshold != nil && afterDiscount.GreaterThanOrEqual(*rate.FreeShippingThreshold) {
		return shippingQuote{amount: decimal.Zero, rateID: rate.ID}, nil
	}
	return shippingQuote{amount: round2(rate.Amount), rateID: rate.ID}, nil
}

func (c *calculator) taxRate(ctx context.Context, country string) (decimal.Decimal, error) {
	rate, err := c.rates.FindTaxRate(ctx, country)
	if err != nil {
		return decimal.Zero, err
	}
	if rate == nil {
		return c.defaultTaxRate, nil
	}
	return rate.Rate, nil
}

// round2 rounds half away from zero to two decimals; amounts here are never
// negative, so this is round-half-up.
func round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
