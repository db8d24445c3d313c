package checkout

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/minalesh/marketplace-backend/internal/catalog"
	"github.com/minalesh/marketplace-backend/internal/orders"
	"github.com/minalesh/marketplace-backend/internal/payments"
	"github.com/minalesh/marketplace-backend/internal/pricing"
	"github.com/minalesh/marketplace-backend/internal/reservations"
	"github.com/minalesh/marketplace-backend/pkg/db/models"
	"github.com/minalesh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
	"github.com/minalesh/marketplace-backend/pkg/logger"
	"github.com/minalesh/marketplace-backend/pkg/saga"
	"github.com/minalesh/marketplace-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CartItemInput is one requested line of a checkout.
type CartItemInput struct {
	ProductID uuid.UUID
	VariantID *uuid.UUID
	Quantity  int
}

// CreateIntentInput carries a full checkout request.
type CreateIntentInput struct {
	UserID          uuid.UUID
	Items           []CartItemInput
	CouponCode      string
	ShippingMethod  string
	ShippingZone    string
	Country         string
	ShippingAddress *types.Address
	BillingAddress  *types.Address
}

// Result is handed back to the client after orchestration. ClientSecret is
// empty when the gateway call failed; the order still exists and the intent
// can be retried.
type Result struct {
	Order          *models.Order
	ReservationIDs []uuid.UUID
	IntentID       string
	ClientSecret   string
	ExpiresAt      time.Time
}

// Service turns a validated cart into a pending order with held inventory
// and, when the gateway cooperates, an external payment handle.
type Service interface {
	CreateIntent(ctx context.Context, input CreateIntentInput) (*Result, error)
}

type service struct {
	catalog  catalog.Repository
	store    *reservations.Store
	calc     pricing.Calculator
	repo     orders.Repository
	tx       txRunner
	gateway  payments.Gateway
	notifier orders.TrackingNotifier
	logg     *logger.Logger
	currency enums.Currency
}

// NewService builds the checkout orchestrator.
func NewService(
	catalogRepo catalog.Repository,
	store *reservations.Store,
	calc pricing.Calculator,
	repo orders.Repository,
	tx txRunner,
	gateway payments.Gateway,
	notifier orders.TrackingNotifier,
	logg *logger.Logger,
	currency enums.Currency,
) (Service, error) {
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if store == nil {
		return nil, fmt.Errorf("reservation store required")
	}
	if calc == nil {
		return nil, fmt.Errorf("pricing calculator required")
	}
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if gateway == nil {
		return nil, fmt.Errorf("payment gateway required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("tracking notifier required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if currency == "" {
		currency = enums.CurrencyETB
	}
	return &service{
		catalog:  catalogRepo,
		store:    store,
		calc:     calc,
		repo:     repo,
		tx:       tx,
		gateway:  gateway,
		notifier: notifier,
		logg:     logg,
		currency: currency,
	}, nil
}

// resolvedLine pairs a requested line with its catalog snapshot.
type resolvedLine struct {
	input     CartItemInput
	product   *models.Product
	variant   *models.ProductVariant
	unitPrice decimal.Decimal
}

// CreateIntent runs the checkout saga: validate, reserve, price, persist,
// then ask the gateway for a payment handle. Reservations acquired before a
// failure are released best-effort in reverse; the gateway call is the one
// step whose failure does not unwind the order.
func (s *service) CreateIntent(ctx context.Context, input CreateIntentInput) (*Result, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart is empty")
	}

	lines, err := s.resolveLines(ctx, input.Items)
	if err != nil {
		return nil, err
	}

	held, err := s.reserveLines(ctx, input.UserID, lines)
	if err != nil {
		return nil, err
	}
	reservationIDs := make([]uuid.UUID, 0, len(held))
	for _, hold := range held {
		reservationIDs = append(reservationIDs, hold.ID)
	}

	quote, err := s.quoteLines(ctx, input, lines)
	if err != nil {
		s.releaseAll(ctx, reservationIDs)
		return nil, err
	}

	order, err := s.persistOrder(ctx, input, lines, quote, reservationIDs)
	if err != nil {
		s.releaseAll(ctx, reservationIDs)
		return nil, err
	}

	result := &Result{
		Order:          order,
		ReservationIDs: reservationIDs,
		ExpiresAt:      held[0].ExpiresAt,
	}

	handle, err := s.gateway.CreateIntent(ctx, payments.CreateIntentInput{
		AmountMinor: toMinorUnits(order.TotalAmount),
		Currency:    strings.ToLower(order.Currency.String()),
		Metadata: map[string]string{
			"order_id":     order.ID.String(),
			"order_number": order.OrderNumber,
		},
	})
	if err != nil {
		// Non-fatal: the order stands, the client retries the intent later.
		s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "create payment intent", err)
	} else {
		if err := s.repo.SetGatewayIntent(ctx, order.ID, handle.IntentID); err != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, order.ID.String()), "store payment intent", err)
		} else {
			order.GatewayIntentID = &handle.IntentID
		}
		result.IntentID = handle.IntentID
		result.ClientSecret = handle.ClientSecret
	}

	s.notifier.Notify(ctx, order.ID, order.UserID, enums.TrackingStagePending)
	return result, nil
}

// resolveLines checks every product/variant exists and is sellable, and
// snapshots effective unit prices. All missing IDs are reported together.
func (s *service) resolveLines(ctx context.Context, items []CartItemInput) ([]resolvedLine, error) {
	lines := make([]resolvedLine, 0, len(items))
	missing := make([]string, 0)

	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required on every line")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "line quantity must be positive").
				WithDetails(map[string]any{"product_id": item.ProductID})
		}

		product, err := s.catalog.FindActiveProduct(ctx, item.ProductID)
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
				missing = append(missing, item.ProductID.String())
				continue
			}
			return nil, err
		}

		var variant *models.ProductVariant
		if item.VariantID != nil {
			variant, err = s.catalog.FindVariant(ctx, item.ProductID, *item.VariantID)
			if err != nil {
				if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeNotFound {
					missing = append(missing, item.VariantID.String())
					continue
				}
				return nil, err
			}
		}

		lines = append(lines, resolvedLine{
			input:     item,
			product:   product,
			variant:   variant,
			unitPrice: catalog.EffectivePrice(product, variant),
		})
	}

	if len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "some products were not found").
			WithDetails(map[string]any{"missing_ids": missing})
	}
	return lines, nil
}

// reserveLines acquires holds sequentially. On the first failure every hold
// taken in this attempt is compensated in reverse before the error returns.
func (s *service) reserveLines(ctx context.Context, userID uuid.UUID, lines []resolvedLine) ([]*models.InventoryReservation, error) {
	comp := saga.New()
	held := make([]*models.InventoryReservation, 0, len(lines))

	for _, line := range lines {
		hold, err := s.store.Reserve(ctx, reservations.ReserveInput{
			ProductID: line.input.ProductID,
			VariantID: line.input.VariantID,
			Quantity:  line.input.Quantity,
			UserID:    userID,
		})
		if err != nil {
			if compErr := comp.Compensate(ctx); compErr != nil {
				s.logg.Error(ctx, "release reservations after failed checkout", compErr)
			}
			return nil, err
		}

		id := hold.ID
		comp.Add("release reservation "+id.String(), func(ctx context.Context) error {
			return s.store.Release(ctx, id)
		})
		held = append(held, hold)
	}
	return held, nil
}

func (s *service) quoteLines(ctx context.Context, input CreateIntentInput, lines []resolvedLine) (*pricing.Quote, error) {
	items := make([]pricing.LineItem, 0, len(lines))
	for _, line := range lines {
		items = append(items, pricing.LineItem{
			ProductID: line.input.ProductID,
			VariantID: line.input.VariantID,
			UnitPrice: line.unitPrice,
			Quantity:  line.input.Quantity,
		})
	}
	return s.calc.Quote(ctx, pricing.Input{
		Items:          items,
		CouponCode:     input.CouponCode,
		ShippingMethod: input.ShippingMethod,
		ShippingZone:   input.ShippingZone,
		Country:        input.Country,
	})
}

// persistOrder writes the order, its snapshot items, the creation event and
// the reservation links in one transaction.
func (s *service) persistOrder(ctx context.Context, input CreateIntentInput, lines []resolvedLine, quote *pricing.Quote, reservationIDs []uuid.UUID) (*models.Order, error) {
	order := &models.Order{
		ID:               uuid.New(),
		UserID:           input.UserID,
		OrderNumber:      newOrderNumber(),
		Status:           enums.OrderStatusPending,
		PaymentStatus:    enums.PaymentStatusPending,
		Subtotal:         quote.Subtotal,
		DiscountAmount:   quote.Discount,
		ShippingAmount:   quote.Shipping,
		TaxAmount:        quote.Tax,
		TotalAmount:      quote.Total,
		Currency:         s.currency,
		CouponID:         quote.CouponID,
		ShippingMethodID: quote.ShippingMethodID,
		ShippingAddress:  input.ShippingAddress,
		BillingAddress:   input.BillingAddress,
	}

	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		name := line.product.Name
		sku := line.product.SKU
		if line.variant != nil {
			name = name + " / " + line.variant.Name
			sku = line.variant.SKU
		}
		items = append(items, models.OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: line.input.ProductID,
			VariantID: line.input.VariantID,
			Name:      name,
			SKU:       sku,
			UnitPrice: line.unitPrice,
			Quantity:  line.input.Quantity,
			LineTotal: line.unitPrice.Mul(decimal.NewFromInt(int64(line.input.Quantity))).Round(2),
		})
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := repo.CreateOrder(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order items")
		}
		if err := s.store.WithTx(tx).LinkOrder(ctx, reservationIDs, order.ID); err != nil {
			return err
		}

		event := &models.OrderEvent{
			ID:          uuid.New(),
			OrderID:     order.ID,
			EventType:   enums.OrderEventTypeCreated,
			Status:      enums.OrderStatusPending,
			Description: "order created",
			Metadata: map[string]any{
				"item_count":   len(items),
				"total_amount": quote.Total.StringFixed(2),
			},
			ActorUserID: &input.UserID,
		}
		if err := repo.AppendEvent(ctx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record creation event")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

// releaseAll is the compensation for failures after reservation: every hold
// from this attempt goes back, best-effort.
func (s *service) releaseAll(ctx context.Context, reservationIDs []uuid.UUID) {
	for _, id := range reservationIDs {
		if err := s.store.Release(ctx, id); err != nil {
			s.logg.Error(s.logg.WithField(ctx, "reservation_id", id.String()), "release reservation", err)
		}
	}
}

// newOrderNumber builds a human-quotable unique order number.
func newOrderNumber() string {
	buf := make([]byte, 4)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("MN-%s-%s",
		time.Now().UTC().Format("20060102"),
		strings.ToUpper(hex.EncodeToString(buf)))
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}
