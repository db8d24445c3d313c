package rates

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/minalesh/marketplace-backend/pkg/db/models"
	"github.com/minalesh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
)

// Repository reads the pricing rate tables. Pricing never mutates them;
// coupon/shipping/tax administration lives outside this service.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveCoupon(ctx context.Context, code string, at time.Time) (*models.Coupon, error)
	FindShippingRate(ctx context.Context, method, zone string) (*models.ShippingRate, error)
	FindTaxRate(ctx context.Context, country string) (*models.TaxRate, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a rates repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindActiveCoupon returns the coupon for a code when it is active and inside
// its validity window. An unknown, inactive or out-of-window code is NotFound.
func (r *repository) FindActiveCoupon(ctx context.Context, code string, at time.Time) (*models.Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "coupon code required")
	}

	var coupon models.Coupon
	err := r.db.WithContext(ctx).
		Where("code = ? AND status = ? AND starts_at <= ? AND ends_at >= ?",
			code, enums.CouponStatusActive, at, at).
		First(&coupon).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "coupon not found or not active")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load coupon")
	}
	return &coupon, nil
}

func (r *repository) FindShippingRate(ctx context.Context, method, zone string) (*models.ShippingRate, error) {
	method = strings.TrimSpace(method)
	zone = strings.TrimSpace(zone)
	if method == "" || zone == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shipping method and zone required")
	}

	var rate models.ShippingRate
	err := r.db.WithContext(ctx).
		Where("method = ? AND zone = ? AND active = ?", method, zone, true).
		First(&rate).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "shipping rate not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load shipping rate")
	}
	return &rate, nil
}

// FindTaxRate returns the highest-priority active rate for a country, or nil
// when the country has no configured rate so the caller can fall back to the
// default.
func (r *repository) FindTaxRate(ctx context.Context, country string) (*models.TaxRate, error) {
	country = strings.ToUpper(strings.TrimSpace(country))
	if country == "" {
		return nil, nil
	}

	var rate models.TaxRate
	err := r.db.WithContext(ctx).
		Where("country = ? AND active = ?", country, true).
		Order("priority DESC").
		First(&rate).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load tax rate")
	}
	return &rate, nil
}
