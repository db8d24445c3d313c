package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/minalesh/marketplace-backend/pkg/db/models"
	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
)

// Repository is the catalog read-side used by checkout to snapshot product
// identity and price.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActiveProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	FindVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindActiveProduct(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}

	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND active = ?", productID, true).
		First(&product).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found or inactive")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return &product, nil
}

func (r *repository) FindVariant(ctx context.Context, productID, variantID uuid.UUID) (*models.ProductVariant, error) {
	if productID == uuid.Nil || variantID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product and variant ids required")
	}

	var variant models.ProductVariant
	err := r.db.WithContext(ctx).
		Where("id = ? AND product_id = ?", variantID, productID).
		First(&variant).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product variant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load variant")
	}
	return &variant, nil
}

// EffectivePrice resolves the unit price for a product or one of its
// variants: the variant price wins when set, then the sale price, then the
// list price.
func EffectivePrice(product *models.Product, variant *models.ProductVariant) decimal.Decimal {
	if variant != nil && variant.Price != nil {
		return *variant.Price
	}
	if product.SalePrice != nil && product.SalePrice.LessThan(product.Price) {
		return *product.SalePrice
	}
	return product.Price
}
