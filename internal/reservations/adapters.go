package reservations

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TxReleaser lets other services release an order's holds inside their own
// transaction.
type TxReleaser struct {
	Store *Store
}

func (r TxReleaser) ReleaseByOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error) {
	return r.Store.WithTx(tx).ReleaseByOrder(ctx, orderID)
}

// TxConsumer lets the payment service consume an order's holds inside the
// settlement transaction.
type TxConsumer struct {
	Store *Store
}

func (c TxConsumer) ConsumeByOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int64, error) {
	return c.Store.WithTx(tx).ConsumeByOrder(ctx, orderID)
}
