package reservations

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/minalesh/marketplace-backend/pkg/db/models"
	"github.com/minalesh/marketplace-backend/pkg/enums"
	pkgerrors "github.com/minalesh/marketplace-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:reservations_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.InventoryItem{}, &models.InventoryReservation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedItem(t *testing.T, db *gorm.DB, productID uuid.UUID, qty int) {
	t.Helper()
	if err := db.Create(&models.InventoryItem{ID: uuid.New(), ProductID: productID, StockQty: qty}).Error; err != nil {
		t.Fatalf("seed inventory: %v", err)
	}
}

func TestReserveGuardsAvailability(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	store := NewStore(db, DefaultHoldWindow)
	ctx := context.Background()
	product := uuid.New()
	user := uuid.New()
	seedItem(t, db, product, 5)

	first, err := store.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 3, UserID: user})
	if err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if first.Status != enums.ReservationStatusHeld {
		t.Fatalf("expected held status, got %s", first.Status)
	}

	_, err = store.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 4, UserID: user})
	typed := pkgerrors.As(err)
	if typed == nil || typed.Code() != pkgerrors.CodeConflict {
		t.Fatalf("expected insufficient stock conflict, got %v", err)
	}
	details, ok := typed.Details().(map[string]any)
	if !ok {
		t.Fatalf("expected availability details, got %#v", typed.Details())
	}
	if details["available"] != 2 || details["requested"] != 4 {
		t.Fatalf("unexpected availability details: %#v", details)
	}

	if _, err := store.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 2, UserID: user}); err != nil {
		t.Fatalf("reserve remaining stock: %v", err)
	}

	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", product).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if item.StockQty != 5 {
		t.Fatalf("reserve must not touch on-hand stock, got %d", item.StockQty)
	}
	if item.Version != 2 {
		t.Fatalf("expected version bumped per successful reserve, got %d", item.Version)
	}
}

func TestConcurrentReservesSellLastUnitOnce(t *testing.T) {
	t.Parallel()

	// File-backed DB with immediate transactions so concurrent writers queue
	// instead of failing with a busy error.
	dsn := "file:" + filepath.Join(t.TempDir(), "reservations.db") + "?_busy_timeout=5000&_txlock=immediate"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(&models.InventoryItem{}, &models.InventoryReservation{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := NewStore(db, DefaultHoldWindow)
	product := uuid.New()
	seedItem(t, db, product, 1)

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Reserve(context.Background(), ReserveInput{ProductID: product, Quantity: 1, UserID: uuid.New()})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var wins, conflicts int
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeConflict {
			t.Fatalf("unexpected reserve error: %v", err)
		}
		conflicts++
	}
	if wins != 1 {
		t.Fatalf("expected exactly one winning reserve, got %d", wins)
	}
	if conflicts != workers-1 {
		t.Fatalf("expected %d conflicts, got %d", workers-1, conflicts)
	}

	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", product).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if item.StockQty != 1 || item.ReservedQty != 1 {
		t.Fatalf("expected stock 1 / reserved 1, got %d / %d", item.StockQty, item.ReservedQty)
	}
}

func TestHoldCounterTracksLifecycle(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	store := NewStore(db, DefaultHoldWindow)
	ctx := context.Background()
	product := uuid.New()
	seedItem(t, db, product, 5)

	loadItem := func() models.InventoryItem {
		t.Helper()
		var item models.InventoryItem
		if err := db.First(&item, "product_id = ?", product).Error; err != nil {
			t.Fatalf("load item: %v", err)
		}
		return item
	}

	first, err := store.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 2, UserID: uuid.New()})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if item := loadItem(); item.ReservedQty != 2 {
		t.Fatalf("expected reserved 2 after hold, got %d", item.ReservedQty)
	}

	if err := store.Release(ctx, first.ID); err != nil {
		t.Fatalf("release: %v", err)
	}
	if item := loadItem(); item.ReservedQty != 0 {
		t.Fatalf("expected reserved 0 after release, got %d", item.ReservedQty)
	}

	second, err := store.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 3, UserID: uuid.New()})
	if err != nil {
		t.Fatalf("second reserve: %v", err)
	}
	if err := store.Consume(ctx, second.ID, uuid.New()); err != nil {
		t.Fatalf("consume: %v", err)
	}
	item := loadItem()
	if item.StockQty != 2 || item.ReservedQty != 0 {
		t.Fatalf("expected stock 2 / reserved 0 after consume, got %d / %d", item.StockQty, item.ReservedQty)
	}
}

func TestSweepReturnsHeldQuantityToCounter(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	product := uuid.New()
	seedItem(t, db, product, 3)

	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	early := NewStore(db, DefaultHoldWindow).WithClock(func() time.Time { return base })
	if _, err := early.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 3, UserID: uuid.New()}); err != nil {
		t.Fatalf("reserve: %v", err)
	}

	sweeper := early.WithClock(func() time.Time { return base.Add(16 * time.Minute) })
	if _, err := sweeper.SweepExpired(ctx); err != nil {
		t.Fatalf("sweep: %v", err)
	}

	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", product).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if item.ReservedQty != 0 {
		t.Fatalf("expected reserved 0 after sweep, got %d", item.ReservedQty)
	}
}

func TestReserveUnknownItem(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	store := NewStore(db, DefaultHoldWindow)

	_, err := store.Reserve(context.Background(), ReserveInput{ProductID: uuid.New(), Quantity: 1, UserID: uuid.New()})
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestReserveValidation(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	store := NewStore(db, DefaultHoldWindow)
	ctx := context.Background()

	cases := []ReserveInput{
		{ProductID: uuid.New(), Quantity: 0, UserID: uuid.New()},
		{ProductID: uuid.New(), Quantity: -2, UserID: uuid.New()},
		{Quantity: 1, UserID: uuid.New()},
		{ProductID: uuid.New(), Quantity: 1},
	}
	for _, input := range cases {
		if _, err := store.Reserve(ctx, input); err == nil {
			t.Fatalf("expected validation error for %+v", input)
		} else if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("unexpected error for %+v: %v", input, err)
		}
	}
}

func TestExpiredHoldStopsBlockingStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	product := uuid.New()
	seedItem(t, db, product, 1)

	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	past := NewStore(db, DefaultHoldWindow).WithClock(func() time.Time { return base })

	if _, err := past.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 1, UserID: uuid.New()}); err != nil {
		t.Fatalf("first reserve: %v", err)
	}
	if _, err := past.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 1, UserID: uuid.New()}); err == nil {
		t.Fatal("expected second reserve to fail while hold is live")
	}

	// Same store, sixteen minutes later: the unswept hold no longer counts.
	later := past.WithClock(func() time.Time { return base.Add(16 * time.Minute) })
	if _, err := later.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 1, UserID: uuid.New()}); err != nil {
		t.Fatalf("reserve after expiry: %v", err)
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	store := NewStore(db, DefaultHoldWindow)
	ctx := context.Background()
	product := uuid.New()
	seedItem(t, db, product, 2)

	hold, err := store.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 2, UserID: uuid.New()})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := store.Release(ctx, hold.ID); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if err := store.Release(ctx, hold.ID); err != nil {
		t.Fatalf("second release should be a no-op: %v", err)
	}

	// Released stock is reservable again.
	if _, err := store.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 2, UserID: uuid.New()}); err != nil {
		t.Fatalf("reserve after release: %v", err)
	}

	if err := store.Release(ctx, uuid.New()); err == nil {
		t.Fatal("expected not found for unknown reservation")
	}
}

func TestConsumeByOrderDecrementsStock(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	store := NewStore(db, DefaultHoldWindow)
	ctx := context.Background()
	product := uuid.New()
	orderID := uuid.New()
	seedItem(t, db, product, 5)

	hold, err := store.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 3, UserID: uuid.New()})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.LinkOrder(ctx, []uuid.UUID{hold.ID}, orderID); err != nil {
		t.Fatalf("link order: %v", err)
	}

	consumed, err := store.ConsumeByOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if consumed != 1 {
		t.Fatalf("expected 1 consumed, got %d", consumed)
	}

	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", product).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if item.StockQty != 2 {
		t.Fatalf("expected stock 2 after consume, got %d", item.StockQty)
	}

	var res models.InventoryReservation
	if err := db.First(&res, "id = ?", hold.ID).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if res.Status != enums.ReservationStatusConsumed {
		t.Fatalf("expected consumed status, got %s", res.Status)
	}

	// Releasing a consumed hold is a no-op and does not restore stock.
	if err := store.Release(ctx, hold.ID); err != nil {
		t.Fatalf("release on consumed hold should be a no-op: %v", err)
	}
	var after models.InventoryItem
	if err := db.First(&after, "product_id = ?", product).Error; err != nil {
		t.Fatalf("reload item: %v", err)
	}
	if after.StockQty != 2 {
		t.Fatalf("release on consumed hold must not restore stock, got %d", after.StockQty)
	}

	// Idempotent: nothing left to consume.
	consumed, err = store.ConsumeByOrder(ctx, orderID)
	if err != nil {
		t.Fatalf("second consume: %v", err)
	}
	if consumed != 0 {
		t.Fatalf("expected 0 consumed on replay, got %d", consumed)
	}
}

func TestConsumeSingleHold(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	store := NewStore(db, DefaultHoldWindow)
	ctx := context.Background()
	product := uuid.New()
	orderID := uuid.New()
	seedItem(t, db, product, 4)

	hold, err := store.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 3, UserID: uuid.New()})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}

	if err := store.Consume(ctx, hold.ID, orderID); err != nil {
		t.Fatalf("consume: %v", err)
	}

	var res models.InventoryReservation
	if err := db.First(&res, "id = ?", hold.ID).Error; err != nil {
		t.Fatalf("load reservation: %v", err)
	}
	if res.Status != enums.ReservationStatusConsumed {
		t.Fatalf("expected consumed, got %s", res.Status)
	}
	if res.OrderID == nil || *res.OrderID != orderID {
		t.Fatalf("expected hold linked to order, got %v", res.OrderID)
	}

	var item models.InventoryItem
	if err := db.First(&item, "product_id = ?", product).Error; err != nil {
		t.Fatalf("load item: %v", err)
	}
	if item.StockQty != 1 {
		t.Fatalf("expected stock 1 after consume, got %d", item.StockQty)
	}
}

func TestConsumeRejectsNonHeldHold(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	store := NewStore(db, DefaultHoldWindow)
	ctx := context.Background()
	product := uuid.New()
	seedItem(t, db, product, 2)

	hold, err := store.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 1, UserID: uuid.New()})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Release(ctx, hold.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	err = store.Consume(ctx, hold.ID, uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}

	err = store.Consume(ctx, uuid.New(), uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLinkOrderRejectsNonHeldReservations(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	store := NewStore(db, DefaultHoldWindow)
	ctx := context.Background()
	product := uuid.New()
	seedItem(t, db, product, 2)

	hold, err := store.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 1, UserID: uuid.New()})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	if err := store.Release(ctx, hold.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	err = store.LinkOrder(ctx, []uuid.UUID{hold.ID}, uuid.New())
	if typed := pkgerrors.As(err); typed == nil || typed.Code() != pkgerrors.CodeStateConflict {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestSweepExpiredReapsOnlyLapsedHolds(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	ctx := context.Background()
	product := uuid.New()
	seedItem(t, db, product, 10)

	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	early := NewStore(db, DefaultHoldWindow).WithClock(func() time.Time { return base })
	late := early.WithClock(func() time.Time { return base.Add(10 * time.Minute) })

	stale, err := early.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 2, UserID: uuid.New()})
	if err != nil {
		t.Fatalf("stale reserve: %v", err)
	}
	fresh, err := late.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 2, UserID: uuid.New()})
	if err != nil {
		t.Fatalf("fresh reserve: %v", err)
	}

	sweeper := early.WithClock(func() time.Time { return base.Add(16 * time.Minute) })
	swept, err := sweeper.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if swept != 1 {
		t.Fatalf("expected 1 swept, got %d", swept)
	}

	var staleRow, freshRow models.InventoryReservation
	if err := db.First(&staleRow, "id = ?", stale.ID).Error; err != nil {
		t.Fatalf("load stale: %v", err)
	}
	if err := db.First(&freshRow, "id = ?", fresh.ID).Error; err != nil {
		t.Fatalf("load fresh: %v", err)
	}
	if staleRow.Status != enums.ReservationStatusReleased || staleRow.ReleasedAt == nil {
		t.Fatalf("expected stale hold released, got %+v", staleRow)
	}
	if freshRow.Status != enums.ReservationStatusHeld {
		t.Fatalf("expected fresh hold untouched, got %s", freshRow.Status)
	}

	// A second sweep finds nothing.
	swept, err = sweeper.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if swept != 0 {
		t.Fatalf("expected 0 swept, got %d", swept)
	}
}

func TestVariantsReserveIndependently(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	store := NewStore(db, DefaultHoldWindow)
	ctx := context.Background()
	product := uuid.New()
	variant := uuid.New()

	seedItem(t, db, product, 1)
	if err := db.Create(&models.InventoryItem{ID: uuid.New(), ProductID: product, VariantID: &variant, StockQty: 1}).Error; err != nil {
		t.Fatalf("seed variant item: %v", err)
	}

	if _, err := store.Reserve(ctx, ReserveInput{ProductID: product, Quantity: 1, UserID: uuid.New()}); err != nil {
		t.Fatalf("reserve base: %v", err)
	}
	if _, err := store.Reserve(ctx, ReserveInput{ProductID: product, VariantID: &variant, Quantity: 1, UserID: uuid.New()}); err != nil {
		t.Fatalf("reserve variant: %v", err)
	}
	if _, err := store.Reserve(ctx, ReserveInput{ProductID: product, VariantID: &variant, Quantity: 1, UserID: uuid.New()}); err == nil {
		t.Fatal("expected variant stock exhausted")
	}
}
