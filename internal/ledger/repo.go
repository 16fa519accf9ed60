package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/inventory-backend/pkg/errors"
)

// Repository manages persistence for stock ledgers. Every mutating method is a
// conditional write keyed on the version the caller read.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, ledger *models.StockLedger) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.StockLedger, error)
	FindByProductID(ctx context.Context, productID uuid.UUID) (*models.StockLedger, error)
	FindBySKU(ctx context.Context, sku string) (*models.StockLedger, error)
	List(ctx context.Context) ([]models.StockLedger, error)
	ListPendingLimitNotifications(ctx context.Context, limit int) ([]models.StockLedger, error)
	Delete(ctx context.Context, id uuid.UUID) error
	CompareAndSetQuantity(ctx context.Context, id uuid.UUID, version int64, quantity int) (bool, error)
	CompareAndSetLevels(ctx context.Context, id uuid.UUID, version int64, quantity, limit int) (bool, error)
	CompareAndMarkNotified(ctx context.Context, id uuid.UUID, version int64) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, ledger *models.StockLedger) error {
	return r.db.WithContext(ctx).Omit("Product").Create(ledger).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.StockLedger, error) {
	var ledger models.StockLedger
	err := r.db.WithContext(ctx).Preload("Product").Where("id = ?", id).First(&ledger).Error
	if err != nil {
		return nil, notFound(err, "stock ledger not found")
	}
	return &ledger, nil
}

func (r *repository) FindByProductID(ctx context.Context, productID uuid.UUID) (*models.StockLedger, error) {
	var ledger models.StockLedger
	err := r.db.WithContext(ctx).Preload("Product").Where("product_id = ?", productID).First(&ledger).Error
	if err != nil {
		return nil, notFound(err, "stock ledger not found")
	}
	return &ledger, nil
}

func (r *repository) FindBySKU(ctx context.Context, sku string) (*models.StockLedger, error) {
	var ledger models.StockLedger
	err := r.db.WithContext(ctx).
		Preload("Product").
		Joins("JOIN products ON products.id = stock_ledgers.product_id").
		Where("products.sku_code = ?", sku).
		First(&ledger).Error
	if err != nil {
		return nil, notFound(err, "stock ledger not found for sku "+sku)
	}
	return &ledger, nil
}

func (r *repository) List(ctx context.Context) ([]models.StockLedger, error) {
	var ledgers []models.StockLedger
	if err := r.db.WithContext(ctx).
		Preload("Product").
		Order("created_at ASC").
		Order("id ASC").
		Find(&ledgers).Error; err != nil {
		return nil, err
	}
	return ledgers, nil
}

// ListPendingLimitNotifications returns ledgers at or below their limit whose
// notification has not been sent yet.
func (r *repository) ListPendingLimitNotifications(ctx context.Context, limit int) ([]models.StockLedger, error) {
	var ledgers []models.StockLedger
	query := r.db.WithContext(ctx).
		Preload("Product").
		Where("quantity <= limit_qty AND notification_sent = ?", false).
		Order("id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&ledgers).Error; err != nil {
		return nil, err
	}
	return ledgers, nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.StockLedger{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "stock ledger not found")
	}
	return nil
}

func (r *repository) CompareAndSetQuantity(ctx context.Context, id uuid.UUID, version int64, quantity int) (bool, error) {
	return r.conditionalUpdate(ctx, id, version, nil, map[string]any{
		"quantity": quantity,
	})
}

// CompareAndSetLevels is the administrative write: it also re-arms the limit
// notification.
func (r *repository) CompareAndSetLevels(ctx context.Context, id uuid.UUID, version int64, quantity, limit int) (bool, error) {
	return r.conditionalUpdate(ctx, id, version, nil, map[string]any{
		"quantity":          quantity,
		"limit_qty":         limit,
		"notification_sent": false,
	})
}

func (r *repository) CompareAndMarkNotified(ctx context.Context, id uuid.UUID, version int64) (bool, error) {
	return r.conditionalUpdate(ctx, id, version, map[string]any{"notification_sent": false}, map[string]any{
		"notification_sent": true,
	})
}

func (r *repository) conditionalUpdate(ctx context.Context, id uuid.UUID, version int64, extra map[string]any, values map[string]any) (bool, error) {
	values["version"] = gorm.Expr("version + ?", 1)
	query := r.db.WithContext(ctx).
		Model(&models.StockLedger{}).
		Where("id = ? AND version = ?", id, version)
	if len(extra) > 0 {
		query = query.Where(extra)
	}
	res := query.Updates(values)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func notFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, message)
	}
	return err
}
