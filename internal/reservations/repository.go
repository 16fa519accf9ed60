package reservations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-backend/pkg/db/models"
)

// Repository persists reservation holds.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, reservation *models.Reservation) error
	ListExpired(ctx context.Context, now time.Time, limit int, exclude []uuid.UUID) ([]models.Reservation, error)
	ListByOrderNumber(ctx context.Context, orderNumber string) ([]models.Reservation, error)
	DeleteByID(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteByOrderNumber(ctx context.Context, orderNumber string) (int64, error)
	DeleteByProductID(ctx context.Context, productID uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, reservation *models.Reservation) error {
	return r.db.WithContext(ctx).Omit("Product").Create(reservation).Error
}

// ListExpired returns holds whose expiry is strictly before now, oldest first,
// leaving out the excluded ids.
func (r *repository) ListExpired(ctx context.Context, now time.Time, limit int, exclude []uuid.UUID) ([]models.Reservation, error) {
	var rows []models.Reservation
	query := r.db.WithContext(ctx).
		Where("expires_at < ?", now).
		Order("expires_at ASC").
		Order("id ASC")
	if len(exclude) > 0 {
		query = query.Where("id NOT IN ?", exclude)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListByOrderNumber(ctx context.Context, orderNumber string) ([]models.Reservation, error) {
	var rows []models.Reservation
	if err := r.db.WithContext(ctx).
		Where("order_number = ?", orderNumber).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// DeleteByID reports whether this call removed the row. A false result means
// another writer already finalized or expired it.
func (r *repository) DeleteByID(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Reservation{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) DeleteByOrderNumber(ctx context.Context, orderNumber string) (int64, error) {
	res := r.db.WithContext(ctx).Where("order_number = ?", orderNumber).Delete(&models.Reservation{})
	return res.RowsAffected, res.Error
}

func (r *repository) DeleteByProductID(ctx context.Context, productID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Where("product_id = ?", productID).Delete(&models.Reservation{})
	return res.RowsAffected, res.Error
}
