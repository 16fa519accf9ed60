package ledger

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/angelmondragon/inventory-backend/pkg/errors"
	"github.com/angelmondragon/inventory-backend/pkg/logger"
)

// Service exposes the administrative and read-only ledger operations.
type Service interface {
	UpdateLedger(ctx context.Context, productID uuid.UUID, input UpdateLedgerInput) (*Snapshot, error)
	ListLedgers(ctx context.Context) ([]Snapshot, error)
	FindBySKU(ctx context.Context, sku string) (*Snapshot, error)
	CheckStock(ctx context.Context, lines []Line) (bool, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ServiceParams struct {
	DB         txRunner
	Repository Repository
	Logger     *logger.Logger
	Policy     RetryPolicy
	Observer   ConflictObserver
}

type service struct {
	db       txRunner
	repo     Repository
	logg     *logger.Logger
	policy   RetryPolicy
	observer ConflictObserver
}

// NewService wires a ledger service with the provided repository.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &service{
		db:       params.DB,
		repo:     params.Repository,
		logg:     params.Logger,
		policy:   params.Policy.normalized(),
		observer: params.Observer,
	}, nil
}

func (s *service) UpdateLedger(ctx context.Context, productID uuid.UUID, input UpdateLedgerInput) (*Snapshot, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	if input.Quantity < 0 || input.Limit < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity and limit must be non-negative")
	}

	var snapshot Snapshot
	err := RetryConditional(ctx, s.policy, "update_ledger", s.observer, func(ctx context.Context) error {
		return s.db.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			current, err := repo.FindByProductID(ctx, productID)
			if err != nil {
				return err
			}
			applied, err := repo.CompareAndSetLevels(ctx, current.ID, current.Version, input.Quantity, input.Limit)
			if err != nil {
				return err
			}
			if !applied {
				return ErrVersionConflict
			}
			current.Quantity = input.Quantity
			current.Limit = input.Limit
			current.NotificationSent = false
			current.Version++
			snapshot = SnapshotFromModel(*current)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"product_id": productID.String(),
			"sku":        snapshot.SKU,
			"quantity":   snapshot.Quantity,
			"limit":      snapshot.Limit,
		})
		s.logg.Info(logCtx, "stock ledger updated")
	}
	return &snapshot, nil
}

func (s *service) ListLedgers(ctx context.Context) ([]Snapshot, error) {
	ledgers, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}
	snapshots := make([]Snapshot, 0, len(ledgers))
	for _, ledger := range ledgers {
		snapshots = append(snapshots, SnapshotFromModel(ledger))
	}
	return snapshots, nil
}

func (s *service) FindBySKU(ctx context.Context, sku string) (*Snapshot, error) {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}
	ledger, err := s.repo.FindBySKU(ctx, sku)
	if err != nil {
		return nil, err
	}
	snapshot := SnapshotFromModel(*ledger)
	return &snapshot, nil
}

// CheckStock reports whether every line could be served right now. Unknown
// SKUs count as not in stock. Nothing is written.
func (s *service) CheckStock(ctx context.Context, lines []Line) (bool, error) {
	if len(lines) == 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "at least one line is required")
	}
	if err := ValidateLines(lines); err != nil {
		return false, err
	}
	for _, line := range lines {
		ledger, err := s.repo.FindBySKU(ctx, line.SKU)
		if err != nil {
			if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
				return false, nil
			}
			return false, err
		}
		if ledger.Quantity < line.Quantity {
			return false, nil
		}
	}
	return true, nil
}

// ValidateLines rejects empty SKUs and non-positive quantities.
func ValidateLines(lines []Line) error {
	for i, line := range lines {
		if strings.TrimSpace(line.SKU) == "" {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: sku is required", i)).
				WithDetails(map[string]any{"line": i, "field": "sku"})
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("line %d: quantity must be positive", i)).
				WithDetails(map[string]any{"line": i, "field": "quantity"})
		}
	}
	return nil
}
