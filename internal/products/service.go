package product

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/inventory-backend/internal/ledger"
	"github.com/angelmondragon/inventory-backend/internal/reservations"
	"github.com/angelmondragon/inventory-backend/pkg/db"
	"github.com/angelmondragon/inventory-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/inventory-backend/pkg/errors"
	"github.com/angelmondragon/inventory-backend/pkg/logger"
)

// CatalogService mirrors the upstream product catalog into local products and
// their stock ledgers.
type CatalogService interface {
	CreateProduct(ctx context.Context, input CatalogInput) (*models.Product, error)
	UpdateProduct(ctx context.Context, input CatalogInput) (*models.Product, error)
	DeleteProduct(ctx context.Context, sku string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type CatalogParams struct {
	DB           txRunner
	Products     *Repository
	Ledgers      ledger.Repository
	Reservations reservations.Repository
	Logger       *logger.Logger
}

type catalogService struct {
	db           txRunner
	products     *Repository
	ledgers      ledger.Repository
	reservations reservations.Repository
	logg         *logger.Logger
}

// NewCatalogService constructs the catalog mirror.
func NewCatalogService(params CatalogParams) (CatalogService, error) {
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Products == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Ledgers == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	return &catalogService{
		db:           params.DB,
		products:     params.Products,
		ledgers:      params.Ledgers,
		reservations: params.Reservations,
		logg:         params.Logger,
	}, nil
}

// CreateProduct registers the product with an empty ledger (quantity 0,
// limit 0). A SKU that already exists is left untouched.
func (s *catalogService) CreateProduct(ctx context.Context, input CatalogInput) (*models.Product, error) {
	input, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}

	existing, err := s.products.FindBySKU(ctx, input.SKU)
	if err == nil {
		s.log(ctx, input.SKU, "catalog create ignored, sku already known")
		return existing, nil
	}
	if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return nil, err
	}

	product := &models.Product{
		SKU:          input.SKU,
		Name:         input.Name,
		ThumbnailURL: input.ThumbnailURL,
	}
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.products.WithTx(tx).Create(ctx, product); err != nil {
			return err
		}
		return s.ledgers.WithTx(tx).Create(ctx, &models.StockLedger{ProductID: product.ID})
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			s.log(ctx, input.SKU, "catalog create raced with another writer")
			return s.products.FindBySKU(ctx, input.SKU)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create product")
	}
	s.log(ctx, input.SKU, "product created")
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, input CatalogInput) (*models.Product, error) {
	input, err := normalizeInput(input)
	if err != nil {
		return nil, err
	}
	product, err := s.products.FindBySKU(ctx, input.SKU)
	if err != nil {
		return nil, err
	}
	if err := s.products.UpdateDetails(ctx, product.ID, input.Name, input.ThumbnailURL); err != nil {
		return nil, err
	}
	product.Name = input.Name
	product.ThumbnailURL = input.ThumbnailURL
	s.log(ctx, input.SKU, "product updated")
	return product, nil
}

// DeleteProduct removes the product, its ledger and any outstanding holds.
func (s *catalogService) DeleteProduct(ctx context.Context, sku string) error {
	sku = strings.TrimSpace(sku)
	if sku == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}
	row, err := s.ledgers.FindBySKU(ctx, sku)
	if err != nil {
		return err
	}

	var released int64
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		released, err = s.reservations.WithTx(tx).DeleteByProductID(ctx, row.ProductID)
		if err != nil {
			return err
		}
		if err := s.ledgers.WithTx(tx).Delete(ctx, row.ID); err != nil {
			return err
		}
		return s.products.WithTx(tx).Delete(ctx, row.ProductID)
	})
	if err != nil {
		return err
	}
	if s.logg != nil {
		s.logg.Info(s.logg.WithFields(s.logg.WithSKU(ctx, sku), map[string]any{
			"product_id":             row.ProductID.String(),
			"reservations_discarded": released,
		}), "product deleted")
	}
	return nil
}

func (s *catalogService) log(ctx context.Context, sku, msg string) {
	if s.logg == nil {
		return
	}
	s.logg.Info(s.logg.WithSKU(ctx, sku), msg)
}

func normalizeInput(input CatalogInput) (CatalogInput, error) {
	input.SKU = strings.TrimSpace(input.SKU)
	input.Name = strings.TrimSpace(input.Name)
	input.ThumbnailURL = strings.TrimSpace(input.ThumbnailURL)
	if input.SKU == "" {
		return input, pkgerrors.New(pkgerrors.CodeValidation, "sku is required")
	}
	return input, nil
}

