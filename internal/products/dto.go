package product

// CatalogInput is the catalog-owned part of a product.
type CatalogInput struct {
	SKU          string
	Name         string
	ThumbnailURL string
}
