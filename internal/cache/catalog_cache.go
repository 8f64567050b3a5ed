package cache

import (
	"time"

	productdomain "github.com/smallbiznis/carbonmarket/internal/product/domain"
)

const (
	defaultCatalogTTL  = 30 * time.Second
	defaultProductTTL  = 30 * time.Second
	defaultProductSize = 512
	catalogListKey     = "carbon_credit"
)

// CatalogCache stores hot catalog reads. Inventory counts are served from
// here only for display; the reconciler always reads the inventory provider.
type CatalogCache interface {
	GetList() ([]productdomain.Product, bool)
	SetList(products []productdomain.Product)
	GetProduct(id string) (*productdomain.Product, bool)
	SetProduct(product *productdomain.Product)
	Invalidate()
}

type catalogCache struct {
	lists    Cache[string, []productdomain.Product]
	products Cache[string, *productdomain.Product]
}

func NewCatalogCache() CatalogCache {
	return NewCatalogCacheWithTTL(defaultCatalogTTL, defaultProductTTL)
}

func NewCatalogCacheWithTTL(listTTL, productTTL time.Duration) CatalogCache {
	return &catalogCache{
		lists:    NewLRU[string, []productdomain.Product](4, listTTL),
		products: NewLRU[string, *productdomain.Product](defaultProductSize, productTTL),
	}
}

func (c *catalogCache) GetList() ([]productdomain.Product, bool) {
	return c.lists.Get(catalogListKey)
}

func (c *catalogCache) SetList(products []productdomain.Product) {
	c.lists.Set(catalogListKey, products)
}

func (c *catalogCache) GetProduct(id string) (*productdomain.Product, bool) {
	return c.products.Get(id)
}

func (c *catalogCache) SetProduct(product *productdomain.Product) {
	if product == nil || product.ID == "" {
		return
	}
	c.products.Set(product.ID, product)
}

func (c *catalogCache) Invalidate() {
	c.lists.Purge()
	c.products.Purge()
}
