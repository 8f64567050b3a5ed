package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/carbonmarket/internal/cache"
	pricedomain "github.com/smallbiznis/carbonmarket/internal/price/domain"
	"github.com/smallbiznis/carbonmarket/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	Repo      domain.Repository
	PriceRepo pricedomain.Repository
	Cache     cache.CatalogCache `optional:"true"`
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	repo      domain.Repository
	priceRepo pricedomain.Repository
	cache     cache.CatalogCache
	group     singleflight.Group
}

func New(p Params) domain.Service {
	c := p.Cache
	if c == nil {
		c = cache.NewCatalogCache()
	}
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("product.service"),
		repo:      p.Repo,
		priceRepo: p.PriceRepo,
		cache:     c,
	}
}

func (s *Service) ListCarbonCreditProducts(ctx context.Context) ([]domain.Product, error) {
	if items, ok := s.cache.GetList(); ok {
		return items, nil
	}

	v, err, shared := s.group.Do("list:"+domain.TypeCarbonCredit, func() (any, error) {
		items, err := s.repo.ListActiveByType(ctx, s.db, domain.TypeCarbonCredit)
		if err != nil {
			return nil, fmt.Errorf("list products: %w", err)
		}
		if err := s.attachPrices(ctx, items); err != nil {
			return nil, err
		}
		s.cache.SetList(items)
		return items, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		s.log.Debug("collapsed concurrent catalog read")
	}
	return v.([]domain.Product), nil
}

func (s *Service) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, domain.ErrInvalidID
	}
	if item, ok := s.cache.GetProduct(id); ok {
		return item, nil
	}

	v, err, _ := s.group.Do("get:"+id, func() (any, error) {
		item, err := s.repo.FindByID(ctx, s.db, id)
		if err != nil {
			return nil, fmt.Errorf("find product %s: %w", id, err)
		}
		if item == nil {
			return (*domain.Product)(nil), nil
		}
		items := []domain.Product{*item}
		if err := s.attachPrices(ctx, items); err != nil {
			return nil, err
		}
		item = &items[0]
		s.cache.SetProduct(item)
		return item, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Product), nil
}

// attachPrices loads the active prices of every product in one query.
func (s *Service) attachPrices(ctx context.Context, items []domain.Product) error {
	if len(items) == 0 {
		return nil
	}
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}
	prices, err := s.priceRepo.ListActiveByProductIDs(ctx, s.db, ids)
	if err != nil {
		return fmt.Errorf("list prices: %w", err)
	}
	grouped := make(map[string][]pricedomain.Price, len(items))
	for _, price := range prices {
		grouped[price.ProductID] = append(grouped[price.ProductID], price)
	}
	for i := range items {
		items[i].Prices = grouped[items[i].ID]
	}
	return nil
}

func (s *Service) Upsert(ctx context.Context, req domain.UpsertRequest) error {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return domain.ErrInvalidID
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.ErrInvalidName
	}

	productType := strings.TrimSpace(req.Type)
	if productType == "" {
		if t, ok := req.Metadata[domain.MetadataType].(string); ok {
			productType = strings.TrimSpace(t)
		}
	}

	now := time.Now().UTC()
	p := &domain.Product{
		ID:          id,
		Name:        name,
		Description: strings.TrimSpace(req.Description),
		Active:      req.Active,
		Type:        productType,
		Images:      datatypes.JSONSlice[string](req.Images),
		Metadata:    datatypes.JSONMap(req.Metadata),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if p.Images == nil {
		p.Images = datatypes.JSONSlice[string]{}
	}
	if p.Metadata == nil {
		p.Metadata = datatypes.JSONMap{}
	}
	if err := s.repo.Upsert(ctx, s.db, p); err != nil {
		return fmt.Errorf("upsert product %s: %w", id, err)
	}
	s.Invalidate()
	return nil
}

func (s *Service) Invalidate() {
	s.cache.Invalidate()
}
