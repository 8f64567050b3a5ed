package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/smallbiznis/carbonmarket/internal/cart/domain"
	"github.com/smallbiznis/carbonmarket/internal/cart/hub"
	"github.com/smallbiznis/carbonmarket/internal/clock"
	productdomain "github.com/smallbiznis/carbonmarket/internal/product/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const mirrorTimeout = time.Second

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.Repository
	Mirror   domain.Mirror
	Hub      *hub.Hub[domain.Cart]
	Products productdomain.Service
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.Repository
	mirror   domain.Mirror
	hub      *hub.Hub[domain.Cart]
	products productdomain.Service
	locks    *userLocks
	reads    singleflight.Group
}

func New(p Params) domain.Service {
	h := p.Hub
	if h == nil {
		h = hub.New[domain.Cart]()
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("cart.service"),
		clock:    p.Clock,
		repo:     p.Repo,
		mirror:   p.Mirror,
		hub:      h,
		products: p.Products,
		locks:    newUserLocks(),
	}
}

func (s *Service) AddItem(ctx context.Context, req domain.AddItemRequest) (*domain.Cart, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	productID := strings.TrimSpace(req.ProductID)
	if productID == "" {
		return nil, domain.ErrInvalidProduct
	}
	if req.Quantity < 1 {
		return nil, domain.ErrInvalidQuantity
	}

	return s.mutate(ctx, userID, func(db *gorm.DB, now time.Time) error {
		return s.repo.Add(ctx, db, &domain.CartItem{
			UserID:      userID,
			ProductID:   productID,
			ProductType: strings.TrimSpace(req.ProductType),
			Name:        strings.TrimSpace(req.Name),
			Quantity:    req.Quantity,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	})
}

func (s *Service) IncrementItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	userID, productID, err := normalizeKeys(userID, productID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, func(db *gorm.DB, now time.Time) error {
		ok, err := s.repo.Increment(ctx, db, userID, productID, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrItemNotFound
		}
		return nil
	})
}

func (s *Service) DecrementItem(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	userID, productID, err := normalizeKeys(userID, productID)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, userID, func(db *gorm.DB, now time.Time) error {
		ok, err := s.repo.Decrement(ctx, db, userID, productID, now)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		removed, err := s.repo.DeleteIfSingle(ctx, db, userID, productID)
		if err != nil {
			return err
		}
		if !removed {
			return domain.ErrItemNotFound
		}
		return nil
	})
}

func (s *Service) Clear(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.ErrInvalidUser
	}
	_, err := s.mutate(ctx, userID, func(db *gorm.DB, now time.Time) error {
		return s.repo.DeleteAll(ctx, db, userID)
	})
	return err
}

func (s *Service) Items(ctx context.Context, userID string) (*domain.Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}

	v, err, _ := s.reads.Do(userID, func() (any, error) {
		cached, err := s.mirror.Get(ctx, userID)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, domain.ErrCacheMiss) {
			s.log.Warn("cart mirror read failed", zap.String("user_id", userID), zap.Error(err))
		}

		// The refill must not land after a mutation's newer snapshot.
		unlock := s.locks.lock(userID)
		defer unlock()

		cart, err := s.load(ctx, s.db, userID)
		if err != nil {
			return nil, err
		}
		s.refreshMirror(cart)
		return cart, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

func (s *Service) Total(ctx context.Context, userID string) (*domain.Total, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	if s.products == nil {
		return nil, errors.New("cart pricing requires the product service")
	}

	cart, err := s.load(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if len(cart.Items) == 0 {
		return nil, domain.ErrEmptyCart
	}

	total := &domain.Total{Count: cart.Count()}
	for _, item := range cart.Items {
		product, err := s.products.GetProduct(ctx, item.ProductID)
		if err != nil {
			return nil, fmt.Errorf("load product %s: %w", item.ProductID, err)
		}
		if product == nil || !product.Active {
			return nil, fmt.Errorf("%w: %s", domain.ErrUnknownProduct, item.ProductID)
		}
		price := product.OneTimePrice()
		if price == nil {
			return nil, fmt.Errorf("%w: %s", domain.ErrPriceUnavailable, item.ProductID)
		}
		if total.Currency == "" {
			total.Currency = price.Currency
		} else if !strings.EqualFold(total.Currency, price.Currency) {
			return nil, domain.ErrMixedCurrency
		}
		line, ok := price.LineAmount(item.Quantity)
		if !ok || total.Amount > math.MaxInt64-line {
			return nil, fmt.Errorf("%w: %s total overflows", domain.ErrInvalidQuantity, item.ProductID)
		}
		total.Amount += line
	}
	total.Currency = strings.ToLower(total.Currency)
	return total, nil
}

func (s *Service) Subscribe(ctx context.Context, userID string, fn func(domain.Cart)) (*hub.Subscription[domain.Cart], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUser
	}
	if fn == nil {
		return nil, errors.New("cart subscriber callback is required")
	}

	// Holding the user lock orders the initial snapshot before any later mutation.
	unlock := s.locks.lock(userID)
	defer unlock()

	cart, err := s.load(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	return s.hub.Subscribe(userID, fn, *cart), nil
}

// mutate runs apply and the reload of the resulting cart in one transaction
// while holding the user's lock, then notifies subscribers and the mirror.
func (s *Service) mutate(ctx context.Context, userID string, apply func(tx *gorm.DB, now time.Time) error) (*domain.Cart, error) {
	unlock := s.locks.lock(userID)
	defer unlock()

	var cart *domain.Cart
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := apply(tx, s.clock.Now()); err != nil {
			return err
		}
		loaded, err := s.load(ctx, tx, userID)
		if err != nil {
			return err
		}
		cart = loaded
		return nil
	})
	if err != nil {
		if errors.Is(err, domain.ErrItemNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("update cart: %w", err)
	}

	s.hub.Publish(userID, *cart)
	s.refreshMirror(cart)
	return cart, nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, userID string) (*domain.Cart, error) {
	items, err := s.repo.List(ctx, db, userID)
	if err != nil {
		return nil, fmt.Errorf("list cart items: %w", err)
	}
	if items == nil {
		items = []domain.CartItem{}
	}
	return &domain.Cart{UserID: userID, Items: items}, nil
}

func (s *Service) refreshMirror(cart *domain.Cart) {
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()

	if err := s.mirror.Set(ctx, cart); err != nil {
		s.log.Warn("cart mirror refresh failed", zap.String("user_id", cart.UserID), zap.Error(err))
		// A stale snapshot is worse than a miss.
		if delErr := s.mirror.Delete(ctx, cart.UserID); delErr != nil {
			s.log.Warn("cart mirror invalidate failed", zap.String("user_id", cart.UserID), zap.Error(delErr))
		}
	}
}

func normalizeKeys(userID, productID string) (string, string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", "", domain.ErrInvalidUser
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return "", "", domain.ErrInvalidProduct
	}
	return userID, productID, nil
}
