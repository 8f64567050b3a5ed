// Package reconciler settles pending purchase requests: it checks the
// payment, moves inventory and credits the buyer's offsets.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/carbonmarket/internal/clock"
	"github.com/smallbiznis/carbonmarket/internal/config"
	emissionsdomain "github.com/smallbiznis/carbonmarket/internal/emissions/domain"
	obsmetrics "github.com/smallbiznis/carbonmarket/internal/observability/metrics"
	"github.com/smallbiznis/carbonmarket/internal/observability/tracing"
	paymentdomain "github.com/smallbiznis/carbonmarket/internal/payment/domain"
	purchasedomain "github.com/smallbiznis/carbonmarket/internal/purchase/domain"
	"github.com/smallbiznis/carbonmarket/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	lockKeyFormat  = "reconcile:purchase:%s"
	restoreTimeout = 10 * time.Second
)

type Params struct {
	fx.In

	Cfg        config.Config
	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	Repo       purchasedomain.Repository
	Mirror     purchasedomain.Mirror
	Payments   paymentdomain.Service
	Emissions  emissionsdomain.Service
	Inventory  Inventory
	Locker     *ratelimit.Locker   `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Reconciler struct {
	db         *gorm.DB
	log        *zap.Logger
	clock      clock.Clock
	repo       purchasedomain.Repository
	mirror     purchasedomain.Mirror
	payments   paymentdomain.Service
	emissions  emissionsdomain.Service
	inventory  Inventory
	locker     *ratelimit.Locker
	lockTTL    time.Duration
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) *Reconciler {
	ttl := p.Cfg.RateLimit.ReconcileLockTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Reconciler{
		db:         p.DB,
		log:        p.Log.Named("reconciler"),
		clock:      p.Clock,
		repo:       p.Repo,
		mirror:     p.Mirror,
		payments:   p.Payments,
		emissions:  p.Emissions,
		inventory:  p.Inventory,
		locker:     p.Locker,
		lockTTL:    ttl,
		obsMetrics: p.ObsMetrics,
	}
}

// Process settles one request. Redelivery of a settled request is a no-op,
// and a request whose payment is not mirrored yet stays pending.
func (r *Reconciler) Process(ctx context.Context, requestID snowflake.ID) error {
	err := r.locker.WithLock(ctx, fmt.Sprintf(lockKeyFormat, requestID.String()), r.lockTTL, func(ctx context.Context) error {
		return r.process(ctx, requestID)
	})
	if errors.Is(err, ratelimit.ErrLockHeld) {
		r.log.Debug("purchase request already being reconciled", zap.String("request_id", requestID.String()))
		return nil
	}
	return err
}

func (r *Reconciler) process(ctx context.Context, requestID snowflake.ID) error {
	pr, err := r.repo.FindByID(ctx, r.db, requestID)
	if err != nil {
		return fmt.Errorf("find purchase request: %w", err)
	}
	if pr == nil {
		r.log.Warn("purchase request not found", zap.String("request_id", requestID.String()))
		r.obsMetrics.RecordReconcile(ctx, "missing", 0)
		return nil
	}
	if pr.Type != purchasedomain.TypeCarbonCredits || pr.Settled() {
		r.obsMetrics.RecordReconcile(ctx, "skipped", 0)
		return nil
	}

	log := r.log.With(
		zap.String("request_id", pr.ID.String()),
		zap.String("user_id", pr.UserID),
		zap.String("correlation_id", tracing.CorrelationIDFromContext(ctx)),
	)

	items, err := pr.ParseItems()
	if err != nil {
		log.Error("purchase request items unreadable", zap.Error(err))
		return r.fail(ctx, pr, err.Error())
	}

	payment, err := r.payments.FindPayment(ctx, pr.UserID, pr.PaymentIntentID)
	if err != nil {
		return fmt.Errorf("find payment: %w", err)
	}
	if payment == nil {
		log.Info("payment not mirrored yet", zap.String("payment_intent_id", pr.PaymentIntentID))
		r.obsMetrics.RecordReconcile(ctx, "awaiting_payment", 0)
		return nil
	}
	switch {
	case payment.Status == paymentdomain.PaymentCanceled:
		return r.fail(ctx, pr, fmt.Sprintf("%s: %s", ErrPaymentCanceled, payment.ID))
	case !payment.Succeeded():
		log.Info("payment not settled yet",
			zap.String("payment_intent_id", payment.ID),
			zap.String("payment_status", payment.Status),
		)
		r.obsMetrics.RecordReconcile(ctx, "awaiting_payment", 0)
		return nil
	}
	if err := coversRequest(payment, pr); err != nil {
		log.Warn("payment does not cover purchase request", zap.Error(err))
		return r.fail(ctx, pr, err.Error())
	}

	// Validate everything before touching any counter.
	for _, item := range items {
		remaining, err := r.inventory.Remaining(ctx, item.ID)
		if err != nil {
			if terminal(err) {
				return r.fail(ctx, pr, err.Error())
			}
			return fmt.Errorf("read inventory: %w", err)
		}
		if remaining-item.Quantity < 0 {
			msg := fmt.Sprintf("%s: %s has %d remaining, %d requested",
				ErrInsufficientInventory, item.ID, remaining, item.Quantity)
			log.Warn("insufficient inventory", zap.String("product_id", item.ID),
				zap.Int64("remaining", remaining), zap.Int64("quantity", item.Quantity))
			return r.fail(ctx, pr, msg)
		}
	}

	applied := make([]purchasedomain.Item, 0, len(items))
	for _, item := range items {
		if _, err := r.inventory.Adjust(ctx, item.ID, -item.Quantity); err != nil {
			log.Warn("inventory decrement failed", zap.String("product_id", item.ID), zap.Error(err))
			r.restore(ctx, log, applied)
			return r.fail(ctx, pr, err.Error())
		}
		applied = append(applied, item)
	}

	now := r.clock.Now()
	total := purchasedomain.TotalQuantity(items)
	settled := false
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := r.repo.Settle(ctx, tx, pr.ID, purchasedomain.StatusSuccess, "", now)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		for _, item := range items {
			if err := r.repo.AddCredits(ctx, tx, pr.UserID, item.ID, item.Quantity, now); err != nil {
				return err
			}
		}
		if err := r.emissions.AddOffset(ctx, tx, pr.UserID, clock.MonthKey(now), total); err != nil {
			return err
		}
		settled = true
		return nil
	})
	if err != nil {
		r.restore(ctx, log, applied)
		r.obsMetrics.RecordReconcile(ctx, "retry", 0)
		return fmt.Errorf("credit purchase: %w", err)
	}
	if !settled {
		log.Info("purchase request settled concurrently")
		r.restore(ctx, log, applied)
		r.obsMetrics.RecordReconcile(ctx, "skipped", 0)
		return nil
	}

	pr.Status = purchasedomain.StatusSuccess
	pr.ProcessedAt = &now
	r.updateMirror(ctx, log, pr)
	r.obsMetrics.RecordReconcile(ctx, "success", total)
	log.Info("purchase request reconciled", zap.Int64("credits", total))
	return nil
}

// coversRequest checks the captured payment pays for the recorded total.
func coversRequest(payment *paymentdomain.Payment, pr *purchasedomain.PurchaseRequest) error {
	if !strings.EqualFold(payment.Currency, pr.Currency) {
		return fmt.Errorf("%w: paid in %q, request is in %q", ErrPaymentMismatch, payment.Currency, pr.Currency)
	}
	if payment.Amount < pr.TotalAmount {
		return fmt.Errorf("%w: paid %d %s, request totals %d %s",
			ErrPaymentMismatch, payment.Amount, payment.Currency, pr.TotalAmount, pr.Currency)
	}
	return nil
}

// fail settles the request as error. It is terminal, so no error is returned
// to the trigger.
func (r *Reconciler) fail(ctx context.Context, pr *purchasedomain.PurchaseRequest, message string) error {
	now := r.clock.Now()
	ok, err := r.repo.Settle(ctx, r.db, pr.ID, purchasedomain.StatusError, message, now)
	if err != nil {
		return fmt.Errorf("mark purchase request failed: %w", err)
	}
	if !ok {
		return nil
	}
	pr.Status = purchasedomain.StatusError
	pr.ErrorMessage = message
	pr.ProcessedAt = &now

	log := r.log.With(zap.String("request_id", pr.ID.String()), zap.String("user_id", pr.UserID))
	r.updateMirror(ctx, log, pr)
	r.obsMetrics.RecordReconcile(ctx, "error", 0)
	log.Warn("purchase request failed", zap.String("reason", message))
	return nil
}

// restore puts back decrements that were applied before a later step failed.
// A failed restore leaves inventory short and needs an operator.
func (r *Reconciler) restore(ctx context.Context, log *zap.Logger, applied []purchasedomain.Item) {
	if len(applied) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), restoreTimeout)
	defer cancel()
	for _, item := range applied {
		if _, err := r.inventory.Adjust(ctx, item.ID, item.Quantity); err != nil {
			log.Error("inventory restore failed",
				zap.String("product_id", item.ID),
				zap.Int64("quantity", item.Quantity),
				zap.Error(err),
			)
		}
	}
}

func (r *Reconciler) updateMirror(ctx context.Context, log *zap.Logger, pr *purchasedomain.PurchaseRequest) {
	if err := r.mirror.UpdateStatus(ctx, pr); err != nil {
		log.Warn("purchase request mirror update failed", zap.Error(err))
	}
}

// SweepPending reprocesses requests left pending for longer than olderThan,
// covering lost events and payments that were mirrored late.
func (r *Reconciler) SweepPending(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	pending, err := r.repo.ListPending(ctx, r.db, r.clock.Now().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("list pending purchase requests: %w", err)
	}

	var errs []error
	for _, pr := range pending {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := r.Process(ctx, pr.ID); err != nil {
			errs = append(errs, fmt.Errorf("request %s: %w", pr.ID.String(), err))
		}
	}
	return len(pending), errors.Join(errs...)
}
