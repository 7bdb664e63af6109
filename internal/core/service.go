// Package core exposes the inventory service: transactional consumption,
// restocking and lifecycle operations over bottle-based product ledgers,
// plus read-only availability checks and stock classification. Every
// operation is instrumented through pluggable logging, audit, metrics and
// tracing hooks.
package core

import (
	"bottlecore/pkg/domain"
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Service exposes higher-level transactional operations over product ledgers.
type Service struct {
	store   domain.PersistentStore
	log     domain.ConsumptionLog
	engine  *domain.RulesEngine
	clock   Clock
	now     func() time.Time
	logger  Logger
	audit   AuditRecorder
	metrics MetricsRecorder
	tracer  Tracer
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	svc := &Service{
		store:   store,
		log:     extractConsumptionLog(store),
		engine:  extractRulesEngine(store),
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(svc)
	}
	svc.now = selectNowFunc(store, svc.clock)
	return svc
}

// NewInMemoryService creates a service and in-memory store with the given
// rules engine.
func NewInMemoryService(engine *domain.RulesEngine, opts ...Option) *Service {
	return NewService(NewMemoryStore(engine), opts...)
}

// Store returns the underlying storage implementation.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

// run wraps one service operation with tracing, metrics, audit and logging.
// fn returns the id of the entity the operation touched.
func (s *Service) run(ctx context.Context, op string, fn func(ctx context.Context) (string, domain.Result, error)) (domain.Result, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, op)
	entityID, res, err := fn(ctx)
	duration := time.Since(started)
	span.End(err)
	s.metrics.Observe(ctx, op, err == nil, duration)
	if err != nil {
		s.recordAudit(ctx, op, entityID, AuditStatusError, duration)
		s.logger.Error("operation failed", "operation", op, "entity_id", entityID, "error", err)
		return res, err
	}
	s.recordAuditSuccess(ctx, op, entityID, duration)
	s.logger.Debug("operation completed", "operation", op, "entity_id", entityID, "duration_ms", float64(duration)/float64(time.Millisecond))
	return res, nil
}

func (s *Service) recordAudit(ctx context.Context, op, entityID string, status AuditStatus, duration time.Duration) {
	meta, ok := operationAudit[op]
	if !ok {
		return
	}
	s.audit.Record(ctx, AuditEntry{
		Operation: op,
		Entity:    meta.Entity,
		Action:    meta.Action,
		EntityID:  entityID,
		Status:    status,
		Duration:  duration,
		Timestamp: s.now(),
	})
}

// recordAuditSuccess emits a success audit entry for a known operation.
// Operations without audit metadata are ignored.
func (s *Service) recordAuditSuccess(ctx context.Context, op, entityID string, duration time.Duration) {
	s.recordAudit(ctx, op, entityID, AuditStatusSuccess, duration)
}

// ProvisionProduct registers the ledger for a new product. Stock always
// arrives sealed: OpenRemaining starts at zero regardless of input, and the
// product starts active.
func (s *Service) ProvisionProduct(ctx context.Context, ledger domain.ProductLedger) (domain.ProductLedger, domain.Result, error) {
	var created domain.ProductLedger
	res, err := s.run(ctx, "provision_product", func(ctx context.Context) (string, domain.Result, error) {
		ledger.OpenRemaining = 0
		ledger.Active = true
		res, err := s.store.RunInTransaction(ctx, ledger.ProductID, func(tx domain.Transaction) error {
			var err error
			created, err = tx.CreateLedger(ledger)
			return err
		})
		return ledger.ProductID, res, err
	})
	return created, res, err
}

// Consume withdraws the requested amount from a product ledger. The open
// container drains first; sealed containers are broken one at a time and only
// when still needed, so no call ever opens more containers than the remainder
// requires. The read-plan-write runs under the product guard and commits all
// or nothing; on success exactly one log entry records the transition.
func (s *Service) Consume(ctx context.Context, req domain.ConsumptionRequest) (domain.ConsumptionResult, domain.Result, error) {
	var outcome domain.ConsumptionResult
	res, err := s.run(ctx, "consume_product", func(ctx context.Context) (string, domain.Result, error) {
		var entry domain.ConsumptionEntry
		committed := false
		res, err := s.store.RunInTransaction(ctx, req.ProductID, func(tx domain.Transaction) error {
			before, ok := tx.Ledger()
			if !ok {
				return domain.UnknownProductError{ProductID: req.ProductID}
			}
			plan, err := domain.PlanConsumption(before, req.Amount)
			if err != nil {
				return err
			}
			if req.Amount == 0 {
				// No-op success: nothing written, nothing logged.
				outcome = consumptionOutcome(before, plan)
				return nil
			}
			updated, err := tx.UpdateLedger(func(l *domain.ProductLedger) error {
				l.SealedContainers = plan.SealedContainers
				l.OpenRemaining = plan.OpenRemaining
				return nil
			})
			if err != nil {
				return err
			}
			outcome = consumptionOutcome(updated, plan)
			entry = domain.ConsumptionEntry{
				ID:               uuid.NewString(),
				ProductID:        before.ProductID,
				Sequence:         updated.Sequence,
				Amount:           plan.Consumed,
				ContainersOpened: plan.ContainersOpened,
				BeforeSealed:     before.SealedContainers,
				BeforeOpen:       before.OpenRemaining,
				AfterSealed:      updated.SealedContainers,
				AfterOpen:        updated.OpenRemaining,
				Correlation:      req.Correlation,
				OccurredAt:       updated.UpdatedAt,
			}
			committed = true
			return nil
		})
		if err != nil {
			return req.ProductID, res, err
		}
		if committed {
			res.Merge(s.appendEntry(ctx, entry))
		}
		return req.ProductID, res, nil
	})
	return outcome, res, err
}

// appendEntry writes one consumption log record. The ledger write has already
// committed when this runs, so append failures never fail the operation: they
// surface as a warn violation on the result plus a log line.
func (s *Service) appendEntry(ctx context.Context, entry domain.ConsumptionEntry) domain.Result {
	if s.log == nil {
		return domain.Result{}
	}
	if err := s.log.Append(ctx, entry); err != nil {
		s.logger.Warn("consumption log append failed",
			"product_id", entry.ProductID,
			"sequence", entry.Sequence,
			"error", err,
		)
		return domain.Result{Violations: []domain.Violation{{
			Rule:     "consumption_log_append",
			Severity: domain.SeverityWarn,
			Message:  fmt.Sprintf("consumption entry %s for product %s was not recorded: %v", entry.ID, entry.ProductID, err),
			Entity:   domain.EntityConsumptionEntry,
			EntityID: entry.ID,
		}}}
	}
	return domain.Result{}
}

func consumptionOutcome(l domain.ProductLedger, plan domain.ConsumptionPlan) domain.ConsumptionResult {
	return domain.ConsumptionResult{
		ProductID:        l.ProductID,
		Consumed:         plan.Consumed,
		ContainersOpened: plan.ContainersOpened,
		SealedContainers: l.SealedContainers,
		OpenRemaining:    l.OpenRemaining,
		TotalAvailable:   l.TotalAvailable(),
	}
}

// RestockProduct adds sealed containers to a ledger. Restocking never touches
// the open container, and it shares the product guard with Consume so the two
// can never race into a torn sealed/open pair.
func (s *Service) RestockProduct(ctx context.Context, productID string, containers domain.ContainerCount, corr domain.Correlation) (domain.ProductLedger, domain.Result, error) {
	var updated domain.ProductLedger
	res, err := s.run(ctx, "restock_product", func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.store.RunInTransaction(ctx, productID, func(tx domain.Transaction) error {
			if containers <= 0 {
				return fmt.Errorf("restock requires a positive container count, got %d", containers)
			}
			var err error
			updated, err = tx.UpdateLedger(func(l *domain.ProductLedger) error {
				l.SealedContainers += containers
				return nil
			})
			return err
		})
		if err == nil {
			s.logger.Info("product restocked",
				"product_id", productID,
				"containers", int(containers),
				"sealed_containers", int(updated.SealedContainers),
				"sale_id", corr.SaleID,
				"actor_id", corr.ActorID,
			)
		}
		return productID, res, err
	})
	return updated, res, err
}

// UpdateThreshold tunes the sealed-container count below which a product
// classifies as low stock.
func (s *Service) UpdateThreshold(ctx context.Context, productID string, threshold domain.ContainerCount) (domain.ProductLedger, domain.Result, error) {
	var updated domain.ProductLedger
	res, err := s.run(ctx, "update_threshold", func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.store.RunInTransaction(ctx, productID, func(tx domain.Transaction) error {
			if threshold < 0 {
				return fmt.Errorf("threshold must not be negative, got %d", threshold)
			}
			var err error
			updated, err = tx.UpdateLedger(func(l *domain.ProductLedger) error {
				l.MinThreshold = threshold
				return nil
			})
			return err
		})
		return productID, res, err
	})
	return updated, res, err
}

// DeactivateProduct retires a product from classification sweeps. The ledger
// is retained for its log history and remaining stock can still be consumed,
// so a discontinued product drains normally.
func (s *Service) DeactivateProduct(ctx context.Context, productID string) (domain.ProductLedger, domain.Result, error) {
	var updated domain.ProductLedger
	res, err := s.run(ctx, "deactivate_product", func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.store.RunInTransaction(ctx, productID, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateLedger(func(l *domain.ProductLedger) error {
				l.Active = false
				return nil
			})
			return err
		})
		return productID, res, err
	})
	return updated, res, err
}

// ReactivateProduct returns a deactivated product to classification sweeps.
func (s *Service) ReactivateProduct(ctx context.Context, productID string) (domain.ProductLedger, domain.Result, error) {
	var updated domain.ProductLedger
	res, err := s.run(ctx, "reactivate_product", func(ctx context.Context) (string, domain.Result, error) {
		res, err := s.store.RunInTransaction(ctx, productID, func(tx domain.Transaction) error {
			var err error
			updated, err = tx.UpdateLedger(func(l *domain.ProductLedger) error {
				l.Active = true
				return nil
			})
			return err
		})
		return productID, res, err
	})
	return updated, res, err
}

// Ledger returns the current ledger state for one product.
func (s *Service) Ledger(productID string) (domain.ProductLedger, bool) {
	return s.store.GetLedger(productID)
}

// Ledgers lists all product ledgers ordered by product id.
func (s *Service) Ledgers() []domain.ProductLedger {
	return s.store.ListLedgers()
}

// ConsumptionHistory returns up to limit log entries for a product in
// sequence order. A non-positive limit returns the full history.
func (s *Service) ConsumptionHistory(ctx context.Context, productID string, limit int) ([]domain.ConsumptionEntry, error) {
	if s.log == nil {
		return nil, nil
	}
	return s.log.List(ctx, productID, limit)
}

// CheckAvailability reports whether each requirement can be met by current
// stock. The check is a pure dry run over one consistent snapshot: nothing is
// consumed and no container is opened. Repeated requirements for the same
// product accumulate against a single remaining balance.
func (s *Service) CheckAvailability(ctx context.Context, requirements []domain.Requirement) (domain.AvailabilityReport, error) {
	var report domain.AvailabilityReport
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		report = domain.BuildAvailabilityReport(view.FindLedger, requirements)
		return nil
	})
	if err != nil {
		return domain.AvailabilityReport{}, err
	}
	return report, nil
}

// Classify returns the stock status for one product. Deactivated products
// stay individually classifiable.
func (s *Service) Classify(ctx context.Context, productID string) (domain.StockStatus, error) {
	var status domain.StockStatus
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		ledger, ok := view.FindLedger(productID)
		if !ok {
			return domain.UnknownProductError{ProductID: productID}
		}
		status = ledger.StockStatus()
		return nil
	})
	if err != nil {
		return "", err
	}
	return status, nil
}

// ClassifyAll sweeps every active ledger and returns alerts for products
// below good stock, worst category first and by product id within a category
// so repeated sweeps stay stable.
func (s *Service) ClassifyAll(ctx context.Context) ([]domain.ProductAlert, error) {
	var alerts []domain.ProductAlert
	err := s.store.View(ctx, func(view domain.TransactionView) error {
		for _, ledger := range view.ListLedgers() {
			if !ledger.Active {
				continue
			}
			status := ledger.StockStatus()
			if status == domain.StockGood {
				continue
			}
			alerts = append(alerts, domain.ProductAlert{
				ProductID:        ledger.ProductID,
				Name:             ledger.Name,
				Status:           status,
				SealedContainers: ledger.SealedContainers,
				OpenRemaining:    ledger.OpenRemaining,
				TotalAvailable:   ledger.TotalAvailable(),
				MinThreshold:     ledger.MinThreshold,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].Status.Rank() != alerts[j].Status.Rank() {
			return alerts[i].Status.Rank() > alerts[j].Status.Rank()
		}
		return alerts[i].ProductID < alerts[j].ProductID
	})
	return alerts, nil
}
