package stock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/austral-erp/austral-erp/internal/platform/db"
	"github.com/austral-erp/austral-erp/internal/shared"
)

// TxRepository exposes the ledger operations that must share the caller's
// transaction with numbering and the document row.
type TxRepository interface {
	GetBalanceForUpdate(ctx context.Context, tx pgx.Tx, articleID, warehouseID int64, kind Kind) (Balance, error)
	GetBalance(ctx context.Context, articleID, warehouseID int64, kind Kind) (Balance, error)
	UpsertBalance(ctx context.Context, tx pgx.Tx, balance Balance) error
	InsertEntry(ctx context.Context, tx pgx.Tx, entry LedgerEntry) error
	ListEntriesBySource(ctx context.Context, tx pgx.Tx, sourceType string, sourceID uuid.UUID) ([]LedgerEntry, error)
}

// WarehousePort resolves the system principal warehouse.
type WarehousePort interface {
	PrincipalWarehouseID(ctx context.Context) (int64, error)
}

// AuditPort records ledger mutations for the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service is the stock ledger: every balance change goes through Adjust, and
// document-level effects go through the Apply/Revert pair.
type Service struct {
	repo       TxRepository
	warehouses WarehousePort
	audit      AuditPort
}

// NewService builds Service.
func NewService(repo TxRepository, warehouses WarehousePort, audit AuditPort) *Service {
	return &Service{repo: repo, warehouses: warehouses, audit: audit}
}

// Adjust locks the balance row, applies the delta and appends a ledger entry.
// With a Direction set, the absolute value of the quantity is applied in that
// direction; otherwise the quantity is taken as a signed delta.
func (s *Service) Adjust(ctx context.Context, tx pgx.Tx, input AdjustInput) (Balance, error) {
	if input.ArticleID == 0 || input.WarehouseID == 0 {
		return Balance{}, &shared.ValidationError{Msg: "stock adjustment requires article and warehouse"}
	}
	delta := input.Quantity
	switch input.Direction {
	case DirectionAdd:
		delta = input.Quantity.Abs()
	case DirectionSubtract:
		delta = input.Quantity.Abs().Neg()
	}
	if delta.IsZero() {
		return Balance{}, ErrInvalidQuantity
	}
	kind := input.Kind
	if kind == "" {
		kind = KindOnHand
	}

	balance, err := s.repo.GetBalanceForUpdate(ctx, tx, input.ArticleID, input.WarehouseID, kind)
	if err != nil {
		if db.IsErrCode(err, db.LockNotAvailable) {
			return Balance{}, &shared.ConflictError{
				Resource: "stock balance",
				Key:      fmt.Sprintf("%d/%d", input.ArticleID, input.WarehouseID),
			}
		}
		return Balance{}, fmt.Errorf("stock: lock balance: %w", err)
	}

	balance.Quantity = balance.Quantity.Add(delta)
	balance.UpdatedAt = time.Now().UTC()
	if err := s.repo.UpsertBalance(ctx, tx, balance); err != nil {
		return Balance{}, fmt.Errorf("stock: persist balance: %w", err)
	}

	entry := LedgerEntry{
		ID:          uuid.New(),
		ArticleID:   input.ArticleID,
		WarehouseID: input.WarehouseID,
		Kind:        kind,
		Quantity:    delta,
		SourceType:  input.SourceType,
		SourceID:    input.SourceID,
		ReversalOf:  input.ReversalOf,
		PostedAt:    balance.UpdatedAt,
	}
	if err := s.repo.InsertEntry(ctx, tx, entry); err != nil {
		return Balance{}, fmt.Errorf("stock: append entry: %w", err)
	}
	return balance, nil
}

// Apply posts a document's stock effect. It is a no-op when the document's
// stock flag is already set, or when it carries no lines yet: the caller is
// expected to retry once line rows exist.
func (s *Service) Apply(ctx context.Context, tx pgx.Tx, req ApplyRequest) error {
	if req.AlreadyApplied || len(req.Lines) == 0 {
		return nil
	}
	if req.Movement == MovementNone {
		return nil
	}

	for _, line := range req.Lines {
		if req.Movement == MovementTransfer {
			if err := s.applyTransferLine(ctx, tx, req, line); err != nil {
				return err
			}
			continue
		}
		warehouseID, err := s.resolveWarehouse(ctx, line.WarehouseID, req.DefaultWarehouseID, line.ArticleID)
		if err != nil {
			return err
		}
		delta := line.Quantity.Abs()
		if req.Movement.Sign() < 0 {
			delta = delta.Neg()
		}
		_, err = s.Adjust(ctx, tx, AdjustInput{
			ArticleID:   line.ArticleID,
			WarehouseID: warehouseID,
			Quantity:    delta,
			SourceType:  req.SourceType,
			SourceID:    req.SourceID,
		})
		if err != nil {
			return err
		}
	}
	s.recordAudit(ctx, "stock:apply", req.SourceType, req.SourceID, len(req.Lines))
	return nil
}

// applyTransferLine adjusts both legs of a transfer inside the same
// transaction: origin subtracts, destination adds.
func (s *Service) applyTransferLine(ctx context.Context, tx pgx.Tx, req ApplyRequest, line ApplyLine) error {
	if line.SrcWarehouseID == 0 || line.DstWarehouseID == 0 {
		return &shared.MissingWarehouseError{ArticleID: line.ArticleID}
	}
	qty := line.Quantity.Abs()
	if _, err := s.Adjust(ctx, tx, AdjustInput{
		ArticleID:   line.ArticleID,
		WarehouseID: line.SrcWarehouseID,
		Quantity:    qty.Neg(),
		SourceType:  req.SourceType,
		SourceID:    req.SourceID,
	}); err != nil {
		return err
	}
	_, err := s.Adjust(ctx, tx, AdjustInput{
		ArticleID:   line.ArticleID,
		WarehouseID: line.DstWarehouseID,
		Quantity:    qty,
		SourceType:  req.SourceType,
		SourceID:    req.SourceID,
	})
	return err
}

// Revert applies the exact algebraic inverse of every entry previously
// recorded for the source document. No-op when the flag is not set.
func (s *Service) Revert(ctx context.Context, tx pgx.Tx, req RevertRequest) error {
	if !req.Applied {
		return nil
	}
	entries, err := s.repo.ListEntriesBySource(ctx, tx, req.SourceType, req.SourceID)
	if err != nil {
		return fmt.Errorf("stock: list entries: %w", err)
	}
	reversed := make(map[uuid.UUID]bool, len(entries))
	for _, entry := range entries {
		if entry.ReversalOf != uuid.Nil {
			reversed[entry.ReversalOf] = true
		}
	}
	for _, entry := range entries {
		if entry.ReversalOf != uuid.Nil || reversed[entry.ID] {
			continue
		}
		_, err := s.Adjust(ctx, tx, AdjustInput{
			ArticleID:   entry.ArticleID,
			WarehouseID: entry.WarehouseID,
			Kind:        entry.Kind,
			Quantity:    entry.Quantity.Neg(),
			SourceType:  entry.SourceType,
			SourceID:    entry.SourceID,
			ReversalOf:  entry.ID,
		})
		if err != nil {
			return err
		}
	}
	s.recordAudit(ctx, "stock:revert", req.SourceType, req.SourceID, len(entries))
	return nil
}

func (s *Service) resolveWarehouse(ctx context.Context, lineWarehouse, docWarehouse, articleID int64) (int64, error) {
	if lineWarehouse != 0 {
		return lineWarehouse, nil
	}
	if docWarehouse != 0 {
		return docWarehouse, nil
	}
	if s.warehouses != nil {
		id, err := s.warehouses.PrincipalWarehouseID(ctx)
		if err != nil {
			return 0, fmt.Errorf("stock: resolve principal warehouse: %w", err)
		}
		if id != 0 {
			return id, nil
		}
	}
	return 0, &shared.MissingWarehouseError{ArticleID: articleID}
}

func (s *Service) recordAudit(ctx context.Context, action, sourceType string, sourceID uuid.UUID, lines int) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		Action:   action,
		Entity:   sourceType,
		EntityID: sourceID.String(),
		Meta:     map[string]any{"lines": lines},
	})
}

// BalanceOf reads the on-hand balance outside any document transition,
// e.g. for API reads. No lock is taken.
func (s *Service) BalanceOf(ctx context.Context, articleID, warehouseID int64) (decimal.Decimal, error) {
	balance, err := s.repo.GetBalance(ctx, articleID, warehouseID, KindOnHand)
	if err != nil {
		return decimal.Zero, err
	}
	return balance.Quantity, nil
}
