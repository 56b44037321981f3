package documents

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/austral-erp/austral-erp/internal/numbering"
	"github.com/austral-erp/austral-erp/internal/shared"
	"github.com/austral-erp/austral-erp/internal/stock"
	"github.com/austral-erp/austral-erp/internal/tax"
)

// RepositoryPort abstracts document persistence. WithTx runs fn inside one
// database transaction; every side effect of a transition shares it.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
	Get(ctx context.Context, id uuid.UUID) (Document, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Document, error)
	Create(ctx context.Context, doc Document) error
	UpdateOnConfirm(ctx context.Context, tx pgx.Tx, doc Document) error
	UpdateOnVoid(ctx context.Context, tx pgx.Tx, doc Document) error
	List(ctx context.Context, p shared.Pagination) ([]Document, error)
}

// NumberingPort issues or validates document numbers.
type NumberingPort interface {
	Allocate(ctx context.Context, tx pgx.Tx, key numbering.SeriesKey) (int64, error)
	ValidateManual(ctx context.Context, tx pgx.Tx, key numbering.SeriesKey, number int64) error
}

// TaxPort computes the tax breakdown for a set of lines.
type TaxPort interface {
	Compute(ctx context.Context, lines []tax.Line, docTypeCode string, scope tax.Scope, asOf time.Time) (tax.Breakdown, error)
}

// StockPort applies and reverts a document's stock effect.
type StockPort interface {
	Apply(ctx context.Context, tx pgx.Tx, req stock.ApplyRequest) error
	Revert(ctx context.Context, tx pgx.Tx, req stock.RevertRequest) error
}

// TreasuryPort reverses fund movements linked to a document.
type TreasuryPort interface {
	RevertForDocument(ctx context.Context, tx pgx.Tx, documentID uuid.UUID) error
}

// Dispatcher hands a confirmed electronic document to the background
// authorization worker. Called after commit only.
type Dispatcher interface {
	EnqueueAuthorization(ctx context.Context, docID uuid.UUID) error
}

// Service drives the document lifecycle.
type Service struct {
	repo       RepositoryPort
	registry   *Registry
	numbers    NumberingPort
	taxes      TaxPort
	stock      StockPort
	treasury   TreasuryPort
	dispatcher Dispatcher
	logger     *slog.Logger
	nowFn      func() time.Time
}

// NewService builds Service. dispatcher may be nil when no worker runs.
func NewService(repo RepositoryPort, registry *Registry, numbers NumberingPort, taxes TaxPort, stockSvc StockPort, treasury TreasuryPort, dispatcher Dispatcher, logger *slog.Logger) *Service {
	return &Service{
		repo:       repo,
		registry:   registry,
		numbers:    numbers,
		taxes:      taxes,
		stock:      stockSvc,
		treasury:   treasury,
		dispatcher: dispatcher,
		logger:     logger,
		nowFn:      time.Now,
	}
}

// CreateInput describes a new draft.
type CreateInput struct {
	DocTypeCode    string
	PointOfSale    int
	CounterpartyID int64
	WarehouseID    int64
	Currency       string
	IssuedAt       time.Time
	OriginID       uuid.UUID
	// ManualNumber skips allocation on confirm when positive.
	ManualNumber int64
	Lines        []Line
}

// CreateDraft persists a draft document. Totals stay zero until confirmation.
func (s *Service) CreateDraft(ctx context.Context, in CreateInput) (Document, error) {
	cfg, err := s.registry.Get(in.DocTypeCode)
	if err != nil {
		return Document{}, err
	}
	if in.PointOfSale <= 0 {
		return Document{}, &shared.ValidationError{Field: "point_of_sale", Msg: "must be positive"}
	}
	if _, err := shared.NewMoney(decimal.Zero, in.Currency); err != nil {
		return Document{}, err
	}
	if cfg.Credit && in.OriginID == uuid.Nil {
		return Document{}, &shared.ValidationError{Field: "origin_id", Msg: "credit notes must reference an origin document"}
	}
	now := s.nowFn()
	issuedAt := in.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = now
	}
	doc := Document{
		ID:             uuid.New(),
		DocTypeCode:    cfg.Code,
		PointOfSale:    in.PointOfSale,
		Number:         in.ManualNumber,
		State:          StateDraft,
		CounterpartyID: in.CounterpartyID,
		WarehouseID:    in.WarehouseID,
		IssuedAt:       issuedAt,
		Currency:       in.Currency,
		OriginID:       in.OriginID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	for _, l := range in.Lines {
		l.ID = uuid.New()
		doc.Lines = append(doc.Lines, l)
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		return Document{}, fmt.Errorf("documents: create: %w", err)
	}
	return doc, nil
}

// Get returns a document by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Document, error) {
	return s.repo.Get(ctx, id)
}

// List returns recent documents, newest first.
func (s *Service) List(ctx context.Context, page, perPage int) ([]Document, error) {
	return s.repo.List(ctx, shared.NewPagination(page, perPage, 0))
}

// Confirm moves a draft to Confirmed. Number allocation, totals, tax
// breakdown, stock application and the outstanding balance all land in the
// same transaction; any failure rolls everything back and the document stays
// Draft. When the type is electronic the fiscal authorization is dispatched
// after commit, never inside the transaction.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (Document, error) {
	var out Document
	var electronic bool
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		doc, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if doc.State != StateDraft {
			return fmt.Errorf("%w: cannot confirm a %s document", ErrInvalidTransition, doc.State)
		}
		cfg, err := s.registry.Get(doc.DocTypeCode)
		if err != nil {
			return err
		}
		if err := validateLines(doc.Lines); err != nil {
			return err
		}

		key := numbering.SeriesKey{SeriesType: cfg.Code, PointOfSale: doc.PointOfSale}
		if doc.Number > 0 {
			if err := s.numbers.ValidateManual(ctx, tx, key, doc.Number); err != nil {
				return err
			}
		} else {
			number, err := s.numbers.Allocate(ctx, tx, key)
			if err != nil {
				return err
			}
			doc.Number = number
		}

		subtotal := decimal.Zero
		for _, l := range doc.Lines {
			subtotal = subtotal.Add(l.Subtotal())
		}
		doc.Subtotal = shared.Round2(subtotal)
		breakdown, err := s.taxes.Compute(ctx, doc.TaxLines(), cfg.Code, cfg.Scope, doc.IssuedAt)
		if err != nil {
			return err
		}
		doc.TaxBreakdown = breakdown
		doc.Total = doc.Subtotal.Add(breakdown.Total())

		if cfg.Movement != stock.MovementNone {
			if err := s.stock.Apply(ctx, tx, s.applyRequest(doc, cfg)); err != nil {
				return err
			}
			doc.StockApplied = true
		}

		doc.Outstanding = doc.Total
		doc.State = StateConfirmed
		doc.UpdatedAt = s.nowFn()
		if err := s.repo.UpdateOnConfirm(ctx, tx, doc); err != nil {
			return err
		}
		out = doc
		electronic = cfg.Electronic
		return nil
	})
	if err != nil {
		return Document{}, err
	}

	s.logger.Info("document confirmed",
		slog.String("document_id", out.ID.String()),
		slog.String("doc_type", out.DocTypeCode),
		slog.Int64("number", out.Number),
		slog.String("total", out.Total.StringFixed(2)))

	if electronic && s.dispatcher != nil {
		if err := s.dispatcher.EnqueueAuthorization(ctx, out.ID); err != nil {
			// The document is committed; authorization can be re-requested.
			s.logger.Error("enqueue fiscal authorization",
				slog.String("document_id", out.ID.String()),
				slog.String("error", err.Error()))
		}
	}
	return out, nil
}

// RequestAuthorization re-enqueues fiscal authorization for a confirmed
// electronic document, the manual retry after a transient authority failure.
func (s *Service) RequestAuthorization(ctx context.Context, id uuid.UUID) error {
	doc, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if doc.State != StateConfirmed {
		return fmt.Errorf("%w: only confirmed documents can be authorized", ErrInvalidTransition)
	}
	cfg, err := s.registry.Get(doc.DocTypeCode)
	if err != nil {
		return err
	}
	if !cfg.Electronic {
		return &shared.ValidationError{Field: "doc_type", Msg: "document type is not electronic"}
	}
	if s.dispatcher == nil {
		return fmt.Errorf("documents: no authorization dispatcher configured: %w", shared.ErrMissingConfiguration)
	}
	return s.dispatcher.EnqueueAuthorization(ctx, doc.ID)
}

// Void moves a confirmed document to Voided, reversing its stock effect and
// any fund movements settled against it in the same transaction.
func (s *Service) Void(ctx context.Context, id uuid.UUID) (Document, error) {
	var out Document
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		doc, err := s.repo.GetForUpdate(ctx, tx, id)
		if err != nil {
			return err
		}
		if doc.State != StateConfirmed {
			return fmt.Errorf("%w: cannot void a %s document", ErrInvalidTransition, doc.State)
		}
		if err := s.stock.Revert(ctx, tx, stock.RevertRequest{
			SourceType: sourceType,
			SourceID:   doc.ID,
			Applied:    doc.StockApplied,
		}); err != nil {
			return err
		}
		doc.StockApplied = false
		if err := s.treasury.RevertForDocument(ctx, tx, doc.ID); err != nil {
			return err
		}
		doc.Outstanding = decimal.Zero
		doc.State = StateVoided
		doc.UpdatedAt = s.nowFn()
		if err := s.repo.UpdateOnVoid(ctx, tx, doc); err != nil {
			return err
		}
		out = doc
		return nil
	})
	if err != nil {
		return Document{}, err
	}
	s.logger.Info("document voided",
		slog.String("document_id", out.ID.String()),
		slog.String("doc_type", out.DocTypeCode))
	return out, nil
}

// sourceType tags ledger entries and fund movements originated by documents.
const sourceType = "document"

func (s *Service) applyRequest(doc Document, cfg DocType) stock.ApplyRequest {
	req := stock.ApplyRequest{
		SourceType:         sourceType,
		SourceID:           doc.ID,
		Movement:           cfg.Movement,
		DefaultWarehouseID: doc.WarehouseID,
		AlreadyApplied:     doc.StockApplied,
	}
	for _, l := range doc.Lines {
		req.Lines = append(req.Lines, stock.ApplyLine{
			ArticleID:      l.ArticleID,
			Quantity:       l.Quantity,
			WarehouseID:    l.WarehouseID,
			SrcWarehouseID: l.SrcWarehouseID,
			DstWarehouseID: l.DstWarehouseID,
		})
	}
	return req
}

func validateLines(lines []Line) error {
	if len(lines) == 0 {
		return ErrNoLines
	}
	for i, l := range lines {
		if l.ArticleID <= 0 {
			return &shared.ValidationError{Field: fmt.Sprintf("lines[%d].article_id", i), Msg: "must be positive"}
		}
		if l.Quantity.Sign() <= 0 {
			return &shared.ValidationError{Field: fmt.Sprintf("lines[%d].quantity", i), Msg: "must be positive"}
		}
		if l.UnitPrice.Sign() < 0 {
			return &shared.ValidationError{Field: fmt.Sprintf("lines[%d].unit_price", i), Msg: "cannot be negative"}
		}
	}
	return nil
}
