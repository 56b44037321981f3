package documents

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type lineRequest struct {
	ArticleID      int64           `json:"article_id" validate:"required,gt=0"`
	CategoryID     int64           `json:"category_id"`
	WarehouseID    int64           `json:"warehouse_id"`
	SrcWarehouseID int64           `json:"src_warehouse_id"`
	DstWarehouseID int64           `json:"dst_warehouse_id"`
	Description    string          `json:"description"`
	Quantity       decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
}

type createRequest struct {
	DocTypeCode    string        `json:"doc_type" validate:"required"`
	PointOfSale    int           `json:"point_of_sale" validate:"required,gt=0"`
	CounterpartyID int64         `json:"counterparty_id"`
	WarehouseID    int64         `json:"warehouse_id"`
	Currency       string        `json:"currency" validate:"required,len=3"`
	IssuedAt       time.Time     `json:"issued_at"`
	OriginID       uuid.UUID     `json:"origin_id"`
	ManualNumber   int64         `json:"manual_number"`
	Lines          []lineRequest `json:"lines" validate:"required,min=1,dive"`
}

type lineResponse struct {
	ID          uuid.UUID       `json:"id"`
	ArticleID   int64           `json:"article_id"`
	WarehouseID int64           `json:"warehouse_id,omitempty"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
}

type documentResponse struct {
	ID                uuid.UUID                  `json:"id"`
	DocTypeCode       string                     `json:"doc_type"`
	Number            string                     `json:"number,omitempty"`
	State             State                      `json:"state"`
	CounterpartyID    int64                      `json:"counterparty_id,omitempty"`
	IssuedAt          time.Time                  `json:"issued_at"`
	Currency          string                     `json:"currency"`
	Subtotal          string                     `json:"subtotal"`
	Taxes             map[string]string          `json:"taxes"`
	Total             string                     `json:"total"`
	Outstanding       string                     `json:"outstanding"`
	OriginID          *uuid.UUID                 `json:"origin_id,omitempty"`
	AuthorizationCode string                     `json:"authorization_code,omitempty"`
	FiscalRejection   string                     `json:"fiscal_rejection,omitempty"`
	Lines             []lineResponse             `json:"lines,omitempty"`
}

func toResponse(doc Document, letter string) documentResponse {
	resp := documentResponse{
		ID:                doc.ID,
		DocTypeCode:       doc.DocTypeCode,
		State:             doc.State,
		CounterpartyID:    doc.CounterpartyID,
		IssuedAt:          doc.IssuedAt,
		Currency:          doc.Currency,
		Subtotal:          doc.Subtotal.StringFixed(2),
		Taxes:             map[string]string{},
		Total:             doc.Total.StringFixed(2),
		Outstanding:       doc.Outstanding.StringFixed(2),
		AuthorizationCode: doc.AuthorizationCode,
		FiscalRejection:   doc.FiscalRejection,
	}
	if doc.Number > 0 {
		resp.Number = doc.FormattedNumber(letter)
	}
	for name, amount := range doc.TaxBreakdown {
		resp.Taxes[name] = amount.StringFixed(2)
	}
	if doc.OriginID != uuid.Nil {
		origin := doc.OriginID
		resp.OriginID = &origin
	}
	for _, l := range doc.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:          l.ID,
			ArticleID:   l.ArticleID,
			WarehouseID: l.WarehouseID,
			Description: l.Description,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
		})
	}
	return resp
}

func (r createRequest) toInput() CreateInput {
	in := CreateInput{
		DocTypeCode:    r.DocTypeCode,
		PointOfSale:    r.PointOfSale,
		CounterpartyID: r.CounterpartyID,
		WarehouseID:    r.WarehouseID,
		Currency:       r.Currency,
		IssuedAt:       r.IssuedAt,
		OriginID:       r.OriginID,
		ManualNumber:   r.ManualNumber,
	}
	for _, l := range r.Lines {
		in.Lines = append(in.Lines, Line{
			ArticleID:      l.ArticleID,
			CategoryID:     l.CategoryID,
			WarehouseID:    l.WarehouseID,
			SrcWarehouseID: l.SrcWarehouseID,
			DstWarehouseID: l.DstWarehouseID,
			Description:    l.Description,
			Quantity:       l.Quantity,
			UnitPrice:      l.UnitPrice,
		})
	}
	return in
}
