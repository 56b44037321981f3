package numbering

import (
	"fmt"
	"time"
)

// SeriesKey identifies a numbering stream: one document type issued from one
// point of sale.
type SeriesKey struct {
	SeriesType  string
	PointOfSale int
}

func (k SeriesKey) String() string {
	return fmt.Sprintf("%s/%d", k.SeriesType, k.PointOfSale)
}

// Counter is the persistent last-issued-number row for a series.
type Counter struct {
	Series     SeriesKey
	LastNumber int64
	UpdatedAt  time.Time
}

// FormatNumber renders a document number in the official
// "{letter} {pos:05d}-{number:08d}" form, e.g. "A 00003-00000105".
func FormatNumber(letter string, pointOfSale int, number int64) string {
	return fmt.Sprintf("%s %05d-%08d", letter, pointOfSale, number)
}
