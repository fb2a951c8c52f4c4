package inventory

import (
	"encoding/csv"
	"io"
	"strconv"
)

var csvHeader = []string{"id", "name", "category", "quantity", "price", "value", "last_updated"}

// WriteCSV exports the product table, one row per product sorted by ID.
func (s *Store) WriteCSV(w io.Writer) error {
	products, err := s.Products()
	if err != nil {
		return err
	}
	return WriteProductsCSV(w, products)
}

// WriteProductsCSV writes products in the export layout used by WriteCSV.
func WriteProductsCSV(w io.Writer, products []Product) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, p := range products {
		row := []string{
			p.ID,
			p.Name,
			p.Category,
			strconv.Itoa(p.Quantity),
			strconv.FormatFloat(p.Price, 'f', 2, 64),
			strconv.FormatFloat(p.Value(), 'f', 2, 64),
			formatTimestamp(p.LastUpdated),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
