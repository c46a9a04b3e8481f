package stats

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const SheetName = "Statistics"

// WriteXLSX writes a single-sheet workbook: a header row, one row per
// label and a trailing totals row.
func WriteXLSX(w io.Writer, a Aligned) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	header := append([]any{"label"}, toAny(a.Names)...)
	if err := setRow(f, 1, header); err != nil {
		return err
	}
	for i, label := range a.Labels {
		row := []any{label}
		for _, name := range a.Names {
			row = append(row, a.Values(name)[i])
		}
		if err := setRow(f, i+2, row); err != nil {
			return err
		}
	}
	totals := []any{"total"}
	for _, name := range a.Names {
		totals = append(totals, sum(a.Values(name)))
	}
	if err := setRow(f, len(a.Labels)+2, totals); err != nil {
		return err
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(SheetName, cell, &values)
}

func toAny(in []string) []any {
	out := make([]any, len(in))
	for i, s := range in {
		out[i] = s
	}
	return out
}
