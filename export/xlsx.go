package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/brunobiangulo/gosimulado/question"
)

// SheetName is the worksheet holding the rows.
const SheetName = "questoes"

// WriteXLSX writes the rows to a new workbook at path, header in row 1.
func WriteXLSX(path string, rows []question.Row) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), SheetName); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(SheetName)
	if err != nil {
		return fmt.Errorf("opening sheet writer: %w", err)
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return err
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		rec := Record(r)
		values := make([]interface{}, len(rec))
		for j, v := range rec {
			values[j] = v
		}
		// Numeric columns stay numeric for spreadsheet users.
		values[0] = r.ID
		values[11] = r.ExamNumber
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("writing row %d: %w", r.ID, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("saving XLSX: %w", err)
	}
	return nil
}

// ReadXLSX reads rows back from the SheetName worksheet, or the first sheet
// when it is absent.
func ReadXLSX(path string) ([]question.Row, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening XLSX: %w", err)
	}
	defer f.Close()

	sheet := SheetName
	if idx, err := f.GetSheetIndex(sheet); err != nil || idx < 0 {
		sheet = f.GetSheetName(0)
	}

	records, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %s: %w", sheet, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no data found in XLSX")
	}
	if err := checkHeader(records[0]); err != nil {
		return nil, err
	}

	var rows []question.Row
	for i, rec := range records[1:] {
		// GetRows trims trailing empty cells.
		for len(rec) < len(Header) {
			rec = append(rec, "")
		}
		row, err := FromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("sheet row %d: %w", i+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
