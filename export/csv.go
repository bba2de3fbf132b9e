// Package export writes extracted question rows to files and remote tables.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/brunobiangulo/gosimulado/question"
)

// Header is the column order of every tabular output.
var Header = []string{
	"id", "id_questao_origem", "tema", "enunciado",
	"alternativa_a", "alternativa_b", "alternativa_c", "alternativa_d",
	"resposta_correta", "ha_imagem", "comentario", "simulado_numero",
}

// YesNo renders a flag as the "SIM"/"NAO" strings of the ha_imagem column.
func YesNo(b bool) string {
	if b {
		return "SIM"
	}
	return "NAO"
}

// Record returns the row's fields in Header order.
func Record(r question.Row) []string {
	return []string{
		strconv.Itoa(r.ID),
		r.SourceID,
		r.Theme,
		r.Statement,
		r.A, r.B, r.C, r.D,
		r.CorrectAnswer,
		YesNo(r.HasImage),
		r.Comment,
		strconv.Itoa(r.ExamNumber),
	}
}

// FromRecord parses a Header-ordered record back into a row.
func FromRecord(rec []string) (question.Row, error) {
	if len(rec) != len(Header) {
		return question.Row{}, fmt.Errorf("record has %d fields, want %d", len(rec), len(Header))
	}
	id, err := strconv.Atoi(strings.TrimSpace(rec[0]))
	if err != nil {
		return question.Row{}, fmt.Errorf("id %q: %w", rec[0], err)
	}
	exam, err := strconv.Atoi(strings.TrimSpace(rec[11]))
	if err != nil {
		return question.Row{}, fmt.Errorf("simulado_numero %q: %w", rec[11], err)
	}
	return question.Row{
		ID:            id,
		SourceID:      rec[1],
		Theme:         rec[2],
		Statement:     rec[3],
		A:             rec[4],
		B:             rec[5],
		C:             rec[6],
		D:             rec[7],
		CorrectAnswer: rec[8],
		HasImage:      strings.EqualFold(strings.TrimSpace(rec[9]), "SIM"),
		Comment:       rec[10],
		ExamNumber:    exam,
	}, nil
}

// WriteCSV writes the header and one record per row.
func WriteCSV(w io.Writer, rows []question.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(Record(r)); err != nil {
			return fmt.Errorf("writing row %d: %w", r.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteCSVFile overwrites path with the rows.
func WriteCSVFile(path string, rows []question.Row) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating csv: %w", err)
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadCSV reads rows written by WriteCSV. The header must match Header.
func ReadCSV(r io.Reader) ([]question.Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(Header)

	head, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	if err := checkHeader(head); err != nil {
		return nil, err
	}

	var rows []question.Row
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		row, err := FromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", len(rows)+2, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// ReadCSVFile opens path and reads its rows.
func ReadCSVFile(path string) ([]question.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening csv: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

func checkHeader(head []string) error {
	if len(head) != len(Header) {
		return fmt.Errorf("header has %d columns, want %d", len(head), len(Header))
	}
	for i, h := range head {
		// Excel and some editors prepend a BOM to the first cell.
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if strings.TrimSpace(h) != Header[i] {
			return fmt.Errorf("header column %d is %q, want %q", i, h, Header[i])
		}
	}
	return nil
}
