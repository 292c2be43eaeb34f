package batch

import (
	"encoding/csv"
	stderrors "errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"credit-prediction/internal/common/errors"
)

// Table is a parsed CSV upload: a header row and data rows of equal width.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadTable parses r as CSV. Zero bytes, a bare BOM or a blank header line is
// EMPTY_UPLOAD; any structural problem is UNREADABLE_FILE.
func ReadTable(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = false

	header, err := cr.Read()
	if stderrors.Is(err, io.EOF) {
		return nil, errors.NewEmptyUploadError()
	}
	if err != nil {
		return nil, errors.NewUnreadableFileError(err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	if len(header) == 1 && strings.TrimSpace(header[0]) == "" {
		return nil, errors.NewEmptyUploadError()
	}
	for i, h := range header {
		if !utf8.ValidString(h) {
			return nil, errors.NewUnreadableFileError(fmt.Errorf("header column %d is not valid UTF-8", i+1))
		}
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.NewUnreadableFileError(err)
	}
	return &Table{Header: header, Rows: rows}, nil
}

// Write encodes the table as CSV.
func (t *Table) Write(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	if err := cw.WriteAll(t.Rows); err != nil {
		return err
	}
	return cw.Error()
}

// ColumnIndex returns the position of the first column called name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}
