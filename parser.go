package bqetl

import (
	"context"
	"encoding/csv"
	"errors"
	"io"

	"github.com/extrame/xls"
	"gitlab.com/osaki-lab/iowrapper"
	"golang.org/x/xerrors"
)

// Parser parses files from storage into rows.
type Parser func(context.Context, io.Reader) ([][]string, error)

var errNoSheet = errors.New("no sheet found")

// CSVParser provides a parser to parse CSV files. Rows may have different
// numbers of fields.
func CSVParser() Parser {
	return func(_ context.Context, r io.Reader) ([][]string, error) {
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		return cr.ReadAll()
	}
}

// XLSParser provides a parser to parse the given sheet of legacy Excel
// (.xls) files.
func XLSParser(sheet int) Parser {
	return func(_ context.Context, r io.Reader) ([][]string, error) {
		wb, err := xls.OpenReader(iowrapper.NewSeeker(r), "utf-8")
		if err != nil {
			return nil, xerrors.Errorf("failed to open xls file: %w", err)
		}

		s := wb.GetSheet(sheet)
		if s == nil {
			return nil, errNoSheet
		}

		rows := [][]string{}

		for i := 0; i <= int(s.MaxRow); i++ {
			row, ok := xlsRow(s, i)
			if !ok || row == nil {
				continue
			}

			record := []string{}
			for col := row.FirstCol(); col < row.LastCol(); col++ {
				record = append(record, row.Col(col))
			}

			rows = append(rows, record)
		}

		return rows, nil
	}
}

// xlsRow recovers from the panics xls raises for missing rows.
func xlsRow(sheet *xls.WorkSheet, i int) (r *xls.Row, ok bool) {
	defer func() {
		if recover() != nil {
			r, ok = nil, false
		}
	}()

	return sheet.Row(i), true
}
