package ingest

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"

	"landplots/internal/types"
)

// parseXLSX reads the first worksheet of a workbook. The layout is the same
// as CSV: a header row, then one parcel per row.
func (p *Parser) parseXLSX(content []byte, source types.Source) (Result, error) {
	var res Result
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return res, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return res, errors.New("workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return res, fmt.Errorf("read sheet %s: %w", sheets[0], err)
	}
	p.parseRows(rows, source, &res)
	return res, nil
}
