package ingest

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"landplots/internal/types"
)

// normalizeHeader lower-cases a header cell and replaces whitespace with '_'.
func normalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.TrimSpace(strings.ReplaceAll(h, `"`, ""))
	return strings.Join(strings.Fields(strings.ToLower(h)), "_")
}

// parseCSV reads text line by line, each line with its own quote-aware
// reader, so a broken quote cannot swallow the rows after it. Lines the
// reader rejects are skipped.
func (p *Parser) parseCSV(text string, source types.Source) Result {
	var res Result

	var records [][]string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		r := csv.NewReader(strings.NewReader(line))
		r.LazyQuotes = true
		r.FieldsPerRecord = -1
		r.TrimLeadingSpace = true
		rec, err := r.Read()
		if err == io.EOF {
			continue
		}
		if err != nil {
			res.skip(p.log, err.Error())
			continue
		}
		records = append(records, rec)
	}
	p.parseRows(records, source, &res)
	return res
}

// parseRows treats the first non-blank row as the header and maps every
// following row onto it. The coordinates column holds a JSON ring of
// [lat, lon] pairs; rows without a usable ring are skipped and the rest
// continue. Sheets and workbooks arrive here too.
func (p *Parser) parseRows(rows [][]string, source types.Source, res *Result) {
	var headers []string
	for len(rows) > 0 && headers == nil {
		if !blankRecord(rows[0]) {
			headers = make([]string, len(rows[0]))
			for i, h := range rows[0] {
				headers[i] = normalizeHeader(h)
			}
		}
		rows = rows[1:]
	}
	if headers == nil {
		return
	}

	batch := p.batchID()
	row := 0
	for _, rec := range rows {
		if blankRecord(rec) {
			continue
		}
		row++

		fields := make(map[string]any, len(headers))
		for i, h := range headers {
			v := ""
			if i < len(rec) {
				v = strings.TrimSpace(strings.ReplaceAll(rec[i], `"`, ""))
			}
			fields[h] = v
		}

		ring, err := decodeRing(fields["coordinates"])
		if err != nil {
			res.skip(p.log, fmt.Sprintf("row %d: %v", row, err), zap.Int("row", row))
			continue
		}

		res.Parcels = append(res.Parcels, types.Parcel{
			ID:              p.newID(source, batch, row),
			CadastralNumber: orDefault(firstString(fields, cadastralKeys...), fmt.Sprintf("CSV_%d", row)),
			Address:         orDefault(firstString(fields, "address"), defaultAddress),
			Area:            firstAmount(fields, "area"),
			Purpose:         orDefault(firstString(fields, "purpose"), defaultPurpose),
			Coordinates:     []types.Ring{ring},
			Color:           p.color(),
			Value:           firstAmount(fields, valueKeys...),
			RentIncome:      firstAmount(fields, rentKeys...),
		})
	}
}

func blankRecord(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// decodeRing decodes a JSON ring. Absent, malformed or empty input is an error.
func decodeRing(v any) (types.Ring, error) {
	s, _ := v.(string)
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("missing coordinates")
	}
	var ring types.Ring
	if err := json.Unmarshal([]byte(s), &ring); err != nil {
		return nil, fmt.Errorf("bad coordinates: %w", err)
	}
	if len(ring) == 0 {
		return nil, errors.New("empty coordinates")
	}
	return ring, nil
}
