// Package csvio reads header-mapped CSV uploads in any charset known to
// the WHATWG encoding index.
package csvio

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const DefaultCharset = "utf-8"

// Record is one data row keyed by header name. Line is the 1-based data
// row number (the header is not counted).
type Record struct {
	Line   int
	Fields map[string]string
}

func (r Record) Get(name string) string { return strings.TrimSpace(r.Fields[name]) }

// Decode wraps r so it yields UTF-8. A leading byte order mark overrides
// the declared charset.
func Decode(r io.Reader, charset string) (io.Reader, error) {
	if strings.TrimSpace(charset) == "" {
		charset = DefaultCharset
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", charset, err)
	}
	return transform.NewReader(r, unicode.BOMOverride(enc.NewDecoder())), nil
}

// ReadAll decodes r and returns its data rows. Every name in required must
// be present in the header.
func ReadAll(r io.Reader, charset string, required ...string) ([]Record, error) {
	dec, err := Decode(r, charset)
	if err != nil {
		return nil, err
	}
	cr := csv.NewReader(dec)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, errors.New("csv: empty file")
	}
	if err != nil {
		return nil, fmt.Errorf("csv header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	if missing := missingColumns(header, required); len(missing) > 0 {
		return nil, fmt.Errorf("csv: missing columns: %s", strings.Join(missing, ", "))
	}

	var records []Record
	for line := 1; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", line, err)
		}
		fields := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				fields[name] = row[i]
			}
		}
		records = append(records, Record{Line: line, Fields: fields})
	}
	return records, nil
}

func missingColumns(header, required []string) []string {
	have := make(map[string]struct{}, len(header))
	for _, h := range header {
		have[h] = struct{}{}
	}
	var missing []string
	for _, r := range required {
		if _, ok := have[r]; !ok {
			missing = append(missing, r)
		}
	}
	return missing
}
