package recordstore

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
)

// legacyColumns maps the header names written by earlier versions of the
// store onto the current ones so existing stores load in place.
var legacyColumns = map[string]string{
	"ID":           ColumnID,
	"DATA-UPDATED": ColumnUpdatedAt,
	"DATA-CREATED": ColumnCreatedAt,
	"FILE-CURRENT": ColumnPayloadRef,
	"FILE-CHANGES": ColumnChangelogRef,
	"HASH":         ColumnContentHash,
	"TAGS":         ColumnTags,
}

func decodeCatalog(r io.Reader) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = len(Columns)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("catalog: missing header row")
		}
		return nil, fmt.Errorf("catalog: read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))
		if alias, ok := legacyColumns[name]; ok {
			name = alias
		}
		index[name] = i
	}
	for _, col := range Columns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("catalog: missing column %q", col)
		}
	}

	var records []Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("catalog: %w", err)
		}
		line, _ := reader.FieldPos(0)
		rec, err := decodeRow(row, index)
		if err != nil {
			return nil, fmt.Errorf("catalog: line %d: %w", line, err)
		}
		records = append(records, rec)
	}
}

func decodeRow(row []string, index map[string]int) (Record, error) {
	field := func(col string) string { return row[index[col]] }

	rec := Record{
		ID:           field(ColumnID),
		PayloadRef:   field(ColumnPayloadRef),
		ChangelogRef: field(ColumnChangelogRef),
		ContentHash:  field(ColumnContentHash),
	}
	if !ValidID(rec.ID) {
		return Record{}, fmt.Errorf("%w %q", ErrInvalidID, rec.ID)
	}
	var err error
	if rec.UpdatedAt, err = parseTimestamp(field(ColumnUpdatedAt)); err != nil {
		return Record{}, fmt.Errorf("%s %s: %w", rec.ID, ColumnUpdatedAt, err)
	}
	if rec.CreatedAt, err = parseTimestamp(field(ColumnCreatedAt)); err != nil {
		return Record{}, fmt.Errorf("%s %s: %w", rec.ID, ColumnCreatedAt, err)
	}
	if rec.ChangelogRef == "" {
		rec.ChangelogRef = NoChangelog
	}
	if rec.Tags, err = decodeTags(field(ColumnTags)); err != nil {
		return Record{}, fmt.Errorf("%s %s: %w", rec.ID, ColumnTags, err)
	}
	return rec, nil
}

// parseTimestamp accepts integers and the integral floats some spreadsheet
// round trips leave behind ("1700000000.0").
func parseTimestamp(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return int64(f), nil
}

// decodeTags reads the JSON array form, falling back to the single-quoted
// list form written by earlier versions of the store.
func decodeTags(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "[]" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		legacy := strings.ReplaceAll(s, "'", `"`)
		if legacyErr := json.Unmarshal([]byte(legacy), &tags); legacyErr != nil {
			return nil, err
		}
	}
	out := tags[:0]
	for _, tag := range tags {
		tag = NormalizeTag(tag)
		if validTag(tag) && !slices.Contains(out, tag) {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	b, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func encodeCatalog(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Comma = '\t'
	if err := w.Write(Columns); err != nil {
		return nil, err
	}
	for _, rec := range records {
		row := []string{
			rec.ID,
			strconv.FormatInt(rec.UpdatedAt, 10),
			strconv.FormatInt(rec.CreatedAt, 10),
			rec.PayloadRef,
			rec.ChangelogRef,
			rec.ContentHash,
			encodeTags(rec.Tags),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
