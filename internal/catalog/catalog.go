// Package catalog reads the per-class map catalog file.
//
// The file is a delimited table with a header row. Required columns are
// map_name, tier and rating (map_rank is accepted as an alias); map_id is
// optional. Row order is preserved.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/okian/tempusrecords/internal/domain/model"
)

// Sentinel errors. Both are fatal to a run.
var (
	ErrCatalogUnavailable = errors.New("catalog unavailable")
	ErrInvalidCatalog     = errors.New("invalid catalog")
)

const (
	colName   = "map_name"
	colID     = "map_id"
	colTier   = "tier"
	colRating = "rating"
	colRank   = "map_rank"

	defaultDelimiter = ';'
	utf8BOM          = "\ufeff"
)

// Option configures catalog parsing.
type Option func(*options)

type options struct {
	delimiter rune
}

// WithDelimiter sets the field separator. Zero keeps the default ';'.
func WithDelimiter(d rune) Option {
	return func(o *options) {
		if d != 0 {
			o.delimiter = d
		}
	}
}

// Load opens path and parses it.
func Load(path string, opts ...Option) ([]model.MapEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCatalogUnavailable, err)
	}
	defer func() { _ = f.Close() }()

	entries, err := Parse(f, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return entries, nil
}

// Parse reads a catalog table from r.
func Parse(r io.Reader, opts ...Option) ([]model.MapEntry, error) {
	o := options{delimiter: defaultDelimiter}
	for _, opt := range opts {
		opt(&o)
	}

	cr := csv.NewReader(r)
	cr.Comma = o.delimiter
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", ErrInvalidCatalog)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrCatalogUnavailable, err)
	}
	cols, err := indexColumns(header)
	if err != nil {
		return nil, err
	}

	var entries []model.MapEntry
	seen := make(map[string]int)
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
		}
		line, _ := cr.FieldPos(0)

		entry, err := cols.entry(rec)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %w", ErrInvalidCatalog, line, err)
		}
		if first, dup := seen[entry.Name]; dup {
			return nil, fmt.Errorf("%w: line %d: map %q already listed on line %d", ErrInvalidCatalog, line, entry.Name, first)
		}
		seen[entry.Name] = line
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no maps", ErrInvalidCatalog)
	}
	return entries, nil
}

type columns struct {
	name, id, tier, rank int
}

func indexColumns(header []string) (columns, error) {
	c := columns{name: -1, id: -1, tier: -1, rank: -1}
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, utf8BOM))) {
		case colName:
			c.name = i
		case colID:
			c.id = i
		case colTier:
			c.tier = i
		case colRating, colRank:
			c.rank = i
		}
	}

	var missing []string
	if c.name < 0 {
		missing = append(missing, colName)
	}
	if c.tier < 0 {
		missing = append(missing, colTier)
	}
	if c.rank < 0 {
		missing = append(missing, colRating)
	}
	if len(missing) > 0 {
		return c, fmt.Errorf("%w: missing columns %s", ErrInvalidCatalog, strings.Join(missing, ", "))
	}
	return c, nil
}

func (c columns) entry(rec []string) (model.MapEntry, error) {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}

	e := model.MapEntry{
		Name:    field(c.name),
		MapRank: field(c.rank),
	}
	if e.Name == "" {
		return e, errors.New("empty map_name")
	}

	tier, err := strconv.Atoi(field(c.tier))
	if err != nil {
		return e, fmt.Errorf("map %q: bad tier %q", e.Name, field(c.tier))
	}
	e.Tier = tier

	if raw := field(c.id); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return e, fmt.Errorf("map %q: bad map_id %q", e.Name, raw)
		}
		e.ID = id
	}
	return e, nil
}
