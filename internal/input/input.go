// Package input reads batch source items from CSV, TSV, XLSX, JSON array
// and JSON lines files.
package input

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/promo-scout/internal/model"
	"github.com/sells-group/promo-scout/internal/pipeline"
)

// Format names an input encoding.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatTSV   Format = "tsv"
	FormatXLSX  Format = "xlsx"
	FormatJSON  Format = "json"
	FormatJSONL Format = "jsonl"
)

// itemNamespace seeds derived source IDs for rows that carry none.
var itemNamespace = uuid.MustParse("5f1e0f5c-2b1d-4c59-9a3e-7d0c4c7a1e21")

// Column aliases, matched case-insensitively against the header row.
var (
	idColumns   = []string{"source_id", "id", "video_id", "post_id"}
	keyColumns  = []string{"source_key", "channel_id", "channel", "publisher"}
	textColumns = []string{"text", "title", "description", "transcript", "body", "caption"}
)

// DetectFormat picks a format from the file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".tsv", ".tab":
		return FormatTSV, nil
	case ".xlsx":
		return FormatXLSX, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	default:
		return "", eris.Errorf("input: unsupported file type %q", filepath.Ext(path))
	}
}

// ReadFile reads every item in path.
func ReadFile(ctx context.Context, path string) ([]pipeline.Item, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	if format == FormatXLSX {
		return ReadXLSX(path, "")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "input: open %s", path)
	}
	defer f.Close() //nolint:errcheck
	return Read(ctx, f, format)
}

// Read decodes items from r. XLSX needs random access; use ReadXLSX.
func Read(ctx context.Context, r io.Reader, format Format) ([]pipeline.Item, error) {
	switch format {
	case FormatCSV:
		return ReadCSV(ctx, r, ',')
	case FormatTSV:
		return ReadCSV(ctx, r, '\t')
	case FormatJSON:
		return ReadJSON(ctx, r)
	case FormatJSONL:
		return ReadJSONLines(ctx, r)
	default:
		return nil, eris.Errorf("input: format %q cannot be streamed", format)
	}
}

// columns maps header positions to item fields.
type columns struct {
	id   int
	key  int
	text []int
}

func mapColumns(header []string) (columns, error) {
	c := columns{id: -1, key: -1}
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := index[name]; !dup {
			index[name] = i
		}
	}
	c.id = firstColumn(index, idColumns)
	c.key = firstColumn(index, keyColumns)
	for _, name := range textColumns {
		if i, ok := index[name]; ok {
			c.text = append(c.text, i)
		}
	}
	if len(c.text) == 0 {
		return c, eris.Errorf("input: header has no text column (want one of %s)", strings.Join(textColumns, ", "))
	}
	return c, nil
}

func firstColumn(index map[string]int, names []string) int {
	for _, n := range names {
		if i, ok := index[n]; ok {
			return i
		}
	}
	return -1
}

func (c columns) item(row []string) pipeline.Item {
	cell := func(i int) string {
		if i < 0 || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	segments := make([]string, 0, len(c.text))
	for _, i := range c.text {
		segments = append(segments, cell(i))
	}
	return newItem(cell(c.id), model.JoinSegments(segments...), cell(c.key))
}

// newItem derives a stable source ID from the text when the row has none,
// so re-running a file dedups against earlier results.
func newItem(id, text, key string) pipeline.Item {
	if id == "" {
		id = uuid.NewSHA1(itemNamespace, []byte(text)).String()
	}
	return pipeline.Item{SourceID: id, Text: text, SourceKey: key}
}
