package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/promo-scout/internal/model"
)

const (
	resultsSheet = "results"
	// flushEvery bounds how many writes may sit in memory before the
	// workbook is rewritten.
	flushEvery = 25
)

var xlsxHeader = []string{
	"source_id", "status", "confidence", "enhanced_by_fallback",
	"codes", "links", "percent_off", "flat_discount",
	"recommendation", "reasoning", "processed_at", "candidates_json",
}

// XLSXSink writes results to a spreadsheet for manual review. The whole
// workbook is held in memory and rewritten on flush.
type XLSXSink struct {
	path string

	mu      sync.Mutex
	results []model.ExtractionResult
	index   map[string]int
	pending int
}

// NewXLSX opens path, loading any results already in it.
func NewXLSX(path string) (*XLSXSink, error) {
	s := &XLSXSink{path: path, index: make(map[string]int)}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", path)
	}
	sheet, ok := f.Sheet[resultsSheet]
	if !ok {
		return s, nil
	}
	for i, row := range sheet.Rows {
		if i == 0 {
			continue
		}
		r, err := parseResultRow(row)
		if err != nil {
			return nil, eris.Wrapf(err, "xlsx: row %d", i+1)
		}
		s.index[r.SourceID] = len(s.results)
		s.results = append(s.results, r)
	}
	return s, nil
}

func parseResultRow(row *xlsx.Row) (model.ExtractionResult, error) {
	cells := make([]string, len(xlsxHeader))
	for i := 0; i < len(row.Cells) && i < len(cells); i++ {
		cells[i] = row.Cells[i].String()
	}
	var r model.ExtractionResult
	r.SourceID = cells[0]
	r.Status = model.Status(cells[1])
	conf, err := strconv.ParseFloat(cells[2], 64)
	if err != nil {
		return r, eris.Wrap(err, "parse confidence")
	}
	r.Confidence = conf
	r.EnhancedByFallback = cells[3] == "true"
	r.Recommendation = model.Recommendation(cells[8])
	r.Reasoning = cells[9]
	if cells[10] != "" {
		if r.ProcessedAt, err = time.Parse(time.RFC3339Nano, cells[10]); err != nil {
			return r, eris.Wrap(err, "parse processed_at")
		}
	}
	if cells[11] != "" {
		if err := json.Unmarshal([]byte(cells[11]), &r.Candidates); err != nil {
			return r, eris.Wrap(err, "parse candidates")
		}
	}
	return r, nil
}

// Exists reports whether a result for sourceID is already in the workbook.
func (s *XLSXSink) Exists(_ context.Context, sourceID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[sourceID]
	return ok, nil
}

// SaveResult appends r and rewrites the workbook. It returns false, and leaves
// the workbook untouched, when a result for r.SourceID already exists.
func (s *XLSXSink) SaveResult(_ context.Context, r *model.ExtractionResult) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.index[r.SourceID]; ok {
		return false, nil
	}
	s.index[r.SourceID] = len(s.results)
	s.results = append(s.results, withProcessedAt(*r))
	return true, s.written()
}

// ReplaceResult overwrites the row for r.SourceID, or appends one, and rewrites
// the workbook.
func (s *XLSXSink) ReplaceResult(_ context.Context, r *model.ExtractionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i, ok := s.index[r.SourceID]; ok {
		s.results[i] = withProcessedAt(*r)
	} else {
		s.index[r.SourceID] = len(s.results)
		s.results = append(s.results, withProcessedAt(*r))
	}
	return s.written()
}

func withProcessedAt(r model.ExtractionResult) model.ExtractionResult {
	if r.ProcessedAt.IsZero() {
		r.ProcessedAt = time.Now().UTC()
	}
	return r
}

func (s *XLSXSink) written() error {
	s.pending++
	if s.pending >= flushEvery {
		return s.flushLocked()
	}
	return nil
}

func (s *XLSXSink) ListResults(_ context.Context, filter ResultFilter) ([]model.ExtractionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.ExtractionResult
	for _, r := range s.results {
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		if filter.Enhanced != nil && r.EnhancedByFallback != *filter.Enhanced {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ProcessedAt.Equal(out[j].ProcessedAt) {
			return out[i].ProcessedAt.After(out[j].ProcessedAt)
		}
		return out[i].SourceID < out[j].SourceID
	})
	if filter.Offset >= len(out) {
		return nil, nil
	}
	out = out[filter.Offset:]
	if limit := listLimit(filter.Limit); len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *XLSXSink) Summarize(_ context.Context) (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := newSummary()
	var total float64
	for _, r := range s.results {
		sum.ByStatus[r.Status]++
		sum.Total++
		total += r.Confidence
		if r.EnhancedByFallback {
			sum.Enhanced++
		}
	}
	if sum.Total > 0 {
		sum.AvgConfidence = total / float64(sum.Total)
	}
	return sum, nil
}

// Flush rewrites the workbook.
func (s *XLSXSink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

// Close flushes pending writes.
func (s *XLSXSink) Close() error {
	return s.Flush()
}

func (s *XLSXSink) flushLocked() error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(resultsSheet)
	if err != nil {
		return eris.Wrap(err, "xlsx: add sheet")
	}
	addRow(sheet, xlsxHeader)
	for _, r := range s.results {
		row, err := resultRow(r)
		if err != nil {
			return err
		}
		addRow(sheet, row)
	}
	if err := f.Save(s.path); err != nil {
		return eris.Wrapf(err, "xlsx: save %s", s.path)
	}
	s.pending = 0
	return nil
}

func resultRow(r model.ExtractionResult) ([]string, error) {
	candidates, err := json.Marshal(r.Candidates)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: marshal candidates")
	}
	return []string{
		r.SourceID,
		string(r.Status),
		strconv.FormatFloat(r.Confidence, 'f', -1, 64),
		strconv.FormatBool(r.EnhancedByFallback),
		strings.Join(r.Candidates.CodeValues(), ", "),
		strings.Join(r.Candidates.LinkValues(), ", "),
		joinFloats(r.Candidates.PercentOff),
		joinFloats(r.Candidates.FlatDiscount),
		string(r.Recommendation),
		r.Reasoning,
		r.ProcessedAt.UTC().Format(time.RFC3339Nano),
		string(candidates),
	}, nil
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

func joinFloats(vals []float64) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strings.Join(parts, ", ")
}
