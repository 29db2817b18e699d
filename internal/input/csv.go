package input

import (
	"context"
	"encoding/csv"
	"io"

	"github.com/rotisserie/eris"

	"github.com/sells-group/promo-scout/internal/pipeline"
)

// ReadCSV reads delimited rows. The first row is the header.
func ReadCSV(ctx context.Context, r io.Reader, delim rune) ([]pipeline.Item, error) {
	reader := csv.NewReader(r)
	reader.Comma = delim
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1 // allow variable fields

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "input: read csv header")
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	var items []pipeline.Item
	for {
		if ctx.Err() != nil {
			return items, eris.Wrap(ctx.Err(), "input: csv canceled")
		}
		record, err := reader.Read()
		if err == io.EOF {
			return items, nil
		}
		if err != nil {
			line, _ := reader.FieldPos(0)
			return items, eris.Wrapf(err, "input: read csv row at line %d", line)
		}
		items = append(items, cols.item(record))
	}
}
