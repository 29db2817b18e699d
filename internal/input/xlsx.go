package input

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/promo-scout/internal/pipeline"
)

// ReadXLSX reads items from a worksheet. The first row is the header. An
// empty sheet name selects the first sheet.
func ReadXLSX(path, sheetName string) ([]pipeline.Item, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "input: open xlsx")
	}

	sheet, err := getSheet(f, sheetName)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) == 0 {
		return nil, nil
	}

	cols, err := mapColumns(rowToStrings(sheet.Rows[0]))
	if err != nil {
		return nil, err
	}

	items := make([]pipeline.Item, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		if row == nil || len(row.Cells) == 0 {
			continue
		}
		items = append(items, cols.item(rowToStrings(row)))
	}
	return items, nil
}

func getSheet(f *xlsx.File, name string) (*xlsx.Sheet, error) {
	if name != "" {
		sheet, ok := f.Sheet[name]
		if !ok {
			return nil, eris.Errorf("input: sheet %q not found", name)
		}
		return sheet, nil
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("input: workbook has no sheets")
	}
	return f.Sheets[0], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
