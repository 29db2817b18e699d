package input

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/promo-scout/internal/model"
	"github.com/sells-group/promo-scout/internal/pipeline"
)

// record is the JSON shape of one item. Text fields are joined in order.
type record struct {
	SourceID    string `json:"source_id"`
	ID          string `json:"id"`
	SourceKey   string `json:"source_key"`
	ChannelID   string `json:"channel_id"`
	Text        string `json:"text"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Transcript  string `json:"transcript"`
	Body        string `json:"body"`
}

func (r record) item() pipeline.Item {
	id := r.SourceID
	if id == "" {
		id = r.ID
	}
	key := r.SourceKey
	if key == "" {
		key = r.ChannelID
	}
	text := model.JoinSegments(r.Text, r.Title, r.Description, r.Transcript, r.Body)
	return newItem(strings.TrimSpace(id), text, strings.TrimSpace(key))
}

// ReadJSON decodes a JSON array of records, one element at a time.
func ReadJSON(ctx context.Context, r io.Reader) ([]pipeline.Item, error) {
	decoder := json.NewDecoder(r)

	tok, err := decoder.Token()
	if err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, eris.Wrap(err, "input: read opening token")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		return nil, eris.Errorf("input: expected '[', got %v", tok)
	}

	var items []pipeline.Item
	for decoder.More() {
		if ctx.Err() != nil {
			return items, eris.Wrap(ctx.Err(), "input: json canceled")
		}
		var rec record
		if err := decoder.Decode(&rec); err != nil {
			return items, eris.Wrapf(err, "input: decode element %d", len(items))
		}
		items = append(items, rec.item())
	}
	if _, err := decoder.Token(); err != nil && err != io.EOF {
		return items, eris.Wrap(err, "input: read closing token")
	}
	return items, nil
}

// ReadJSONLines decodes one record per line. Blank lines are skipped.
func ReadJSONLines(ctx context.Context, r io.Reader) ([]pipeline.Item, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var items []pipeline.Item
	line := 0
	for sc.Scan() {
		line++
		if ctx.Err() != nil {
			return items, eris.Wrap(ctx.Err(), "input: jsonl canceled")
		}
		raw := strings.TrimSpace(sc.Text())
		if raw == "" {
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return items, eris.Wrapf(err, "input: decode line %d", line)
		}
		items = append(items, rec.item())
	}
	if err := sc.Err(); err != nil {
		return items, eris.Wrap(err, "input: scan jsonl")
	}
	return items, nil
}
