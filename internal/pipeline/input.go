package pipeline

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
	"github.com/sells-group/prospect-cli/internal/normalize"
)

// ReadItems loads raw provider items from a file. The format follows the
// extension: .csv rows become manual records, .jsonl holds one item per
// line and anything else is a JSON array of items.
func ReadItems(path string) ([]normalize.RawItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: open input")
	}
	defer f.Close() //nolint:errcheck

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return ParseCSV(f)
	case ".jsonl", ".ndjson":
		return parseJSONLines(f)
	default:
		var items []normalize.RawItem
		if err := json.NewDecoder(f).Decode(&items); err != nil {
			return nil, eris.Wrap(err, "pipeline: decode input")
		}
		return items, nil
	}
}

// ParseCSV turns each row into a payload keyed by snake_cased header. A
// "source" column sets the item source; rows without one are manual.
func ParseCSV(r io.Reader) ([]normalize.RawItem, error) {
	reader := csv.NewReader(r)
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: read csv")
	}
	if len(records) < 2 {
		return nil, eris.New("pipeline: csv has no data rows")
	}

	header := make([]string, len(records[0]))
	for i, col := range records[0] {
		header[i] = columnKey(col)
	}

	items := make([]normalize.RawItem, 0, len(records)-1)
	for _, row := range records[1:] {
		payload := make(map[string]string, len(header))
		source := model.SourceManual
		for i, key := range header {
			if i >= len(row) || key == "" {
				continue
			}
			v := strings.TrimSpace(row[i])
			if v == "" {
				continue
			}
			if key == "source" {
				source = model.SourceID(strings.ToLower(v))
				continue
			}
			payload[key] = v
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, eris.Wrap(err, "pipeline: encode csv row")
		}
		items = append(items, normalize.RawItem{Source: source, Payload: raw})
	}
	return items, nil
}

func parseJSONLines(r io.Reader) ([]normalize.RawItem, error) {
	var items []normalize.RawItem
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
	for line := 1; sc.Scan(); line++ {
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var it normalize.RawItem
		if err := json.Unmarshal(b, &it); err != nil {
			return nil, eris.Wrapf(err, "pipeline: decode line %d", line)
		}
		items = append(items, it)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "pipeline: scan input")
	}
	return items, nil
}

// columnKey maps "Business Name" to "business_name".
func columnKey(col string) string {
	col = strings.TrimPrefix(strings.TrimSpace(col), "\ufeff")
	return strings.ToLower(strings.Join(strings.Fields(col), "_"))
}
