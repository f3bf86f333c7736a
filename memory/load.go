package memory

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	goavro "github.com/linkedin/goavro/v2"
	"gopkg.in/src-d/go-errors.v1"
)

var (
	// ErrEmptyColumn is returned when a row has a column with no name.
	ErrEmptyColumn = errors.NewKind("table %s: a column can not have an empty name")

	// ErrUnsupportedFormat is returned by Load for unknown file extensions.
	ErrUnsupportedFormat = errors.NewKind("unsupported file format %q (supported: .csv, .json, .jsonl, .avro)")

	// ErrInvalidRecord is returned when a record can not be read as a row.
	ErrInvalidRecord = errors.NewKind("invalid record %d in %s: %s")
)

// Load reads the file into a table named after it. The format is given by
// the extension.
func Load(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		return LoadCSV(name, f)
	case ".json":
		return LoadJSON(name, f)
	case ".jsonl":
		return LoadJSONL(name, f)
	case ".avro":
		return LoadAvro(name, f)
	default:
		return nil, ErrUnsupportedFormat.New(ext)
	}
}

// LoadCSV reads a CSV with a header line. Cell types are inferred: empty
// cells and "null" are nil, then integers, floats and booleans are tried
// before falling back to strings.
func LoadCSV(name string, r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return NewTable(name), nil
	}
	if err != nil {
		return nil, err
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}

	t := NewTable(name)
	for n := 1; ; n++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, c := range columns {
			if i < len(record) {
				row[c] = ParseValue(strings.TrimSpace(record[i]))
			}
		}
		if err := t.Insert(row); err != nil {
			return nil, ErrInvalidRecord.Wrap(err, n, name, err.Error())
		}
	}
	return t, nil
}

// ParseValue infers the type of a textual value: empty strings and "null"
// are nil, then integers, floats and booleans are tried before falling back
// to the string itself.
func ParseValue(s string) interface{} {
	if s == "" || strings.EqualFold(s, "null") {
		return nil
	}
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v
	}
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v
	}
	switch strings.ToLower(s) {
	case "true":
		return true
	case "false":
		return false
	}
	return s
}

// LoadJSON reads a JSON array of objects.
func LoadJSON(name string, r io.Reader) (*Table, error) {
	var records []map[string]interface{}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("cannot parse JSON from %s: %s (expected array of objects)", name, err)
	}

	t := NewTable(name)
	for i, rec := range records {
		if err := t.Insert(jsonRow(rec)); err != nil {
			return nil, ErrInvalidRecord.Wrap(err, i+1, name, err.Error())
		}
	}
	return t, nil
}

// LoadJSONL reads one JSON object per line. Blank lines are skipped.
func LoadJSONL(name string, r io.Reader) (*Table, error) {
	t := NewTable(name)
	scanner := bufio.NewScanner(r)
	var n int
	for scanner.Scan() {
		n++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec map[string]interface{}
		dec := json.NewDecoder(strings.NewReader(line))
		dec.UseNumber()
		if err := dec.Decode(&rec); err != nil {
			return nil, ErrInvalidRecord.Wrap(err, n, name, err.Error())
		}
		if err := t.Insert(jsonRow(rec)); err != nil {
			return nil, ErrInvalidRecord.Wrap(err, n, name, err.Error())
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func jsonRow(rec map[string]interface{}) map[string]interface{} {
	row := make(map[string]interface{}, len(rec))
	for c, v := range rec {
		row[c] = jsonValue(v)
	}
	return row
}

func jsonValue(v interface{}) interface{} {
	switch v := v.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		f, _ := v.Float64()
		return f
	case map[string]interface{}, []interface{}:
		b, _ := json.Marshal(v)
		return string(b)
	default:
		return v
	}
}

// LoadAvro reads an Avro object container file of records.
func LoadAvro(name string, r io.Reader) (*Table, error) {
	ocfr, err := goavro.NewOCFReader(r)
	if err != nil {
		return nil, fmt.Errorf("cannot read Avro OCF from %s: %s", name, err)
	}

	t := NewTable(name)
	for n := 1; ocfr.Scan(); n++ {
		datum, err := ocfr.Read()
		if err != nil {
			return nil, ErrInvalidRecord.Wrap(err, n, name, err.Error())
		}

		rec, ok := datum.(map[string]interface{})
		if !ok {
			return nil, ErrInvalidRecord.New(n, name, fmt.Sprintf("unexpected Avro datum %T", datum))
		}

		row := make(map[string]interface{}, len(rec))
		for c, v := range rec {
			row[c] = avroValue(v)
		}
		if err := t.Insert(row); err != nil {
			return nil, ErrInvalidRecord.Wrap(err, n, name, err.Error())
		}
	}
	if err := ocfr.Err(); err != nil {
		return nil, err
	}
	return t, nil
}

func avroValue(v interface{}) interface{} {
	switch v := v.(type) {
	case []byte:
		return string(v)
	case map[string]interface{}:
		// unions decode as {"type": value}
		for _, inner := range v {
			return avroValue(inner)
		}
		return nil
	default:
		return v
	}
}
