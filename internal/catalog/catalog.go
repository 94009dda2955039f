// Package catalog loads the assessment catalog produced by the scraper.
package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"reflect"
	"regexp"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

// ErrMissing is returned when a configured catalog file does not exist.
var ErrMissing = errors.New("catalog file is missing")

// Load reads every file as a JSON array of records and concatenates them in argument order.
func Load(paths ...string) ([]Record, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no catalog files configured", ErrMissing)
	}

	var records []Record
	for _, path := range paths {
		part, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		records = append(records, part...)
	}

	if err := Validate(records); err != nil {
		return nil, err
	}

	return records, nil
}

func loadFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}

	records, err := Decode(items)
	if err != nil {
		return nil, fmt.Errorf("catalog %s: %w", path, err)
	}

	return records, nil
}

// Decode converts loosely typed catalog items into records.
// Durations may arrive as numbers, numeric strings, "N/A" or not at all.
func Decode(items []map[string]any) ([]Record, error) {
	records := make([]Record, 0, len(items))
	for i, item := range items {
		var record Record
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:     &record,
			TagName:    "mapstructure",
			DecodeHook: durationHook,
		})
		if err != nil {
			return nil, err
		}

		if err := decoder.Decode(item); err != nil {
			name, _ := item["name"].(string)
			return nil, fmt.Errorf("decode record %d (%s): %w", i, name, err)
		}

		record.normalize()
		records = append(records, record)
	}

	return records, nil
}

// Validate checks required fields and url uniqueness.
func Validate(records []Record) error {
	seen := make(map[string]int, len(records))
	for i, r := range records {
		if r.Name == "" {
			return fmt.Errorf("record %d: name is required", i)
		}
		if r.URL == "" {
			return fmt.Errorf("record %d (%s): url is required", i, r.Name)
		}
		if prev, ok := seen[r.URL]; ok {
			return fmt.Errorf("record %d (%s): url %s duplicates record %d", i, r.Name, r.URL, prev)
		}
		seen[r.URL] = i
	}
	return nil
}

// Save writes records as an indented JSON array.
func Save(path string, records []Record) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal catalog: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write catalog %s: %w", path, err)
	}

	return nil
}

// maxDurationMinutes bounds durations to a range every platform int can hold.
const maxDurationMinutes = math.MaxInt32

var (
	durationType   = reflect.TypeOf((*int)(nil))
	durationNumber = regexp.MustCompile(`\d+(\.\d+)?`)
)

func durationHook(_ reflect.Type, to reflect.Type, data any) (any, error) {
	if to != durationType {
		return data, nil
	}

	switch v := data.(type) {
	case float64:
		return wholeMinutes(v)
	case string:
		number := durationNumber.FindString(v)
		if number == "" {
			return nil, nil
		}
		f, err := strconv.ParseFloat(number, 64)
		if err != nil {
			return nil, fmt.Errorf("duration %q: %w", v, err)
		}
		return wholeMinutes(f)
	default:
		return data, nil
	}
}

func wholeMinutes(v float64) (int, error) {
	if v != math.Trunc(v) {
		return 0, fmt.Errorf("duration %v is not a whole number of minutes", v)
	}
	if v < 0 || v > maxDurationMinutes {
		return 0, fmt.Errorf("duration %v is out of range", v)
	}
	return int(v), nil
}
