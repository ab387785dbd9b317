package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
)

// ComputeFieldDiff returns the sorted top-level keys whose values differ
// between two JSON object snapshots. A key present on one side only counts as
// changed. Empty or null input is treated as an empty object.
func ComputeFieldDiff(oldData json.RawMessage, newData json.RawMessage) ([]string, error) {
	oldFields, err := decodeObject(oldData)
	if err != nil {
		return nil, fmt.Errorf("old_data: %w", err)
	}
	newFields, err := decodeObject(newData)
	if err != nil {
		return nil, fmt.Errorf("new_data: %w", err)
	}

	changed := make([]string, 0, len(oldFields)+len(newFields))
	for key, oldVal := range oldFields {
		newVal, ok := newFields[key]
		if !ok || !reflect.DeepEqual(oldVal, newVal) {
			changed = append(changed, key)
		}
	}
	for key := range newFields {
		if _, ok := oldFields[key]; !ok {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed, nil
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]any{}, nil
	}

	// json.Number keeps "1.10" and "1.1" apart the way the stored text does.
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("snapshot is not a JSON object: %w", err)
	}
	if fields == nil {
		return map[string]any{}, nil
	}
	return fields, nil
}
