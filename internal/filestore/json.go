package filestore

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/sitelog/internal/blogerr"
)

// ErrCorruptMetadata marks a JSON file that exists but cannot be decoded.
var ErrCorruptMetadata = errors.New("corrupt metadata")

func readJSON(p string, v any) error {
	data, err := os.ReadFile(p)
	if err != nil {
		return classify(err, "read %s", p)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return blogerr.IO(fmt.Errorf("%w: %w", ErrCorruptMetadata, err), "decode %s", p)
	}
	return nil
}

func writeJSON(p string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", p, err)
	}
	data = append(data, '\n')
	return writeFileAtomic(p, data)
}

func decodeObject(data []byte) (map[string]json.RawMessage, error) {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// takeField decodes fields[key] into dst and removes it, leaving only unknown keys behind.
func takeField(fields map[string]json.RawMessage, key string, dst any) error {
	raw, ok := fields[key]
	if !ok {
		return nil
	}
	delete(fields, key)
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	return nil
}

func putField(fields map[string]json.RawMessage, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("field %q: %w", key, err)
	}
	fields[key] = raw
	return nil
}

func cloneExtra(extra map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(extra)+8)
	for key, value := range extra {
		out[key] = value
	}
	return out
}
