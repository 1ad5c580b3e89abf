package exchange

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// DecodeRows accepts either a bare JSON array or an object wrapping the array
// under one of keys, and returns the raw rows.
func DecodeRows(body []byte, keys ...string) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("decode rows: %w", err)
		}
		return rows, nil
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	for _, key := range keys {
		raw, ok := wrapper[key]
		if !ok {
			continue
		}
		var rows []json.RawMessage
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, fmt.Errorf("decode rows %q: %w", key, err)
		}
		return rows, nil
	}
	return nil, nil
}

// SwallowBlocked turns an exhausted-retries error into "no data this cycle".
// Any other error is returned unchanged.
func SwallowBlocked(err error, logger *zap.Logger, fields ...zap.Field) error {
	if err == nil || !errors.Is(err, ErrBlocked) {
		return err
	}
	if logger != nil {
		logger.Warn("exchange unavailable this cycle", append(fields, zap.Error(err))...)
	}
	return nil
}

// FlexString accepts either a JSON string or a bare number, which the
// exchanges use interchangeably for codes and quantities.
type FlexString string

func (s *FlexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = FlexString(v)
		return nil
	}
	*s = FlexString(b)
	return nil
}

func (s FlexString) String() string {
	return strings.TrimSpace(string(s))
}
