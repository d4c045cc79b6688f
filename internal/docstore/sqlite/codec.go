package sqlite

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sakif/campus-link/internal/docstore"
)

// dateKey marks an encoded time.Time. JSON has no date type, so times are
// written as {"$date": "<RFC 3339>"} and turned back into time.Time on read.
const dateKey = "$date"

// encode serialises a document to the JSON stored in the data column.
func encode(doc docstore.Document) (string, error) {
	b, err := json.Marshal(encodeValue(map[string]any(doc)))
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}
	return string(b), nil
}

// decode parses the data column back into a document.
func decode(data string) (docstore.Document, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding document: %w", err)
	}

	out, _ := decodeValue(raw).(map[string]any)
	return docstore.Document(out), nil
}

func encodeValue(v any) any {
	switch x := v.(type) {
	case time.Time:
		return map[string]any{dateKey: x.UTC().Format(time.RFC3339Nano)}
	case docstore.Document:
		return encodeValue(map[string]any(x))
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = encodeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = encodeValue(e)
		}
		return out
	default:
		return v
	}
}

func decodeValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		f, _ := x.Float64()
		return f
	case map[string]any:
		if len(x) == 1 {
			if s, ok := x[dateKey].(string); ok {
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					return t
				}
			}
		}
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = decodeValue(e)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = decodeValue(e)
		}
		return out
	default:
		return v
	}
}
