package repository

import (
	"math"
	"strconv"
	"time"
)

// Documents are schemaless and were written by more than one version of the
// forms, so reads accept whatever type a field happens to hold.

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStringPtr(v any) *string {
	s, ok := v.(string)
	if !ok {
		return nil
	}
	return &s
}

func asBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(x)
		return b
	case int64:
		return x != 0
	}
	return false
}

func asInt(v any) int {
	switch x := v.(type) {
	case int:
		return x
	case int64:
		return int(x)
	case int32:
		return int(x)
	case float64:
		return int(math.Round(x))
	case string:
		n, _ := strconv.Atoi(x)
		return n
	}
	return 0
}

func asTime(v any) time.Time {
	switch x := v.(type) {
	case time.Time:
		return x
	case string:
		t, _ := time.Parse(time.RFC3339Nano, x)
		return t
	}
	return time.Time{}
}

func asStrings(v any) []string {
	switch x := v.(type) {
	case []string:
		return x
	case []any:
		out := make([]string, 0, len(x))
		for _, e := range x {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// nullable turns a nil pointer into an explicit nil so the stored document
// carries the field with a null value.
func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
