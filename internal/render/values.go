package render

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

// Num is a number that may be missing from the reply
type Num struct {
	Value float64
	Set   bool
}

func optNumber(m map[string]any, key string) Num {
	v, ok := number(m[key])
	return Num{Value: v, Set: ok}
}

func (o Num) percent() string {
	if !o.Set {
		return "n/a"
	}
	return Percent(o.Value)
}

// MarshalJSON writes a missing number as null
func (o Num) MarshalJSON() ([]byte, error) {
	if !o.Set {
		return []byte("null"), nil
	}
	return json.Marshal(o.Value)
}

func (o Num) String() string {
	if !o.Set {
		return "n/a"
	}
	return strconv.FormatFloat(o.Value, 'f', -1, 64)
}

// text renders any JSON scalar the way a page would print it
func text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case []any:
		parts := make([]string, len(t))
		for i, item := range t {
			parts[i] = text(item)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}

func str(m map[string]any, key string) string {
	return text(m[key])
}

func boolean(m map[string]any, key string) (bool, bool) {
	switch b := m[key].(type) {
	case bool:
		return b, true
	case float64:
		return b != 0, true
	}
	return false, false
}

func object(m map[string]any, key string) (map[string]any, bool) {
	o, ok := m[key].(map[string]any)
	return o, ok
}

// objects reads an array of objects. A key holding something other than an
// array counts as present but empty; non-object items are skipped.
func objects(m map[string]any, key string) ([]map[string]any, bool) {
	raw, ok := m[key]
	if !ok || raw == nil {
		return nil, false
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, true
	}
	out := make([]map[string]any, 0, len(arr))
	for _, item := range arr {
		if o, ok := item.(map[string]any); ok {
			out = append(out, o)
		}
	}
	return out, true
}

func collect[T any](m map[string]any, key string, convert func(map[string]any) T) List[T] {
	items, present := objects(m, key)
	l := List[T]{Present: present}
	for _, item := range items {
		l.Items = append(l.Items, convert(item))
	}
	return l
}

func numbers(v any) []float64 {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]float64, 0, len(arr))
	for _, item := range arr {
		if n, ok := number(item); ok {
			out = append(out, n)
		}
	}
	return out
}

func strs(v any) []string {
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s := text(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func formatBox(box []float64) string {
	parts := make([]string, len(box))
	for i, v := range box {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func plural(n float64, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// clock formats seconds as M:SS
func clock(seconds float64) string {
	if seconds < 0 || math.IsNaN(seconds) {
		seconds = 0
	}
	total := int(seconds)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
