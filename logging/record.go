package logging

import (
	"fmt"
	"strings"
)

// Record is an immutable LogRecord once constructed: severity, a short
// tag, the call site, and a message assembled from heterogeneous
// values. It is consumed synchronously by the sink at construction
// time and never mutated afterward.
type Record struct {
	Level   Level
	Tag     string
	File    string
	Line    int
	Message string
}

// newRecord assembles a Record from heterogeneous values. Formatting
// is best-effort: a value that cannot be stringified is rendered as
// "<?>" rather than aborting the record.
func newRecord(lvl Level, tag, file string, line int, values []any) Record {
	return Record{
		Level:   lvl,
		Tag:     tag,
		File:    file,
		Line:    line,
		Message: formatValues(values),
	}
}

func formatValues(values []any) string {
	if len(values) == 0 {
		return ""
	}
	var b strings.Builder
	for i, v := range values {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(formatOne(v))
	}
	return b.String()
}

// formatOne renders a single value defensively. Two deliberate safety
// defaults diverge from fmt's usual behavior:
//
//   - int8/uint8 render as their numeric value, never as a rune.
//   - []byte renders as its length and a hex-ish pointer-style tag,
//     never dereferenced as a C string.
func formatOne(v any) (s string) {
	defer func() {
		if recover() != nil {
			s = "<?>"
		}
	}()

	switch x := v.(type) {
	case int8:
		return fmt.Sprintf("%d", int(x))
	case uint8:
		return fmt.Sprintf("%d", uint(x))
	case []byte:
		return fmt.Sprintf("<%d bytes @%p>", len(x), x)
	case error:
		if x == nil {
			return "<nil>"
		}
		return x.Error()
	case fmt.Stringer:
		return x.String()
	default:
		return fmt.Sprintf("%v", x)
	}
}
