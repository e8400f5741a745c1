package bqetl

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/xerrors"

	ijson "go.nownabe.dev/bqetl/internal/json"
)

// ErrUnsupportedValue is returned by ValueOf for types that have no canonical
// text form.
var ErrUnsupportedValue = errors.New("unsupported value type")

// Kind is the type tag of a Value.
type Kind int

const (
	KindNull Kind = iota
	KindText
	KindNumber
	KindBool
	KindTimestamp
	// KindComposite is a nested JSON object or array kept as raw JSON.
	KindComposite
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindText:
		return "text"
	case KindNumber:
		return "number"
	case KindBool:
		return "bool"
	case KindTimestamp:
		return "timestamp"
	case KindComposite:
		return "composite"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Value is a single field value of a RawRecord as returned by a source.
// The zero Value is null.
type Value struct {
	kind Kind
	s    string
	b    bool
	t    time.Time
}

// NullValue returns a null Value.
func NullValue() Value { return Value{} }

// TextValue returns a textual Value.
func TextValue(s string) Value { return Value{kind: KindText, s: s} }

// NumberValue returns a numeric Value keeping n's decimal text. Exponent
// notation is rewritten as plain decimal text, so 1.5e3 becomes 1500.
func NumberValue(n json.Number) Value { return Value{kind: KindNumber, s: plainDecimal(n.String())} }

// maxPlainExponent bounds the exponents rewritten by plainDecimal. Larger
// ones keep their literal.
const maxPlainExponent = 308

func plainDecimal(s string) string {
	i := strings.IndexAny(s, "eE")
	if i < 0 {
		return s
	}

	exp, err := strconv.Atoi(s[i+1:])
	if err != nil || exp > maxPlainExponent || exp < -maxPlainExponent {
		return s
	}

	mantissa, sign := s[:i], ""
	if strings.HasPrefix(mantissa, "-") {
		mantissa, sign = mantissa[1:], "-"
	}

	intPart, fracPart, _ := strings.Cut(mantissa, ".")
	digits := intPart + fracPart
	point := len(intPart) + exp

	switch {
	case point <= 0:
		intPart, fracPart = "0", strings.Repeat("0", -point)+digits
	case point >= len(digits):
		intPart, fracPart = digits+strings.Repeat("0", point-len(digits)), ""
	default:
		intPart, fracPart = digits[:point], digits[point:]
	}

	intPart = strings.TrimLeft(intPart, "0")
	if intPart == "" {
		intPart = "0"
	}
	fracPart = strings.TrimRight(fracPart, "0")

	out := intPart
	if fracPart != "" {
		out += "." + fracPart
	}
	if out == "0" {
		return out
	}
	return sign + out
}

// BoolValue returns a boolean Value.
func BoolValue(b bool) Value { return Value{kind: KindBool, b: b} }

// TimestampValue returns a timestamp Value.
func TimestampValue(t time.Time) Value { return Value{kind: KindTimestamp, t: t} }

// ValueOf converts a decoded or programmatic value into a Value.
func ValueOf(v any) (Value, error) {
	switch x := v.(type) {
	case nil:
		return NullValue(), nil
	case Value:
		return x, nil
	case string:
		return TextValue(x), nil
	case json.Number:
		return NumberValue(x), nil
	case bool:
		return BoolValue(x), nil
	case int:
		return Value{kind: KindNumber, s: strconv.FormatInt(int64(x), 10)}, nil
	case int8:
		return Value{kind: KindNumber, s: strconv.FormatInt(int64(x), 10)}, nil
	case int16:
		return Value{kind: KindNumber, s: strconv.FormatInt(int64(x), 10)}, nil
	case int32:
		return Value{kind: KindNumber, s: strconv.FormatInt(int64(x), 10)}, nil
	case int64:
		return Value{kind: KindNumber, s: strconv.FormatInt(x, 10)}, nil
	case uint:
		return Value{kind: KindNumber, s: strconv.FormatUint(uint64(x), 10)}, nil
	case uint8:
		return Value{kind: KindNumber, s: strconv.FormatUint(uint64(x), 10)}, nil
	case uint16:
		return Value{kind: KindNumber, s: strconv.FormatUint(uint64(x), 10)}, nil
	case uint32:
		return Value{kind: KindNumber, s: strconv.FormatUint(uint64(x), 10)}, nil
	case uint64:
		return Value{kind: KindNumber, s: strconv.FormatUint(x, 10)}, nil
	case float32:
		return floatValue(float64(x), 32)
	case float64:
		return floatValue(x, 64)
	case time.Time:
		return TimestampValue(x), nil
	case *time.Time:
		if x == nil {
			return NullValue(), nil
		}
		return TimestampValue(*x), nil
	case map[string]any, []any:
		b, err := ijson.Marshal(x)
		if err != nil {
			return Value{}, xerrors.Errorf("failed to marshal composite value: %w", err)
		}
		return Value{kind: KindComposite, s: string(b)}, nil
	default:
		return Value{}, xerrors.Errorf("%T: %w", v, ErrUnsupportedValue)
	}
}

func floatValue(f float64, bitSize int) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Value{}, xerrors.Errorf("%v: %w", f, ErrUnsupportedValue)
	}
	return Value{kind: KindNumber, s: strconv.FormatFloat(f, 'f', -1, bitSize)}, nil
}

// Kind returns the type tag of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Text returns the canonical string form of v. ok is false for null.
func (v Value) Text() (s string, ok bool) {
	switch v.kind {
	case KindText, KindNumber, KindComposite:
		return v.s, true
	case KindBool:
		return strconv.FormatBool(v.b), true
	case KindTimestamp:
		return v.t.UTC().Format(time.RFC3339Nano), true
	default:
		return "", false
	}
}

// RawRecord is a record as returned by a source.
type RawRecord map[string]Value

// NewRawRecord builds a RawRecord from decoded fields. Fields whose values
// have no canonical text are skipped with a warning; the rest of the record
// is kept.
func NewRawRecord(ctx context.Context, fields map[string]any) RawRecord {
	r := make(RawRecord, len(fields))
	for k, f := range fields {
		v, err := ValueOf(f)
		if err != nil {
			log.Ctx(ctx).Warn().Err(err).Str("field", k).Msg("skipping field")
			continue
		}
		r[k] = v
	}
	return r
}
