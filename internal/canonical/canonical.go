// Package canonical produces a byte-stable JSON rendering used only for
// hashing. Object keys are sorted lexicographically at every depth, arrays
// keep source order, numbers are rendered in their shortest exact form, and
// strings are emitted as literal UTF-8 (no \uXXXX escaping, except for
// control characters below U+0020 other than \n, \r and \t).
//
// The output is never used for storage — only as the input to the hash
// chain in package chain. Any deviation here (key order, number
// representation, escaping policy) silently breaks hash equivalence across
// reimplementations, so the algorithm is pinned and covered by round-trip
// tests rather than left to encoding/json's default behavior.
package canonical

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Marshal renders v as canonical JSON bytes. v is first passed through
// encoding/json (so struct tags, omitempty, etc. are honored) and then
// re-serialized deterministically from the resulting generic value tree.
func Marshal(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("canonical: marshaling input: %w", err)
	}

	var generic any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("canonical: decoding intermediate form: %w", err)
	}

	var b strings.Builder
	if err := encode(&b, generic); err != nil {
		return nil, err
	}
	return []byte(b.String()), nil
}

// MustMarshal is Marshal but panics on error. Safe to use on values that are
// known to be JSON-marshalable (every type in this codebase's data model).
func MustMarshal(v any) []byte {
	b, err := Marshal(v)
	if err != nil {
		panic(err)
	}
	return b
}

// Equal reports whether a and b canonicalize to the same bytes — i.e.
// whether they are structurally equal independent of key order and
// whitespace.
func Equal(a, b any) (bool, error) {
	ca, err := Marshal(a)
	if err != nil {
		return false, err
	}
	cb, err := Marshal(b)
	if err != nil {
		return false, err
	}
	return string(ca) == string(cb), nil
}

func encode(b *strings.Builder, v any) error {
	switch t := v.(type) {
	case nil:
		b.WriteString("null")
		return nil
	case bool:
		if t {
			b.WriteString("true")
		} else {
			b.WriteString("false")
		}
		return nil
	case json.Number:
		return encodeNumber(b, t)
	case string:
		encodeString(b, t)
		return nil
	case []any:
		return encodeArray(b, t)
	case map[string]any:
		return encodeObject(b, t)
	default:
		return fmt.Errorf("canonical: unsupported value type %T", v)
	}
}

func encodeNumber(b *strings.Builder, n json.Number) error {
	// Shortest exact form: integers render without a decimal point or
	// exponent; everything else round-trips through float64 and uses Go's
	// shortest round-trippable representation.
	if i, err := n.Int64(); err == nil {
		b.WriteString(strconv.FormatInt(i, 10))
		return nil
	}
	f, err := n.Float64()
	if err != nil {
		return fmt.Errorf("canonical: invalid number %q: %w", n.String(), err)
	}
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return fmt.Errorf("canonical: non-finite number %q", n.String())
	}
	b.WriteString(strconv.FormatFloat(f, 'g', -1, 64))
	return nil
}

func encodeString(b *strings.Builder, s string) {
	b.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			b.WriteString(`\"`)
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(b, `\u%04x`, r)
			} else {
				b.WriteRune(r)
			}
		}
	}
	b.WriteByte('"')
}

func encodeArray(b *strings.Builder, a []any) error {
	b.WriteByte('[')
	for i, elem := range a {
		if i > 0 {
			b.WriteByte(',')
		}
		if err := encode(b, elem); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

func encodeObject(b *strings.Builder, o map[string]any) error {
	keys := make([]string, 0, len(o))
	for k := range o {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		encodeString(b, k)
		b.WriteByte(':')
		if err := encode(b, o[k]); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}
