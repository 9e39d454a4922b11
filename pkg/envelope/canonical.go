package envelope

import (
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/minio/blake2b-simd"
)

// toMap projects an Envelope into the plain map form the canonicalizer
// walks. Empty signer/sig are omitted entirely rather than encoded as
// empty strings, so the unsigned projection of a signed envelope is
// byte-identical to an envelope that was never signed.
func (e Envelope) toMap() map[string]any {
	m := map[string]any{
		"v":        int64(e.V),
		"kind":     string(e.Kind),
		"trade_id": e.TradeID,
		"body":     e.Body,
		"ts":       e.TS,
		"nonce":    e.Nonce,
	}
	if e.Signer != "" {
		m["signer"] = e.Signer
	}
	if e.Sig != "" {
		m["sig"] = e.Sig
	}
	return m
}

// Canonical renders the deterministic byte encoding of an envelope's
// unsigned projection: sorted mapping keys, shortest-round-trip number
// rendering, minimally escaped strings, and array order preserved.
func Canonical(e Envelope) ([]byte, error) {
	var buf strings.Builder
	if err := encodeValue(&buf, e.stripSig().toMap()); err != nil {
		return nil, fmt.Errorf("canonical encode: %w", err)
	}
	return []byte(buf.String()), nil
}

// Hash returns the hex-encoded BLAKE2-256 digest of an envelope's
// canonical unsigned serialization. This is both the envelope ID and the
// digest that gets signed.
func Hash(e Envelope) (string, error) {
	b, err := Canonical(e)
	if err != nil {
		return "", err
	}
	sum := blake2b.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

func encodeValue(buf *strings.Builder, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case string:
		encodeString(buf, val)
	case int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case float64:
		if math.Trunc(val) == val && !math.IsInf(val, 0) {
			buf.WriteString(strconv.FormatInt(int64(val), 10))
		} else {
			buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
		}
	case map[string]any:
		return encodeMap(buf, val)
	case []any:
		return encodeArray(buf, val)
	default:
		return fmt.Errorf("canonical: unsupported value type %T", v)
	}
	return nil
}

func encodeMap(buf *strings.Builder, m map[string]any) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		encodeString(buf, k)
		buf.WriteByte(':')
		if err := encodeValue(buf, m[k]); err != nil {
			return err
		}
	}
	buf.WriteByte('}')
	return nil
}

func encodeArray(buf *strings.Builder, a []any) error {
	buf.WriteByte('[')
	for i, v := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := encodeValue(buf, v); err != nil {
			return err
		}
	}
	buf.WriteByte(']')
	return nil
}

// encodeString writes a minimally escaped JSON string: only the
// characters JSON requires escaping (quote, backslash, and control
// characters) are escaped.
func encodeString(buf *strings.Builder, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				fmt.Fprintf(buf, `\u%04x`, r)
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}
