package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Parse decodes canonical (or any equivalent JSON) bytes into an
// Envelope. Since the canonical form is valid JSON, the standard decoder
// can read it back; round-tripping through Canonical afterwards must
// reproduce the exact same bytes (I1).
func Parse(data []byte) (Envelope, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw struct {
		V       json.Number    `json:"v"`
		Kind    string         `json:"kind"`
		TradeID string         `json:"trade_id"`
		Body    map[string]any `json:"body"`
		TS      json.Number    `json:"ts"`
		Nonce   string         `json:"nonce"`
		Signer  string         `json:"signer"`
		Sig     string         `json:"sig"`
	}
	if err := dec.Decode(&raw); err != nil {
		return Envelope{}, fmt.Errorf("parse envelope: %w", err)
	}

	v, err := raw.V.Int64()
	if err != nil {
		return Envelope{}, fmt.Errorf("parse envelope: field v: %w", err)
	}
	ts, err := raw.TS.Int64()
	if err != nil {
		return Envelope{}, fmt.Errorf("parse envelope: field ts: %w", err)
	}

	body, err := normalizeNumbers(raw.Body)
	if err != nil {
		return Envelope{}, err
	}

	return Envelope{
		V:       int(v),
		Kind:    Kind(raw.Kind),
		TradeID: raw.TradeID,
		Body:    body.(map[string]any),
		TS:      ts,
		Nonce:   raw.Nonce,
		Signer:  raw.Signer,
		Sig:     raw.Sig,
	}, nil
}

// normalizeNumbers converts json.Number leaves (produced by UseNumber)
// into int64 or float64 so the canonicalizer's type switch handles them
// the same way values built in-process are handled.
func normalizeNumbers(v any) (any, error) {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("parse envelope: number %q: %w", val.String(), err)
		}
		return f, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, e := range val {
			nv, err := normalizeNumbers(e)
			if err != nil {
				return nil, err
			}
			out[k] = nv
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, e := range val {
			nv, err := normalizeNumbers(e)
			if err != nil {
				return nil, err
			}
			out[i] = nv
		}
		return out, nil
	default:
		return v, nil
	}
}
