package xjson

import (
	"bytes"
	stdjson "encoding/json"
	"fmt"

	gjson "github.com/goccy/go-json"
)

// Marshal/Unmarshal wrappers keep a single import site for the JSON codec,
// so callers never import goccy/go-json or encoding/json directly.

func Marshal(v interface{}) ([]byte, error) {
	return gjson.Marshal(v)
}

func MarshalIndent(v interface{}, prefix, indent string) ([]byte, error) {
	return gjson.MarshalIndent(v, prefix, indent)
}

func Unmarshal(data []byte, v interface{}) error {
	return gjson.Unmarshal(data, v)
}

// Indent reformats a JSON document without decoding it, so numbers and key
// order come out exactly as they went in.
func Indent(data []byte, prefix, indent string) ([]byte, error) {
	var buf bytes.Buffer
	if err := gjson.Indent(&buf, bytes.TrimSpace(data), prefix, indent); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Valid reports whether data is a syntactically valid JSON document.
func Valid(data []byte) bool {
	return gjson.Valid(data)
}

// RawMessage is kept compatible with encoding/json's RawMessage type.
type RawMessage = stdjson.RawMessage

// ObjectKeys returns the member names of a JSON object in document order.
// Duplicate names are reported each time they occur. A JSON null yields no
// keys and no error.
func ObjectKeys(data []byte) ([]string, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}

	dec := gjson.NewDecoder(bytes.NewReader(trimmed))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(gjson.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected JSON object, got %v", tok)
	}

	var keys []string
	for dec.More() {
		tok, err = dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("expected object key, got %v", tok)
		}
		keys = append(keys, key)

		var skip RawMessage
		if err = dec.Decode(&skip); err != nil {
			return nil, err
		}
	}
	if _, err = dec.Token(); err != nil {
		return nil, err
	}
	return keys, nil
}
