package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/randalmurphal/modcfg/pkg/modcfg/value"
)

// Codec converts between record lists and file contents.
type Codec interface {
	// Ext is the file extension including the dot, e.g. ".json".
	Ext() string

	// Encode serializes records in order.
	Encode(records []Record) ([]byte, error)

	// Decode parses file contents. Any deviation from the record shape
	// yields an error wrapping ErrMalformed.
	Decode(data []byte) ([]Record, error)
}

// wireRecord is the on-disk shape:
//
//	{ "key": "volume", "value": { "type": "int", "value": "5" } }
//
// Pointer fields let Decode tell a missing field from an empty one.
type wireRecord struct {
	Key   *string      `json:"key" yaml:"key"`
	Value *wirePayload `json:"value" yaml:"value"`
}

type wirePayload struct {
	Type  *string `json:"type" yaml:"type"`
	Value *string `json:"value" yaml:"value"`
}

func toWire(records []Record) []wireRecord {
	out := make([]wireRecord, len(records))
	for i, r := range records {
		key, tag, text := r.Key, r.Value.Kind.String(), r.Value.Text
		out[i] = wireRecord{
			Key:   &key,
			Value: &wirePayload{Type: &tag, Value: &text},
		}
	}
	return out
}

func fromWire(in []wireRecord) ([]Record, error) {
	records := make([]Record, 0, len(in))
	for i, w := range in {
		switch {
		case w.Key == nil:
			return nil, fmt.Errorf("%w: record %d: missing key", ErrMalformed, i)
		case w.Value == nil:
			return nil, fmt.Errorf("%w: record %d (%s): missing value", ErrMalformed, i, *w.Key)
		case w.Value.Type == nil:
			return nil, fmt.Errorf("%w: record %d (%s): missing value.type", ErrMalformed, i, *w.Key)
		case w.Value.Value == nil:
			return nil, fmt.Errorf("%w: record %d (%s): missing value.value", ErrMalformed, i, *w.Key)
		}
		kind, err := value.ParseKind(*w.Value.Type)
		if err != nil {
			return nil, fmt.Errorf("%w: record %d (%s): %v", ErrMalformed, i, *w.Key, err)
		}
		records = append(records, Record{
			Key:   *w.Key,
			Value: value.TypedValue{Kind: kind, Text: *w.Value.Value},
		})
	}
	if err := ValidateRecords(records); err != nil {
		return nil, err
	}
	return records, nil
}

// JSON is the default codec. Hand-edited files may carry // and /* */
// comments and trailing commas; they are stripped before strict decoding.
var JSON Codec = jsonCodec{}

type jsonCodec struct{}

func (jsonCodec) Ext() string { return ".json" }

func (jsonCodec) Encode(records []Record) ([]byte, error) {
	data, err := json.MarshalIndent(toWire(records), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

func (jsonCodec) Decode(data []byte) ([]Record, error) {
	clean := jsonc.ToJSON(data)
	dec := json.NewDecoder(bytes.NewReader(clean))
	dec.DisallowUnknownFields()

	var wire *[]wireRecord
	if err := dec.Decode(&wire); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire == nil {
		return nil, fmt.Errorf("%w: top level is not a record list", ErrMalformed)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after record list", ErrMalformed)
	}
	if err := checkJSONFieldNames(clean); err != nil {
		return nil, err
	}
	return fromWire(*wire)
}

// checkJSONFieldNames enforces what encoding/json does not: field names
// match exactly, case included, and appear at most once per object.
// data has already decoded as a record list.
func checkJSONFieldNames(data []byte) error {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i, raw := range raws {
		if err := exactFields(raw, "key", "value"); err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrMalformed, i, err)
		}
		var fields map[string]json.RawMessage
		if err := json.Unmarshal(raw, &fields); err != nil {
			return fmt.Errorf("%w: record %d: %v", ErrMalformed, i, err)
		}
		if err := exactFields(fields["value"], "type", "value"); err != nil {
			return fmt.Errorf("%w: record %d: value: %v", ErrMalformed, i, err)
		}
	}
	return nil
}

// exactFields checks the member names of a JSON object. Anything that is
// not an object is left to the struct decoder.
func exactFields(raw json.RawMessage, names ...string) error {
	if len(raw) == 0 {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil
	}

	seen := make(map[string]bool, len(names))
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, _ := tok.(string)
		if !slices.Contains(names, name) {
			return fmt.Errorf("unknown field %q", name)
		}
		if seen[name] {
			return fmt.Errorf("duplicate field %q", name)
		}
		seen[name] = true

		var skip json.RawMessage
		if err := dec.Decode(&skip); err != nil {
			return err
		}
	}
	return nil
}

// YAML stores the same record list as a YAML sequence.
var YAML Codec = yamlCodec{}

type yamlCodec struct{}

func (yamlCodec) Ext() string { return ".yaml" }

func (yamlCodec) Encode(records []Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(toWire(records)); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (yamlCodec) Decode(data []byte) ([]Record, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var wire *[]wireRecord
	if err := dec.Decode(&wire); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: empty document", ErrMalformed)
		}
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if wire == nil {
		return nil, fmt.Errorf("%w: top level is not a record list", ErrMalformed)
	}
	return fromWire(*wire)
}

// CodecFor returns the codec registered under a format name ("json", "yaml").
func CodecFor(format string) (Codec, error) {
	switch format {
	case "", "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}
