package intake

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// FormRecord maps to one processed patient form as stored by the OCR
// pipeline. Only BlobURL and Documents feed the export; the remaining
// attributes are decoded for logging.
//
// encoding/json matches keys case-insensitively, so documents written with
// either PascalCase or camelCase property names decode the same way.
type FormRecord struct {
	ID                string          `json:"id"`
	BlobURL           string          `json:"blobUrl"`
	ModelTypeProposed string          `json:"modelTypeProposed,omitempty"`
	PageNumber        int             `json:"pageNumber,omitempty"`
	ProcessingStatus  string          `json:"processingStatus,omitempty"`
	UpdateDateTime    string          `json:"updateDateTime,omitempty"`
	Documents         []*FormDocument `json:"patientForms"`
}

// FormDocument is one extracted document within a form record.
type FormDocument struct {
	ModelTypeActual string `json:"modelTypeActual,omitempty"`
	Fields          Fields `json:"fields"`
	Tables          Tables `json:"tables"`
}

// Field is a single extracted key/value pair. Value is nil when the stored
// document holds null for the key.
type Field struct {
	Key   string
	Value *string
}

// Fields is an ordered set of extracted fields, kept in the order the keys
// appear in the stored document.
type Fields []Field

// Get returns the value of the first field named key. The second result is
// false when the key is missing or its value is null.
func (f Fields) Get(key string) (string, bool) {
	for _, fld := range f {
		if fld.Key == key {
			if fld.Value == nil {
				return "", false
			}
			return *fld.Value, true
		}
	}
	return "", false
}

// Has reports whether key is defined with a non-null value.
func (f Fields) Has(key string) bool {
	_, ok := f.Get(key)
	return ok
}

// Contains reports whether key is stored, even with a null value.
func (f Fields) Contains(key string) bool {
	for _, fld := range f {
		if fld.Key == key {
			return true
		}
	}
	return false
}

func (f *Fields) UnmarshalJSON(data []byte) error {
	var out Fields
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		v, err := scalarString(raw)
		if err != nil {
			return fmt.Errorf("field %q: %w", key, err)
		}
		out = append(out, Field{Key: key, Value: v})
		return nil
	})
	if err != nil {
		return err
	}
	*f = out
	return nil
}

// Cell is one column value of a table row.
type Cell struct {
	Column string
	Value  string
}

// Row is an ordered set of cells.
type Row []Cell

func (r *Row) UnmarshalJSON(data []byte) error {
	var out Row
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		v, err := scalarString(raw)
		if err != nil {
			return fmt.Errorf("column %q: %w", key, err)
		}
		c := Cell{Column: key}
		if v != nil {
			c.Value = *v
		}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return err
	}
	*r = out
	return nil
}

// Table is a named grid of extracted rows.
type Table struct {
	Name string
	Rows []Row
}

// Tables is an ordered set of tables keyed by name.
type Tables []Table

func (t *Tables) UnmarshalJSON(data []byte) error {
	var out Tables
	err := decodeObject(data, func(key string, raw json.RawMessage) error {
		var rows []Row
		if err := json.Unmarshal(raw, &rows); err != nil {
			return fmt.Errorf("table %q: %w", key, err)
		}
		out = append(out, Table{Name: key, Rows: rows})
		return nil
	})
	if err != nil {
		return err
	}
	*t = out
	return nil
}

// decodeObject walks a JSON object in document order. A JSON null decodes to
// an empty object.
func decodeObject(data []byte, fn func(key string, raw json.RawMessage) error) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("expected JSON object, got %v", tok)
	}

	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("expected object key, got %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		if err := fn(key, raw); err != nil {
			return err
		}
	}

	_, err = dec.Token()
	return err
}

// scalarString converts a JSON value into the string form the forms pipeline
// stores. Booleans become "True"/"False", numbers keep their literal text and
// nested values keep their compact JSON text. null yields nil.
func scalarString(raw json.RawMessage) (*string, error) {
	trimmed := bytes.TrimSpace(raw)
	var s string
	switch {
	case len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")):
		return nil, nil
	case trimmed[0] == '"':
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
	case bytes.Equal(trimmed, []byte("true")):
		s = "True"
	case bytes.Equal(trimmed, []byte("false")):
		s = "False"
	case trimmed[0] == '{' || trimmed[0] == '[':
		var buf bytes.Buffer
		if err := json.Compact(&buf, trimmed); err != nil {
			return nil, err
		}
		s = buf.String()
	default:
		s = string(trimmed)
	}
	return &s, nil
}
