// Package form declares the input fields and document slots of a feature's
// add form. The same schema drives rendering, validation and the submission
// payload.
package form

import (
	"fmt"
	"net/mail"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// FieldType is the input kind of a field.
type FieldType string

const (
	Text     FieldType = "text"
	TextArea FieldType = "textarea"
	Select   FieldType = "select"
	Date     FieldType = "date"
	Number   FieldType = "number"
	Email    FieldType = "email"
	Phone    FieldType = "phone"
)

const dateLayout = "2006-01-02"

// Field is one statically declared input. Name is the remote API field name.
type Field struct {
	Name      string    `json:"name"`
	Label     string    `json:"label"`
	Type      FieldType `json:"type"`
	Required  bool      `json:"required"`
	Options   []string  `json:"options,omitempty"`
	Default   string    `json:"default,omitempty"`
	MaxLength int       `json:"max_length,omitempty"`
}

// Slot is a document the form collects as a file attachment.
type Slot struct {
	Key      string   `json:"key"`
	Label    string   `json:"label"`
	Optional bool     `json:"optional,omitempty"`
	Accept   []string `json:"accept,omitempty"`
}

// Schema is the add form of a feature.
type Schema struct {
	Title     string  `json:"title"`
	Fields    []Field `json:"fields"`
	Documents []Slot  `json:"documents,omitempty"`
}

// Values maps field names to raw string input.
type Values map[string]string

// FieldErrors maps field names to a validation message.
type FieldErrors map[string]string

func (fe FieldErrors) Error() string {
	keys := make([]string, 0, len(fe))
	for k := range fe {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+fe[k])
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

// Field returns the declared field with name.
func (s Schema) Field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Slot returns the declared document slot with key.
func (s Schema) Slot(key string) (Slot, bool) {
	for _, d := range s.Documents {
		if d.Key == key {
			return d, true
		}
	}
	return Slot{}, false
}

// Defaults returns the initial values of an empty add form.
func (s Schema) Defaults() Values {
	v := make(Values, len(s.Fields))
	for _, f := range s.Fields {
		v[f.Name] = f.Default
	}
	return v
}

// FromURLValues keeps the declared fields of a parsed form body, trimmed.
// Undeclared keys are dropped.
func (s Schema) FromURLValues(in url.Values) Values {
	v := make(Values, len(s.Fields))
	for _, f := range s.Fields {
		if raw, ok := in[f.Name]; ok && len(raw) > 0 {
			v[f.Name] = strings.TrimSpace(raw[0])
		}
	}
	return v
}

// FromMap keeps the declared fields of a decoded JSON body, trimmed.
func (s Schema) FromMap(in map[string]any) Values {
	v := make(Values, len(s.Fields))
	for _, f := range s.Fields {
		raw, ok := in[f.Name]
		if !ok || raw == nil {
			continue
		}
		switch t := raw.(type) {
		case string:
			v[f.Name] = strings.TrimSpace(t)
		case float64:
			v[f.Name] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			v[f.Name] = strconv.FormatBool(t)
		default:
			v[f.Name] = strings.TrimSpace(fmt.Sprint(t))
		}
	}
	return v
}

// Validate checks values against the schema. It returns nil when every
// field is acceptable.
func (s Schema) Validate(v Values) FieldErrors {
	errs := FieldErrors{}
	for _, f := range s.Fields {
		val := strings.TrimSpace(v[f.Name])
		if val == "" {
			if f.Required {
				errs[f.Name] = f.label() + " is required."
			}
			continue
		}
		if f.MaxLength > 0 && len([]rune(val)) > f.MaxLength {
			errs[f.Name] = fmt.Sprintf("%s must be at most %d characters.", f.label(), f.MaxLength)
			continue
		}
		if msg := f.check(val); msg != "" {
			errs[f.Name] = msg
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errs
}

func (f Field) label() string {
	if f.Label != "" {
		return f.Label
	}
	return f.Name
}

func (f Field) check(val string) string {
	switch f.Type {
	case Date:
		if _, err := time.Parse(dateLayout, val); err != nil {
			return f.label() + " must be a date (YYYY-MM-DD)."
		}
	case Number:
		if _, err := strconv.ParseFloat(val, 64); err != nil {
			return f.label() + " must be a number."
		}
	case Email:
		if _, err := mail.ParseAddress(val); err != nil {
			return f.label() + " must be a valid email address."
		}
	case Select:
		for _, opt := range f.Options {
			if opt == val {
				return ""
			}
		}
		return f.label() + " has an unknown option."
	}
	return ""
}

// Payload returns the submission fields: every declared field with a
// non-empty value, keyed by the remote field name.
func (s Schema) Payload(v Values) map[string]string {
	out := make(map[string]string, len(s.Fields))
	for _, f := range s.Fields {
		if val := strings.TrimSpace(v[f.Name]); val != "" {
			out[f.Name] = val
		}
	}
	return out
}
