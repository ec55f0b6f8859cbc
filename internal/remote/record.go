package remote

import (
	"fmt"
	"time"
)

// ValueKind names the type carried by a Value
type ValueKind string

const (
	KindString ValueKind = "string"
	KindDouble ValueKind = "double"
	KindInt    ValueKind = "int"
	KindBool   ValueKind = "bool"
	KindTime   ValueKind = "timestamp"
	KindRef    ValueKind = "reference"
)

// RefAction says what happens to a child when its referenced parent is
// deleted
type RefAction string

const (
	ActionNone       RefAction = "none"
	ActionDeleteSelf RefAction = "deleteSelf"
)

// Reference points from a child record to its parent
type Reference struct {
	ID     string    `json:"id"`
	Action RefAction `json:"action"`
}

// Value is one typed record field
type Value struct {
	Kind ValueKind  `json:"kind"`
	Str  string     `json:"str,omitempty"`
	Num  float64    `json:"num,omitempty"`
	Int  int64      `json:"int,omitempty"`
	Bool bool       `json:"bool,omitempty"`
	Time time.Time  `json:"time,omitzero"`
	Ref  *Reference `json:"ref,omitempty"`
}

func String(s string) Value    { return Value{Kind: KindString, Str: s} }
func Double(f float64) Value   { return Value{Kind: KindDouble, Num: f} }
func Int(i int64) Value        { return Value{Kind: KindInt, Int: i} }
func Bool(b bool) Value        { return Value{Kind: KindBool, Bool: b} }
func Timestamp(t time.Time) Value {
	return Value{Kind: KindTime, Time: t.UTC()}
}

// Ref builds a cascading reference to parentID
func Ref(parentID string) Value {
	return Value{Kind: KindRef, Ref: &Reference{ID: parentID, Action: ActionDeleteSelf}}
}

// RefID is a reference used only for matching in query filters
func RefID(id string) Value {
	return Value{Kind: KindRef, Ref: &Reference{ID: id, Action: ActionNone}}
}

// Compare orders two values of the same kind. Values of different kinds
// compare by kind name so sorting stays total.
func Compare(a, b Value) int {
	if a.Kind != b.Kind {
		return cmpOrdered(string(a.Kind), string(b.Kind))
	}
	switch a.Kind {
	case KindString:
		return cmpOrdered(a.Str, b.Str)
	case KindDouble:
		return cmpOrdered(a.Num, b.Num)
	case KindInt:
		return cmpOrdered(a.Int, b.Int)
	case KindBool:
		switch {
		case a.Bool == b.Bool:
			return 0
		case !a.Bool:
			return -1
		default:
			return 1
		}
	case KindTime:
		return a.Time.Compare(b.Time)
	case KindRef:
		return cmpOrdered(refID(a), refID(b))
	}
	return 0
}

func refID(v Value) string {
	if v.Ref == nil {
		return ""
	}
	return v.Ref.ID
}

func cmpOrdered[T ~string | ~float64 | ~int64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// Record is one entry in the hierarchical store
type Record struct {
	Type       string           `json:"type"`
	ID         string           `json:"id"`
	ChangeTag  string           `json:"changeTag,omitempty"`
	Fields     map[string]Value `json:"fields"`
	CreatedAt  time.Time        `json:"createdAt,omitzero"`
	ModifiedAt time.Time        `json:"modifiedAt,omitzero"`
}

// NewRecord starts an empty record of the given type
func NewRecord(typ, id string) Record {
	return Record{Type: typ, ID: id, Fields: make(map[string]Value)}
}

// Set assigns a field and returns the record for chaining
func (r Record) Set(field string, v Value) Record {
	if r.Fields == nil {
		r.Fields = make(map[string]Value)
	}
	r.Fields[field] = v
	return r
}

// Clone returns a deep copy of the record
func (r Record) Clone() Record {
	out := r
	out.Fields = make(map[string]Value, len(r.Fields))
	for k, v := range r.Fields {
		if v.Ref != nil {
			ref := *v.Ref
			v.Ref = &ref
		}
		out.Fields[k] = v
	}
	return out
}

// Parents returns the ids this record cascades from
func (r Record) Parents() []string {
	var out []string
	for _, v := range r.Fields {
		if v.Kind == KindRef && v.Ref != nil && v.Ref.Action == ActionDeleteSelf && v.Ref.ID != "" {
			out = append(out, v.Ref.ID)
		}
	}
	return out
}

func (r Record) field(name string, kind ValueKind) (Value, error) {
	v, ok := r.Fields[name]
	if !ok {
		return Value{}, fmt.Errorf("%s %s: missing field %q: %w", r.Type, r.ID, name, ErrEncoding)
	}
	if v.Kind != kind {
		return Value{}, fmt.Errorf("%s %s: field %q is %s, want %s: %w", r.Type, r.ID, name, v.Kind, kind, ErrEncoding)
	}
	return v, nil
}

// GetString decodes a string field
func (r Record) GetString(name string) (string, error) {
	v, err := r.field(name, KindString)
	return v.Str, err
}

// GetOptionalString decodes a string field that may be absent
func (r Record) GetOptionalString(name string) (*string, error) {
	if _, ok := r.Fields[name]; !ok {
		return nil, nil
	}
	v, err := r.field(name, KindString)
	if err != nil {
		return nil, err
	}
	s := v.Str
	return &s, nil
}

// GetDouble decodes a floating point field. Integer fields are widened.
func (r Record) GetDouble(name string) (float64, error) {
	if v, ok := r.Fields[name]; ok && v.Kind == KindInt {
		return float64(v.Int), nil
	}
	v, err := r.field(name, KindDouble)
	return v.Num, err
}

// GetInt decodes an integer field
func (r Record) GetInt(name string) (int64, error) {
	v, err := r.field(name, KindInt)
	return v.Int, err
}

// GetBool decodes a boolean field
func (r Record) GetBool(name string) (bool, error) {
	v, err := r.field(name, KindBool)
	return v.Bool, err
}

// GetTime decodes a timestamp field
func (r Record) GetTime(name string) (time.Time, error) {
	v, err := r.field(name, KindTime)
	return v.Time, err
}

// GetRef decodes a reference field and returns the parent id
func (r Record) GetRef(name string) (string, error) {
	v, err := r.field(name, KindRef)
	if err != nil {
		return "", err
	}
	if v.Ref == nil || v.Ref.ID == "" {
		return "", fmt.Errorf("%s %s: empty reference %q: %w", r.Type, r.ID, name, ErrEncoding)
	}
	return v.Ref.ID, nil
}
