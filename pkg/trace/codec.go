package trace

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"unicode/utf8"

	"github.com/matzehuels/heapview/pkg/errors"
)

// =============================================================================
// Wire Types
// =============================================================================

// wireTrace is the snapshot as exchanged with producers. Pointer fields let
// the decoder tell a missing field from an empty one.
type wireTrace struct {
	Frames  *[]wireFrame  `json:"frames"`
	Heap    *[]wireEntity `json:"heap"`
	Statics []wireVar     `json:"statics,omitempty"`
}

type wireFrame struct {
	Name     *string   `json:"name"`
	Internal bool      `json:"internal"`
	Locals   []wireVar `json:"locals"`
}

type wireEntity struct {
	ID     *int64      `json:"id"`
	Label  string      `json:"label"`
	Type   *EntityKind `json:"type"`
	Fields *[]wireVar  `json:"fields,omitempty"`
	Items  *[]Value    `json:"items,omitempty"`
	Pairs  *[]wirePair `json:"pairs,omitempty"`
}

// wireVar is a [name, valueTuple] array.
type wireVar struct {
	Name  string
	Value Value
}

// wirePair is a [keyTuple, valueTuple] array.
type wirePair struct {
	Key Value
	Val Value
}

// =============================================================================
// Public API
// =============================================================================

// Decode parses a snapshot. Any missing required field, unknown value tag or
// malformed payload fails with an [errors.ErrCodeInvalidFormat] error.
func Decode(data []byte) (*Trace, error) {
	return Read(bytes.NewReader(data))
}

// Read decodes a single snapshot from r. It does not close r.
func Read(r io.Reader) (*Trace, error) {
	var w wireTrace
	dec := json.NewDecoder(r)
	if err := dec.Decode(&w); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "decode trace")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "decode trace: trailing data after snapshot")
	}
	return fromWire(w)
}

// ReadFile decodes the snapshot stored at path.
func ReadFile(path string) (*Trace, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeFileNotFound, err, "open %s", path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	return Read(f)
}

// Encode serializes t to its wire form. Changed flags are not encoded.
func Encode(t *Trace) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(t, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write encodes t as indented JSON to w.
func Write(t *Trace, w io.Writer) error {
	out, err := toWire(t)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

// WriteFile writes t to path, creating or truncating it.
func WriteFile(t *Trace, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return Write(t, f)
}

// =============================================================================
// Wire Conversion
// =============================================================================

func fromWire(w wireTrace) (*Trace, error) {
	if w.Frames == nil {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "missing field: frames")
	}
	if w.Heap == nil {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "missing field: heap")
	}

	t := &Trace{Frames: make([]Frame, 0, len(*w.Frames))}
	for i, wf := range *w.Frames {
		if wf.Name == nil {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "frame %d: missing field: name", i)
		}
		locals, err := varsFromWire(wf.Locals)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "frame %d (%s)", i, *wf.Name)
		}
		t.Frames = append(t.Frames, Frame{Name: *wf.Name, Internal: wf.Internal, Locals: locals})
	}

	for i, we := range *w.Heap {
		e, err := entityFromWire(we)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "heap entry %d", i)
		}
		if _, dup := t.Heap.Get(e.ID); dup {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "heap entry %d: duplicate id %d", i, e.ID)
		}
		t.Heap.Put(e)
	}

	statics, err := varsFromWire(w.Statics)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "statics")
	}
	t.Statics = statics
	return t, nil
}

func entityFromWire(we wireEntity) (*Entity, error) {
	if we.ID == nil {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "missing field: id")
	}
	if we.Type == nil {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "entity %d: missing field: type", *we.ID)
	}
	e := &Entity{ID: *we.ID, Label: we.Label}

	switch *we.Type {
	case KindObject:
		if we.Fields == nil {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "entity %d: missing field: fields", e.ID)
		}
		fields, err := varsFromWire(*we.Fields)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "entity %d", e.ID)
		}
		e.Body = &Object{Fields: fields}
	case KindList:
		if we.Items == nil {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "entity %d: missing field: items", e.ID)
		}
		e.Body = &List{Items: *we.Items}
	case KindMap:
		if we.Pairs == nil {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "entity %d: missing field: pairs", e.ID)
		}
		pairs := make([]Pair, len(*we.Pairs))
		for i, p := range *we.Pairs {
			pairs[i] = Pair(p)
		}
		e.Body = &Map{Pairs: pairs}
	default:
		return nil, errors.New(errors.ErrCodeInvalidFormat, "entity %d: unknown type %q", e.ID, string(*we.Type))
	}
	return e, nil
}

func varsFromWire(ws []wireVar) (Vars, error) {
	vs := make(Vars, 0, len(ws))
	for _, w := range ws {
		if _, dup := vs.Get(w.Name); dup {
			return nil, errors.New(errors.ErrCodeInvalidFormat, "duplicate name %q", w.Name)
		}
		vs.Set(w.Name, w.Value)
	}
	return vs, nil
}

func toWire(t *Trace) (wireTrace, error) {
	frames := make([]wireFrame, len(t.Frames))
	for i, f := range t.Frames {
		name := f.Name
		frames[i] = wireFrame{Name: &name, Internal: f.Internal, Locals: varsToWire(f.Locals)}
	}

	heap := make([]wireEntity, 0, t.Heap.Len())
	for e := range t.Heap.All() {
		we := wireEntity{ID: &e.ID, Label: e.Label}
		switch b := e.Body.(type) {
		case *Object:
			fields := varsToWire(b.Fields)
			we.Fields = &fields
		case *List:
			items := b.Items
			if items == nil {
				items = []Value{}
			}
			we.Items = &items
		case *Map:
			pairs := make([]wirePair, len(b.Pairs))
			for i, p := range b.Pairs {
				pairs[i] = wirePair(p)
			}
			we.Pairs = &pairs
		default:
			return wireTrace{}, errors.New(errors.ErrCodeInvalidFormat, "entity %d: missing body", e.ID)
		}
		kind := e.Body.Kind()
		we.Type = &kind
		heap = append(heap, we)
	}

	var statics []wireVar
	if len(t.Statics) > 0 {
		statics = varsToWire(t.Statics)
	}
	return wireTrace{Frames: &frames, Heap: &heap, Statics: statics}, nil
}

func varsToWire(vs Vars) []wireVar {
	out := make([]wireVar, len(vs))
	for i, v := range vs {
		out[i] = wireVar(v)
	}
	return out
}

// =============================================================================
// Tuple Encoding
// =============================================================================

func (w wireVar) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{w.Name, w.Value})
}

func (w *wireVar) UnmarshalJSON(data []byte) error {
	parts, err := tuple(data, 2)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(parts[0], &w.Name); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFormat, err, "slot name")
	}
	if err := json.Unmarshal(parts[1], &w.Value); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFormat, err, "slot %q", w.Name)
	}
	return nil
}

func (p wirePair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]Value{p.Key, p.Val})
}

func (p *wirePair) UnmarshalJSON(data []byte) error {
	parts, err := tuple(data, 2)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(parts[0], &p.Key); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFormat, err, "pair key")
	}
	if err := json.Unmarshal(parts[1], &p.Val); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFormat, err, "pair value")
	}
	return nil
}

// MarshalJSON encodes v as a [tag, payload?] tuple.
func (v Value) MarshalJSON() ([]byte, error) {
	tag := v.Kind.String()
	var payload any
	switch v.Kind {
	case KindNull, KindVoid:
		return json.Marshal([1]string{tag})
	case KindLong:
		payload = v.Long
	case KindDouble:
		payload = encodeDouble(v.Double)
	case KindBoolean:
		payload = v.Bool
	case KindString:
		payload = v.Str
	case KindChar:
		if utf8.ValidRune(v.Char) {
			payload = string(v.Char)
		} else {
			payload = v.Char
		}
	case KindReference:
		payload = v.Ref
	default:
		return nil, errors.New(errors.ErrCodeInvalidFormat, "unknown value kind %d", v.Kind)
	}
	return json.Marshal([2]any{tag, payload})
}

// UnmarshalJSON decodes a [tag, payload?] tuple. The Changed flag is reset.
func (v *Value) UnmarshalJSON(data []byte) error {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFormat, err, "value tuple")
	}
	if len(parts) == 0 {
		return errors.New(errors.ErrCodeInvalidFormat, "empty value tuple")
	}
	var tag string
	if err := json.Unmarshal(parts[0], &tag); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFormat, err, "value tag")
	}
	kind, ok := ParseKind(tag)
	if !ok {
		return errors.New(errors.ErrCodeInvalidFormat, "unknown value tag %q", tag)
	}

	*v = Value{Kind: kind}
	if kind == KindNull || kind == KindVoid {
		if len(parts) != 1 {
			return errors.New(errors.ErrCodeInvalidFormat, "%s takes no payload", tag)
		}
		return nil
	}
	if len(parts) != 2 {
		return errors.New(errors.ErrCodeInvalidFormat, "%s needs exactly one payload", tag)
	}

	raw := parts[1]
	// json.Unmarshal treats null as a no-op, which would leave a zero payload.
	if bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return errors.New(errors.ErrCodeInvalidFormat, "%s payload is null", tag)
	}
	var err error
	switch kind {
	case KindLong:
		err = json.Unmarshal(raw, &v.Long)
	case KindDouble:
		v.Double, err = decodeDouble(raw)
	case KindBoolean:
		err = json.Unmarshal(raw, &v.Bool)
	case KindString:
		err = json.Unmarshal(raw, &v.Str)
	case KindChar:
		v.Char, err = decodeChar(raw)
	case KindReference:
		err = json.Unmarshal(raw, &v.Ref)
	}
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFormat, err, "%s payload %s", tag, string(raw))
	}
	return nil
}

func tuple(data []byte, n int) ([]json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "tuple")
	}
	if len(parts) != n {
		return nil, errors.New(errors.ErrCodeInvalidFormat, "tuple has %d elements, want %d", len(parts), n)
	}
	return parts, nil
}

// Non-finite doubles have no JSON number form; they travel as strings.
func encodeDouble(f float64) any {
	switch {
	case math.IsNaN(f):
		return "NaN"
	case math.IsInf(f, 1):
		return "Infinity"
	case math.IsInf(f, -1):
		return "-Infinity"
	}
	return f
}

func decodeDouble(raw json.RawMessage) (float64, error) {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		switch s {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
		return 0, fmt.Errorf("not a double: %q", s)
	}
	var f float64
	err := json.Unmarshal(raw, &f)
	return f, err
}

// decodeChar accepts a one-rune string or an integer code point.
func decodeChar(raw json.RawMessage) (rune, error) {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		r, size := utf8.DecodeRuneInString(s)
		if size == 0 || size != len(s) || r == utf8.RuneError && size == 1 {
			return 0, fmt.Errorf("not a single character: %q", s)
		}
		return r, nil
	}
	var cp int32
	if err := json.Unmarshal(raw, &cp); err != nil {
		return 0, err
	}
	if cp < 0 || cp > utf8.MaxRune {
		return 0, fmt.Errorf("code point out of range: %d", cp)
	}
	return cp, nil
}
