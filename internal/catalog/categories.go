package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
)

// Category is one named, ordered keyword list.
type Category struct {
	Name     string
	Keywords []string
}

// Categories is an ordered list of categories. It is encoded as a JSON
// object whose key order matches the slice order:
//
//	{"gambling": ["..."], "adult": ["..."], "custom": []}
type Categories []Category

func (cs Categories) index(name string) int {
	for i, c := range cs {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// clone deep-copies the categories so a writer can build the next state
// without touching slices that readers may hold.
func (cs Categories) clone() Categories {
	out := make(Categories, len(cs))
	for i, c := range cs {
		out[i] = Category{Name: c.Name, Keywords: slices.Clone(c.Keywords)}
	}
	return out
}

// normalize returns a copy with duplicate categories merged and duplicate
// keywords within a category dropped, keeping first occurrences.
func (cs Categories) normalize() Categories {
	out := make(Categories, 0, len(cs))
	for _, c := range cs {
		i := out.index(c.Name)
		if i < 0 {
			out = append(out, Category{Name: c.Name, Keywords: []string{}})
			i = len(out) - 1
		}
		for _, kw := range c.Keywords {
			if !slices.Contains(out[i].Keywords, kw) {
				out[i].Keywords = append(out[i].Keywords, kw)
			}
		}
	}
	return out
}

// MarshalJSON encodes the categories as an ordered JSON object. HTML
// characters are left unescaped so keyword files stay human-editable.
func (cs Categories) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, c := range cs {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writeJSON(&buf, c.Name); err != nil {
			return nil, err
		}
		buf.WriteByte(':')
		kws := c.Keywords
		if kws == nil {
			kws = []string{}
		}
		if err := writeJSON(&buf, kws); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a JSON object of string arrays, preserving key
// order. A null array yields an empty category.
func (cs *Categories) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("catalog: decode: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("catalog: decode: expected object, got %v", tok)
	}

	var out Categories
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("catalog: decode key: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("catalog: decode: unexpected key %v", tok)
		}

		var kws []string
		if err := dec.Decode(&kws); err != nil {
			return fmt.Errorf("catalog: decode category %q: %w", name, err)
		}
		out = append(out, Category{Name: name, Keywords: kws})
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("catalog: decode: %w", err)
	}

	*cs = out.normalize()
	return nil
}

func writeJSON(buf *bytes.Buffer, v any) error {
	enc := json.NewEncoder(buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return err
	}
	// Encode terminates each value with a newline.
	buf.Truncate(buf.Len() - 1)
	return nil
}
