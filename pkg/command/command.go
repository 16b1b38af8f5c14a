package command

// Package command turns the driving command annotations recorded next to each
// training image into one of our fixed classifier labels.

import (
	"errors"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	MoveForward = 0
	LeftMedium  = 1
	RightMedium = 2
	LeftLight   = 3
	RightLight  = 4
)

// Classes is the closed label enumeration. The position of a label is its class index,
// and this order is baked into every manifest and trained model, so never reorder it.
var Classes = []string{
	"move_forward",
	"left_medium",
	"right_medium",
	"left_light",
	"right_light",
}

// Labels that we never train on
var Excluded = []string{
	"stop",
	"move_backwards",
}

var ErrMalformed = errors.New("Malformed command descriptor")
var ErrUnknownLabel = errors.New("Unknown class label")

// Descriptor is a parsed command annotation, eg {'type': 'move', 'direction': 'forward'}
type Descriptor map[string]any

// Parse a descriptor literal.
// The annotation is a mapping literal with single or double quoted keys, which is
// a subset of YAML flow mappings, so we let the YAML parser do the heavy lifting.
func Parse(text string) (Descriptor, error) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "{") || !strings.HasSuffix(text, "}") {
		return nil, fmt.Errorf("%w: not a mapping literal: %q", ErrMalformed, text)
	}
	d := Descriptor{}
	if err := yaml.Unmarshal([]byte(unescapeQuotes(text)), &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return d, nil
}

// unescapeQuotes rewrites the backslash escapes that the recorder writes inside quoted
// strings (eg 'it\'s') into their YAML form. YAML single quoted strings escape a quote
// as '' and have no backslash escapes, and YAML double quoted strings have no \' escape.
// Other backslash sequences are left alone.
func unescapeQuotes(text string) string {
	if !strings.Contains(text, `\`) {
		return text
	}
	b := strings.Builder{}
	quote := byte(0)
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case quote == 0:
			if c == '\'' || c == '"' {
				quote = c
			}
		case c == '\\' && i+1 < len(text):
			next := text[i+1]
			i++
			switch {
			case quote == '\'' && next == '\'':
				b.WriteString("''")
			case quote == '\'' && (next == '\\' || next == '"'):
				b.WriteByte(next)
			case quote == '"' && next == '\'':
				b.WriteByte(next)
			default:
				b.WriteByte(c)
				b.WriteByte(next)
			}
			continue
		case c == quote:
			quote = 0
		}
		b.WriteByte(c)
	}
	return b.String()
}

func (d Descriptor) field(name string) (string, error) {
	raw, ok := d[name]
	if !ok {
		return "", fmt.Errorf("%w: missing field '%v'", ErrMalformed, name)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: field '%v' is not a string", ErrMalformed, name)
	}
	return s, nil
}

// Normalize returns the label of the descriptor.
//
//	move       -> move_<direction>
//	left/right -> <type>_<style>
//	anything else is returned unchanged
func (d Descriptor) Normalize() (string, error) {
	typ, err := d.field("type")
	if err != nil {
		return "", err
	}
	switch typ {
	case "move":
		direction, err := d.field("direction")
		if err != nil {
			return "", err
		}
		return typ + "_" + direction, nil
	case "left", "right":
		style, err := d.field("style")
		if err != nil {
			return "", err
		}
		return typ + "_" + style, nil
	}
	return typ, nil
}

// ParseLabel parses and normalizes a descriptor literal in one step.
func ParseLabel(text string) (string, error) {
	d, err := Parse(text)
	if err != nil {
		return "", err
	}
	return d.Normalize()
}

// IsExcluded returns true if examples with this label must be dropped
func IsExcluded(label string) bool {
	for _, e := range Excluded {
		if e == label {
			return true
		}
	}
	return false
}

// Index returns the class index of label, or ErrUnknownLabel
func Index(label string) (int, error) {
	for i, c := range Classes {
		if c == label {
			return i, nil
		}
	}
	return -1, fmt.Errorf("%w '%v'", ErrUnknownLabel, label)
}

// Name returns the label of a class index, or an empty string if the index is out of range
func Name(index int) string {
	if index < 0 || index >= len(Classes) {
		return ""
	}
	return Classes[index]
}
