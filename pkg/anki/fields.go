// Package anki is the host side of an export: decks, a note type with a
// fixed field set and notes written as Anki plain-text import files.
package anki

import (
	"errors"
	"fmt"
)

// ErrUnknownField is returned for a field name outside the note type.
var ErrUnknownField = errors.New("anki: unknown field")

// Field names one field of the vocabulary note type.
type Field string

const (
	FieldWord             Field = "word"
	FieldIPAUK            Field = "ipa_uk"
	FieldIPAUS            Field = "ipa_us"
	FieldIPAAudio         Field = "ipa_audio"
	FieldDefinitionCN     Field = "definition_cn"
	FieldSourceName1      Field = "source_name1"
	FieldSourceContent1   Field = "source_content1"
	FieldSourceTranslate1 Field = "source_translate1"
	FieldSourceName2      Field = "source_name2"
	FieldSourceContent2   Field = "source_content2"
	FieldSourceTranslate2 Field = "source_translate2"
	FieldExampleEN1       Field = "example_en1"
	FieldExampleCN1       Field = "example_cn1"
	FieldExampleEN2       Field = "example_en2"
	FieldExampleCN2       Field = "example_cn2"
)

var allFields = []Field{
	FieldWord, FieldIPAUK, FieldIPAUS, FieldIPAAudio, FieldDefinitionCN,
	FieldSourceName1, FieldSourceContent1, FieldSourceTranslate1,
	FieldSourceName2, FieldSourceContent2, FieldSourceTranslate2,
	FieldExampleEN1, FieldExampleCN1, FieldExampleEN2, FieldExampleCN2,
}

// Fields returns the note type's fields in column order.
func Fields() []Field {
	out := make([]Field, len(allFields))
	copy(out, allFields)
	return out
}

// Valid reports whether f belongs to the note type.
func (f Field) Valid() bool {
	for _, known := range allFields {
		if f == known {
			return true
		}
	}
	return false
}

// ParseField maps a field name to its Field.
func ParseField(name string) (Field, error) {
	f := Field(name)
	if !f.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	return f, nil
}

// SourceFields are the three fields describing source slot i (0-based).
func SourceFields(i int) (name, content, translate Field) {
	if i == 0 {
		return FieldSourceName1, FieldSourceContent1, FieldSourceTranslate1
	}
	return FieldSourceName2, FieldSourceContent2, FieldSourceTranslate2
}

// ExampleFields are the two fields of example slot i (0-based).
func ExampleFields(i int) (en, cn Field) {
	if i == 0 {
		return FieldExampleEN1, FieldExampleCN1
	}
	return FieldExampleEN2, FieldExampleCN2
}
