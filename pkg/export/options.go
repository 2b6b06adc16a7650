package export

import (
	"errors"
	"fmt"
	"slices"
)

// ErrInvalidOption is returned for an unrecognized rendering option.
var ErrInvalidOption = errors.New("export: invalid option")

// TitleLanguage selects which names and titles are surfaced.
type TitleLanguage string

const (
	TitleCN TitleLanguage = "cn"
	TitleEN TitleLanguage = "en"
)

// LinkStyle selects how source names are wrapped.
type LinkStyle string

const (
	LinkNone LinkStyle = "none"
	LinkWeb  LinkStyle = "web"
	LinkApp  LinkStyle = "app"
)

// Accent is a pronunciation variant.
type Accent string

const (
	AccentUK Accent = "uk"
	AccentUS Accent = "us"
)

// accents is the fixed rendering order of accent-dependent fields.
var accents = []Accent{AccentUK, AccentUS}

// Options configures a projection.
type Options struct {
	TitleLanguage        TitleLanguage
	LinkStyle            LinkStyle
	PhoneticAccents      []Accent
	PronunciationAccents []Accent
	IncludeExamples      bool
}

// DefaultOptions renders Chinese titles with web links, both phonetics and
// both pronunciations.
func DefaultOptions() Options {
	return Options{
		TitleLanguage:        TitleCN,
		LinkStyle:            LinkWeb,
		PhoneticAccents:      []Accent{AccentUK, AccentUS},
		PronunciationAccents: []Accent{AccentUK, AccentUS},
		IncludeExamples:      true,
	}
}

// Validate rejects unknown option values.
func (o Options) Validate() error {
	switch o.TitleLanguage {
	case TitleCN, TitleEN:
	default:
		return fmt.Errorf("%w: title language %q", ErrInvalidOption, o.TitleLanguage)
	}
	switch o.LinkStyle {
	case LinkNone, LinkWeb, LinkApp:
	default:
		return fmt.Errorf("%w: link style %q", ErrInvalidOption, o.LinkStyle)
	}
	for _, a := range append(slices.Clone(o.PhoneticAccents), o.PronunciationAccents...) {
		if _, err := ParseAccent(string(a)); err != nil {
			return err
		}
	}
	return nil
}

// ParseTitleLanguage maps "cn" or "en".
func ParseTitleLanguage(s string) (TitleLanguage, error) {
	l := TitleLanguage(s)
	if l != TitleCN && l != TitleEN {
		return "", fmt.Errorf("%w: title language %q", ErrInvalidOption, s)
	}
	return l, nil
}

// ParseLinkStyle maps "none", "web" or "app".
func ParseLinkStyle(s string) (LinkStyle, error) {
	l := LinkStyle(s)
	if l != LinkNone && l != LinkWeb && l != LinkApp {
		return "", fmt.Errorf("%w: link style %q", ErrInvalidOption, s)
	}
	return l, nil
}

// ParseAccent maps "uk" or "us".
func ParseAccent(s string) (Accent, error) {
	a := Accent(s)
	if !slices.Contains(accents, a) {
		return "", fmt.Errorf("%w: accent %q", ErrInvalidOption, s)
	}
	return a, nil
}

// ParseAccents maps a list of accent names.
func ParseAccents(names []string) ([]Accent, error) {
	out := make([]Accent, 0, len(names))
	for _, n := range names {
		a, err := ParseAccent(n)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
