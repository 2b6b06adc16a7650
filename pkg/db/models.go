package db

import (
	"database/sql"
	"strings"
)

// SourceType tags a source slot.
type SourceType string

const (
	SourceNone SourceType = ""
	SourceBook SourceType = "book"
	SourceNews SourceType = "news"
)

// NewsGroup is the synthetic source group that selects every news source.
const NewsGroup = "news"

// WordRecord is one cached vocabulary entry, keyed by the vendor word id.
type WordRecord struct {
	ID           string
	Word         string
	IPAUK        sql.NullString
	IPAUS        sql.NullString
	IPAUKURL     sql.NullString
	IPAUSURL     sql.NullString
	DefinitionCN string
	UpdatedAt    string
	Sources      [Slots]SourceRef
	Examples     [Slots]Example
}

// SourceRef is where the word was met: a book chapter or a news piece.
type SourceRef struct {
	Type        SourceType
	ArticleID   string
	ParagraphID string
	SentenceID  string
	Content     string
	// Translate stays NULL until the translation pass fills it.
	Translate sql.NullString
	NameCN    string
	NameEN    string
	TitleCN   string
	TitleEN   string
}

// Empty reports whether the slot holds no source.
func (s SourceRef) Empty() bool { return s.Type == SourceNone }

// Group is the display name the slot is listed under.
func (s SourceRef) Group() string {
	switch s.Type {
	case SourceBook:
		return GroupName(s.NameCN, s.NameEN, s.TitleCN, s.TitleEN)
	case SourceNews:
		return NewsGroup
	}
	return ""
}

// Example is one bilingual example slot. NULL means not fetched yet, an
// empty string means fetched and none available.
type Example struct {
	EN sql.NullString
	CN sql.NullString
}

// Fetched reports whether the backfill pass already handled the slot.
func (e Example) Fetched() bool { return e.EN.Valid }

// GroupName composes the display name of a book chapter, preferring the
// Chinese names.
func GroupName(nameCN, nameEN, titleCN, titleEN string) string {
	return strings.TrimSpace(firstNonEmpty(nameCN, nameEN) + " " + firstNonEmpty(titleCN, titleEN))
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

// Fields is a partial row keyed by column.
type Fields map[Column]any

// fields flattens the record into a full row.
func (w *WordRecord) fields() Fields {
	f := Fields{
		ColID:           w.ID,
		ColWord:         w.Word,
		ColIPAUK:        w.IPAUK,
		ColIPAUS:        w.IPAUS,
		ColIPAUKURL:     w.IPAUKURL,
		ColIPAUSURL:     w.IPAUSURL,
		ColDefinitionCN: w.DefinitionCN,
		ColUpdatedAt:    nullIfEmpty(w.UpdatedAt),
	}
	for i, src := range w.Sources {
		for col, v := range src.fields(sourceSlots[i]) {
			f[col] = v
		}
	}
	for i, ex := range w.Examples {
		cols := exampleSlots[i]
		f[cols.EN] = ex.EN
		f[cols.CN] = ex.CN
	}
	return f
}

// fields returns the slot's columns; an empty slot is all NULL.
func (s SourceRef) fields(cols SourceColumns) Fields {
	if s.Empty() {
		f := Fields{}
		for _, c := range cols.all() {
			f[c] = nil
		}
		return f
	}
	return Fields{
		cols.Type:        string(s.Type),
		cols.ArticleID:   s.ArticleID,
		cols.ParagraphID: s.ParagraphID,
		cols.SentenceID:  s.SentenceID,
		cols.Content:     s.Content,
		cols.Translate:   s.Translate,
		cols.NameCN:      s.NameCN,
		cols.NameEN:      s.NameEN,
		cols.TitleCN:     s.TitleCN,
		cols.TitleEN:     s.TitleEN,
	}
}

// SourceFields returns the update for storing src in slot i.
func SourceFields(i int, src SourceRef) Fields {
	return src.fields(sourceSlots[i])
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
