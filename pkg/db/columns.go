package db

import "fmt"

// Column names one column of the words table. Only the constants below are
// valid; write paths reject anything else.
type Column string

const (
	ColID           Column = "id"
	ColWord         Column = "word"
	ColIPAUK        Column = "ipa_uk"
	ColIPAUS        Column = "ipa_us"
	ColIPAUKURL     Column = "ipa_uk_url"
	ColIPAUSURL     Column = "ipa_us_url"
	ColDefinitionCN Column = "definition_cn"
	ColUpdatedAt    Column = "updated_at"

	ColSource1Type        Column = "source1_type"
	ColSource1ArticleID   Column = "source1_article_id"
	ColSource1ParagraphID Column = "source1_paragraph_id"
	ColSource1SentenceID  Column = "source1_sentence_id"
	ColSource1Content     Column = "source1_content"
	ColSource1Translate   Column = "source1_translate"
	ColSource1NameCN      Column = "source1_name_cn"
	ColSource1NameEN      Column = "source1_name_en"
	ColSource1TitleCN     Column = "source1_title_cn"
	ColSource1TitleEN     Column = "source1_title_en"

	ColSource2Type        Column = "source2_type"
	ColSource2ArticleID   Column = "source2_article_id"
	ColSource2ParagraphID Column = "source2_paragraph_id"
	ColSource2SentenceID  Column = "source2_sentence_id"
	ColSource2Content     Column = "source2_content"
	ColSource2Translate   Column = "source2_translate"
	ColSource2NameCN      Column = "source2_name_cn"
	ColSource2NameEN      Column = "source2_name_en"
	ColSource2TitleCN     Column = "source2_title_cn"
	ColSource2TitleEN     Column = "source2_title_en"

	ColExample1EN Column = "example1_en"
	ColExample1CN Column = "example1_cn"
	ColExample2EN Column = "example2_en"
	ColExample2CN Column = "example2_cn"
)

// SourceColumns are the columns of one source slot.
type SourceColumns struct {
	Type, ArticleID, ParagraphID, SentenceID, Content, Translate Column
	NameCN, NameEN, TitleCN, TitleEN                             Column
}

func (s SourceColumns) all() []Column {
	return []Column{s.Type, s.ArticleID, s.ParagraphID, s.SentenceID, s.Content,
		s.Translate, s.NameCN, s.NameEN, s.TitleCN, s.TitleEN}
}

// ExampleColumns are the columns of one example slot.
type ExampleColumns struct {
	EN, CN Column
}

// Slots is the number of source and example slots per word.
const Slots = 2

var sourceSlots = [Slots]SourceColumns{
	{ColSource1Type, ColSource1ArticleID, ColSource1ParagraphID, ColSource1SentenceID, ColSource1Content,
		ColSource1Translate, ColSource1NameCN, ColSource1NameEN, ColSource1TitleCN, ColSource1TitleEN},
	{ColSource2Type, ColSource2ArticleID, ColSource2ParagraphID, ColSource2SentenceID, ColSource2Content,
		ColSource2Translate, ColSource2NameCN, ColSource2NameEN, ColSource2TitleCN, ColSource2TitleEN},
}

var exampleSlots = [Slots]ExampleColumns{
	{ColExample1EN, ColExample1CN},
	{ColExample2EN, ColExample2CN},
}

// SourceSlot returns the columns of source slot i (0-based).
func SourceSlot(i int) SourceColumns { return sourceSlots[i] }

// ExampleSlot returns the columns of example slot i (0-based).
func ExampleSlot(i int) ExampleColumns { return exampleSlots[i] }

// allColumns is the select order used by scanWord.
var allColumns = func() []Column {
	cols := []Column{ColID, ColWord, ColIPAUK, ColIPAUS, ColIPAUKURL, ColIPAUSURL, ColDefinitionCN, ColUpdatedAt}
	for _, s := range sourceSlots {
		cols = append(cols, s.all()...)
	}
	for _, e := range exampleSlots {
		cols = append(cols, e.EN, e.CN)
	}
	return cols
}()

var knownColumns = func() map[Column]struct{} {
	m := make(map[Column]struct{}, len(allColumns))
	for _, c := range allColumns {
		m[c] = struct{}{}
	}
	return m
}()

// Valid reports whether c is a column of the words table.
func (c Column) Valid() bool {
	_, ok := knownColumns[c]
	return ok
}

// ParseColumn maps a column name to its Column.
func ParseColumn(name string) (Column, error) {
	c := Column(name)
	if !c.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownColumn, name)
	}
	return c, nil
}

func columnNames(cols []Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = string(c)
	}
	return out
}
