// Package export projects cached words into note fields and audio download
// tasks.
package export

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"

	"github.com/japaniel/shanbaysync/pkg/anki"
	"github.com/japaniel/shanbaysync/pkg/db"
	"github.com/japaniel/shanbaysync/pkg/download"
)

const (
	webBookLink = `<a href="https://web.shanbay.com/reading/web-book/articles/%s?paragraph=%s">%s</a>`
	webNewsLink = `<a href="https://web.shanbay.com/reading/web-news/articles/%s?paragraph=%s">%s</a>`
	appBookLink = `<a href="android-app://com.shanbay.news/#Intent;component=com.shanbay.news/.article.dictionaries.article.DictArticleActivity;S.extra_article_id=%s;S.extra_paragraph_id=%s;end">%s</a>`
	appNewsLink = `<a href="android-app://com.shanbay.news/#Intent;component=com.shanbay.news/.article.news.NewsArticleWebActivity;S.article_web_id=%s;S.article_web_paragraph_id=%s;end">%s</a>`
)

var linkTemplates = map[LinkStyle]map[db.SourceType]string{
	LinkWeb: {db.SourceBook: webBookLink, db.SourceNews: webNewsLink},
	LinkApp: {db.SourceBook: appBookLink, db.SourceNews: appNewsLink},
}

// Record is the projection of one cached word. Fields never contains a key
// for an excluded or missing value.
type Record struct {
	WordID string
	Fields map[anki.Field]string
	// Audio maps each selected accent to its local file name.
	Audio map[Accent]string
}

// Result is everything an export produces.
type Result struct {
	Records   []Record
	Downloads []download.Task
}

// Project selects the records in groups and renders them with opts, in cache
// order. Download tasks are deduplicated by file name.
func Project(ctx context.Context, ex db.DBExecutor, groups []string, opts Options) (*Result, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	words, err := db.QueryWords(ex, db.InSourceGroups(groups))
	if err != nil {
		return nil, fmt.Errorf("export: query: %w", err)
	}

	res := &Result{Records: make([]Record, 0, len(words))}
	seen := map[string]bool{}
	for i := range words {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, tasks := project(&words[i], opts)
		res.Records = append(res.Records, rec)
		for _, t := range tasks {
			if !seen[t.FileName] {
				seen[t.FileName] = true
				res.Downloads = append(res.Downloads, t)
			}
		}
	}
	return res, nil
}

func project(w *db.WordRecord, opts Options) (Record, []download.Task) {
	rec := Record{
		WordID: w.ID,
		Fields: map[anki.Field]string{},
		Audio:  map[Accent]string{},
	}
	set := func(f anki.Field, v string) {
		if v != "" {
			rec.Fields[f] = v
		}
	}

	set(anki.FieldWord, w.Word)
	set(anki.FieldDefinitionCN, w.DefinitionCN)

	phonetics := map[Accent]sql.NullString{AccentUK: w.IPAUK, AccentUS: w.IPAUS}
	phoneticFields := map[Accent]anki.Field{AccentUK: anki.FieldIPAUK, AccentUS: anki.FieldIPAUS}
	urls := map[Accent]sql.NullString{AccentUK: w.IPAUKURL, AccentUS: w.IPAUSURL}

	var tasks []download.Task
	var tags []string
	for _, a := range accents {
		if slices.Contains(opts.PhoneticAccents, a) && phonetics[a].Valid {
			set(phoneticFields[a], phonetics[a].String)
		}
		if slices.Contains(opts.PronunciationAccents, a) && urls[a].Valid && urls[a].String != "" {
			name := AudioFileName(a, urls[a].String)
			rec.Audio[a] = name
			tasks = append(tasks, download.Task{FileName: name, URL: urls[a].String})
			tags = append(tags, "[sound:"+name+"]")
		}
	}
	set(anki.FieldIPAAudio, strings.Join(tags, ""))

	for i, src := range w.Sources {
		if src.Empty() {
			continue
		}
		name, content, translate := anki.SourceFields(i)
		set(name, SourceLink(src, opts.LinkStyle, DisplayName(src, opts.TitleLanguage)))
		set(content, src.Content)
		if src.Translate.Valid {
			set(translate, src.Translate.String)
		}
	}

	if opts.IncludeExamples {
		for i, ex := range w.Examples {
			en, cn := anki.ExampleFields(i)
			set(en, ex.EN.String)
			set(cn, ex.CN.String)
		}
	}
	return rec, tasks
}

// DisplayName joins the source name and chapter title in the chosen
// language, falling back to the other language when one is missing.
func DisplayName(src db.SourceRef, lang TitleLanguage) string {
	name, title, sep := src.NameCN, src.TitleCN, "<br>"
	altName, altTitle := src.NameEN, src.TitleEN
	if lang == TitleEN {
		name, title, sep = src.NameEN, src.TitleEN, " -- "
		altName, altTitle = src.NameCN, src.TitleCN
	}
	if name == "" {
		name = altName
	}
	if title == "" {
		title = altTitle
	}
	switch {
	case name == "":
		return title
	case title == "":
		return name
	}
	return name + sep + title
}

// SourceLink wraps text in the deep link of src for style.
func SourceLink(src db.SourceRef, style LinkStyle, text string) string {
	tmpl, ok := linkTemplates[style][src.Type]
	if !ok || text == "" {
		return text
	}
	return fmt.Sprintf(tmpl, url.PathEscape(src.ArticleID), url.QueryEscape(src.ParagraphID), text)
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// AudioFileName derives a stable local name from an audio URL path.
func AudioFileName(a Accent, rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	return "shanbay_" + string(a) + "_" + strings.Trim(unsafeFileChars.ReplaceAllString(p, "_"), "_")
}

// AddNotes writes every record into deck using noteType and returns how many
// notes were added.
func AddNotes(ctx context.Context, coll anki.Collection, deckName, noteType string, records []Record) (int, error) {
	deck, err := coll.GetOrCreateDeck(deckName)
	if err != nil {
		return 0, err
	}
	nt, err := coll.GetOrCreateNoteType(noteType)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		if err := coll.AddNote(deck, nt, r.Fields); err != nil {
			return n, fmt.Errorf("export: add note for %s: %w", r.WordID, err)
		}
		n++
	}
	return n, nil
}
