package export

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/shanbaysync/pkg/anki"
	"github.com/japaniel/shanbaysync/pkg/db"
	"github.com/japaniel/shanbaysync/pkg/download"
)

func setupDB(t *testing.T) *sql.DB {
	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	require.NoError(t, db.InitDB(conn))
	t.Cleanup(func() { conn.Close() })
	return conn
}

func valid(s string) sql.NullString { return sql.NullString{String: s, Valid: true} }

func seed(t *testing.T, conn *sql.DB) {
	t.Helper()
	book := &db.WordRecord{
		ID:           "w1",
		Word:         "alpha",
		IPAUK:        valid("/ˈælfə/"),
		IPAUS:        valid("/ˈælfɑ/"),
		IPAUKURL:     valid("https://media.test/audio/uk/alpha.mp3"),
		IPAUSURL:     valid("https://media.test/audio/us/alpha.mp3?v=2"),
		DefinitionCN: "n. 第一个",
	}
	book.Sources[0] = db.SourceRef{
		Type: db.SourceBook, ArticleID: "a1", ParagraphID: "p1", SentenceID: "s1",
		Content: "Alpha comes first.", Translate: valid("阿尔法在前。"),
		NameCN: "小王子", NameEN: "The Little Prince", TitleCN: "第一章", TitleEN: "Chapter One",
	}
	book.Examples[0] = db.Example{EN: valid("An alpha test."), CN: valid("一次内测。")}
	book.Examples[1] = db.Example{EN: valid(""), CN: valid("")}

	news := &db.WordRecord{ID: "w2", Word: "beta", IPAUK: valid("/ˈbiːtə/")}
	news.Sources[0] = db.SourceRef{Type: db.SourceNews, ArticleID: "n1", ParagraphID: "np1", Content: "Beta news.", NameEN: "Daily Digest"}

	other := &db.WordRecord{ID: "w3", Word: "gamma"}
	other.Sources[0] = db.SourceRef{Type: db.SourceBook, ArticleID: "a9", NameCN: "动物农场", TitleCN: "第二章"}

	for _, w := range []*db.WordRecord{book, news, other} {
		require.NoError(t, db.InsertWord(conn, w))
	}
}

func TestProjectSelectsGroupsInCacheOrder(t *testing.T) {
	conn := setupDB(t)
	seed(t, conn)

	res, err := Project(context.Background(), conn, []string{"小王子 第一章", db.NewsGroup}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Records, 2)
	assert.Equal(t, "w1", res.Records[0].WordID)
	assert.Equal(t, "w2", res.Records[1].WordID)

	res, err = Project(context.Background(), conn, []string{db.NewsGroup}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, "w2", res.Records[0].WordID)
}

func TestProjectSuppressesUnselectedPhonetics(t *testing.T) {
	conn := setupDB(t)
	seed(t, conn)
	opts := DefaultOptions()
	opts.PhoneticAccents = []Accent{AccentUS}

	res, err := Project(context.Background(), conn, []string{"小王子 第一章", db.NewsGroup}, opts)
	require.NoError(t, err)
	for _, r := range res.Records {
		_, ok := r.Fields[anki.FieldIPAUK]
		assert.False(t, ok, "record %s must not carry ipa_uk", r.WordID)
	}
	assert.Equal(t, "/ˈælfɑ/", res.Records[0].Fields[anki.FieldIPAUS])
}

func TestProjectBothAccentsKeepsBothAudio(t *testing.T) {
	conn := setupDB(t)
	seed(t, conn)

	res, err := Project(context.Background(), conn, []string{"小王子 第一章"}, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	rec := res.Records[0]

	uk := "shanbay_uk_audio_uk_alpha.mp3"
	us := "shanbay_us_audio_us_alpha.mp3"
	assert.Equal(t, map[Accent]string{AccentUK: uk, AccentUS: us}, rec.Audio)
	assert.Equal(t, "[sound:"+uk+"][sound:"+us+"]", rec.Fields[anki.FieldIPAAudio])
	assert.Equal(t, []download.Task{
		{FileName: uk, URL: "https://media.test/audio/uk/alpha.mp3"},
		{FileName: us, URL: "https://media.test/audio/us/alpha.mp3?v=2"},
	}, res.Downloads)
}

func TestProjectPronunciationSubset(t *testing.T) {
	conn := setupDB(t)
	seed(t, conn)
	opts := DefaultOptions()
	opts.PronunciationAccents = []Accent{AccentUS}

	res, err := Project(context.Background(), conn, []string{"小王子 第一章", db.NewsGroup}, opts)
	require.NoError(t, err)
	require.Len(t, res.Downloads, 1)
	assert.Equal(t, "[sound:shanbay_us_audio_us_alpha.mp3]", res.Records[0].Fields[anki.FieldIPAAudio])
	_, ok := res.Records[1].Fields[anki.FieldIPAAudio]
	assert.False(t, ok, "word without a us url has no audio field")
}

func TestProjectLinkStylesAndTitles(t *testing.T) {
	conn := setupDB(t)
	seed(t, conn)
	groups := []string{"小王子 第一章", db.NewsGroup}

	cases := []struct {
		name     string
		lang     TitleLanguage
		style    LinkStyle
		wantBook string
		wantNews string
	}{
		{"plain cn", TitleCN, LinkNone, "小王子<br>第一章", "Daily Digest"},
		{"plain en", TitleEN, LinkNone, "The Little Prince -- Chapter One", "Daily Digest"},
		{"web", TitleCN, LinkWeb,
			`<a href="https://web.shanbay.com/reading/web-book/articles/a1?paragraph=p1">小王子<br>第一章</a>`,
			`<a href="https://web.shanbay.com/reading/web-news/articles/n1?paragraph=np1">Daily Digest</a>`},
		{"app", TitleEN, LinkApp,
			`<a href="android-app://com.shanbay.news/#Intent;component=com.shanbay.news/.article.dictionaries.article.DictArticleActivity;S.extra_article_id=a1;S.extra_paragraph_id=p1;end">The Little Prince -- Chapter One</a>`,
			`<a href="android-app://com.shanbay.news/#Intent;component=com.shanbay.news/.article.news.NewsArticleWebActivity;S.article_web_id=n1;S.article_web_paragraph_id=np1;end">Daily Digest</a>`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			opts := DefaultOptions()
			opts.TitleLanguage = tc.lang
			opts.LinkStyle = tc.style
			res, err := Project(context.Background(), conn, groups, opts)
			require.NoError(t, err)
			assert.Equal(t, tc.wantBook, res.Records[0].Fields[anki.FieldSourceName1])
			assert.Equal(t, tc.wantNews, res.Records[1].Fields[anki.FieldSourceName1])
		})
	}
}

func TestProjectExamplesAndEmptySlots(t *testing.T) {
	conn := setupDB(t)
	seed(t, conn)

	res, err := Project(context.Background(), conn, []string{"小王子 第一章"}, DefaultOptions())
	require.NoError(t, err)
	f := res.Records[0].Fields
	assert.Equal(t, "An alpha test.", f[anki.FieldExampleEN1])
	assert.Equal(t, "阿尔法在前。", f[anki.FieldSourceTranslate1])
	for _, k := range []anki.Field{anki.FieldExampleEN2, anki.FieldExampleCN2, anki.FieldSourceName2} {
		_, ok := f[k]
		assert.False(t, ok, "%s must be absent", k)
	}

	opts := DefaultOptions()
	opts.IncludeExamples = false
	res, err = Project(context.Background(), conn, []string{"小王子 第一章"}, opts)
	require.NoError(t, err)
	_, ok := res.Records[0].Fields[anki.FieldExampleEN1]
	assert.False(t, ok)
}

func TestProjectRejectsInvalidOptions(t *testing.T) {
	conn := setupDB(t)
	opts := DefaultOptions()
	opts.LinkStyle = "carrier-pigeon"
	_, err := Project(context.Background(), conn, nil, opts)
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = ParseAccents([]string{"uk", "au"})
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestAddNotesWritesThroughCollection(t *testing.T) {
	conn := setupDB(t)
	seed(t, conn)
	res, err := Project(context.Background(), conn, []string{"小王子 第一章", db.NewsGroup}, DefaultOptions())
	require.NoError(t, err)

	coll, err := anki.OpenTSVCollection(t.TempDir(), nil)
	require.NoError(t, err)
	n, err := AddNotes(context.Background(), coll, "Shanbay", "Shanbay Reading", res.Records)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, coll.Added())
}
