package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/japaniel/shanbaysync/pkg/shanbay"
)

type fakeAPI struct {
	catalogs     map[string]*shanbay.Catalog
	articles     map[string]*shanbay.Article
	catalogCalls map[string]int
	articleCalls map[string]int
	err          error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		catalogs:     map[string]*shanbay.Catalog{},
		articles:     map[string]*shanbay.Article{},
		catalogCalls: map[string]int{},
		articleCalls: map[string]int{},
	}
}

func (f *fakeAPI) FetchBookCatalog(_ context.Context, bookID string) (*shanbay.Catalog, error) {
	f.catalogCalls[bookID]++
	if f.err != nil {
		return nil, f.err
	}
	return f.catalogs[bookID], nil
}

func (f *fakeAPI) FetchArticle(_ context.Context, id string) (*shanbay.Article, error) {
	f.articleCalls[id]++
	a, ok := f.articles[id]
	if !ok {
		return nil, shanbay.ErrNotFound
	}
	return a, nil
}

func TestResolve_CatalogMemoizesSiblings(t *testing.T) {
	api := newFakeAPI()
	api.catalogs["b1"] = &shanbay.Catalog{
		ID: "b1", NameCN: "小王子", NameEN: "The Little Prince",
		Chapters: []shanbay.Chapter{
			{ID: "c1", TitleCN: "第一章", TitleEN: "Chapter 1"},
			{ID: "c2", TitleCN: "第二章", TitleEN: "Chapter 2"},
		},
	}
	r := New(api, nil)
	ctx := context.Background()

	cn, err := r.Resolve(ctx, "b1", "c1")
	require.NoError(t, err)
	assert.Equal(t, ChapterName{
		BookNameCN: "小王子", BookNameEN: "The Little Prince",
		ChapterID: "c1", ChapterTitleCN: "第一章", ChapterTitleEN: "Chapter 1",
	}, cn)

	cn, err = r.Resolve(ctx, "b1", "c2")
	require.NoError(t, err)
	assert.Equal(t, "第二章", cn.ChapterTitleCN)
	assert.Equal(t, 1, api.catalogCalls["b1"])
	assert.Empty(t, api.articleCalls)
}

func TestResolve_NoCatalogFallsBackToArticle(t *testing.T) {
	api := newFakeAPI()
	// b1 has no static catalog; its chapters point at the real book b9.
	api.articles["c1"] = &shanbay.Article{ID: "c1", BookID: "b9", TitleCN: "第一回", TitleEN: "Episode 1"}
	api.articles["c2"] = &shanbay.Article{ID: "c2", BookID: "b9", TitleCN: "第二回", TitleEN: "Episode 2"}
	api.catalogs["b9"] = &shanbay.Catalog{ID: "b9", NameCN: "连载", NameEN: "Serial"}
	r := New(api, nil)
	ctx := context.Background()

	cn, err := r.Resolve(ctx, "b1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "第一回", cn.ChapterTitleCN)
	assert.Equal(t, "连载", cn.BookNameCN)
	assert.Equal(t, "Serial", cn.BookNameEN)

	cn, err = r.Resolve(ctx, "b1", "c2")
	require.NoError(t, err)
	assert.Equal(t, "Episode 2", cn.ChapterTitleEN)
	assert.Equal(t, "Serial", cn.BookNameEN)

	assert.Equal(t, 1, api.catalogCalls["b1"], "missing catalog must be remembered")
	assert.Equal(t, 1, api.catalogCalls["b9"], "book name must be reused for siblings")

	book, ok := r.Book("b1")
	require.True(t, ok)
	assert.Equal(t, BookName{NameCN: "连载", NameEN: "Serial"}, book)
}

func TestResolve_NoCatalogAnywhere(t *testing.T) {
	api := newFakeAPI()
	api.articles["c1"] = &shanbay.Article{ID: "c1", BookID: "b1", TitleEN: "Only title"}
	r := New(api, nil)

	cn, err := r.Resolve(context.Background(), "b1", "c1")
	require.NoError(t, err)
	assert.Equal(t, "Only title", cn.ChapterTitleEN)
	assert.Empty(t, cn.BookNameCN)
	assert.Equal(t, 1, api.catalogCalls["b1"])

	_, err = r.Resolve(context.Background(), "b1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, api.articleCalls["c1"])
}

func TestResolve_PropagatesErrors(t *testing.T) {
	api := newFakeAPI()
	api.err = shanbay.ErrUnauthorized
	r := New(api, nil)

	_, err := r.Resolve(context.Background(), "b1", "c1")
	assert.True(t, errors.Is(err, shanbay.ErrUnauthorized))

	api.err = nil
	_, err = r.Resolve(context.Background(), "b1", "c1")
	assert.ErrorIs(t, err, shanbay.ErrNotFound)
}
