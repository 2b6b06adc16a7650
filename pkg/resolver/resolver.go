// Package resolver turns (book, chapter) ids into bilingual display names,
// memoizing everything it learns for the lifetime of one sync session.
package resolver

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/patrickmn/go-cache"

	"github.com/japaniel/shanbaysync/pkg/shanbay"
)

// CatalogAPI is the part of the vendor client the resolver needs.
type CatalogAPI interface {
	FetchBookCatalog(ctx context.Context, bookID string) (*shanbay.Catalog, error)
	FetchArticle(ctx context.Context, articleID string) (*shanbay.Article, error)
}

// ChapterName is the resolved naming of one chapter.
type ChapterName struct {
	BookNameCN     string
	BookNameEN     string
	ChapterID      string
	ChapterTitleCN string
	ChapterTitleEN string
}

// BookName is the bilingual name of a book.
type BookName struct {
	NameCN string
	NameEN string
}

// Resolver memoizes chapter and book names, including books known to have
// no catalog.
type Resolver struct {
	api       CatalogAPI
	chapters  *cache.Cache
	books     *cache.Cache
	noCatalog *cache.Cache
	log       *slog.Logger
}

// New returns an empty Resolver. Create one per sync session.
func New(api CatalogAPI, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Resolver{
		api:       api,
		chapters:  cache.New(cache.NoExpiration, 0),
		books:     cache.New(cache.NoExpiration, 0),
		noCatalog: cache.New(cache.NoExpiration, 0),
		log:       logger.With("component", "resolver"),
	}
}

// Resolve returns the names of chapterID inside bookID. The book's catalog is
// tried first; books without one fall back to the article endpoint.
func (r *Resolver) Resolve(ctx context.Context, bookID, chapterID string) (ChapterName, error) {
	if cn, ok := r.chapter(chapterID); ok {
		return cn, nil
	}

	found, err := r.loadCatalog(ctx, bookID)
	if err != nil {
		return ChapterName{}, err
	}
	if found {
		if cn, ok := r.chapter(chapterID); ok {
			return cn, nil
		}
		r.log.DebugContext(ctx, "chapter missing from catalog", "book_id", bookID, "chapter_id", chapterID)
	}

	art, err := r.api.FetchArticle(ctx, chapterID)
	if err != nil {
		return ChapterName{}, fmt.Errorf("resolve chapter %s: %w", chapterID, err)
	}

	book, ok := r.book(bookID)
	if !ok && art.BookID != "" && art.BookID != bookID {
		if book, ok = r.book(art.BookID); !ok {
			if _, err := r.loadCatalog(ctx, art.BookID); err != nil {
				return ChapterName{}, err
			}
			book, ok = r.book(art.BookID)
		}
		if ok {
			r.books.Set(bookID, book, cache.NoExpiration)
		}
	}

	cn := ChapterName{
		BookNameCN:     book.NameCN,
		BookNameEN:     book.NameEN,
		ChapterID:      chapterID,
		ChapterTitleCN: art.TitleCN,
		ChapterTitleEN: art.TitleEN,
	}
	r.chapters.Set(chapterID, cn, cache.NoExpiration)
	return cn, nil
}

// Book returns the memoized name of a book, if any call resolved it.
func (r *Resolver) Book(bookID string) (BookName, bool) { return r.book(bookID) }

// loadCatalog fetches a book catalog once and memoizes the book and every
// chapter in it. It reports whether the book has a catalog.
func (r *Resolver) loadCatalog(ctx context.Context, bookID string) (bool, error) {
	if bookID == "" {
		return false, nil
	}
	if _, missing := r.noCatalog.Get(bookID); missing {
		return false, nil
	}
	if _, known := r.books.Get(bookID); known {
		return true, nil
	}

	cat, err := r.api.FetchBookCatalog(ctx, bookID)
	if err != nil {
		return false, fmt.Errorf("resolve book %s: %w", bookID, err)
	}
	if cat == nil {
		r.log.DebugContext(ctx, "book has no catalog", "book_id", bookID)
		r.noCatalog.Set(bookID, struct{}{}, cache.NoExpiration)
		return false, nil
	}

	book := BookName{NameCN: cat.NameCN, NameEN: cat.NameEN}
	r.books.Set(bookID, book, cache.NoExpiration)
	for _, ch := range cat.Chapters {
		r.chapters.Set(ch.ID, ChapterName{
			BookNameCN:     book.NameCN,
			BookNameEN:     book.NameEN,
			ChapterID:      ch.ID,
			ChapterTitleCN: ch.TitleCN,
			ChapterTitleEN: ch.TitleEN,
		}, cache.NoExpiration)
	}
	r.log.DebugContext(ctx, "catalog memoized", "book_id", bookID, "chapters", len(cat.Chapters))
	return true, nil
}

func (r *Resolver) chapter(id string) (ChapterName, bool) {
	v, ok := r.chapters.Get(id)
	if !ok {
		return ChapterName{}, false
	}
	return v.(ChapterName), true
}

func (r *Resolver) book(id string) (BookName, bool) {
	v, ok := r.books.Get(id)
	if !ok {
		return BookName{}, false
	}
	return v.(BookName), true
}
