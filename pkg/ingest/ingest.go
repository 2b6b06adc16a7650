package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/japaniel/shanbaysync/pkg/db"
	"github.com/japaniel/shanbaysync/pkg/resolver"
	"github.com/japaniel/shanbaysync/pkg/shanbay"
)

// ErrInvalidCookie means the stored cookie was rejected; the user has to
// log in again before syncing.
var ErrInvalidCookie = errors.New("ingest: cookie rejected, please log in again")

// API is the part of the vendor client the sync pipeline uses.
type API interface {
	CheckCookie(ctx context.Context, cookies map[string]string) (bool, error)
	FetchWordCount(ctx context.Context) (int, error)
	FetchWordPage(ctx context.Context, page int) ([]shanbay.WordSummary, error)
	FetchWordDetail(ctx context.Context, wordID string) (*shanbay.WordDetail, error)
	FetchExamples(ctx context.Context, wordID string) (*shanbay.ExampleSeq, error)
	FetchSentenceTranslation(ctx context.Context, sentenceID string) (string, error)
	resolver.CatalogAPI
}

// Stage identifies one enrichment pass.
type Stage int

const (
	StageWords Stage = iota
	StageExamples
	StageTranslations
)

func (s Stage) String() string {
	switch s {
	case StageWords:
		return "words"
	case StageExamples:
		return "examples"
	case StageTranslations:
		return "translations"
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// Summary counts the outcome of one pass. Failed records stay NULL-gated and
// are picked up again by the next run.
type Summary struct {
	Total   int
	Done    int
	Skipped int
	Failed  int
}

// Report is the outcome of a full Run.
type Report struct {
	Words        Summary
	Examples     Summary
	Translations Summary
}

// Syncer runs the enrichment passes that keep the local cache in step with
// the vendor's word collection. Passes run one after another on a single
// writer connection.
type Syncer struct {
	DB  *sql.DB
	API API
	// Examples and Translate toggle the two backfill passes.
	Examples  bool
	Translate bool
	// OnProgress is called after every record with the pass-local counter.
	OnProgress func(stage Stage, current, total int)
	// OnStageDone is called once a pass has completed.
	OnStageDone func(stage Stage, s Summary)

	log      *slog.Logger
	base     *slog.Logger
	resolver *resolver.Resolver
}

// NewSyncer creates a Syncer with both backfill passes enabled.
func NewSyncer(api API, conn *sql.DB, logger *slog.Logger) *Syncer {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Syncer{
		DB:        conn,
		API:       api,
		Examples:  true,
		Translate: true,
		log:       logger.With("component", "ingest"),
		base:      logger,
	}
}

// Run validates the cookie and then runs every enabled pass. A fresh name
// resolver is used per Run.
func (s *Syncer) Run(ctx context.Context, cookies map[string]string) (Report, error) {
	var rep Report
	ok, err := s.API.CheckCookie(ctx, cookies)
	if err != nil {
		return rep, fmt.Errorf("check cookie: %w", err)
	}
	if !ok {
		return rep, ErrInvalidCookie
	}
	s.resolver = resolver.New(s.API, s.base)

	if rep.Words, err = s.InsertWords(ctx); err != nil {
		return rep, err
	}
	if s.Examples {
		if rep.Examples, err = s.BackfillExamples(ctx); err != nil {
			return rep, err
		}
	}
	if s.Translate {
		if rep.Translations, err = s.BackfillTranslations(ctx); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// InsertWords pages through the collection and caches every word not seen
// before, together with up to two source references.
func (s *Syncer) InsertWords(ctx context.Context) (Summary, error) {
	var sum Summary
	if s.resolver == nil {
		s.resolver = resolver.New(s.API, s.base)
	}
	total, err := s.API.FetchWordCount(ctx)
	if err != nil {
		return sum, fmt.Errorf("%s pass: %w", StageWords, err)
	}
	sum.Total = total

	current := 0
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		words, err := s.API.FetchWordPage(ctx, page)
		if err != nil {
			return sum, fmt.Errorf("%s pass: %w", StageWords, err)
		}
		for _, w := range words {
			if err := ctx.Err(); err != nil {
				return sum, err
			}
			current++
			exists, err := db.Exists(s.DB, w.ID)
			if err != nil {
				return sum, err
			}
			if exists {
				sum.Skipped++
			} else if err := s.insertWord(ctx, w.ID); err != nil {
				if s.fatal(ctx, err) {
					return sum, fmt.Errorf("%s pass: %w", StageWords, err)
				}
				sum.Failed++
				s.log.WarnContext(ctx, "word insert failed", "word_id", w.ID, "error", err)
			} else {
				sum.Done++
			}
			s.progress(StageWords, current, total)
		}
		if len(words) < shanbay.PageSize {
			break
		}
	}
	s.stageDone(ctx, StageWords, sum)
	return sum, nil
}

func (s *Syncer) insertWord(ctx context.Context, id string) error {
	detail, err := s.API.FetchWordDetail(ctx, id)
	if err != nil {
		return err
	}
	rec := newRecord(id, detail)

	var sources []db.SourceRef
	for _, act := range readingActivities(detail.Activities) {
		src, err := s.sourceFor(ctx, act)
		if err != nil {
			return err
		}
		sources = append(sources, src)
	}

	return db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
		if err := db.InsertWord(tx, rec); err != nil {
			return err
		}
		for i, src := range sources {
			if err := db.UpdateFields(tx, id, db.SourceFields(i, src)); err != nil {
				return err
			}
		}
		return nil
	})
}

func newRecord(id string, d *shanbay.WordDetail) *db.WordRecord {
	defs := make([]string, 0, len(d.Definitions.CN))
	for _, sense := range d.Definitions.CN {
		defs = append(defs, strings.TrimSpace(sense.POS+" "+sense.Def))
	}
	return &db.WordRecord{
		ID:           id,
		Word:         d.Word,
		IPAUK:        ipa(d.Sound.IPAUK),
		IPAUS:        ipa(d.Sound.IPAUS),
		IPAUKURL:     firstURL(d.Sound.AudioUKURLs),
		IPAUSURL:     firstURL(d.Sound.AudioUSURLs),
		DefinitionCN: strings.Join(defs, "<br>"),
		UpdatedAt:    d.UpdatedAt,
	}
}

func ipa(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: "/" + s + "/", Valid: true}
}

func firstURL(urls []string) sql.NullString {
	for _, u := range urls {
		if u != "" {
			return sql.NullString{String: u, Valid: true}
		}
	}
	return sql.NullString{}
}

// readingActivities returns the newest reading-app activities that point at
// a passage, at most one per source slot.
func readingActivities(acts []shanbay.Activity) []shanbay.Activity {
	type stamped struct {
		act shanbay.Activity
		at  time.Time
		ok  bool
	}
	sorted := make([]stamped, len(acts))
	for i, a := range acts {
		at, ok := parseCreatedAt(a.CreatedAt)
		sorted[i] = stamped{act: a, at: at, ok: ok}
	}
	// unparsable timestamps keep vendor order behind the dated ones
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].ok != sorted[j].ok {
			return sorted[i].ok
		}
		return sorted[i].ok && sorted[i].at.After(sorted[j].at)
	})

	out := make([]shanbay.Activity, 0, db.Slots)
	for _, st := range sorted {
		a := st.act
		if a.AppName != shanbay.ReadingApp || a.Objective == nil {
			continue
		}
		if a.Objective.BookCode == "" && a.Objective.ArticleCode == "" {
			continue
		}
		out = append(out, a)
		if len(out) == db.Slots {
			break
		}
	}
	return out
}

var createdAtLayouts = []string{time.RFC3339Nano, time.DateTime, time.DateOnly}

func parseCreatedAt(v string) (time.Time, bool) {
	v = strings.TrimSpace(v)
	for _, layout := range createdAtLayouts {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (s *Syncer) sourceFor(ctx context.Context, act shanbay.Activity) (db.SourceRef, error) {
	obj := act.Objective
	src := db.SourceRef{
		ArticleID:   obj.ArticleCode,
		ParagraphID: obj.ParagraphCode,
		SentenceID:  obj.SentenceCode,
		Content:     obj.Content,
	}
	if obj.BookCode == "" {
		src.Type = db.SourceNews
		src.NameEN = act.SourceName
		return src, nil
	}
	cn, err := s.resolver.Resolve(ctx, obj.BookCode, obj.ArticleCode)
	if err != nil {
		return src, err
	}
	src.Type = db.SourceBook
	src.NameCN = cn.BookNameCN
	src.NameEN = cn.BookNameEN
	src.TitleCN = cn.ChapterTitleCN
	src.TitleEN = cn.ChapterTitleEN
	return src, nil
}

// BackfillExamples fills both example slots of every record whose first
// slot was never fetched. Words without examples get empty strings.
func (s *Syncer) BackfillExamples(ctx context.Context) (Summary, error) {
	return s.backfill(ctx, StageExamples, db.MissingExamples(), s.examplesFor)
}

func (s *Syncer) examplesFor(ctx context.Context, w db.WordRecord) (db.Fields, error) {
	seq, err := s.API.FetchExamples(ctx, w.ID)
	if err != nil {
		return nil, err
	}
	f := db.Fields{}
	for i, p := range seq.Take(db.Slots) {
		cols := db.ExampleSlot(i)
		f[cols.EN] = p.EN
		f[cols.CN] = p.CN
	}
	return f, nil
}

// BackfillTranslations fetches the translation of every captured book
// sentence still missing one.
func (s *Syncer) BackfillTranslations(ctx context.Context) (Summary, error) {
	return s.backfill(ctx, StageTranslations, db.MissingTranslations(), s.translationsFor)
}

func (s *Syncer) translationsFor(ctx context.Context, w db.WordRecord) (db.Fields, error) {
	f := db.Fields{}
	for i, src := range w.Sources {
		if src.Type != db.SourceBook || src.Translate.Valid {
			continue
		}
		text := ""
		if src.SentenceID != "" {
			t, err := s.API.FetchSentenceTranslation(ctx, src.SentenceID)
			if err != nil {
				return nil, err
			}
			text = t
		}
		f[db.SourceSlot(i).Translate] = text
	}
	return f, nil
}

// backfill walks a NULL-gated work list computed once up front and commits
// each record's fields in its own transaction.
func (s *Syncer) backfill(ctx context.Context, stage Stage, pred sq.Sqlizer, fetch func(context.Context, db.WordRecord) (db.Fields, error)) (Summary, error) {
	var sum Summary
	work, err := db.QueryWords(s.DB, pred)
	if err != nil {
		return sum, fmt.Errorf("%s pass: %w", stage, err)
	}
	sum.Total = len(work)

	for i, w := range work {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		fields, err := fetch(ctx, w)
		if err == nil {
			err = db.WithTx(ctx, s.DB, func(tx *sql.Tx) error {
				return db.UpdateFields(tx, w.ID, fields)
			})
		}
		if err != nil {
			if s.fatal(ctx, err) {
				return sum, fmt.Errorf("%s pass: %w", stage, err)
			}
			sum.Failed++
			s.log.WarnContext(ctx, "backfill failed", "stage", stage.String(), "word_id", w.ID, "error", err)
		} else {
			sum.Done++
		}
		s.progress(stage, i+1, sum.Total)
	}
	s.stageDone(ctx, stage, sum)
	return sum, nil
}

// fatal reports whether err must abort the pass instead of skipping the record.
func (s *Syncer) fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil ||
		errors.Is(err, shanbay.ErrUnauthorized) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (s *Syncer) progress(stage Stage, current, total int) {
	if s.OnProgress != nil {
		s.OnProgress(stage, current, total)
	}
}

func (s *Syncer) stageDone(ctx context.Context, stage Stage, sum Summary) {
	s.log.InfoContext(ctx, "pass complete", "stage", stage.String(),
		"total", sum.Total, "done", sum.Done, "skipped", sum.Skipped, "failed", sum.Failed)
	if s.OnStageDone != nil {
		s.OnStageDone(stage, sum)
	}
}
