package db

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/mattn/go-sqlite3"
)

const wordsTable = "words"

var (
	// ErrDuplicateWord is returned when inserting an id that is already cached.
	ErrDuplicateWord = errors.New("word already cached")
	// ErrWordNotFound is returned when updating or reading a missing id.
	ErrWordNotFound = errors.New("word not cached")
	// ErrUnknownColumn is returned for a field outside the words schema.
	ErrUnknownColumn = errors.New("unknown column")
)

// DBExecutor is an interface that allows methods to accept either *sql.DB or *sql.Tx
type DBExecutor interface {
	Exec(query string, args ...interface{}) (sql.Result, error)
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}

// isUniqueConstraintErr returns true when the error indicates a unique/constraint violation
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "unique") || strings.Contains(s, "constraint failed")
}

// Exists reports whether the word id is cached.
func Exists(db DBExecutor, id string) (bool, error) {
	var one int
	err := db.QueryRow(`SELECT 1 FROM words WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", id, err)
	}
	return true, nil
}

// InsertWord stores a new record. Callers check Exists first; a second
// insert of the same id is rejected with ErrDuplicateWord.
func InsertWord(db DBExecutor, w *WordRecord) error {
	if strings.TrimSpace(w.ID) == "" {
		return fmt.Errorf("word id must be non-empty")
	}
	f := w.fields()
	cols := make([]string, 0, len(f))
	vals := make([]any, 0, len(f))
	for _, c := range allColumns {
		cols = append(cols, string(c))
		vals = append(vals, f[c])
	}
	query, args, err := sq.Insert(wordsTable).Columns(cols...).Values(vals...).ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	if _, err := db.Exec(query, args...); err != nil {
		if isUniqueConstraintErr(err) {
			return fmt.Errorf("%w: %s", ErrDuplicateWord, w.ID)
		}
		return fmt.Errorf("insert word %s: %w", w.ID, err)
	}
	return nil
}

// UpdateFields merges the given columns into an existing row; other
// columns are left untouched.
func UpdateFields(db DBExecutor, id string, fields Fields) error {
	if len(fields) == 0 {
		return nil
	}
	set := make(map[string]any, len(fields))
	for c, v := range fields {
		if !c.Valid() {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, string(c))
		}
		if c == ColID {
			return fmt.Errorf("id is immutable")
		}
		set[string(c)] = v
	}
	query, args, err := sq.Update(wordsTable).SetMap(set).Where(sq.Eq{string(ColID): id}).ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	res, err := db.Exec(query, args...)
	if err != nil {
		return fmt.Errorf("update word %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update word %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrWordNotFound, id)
	}
	return nil
}

// GetWord returns one cached record.
func GetWord(db DBExecutor, id string) (*WordRecord, error) {
	words, err := QueryWords(db, sq.Eq{string(ColID): id})
	if err != nil {
		return nil, err
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrWordNotFound, id)
	}
	return &words[0], nil
}

// CountWords returns the number of cached records.
func CountWords(db DBExecutor) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM words`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// QueryWords returns the records matching pred in insertion order.
func QueryWords(db DBExecutor, pred sq.Sqlizer) ([]WordRecord, error) {
	b := sq.Select(columnNames(allColumns)...).From(wordsTable).OrderBy("rowid")
	if pred != nil {
		b = b.Where(pred)
	}
	query, args, err := b.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []WordRecord
	for rows.Next() {
		w, err := scanWord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func scanWord(rows *sql.Rows) (WordRecord, error) {
	vals := make([]sql.NullString, len(allColumns))
	dest := make([]any, len(allColumns))
	for i := range vals {
		dest[i] = &vals[i]
	}
	if err := rows.Scan(dest...); err != nil {
		return WordRecord{}, err
	}
	col := make(map[Column]sql.NullString, len(allColumns))
	for i, c := range allColumns {
		col[c] = vals[i]
	}

	w := WordRecord{
		ID:           col[ColID].String,
		Word:         col[ColWord].String,
		IPAUK:        col[ColIPAUK],
		IPAUS:        col[ColIPAUS],
		IPAUKURL:     col[ColIPAUKURL],
		IPAUSURL:     col[ColIPAUSURL],
		DefinitionCN: col[ColDefinitionCN].String,
		UpdatedAt:    col[ColUpdatedAt].String,
	}
	for i, s := range sourceSlots {
		w.Sources[i] = SourceRef{
			Type:        SourceType(col[s.Type].String),
			ArticleID:   col[s.ArticleID].String,
			ParagraphID: col[s.ParagraphID].String,
			SentenceID:  col[s.SentenceID].String,
			Content:     col[s.Content].String,
			Translate:   col[s.Translate],
			NameCN:      col[s.NameCN].String,
			NameEN:      col[s.NameEN].String,
			TitleCN:     col[s.TitleCN].String,
			TitleEN:     col[s.TitleEN].String,
		}
	}
	for i, e := range exampleSlots {
		w.Examples[i] = Example{EN: col[e.EN], CN: col[e.CN]}
	}
	return w, nil
}

// ListSourceGroups returns the display names of every referenced book
// chapter, plus NewsGroup when any news source exists, most recently
// referenced first.
func ListSourceGroups(db DBExecutor) ([]string, error) {
	var parts []string
	for _, s := range sourceSlots {
		parts = append(parts, fmt.Sprintf(
			`SELECT CASE WHEN %[1]s = 'news' THEN '%[2]s' ELSE %[3]s END AS grp, updated_at, rowid AS rid
			 FROM words WHERE %[1]s IN ('book', 'news')`,
			s.Type, NewsGroup, groupExpr(s)))
	}
	query := `SELECT grp FROM (` + strings.Join(parts, " UNION ALL ") + `)
		WHERE grp <> ''
		GROUP BY grp
		ORDER BY MAX(COALESCE(updated_at, '')) DESC, MAX(rid) DESC`

	rows, err := db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list source groups: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var g string
		if err := rows.Scan(&g); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// groupExpr is the SQL twin of GroupName for one slot.
func groupExpr(s SourceColumns) string {
	return fmt.Sprintf(
		`TRIM(COALESCE(NULLIF(%s, ''), %s, '') || ' ' || COALESCE(NULLIF(%s, ''), %s, ''))`,
		s.NameCN, s.NameEN, s.TitleCN, s.TitleEN)
}

// All matches every record.
func All() sq.Sqlizer { return sq.Expr("1=1") }

// MissingExamples matches records whose first example slot was never fetched.
func MissingExamples() sq.Sqlizer {
	return sq.Eq{string(ColExample1EN): nil}
}

// MissingTranslations matches records with a book source whose sentence
// translation is still NULL.
func MissingTranslations() sq.Sqlizer {
	var or sq.Or
	for _, s := range sourceSlots {
		or = append(or, sq.And{
			sq.Eq{string(s.Type): string(SourceBook)},
			sq.Eq{string(s.Translate): nil},
		})
	}
	return or
}

// InSourceGroups matches records with a source listed under one of groups.
// NewsGroup selects every news source.
func InSourceGroups(groups []string) sq.Sqlizer {
	var names []string
	news := false
	for _, g := range groups {
		if g == NewsGroup {
			news = true
			continue
		}
		names = append(names, g)
	}
	or := sq.Or{}
	for _, s := range sourceSlots {
		if len(names) > 0 {
			or = append(or, sq.And{
				sq.Eq{string(s.Type): string(SourceBook)},
				sq.Eq{groupExpr(s): names},
			})
		}
		if news {
			or = append(or, sq.Eq{string(s.Type): string(SourceNews)})
		}
	}
	return or
}
