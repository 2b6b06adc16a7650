package anki

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"
)

// Deck is a named note collection.
type Deck struct {
	Name string
}

// NoteType is a note template with an ordered field list.
type NoteType struct {
	Name   string
	Fields []Field
}

// Collection is what an export needs from the host.
type Collection interface {
	Decks() ([]string, error)
	GetOrCreateDeck(name string) (*Deck, error)
	GetOrCreateNoteType(name string) (*NoteType, error)
	AddNote(deck *Deck, nt *NoteType, fields map[Field]string) error
}

// TSVCollection stores notes as Anki plain-text import files, one per deck
// and note type, under a directory.
type TSVCollection struct {
	dir string
	log *slog.Logger

	mu        sync.Mutex
	decks     map[string]*Deck
	noteTypes map[string]*NoteType
	// columns holds the #columns header of every file already on disk.
	columns map[string][]string
	added   int
}

var _ Collection = (*TSVCollection)(nil)

// OpenTSVCollection opens (creating if needed) a collection in dir and
// recovers decks and note types from the headers of existing files.
func OpenTSVCollection(dir string, logger *slog.Logger) (*TSVCollection, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("anki: create output dir: %w", err)
	}
	c := &TSVCollection{
		dir:       dir,
		log:       logger.With("component", "anki"),
		decks:     map[string]*Deck{},
		noteTypes: map[string]*NoteType{},
		columns:   map[string][]string{},
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.txt"))
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		h, err := readHeader(p)
		if err != nil {
			return nil, fmt.Errorf("anki: read %s: %w", p, err)
		}
		if h.deck == "" || h.noteType == "" {
			continue
		}
		c.decks[h.deck] = &Deck{Name: h.deck}
		if _, ok := c.noteTypes[h.noteType]; !ok {
			fields := make([]Field, len(h.columns))
			for i, col := range h.columns {
				fields[i] = Field(col)
			}
			c.noteTypes[h.noteType] = &NoteType{Name: h.noteType, Fields: fields}
		}
		c.columns[filepath.Base(p)] = h.columns
	}
	return c, nil
}

// Decks lists the deck names in the collection.
func (c *TSVCollection) Decks() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.decks))
	for name := range c.decks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// GetOrCreateDeck returns the named deck, creating it on first use.
func (c *TSVCollection) GetOrCreateDeck(name string) (*Deck, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("anki: deck name must be non-empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if d, ok := c.decks[name]; ok {
		return d, nil
	}
	d := &Deck{Name: name}
	c.decks[name] = d
	return d, nil
}

// GetOrCreateNoteType returns the named note type. A stored type whose fields
// differ from the current field set is recreated.
func (c *TSVCollection) GetOrCreateNoteType(name string) (*NoteType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("anki: note type name must be non-empty")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if nt, ok := c.noteTypes[name]; ok {
		if slices.Equal(nt.Fields, allFields) {
			return nt, nil
		}
		c.log.Info("note type fields changed, recreating", "note_type", name)
	}
	nt := &NoteType{Name: name, Fields: Fields()}
	c.noteTypes[name] = nt
	return nt, nil
}

// AddNote appends one note. Absent fields become empty cells; keys outside
// the note type are rejected.
func (c *TSVCollection) AddNote(deck *Deck, nt *NoteType, fields map[Field]string) error {
	if deck == nil || nt == nil {
		return fmt.Errorf("anki: deck and note type are required")
	}
	for f := range fields {
		if !slices.Contains(nt.Fields, f) {
			return fmt.Errorf("%w: %q", ErrUnknownField, string(f))
		}
	}
	row := make([]string, len(nt.Fields))
	for i, f := range nt.Fields {
		row[i] = cell(fields[f])
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	file := fileName(deck.Name, nt.Name)
	path := filepath.Join(c.dir, file)
	cols := fieldNames(nt.Fields)

	if existing, ok := c.columns[file]; ok && !slices.Equal(existing, cols) {
		old := path + ".old"
		c.log.Warn("note file has outdated columns, rotating", "file", file, "moved_to", filepath.Base(old))
		if err := os.Rename(path, old); err != nil {
			return fmt.Errorf("anki: rotate %s: %w", file, err)
		}
		delete(c.columns, file)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("anki: open %s: %w", file, err)
	}
	w := bufio.NewWriter(f)
	if _, ok := c.columns[file]; !ok {
		fmt.Fprintf(w, "#separator:tab\n#html:true\n#notetype:%s\n#deck:%s\n#columns:%s\n",
			nt.Name, deck.Name, strings.Join(cols, "\t"))
		c.columns[file] = cols
	}
	w.WriteString(strings.Join(row, "\t"))
	w.WriteByte('\n')
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("anki: write %s: %w", file, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("anki: close %s: %w", file, err)
	}
	c.added++
	return nil
}

// Added is the number of notes written through this collection.
func (c *TSVCollection) Added() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.added
}

// FilePath returns where notes of deck and note type are written.
func (c *TSVCollection) FilePath(deck, noteType string) string {
	return filepath.Join(c.dir, fileName(deck, noteType))
}

var unsafeChars = regexp.MustCompile(`[^\p{L}\p{N}._-]+`)

func fileName(deck, noteType string) string {
	return unsafeChars.ReplaceAllString(deck, "_") + "__" + unsafeChars.ReplaceAllString(noteType, "_") + ".txt"
}

var cellReplacer = strings.NewReplacer("\t", " ", "\r\n", "<br>", "\n", "<br>", "\r", "<br>")

func cell(s string) string { return cellReplacer.Replace(s) }

func fieldNames(fields []Field) []string {
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = string(f)
	}
	return out
}

type header struct {
	deck     string
	noteType string
	columns  []string
}

func readHeader(path string) (header, error) {
	var h header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if !strings.HasPrefix(line, "#") {
			break
		}
		key, value, _ := strings.Cut(strings.TrimPrefix(line, "#"), ":")
		switch key {
		case "deck":
			h.deck = value
		case "notetype":
			h.noteType = value
		case "columns":
			h.columns = strings.Split(value, "\t")
		}
	}
	return h, sc.Err()
}
