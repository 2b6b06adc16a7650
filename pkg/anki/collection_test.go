package anki

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseField(t *testing.T) {
	f, err := ParseField("source_translate2")
	require.NoError(t, err)
	assert.Equal(t, FieldSourceTranslate2, f)

	_, err = ParseField("source_translate3")
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestAddNoteWritesImportFile(t *testing.T) {
	dir := t.TempDir()
	c, err := OpenTSVCollection(dir, nil)
	require.NoError(t, err)

	deck, err := c.GetOrCreateDeck("Shanbay")
	require.NoError(t, err)
	nt, err := c.GetOrCreateNoteType("Shanbay Reading")
	require.NoError(t, err)

	require.NoError(t, c.AddNote(deck, nt, map[Field]string{
		FieldWord:         "alpha",
		FieldIPAUS:        "/ˈælfə/",
		FieldDefinitionCN: "n. 第一个\n字母",
	}))
	require.NoError(t, c.AddNote(deck, nt, map[Field]string{FieldWord: "beta\tversion"}))
	assert.Equal(t, 2, c.Added())

	raw, err := os.ReadFile(c.FilePath("Shanbay", "Shanbay Reading"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	require.Len(t, lines, 7)
	assert.Equal(t, "#separator:tab", lines[0])
	assert.Equal(t, "#html:true", lines[1])
	assert.Equal(t, "#notetype:Shanbay Reading", lines[2])
	assert.Equal(t, "#deck:Shanbay", lines[3])
	assert.Equal(t, "#columns:"+strings.Join(fieldNames(allFields), "\t"), lines[4])

	cells := strings.Split(lines[5], "\t")
	require.Len(t, cells, len(allFields))
	assert.Equal(t, "alpha", cells[0])
	assert.Equal(t, "", cells[1], "absent ipa_uk is an empty cell")
	assert.Equal(t, "/ˈælfə/", cells[2])
	assert.Equal(t, "n. 第一个<br>字母", cells[4])
	assert.Equal(t, "beta version", strings.Split(lines[6], "\t")[0])
}

func TestAddNoteRejectsUnknownField(t *testing.T) {
	c, err := OpenTSVCollection(t.TempDir(), nil)
	require.NoError(t, err)
	deck, _ := c.GetOrCreateDeck("d")
	nt, _ := c.GetOrCreateNoteType("n")

	err = c.AddNote(deck, nt, map[Field]string{Field("bogus"): "x"})
	assert.ErrorIs(t, err, ErrUnknownField)
}

func TestReopenRecoversDecksAndRecreatesOutdatedNoteType(t *testing.T) {
	dir := t.TempDir()
	legacy := "#separator:tab\n#html:true\n#notetype:Shanbay Reading\n#deck:Old Deck\n#columns:word\tipa_uk\nalpha\t/a/\n"
	legacyFile := fileName("Old Deck", "Shanbay Reading")
	require.NoError(t, os.WriteFile(filepath.Join(dir, legacyFile), []byte(legacy), 0o644))

	c, err := OpenTSVCollection(dir, nil)
	require.NoError(t, err)
	decks, err := c.Decks()
	require.NoError(t, err)
	assert.Equal(t, []string{"Old Deck"}, decks)

	nt, err := c.GetOrCreateNoteType("Shanbay Reading")
	require.NoError(t, err)
	assert.Equal(t, allFields, nt.Fields)

	deck, err := c.GetOrCreateDeck("Old Deck")
	require.NoError(t, err)
	require.NoError(t, c.AddNote(deck, nt, map[Field]string{FieldWord: "beta"}))

	rotated, err := os.ReadFile(filepath.Join(dir, legacyFile+".old"))
	require.NoError(t, err)
	assert.Equal(t, legacy, string(rotated))

	fresh, err := os.ReadFile(filepath.Join(dir, legacyFile))
	require.NoError(t, err)
	assert.Contains(t, string(fresh), "#columns:"+strings.Join(fieldNames(allFields), "\t"))
	assert.True(t, strings.HasSuffix(string(fresh), "beta"+strings.Repeat("\t", len(allFields)-1)+"\n"))
}
