package fctx

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/formulacore/internal/domain"
)

func TestNormalizeAlias(t *testing.T) {
	cases := map[string]string{
		"Design Doc.md": "Design_Doc_md",
		"  ---  ":       "doc",
		"123notes":      "_123notes",
		"already_good":  "already_good",
		"":              "doc",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeAlias(in), "input %q", in)
	}
}

func TestProjectContext_DocumentByAlias(t *testing.T) {
	proj := domain.NewProject("p1")
	doc := &domain.Document{ID: uuid.New(), Title: "Release Notes", FileName: "release-notes.md"}
	proj.Documents = append(proj.Documents, doc)
	proj.RefreshIndexes()

	ctx := NewProjectContext(proj)

	got, ok := ctx.DocumentByAlias("release-notes.md")
	require.True(t, ok)
	assert.Equal(t, doc.ID, got.ID)

	got, ok = ctx.DocumentByAlias("Release Notes")
	require.True(t, ok)
	assert.Equal(t, doc.ID, got.ID)

	_, ok = ctx.DocumentByAlias("nope")
	assert.False(t, ok)
}

func TestProjectContext_TableLookups(t *testing.T) {
	proj := domain.NewProject("p1")
	table := domain.NewTable(uuid.New(), "Characters")
	proj.Tables = append(proj.Tables, table)
	proj.RefreshIndexes()

	ctx := NewProjectContext(proj)

	got, ok := ctx.TableByID(table.ID)
	require.True(t, ok)
	assert.Equal(t, table.Name, got.Name)

	got, ok = ctx.TableByName("characters")
	require.True(t, ok)
	assert.Equal(t, table.ID, got.ID)
}
