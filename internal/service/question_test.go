package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahida1027/surveybot/internal/store"
)

func TestCatalogCreateGet(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog(store.NewMemory())

	id, err := catalog.Create(ctx, Question{
		Category:  "food",
		Text:      "Pick one",
		Type:      TypeBranch,
		Options:   []Option{{Label: "pizza", Next: 3}, {Label: "other"}},
		Skippable: true,
		MediaKind: "photo",
		MediaRef:  "file-abc",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, id)

	got, ok, err := catalog.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "food", got.Category)
	assert.Equal(t, TypeBranch, got.Type)
	assert.Equal(t, []Option{{Label: "pizza", Next: 3}, {Label: "other"}}, got.Options)
	assert.True(t, got.Skippable)
	assert.Equal(t, "photo", got.MediaKind)
	assert.Equal(t, "file-abc", got.MediaRef)

	_, ok, err = catalog.Get(ctx, 2)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCatalogCreateRejectsEmpty(t *testing.T) {
	ctx := context.Background()
	catalog := NewCatalog(store.NewMemory())
	_, err := catalog.Create(ctx, Question{Category: "  ", Text: "x"})
	assert.ErrorIs(t, err, ErrEmptyField)
	_, err = catalog.Create(ctx, Question{Category: "c", Text: ""})
	assert.ErrorIs(t, err, ErrEmptyField)
}

func TestCatalogUpdateMovesCategory(t *testing.T) {
	ctx := context.Background()
	catalog := seedCatalog(t,
		normal("food", "one"),
		normal("food", "two"),
	)

	q, ok, err := catalog.Get(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	q.Category = "travel"
	q.Text = "edited"
	require.NoError(t, catalog.Update(ctx, q))

	food, err := catalog.Members(ctx, "food")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, food)
	travel, err := catalog.Members(ctx, "travel")
	require.NoError(t, err)
	assert.Equal(t, []int{2}, travel)

	got, ok, err := catalog.Get(ctx, 2)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "edited", got.Text)

	err = catalog.Update(ctx, Question{ID: 99, Category: "c", Text: "x"})
	assert.ErrorIs(t, err, ErrNoSuchQuestion)
}

func TestCatalogMembersSorted(t *testing.T) {
	ctx := context.Background()
	catalog := seedCatalog(t,
		normal("c", "a"), normal("c", "b"), normal("c", "c"),
		normal("c", "d"), normal("c", "e"), normal("c", "f"),
		normal("c", "g"), normal("c", "h"), normal("c", "i"),
		normal("c", "j"), normal("c", "k"),
	)
	members, err := catalog.Members(ctx, "c")
	require.NoError(t, err)
	// Numeric order, not the lexicographic order of the raw set members.
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, members)
}

func TestCatalogFirstQuestion(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	catalog := NewCatalog(st)

	_, err := catalog.FirstQuestion(ctx, "nope")
	assert.ErrorIs(t, err, ErrNoSuchCategory)

	_, err = catalog.Create(ctx, normal("c", "one"))
	require.NoError(t, err)
	_, err = catalog.Create(ctx, normal("c", "two"))
	require.NoError(t, err)
	// A dangling member below the real questions is stepped over.
	require.NoError(t, st.SAdd(ctx, "category:c", "0"))

	q, err := catalog.FirstQuestion(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, q.ID)
}

func TestCatalogAllSkipsCounter(t *testing.T) {
	ctx := context.Background()
	catalog := seedCatalog(t, normal("a", "one"), normal("b", "two"))
	all, err := catalog.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, 1, all[0].ID)
	assert.Equal(t, 2, all[1].ID)

	cats, err := catalog.Categories(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, cats)
}

func TestCatalogClearAllResetsIDs(t *testing.T) {
	ctx := context.Background()
	catalog := seedCatalog(t, normal("a", "one"), normal("a", "two"))
	require.NoError(t, catalog.ClearAll(ctx))

	all, err := catalog.All(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
	cats, err := catalog.Categories(ctx)
	require.NoError(t, err)
	assert.Empty(t, cats)

	// The counter went with everything else, so ids restart at 1.
	id, err := catalog.Create(ctx, normal("a", "fresh"))
	require.NoError(t, err)
	assert.Equal(t, 1, id)
}
