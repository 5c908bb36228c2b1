package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nahida1027/surveybot/internal/store"
)

// seedCatalog creates the questions in order so their ids are 1..n.
func seedCatalog(t *testing.T, questions ...Question) *Catalog {
	t.Helper()
	catalog := NewCatalog(store.NewMemory())
	for i, q := range questions {
		id, err := catalog.Create(context.Background(), q)
		require.NoError(t, err)
		require.Equal(t, i+1, id)
	}
	return catalog
}

func normal(category, text string) Question {
	return Question{Category: category, Text: text, Type: TypeNormal}
}

func TestAdvanceSequential(t *testing.T) {
	ctx := context.Background()
	catalog := seedCatalog(t,
		normal("C", "one"),
		normal("C", "two"),
		normal("C", "three"),
	)
	e := NewEngine(catalog)
	s := NewSession(42, "C", 1)

	res, err := e.Advance(ctx, s, Submit{Text: "hello"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, res.Outcome)
	assert.Equal(t, 2, s.Current)
	assert.Equal(t, "hello", s.Answers[1])
	assert.Nil(t, res.Changed)

	res, err = e.Advance(ctx, s, Submit{Text: "world"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, res.Outcome)
	assert.Equal(t, 3, s.Current)

	res, err = e.Advance(ctx, s, Submit{Text: "done"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.Equal(t, "done", s.Answers[3])
}

// Scenario A from the design: a branch answer routes to its mapped
// target, and sequential order picks up from there.
func TestAdvanceBranchRouting(t *testing.T) {
	ctx := context.Background()
	catalog := seedCatalog(t,
		normal("C", "one"),
		Question{Category: "C", Text: "pick a color", Type: TypeBranch,
			Options: []Option{{Label: "red", Next: 4}, {Label: "blue", Next: 5}}},
		normal("C", "three"),
		normal("C", "four"),
		normal("C", "five"),
	)
	e := NewEngine(catalog)
	s := NewSession(42, "C", 1)

	_, err := e.Advance(ctx, s, Submit{Text: "hello"})
	require.NoError(t, err)
	require.Equal(t, 2, s.Current)

	res, err := e.Advance(ctx, s, Submit{Text: "red"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, res.Outcome)
	assert.Equal(t, 4, s.Current, "branch answer routes to the mapped target")

	res, err = e.Advance(ctx, s, Submit{Text: "anything"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, res.Outcome)
	assert.Equal(t, 5, s.Current, "after a jump, sequential order resumes")
}

func TestAdvanceBranchFallbacks(t *testing.T) {
	ctx := context.Background()
	catalog := seedCatalog(t,
		Question{Category: "C", Text: "pick", Type: TypeBranch,
			Options: []Option{
				{Label: "elsewhere", Next: 3}, // member of another category
				{Label: "plain"},              // no explicit mapping
			}},
		normal("C", "two"),
		normal("D", "other"),
	)
	e := NewEngine(catalog)

	cases := map[string]string{
		"target outside category":  "elsewhere",
		"label without mapping":    "plain",
		"no label match":           "Elsewhere", // case-sensitive
		"padded beyond trim":       "else where",
		"free text":                "whatever",
		"trimmed match elsewhere?": " plain ", // trims to a mapless label
	}
	for name, answer := range cases {
		t.Run(name, func(t *testing.T) {
			s := NewSession(42, "C", 1)
			res, err := e.Advance(ctx, s, Submit{Text: answer})
			require.NoError(t, err)
			assert.Equal(t, OutcomeContinue, res.Outcome)
			assert.Equal(t, 2, s.Current, "must fall back to sequential order")
		})
	}

	// Padding around a mapped label is trimmed before matching, but the
	// out-of-category target still falls through to sequential order.
	s := NewSession(42, "C", 1)
	res, err := e.Advance(ctx, s, Submit{Text: "  elsewhere  "})
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, res.Outcome)
	assert.Equal(t, 2, s.Current)
}

func TestAdvanceSkip(t *testing.T) {
	ctx := context.Background()
	catalog := seedCatalog(t,
		normal("C", "one"),
		Question{Category: "C", Text: "optional", Type: TypeNormal, Skippable: true},
		normal("C", "three"),
	)
	e := NewEngine(catalog)
	s := NewSession(42, "C", 1)

	// Question 1 is not skip-eligible: rejected, nothing changes.
	before := *s
	_, err := e.Advance(ctx, s, Skip{})
	assert.ErrorIs(t, err, ErrSkipNotAllowed)
	assert.Equal(t, before.Current, s.Current)
	assert.Equal(t, before.LastActivity, s.LastActivity)
	assert.Empty(t, s.Answers)

	_, err = e.Advance(ctx, s, Submit{Text: "a"})
	require.NoError(t, err)
	require.Equal(t, 2, s.Current)

	res, err := e.Advance(ctx, s, Skip{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, res.Outcome)
	assert.Equal(t, 3, s.Current)
	_, answered := s.Answers[2]
	assert.False(t, answered, "skip must not record an answer")
}

func TestAdvanceBack(t *testing.T) {
	ctx := context.Background()
	catalog := seedCatalog(t,
		normal("C", "one"),
		normal("C", "two"),
		normal("C", "three"),
	)
	e := NewEngine(catalog)
	s := NewSession(42, "C", 1)

	_, err := e.Advance(ctx, s, Submit{Text: "a"})
	require.NoError(t, err)
	_, err = e.Advance(ctx, s, Submit{Text: "b"})
	require.NoError(t, err)
	require.Equal(t, 3, s.Current)

	res, err := e.Advance(ctx, s, Back{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, res.Outcome)
	assert.Equal(t, 2, s.Current)

	res, err = e.Advance(ctx, s, Back{})
	require.NoError(t, err)
	assert.Equal(t, OutcomeContinue, res.Outcome)
	assert.Equal(t, 1, s.Current)

	// Past the beginning: reset to the first question, history cleared,
	// and every further back is a state no-op with the same outcome.
	for i := 0; i < 3; i++ {
		res, err = e.Advance(ctx, s, Back{})
		require.NoError(t, err)
		assert.Equal(t, OutcomeResetToStart, res.Outcome)
		assert.Equal(t, 1, s.Current)
		assert.Empty(t, s.History)
	}

	// Back never erases answers.
	assert.Equal(t, "a", s.Answers[1])
	assert.Equal(t, "b", s.Answers[2])
}

func TestAdvanceAnswerChanged(t *testing.T) {
	ctx := context.Background()
	catalog := seedCatalog(t,
		normal("C", "one"),
		normal("C", "two"),
	)
	e := NewEngine(catalog)
	s := NewSession(42, "C", 1)

	_, err := e.Advance(ctx, s, Submit{Text: "first"})
	require.NoError(t, err)
	_, err = e.Advance(ctx, s, Back{})
	require.NoError(t, err)
	require.Equal(t, 1, s.Current)

	res, err := e.Advance(ctx, s, Submit{Text: "second"})
	require.NoError(t, err)
	require.NotNil(t, res.Changed)
	assert.Equal(t, 1, res.Changed.QuestionID)
	assert.Equal(t, "first", res.Changed.Old)
	assert.Equal(t, "second", res.Changed.New)
	assert.Equal(t, "second", s.Answers[1])
}

func TestAdvanceDanglingReferenceCompletes(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	catalog := NewCatalog(st)
	id, err := catalog.Create(ctx, normal("C", "one"))
	require.NoError(t, err)
	require.Equal(t, 1, id)
	// A member id with no question record behind it.
	require.NoError(t, st.SAdd(ctx, "category:C", "99"))

	e := NewEngine(catalog)
	s := NewSession(42, "C", 1)
	res, err := e.Advance(ctx, s, Submit{Text: "a"})
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, res.Outcome, "dangling next question means completion")
	assert.Equal(t, "a", s.Answers[1], "the final answer is still recorded")
}

func TestAdvanceAttachmentPlaceholder(t *testing.T) {
	ctx := context.Background()
	catalog := seedCatalog(t,
		Question{Category: "C", Text: "send a photo", Type: TypeBranch,
			Options: []Option{{Label: "[photo]", Next: 3}}},
		normal("C", "two"),
		normal("C", "three"),
	)
	e := NewEngine(catalog)
	s := NewSession(42, "C", 1)

	res, err := e.Advance(ctx, s, Submit{Text: "", Attachment: "photo"})
	require.NoError(t, err)
	assert.Equal(t, "[photo]", s.Answers[1])
	// Attachments never participate in branch resolution, even when the
	// placeholder text happens to equal a mapped label.
	assert.Equal(t, 2, s.Current)
	assert.Equal(t, OutcomeContinue, res.Outcome)
}

// The pointer must always land on a member of the active category.
func TestPointerStaysInCategory(t *testing.T) {
	ctx := context.Background()
	catalog := seedCatalog(t,
		normal("C", "one"),
		Question{Category: "C", Text: "pick", Type: TypeBranch,
			Options: []Option{{Label: "jump", Next: 4}}},
		normal("C", "three"),
		normal("C", "four"),
		normal("D", "elsewhere"),
	)
	e := NewEngine(catalog)
	members, err := catalog.Members(ctx, "C")
	require.NoError(t, err)

	s := NewSession(42, "C", 1)
	actions := []Action{
		Submit{Text: "x"}, Submit{Text: "jump"}, Back{}, Back{}, Back{},
		Submit{Text: "y"}, Submit{Text: "z"},
	}
	for _, act := range actions {
		res, err := e.Advance(ctx, s, act)
		require.NoError(t, err)
		if res.Outcome == OutcomeCompleted {
			break
		}
		assert.Contains(t, members, s.Current)
	}
}

func TestClassify(t *testing.T) {
	assert.Equal(t, Skip{}, Classify(SkipLabel, ""))
	assert.Equal(t, Back{}, Classify(BackLabel, ""))
	assert.Equal(t, Submit{Text: "hi"}, Classify("hi", ""))
	// Control tokens in a caption are ordinary answers.
	assert.Equal(t, Submit{Text: SkipLabel, Attachment: "photo"}, Classify(SkipLabel, "photo"))
	// No trimming: near-misses are answers.
	assert.Equal(t, Submit{Text: SkipLabel + " "}, Classify(SkipLabel+" ", ""))
}
