// Package service holds the questionnaire domain: the question/category
// catalog, the per-user session record, the navigation engine that moves
// a session through a category's question graph, the idle-session
// sweeper, and the feedback compiler that reports a finished session to
// the administrative channel.
package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/nahida1027/surveybot/internal/store"
)

type QuestionType string

const (
	TypeNormal QuestionType = "normal"
	TypeBranch QuestionType = "branch"
)

// Option is one choice label offered with a question. On branch
// questions a non-zero Next routes the participant to that question id
// when the submitted text matches Label exactly; Next is zero for plain
// labels.
type Option struct {
	Label string `json:"label"`
	Next  int    `json:"next,omitempty"`
}

type Question struct {
	ID        int          `json:"id"`
	Category  string       `json:"category"`
	Text      string       `json:"text"`
	Type      QuestionType `json:"type"`
	Options   []Option     `json:"options,omitempty"`
	Skippable bool         `json:"skippable"`
	MediaKind string       `json:"media_kind,omitempty"`
	MediaRef  string       `json:"media_ref,omitempty"`
}

// Labels returns the option labels in authored order, for building the
// reply keyboard.
func (q Question) Labels() []string {
	out := make([]string, len(q.Options))
	for i, o := range q.Options {
		out[i] = o.Label
	}
	return out
}

var (
	ErrNoSuchQuestion = errors.New("question does not exist")
	ErrNoSuchCategory = errors.New("category has no questions")
	ErrEmptyField     = errors.New("required field is empty")
)

const (
	questionSeqKey = "question:seq"
	questionPrefix = "question:"
	categoryPrefix = "category:"
)

func questionKey(id int) string      { return questionPrefix + strconv.Itoa(id) }
func categoryKey(name string) string { return categoryPrefix + name }

// Catalog is the question graph store: questions grouped into named
// categories, traversed in ascending id order. It reads through to the
// backing store on every call so edits made through the bot or the web
// API are visible immediately.
type Catalog struct {
	store store.Store
}

func NewCatalog(st store.Store) *Catalog {
	return &Catalog{store: st}
}

// Create assigns the next id from the global counter, persists the
// question and registers it in its category. Ids are never reused.
func (c *Catalog) Create(ctx context.Context, q Question) (int, error) {
	if strings.TrimSpace(q.Category) == "" || strings.TrimSpace(q.Text) == "" {
		return 0, ErrEmptyField
	}
	id, err := c.store.Incr(ctx, questionSeqKey)
	if err != nil {
		return 0, fmt.Errorf("next question id: %w", err)
	}
	q.ID = int(id)
	if err := c.store.HSetAll(ctx, questionKey(q.ID), encodeQuestion(q)); err != nil {
		return 0, fmt.Errorf("save question %d: %w", q.ID, err)
	}
	if err := c.store.SAdd(ctx, categoryKey(q.Category), strconv.Itoa(q.ID)); err != nil {
		return 0, fmt.Errorf("register question %d in %q: %w", q.ID, q.Category, err)
	}
	return q.ID, nil
}

// Get returns the question with the given id, reporting absence
// explicitly rather than as an error: dangling references are a normal
// condition for the engine.
func (c *Catalog) Get(ctx context.Context, id int) (Question, bool, error) {
	h, err := c.store.HGetAll(ctx, questionKey(id))
	if err != nil {
		return Question{}, false, fmt.Errorf("load question %d: %w", id, err)
	}
	if h == nil {
		return Question{}, false, nil
	}
	q, err := decodeQuestion(id, h)
	if err != nil {
		return Question{}, false, err
	}
	return q, true, nil
}

// Update replaces the stored attributes of q.ID. Moving a question to a
// different category updates both member sets.
func (c *Catalog) Update(ctx context.Context, q Question) error {
	if strings.TrimSpace(q.Category) == "" || strings.TrimSpace(q.Text) == "" {
		return ErrEmptyField
	}
	old, ok, err := c.Get(ctx, q.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoSuchQuestion
	}
	if err := c.store.HSetAll(ctx, questionKey(q.ID), encodeQuestion(q)); err != nil {
		return fmt.Errorf("save question %d: %w", q.ID, err)
	}
	if old.Category != q.Category {
		if err := c.store.SRem(ctx, categoryKey(old.Category), strconv.Itoa(q.ID)); err != nil {
			return err
		}
		if err := c.store.SAdd(ctx, categoryKey(q.Category), strconv.Itoa(q.ID)); err != nil {
			return err
		}
	}
	return nil
}

// Members returns the category's question ids in ascending order — the
// order that defines sequential advancement.
func (c *Catalog) Members(ctx context.Context, category string) ([]int, error) {
	raw, err := c.store.SMembers(ctx, categoryKey(category))
	if err != nil {
		return nil, fmt.Errorf("load category %q: %w", category, err)
	}
	ids := make([]int, 0, len(raw))
	for _, r := range raw {
		id, err := strconv.Atoi(r)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// FirstQuestion returns the lowest-id member of the category that still
// resolves to a stored question. ErrNoSuchCategory means the category
// offers nothing to ask.
func (c *Catalog) FirstQuestion(ctx context.Context, category string) (Question, error) {
	members, err := c.Members(ctx, category)
	if err != nil {
		return Question{}, err
	}
	for _, id := range members {
		q, ok, err := c.Get(ctx, id)
		if err != nil {
			return Question{}, err
		}
		if ok {
			return q, nil
		}
	}
	return Question{}, fmt.Errorf("%w: %q", ErrNoSuchCategory, category)
}

// Categories lists every category name that has at least one member.
func (c *Catalog) Categories(ctx context.Context) ([]string, error) {
	keys, err := c.store.Keys(ctx, categoryPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimPrefix(k, categoryPrefix))
	}
	return names, nil
}

// All returns every stored question sorted by id.
func (c *Catalog) All(ctx context.Context) ([]Question, error) {
	keys, err := c.store.Keys(ctx, questionPrefix)
	if err != nil {
		return nil, err
	}
	var out []Question
	for _, k := range keys {
		id, err := strconv.Atoi(strings.TrimPrefix(k, questionPrefix))
		if err != nil {
			continue // question:seq and anything else non-numeric
		}
		q, ok, err := c.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ClearAll removes every question, every category member set and the id
// counter. This is the only way questions are ever deleted.
func (c *Catalog) ClearAll(ctx context.Context) error {
	for _, prefix := range []string{questionPrefix, categoryPrefix} {
		keys, err := c.store.Keys(ctx, prefix)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if _, err := c.store.DeleteIfExists(ctx, k); err != nil {
				return err
			}
		}
	}
	return nil
}

func encodeQuestion(q Question) map[string]string {
	skip := ""
	if q.Skippable {
		skip = "1"
	}
	typ := q.Type
	if typ == "" {
		typ = TypeNormal
	}
	return map[string]string{
		"category":   q.Category,
		"text":       q.Text,
		"type":       string(typ),
		"options":    FormatOptions(q.Options),
		"skip":       skip,
		"media_kind": q.MediaKind,
		"media_ref":  q.MediaRef,
	}
}

func decodeQuestion(id int, h map[string]string) (Question, error) {
	opts, err := ParseOptions(h["options"])
	if err != nil {
		return Question{}, fmt.Errorf("question %d: %w", id, err)
	}
	typ := QuestionType(h["type"])
	if typ == "" {
		typ = TypeNormal
	}
	return Question{
		ID:        id,
		Category:  h["category"],
		Text:      h["text"],
		Type:      typ,
		Options:   opts,
		Skippable: h["skip"] == "1",
		MediaKind: h["media_kind"],
		MediaRef:  h["media_ref"],
	}, nil
}
