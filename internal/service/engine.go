package service

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Reserved control labels. They are matched exactly and case-sensitively
// at the transport edge; the engine itself never sees raw control text,
// only typed actions.
const (
	SkipLabel = "⏭ Skip"
	BackLabel = "↩ Back"
)

// Action is what a participant's turn was classified as. Exactly one of
// Submit, Skip, Back or End reaches the engine per turn.
type Action interface{ isAction() }

// Submit carries the literal answer text, or an attachment kind
// ("photo", "video", "document") when the turn was media instead of
// text.
type Submit struct {
	Text       string
	Attachment string
}

type Skip struct{}
type Back struct{}
type End struct{}

func (Submit) isAction() {}
func (Skip) isAction()   {}
func (Back) isAction()   {}
func (End) isAction()    {}

// Classify maps an inbound turn to an action. Control tokens only count
// when the turn is pure text; a photo captioned "⏭ Skip" is an answer.
func Classify(text, attachment string) Action {
	if attachment == "" {
		switch text {
		case SkipLabel:
			return Skip{}
		case BackLabel:
			return Back{}
		}
	}
	return Submit{Text: text, Attachment: attachment}
}

type Outcome int

const (
	// OutcomeContinue: the pointer moved, deliver Result.Next.
	OutcomeContinue Outcome = iota
	// OutcomeCompleted: no next question; the caller finalizes the
	// session with ReasonCompleted.
	OutcomeCompleted
	// OutcomeResetToStart: back was requested past the beginning; the
	// pointer is at the category's first question and the history is
	// empty. Deliver Result.Next, do not finalize.
	OutcomeResetToStart
	// OutcomeEnded: an explicit End action; the caller finalizes with
	// ReasonManualEnd.
	OutcomeEnded
)

// AnswerChange reports that a submit overwrote an earlier answer for the
// same question.
type AnswerChange struct {
	QuestionID int
	Old        string
	New        string
}

type Result struct {
	Outcome Outcome
	Next    Question      // valid for OutcomeContinue and OutcomeResetToStart
	Changed *AnswerChange // non-nil when a prior answer was overwritten
}

// ErrSkipNotAllowed rejects a skip on a question without the skip flag.
// The session is left untouched.
var ErrSkipNotAllowed = errors.New("this question cannot be skipped")

// Engine computes session transitions. It mutates the session in memory
// and returns what happened; persisting the session (or finalizing it)
// is the caller's responsibility, so that a store failure never leaves a
// half-applied transition behind.
type Engine struct {
	catalog *Catalog
}

func NewEngine(catalog *Catalog) *Engine {
	return &Engine{catalog: catalog}
}

// Advance applies one action to the session.
//
// The pointer always lands on a member of the active category or the
// session completes: branch targets outside the category fall back to
// sequential order, and any reference to a question that no longer
// exists resolves to "no next question".
func (e *Engine) Advance(ctx context.Context, s *Session, act Action) (Result, error) {
	switch act := act.(type) {
	case Back:
		s.LastActivity = time.Now()
		return e.back(ctx, s)
	case Skip:
		return e.skip(ctx, s)
	case Submit:
		s.LastActivity = time.Now()
		return e.submit(ctx, s, act)
	case End:
		s.LastActivity = time.Now()
		return Result{Outcome: OutcomeEnded}, nil
	}
	return Result{}, errors.New("unknown action")
}

// back is a pure stack pop: it never consults branch mappings and never
// grows the history. Fewer than two entries means there is no prior
// position, so the session restarts at the category's first question.
func (e *Engine) back(ctx context.Context, s *Session) (Result, error) {
	if len(s.History) >= 2 {
		s.History = s.History[:len(s.History)-1]
		s.Current = s.History[len(s.History)-1]
		q, ok, err := e.catalog.Get(ctx, s.Current)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			return Result{Outcome: OutcomeCompleted}, nil
		}
		return Result{Outcome: OutcomeContinue, Next: q}, nil
	}

	q, err := e.catalog.FirstQuestion(ctx, s.Category)
	if err != nil {
		if errors.Is(err, ErrNoSuchCategory) {
			return Result{Outcome: OutcomeCompleted}, nil
		}
		return Result{}, err
	}
	s.Current = q.ID
	s.History = nil
	return Result{Outcome: OutcomeResetToStart, Next: q}, nil
}

func (e *Engine) skip(ctx context.Context, s *Session) (Result, error) {
	cur, ok, err := e.catalog.Get(ctx, s.Current)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		// Current question was deleted under us.
		s.LastActivity = time.Now()
		return Result{Outcome: OutcomeCompleted}, nil
	}
	if !cur.Skippable {
		return Result{}, ErrSkipNotAllowed
	}
	s.LastActivity = time.Now()
	return e.moveSequential(ctx, s, nil)
}

func (e *Engine) submit(ctx context.Context, s *Session, act Submit) (Result, error) {
	cur, ok, err := e.catalog.Get(ctx, s.Current)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Outcome: OutcomeCompleted}, nil
	}

	text := act.Text
	if act.Attachment != "" {
		text = "[" + act.Attachment + "]"
	}
	var changed *AnswerChange
	if old, existed := s.Answers[s.Current]; existed {
		changed = &AnswerChange{QuestionID: s.Current, Old: old, New: text}
	}
	if s.Answers == nil {
		s.Answers = map[int]string{}
	}
	s.Answers[s.Current] = text

	// Branch resolution: an exact (trimmed) label match with an explicit
	// target routes there, but only when the target belongs to the
	// active category. Anything else advances sequentially.
	if cur.Type == TypeBranch && act.Attachment == "" {
		trimmed := strings.TrimSpace(act.Text)
		for _, opt := range cur.Options {
			if opt.Next == 0 || opt.Label != trimmed {
				continue
			}
			members, err := e.catalog.Members(ctx, s.Category)
			if err != nil {
				return Result{}, err
			}
			if containsInt(members, opt.Next) {
				return e.moveTo(ctx, s, opt.Next, changed)
			}
			break
		}
	}
	return e.moveSequential(ctx, s, changed)
}

// moveSequential advances to the next category member strictly greater
// than the current id, completing the session when there is none.
func (e *Engine) moveSequential(ctx context.Context, s *Session, changed *AnswerChange) (Result, error) {
	members, err := e.catalog.Members(ctx, s.Category)
	if err != nil {
		return Result{}, err
	}
	next := 0
	for _, id := range members {
		if id > s.Current {
			next = id
			break
		}
	}
	if next == 0 {
		return Result{Outcome: OutcomeCompleted, Changed: changed}, nil
	}
	return e.moveTo(ctx, s, next, changed)
}

// moveTo commits the transition: the candidate must still exist (a
// dangling reference completes the session instead), the new position is
// appended to the visited path and the pointer moves.
func (e *Engine) moveTo(ctx context.Context, s *Session, next int, changed *AnswerChange) (Result, error) {
	q, ok, err := e.catalog.Get(ctx, next)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Outcome: OutcomeCompleted, Changed: changed}, nil
	}
	s.History = append(s.History, next)
	s.Current = next
	return Result{Outcome: OutcomeContinue, Next: q, Changed: changed}, nil
}

func containsInt(ids []int, want int) bool {
	for _, id := range ids {
		if id == want {
			return true
		}
	}
	return false
}
