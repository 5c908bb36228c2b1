package service

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"strings"
)

// Reason names why a session ended. It appears verbatim in the compiled
// feedback.
type Reason string

const (
	ReasonCompleted Reason = "normal completion"
	ReasonManualEnd Reason = "manual end"
	ReasonTimeout   Reason = "inactivity timeout"
)

// Notifier is the outbound half of the transport adapter, as seen by the
// service layer.
type Notifier interface {
	// SendToUser delivers text to a participant, optionally presenting
	// choice labels.
	SendToUser(ctx context.Context, userID int64, text string, choices []string) error
	// SendToAdminChannel delivers text to the administrative channel,
	// scoped to a topic when threadID is non-zero.
	SendToAdminChannel(ctx context.Context, threadID int64, text string) error
	// EnsureThread creates the participant's topic in the administrative
	// channel and returns its id. Callers cache the result per session.
	EnsureThread(ctx context.Context, userID int64, name string) (int64, error)
}

// CompileFeedback renders the session's answers for the administrative
// channel: participant header, finalize reason, then question/answer
// pairs ordered by question id. Question text is fetched live; a deleted
// question falls back to its id. The output is Telegram HTML.
func CompileFeedback(ctx context.Context, catalog *Catalog, s *Session, reason Reason) string {
	var b strings.Builder
	name := s.DisplayName
	if name == "" {
		name = "unknown"
	}
	fmt.Fprintf(&b, "📋 <b>%s</b>", html.EscapeString(name))
	if s.Handle != "" {
		fmt.Fprintf(&b, " (@%s)", html.EscapeString(s.Handle))
	}
	fmt.Fprintf(&b, "\n🆔 <code>%d</code>\n", s.UserID)
	fmt.Fprintf(&b, "🏁 Finished: %s\n", reason)

	if len(s.Answers) == 0 {
		b.WriteString("\nNo answers were submitted.")
		return b.String()
	}

	ids := make([]int, 0, len(s.Answers))
	for id := range s.Answers {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		text := fmt.Sprintf("question #%d", id)
		if q, ok, err := catalog.Get(ctx, id); err == nil && ok {
			text = q.Text
		}
		fmt.Fprintf(&b, "\n❓ <b>%s</b>\n💬 %s\n",
			html.EscapeString(text), html.EscapeString(s.Answers[id]))
	}
	return b.String()
}

// Finalizer ends sessions exactly once. Whoever holds a session snapshot
// — the message handler on completion or manual end, the sweeper on
// timeout — calls Finalize; the atomic removal decides which caller wins
// and only the winner emits feedback.
type Finalizer struct {
	sessions *Sessions
	catalog  *Catalog
	notifier Notifier
	log      *slog.Logger
}

func NewFinalizer(sessions *Sessions, catalog *Catalog, notifier Notifier, log *slog.Logger) *Finalizer {
	return &Finalizer{sessions: sessions, catalog: catalog, notifier: notifier, log: log}
}

// Finalize removes the session and, if this call was the one that
// removed it, compiles and delivers the feedback. It returns false when
// another actor already finalized the session; that is a silent no-op.
//
// A feedback delivery failure is logged and swallowed: the session
// record is the source of truth and it is already gone.
func (f *Finalizer) Finalize(ctx context.Context, s *Session, reason Reason) (bool, error) {
	removed, err := f.sessions.Remove(ctx, s.UserID)
	if err != nil {
		return false, err
	}
	if !removed {
		return false, nil
	}
	f.log.Info("session finalized",
		slog.Int64("user_id", s.UserID),
		slog.String("category", s.Category),
		slog.String("reason", string(reason)),
		slog.Int("answers", len(s.Answers)))

	report := CompileFeedback(ctx, f.catalog, s, reason)
	if err := f.notifier.SendToAdminChannel(ctx, s.ThreadID, report); err != nil {
		f.log.Warn("feedback delivery failed",
			slog.Int64("user_id", s.UserID), slog.Any("error", err))
	}
	return true, nil
}
