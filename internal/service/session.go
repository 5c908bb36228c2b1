package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/nahida1027/surveybot/internal/store"
)

// Session is one user's in-progress traversal of a category. The record
// lives in the store under a single key; its absence is the canonical
// "not taking a questionnaire" signal, so creation and removal of that
// key bound the session's lifetime exactly.
//
// History is the visited path including the current position: its last
// element always equals Current, except immediately after a
// reset-to-start, when it is empty. Back pops the current position off
// the path.
type Session struct {
	UserID       int64
	Category     string
	Current      int
	StartedAt    time.Time
	LastActivity time.Time
	Answers      map[int]string
	History      []int
	DisplayName  string
	Handle       string
	ThreadID     int64 // admin-channel topic, 0 until first answer
}

// NewSession builds a fresh session positioned at first.
func NewSession(userID int64, category string, first int) *Session {
	now := time.Now()
	return &Session{
		UserID:       userID,
		Category:     category,
		Current:      first,
		StartedAt:    now,
		LastActivity: now,
		Answers:      map[int]string{},
		History:      []int{first},
	}
}

const sessionPrefix = "session:"

func sessionKey(userID int64) string { return sessionPrefix + strconv.FormatInt(userID, 10) }

// Sessions persists Session records. Nothing is cached in process
// memory: Load re-reads the store and Save writes through, so a restart
// loses no progress and concurrent actors always see committed state.
type Sessions struct {
	store store.Store
}

func NewSessions(st store.Store) *Sessions {
	return &Sessions{store: st}
}

// Load returns the user's session, or nil when none exists.
func (s *Sessions) Load(ctx context.Context, userID int64) (*Session, error) {
	h, err := s.store.HGetAll(ctx, sessionKey(userID))
	if err != nil {
		return nil, fmt.Errorf("load session %d: %w", userID, err)
	}
	if h == nil {
		return nil, nil
	}
	return decodeSession(userID, h)
}

// Save writes the whole record back in one call.
func (s *Sessions) Save(ctx context.Context, sess *Session) error {
	fields, err := encodeSession(sess)
	if err != nil {
		return err
	}
	if err := s.store.HSetAll(ctx, sessionKey(sess.UserID), fields); err != nil {
		return fmt.Errorf("save session %d: %w", sess.UserID, err)
	}
	return nil
}

// Remove deletes the session and reports whether it still existed. This
// is the exactly-once guard for finalization: of all actors racing to
// end a session, only the one that observes true proceeds with side
// effects.
func (s *Sessions) Remove(ctx context.Context, userID int64) (bool, error) {
	existed, err := s.store.DeleteIfExists(ctx, sessionKey(userID))
	if err != nil {
		return false, fmt.Errorf("remove session %d: %w", userID, err)
	}
	return existed, nil
}

// ActiveUserIDs enumerates every user with a live session.
func (s *Sessions) ActiveUserIDs(ctx context.Context) ([]int64, error) {
	keys, err := s.store.Keys(ctx, sessionPrefix)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	ids := make([]int64, 0, len(keys))
	for _, k := range keys {
		id, err := strconv.ParseInt(strings.TrimPrefix(k, sessionPrefix), 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func encodeSession(sess *Session) (map[string]string, error) {
	answers := make(map[string]string, len(sess.Answers))
	for id, text := range sess.Answers {
		answers[strconv.Itoa(id)] = text
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return nil, err
	}
	historyJSON, err := json.Marshal(sess.History)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		"category":      sess.Category,
		"current":       strconv.Itoa(sess.Current),
		"started_at":    strconv.FormatInt(sess.StartedAt.Unix(), 10),
		"last_activity": strconv.FormatInt(sess.LastActivity.Unix(), 10),
		"answers":       string(answersJSON),
		"history":       string(historyJSON),
		"display_name":  sess.DisplayName,
		"handle":        sess.Handle,
		"thread_id":     strconv.FormatInt(sess.ThreadID, 10),
	}, nil
}

func decodeSession(userID int64, h map[string]string) (*Session, error) {
	current, err := strconv.Atoi(h["current"])
	if err != nil {
		return nil, fmt.Errorf("session %d: bad current pointer %q", userID, h["current"])
	}
	started, _ := strconv.ParseInt(h["started_at"], 10, 64)
	activity, _ := strconv.ParseInt(h["last_activity"], 10, 64)
	threadID, _ := strconv.ParseInt(h["thread_id"], 10, 64)

	answers := map[int]string{}
	if raw := h["answers"]; raw != "" {
		var byName map[string]string
		if err := json.Unmarshal([]byte(raw), &byName); err != nil {
			return nil, fmt.Errorf("session %d: decode answers: %w", userID, err)
		}
		for idStr, text := range byName {
			id, err := strconv.Atoi(idStr)
			if err != nil {
				continue
			}
			answers[id] = text
		}
	}
	var history []int
	if raw := h["history"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &history); err != nil {
			return nil, fmt.Errorf("session %d: decode history: %w", userID, err)
		}
	}
	return &Session{
		UserID:       userID,
		Category:     h["category"],
		Current:      current,
		StartedAt:    time.Unix(started, 0),
		LastActivity: time.Unix(activity, 0),
		Answers:      answers,
		History:      history,
		DisplayName:  h["display_name"],
		Handle:       h["handle"],
		ThreadID:     threadID,
	}, nil
}
