package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nahida1027/surveybot/internal/service"
)

// Notifier implements service.Notifier over the Telegram Bot API. The
// administrative channel is a forum supergroup; each participant gets
// their own topic. Topic calls (createForumTopic, thread-scoped sends)
// go through MakeRequest because the v5 typed configs predate Bot API
// 6.3 forum support.
type Notifier struct {
	api     *tgbotapi.BotAPI
	groupID int64
	log     *slog.Logger
}

// Connect authorizes against the Bot API and returns the notifier the
// rest of the system sends through.
func Connect(token string, groupID int64, log *slog.Logger) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram authorization: %w", err)
	}
	log.Info("authorized on telegram", slog.String("account", api.Self.UserName))
	return &Notifier{api: api, groupID: groupID, log: log}, nil
}

var _ service.Notifier = (*Notifier)(nil)

// SendToUser sends plain text to a participant. A non-empty choices list
// becomes a one-time reply keyboard; an empty one removes any keyboard
// left from a previous question.
func (n *Notifier) SendToUser(_ context.Context, userID int64, text string, choices []string) error {
	msg := tgbotapi.NewMessage(userID, text)
	if len(choices) > 0 {
		msg.ReplyMarkup = replyKeyboard(choices)
	} else {
		msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(false)
	}
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send to user %d: %w", userID, err)
	}
	return nil
}

// SendToAdminChannel posts HTML text into the admin group, inside the
// participant's topic when threadID is non-zero.
func (n *Notifier) SendToAdminChannel(_ context.Context, threadID int64, text string) error {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", n.groupID)
	params["text"] = text
	params.AddNonEmpty("parse_mode", tgbotapi.ModeHTML)
	params.AddNonZero64("message_thread_id", threadID)
	if _, err := n.api.MakeRequest("sendMessage", params); err != nil {
		return fmt.Errorf("send to admin channel: %w", err)
	}
	return nil
}

// SendMediaToAdminChannel re-sends a participant's attachment (by file
// id) into their topic with an HTML caption card.
func (n *Notifier) SendMediaToAdminChannel(_ context.Context, threadID int64, kind, fileID, caption string) error {
	var endpoint, field string
	switch kind {
	case "photo":
		endpoint, field = "sendPhoto", "photo"
	case "video":
		endpoint, field = "sendVideo", "video"
	case "document":
		endpoint, field = "sendDocument", "document"
	default:
		return fmt.Errorf("unknown media kind %q", kind)
	}
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", n.groupID)
	params[field] = fileID
	params.AddNonEmpty("caption", caption)
	params.AddNonEmpty("parse_mode", tgbotapi.ModeHTML)
	params.AddNonZero64("message_thread_id", threadID)
	if _, err := n.api.MakeRequest(endpoint, params); err != nil {
		return fmt.Errorf("send %s to admin channel: %w", kind, err)
	}
	return nil
}

// EnsureThread creates a forum topic for the participant and returns its
// id. The session record caches the id, so this runs once per session.
func (n *Notifier) EnsureThread(_ context.Context, userID int64, name string) (int64, error) {
	params := tgbotapi.Params{}
	params.AddNonZero64("chat_id", n.groupID)
	params["name"] = name
	resp, err := n.api.MakeRequest("createForumTopic", params)
	if err != nil {
		return 0, fmt.Errorf("create forum topic for %d: %w", userID, err)
	}
	var topic struct {
		MessageThreadID int64 `json:"message_thread_id"`
	}
	if err := json.Unmarshal(resp.Result, &topic); err != nil {
		return 0, fmt.Errorf("decode forum topic response: %w", err)
	}
	return topic.MessageThreadID, nil
}

func replyKeyboard(choices []string) tgbotapi.ReplyKeyboardMarkup {
	rows := make([][]tgbotapi.KeyboardButton, 0, len(choices))
	for _, label := range choices {
		rows = append(rows, tgbotapi.NewKeyboardButtonRow(tgbotapi.NewKeyboardButton(label)))
	}
	kb := tgbotapi.NewReplyKeyboard(rows...)
	kb.ResizeKeyboard = true
	kb.OneTimeKeyboard = true
	return kb
}
