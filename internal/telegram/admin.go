package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nahida1027/surveybot/internal/service"
)

// Authoring commands. Only the configured administrator may use them;
// everyone else gets a rejection and no state changes.

func (b *Bot) requireAdmin(msg *tgbotapi.Message) bool {
	if msg.From.ID == b.adminID {
		return true
	}
	b.reply(msg.Chat.ID, "❌ You are not allowed to do that.")
	return false
}

func (b *Bot) cmdAddQuestion(ctx context.Context, msg *tgbotapi.Message, branch bool) {
	if !b.requireAdmin(msg) {
		return
	}
	b.createQuestion(ctx, msg, msg.CommandArguments(), branch, "", "")
}

// handleCaptionCommand handles /addquestion and /addbranch written in
// the caption of a media message; the media becomes the question's
// attachment.
func (b *Bot) handleCaptionCommand(ctx context.Context, msg *tgbotapi.Message) {
	command, args, _ := strings.Cut(strings.TrimSpace(msg.Caption), " ")
	kind := attachmentKind(msg)
	switch command {
	case "/addquestion", "/addbranch":
		if kind == "" {
			b.reply(msg.Chat.ID, "❌ Unsupported attachment type.")
			return
		}
		b.createQuestion(ctx, msg, args, command == "/addbranch", kind, mediaFileID(msg, kind))
	default:
		b.reply(msg.Chat.ID, "Unknown command — try /help.")
	}
}

func (b *Bot) createQuestion(ctx context.Context, msg *tgbotapi.Message, args string, branch bool, mediaKind, mediaRef string) {
	q, err := service.ParseQuestionSpec(args, branch)
	if err != nil {
		b.reply(msg.Chat.ID, "❌ "+err.Error()+"\nFormat: category|text|options|flags")
		return
	}
	q.MediaKind = mediaKind
	q.MediaRef = mediaRef
	id, err := b.catalog.Create(ctx, q)
	if err != nil {
		b.storeDown(msg.Chat.ID, err)
		return
	}
	kind := "question"
	if branch {
		kind = "branch question"
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("✅ Added %s %d to %q: %s", kind, id, q.Category, q.Text))
}

func (b *Bot) cmdEditQuestion(ctx context.Context, msg *tgbotapi.Message) {
	if !b.requireAdmin(msg) {
		return
	}
	idStr, rest, found := strings.Cut(msg.CommandArguments(), "|")
	id, err := strconv.Atoi(strings.TrimSpace(idStr))
	if !found || err != nil {
		b.reply(msg.Chat.ID, "❌ Format: id|category|text|options|flags")
		return
	}
	old, ok, err := b.catalog.Get(ctx, id)
	if err != nil {
		b.storeDown(msg.Chat.ID, err)
		return
	}
	if !ok {
		b.reply(msg.Chat.ID, fmt.Sprintf("❌ Question %d does not exist.", id))
		return
	}
	q, err := service.ParseQuestionSpec(rest, old.Type == service.TypeBranch)
	if err != nil {
		b.reply(msg.Chat.ID, "❌ "+err.Error())
		return
	}
	q.ID = id
	q.MediaKind = old.MediaKind
	q.MediaRef = old.MediaRef
	if err := b.catalog.Update(ctx, q); err != nil {
		if errors.Is(err, service.ErrNoSuchQuestion) || errors.Is(err, service.ErrEmptyField) {
			b.reply(msg.Chat.ID, "❌ "+err.Error())
			return
		}
		b.storeDown(msg.Chat.ID, err)
		return
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("✅ Updated question %d.", id))
}

func (b *Bot) cmdListQuestions(ctx context.Context, msg *tgbotapi.Message) {
	if !b.requireAdmin(msg) {
		return
	}
	questions, err := b.catalog.All(ctx)
	if err != nil {
		b.storeDown(msg.Chat.ID, err)
		return
	}
	if len(questions) == 0 {
		b.reply(msg.Chat.ID, "📝 No questions yet.")
		return
	}
	var lines []string
	for _, q := range questions {
		line := fmt.Sprintf("%d. [%s] %s", q.ID, q.Category, q.Text)
		if q.Type == service.TypeBranch {
			line = fmt.Sprintf("%d. [%s] 🔀 %s", q.ID, q.Category, q.Text)
		}
		if len(q.Options) > 0 {
			line += "\n   options: " + service.FormatOptions(q.Options)
		}
		var marks []string
		if q.Skippable {
			marks = append(marks, "skippable")
		}
		if q.MediaKind != "" {
			marks = append(marks, q.MediaKind)
		}
		if len(marks) > 0 {
			line += "\n   (" + strings.Join(marks, ", ") + ")"
		}
		lines = append(lines, line)
	}
	b.reply(msg.Chat.ID, "📋 Questions:\n"+strings.Join(lines, "\n"))
}

func (b *Bot) cmdClearAll(ctx context.Context, msg *tgbotapi.Message) {
	if !b.requireAdmin(msg) {
		return
	}
	if err := b.catalog.ClearAll(ctx); err != nil {
		b.storeDown(msg.Chat.ID, err)
		return
	}
	b.reply(msg.Chat.ID, "✅ All questions cleared.")
}
