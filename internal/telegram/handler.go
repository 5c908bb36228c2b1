package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/nahida1027/surveybot/internal/service"
)

// Bot drives the conversational side of the questionnaire: the long-poll
// update loop, command dispatch, classification of turns into typed
// actions, and delivery of questions with their choice keyboards.
type Bot struct {
	api       *tgbotapi.BotAPI
	notifier  *Notifier
	catalog   *service.Catalog
	sessions  *service.Sessions
	engine    *service.Engine
	finalizer *service.Finalizer
	adminID   int64
	log       *slog.Logger
}

func NewBot(n *Notifier, catalog *service.Catalog, sessions *service.Sessions, engine *service.Engine, finalizer *service.Finalizer, adminID int64, log *slog.Logger) *Bot {
	return &Bot{
		api:       n.api,
		notifier:  n,
		catalog:   catalog,
		sessions:  sessions,
		engine:    engine,
		finalizer: finalizer,
		adminID:   adminID,
		log:       log,
	}
}

// Start consumes updates until ctx is cancelled. The transport delivers
// one update at a time, so turns of a single user are never processed
// concurrently here; only the sweeper races us, through the store.
func (b *Bot) Start(ctx context.Context) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || !msg.Chat.IsPrivate() {
		return
	}
	if msg.IsCommand() {
		b.handleCommand(ctx, msg)
		return
	}
	// Media with an authoring command in the caption attaches that media
	// to the new question.
	if msg.From.ID == b.adminID && strings.HasPrefix(msg.Caption, "/add") {
		b.handleCaptionCommand(ctx, msg)
		return
	}
	b.handleTurn(ctx, msg)
}

func (b *Bot) handleCommand(ctx context.Context, msg *tgbotapi.Message) {
	switch msg.Command() {
	case "start":
		b.cmdStart(ctx, msg)
	case "end":
		b.cmdEnd(ctx, msg)
	case "status":
		b.cmdStatus(ctx, msg)
	case "help":
		b.cmdHelp(msg)
	case "addquestion":
		b.cmdAddQuestion(ctx, msg, false)
	case "addbranch":
		b.cmdAddQuestion(ctx, msg, true)
	case "editquestion":
		b.cmdEditQuestion(ctx, msg)
	case "listquestions":
		b.cmdListQuestions(ctx, msg)
	case "clearall":
		b.cmdClearAll(ctx, msg)
	default:
		b.reply(msg.Chat.ID, "Unknown command — try /help.")
	}
}

func (b *Bot) cmdStart(ctx context.Context, msg *tgbotapi.Message) {
	s, err := b.sessions.Load(ctx, msg.From.ID)
	if err != nil {
		b.storeDown(msg.Chat.ID, err)
		return
	}
	if s != nil {
		b.reply(msg.Chat.ID, "You already have a questionnaire in progress — keep answering, or send /end to stop.")
		return
	}
	categories, err := b.catalog.Categories(ctx)
	if err != nil {
		b.storeDown(msg.Chat.ID, err)
		return
	}
	if len(categories) == 0 {
		b.reply(msg.Chat.ID, "No questionnaires have been set up yet — please check back later.")
		return
	}
	out := tgbotapi.NewMessage(msg.Chat.ID, "🎯 Pick a questionnaire to begin:")
	out.ReplyMarkup = replyKeyboard(categories)
	b.send(out)
}

func (b *Bot) cmdEnd(ctx context.Context, msg *tgbotapi.Message) {
	s, err := b.sessions.Load(ctx, msg.From.ID)
	if err != nil {
		b.storeDown(msg.Chat.ID, err)
		return
	}
	if s == nil {
		b.reply(msg.Chat.ID, "You don't have a questionnaire in progress.")
		return
	}
	done, err := b.finalizer.Finalize(ctx, s, service.ReasonManualEnd)
	if err != nil {
		b.storeDown(msg.Chat.ID, err)
		return
	}
	if !done {
		b.reply(msg.Chat.ID, "You don't have a questionnaire in progress.")
		return
	}
	if err := b.notifier.SendToUser(ctx, msg.From.ID, "🛑 Questionnaire ended. Your answers were passed along — thank you!", nil); err != nil {
		b.log.Warn("end confirmation failed", slog.Any("error", err))
	}
}

func (b *Bot) cmdStatus(ctx context.Context, msg *tgbotapi.Message) {
	s, err := b.sessions.Load(ctx, msg.From.ID)
	if err != nil {
		b.storeDown(msg.Chat.ID, err)
		return
	}
	if s == nil {
		b.reply(msg.Chat.ID, "You don't have a questionnaire in progress — send /start to begin.")
		return
	}
	members, err := b.catalog.Members(ctx, s.Category)
	if err != nil {
		b.storeDown(msg.Chat.ID, err)
		return
	}
	position := 0
	for i, id := range members {
		if id == s.Current {
			position = i + 1
			break
		}
	}
	b.reply(msg.Chat.ID, fmt.Sprintf("📊 %q: question %d of %d, %d answered.",
		s.Category, position, len(members), len(s.Answers)))
}

func (b *Bot) cmdHelp(msg *tgbotapi.Message) {
	text := "🤖 Commands:\n" +
		"/start — pick a questionnaire\n" +
		"/status — see your progress\n" +
		"/end — stop and submit what you have\n\n" +
		"Answer with the buttons or free text; photos, videos and documents work too.\n" +
		"Use “" + service.SkipLabel + "” to skip an optional question and “" + service.BackLabel + "” to revisit the previous one."
	if msg.From.ID == b.adminID {
		text += "\n\n🛠 Admin:\n" +
			"/addquestion category|text|options|flags\n" +
			"/addbranch category|text|label:id,label:id\n" +
			"/editquestion id|category|text|options|flags\n" +
			"/listquestions\n" +
			"/clearall\n\n" +
			"Options are comma-separated labels; “label:id” makes the label jump to that question. The only flag is “skip”. Attach media with the command in the caption to include it with the question."
	}
	b.reply(msg.Chat.ID, text)
}

// handleTurn processes a non-command message: either a category
// selection (no session yet) or an answer/control turn on the live
// session.
func (b *Bot) handleTurn(ctx context.Context, msg *tgbotapi.Message) {
	userID := msg.From.ID
	s, err := b.sessions.Load(ctx, userID)
	if err != nil {
		b.storeDown(msg.Chat.ID, err)
		return
	}
	attachment := attachmentKind(msg)

	if s == nil {
		if attachment != "" || strings.TrimSpace(msg.Text) == "" {
			return
		}
		b.startSession(ctx, msg, strings.TrimSpace(msg.Text))
		return
	}

	captureIdentity(s, msg.From)
	askedID := s.Current
	act := service.Classify(msg.Text, attachment)

	// The admin-channel topic is created lazily on the first answer and
	// cached on the session.
	if _, isSubmit := act.(service.Submit); isSubmit && s.ThreadID == 0 {
		threadID, err := b.notifier.EnsureThread(ctx, userID, threadName(msg.From))
		if err != nil {
			b.log.Warn("forum topic creation failed", slog.Int64("user_id", userID), slog.Any("error", err))
		} else {
			s.ThreadID = threadID
		}
	}

	res, err := b.engine.Advance(ctx, s, act)
	if errors.Is(err, service.ErrSkipNotAllowed) {
		b.reply(msg.Chat.ID, "🚫 This question can't be skipped.")
		return
	}
	if err != nil {
		b.log.Error("advance failed", slog.Int64("user_id", userID), slog.Any("error", err))
		b.reply(msg.Chat.ID, "⚠️ Something went wrong — please try again.")
		return
	}

	if sub, ok := act.(service.Submit); ok {
		b.forwardAnswer(ctx, s, askedID, sub, msg)
	}
	if res.Changed != nil {
		b.notifyChanged(ctx, s, res.Changed)
	}

	switch res.Outcome {
	case service.OutcomeContinue:
		if err := b.sessions.Save(ctx, s); err != nil {
			b.log.Error("save session", slog.Int64("user_id", userID), slog.Any("error", err))
			b.reply(msg.Chat.ID, "⚠️ Something went wrong — please try again.")
			return
		}
		b.sendQuestion(ctx, s, res.Next)
	case service.OutcomeResetToStart:
		if err := b.sessions.Save(ctx, s); err != nil {
			b.log.Error("save session", slog.Int64("user_id", userID), slog.Any("error", err))
			b.reply(msg.Chat.ID, "⚠️ Something went wrong — please try again.")
			return
		}
		b.reply(msg.Chat.ID, "↩ Back to the beginning.")
		b.sendQuestion(ctx, s, res.Next)
	case service.OutcomeCompleted, service.OutcomeEnded:
		reason := service.ReasonCompleted
		confirmation := "🎉 That was the last question — thank you!"
		if res.Outcome == service.OutcomeEnded {
			reason = service.ReasonManualEnd
			confirmation = "🛑 Questionnaire ended — thank you!"
		}
		done, err := b.finalizer.Finalize(ctx, s, reason)
		if err != nil {
			b.log.Error("finalize", slog.Int64("user_id", userID), slog.Any("error", err))
			b.reply(msg.Chat.ID, "⚠️ Something went wrong — please try again.")
			return
		}
		if done {
			if err := b.notifier.SendToUser(ctx, userID, confirmation, nil); err != nil {
				b.log.Warn("completion notice failed", slog.Int64("user_id", userID), slog.Any("error", err))
			}
		}
	}
}

func (b *Bot) startSession(ctx context.Context, msg *tgbotapi.Message, category string) {
	firstQ, err := b.catalog.FirstQuestion(ctx, category)
	if err != nil {
		if errors.Is(err, service.ErrNoSuchCategory) {
			b.reply(msg.Chat.ID, "I don't know that questionnaire — send /start to see the list.")
			return
		}
		b.storeDown(msg.Chat.ID, err)
		return
	}
	s := service.NewSession(msg.From.ID, category, firstQ.ID)
	captureIdentity(s, msg.From)
	if err := b.sessions.Save(ctx, s); err != nil {
		b.storeDown(msg.Chat.ID, err)
		return
	}
	b.log.Info("session started",
		slog.Int64("user_id", msg.From.ID), slog.String("category", category))
	b.reply(msg.Chat.ID, "🎯 Here we go! Answer each question in turn.")
	b.sendQuestion(ctx, s, firstQ)
}

// sendQuestion delivers a question with its choice keyboard. The
// reserved skip/back labels ride along as ordinary buttons; they are
// recognized by exact match on the way back in.
func (b *Bot) sendQuestion(ctx context.Context, s *service.Session, q service.Question) {
	text := fmt.Sprintf("❓ Question %d: %s", q.ID, q.Text)
	if q.Type == service.TypeBranch {
		text += "\n\n🔀 Your choice decides where we go next."
	}
	choices := q.Labels()
	if q.Skippable {
		choices = append(choices, service.SkipLabel)
	}
	choices = append(choices, service.BackLabel)

	if q.MediaKind != "" && q.MediaRef != "" {
		err := b.sendMediaQuestion(q, text, choices, s.UserID)
		if err == nil {
			return
		}
		b.log.Warn("media question delivery failed, sending text",
			slog.Int("question_id", q.ID), slog.Any("error", err))
	}
	if err := b.notifier.SendToUser(ctx, s.UserID, text, choices); err != nil {
		// The session already advanced; the user can retry with any
		// action and will get the new current question.
		b.log.Warn("question delivery failed",
			slog.Int64("user_id", s.UserID), slog.Int("question_id", q.ID), slog.Any("error", err))
	}
}

func (b *Bot) sendMediaQuestion(q service.Question, caption string, choices []string, userID int64) error {
	kb := replyKeyboard(choices)
	switch q.MediaKind {
	case "photo":
		cfg := tgbotapi.NewPhoto(userID, tgbotapi.FileID(q.MediaRef))
		cfg.Caption = caption
		cfg.ReplyMarkup = kb
		_, err := b.api.Send(cfg)
		return err
	case "video":
		cfg := tgbotapi.NewVideo(userID, tgbotapi.FileID(q.MediaRef))
		cfg.Caption = caption
		cfg.ReplyMarkup = kb
		_, err := b.api.Send(cfg)
		return err
	case "document":
		cfg := tgbotapi.NewDocument(userID, tgbotapi.FileID(q.MediaRef))
		cfg.Caption = caption
		cfg.ReplyMarkup = kb
		_, err := b.api.Send(cfg)
		return err
	}
	return fmt.Errorf("unknown media kind %q", q.MediaKind)
}

// forwardAnswer mirrors each submitted answer into the participant's
// admin topic. Delivery failures never block the session.
func (b *Bot) forwardAnswer(ctx context.Context, s *service.Session, askedID int, sub service.Submit, msg *tgbotapi.Message) {
	qText := fmt.Sprintf("question #%d", askedID)
	if q, ok, err := b.catalog.Get(ctx, askedID); err == nil && ok {
		qText = q.Text
	}
	card := fmt.Sprintf("👤 <b>%s</b>\n🆔 <code>%d</code>\n❓ <b>%s</b>\n",
		html.EscapeString(s.DisplayName), s.UserID, html.EscapeString(qText))

	var err error
	if sub.Attachment == "" {
		card += "💬 " + html.EscapeString(sub.Text)
		err = b.notifier.SendToAdminChannel(ctx, s.ThreadID, card)
	} else {
		card += "📎 [" + sub.Attachment + "]"
		err = b.notifier.SendMediaToAdminChannel(ctx, s.ThreadID, sub.Attachment, mediaFileID(msg, sub.Attachment), card)
	}
	if err != nil {
		b.log.Warn("answer forwarding failed", slog.Int64("user_id", s.UserID), slog.Any("error", err))
	}
}

func (b *Bot) notifyChanged(ctx context.Context, s *service.Session, change *service.AnswerChange) {
	qText := fmt.Sprintf("question #%d", change.QuestionID)
	if q, ok, err := b.catalog.Get(ctx, change.QuestionID); err == nil && ok {
		qText = q.Text
	}
	card := fmt.Sprintf("✏️ <b>%s</b> changed an answer\n❓ <b>%s</b>\nwas: %s\nnow: %s",
		html.EscapeString(s.DisplayName), html.EscapeString(qText),
		html.EscapeString(change.Old), html.EscapeString(change.New))
	if err := b.notifier.SendToAdminChannel(ctx, s.ThreadID, card); err != nil {
		b.log.Warn("answer-changed notice failed", slog.Int64("user_id", s.UserID), slog.Any("error", err))
	}
}

func (b *Bot) reply(chatID int64, text string) {
	b.send(tgbotapi.NewMessage(chatID, text))
}

func (b *Bot) send(c tgbotapi.Chattable) {
	if _, err := b.api.Send(c); err != nil {
		b.log.Warn("send failed", slog.Any("error", err))
	}
}

func (b *Bot) storeDown(chatID int64, err error) {
	b.log.Error("store unavailable", slog.Any("error", err))
	b.reply(chatID, "⚠️ Temporarily unavailable — please try again in a moment.")
}

func captureIdentity(s *service.Session, from *tgbotapi.User) {
	s.DisplayName = strings.TrimSpace(from.FirstName + " " + from.LastName)
	s.Handle = from.UserName
}

func threadName(from *tgbotapi.User) string {
	name := from.UserName
	if name == "" {
		name = "user"
	}
	return fmt.Sprintf("%s_%d", name, from.ID)
}

func attachmentKind(msg *tgbotapi.Message) string {
	switch {
	case len(msg.Photo) > 0:
		return "photo"
	case msg.Video != nil:
		return "video"
	case msg.Document != nil:
		return "document"
	}
	return ""
}

func mediaFileID(msg *tgbotapi.Message, kind string) string {
	switch kind {
	case "photo":
		return msg.Photo[len(msg.Photo)-1].FileID
	case "video":
		return msg.Video.FileID
	case "document":
		return msg.Document.FileID
	}
	return ""
}
