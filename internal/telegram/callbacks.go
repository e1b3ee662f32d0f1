package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"GuestReportBot/internal/countries"
	"GuestReportBot/internal/intake"
	"GuestReportBot/internal/models/domain"
	"GuestReportBot/internal/moderation"
	"GuestReportBot/internal/publisher"
	"GuestReportBot/internal/utils/logger/sl"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

const (
	ackApproved  = "✅ Опубликовано"
	ackRejected  = "❌ Отклонено"
	ackResolved  = "Заявка уже обработана."
	ackPublishKO = "Не удалось опубликовать, попробуйте ещё раз."
)

// handleCallbackQuery dispatches inline keyboard callbacks. Every callback is
// acknowledged so the client stops its loading indicator.
func (reportBot *Bot) handleCallbackQuery(ctx context.Context, callback *models.CallbackQuery) {
	op := "telegram.handleCallbackQuery"
	log := reportBot.log.With(slog.String("op", op), slog.Int64("user_id", callback.From.ID))

	data := callback.Data
	user := submitterOf(&callback.From)

	if decision, id, ok := parseModeration(data); ok {
		reportBot.handleModeration(ctx, callback, decision, id)
		return
	}

	reportBot.answer(ctx, callback.ID, "")

	var ev intake.Event
	switch {
	case data == intake.BeginData:
		ev = intake.Event{Kind: intake.EventBegin}
	case strings.HasPrefix(data, countries.CallbackPrefix):
		ev = intake.Event{Kind: intake.EventCountry, Value: strings.TrimPrefix(data, countries.CallbackPrefix)}
	default:
		log.Debug("unknown callback data", slog.String("data", data))
		return
	}
	if err := reportBot.svc.Intake.Advance(ctx, user, ev); err != nil {
		log.Error("intake callback failed", sl.Err(err))
	}
}

// handleModeration applies an approve or reject press. Presses from
// non-admins are acknowledged and otherwise ignored.
func (reportBot *Bot) handleModeration(
	ctx context.Context,
	callback *models.CallbackQuery,
	decision domain.Decision,
	id string,
) {
	op := "telegram.handleModeration"
	log := reportBot.log.With(
		slog.String("op", op),
		slog.Int64("admin_id", callback.From.ID),
		slog.String("report_id", id),
	)

	if !reportBot.isAdmin(callback.From.ID) {
		reportBot.answer(ctx, callback.ID, "")
		return
	}

	_, err := reportBot.svc.Moderator.Resolve(ctx, id, decision, callback.From.ID)
	switch {
	case err == nil:
		log.Info("report resolved", slog.String("decision", string(decision)))
		ack := ackApproved
		if decision == domain.DecisionReject {
			ack = ackRejected
		}
		reportBot.answer(ctx, callback.ID, ack)
		reportBot.dropControls(ctx, callback.Message)
	case errors.Is(err, moderation.ErrNotFound):
		reportBot.answer(ctx, callback.ID, ackResolved)
		reportBot.dropControls(ctx, callback.Message)
	default:
		log.Error("failed to resolve report", sl.Err(err))
		reportBot.answer(ctx, callback.ID, ackPublishKO)
	}
}

// parseModeration decodes mod:approve:<id> and mod:reject:<id>.
func parseModeration(data string) (domain.Decision, string, bool) {
	var (
		d  domain.Decision
		id string
	)
	switch {
	case strings.HasPrefix(data, publisher.ApprovePrefix):
		d, id = domain.DecisionApprove, strings.TrimPrefix(data, publisher.ApprovePrefix)
	case strings.HasPrefix(data, publisher.RejectPrefix):
		d, id = domain.DecisionReject, strings.TrimPrefix(data, publisher.RejectPrefix)
	default:
		return "", "", false
	}
	if id == "" {
		return "", "", false
	}
	return d, id, true
}

func (reportBot *Bot) answer(ctx context.Context, callbackID, text string) {
	if _, err := reportBot.b.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	}); err != nil {
		reportBot.log.Warn("failed to ack callback", sl.Err(err))
	}
}

// dropControls removes the inline keyboard from a moderation message so it
// cannot be pressed again.
func (reportBot *Bot) dropControls(ctx context.Context, msg models.MaybeInaccessibleMessage) {
	chatID, msgID, ok := messageRef(msg)
	if !ok {
		return
	}
	if _, err := reportBot.b.EditMessageReplyMarkup(ctx, &bot.EditMessageReplyMarkupParams{
		ChatID:      chatID,
		MessageID:   msgID,
		ReplyMarkup: &models.InlineKeyboardMarkup{InlineKeyboard: [][]models.InlineKeyboardButton{}},
	}); err != nil {
		reportBot.log.Debug("failed to drop moderation controls", sl.Err(err))
	}
}

func messageRef(msg models.MaybeInaccessibleMessage) (int64, int, bool) {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0, 0, false
		}
		return msg.Message.Chat.ID, msg.Message.ID, true
	default:
		return 0, 0, false
	}
}
