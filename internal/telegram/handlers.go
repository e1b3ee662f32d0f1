package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"GuestReportBot/internal/countries"
	"GuestReportBot/internal/intake"
	"GuestReportBot/internal/models/domain"

	"github.com/go-telegram/bot/models"
)

const (
	msgCountryList    = "Текущий список стран:\n"
	msgCountryExists  = "Такая страна уже есть."
	msgCountryMissing = "Такой страны нет в списке."
	msgCountryTooLong = "Слишком длинное название страны."
	msgCountryBadName = "Это название нельзя использовать."
	msgQueueEmpty     = "Заявок на модерации нет."
	usageAddCountry   = "Использование: /add_country НазваниеСтраны"
	usageDelCountry   = "Использование: /del_country НазваниеСтраны"
)

// ─── Command dispatcher ────────────────────────────────────────────────────

// commandHandler dispatches bot commands. Admin commands from anyone else are
// dropped without a reply.
func (reportBot *Bot) commandHandler(ctx context.Context, msg *models.Message) error {
	user := submitterOf(msg.From)
	cmd := commandText(msg)
	args := strings.TrimSpace(commandArguments(msg))

	switch cmd {
	case "start":
		return reportBot.svc.Intake.Start(ctx, user)
	case "cancel":
		return reportBot.svc.Intake.Cancel(ctx, user)
	case "list_countries", "add_country", "del_country", "pending":
		if !reportBot.isAdmin(user.ID) {
			reportBot.log.Debug("admin command from non-admin dropped",
				slog.String("command", cmd), slog.Int64("user_id", user.ID))
			return nil
		}
	default:
		return nil
	}

	chat := domain.UserChat(user.ID)
	switch cmd {
	case "list_countries":
		return reportBot.handleListCountries(ctx, chat)
	case "add_country":
		return reportBot.handleAddCountry(ctx, chat, args)
	case "del_country":
		return reportBot.handleDelCountry(ctx, chat, args)
	default:
		return reportBot.handlePending(ctx, user.ID)
	}
}

// ─── Conversation input ───────────────────────────────────────────────────

// handleMessage feeds plain messages into the intake conversation.
func (reportBot *Bot) handleMessage(ctx context.Context, msg *models.Message) error {
	ev, ok := eventFromMessage(msg)
	if !ok {
		return nil
	}
	return reportBot.svc.Intake.Advance(ctx, submitterOf(msg.From), ev)
}

// eventFromMessage maps a message to an intake event. Photos use the largest
// size Telegram offers.
func eventFromMessage(msg *models.Message) (intake.Event, bool) {
	switch {
	case len(msg.Photo) > 0:
		return intake.Event{Kind: intake.EventPhoto, Value: msg.Photo[len(msg.Photo)-1].FileID}, true
	case msg.Text != "":
		return intake.Event{Kind: intake.EventText, Value: msg.Text}, true
	default:
		return intake.Event{}, false
	}
}

// submitterOf identifies the sender for moderators.
func submitterOf(u *models.User) domain.Submitter {
	if u == nil {
		return domain.Submitter{}
	}
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if u.Username != "" {
		name = "@" + u.Username
	}
	return domain.Submitter{ID: u.ID, DisplayName: name}
}

// ─── /list_countries ──────────────────────────────────────────────────────

func (reportBot *Bot) handleListCountries(ctx context.Context, chat domain.Chat) error {
	list, err := reportBot.svc.Countries.List()
	if err != nil {
		return fmt.Errorf("list countries: %w", err)
	}
	return reportBot.Send(ctx, chat, domain.Message{Text: msgCountryList + strings.Join(list, "\n")})
}

// ─── /add_country ─────────────────────────────────────────────────────────

func (reportBot *Bot) handleAddCountry(ctx context.Context, chat domain.Chat, name string) error {
	if name == "" {
		return reportBot.Send(ctx, chat, domain.Message{Text: usageAddCountry})
	}

	var text string
	switch err := reportBot.svc.Countries.Add(name); {
	case err == nil:
		text = fmt.Sprintf("Страна «%s» добавлена.", name)
	case errors.Is(err, countries.ErrExists):
		text = msgCountryExists
	case errors.Is(err, countries.ErrNameTooLong):
		text = msgCountryTooLong
	case errors.Is(err, countries.ErrReserved):
		text = msgCountryBadName
	default:
		return fmt.Errorf("add country: %w", err)
	}
	return reportBot.Send(ctx, chat, domain.Message{Text: text})
}

// ─── /del_country ─────────────────────────────────────────────────────────

func (reportBot *Bot) handleDelCountry(ctx context.Context, chat domain.Chat, name string) error {
	if name == "" {
		return reportBot.Send(ctx, chat, domain.Message{Text: usageDelCountry})
	}

	var text string
	switch err := reportBot.svc.Countries.Remove(name); {
	case err == nil:
		text = fmt.Sprintf("Страна «%s» удалена.", name)
	case errors.Is(err, countries.ErrNotFound):
		text = msgCountryMissing
	default:
		return fmt.Errorf("delete country: %w", err)
	}
	return reportBot.Send(ctx, chat, domain.Message{Text: text})
}

// ─── /pending ─────────────────────────────────────────────────────────────

// handlePending re-sends every queued report with its controls to adminID.
func (reportBot *Bot) handlePending(ctx context.Context, adminID int64) error {
	chat := domain.UserChat(adminID)
	pending, err := reportBot.svc.Moderator.Pending(ctx)
	if err != nil {
		return fmt.Errorf("pending reports: %w", err)
	}
	if len(pending) == 0 {
		return reportBot.Send(ctx, chat, domain.Message{Text: msgQueueEmpty})
	}

	if err := reportBot.Send(ctx, chat, domain.Message{
		Text: fmt.Sprintf("Заявок на модерации: %d", len(pending)),
	}); err != nil {
		return err
	}
	for _, r := range pending {
		for _, d := range reportBot.svc.Notifier.NotifyAdmins(ctx, r, []int64{adminID}) {
			if d.Err != nil {
				return fmt.Errorf("resend report %s: %w", r.ID, d.Err)
			}
		}
	}
	return nil
}
