package publisher

import (
	"context"
	"fmt"
	"html"
	"log/slog"

	"GuestReportBot/internal/models/domain"
	"GuestReportBot/internal/report"
	"GuestReportBot/internal/utils/logger/sl"
)

// Callback data prefixes of the moderation controls.
const (
	ApprovePrefix = "mod:approve:"
	RejectPrefix  = "mod:reject:"
)

// Sender delivers messages to a chat.
type Sender interface {
	Send(ctx context.Context, chat domain.Chat, msg domain.Message) error
	// SendPhotos sends photoIDs as one media group; caption goes on the first item.
	SendPhotos(ctx context.Context, chat domain.Chat, photoIDs []string, caption string) error
}

// Delivery is the outcome of notifying a single recipient.
type Delivery struct {
	Chat domain.Chat
	Err  error
}

// Outcome is what the submitter is told about their report.
type Outcome int

const (
	OutcomeApproved Outcome = iota
	OutcomeRejected
)

// Publisher renders reports into channel posts and moderation messages.
type Publisher struct {
	sender  Sender
	channel domain.Chat
	log     *slog.Logger
}

func New(logger *slog.Logger, sender Sender, channel domain.Chat) *Publisher {
	return &Publisher{
		sender:  sender,
		channel: channel,
		log:     logger.With(slog.String("component", "publisher")),
	}
}

// Broadcast posts an approved report to the channel.
func (p *Publisher) Broadcast(ctx context.Context, r domain.Report) error {
	op := "publisher.Broadcast"
	text := report.RenderText(r)

	var err error
	if len(r.PhotoIDs) > 0 {
		err = p.sender.SendPhotos(ctx, p.channel, r.PhotoIDs, text)
	} else {
		err = p.sender.Send(ctx, p.channel, domain.Message{Text: text, HTML: true})
	}
	if err != nil {
		return fmt.Errorf("%s: report %s: %w", op, r.ID, err)
	}
	return nil
}

// NotifyAdmins sends the report and its moderation controls to every admin.
// A failed recipient never stops the rest; per-recipient results are returned.
func (p *Publisher) NotifyAdmins(ctx context.Context, r domain.Report, admins []int64) []Delivery {
	op := "publisher.NotifyAdmins"
	log := p.log.With(slog.String("op", op), slog.String("report_id", r.ID))

	text := report.RenderText(r)
	header := ModerationHeader(r)
	controls := ModerationKeyboard(r.ID)

	results := make([]Delivery, 0, len(admins))
	for _, adminID := range admins {
		chat := domain.UserChat(adminID)
		err := p.notifyAdmin(ctx, chat, r, header, text, controls)
		if err != nil {
			log.Warn("admin notification failed",
				slog.Int64("admin_id", adminID), sl.Err(err))
		}
		results = append(results, Delivery{Chat: chat, Err: err})
	}
	return results
}

func (p *Publisher) notifyAdmin(
	ctx context.Context,
	chat domain.Chat,
	r domain.Report,
	header, text string,
	controls domain.Keyboard,
) error {
	if len(r.PhotoIDs) == 0 {
		return p.sender.Send(ctx, chat, domain.Message{
			Text:   header + "\n\n" + text,
			HTML:   true,
			Inline: controls,
		})
	}
	if err := p.sender.SendPhotos(ctx, chat, r.PhotoIDs, text); err != nil {
		return err
	}
	return p.sender.Send(ctx, chat, domain.Message{
		Text:   header,
		HTML:   true,
		Inline: controls,
	})
}

// NotifyUser tells the submitter about the decision. Failures are logged only:
// the user may have blocked the bot.
func (p *Publisher) NotifyUser(ctx context.Context, userID int64, outcome Outcome) {
	op := "publisher.NotifyUser"
	text := "Ваша заявка отклонена модератором."
	if outcome == OutcomeApproved {
		text = "Ваша заявка одобрена и опубликована в канале. Спасибо!"
	}
	if err := p.sender.Send(ctx, domain.UserChat(userID), domain.Message{Text: text}); err != nil {
		p.log.Warn("user notification failed",
			slog.String("op", op), slog.Int64("user_id", userID), sl.Err(err))
	}
}

// ModerationHeader is the short summary shown above the moderation controls.
func ModerationHeader(r domain.Report) string {
	return fmt.Sprintf("🆕 <b>Заявка на модерацию</b> <code>%s</code>\nОт: %s",
		html.EscapeString(r.ID), html.EscapeString(r.Submitter.Label()))
}

// ModerationKeyboard holds the approve and reject controls for reportID.
func ModerationKeyboard(reportID string) domain.Keyboard {
	return domain.Keyboard{{
		{Text: "✅ Опубликовать", Data: ApprovePrefix + reportID},
		{Text: "❌ Отклонить", Data: RejectPrefix + reportID},
	}}
}
