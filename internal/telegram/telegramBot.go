package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"
	"unicode/utf16"

	"GuestReportBot/internal/config"
	"GuestReportBot/internal/intake"
	"GuestReportBot/internal/models/domain"
	"GuestReportBot/internal/publisher"
	"GuestReportBot/internal/utils/logger/sl"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// Telegram limits.
const (
	textLimit    = 4096
	captionLimit = 1024
	handlerLimit = 30 * time.Second
)

// Intake is the user facing conversation.
type Intake interface {
	Start(ctx context.Context, user domain.Submitter) error
	Advance(ctx context.Context, user domain.Submitter, ev intake.Event) error
	Cancel(ctx context.Context, user domain.Submitter) error
}

// Moderator applies admin decisions.
type Moderator interface {
	Resolve(ctx context.Context, id string, d domain.Decision, adminID int64) (domain.Report, error)
	Pending(ctx context.Context) ([]domain.Report, error)
}

// AdminNotifier re-sends a report with its moderation controls.
type AdminNotifier interface {
	NotifyAdmins(ctx context.Context, r domain.Report, admins []int64) []publisher.Delivery
}

// Countries is the editable country list.
type Countries interface {
	List() ([]string, error)
	Add(name string) error
	Remove(name string) error
}

// Services are the handlers the bot routes updates to.
type Services struct {
	Intake    Intake
	Moderator Moderator
	Notifier  AdminNotifier
	Countries Countries
}

// Bot is the Telegram front end of the guest report bot. It also serves as the
// outbound transport for intake and publishing.
type Bot struct {
	b       *bot.Bot
	cfg     *config.Config
	channel domain.Chat
	svc     Services
	ready   chan struct{}
	once    sync.Once
	ctx     context.Context
	cancel  context.CancelFunc
	log     *slog.Logger

	// lifecycle: polling loop and handlers still running
	mu       sync.Mutex
	started  bool
	closing  bool
	stopped  chan struct{}
	inflight sync.WaitGroup
}

// New creates the Telegram client. Routing starts once Register is called.
func New(logger *slog.Logger, cfg *config.Config, opts ...bot.Option) (*Bot, error) {
	op := "telegram.New()"
	log := logger.With(slog.String("op", op))

	ctx, cancel := context.WithCancel(context.Background())

	reportBot := &Bot{
		cfg:     cfg,
		channel: domain.ChannelChat(cfg.BotConfig.Channel),
		ready:   make(chan struct{}),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		log:     logger.With(slog.String("component", "telegram")),
	}

	opts = append([]bot.Option{bot.WithDefaultHandler(reportBot.defaultHandler)}, opts...)
	b, err := bot.New(cfg.BotConfig.TgbotApiToken, opts...)
	if err != nil {
		log.Error("error auth telegram bot", sl.Err(err))
		cancel()
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	reportBot.b = b

	log.Info("telegram bot created", slog.String("channel", cfg.BotConfig.Channel))
	return reportBot, nil
}

// Register installs the update handlers. It must be called exactly once,
// before Start.
func (reportBot *Bot) Register(svc Services) {
	reportBot.once.Do(func() {
		reportBot.svc = svc
		close(reportBot.ready)
	})
}

// defaultHandler is the single entry point for all updates from go-telegram/bot.
func (reportBot *Bot) defaultHandler(ctx context.Context, _ *bot.Bot, update *models.Update) {
	op := "telegram.defaultHandler()"
	log := reportBot.log.With(slog.String("op", op))

	if !reportBot.track() {
		return
	}
	defer reportBot.inflight.Done()

	select {
	case <-reportBot.ready:
	case <-ctx.Done():
		return
	}

	// a started update runs to completion even when polling stops
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), handlerLimit)
	defer cancel()

	switch {
	case update.CallbackQuery != nil:
		log.Info("input callback",
			slog.String("user_id", strconv.FormatInt(update.CallbackQuery.From.ID, 10)),
			slog.String("user_name", update.CallbackQuery.From.Username),
			slog.String("data", update.CallbackQuery.Data),
		)
		reportBot.handleCallbackQuery(ctx, update.CallbackQuery)
	case update.Message != nil && update.Message.From != nil:
		msg := update.Message
		log.Debug("input message",
			slog.String("user_id", strconv.FormatInt(msg.From.ID, 10)),
			slog.String("user_name", msg.From.Username),
			slog.Int("photos", len(msg.Photo)),
		)
		if msg.Chat.Type != models.ChatTypePrivate {
			return
		}
		var err error
		if isCommand(msg) {
			err = reportBot.commandHandler(ctx, msg)
		} else {
			err = reportBot.handleMessage(ctx, msg)
		}
		if err != nil {
			log.Error("message handler error", sl.Err(err))
		}
	}
}

// isCommand reports whether msg is a bot command.
func isCommand(msg *models.Message) bool {
	if msg == nil || len(msg.Entities) == 0 {
		return false
	}
	for _, e := range msg.Entities {
		if e.Type == models.MessageEntityTypeBotCommand && e.Offset == 0 {
			return true
		}
	}
	return false
}

// commandText extracts /command from a message (without @botname suffix).
func commandText(msg *models.Message) string {
	if msg == nil || len(msg.Entities) == 0 {
		return ""
	}
	for _, e := range msg.Entities {
		if e.Type != models.MessageEntityTypeBotCommand || e.Offset != 0 {
			continue
		}
		units := utf16.Encode([]rune(msg.Text))
		if e.Length > len(units) {
			return ""
		}
		cmd := string(utf16.Decode(units[:e.Length]))
		if len(cmd) > 0 && cmd[0] == '/' {
			cmd = cmd[1:]
		}
		// strip @botname if present
		for i, c := range cmd {
			if c == '@' {
				cmd = cmd[:i]
				break
			}
		}
		return cmd
	}
	return ""
}

// commandArguments returns the text that follows the first /command entity.
func commandArguments(msg *models.Message) string {
	if msg == nil || len(msg.Entities) == 0 {
		return ""
	}
	for _, e := range msg.Entities {
		if e.Type != models.MessageEntityTypeBotCommand || e.Offset != 0 {
			continue
		}
		units := utf16.Encode([]rune(msg.Text))
		if e.Length >= len(units) {
			return ""
		}
		return string(utf16.Decode(units[e.Length:]))
	}
	return ""
}

// Start begins polling for Telegram updates and blocks until Shutdown.
func (reportBot *Bot) Start() {
	reportBot.mu.Lock()
	if reportBot.closing || reportBot.started {
		reportBot.mu.Unlock()
		return
	}
	reportBot.started = true
	reportBot.mu.Unlock()
	defer close(reportBot.stopped)

	reportBot.log.Info("starting telegram bot polling")
	reportBot.b.Start(reportBot.ctx)
	reportBot.log.Info("telegram bot polling stopped")
}

// Shutdown stops polling and waits until the polling loop and every running
// handler have returned, or ctx is done.
func (reportBot *Bot) Shutdown(ctx context.Context) error {
	op := "telegram.Shutdown"
	reportBot.cancel()

	reportBot.mu.Lock()
	reportBot.closing = true
	started := reportBot.started
	reportBot.mu.Unlock()

	done := make(chan struct{})
	go func() {
		if started {
			<-reportBot.stopped
		}
		reportBot.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("force exit %s: %w", op, ctx.Err())
	}
}

// track registers a running handler. It fails once shutdown has begun.
func (reportBot *Bot) track() bool {
	reportBot.mu.Lock()
	defer reportBot.mu.Unlock()
	if reportBot.closing {
		return false
	}
	reportBot.inflight.Add(1)
	return true
}

// Send delivers msg to chat. Texts over Telegram's limit are split into
// several messages; HTML is split between lines.
func (reportBot *Bot) Send(ctx context.Context, chat domain.Chat, msg domain.Message) error {
	var chunks []string
	if msg.HTML {
		chunks = splitHTML(msg.Text, textLimit)
	} else {
		chunks = splitTextIntoChunks(msg.Text, textLimit)
	}
	for i, chunk := range chunks {
		p := &bot.SendMessageParams{
			ChatID: chat.Value(),
			Text:   chunk,
		}
		if msg.HTML {
			p.ParseMode = models.ParseModeHTML
		}
		// markup goes on the last chunk so the buttons sit under the full text
		if i == len(chunks)-1 {
			if markup := replyMarkup(msg); markup != nil {
				p.ReplyMarkup = markup
			}
		}
		if _, err := reportBot.b.SendMessage(ctx, p); err != nil {
			return fmt.Errorf("telegram.Send: chat %s: %w", chat, err)
		}
	}
	return nil
}

// SendPhotos sends photoIDs as one album with caption on the first photo.
// Captions over Telegram's limit are sent as a follow-up message instead.
func (reportBot *Bot) SendPhotos(ctx context.Context, chat domain.Chat, photoIDs []string, caption string) error {
	if len(photoIDs) == 0 {
		return errors.New("telegram.SendPhotos: no photos")
	}
	inline := caption
	if htmlLen(caption) > captionLimit {
		inline = ""
	}
	if _, err := reportBot.b.SendMediaGroup(ctx, &bot.SendMediaGroupParams{
		ChatID: chat.Value(),
		Media:  mediaGroup(photoIDs, inline),
	}); err != nil {
		return fmt.Errorf("telegram.SendPhotos: chat %s: %w", chat, err)
	}
	if inline == "" && caption != "" {
		return reportBot.Send(ctx, chat, domain.Message{Text: caption, HTML: true})
	}
	return nil
}

// IsSubscribed reports whether userID is a member of the broadcast channel.
func (reportBot *Bot) IsSubscribed(ctx context.Context, userID int64) (bool, error) {
	member, err := reportBot.b.GetChatMember(ctx, &bot.GetChatMemberParams{
		ChatID: reportBot.channel.Value(),
		UserID: userID,
	})
	if err != nil {
		return false, fmt.Errorf("telegram.IsSubscribed: %w", err)
	}
	return isMember(member), nil
}

func isMember(m *models.ChatMember) bool {
	if m == nil {
		return false
	}
	switch m.Type {
	case models.ChatMemberTypeOwner, models.ChatMemberTypeAdministrator, models.ChatMemberTypeMember:
		return true
	default:
		return false
	}
}

func mediaGroup(photoIDs []string, caption string) []models.InputMedia {
	media := make([]models.InputMedia, 0, len(photoIDs))
	for i, id := range photoIDs {
		item := &models.InputMediaPhoto{Media: id}
		if i == 0 && caption != "" {
			item.Caption = caption
			item.ParseMode = models.ParseModeHTML
		}
		media = append(media, item)
	}
	return media
}

// replyMarkup converts the transport neutral keyboards. Inline buttons win
// over the reply menu since Telegram accepts one markup per message.
func replyMarkup(msg domain.Message) models.ReplyMarkup {
	switch {
	case len(msg.Inline) > 0:
		return inlineKeyboard(msg.Inline)
	case len(msg.Menu) > 0:
		row := make([]models.KeyboardButton, 0, len(msg.Menu))
		for _, label := range msg.Menu {
			row = append(row, models.KeyboardButton{Text: label})
		}
		return &models.ReplyKeyboardMarkup{
			Keyboard:       [][]models.KeyboardButton{row},
			ResizeKeyboard: true,
		}
	case msg.RemoveMenu:
		return &models.ReplyKeyboardRemove{RemoveKeyboard: true}
	default:
		return nil
	}
}

// inlineKeyboard builds an InlineKeyboardMarkup from rows of buttons.
func inlineKeyboard(kb domain.Keyboard) *models.InlineKeyboardMarkup {
	rows := make([][]models.InlineKeyboardButton, 0, len(kb))
	for _, r := range kb {
		row := make([]models.InlineKeyboardButton, 0, len(r))
		for _, btn := range r {
			row = append(row, inlineBtn(btn.Text, btn.Data))
		}
		rows = append(rows, row)
	}
	return &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}

// inlineBtn creates an inline keyboard button with callback data.
func inlineBtn(text, data string) models.InlineKeyboardButton {
	return models.InlineKeyboardButton{Text: text, CallbackData: data}
}

// splitTextIntoChunks splits text into chunks of the specified size.
func splitTextIntoChunks(text string, chunkSize int) []string {
	runes := []rune(text)
	if len(runes) <= chunkSize {
		return []string{text}
	}
	var chunks []string
	for i := 0; i < len(runes); i += chunkSize {
		end := min(i+chunkSize, len(runes))
		chunks = append(chunks, string(runes[i:end]))
	}
	return chunks
}
