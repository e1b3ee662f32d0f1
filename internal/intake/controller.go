package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"GuestReportBot/internal/models/domain"
	"GuestReportBot/internal/moderation"
	"GuestReportBot/internal/report"
	"GuestReportBot/internal/sessions"
	"GuestReportBot/internal/utils/logger/sl"
)

// Answer limits in characters. A rendered report stays under one Telegram
// message with the longest answers.
const (
	maxFieldLen       = 200
	maxDescriptionLen = 3000
)

// EventKind is the shape of an inbound user event.
type EventKind int

const (
	EventBegin   EventKind = iota + 1 // "add guest" button
	EventCountry                      // country button; Value holds the name
	EventText                         // plain text; Value holds the text
	EventPhoto                        // photo attachment; Value holds the file ID
	EventConfirm                      // finish with photos
	EventSkip                         // finish without photos
)

func (k EventKind) String() string {
	switch k {
	case EventBegin:
		return "begin"
	case EventCountry:
		return "country"
	case EventText:
		return "text"
	case EventPhoto:
		return "photo"
	case EventConfirm:
		return "confirm"
	case EventSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// Event is one inbound user action.
type Event struct {
	Kind  EventKind
	Value string
}

// Messenger delivers replies to users.
type Messenger interface {
	Send(ctx context.Context, chat domain.Chat, msg domain.Message) error
}

// SubscriptionChecker reports whether a user follows the broadcast channel.
type SubscriptionChecker interface {
	IsSubscribed(ctx context.Context, userID int64) (bool, error)
}

// CountryLister supplies the countries offered at the country step.
type CountryLister interface {
	List() ([]string, error)
}

// ReportSubmitter hands finished reports over to moderation.
type ReportSubmitter interface {
	Submit(ctx context.Context, r domain.Report) error
}

type handler func(ctx context.Context, user domain.Submitter, sess *domain.Session, ev Event) error

// Controller drives users through the intake conversation.
type Controller struct {
	sessions   sessions.Store
	out        Messenger
	subs       SubscriptionChecker
	countries  CountryLister
	moderation ReportSubmitter
	channel    string
	maxPhotos  int
	now        func() time.Time
	newID      func() string
	locks      *userLocks
	table      map[domain.Step]map[EventKind]handler
	log        *slog.Logger
}

// Options configures a Controller.
type Options struct {
	Channel   string
	MaxPhotos int
	Now       func() time.Time
	NewID     func() string
}

func New(
	logger *slog.Logger,
	store sessions.Store,
	out Messenger,
	subs SubscriptionChecker,
	countryList CountryLister,
	submitter ReportSubmitter,
	opts Options,
) *Controller {
	if opts.MaxPhotos <= 0 {
		opts.MaxPhotos = 10
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = moderation.NewID
	}

	c := &Controller{
		sessions:   store,
		out:        out,
		subs:       subs,
		countries:  countryList,
		moderation: submitter,
		channel:    opts.Channel,
		maxPhotos:  opts.MaxPhotos,
		now:        opts.Now,
		newID:      opts.NewID,
		locks:      newUserLocks(),
		log:        logger.With(slog.String("component", "intake")),
	}

	c.table = map[domain.Step]map[EventKind]handler{
		domain.StepStart: {},
		domain.StepCountry: {
			EventCountry: c.onCountry,
			EventText:    c.onCustomCountry,
		},
		domain.StepCity:        {EventText: c.onCity},
		domain.StepGuestName:   {EventText: c.onGuestName},
		domain.StepPhone:       {EventText: c.onPhone},
		domain.StepDescription: {EventText: c.onDescription},
		domain.StepPhotos: {
			EventPhoto:   c.onPhoto,
			EventConfirm: c.onConfirm,
			EventSkip:    c.onSkip,
		},
	}
	return c
}

// Start resets the user's session and shows the welcome prompt.
func (c *Controller) Start(ctx context.Context, user domain.Submitter) error {
	op := "intake.Start"
	unlock := c.locks.lock(user.ID)
	defer unlock()

	if err := c.sessions.Save(ctx, &domain.Session{UserID: user.ID, Step: domain.StepStart}); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return c.reply(ctx, user.ID, welcomeMessage(c.channel))
}

// Cancel abandons the user's session.
func (c *Controller) Cancel(ctx context.Context, user domain.Submitter) error {
	op := "intake.Cancel"
	unlock := c.locks.lock(user.ID)
	defer unlock()

	if err := c.sessions.Delete(ctx, user.ID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return c.reply(ctx, user.ID,
		domain.Message{Text: msgCancelled, RemoveMenu: true},
		welcomeMessage(c.channel),
	)
}

// Advance feeds one event into the user's conversation. Events that do not
// fit the current step, and events from users without a session, are ignored.
func (c *Controller) Advance(ctx context.Context, user domain.Submitter, ev Event) error {
	op := "intake.Advance"
	log := c.log.With(
		slog.String("op", op),
		slog.Int64("user_id", user.ID),
		slog.String("event", ev.Kind.String()),
	)

	unlock := c.locks.lock(user.ID)
	defer unlock()

	if ev.Kind == EventBegin {
		return c.begin(ctx, user)
	}

	sess, err := c.sessions.Get(ctx, user.ID)
	if errors.Is(err, sessions.ErrNotFound) {
		log.Debug("no active session, event ignored")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	ev = classify(sess.Step, ev)
	h, ok := c.table[sess.Step][ev.Kind]
	if !ok {
		log.Debug("unexpected event for step, ignored", slog.String("step", string(sess.Step)))
		return nil
	}
	if err := h(ctx, user, sess, ev); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// classify turns the photo-step menu labels into confirm and skip signals.
func classify(step domain.Step, ev Event) Event {
	if step != domain.StepPhotos || ev.Kind != EventText {
		return ev
	}
	switch strings.TrimSpace(ev.Value) {
	case ConfirmLabel:
		return Event{Kind: EventConfirm}
	case SkipLabel:
		return Event{Kind: EventSkip}
	}
	return ev
}

func (c *Controller) begin(ctx context.Context, user domain.Submitter) error {
	log := c.log.With(slog.String("op", "intake.begin"), slog.Int64("user_id", user.ID))

	subscribed, err := c.subs.IsSubscribed(ctx, user.ID)
	if err != nil {
		log.Warn("subscription check failed, treating as not subscribed", sl.Err(err))
		subscribed = false
	}
	if !subscribed {
		return c.reply(ctx, user.ID, domain.Message{Text: deniedText(c.channel)})
	}

	sess := &domain.Session{UserID: user.ID, Step: domain.StepCountry}
	if err := c.sessions.Save(ctx, sess); err != nil {
		return err
	}

	names, err := c.countries.List()
	if err != nil {
		log.Error("failed to load countries", sl.Err(err))
	}
	return c.reply(ctx, user.ID,
		domain.Message{Text: msgSubscribed},
		domain.Message{Text: msgAskCountry, Inline: CountryKeyboard(names)},
	)
}

func (c *Controller) onCountry(ctx context.Context, user domain.Submitter, sess *domain.Session, ev Event) error {
	if ev.Value == OtherCountry {
		sess.CustomCountry = true
		if err := c.sessions.Save(ctx, sess); err != nil {
			return err
		}
		return c.reply(ctx, user.ID, domain.Message{Text: msgAskCustomCountry})
	}
	return c.storeCountry(ctx, user, sess, ev.Value)
}

func (c *Controller) onCustomCountry(ctx context.Context, user domain.Submitter, sess *domain.Session, ev Event) error {
	if !sess.CustomCountry {
		return nil
	}
	return c.storeCountry(ctx, user, sess, ev.Value)
}

func (c *Controller) storeCountry(ctx context.Context, user domain.Submitter, sess *domain.Session, value string) error {
	country := strings.TrimSpace(value)
	if msg, ok := checkAnswer(country, maxFieldLen); !ok {
		return c.reply(ctx, user.ID, msg)
	}
	sess.Country = country
	sess.CustomCountry = false
	sess.Step = domain.StepCity
	if err := c.sessions.Save(ctx, sess); err != nil {
		return err
	}
	return c.reply(ctx, user.ID,
		domain.Message{Text: msgCountrySaved},
		domain.Message{Text: msgAskCity},
	)
}

func (c *Controller) onCity(ctx context.Context, user domain.Submitter, sess *domain.Session, ev Event) error {
	return c.storeText(ctx, user, sess, ev, &sess.City, domain.StepGuestName, msgCitySaved, msgAskGuestName)
}

func (c *Controller) onGuestName(ctx context.Context, user domain.Submitter, sess *domain.Session, ev Event) error {
	return c.storeText(ctx, user, sess, ev, &sess.GuestName, domain.StepPhone, msgGuestNameSaved, msgAskPhone)
}

func (c *Controller) onPhone(ctx context.Context, user domain.Submitter, sess *domain.Session, ev Event) error {
	phone := strings.TrimSpace(ev.Value)
	if !report.ValidPhone(phone) {
		return c.reply(ctx, user.ID, domain.Message{Text: msgBadPhone})
	}
	sess.Phone = phone
	sess.Step = domain.StepDescription
	if err := c.sessions.Save(ctx, sess); err != nil {
		return err
	}
	return c.reply(ctx, user.ID,
		domain.Message{Text: msgPhoneSaved},
		domain.Message{Text: msgAskDescription},
	)
}

func (c *Controller) onDescription(ctx context.Context, user domain.Submitter, sess *domain.Session, ev Event) error {
	text := strings.TrimSpace(ev.Value)
	if msg, ok := checkAnswer(text, maxDescriptionLen); !ok {
		return c.reply(ctx, user.ID, msg)
	}
	sess.Description = text
	sess.PhotoIDs = nil
	sess.Step = domain.StepPhotos
	if err := c.sessions.Save(ctx, sess); err != nil {
		return err
	}
	return c.reply(ctx, user.ID, domain.Message{Text: msgAskPhotos, HTML: true, Menu: photosMenu()})
}

func (c *Controller) storeText(
	ctx context.Context,
	user domain.Submitter,
	sess *domain.Session,
	ev Event,
	field *string,
	next domain.Step,
	ack, prompt string,
) error {
	text := strings.TrimSpace(ev.Value)
	if msg, ok := checkAnswer(text, maxFieldLen); !ok {
		return c.reply(ctx, user.ID, msg)
	}
	*field = text
	sess.Step = next
	if err := c.sessions.Save(ctx, sess); err != nil {
		return err
	}
	return c.reply(ctx, user.ID,
		domain.Message{Text: ack},
		domain.Message{Text: prompt},
	)
}

// checkAnswer rejects empty answers and answers over limit characters.
// The returned message re-prompts the user.
func checkAnswer(text string, limit int) (domain.Message, bool) {
	switch {
	case text == "":
		return domain.Message{Text: msgEmptyAnswer}, false
	case utf8.RuneCountInString(text) > limit:
		return domain.Message{Text: tooLongText(limit)}, false
	}
	return domain.Message{}, true
}

func (c *Controller) onPhoto(ctx context.Context, user domain.Submitter, sess *domain.Session, ev Event) error {
	if len(sess.PhotoIDs) >= c.maxPhotos {
		return c.reply(ctx, user.ID, domain.Message{Text: photoLimitText(c.maxPhotos), Menu: photosMenu()})
	}
	sess.PhotoIDs = append(sess.PhotoIDs, ev.Value)
	if err := c.sessions.Save(ctx, sess); err != nil {
		return err
	}
	return c.reply(ctx, user.ID, domain.Message{
		Text: photoAddedText(len(sess.PhotoIDs), c.maxPhotos),
		Menu: photosMenu(),
	})
}

func (c *Controller) onConfirm(ctx context.Context, user domain.Submitter, sess *domain.Session, _ Event) error {
	return c.finalize(ctx, user, sess, true)
}

func (c *Controller) onSkip(ctx context.Context, user domain.Submitter, sess *domain.Session, _ Event) error {
	return c.finalize(ctx, user, sess, false)
}

func (c *Controller) finalize(ctx context.Context, user domain.Submitter, sess *domain.Session, withPhotos bool) error {
	log := c.log.With(slog.String("op", "intake.finalize"), slog.Int64("user_id", user.ID))

	r, err := report.Finalize(sess, user, withPhotos, c.newID(), c.now())
	if err != nil {
		log.Error("session cannot be finalized, dropping it", sl.Err(err))
		if delErr := c.sessions.Delete(ctx, user.ID); delErr != nil {
			log.Error("failed to drop session", sl.Err(delErr))
		}
		return c.reply(ctx, user.ID,
			domain.Message{Text: msgSubmitFailed, RemoveMenu: true},
			welcomeMessage(c.channel),
		)
	}

	if err := c.moderation.Submit(ctx, r); err != nil {
		log.Error("failed to submit report", sl.Err(err))
		text := msgSubmitFailed
		if errors.Is(err, moderation.ErrQueueFull) {
			text = msgQueueFull
		}
		return c.reply(ctx, user.ID, domain.Message{Text: text, Menu: photosMenu()})
	}

	if err := c.sessions.Delete(ctx, user.ID); err != nil {
		log.Error("failed to clear session", sl.Err(err))
	}
	return c.reply(ctx, user.ID,
		domain.Message{Text: msgSubmitted, RemoveMenu: true},
		welcomeMessage(c.channel),
	)
}

// reply sends msgs in order and stops at the first failure.
func (c *Controller) reply(ctx context.Context, userID int64, msgs ...domain.Message) error {
	chat := domain.UserChat(userID)
	for _, m := range msgs {
		if err := c.out.Send(ctx, chat, m); err != nil {
			return fmt.Errorf("reply to %d: %w", userID, err)
		}
	}
	return nil
}
