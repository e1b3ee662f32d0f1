package intake

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"GuestReportBot/internal/models/domain"
	"GuestReportBot/internal/moderation"
	"GuestReportBot/internal/publisher"
	"GuestReportBot/internal/sessions"
)

const (
	userID  int64 = 1001
	adminID int64 = 7
	channel       = "@blacklistguests"
)

type sent struct {
	chat    domain.Chat
	msg     domain.Message
	photos  []string
	caption string
}

// fakeTransport records everything the bot would deliver.
type fakeTransport struct {
	mu  sync.Mutex
	out []sent
}

func (f *fakeTransport) Send(_ context.Context, chat domain.Chat, msg domain.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{chat: chat, msg: msg})
	return nil
}

func (f *fakeTransport) SendPhotos(_ context.Context, chat domain.Chat, photoIDs []string, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = append(f.out, sent{chat: chat, photos: append([]string(nil), photoIDs...), caption: caption})
	return nil
}

func (f *fakeTransport) to(chat domain.Chat) []sent {
	f.mu.Lock()
	defer f.mu.Unlock()
	var res []sent
	for _, s := range f.out {
		if s.chat == chat {
			res = append(res, s)
		}
	}
	return res
}

func (f *fakeTransport) last(chat domain.Chat) sent {
	all := f.to(chat)
	if len(all) == 0 {
		return sent{}
	}
	return all[len(all)-1]
}

func (f *fakeTransport) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.out = nil
}

type stubSubs struct {
	ok  bool
	err error
}

func (s stubSubs) IsSubscribed(context.Context, int64) (bool, error) {
	return s.ok, s.err
}

type stubCountries []string

func (s stubCountries) List() ([]string, error) {
	return s, nil
}

type harness struct {
	ctrl  *Controller
	store *sessions.Memory
	tr    *fakeTransport
	mod   *moderation.Service
	queue *moderation.MemoryQueue
	user  domain.Submitter
}

func newHarness(t *testing.T, subs stubSubs) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	tr := &fakeTransport{}
	store := sessions.NewMemory(time.Hour)
	queue := moderation.NewMemoryQueue(0)
	pub := publisher.New(logger, tr, domain.ChannelChat(channel))
	mod := moderation.New(logger, queue, pub, []int64{adminID})

	seq := 0
	ctrl := New(logger, store, tr, subs, stubCountries{"Россия", "Казахстан"}, mod, Options{
		Channel:   channel,
		MaxPhotos: 10,
		Now:       func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
		NewID: func() string {
			seq++
			return "r" + strconv.Itoa(seq)
		},
	})
	return &harness{
		ctrl:  ctrl,
		store: store,
		tr:    tr,
		mod:   mod,
		queue: queue,
		user:  domain.Submitter{ID: userID, DisplayName: "host"},
	}
}

func (h *harness) advance(t *testing.T, kind EventKind, value string) {
	t.Helper()
	if err := h.ctrl.Advance(context.Background(), h.user, Event{Kind: kind, Value: value}); err != nil {
		t.Fatalf("Advance(%s, %q): %v", kind, value, err)
	}
}

func (h *harness) step(t *testing.T) domain.Step {
	t.Helper()
	sess, err := h.store.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("session lookup: %v", err)
	}
	return sess.Step
}

// fillToPhotos walks a fresh user up to the photo step.
func (h *harness) fillToPhotos(t *testing.T) {
	t.Helper()
	if err := h.ctrl.Start(context.Background(), h.user); err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.advance(t, EventBegin, "")
	h.advance(t, EventCountry, "Россия")
	h.advance(t, EventText, "Сочи")
	h.advance(t, EventText, "Иванов Иван")
	h.advance(t, EventText, "79781234567")
	h.advance(t, EventText, "Сломал кровать")
	if got := h.step(t); got != domain.StepPhotos {
		t.Fatalf("step = %q, want %q", got, domain.StepPhotos)
	}
}

func TestSkipPhotosThenApprove(t *testing.T) {
	h := newHarness(t, stubSubs{ok: true})
	h.fillToPhotos(t)

	h.advance(t, EventText, SkipLabel)

	if _, err := h.store.Get(context.Background(), userID); !errors.Is(err, sessions.ErrNotFound) {
		t.Fatalf("session should be cleared after submit, got %v", err)
	}
	pending, err := h.mod.Pending(context.Background())
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "r1" {
		t.Fatalf("pending = %+v, want one report r1", pending)
	}
	r := pending[0]
	if r.Country != "Россия" || r.City != "Сочи" || r.GuestName != "Иванов Иван" ||
		r.Phone != "79781234567" || r.Description != "Сломал кровать" || len(r.PhotoIDs) != 0 {
		t.Fatalf("unexpected report %+v", r)
	}

	adminMsgs := h.tr.to(domain.UserChat(adminID))
	if len(adminMsgs) != 1 || len(adminMsgs[0].msg.Inline) == 0 {
		t.Fatalf("admin should get one message with controls, got %+v", adminMsgs)
	}

	if _, err := h.mod.Resolve(context.Background(), "r1", domain.DecisionApprove, adminID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	posts := h.tr.to(domain.ChannelChat(channel))
	if len(posts) != 1 {
		t.Fatalf("channel posts = %d, want 1", len(posts))
	}
	if posts[0].photos != nil {
		t.Fatal("report without photos must not be posted as a media group")
	}
	if !posts[0].msg.HTML || !strings.Contains(posts[0].msg.Text, "79781234567") {
		t.Fatalf("unexpected channel post %+v", posts[0].msg)
	}
}

func TestConfirmWithPhotos(t *testing.T) {
	h := newHarness(t, stubSubs{ok: true})
	h.fillToPhotos(t)

	h.advance(t, EventPhoto, "p1")
	h.advance(t, EventPhoto, "p2")
	h.advance(t, EventText, ConfirmLabel)

	if _, err := h.mod.Resolve(context.Background(), "r1", domain.DecisionApprove, adminID); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	posts := h.tr.to(domain.ChannelChat(channel))
	if len(posts) != 1 {
		t.Fatalf("channel posts = %d, want 1", len(posts))
	}
	if got := posts[0].photos; len(got) != 2 || got[0] != "p1" || got[1] != "p2" {
		t.Fatalf("photos = %v, want [p1 p2]", got)
	}
	if !strings.Contains(posts[0].caption, "Иванов Иван") {
		t.Fatalf("caption %q does not carry the report text", posts[0].caption)
	}
}

func TestSkipDropsCollectedPhotos(t *testing.T) {
	h := newHarness(t, stubSubs{ok: true})
	h.fillToPhotos(t)

	h.advance(t, EventPhoto, "p1")
	h.advance(t, EventText, SkipLabel)

	pending, _ := h.mod.Pending(context.Background())
	if len(pending) != 1 || len(pending[0].PhotoIDs) != 0 {
		t.Fatalf("skip must drop photos, got %+v", pending)
	}
}

func TestInvalidPhoneKeepsStep(t *testing.T) {
	h := newHarness(t, stubSubs{ok: true})
	h.advance(t, EventBegin, "")
	h.advance(t, EventCountry, "Россия")
	h.advance(t, EventText, "Сочи")
	h.advance(t, EventText, "Иванов Иван")

	for _, bad := range []string{"+79781234567", "89781234567", "7978123456", "7978abc4567"} {
		h.advance(t, EventText, bad)
		if got := h.step(t); got != domain.StepPhone {
			t.Fatalf("after %q step = %q, want %q", bad, got, domain.StepPhone)
		}
		if msg := h.tr.last(domain.UserChat(userID)).msg.Text; msg != msgBadPhone {
			t.Fatalf("after %q reply = %q", bad, msg)
		}
	}

	h.advance(t, EventText, "79781234567")
	if got := h.step(t); got != domain.StepDescription {
		t.Fatalf("step = %q, want %q", got, domain.StepDescription)
	}
}

func TestPhotoLimit(t *testing.T) {
	h := newHarness(t, stubSubs{ok: true})
	h.fillToPhotos(t)

	for i := 0; i < 10; i++ {
		h.advance(t, EventPhoto, "p"+strconv.Itoa(i))
	}
	h.tr.reset()
	h.advance(t, EventPhoto, "extra")

	sess, err := h.store.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.PhotoIDs) != 10 {
		t.Fatalf("photos = %d, want 10", len(sess.PhotoIDs))
	}
	if sess.Step != domain.StepPhotos {
		t.Fatalf("step = %q, want %q", sess.Step, domain.StepPhotos)
	}
	if got := h.tr.last(domain.UserChat(userID)).msg.Text; got != photoLimitText(10) {
		t.Fatalf("reply = %q, want limit notice", got)
	}
}

func TestUnsubscribedUserIsDenied(t *testing.T) {
	for name, subs := range map[string]stubSubs{
		"not subscribed": {ok: false},
		"check failed":   {err: errors.New("chat not found")},
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, subs)
			h.advance(t, EventBegin, "")

			if _, err := h.store.Get(context.Background(), userID); !errors.Is(err, sessions.ErrNotFound) {
				t.Fatalf("no session expected, got %v", err)
			}
			if got := h.tr.last(domain.UserChat(userID)).msg.Text; got != deniedText(channel) {
				t.Fatalf("reply = %q", got)
			}
		})
	}
}

func TestCountryPromptListsRegistry(t *testing.T) {
	h := newHarness(t, stubSubs{ok: true})
	h.advance(t, EventBegin, "")

	msg := h.tr.last(domain.UserChat(userID)).msg
	if msg.Text != msgAskCountry {
		t.Fatalf("reply = %q, want country prompt", msg.Text)
	}
	if len(msg.Inline) != 3 || msg.Inline[0][0].Text != "Россия" || msg.Inline[2][0].Text != msgOtherButton {
		t.Fatalf("unexpected keyboard %+v", msg.Inline)
	}
}

func TestCustomCountry(t *testing.T) {
	h := newHarness(t, stubSubs{ok: true})
	h.advance(t, EventBegin, "")

	h.advance(t, EventText, "Грузия")
	if got := h.step(t); got != domain.StepCountry {
		t.Fatalf("free text before choosing 'other' must be ignored, step = %q", got)
	}

	h.advance(t, EventCountry, OtherCountry)
	h.advance(t, EventText, "  Грузия ")
	sess, err := h.store.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.Step != domain.StepCity || sess.Country != "Грузия" {
		t.Fatalf("session = %+v", sess)
	}
}

func TestUnexpectedEventsAreIgnored(t *testing.T) {
	h := newHarness(t, stubSubs{ok: true})

	h.advance(t, EventText, "hello")
	if n := len(h.tr.to(domain.UserChat(userID))); n != 0 {
		t.Fatalf("event without session produced %d replies", n)
	}

	h.advance(t, EventBegin, "")
	h.advance(t, EventCountry, "Россия")
	h.tr.reset()

	h.advance(t, EventPhoto, "p1")
	h.advance(t, EventCountry, "Казахстан")
	if n := len(h.tr.to(domain.UserChat(userID))); n != 0 {
		t.Fatalf("unexpected events produced %d replies", n)
	}
	if got := h.step(t); got != domain.StepCity {
		t.Fatalf("step = %q, want %q", got, domain.StepCity)
	}
}

func TestEmptyAnswerReprompts(t *testing.T) {
	h := newHarness(t, stubSubs{ok: true})
	h.advance(t, EventBegin, "")
	h.advance(t, EventCountry, "Россия")

	h.advance(t, EventText, "   ")
	if got := h.step(t); got != domain.StepCity {
		t.Fatalf("step = %q, want %q", got, domain.StepCity)
	}
	if got := h.tr.last(domain.UserChat(userID)).msg.Text; got != msgEmptyAnswer {
		t.Fatalf("reply = %q", got)
	}
}

func TestOverlongAnswersReprompt(t *testing.T) {
	h := newHarness(t, stubSubs{ok: true})
	h.advance(t, EventBegin, "")
	h.advance(t, EventCountry, "Россия")

	h.advance(t, EventText, strings.Repeat("г", maxFieldLen+1))
	if got := h.step(t); got != domain.StepCity {
		t.Fatalf("step = %q, want %q", got, domain.StepCity)
	}
	if got := h.tr.last(domain.UserChat(userID)).msg.Text; got != tooLongText(maxFieldLen) {
		t.Fatalf("reply = %q", got)
	}

	h.advance(t, EventText, "Сочи")
	h.advance(t, EventText, "Иванов Иван")
	h.advance(t, EventText, "79781234567")

	h.advance(t, EventText, strings.Repeat("о", 4000))
	if got := h.step(t); got != domain.StepDescription {
		t.Fatalf("step = %q, want %q", got, domain.StepDescription)
	}
	if got := h.tr.last(domain.UserChat(userID)).msg.Text; got != tooLongText(maxDescriptionLen) {
		t.Fatalf("reply = %q", got)
	}

	h.advance(t, EventText, strings.Repeat("о", maxDescriptionLen))
	if got := h.step(t); got != domain.StepPhotos {
		t.Fatalf("step = %q, want %q", got, domain.StepPhotos)
	}
}

func TestQueueFullKeepsSession(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := newHarness(t, stubSubs{ok: true})
	pub := publisher.New(logger, h.tr, domain.ChannelChat(channel))
	full := moderation.NewMemoryQueue(1)
	h.ctrl.moderation = moderation.New(logger, full, pub, []int64{adminID})
	if err := full.Enqueue(context.Background(), domain.Report{ID: "busy"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	h.fillToPhotos(t)
	h.advance(t, EventText, SkipLabel)

	if got := h.step(t); got != domain.StepPhotos {
		t.Fatalf("session must survive a rejected submit, step = %q", got)
	}
	if got := h.tr.last(domain.UserChat(userID)).msg.Text; got != msgQueueFull {
		t.Fatalf("reply = %q", got)
	}
}

func TestCancel(t *testing.T) {
	h := newHarness(t, stubSubs{ok: true})
	h.advance(t, EventBegin, "")

	if err := h.ctrl.Cancel(context.Background(), h.user); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if _, err := h.store.Get(context.Background(), userID); !errors.Is(err, sessions.ErrNotFound) {
		t.Fatalf("session should be gone, got %v", err)
	}
}

func TestConcurrentEventsKeepPhotos(t *testing.T) {
	h := newHarness(t, stubSubs{ok: true})
	h.fillToPhotos(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = h.ctrl.Advance(context.Background(), h.user, Event{Kind: EventPhoto, Value: "p" + strconv.Itoa(i)})
		}(i)
	}
	wg.Wait()

	sess, err := h.store.Get(context.Background(), userID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.PhotoIDs) != 8 {
		t.Fatalf("photos = %d, want 8", len(sess.PhotoIDs))
	}
	if n := h.ctrl.locks.size(); n != 0 {
		t.Fatalf("lock table should be empty, has %d entries", n)
	}
}

func TestCountryKeyboardSkipsReservedName(t *testing.T) {
	kb := CountryKeyboard([]string{"Россия", OtherCountry})
	if len(kb) != 2 {
		t.Fatalf("rows = %d, want 2", len(kb))
	}
	if kb[0][0].Text != "Россия" || kb[1][0].Text != msgOtherButton {
		t.Fatalf("keyboard = %+v", kb)
	}
}
