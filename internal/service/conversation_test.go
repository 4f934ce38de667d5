package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leavebot/internal/card"
	"leavebot/internal/i18n"
	"leavebot/internal/llm"
	"leavebot/internal/model"
	"leavebot/internal/nlu"
	"leavebot/internal/store"
)

// Monday.
var today = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)

var bob = &model.User{ID: "aad-bob", DisplayName: "Bob", Email: "bob@x.mn"}

type conversationFixture struct {
	svc      *ConversationService
	sessions *store.MemorySessionStore
	dir      *fakeDirectory
	cards    *fakeCardSender
	channel  *fakeChannel
}

func newConversationFixture(c llm.Completer) *conversationFixture {
	f := &conversationFixture{
		sessions: store.NewMemorySessionStore(),
		dir:      &fakeDirectory{manager: bob},
		cards:    &fakeCardSender{},
		channel:  &fakeChannel{},
	}
	f.svc = NewConversationService(ConversationDeps{
		Sessions:      f.sessions,
		Intent:        nlu.NewIntentClassifier(c),
		Extractor:     nlu.NewExtractor(c),
		Directory:     f.dir,
		Cards:         f.cards,
		Channel:       f.channel,
		Location:      time.UTC,
		DefaultLocale: "en",
		Now:           func() time.Time { return today },
		NewID:         func() string { return "req-1" },
	})
	return f
}

func aliceTurn(text string) Turn {
	return Turn{
		ConversationID: "conv-alice",
		UserID:         "29:alice",
		UserName:       "Alice",
		UserEmail:      "alice@x.mn",
		Text:           text,
	}
}

func (f *conversationFixture) session(t *testing.T) *model.ConversationSession {
	t.Helper()
	sess, err := f.sessions.Get(context.Background(), "conv-alice")
	require.NoError(t, err)
	return sess
}

func cardPayload(t *testing.T, sc sentCard) model.PendingApproval {
	t.Helper()
	raw, err := json.Marshal(sc.att.Content)
	require.NoError(t, err)
	var c struct {
		Actions []struct {
			Data card.ActionData `json:"data"`
		} `json:"actions"`
	}
	require.NoError(t, json.Unmarshal(raw, &c))
	require.Len(t, c.Actions, 2)
	return c.Actions[0].Data.PendingApproval
}

func TestOneShotRequest(t *testing.T) {
	f := newConversationFixture(failingCompleter{})
	f.dir.tasks = model.TaskList{Assigned: []model.Task{{Title: "Q1 report", Priority: "urgent", Source: model.TaskSourceAssigned}}}

	reply, err := f.svc.HandleMessage(context.Background(), aliceTurn("I need leave tomorrow full day, sick"))
	require.NoError(t, err)

	assert.Equal(t, model.StateStart, reply.State)
	assert.Contains(t, reply.Text, "Bob")

	require.Len(t, f.cards.sent, 1)
	assert.Equal(t, "bob@x.mn", f.cards.sent[0].key)
	assert.Equal(t, card.ContentType, f.cards.sent[0].att.ContentType)
	assert.Equal(t, model.PendingApproval{
		RequestID: "req-1",
		UserName:  "Alice",
		UserEmail: "alice@x.mn",
		StartDate: "2024-01-16",
		EndDate:   "2024-01-16",
		Hours:     "Full day (8h)",
		Reason:    "Health issue",
	}, cardPayload(t, f.cards.sent[0]))

	raw, err := json.Marshal(f.cards.sent[0].att.Content)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "• Q1 report (urgent, 0%)")

	sess := f.session(t)
	assert.Equal(t, model.StateStart, sess.State)
	assert.True(t, sess.Slots.Empty())
	assert.Empty(t, f.channel.posts)
}

func TestSlotFillingCyrillic(t *testing.T) {
	f := newConversationFixture(failingCompleter{})
	ctx := context.Background()
	mn := i18n.WithLocale(ctx, "mn")

	steps := []struct {
		text   string
		state  model.State
		prompt string
		check  func(t *testing.T, s model.LeaveSlots)
	}{
		{"чөлөө авмаар байна", model.StateAskingStartDate, "prompt.start_date", nil},
		{"маргааш", model.StateAskingEndDate, "prompt.end_date", func(t *testing.T, s model.LeaveSlots) {
			assert.Equal(t, "2024-01-16", s.StartDate)
		}},
		{"маргааш", model.StateAskingHours, "prompt.hours", func(t *testing.T, s model.LeaveSlots) {
			assert.Equal(t, "2024-01-16", s.EndDate)
		}},
		{"2 цаг", model.StateAskingReason, "prompt.reason", func(t *testing.T, s model.LeaveSlots) {
			assert.Equal(t, "2 hour(s)", s.Hours)
			_, hours := nlu.NormalizeHours(s.Hours)
			assert.InDelta(t, 2.0, hours, 0.0001)
		}},
	}
	for _, step := range steps {
		reply, err := f.svc.HandleMessage(ctx, aliceTurn(step.text))
		require.NoError(t, err)
		assert.Equal(t, step.state, reply.State, step.text)
		assert.Equal(t, i18n.T(mn, step.prompt), reply.Text, step.text)

		sess := f.session(t)
		assert.Equal(t, step.state, sess.State)
		assert.Equal(t, "mn", sess.Locale)
		if step.check != nil {
			step.check(t, sess.Slots)
		}
	}
	assert.Empty(t, f.cards.sent)

	reply, err := f.svc.HandleMessage(ctx, aliceTurn("эмнэлэгт явах"))
	require.NoError(t, err)
	assert.Equal(t, model.StateStart, reply.State)
	assert.Contains(t, reply.Text, "Bob")

	require.Len(t, f.cards.sent, 1)
	req := cardPayload(t, f.cards.sent[0])
	assert.Equal(t, "Health issue", req.Reason)
	assert.Equal(t, "2 hour(s)", req.Hours)
	assert.Equal(t, "2024-01-16", req.StartDate)

	assert.True(t, f.session(t).Slots.Empty())
}

func TestNextWeekdayRequest(t *testing.T) {
	f := newConversationFixture(failingCompleter{})

	reply, err := f.svc.HandleMessage(context.Background(), aliceTurn("daraa 7 honogiin 1dehed buten udur huviin asuudal"))
	require.NoError(t, err)
	assert.Equal(t, model.StateStart, reply.State)

	require.Len(t, f.cards.sent, 1)
	req := cardPayload(t, f.cards.sent[0])
	assert.Equal(t, "2024-01-22", req.StartDate)
	assert.Equal(t, "2024-01-22", req.EndDate)
	assert.Equal(t, "Full day (8h)", req.Hours)
	assert.Equal(t, "Personal matter", req.Reason)
}

func TestNonLeaveTurnListsTasks(t *testing.T) {
	f := newConversationFixture(failingCompleter{})
	f.dir.tasks = model.TaskList{
		Assigned: []model.Task{{Title: "Q1 report", DueDate: "2024-01-25", Priority: "important", PercentComplete: 40, Source: model.TaskSourceAssigned}},
		Todo:     []model.Task{{Title: "Book flights", Priority: "high", Source: model.TaskSourceTodo}},
	}

	reply, err := f.svc.HandleMessage(context.Background(), aliceTurn("show me my tasks"))
	require.NoError(t, err)

	assert.Equal(t, model.StateStart, reply.State)
	assert.Contains(t, reply.Text, "• Q1 report (due 2024-01-25, important, 40%)")
	assert.Contains(t, reply.Text, "• Book flights (high)")
	assert.Equal(t, []string{"alice@x.mn"}, f.dir.taskKeys)

	sess := f.session(t)
	assert.Equal(t, model.StateStart, sess.State)
	assert.True(t, sess.Slots.Empty())
	assert.Empty(t, f.cards.sent)
}

func TestEnglishTurnOverridesMongolianDefault(t *testing.T) {
	f := newConversationFixture(failingCompleter{})
	f.svc.DefaultLocale = "mn"
	en := i18n.WithLocale(context.Background(), "en")

	reply, err := f.svc.HandleMessage(context.Background(), aliceTurn("I need leave"))
	require.NoError(t, err)
	assert.Equal(t, model.StateAskingStartDate, reply.State)
	assert.Equal(t, i18n.T(en, "prompt.start_date"), reply.Text)
	assert.Equal(t, "en", f.session(t).Locale)

	// A bare date carries no language signal; the session keeps English.
	reply, err = f.svc.HandleMessage(context.Background(), aliceTurn("2024-01-20"))
	require.NoError(t, err)
	assert.Equal(t, i18n.T(en, "prompt.end_date"), reply.Text)
}

func TestNonLeaveTurnWithoutTasks(t *testing.T) {
	f := newConversationFixture(failingCompleter{})

	reply, err := f.svc.HandleMessage(context.Background(), aliceTurn("hello"))
	require.NoError(t, err)
	assert.Equal(t, i18n.T(context.Background(), "reply.no_tasks"), reply.Text)

	f.dir.tasksErr = errors.New("graph down")
	reply, err = f.svc.HandleMessage(context.Background(), aliceTurn("hello"))
	require.NoError(t, err)
	assert.Equal(t, i18n.T(context.Background(), "reply.tasks_unavailable"), reply.Text)
}

func TestCancelResetsSession(t *testing.T) {
	f := newConversationFixture(failingCompleter{})
	ctx := context.Background()

	_, err := f.svc.HandleMessage(ctx, aliceTurn("I want to take leave tomorrow"))
	require.NoError(t, err)
	assert.Equal(t, model.StateAskingHours, f.session(t).State)

	reply, err := f.svc.HandleMessage(ctx, aliceTurn("cancel"))
	require.NoError(t, err)
	assert.Equal(t, model.StateStart, reply.State)
	assert.Equal(t, i18n.T(ctx, "reply.cancelled"), reply.Text)
	assert.True(t, f.session(t).Slots.Empty())
	assert.Empty(t, f.cards.sent)
}

func TestEndBeforeStartIsAskedAgain(t *testing.T) {
	f := newConversationFixture(failingCompleter{})
	ctx := context.Background()

	_, err := f.svc.HandleMessage(ctx, aliceTurn("I need leave"))
	require.NoError(t, err)
	_, err = f.svc.HandleMessage(ctx, aliceTurn("2024-01-20"))
	require.NoError(t, err)

	reply, err := f.svc.HandleMessage(ctx, aliceTurn("2024-01-18"))
	require.NoError(t, err)
	assert.Equal(t, model.StateAskingEndDate, reply.State)
	assert.Contains(t, reply.Text, "2024-01-18")

	sess := f.session(t)
	assert.Equal(t, model.StateAskingEndDate, sess.State)
	assert.Empty(t, sess.Slots.EndDate)

	reply, err = f.svc.HandleMessage(ctx, aliceTurn("2024-01-22"))
	require.NoError(t, err)
	assert.Equal(t, model.StateAskingHours, reply.State)
}

func TestUnresolvedAnswersAreKeptRaw(t *testing.T) {
	f := newConversationFixture(failingCompleter{})
	ctx := context.Background()

	for _, text := range []string{"I need leave", "after the audit", "when the audit ends", "a while", "moving house"} {
		_, err := f.svc.HandleMessage(ctx, aliceTurn(text))
		require.NoError(t, err)
	}

	require.Len(t, f.cards.sent, 1)
	req := cardPayload(t, f.cards.sent[0])
	assert.Equal(t, "after the audit", req.StartDate)
	assert.Equal(t, "when the audit ends", req.EndDate)
	assert.Equal(t, "a while", req.Hours)
	assert.Equal(t, "moving house", req.Reason)
}

func TestEmptyAnswerRepeatsPrompt(t *testing.T) {
	f := newConversationFixture(failingCompleter{})
	ctx := context.Background()

	_, err := f.svc.HandleMessage(ctx, aliceTurn("I need leave"))
	require.NoError(t, err)
	reply, err := f.svc.HandleMessage(ctx, aliceTurn("   "))
	require.NoError(t, err)
	assert.Equal(t, model.StateAskingStartDate, reply.State)
	assert.Equal(t, i18n.T(ctx, "prompt.start_date"), reply.Text)
}

func TestManagerUnreachableFallsBackToChannel(t *testing.T) {
	f := newConversationFixture(failingCompleter{})
	f.cards.sendCardFn = func(string) (bool, error) { return false, nil }

	reply, err := f.svc.HandleMessage(context.Background(), aliceTurn("I need leave tomorrow full day, sick"))
	require.NoError(t, err)

	assert.Equal(t, model.StateStart, reply.State)
	assert.Contains(t, reply.Text, "team channel")
	require.Len(t, f.channel.posts, 1)
	assert.Contains(t, f.channel.posts[0], "Employee: Alice")
	assert.Contains(t, f.channel.posts[0], "Start date: 2024-01-16")
}

func TestNoManagerFallsBackToChannel(t *testing.T) {
	f := newConversationFixture(failingCompleter{})
	f.dir.manager = nil

	_, err := f.svc.HandleMessage(context.Background(), aliceTurn("I need leave tomorrow full day, sick"))
	require.NoError(t, err)
	assert.Len(t, f.channel.posts, 1)
}

func TestSubmissionFailureStillResets(t *testing.T) {
	f := newConversationFixture(failingCompleter{})
	f.cards.sendCardFn = func(string) (bool, error) { return false, errors.New("connector down") }
	f.channel.postErr = errors.New("webhook down")

	reply, err := f.svc.HandleMessage(context.Background(), aliceTurn("I need leave tomorrow full day, sick"))
	require.NoError(t, err)
	assert.Equal(t, i18n.T(context.Background(), "reply.submit_failed"), reply.Text)

	sess := f.session(t)
	assert.Equal(t, model.StateStart, sess.State)
	assert.True(t, sess.Slots.Empty())
}

func TestManagerReachedByObjectID(t *testing.T) {
	f := newConversationFixture(failingCompleter{})
	f.cards.sendCardFn = func(key string) (bool, error) { return key == "aad-bob", nil }

	_, err := f.svc.HandleMessage(context.Background(), aliceTurn("I need leave tomorrow full day, sick"))
	require.NoError(t, err)
	require.Len(t, f.cards.sent, 1)
	assert.Equal(t, "aad-bob", f.cards.sent[0].key)
}

func TestRequesterEmailFromDirectory(t *testing.T) {
	f := newConversationFixture(failingCompleter{})
	f.dir.users = map[string]*model.User{"aad-alice": {ID: "aad-alice", DisplayName: "Alice A.", Email: "alice@x.mn"}}

	turn := aliceTurn("I need leave tomorrow full day, sick")
	turn.UserEmail = ""
	turn.AADObjectID = "aad-alice"

	_, err := f.svc.HandleMessage(context.Background(), turn)
	require.NoError(t, err)
	require.Len(t, f.cards.sent, 1)
	req := cardPayload(t, f.cards.sent[0])
	assert.Equal(t, "alice@x.mn", req.UserEmail)
	assert.Equal(t, "Alice", req.UserName)
	assert.Equal(t, []string{"alice@x.mn"}, f.dir.managerKeys)
}

type scriptedCompleter struct {
	intent  string
	extract string
}

func (s scriptedCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	if req.JSON {
		return s.extract, nil
	}
	return s.intent, nil
}

func TestModelDrivenRequest(t *testing.T) {
	f := newConversationFixture(scriptedCompleter{
		intent:  "YES",
		extract: `{"start_date":"2024-01-17","end_date":"2024-01-19","hours":"","reason":"family"}`,
	})
	ctx := context.Background()

	reply, err := f.svc.HandleMessage(ctx, aliceTurn("can I be away wed to fri for my sister's wedding"))
	require.NoError(t, err)
	assert.Equal(t, model.StateAskingHours, reply.State)

	sess := f.session(t)
	assert.Equal(t, "2024-01-17", sess.Slots.StartDate)
	assert.Equal(t, "2024-01-19", sess.Slots.EndDate)
	assert.Equal(t, "Family matter", sess.Slots.Reason)

	reply, err = f.svc.HandleMessage(ctx, aliceTurn("half day"))
	require.NoError(t, err)
	assert.Equal(t, model.StateStart, reply.State)
	require.Len(t, f.cards.sent, 1)
	assert.Equal(t, "Half day (4h)", cardPayload(t, f.cards.sent[0]).Hours)
}

func TestConcurrentTurnsAreSerialised(t *testing.T) {
	f := newConversationFixture(failingCompleter{})
	ctx := context.Background()

	_, err := f.svc.HandleMessage(ctx, aliceTurn("I need leave"))
	require.NoError(t, err)

	// Four answers fill four slots whatever order they are processed in.
	var wg sync.WaitGroup
	for _, text := range []string{"2024-01-20", "2024-01-20", "full day", "personal"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = f.svc.HandleMessage(ctx, aliceTurn(text))
		}()
	}
	wg.Wait()

	sess := f.session(t)
	assert.Equal(t, model.StateStart, sess.State)
	assert.True(t, sess.Slots.Empty())
	assert.Len(t, f.cards.sent, 1)
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	var k keyedMutex
	unlock := k.Lock("a")
	assert.Len(t, k.locks, 1)
	unlock()
	assert.Empty(t, k.locks)
}
