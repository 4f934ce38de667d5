package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"leavebot/internal/botframework"
	"leavebot/internal/card"
	"leavebot/internal/i18n"
	"leavebot/internal/logging"
	"leavebot/internal/model"
	"leavebot/internal/nlu"
	"leavebot/internal/store"
)

type IntentDetector interface {
	IsLeaveRequest(ctx context.Context, utterance string) bool
}

type SlotExtractor interface {
	Extract(ctx context.Context, utterance string, today time.Time, userName string) model.LeaveSlots
}

type TaskLister interface {
	ListOpenTasks(ctx context.Context, idOrEmail string) (model.TaskList, error)
}

// Directory is the part of the directory service the conversation needs.
type Directory interface {
	TaskLister
	GetUser(ctx context.Context, idOrEmail string) (*model.User, error)
	GetManager(ctx context.Context, idOrEmail string) (*model.User, error)
}

type CardSender interface {
	SendCard(ctx context.Context, key, text string, att botframework.Attachment) (bool, error)
}

type ChannelPoster interface {
	PostText(ctx context.Context, title, text string) error
}

// Turn is one inbound message.
type Turn struct {
	ConversationID string
	UserID         string
	UserName       string
	UserEmail      string
	AADObjectID    string
	Text           string
}

// Reply is what the bot answers in the same conversation.
type Reply struct {
	Text  string
	State model.State
}

type ConversationDeps struct {
	Sessions      store.SessionStore
	Intent        IntentDetector
	Extractor     SlotExtractor
	Directory     Directory
	Cards         CardSender
	Channel       ChannelPoster
	Location      *time.Location
	DefaultLocale string
	// Now and NewID default to time.Now and uuid.NewString.
	Now   func() time.Time
	NewID func() string
}

// ConversationService runs the leave request state machine. Turns of one
// conversation are processed one at a time.
type ConversationService struct {
	ConversationDeps
	locks keyedMutex
}

func NewConversationService(deps ConversationDeps) *ConversationService {
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewID == nil {
		deps.NewID = uuid.NewString
	}
	if deps.DefaultLocale == "" {
		deps.DefaultLocale = "en"
	}
	return &ConversationService{ConversationDeps: deps}
}

// HandleMessage advances the session of turn.ConversationID by one turn.
// Only a session store failure is returned as an error.
func (s *ConversationService) HandleMessage(ctx context.Context, turn Turn) (Reply, error) {
	unlock := s.locks.Lock(turn.ConversationID)
	defer unlock()

	sess, err := s.Sessions.Get(ctx, turn.ConversationID)
	if err != nil {
		return Reply{}, fmt.Errorf("load session: %w", err)
	}

	text := strings.TrimSpace(turn.Text)
	sess.Locale = s.locale(text, sess.Locale)
	ctx = i18n.WithLocale(ctx, sess.Locale)

	log := logging.FromContext(ctx).With().
		Str("component", "conversation").
		Str("conversation_id", turn.ConversationID).
		Logger()
	ctx = logging.WithContext(ctx, log)

	if sess.State == model.StateCompleted {
		// A submission that did not reset; start over.
		sess.Reset()
	}

	var reply string
	if sess.State.Asking() {
		reply = s.answer(ctx, sess, turn, text)
	} else {
		reply = s.start(ctx, sess, turn, text)
	}

	if err := s.Sessions.Save(ctx, sess); err != nil {
		return Reply{}, fmt.Errorf("save session: %w", err)
	}
	return Reply{Text: reply, State: sess.State}, nil
}

func (s *ConversationService) locale(text, current string) string {
	if detected, ok := nlu.DetectLocale(text); ok {
		return detected
	}
	if current != "" {
		return current
	}
	return s.DefaultLocale
}

func (s *ConversationService) today() time.Time {
	return s.Now().In(s.Location)
}

// start handles a turn in START.
func (s *ConversationService) start(ctx context.Context, sess *model.ConversationSession, turn Turn, text string) string {
	if !s.Intent.IsLeaveRequest(ctx, text) {
		return s.listTasks(ctx, turn)
	}
	sess.Slots = s.Extractor.Extract(ctx, text, s.today(), turn.UserName)
	return s.advance(ctx, sess, turn)
}

// answer stores text as the value of the slot the session is asking for.
func (s *ConversationService) answer(ctx context.Context, sess *model.ConversationSession, turn Turn, text string) string {
	slot := model.SlotForState(sess.State)

	if nlu.IsCancel(text) {
		s.transition(ctx, sess, model.StateStart)
		sess.Reset()
		return i18n.T(ctx, "reply.cancelled")
	}
	if text == "" {
		return prompt(ctx, slot)
	}

	var value string
	switch slot {
	case model.SlotStartDate:
		value = resolveOrRaw(text, s.today())
	case model.SlotEndDate:
		value = resolveOrRaw(text, s.today())
		start := sess.Slots.StartDate
		if nlu.IsISODate(value) && nlu.IsISODate(start) && nlu.DaySpan(start, value) == 0 {
			return i18n.T(ctx, "reply.end_before_start", map[string]any{"Start": start, "End": value})
		}
	case model.SlotHours:
		value, _ = nlu.NormalizeHours(text)
		if value == "" {
			value = text
		}
	case model.SlotReason:
		var ok bool
		if value, ok = nlu.CanonicalReason(text); !ok {
			value = text
		}
	}
	sess.Slots.Set(slot, value)
	return s.advance(ctx, sess, turn)
}

// resolveOrRaw keeps the user's words when no date is recognised, so the
// request can still go ahead and the manager sees what was written.
func resolveOrRaw(text string, today time.Time) string {
	if d := nlu.ResolveDate(text, today); d != "" {
		return d
	}
	return text
}

// advance moves to the prompt for the first missing slot, or submits.
func (s *ConversationService) advance(ctx context.Context, sess *model.ConversationSession, turn Turn) string {
	missing := sess.Slots.Missing()
	if len(missing) > 0 {
		s.transition(ctx, sess, model.StateForSlot(missing[0]))
		return prompt(ctx, missing[0])
	}

	s.transition(ctx, sess, model.StateCompleted)
	reply := s.submit(ctx, sess.Slots, turn)
	s.transition(ctx, sess, model.StateStart)
	sess.Reset()
	return reply
}

func (s *ConversationService) transition(ctx context.Context, sess *model.ConversationSession, to model.State) {
	if sess.State == to {
		return
	}
	logging.FromContext(ctx).Debug().
		Str("from", string(sess.State)).
		Str("to", string(to)).
		Msg("state transition")
	sess.State = to
}

func prompt(ctx context.Context, slot string) string {
	return i18n.T(ctx, "prompt."+slot)
}

// submit sends the approval card to the requester's manager, or to the team
// channel when the manager cannot be reached.
func (s *ConversationService) submit(ctx context.Context, slots model.LeaveSlots, turn Turn) string {
	log := logging.FromContext(ctx)

	requester := s.requester(ctx, turn)
	req := model.NewPendingApproval(s.NewID(), requester.DisplayName, requester.Email, slots)
	key := firstNonEmpty(requester.Email, turn.AADObjectID, turn.UserID)

	taskBlock := ""
	if tasks, err := s.Directory.ListOpenTasks(ctx, key); err != nil {
		log.Warn().Err(err).Msg("list open tasks for approval card")
	} else {
		taskBlock = card.FormatTaskBlock(tasks)
	}

	approval := card.RenderApproval(req, taskBlock)
	data := map[string]any{
		"Start":  slots.StartDate,
		"End":    slots.EndDate,
		"Hours":  slots.Hours,
		"Reason": slots.Reason,
	}

	if manager, ok := s.sendToManager(ctx, log, key, req, approval); ok {
		log.Info().Str("request_id", req.RequestID).Str("manager", manager.Email).Msg("approval card sent")
		data["Manager"] = manager.DisplayName
		return i18n.T(ctx, "reply.submitted_manager", data)
	}

	if err := s.Channel.PostText(ctx, "Leave request", card.Summary(req, taskBlock)); err != nil {
		log.Error().Err(err).Str("request_id", req.RequestID).Msg("post leave request to channel")
		return i18n.T(ctx, "reply.submit_failed")
	}
	log.Info().Str("request_id", req.RequestID).Msg("leave request posted to channel")
	return i18n.T(ctx, "reply.submitted_channel", data)
}

func (s *ConversationService) sendToManager(ctx context.Context, log *zerolog.Logger, key string, req model.PendingApproval, approval card.Card) (*model.User, bool) {
	manager, err := s.Directory.GetManager(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("request_id", req.RequestID).Msg("get manager")
		return nil, false
	}
	for _, mk := range []string{manager.Email, manager.ID} {
		if mk == "" {
			continue
		}
		sent, err := s.Cards.SendCard(ctx, mk, "", approval.Attachment())
		if err != nil {
			log.Error().Err(err).Str("request_id", req.RequestID).Msg("send approval card")
			return nil, false
		}
		if sent {
			return manager, true
		}
	}
	log.Warn().Str("request_id", req.RequestID).Str("manager", manager.Email).Msg("no conversation with manager")
	return nil, false
}

// requester fills in the name and email of the sender, asking the directory
// when the channel did not include the email.
func (s *ConversationService) requester(ctx context.Context, turn Turn) model.User {
	u := model.User{ID: turn.AADObjectID, DisplayName: turn.UserName, Email: turn.UserEmail}
	if u.Email != "" || turn.AADObjectID == "" {
		return u
	}
	found, err := s.Directory.GetUser(ctx, turn.AADObjectID)
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("look up requester")
		return u
	}
	u.Email = found.Email
	if u.DisplayName == "" {
		u.DisplayName = found.DisplayName
	}
	return u
}

// listTasks is the reply to anything that is not a leave request.
func (s *ConversationService) listTasks(ctx context.Context, turn Turn) string {
	key := firstNonEmpty(turn.UserEmail, turn.AADObjectID, turn.UserID)
	tasks, err := s.Directory.ListOpenTasks(ctx, key)
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("list open tasks")
		return i18n.T(ctx, "reply.tasks_unavailable")
	}
	if tasks.Len() == 0 {
		return i18n.T(ctx, "reply.no_tasks")
	}
	return i18n.T(ctx, "reply.tasks_header") + "\n\n" + card.FormatTaskBlock(tasks)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// keyedMutex serialises work per key.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*refMutex)
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
