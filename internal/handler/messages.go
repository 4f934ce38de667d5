package handler

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"leavebot/internal/botframework"
	"leavebot/internal/card"
	"leavebot/internal/i18n"
	"leavebot/internal/logging"
	"leavebot/internal/service"
)

const maxActivityBytes = 1 << 20

const errorContentType = "application/vnd.microsoft.error"

type Conversation interface {
	HandleMessage(ctx context.Context, turn service.Turn) (service.Reply, error)
}

type Approvals interface {
	Decide(ctx context.Context, d service.Decision) (service.DecisionResult, error)
}

type ReferenceRecorder interface {
	Remember(ctx context.Context, ref botframework.ConversationReference)
}

type Replier interface {
	Send(ctx context.Context, ref botframework.ConversationReference, activity *botframework.Activity) (*botframework.ResourceResponse, error)
}

// MessagesHandler is the connector endpoint. Messages drive the conversation;
// card button presses drive the approval workflow.
type MessagesHandler struct {
	conv      Conversation
	approvals Approvals
	refs      ReferenceRecorder
	replier   Replier
	limiter   *SenderLimiter
}

func NewMessagesHandler(conv Conversation, approvals Approvals, refs ReferenceRecorder, replier Replier, limiter *SenderLimiter) *MessagesHandler {
	return &MessagesHandler{conv: conv, approvals: approvals, refs: refs, replier: replier, limiter: limiter}
}

func (h *MessagesHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/messages", h.HandleActivity)
}

// HandleActivity decodes one connector activity and routes it by type.
func (h *MessagesHandler) HandleActivity(w http.ResponseWriter, r *http.Request) {
	if mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err != nil || mt != "application/json" {
		writeError(w, r, http.StatusUnsupportedMediaType, "content type must be application/json")
		return
	}

	var a botframework.Activity
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxActivityBytes)).Decode(&a); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid activity: "+err.Error())
		return
	}
	if err := a.Validate(); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if h.limiter != nil && a.From.ID != "" && !h.limiter.Allow(a.From.ID) {
		writeError(w, r, http.StatusTooManyRequests, "too many requests")
		return
	}

	log := logging.FromContext(r.Context()).With().
		Str("activity_type", a.Type).
		Str("conversation_id", a.Conversation.ID).
		Str("from", a.From.ID).
		Logger()
	ctx := logging.WithContext(r.Context(), log)

	ref := botframework.GetConversationReference(&a)
	h.refs.Remember(ctx, ref)

	switch {
	case a.Type == botframework.ActivityInvoke && a.Name == botframework.InvokeAdaptiveCardAction:
		h.handleCardInvoke(ctx, w, r, &a, ref)
	case a.Type == botframework.ActivityInvoke:
		writeJSON(w, r, http.StatusNotImplemented, invokeError(http.StatusNotImplemented, "unsupported invoke "+a.Name))
	case a.Type == botframework.ActivityMessage && a.Text == "" && len(a.Value) > 0:
		h.handleCardSubmit(ctx, &a, ref)
		w.WriteHeader(http.StatusOK)
	case a.Type == botframework.ActivityMessage:
		h.handleMessage(ctx, &a, ref)
		w.WriteHeader(http.StatusOK)
	default:
		w.WriteHeader(http.StatusOK)
	}
}

func (h *MessagesHandler) handleMessage(ctx context.Context, a *botframework.Activity, ref botframework.ConversationReference) {
	log := logging.FromContext(ctx)

	reply, err := h.conv.HandleMessage(ctx, service.Turn{
		ConversationID: a.Conversation.ID,
		UserID:         a.From.ID,
		UserName:       a.From.Name,
		UserEmail:      a.From.Email,
		AADObjectID:    a.From.AADObjectID,
		Text:           a.Text,
	})
	text := reply.Text
	if err != nil {
		log.Error().Err(err).Msg("handle message")
		text = i18n.T(i18n.WithLocale(ctx, localeOf(a)), "reply.error")
	}
	if text == "" {
		return
	}

	out := botframework.NewMessage(text)
	out.ReplyToID = a.ID
	if _, err := h.replier.Send(ctx, ref, out); err != nil {
		log.Error().Err(err).Msg("send reply")
	}
}

func (h *MessagesHandler) handleCardInvoke(ctx context.Context, w http.ResponseWriter, r *http.Request, a *botframework.Activity, ref botframework.ConversationReference) {
	res, status, err := h.decide(ctx, a, ref, a.ReplyToID)
	if err != nil {
		writeJSON(w, r, http.StatusOK, invokeError(status, err.Error()))
		return
	}
	writeJSON(w, r, http.StatusOK, botframework.InvokeResponse{
		StatusCode: http.StatusOK,
		Type:       card.ContentType,
		Value:      res.Card,
	})
}

// handleCardSubmit serves clients that still post Action.Submit data as a
// message. The connector gets no card back, so the workflow updates the card
// itself.
func (h *MessagesHandler) handleCardSubmit(ctx context.Context, a *botframework.Activity, ref botframework.ConversationReference) {
	if _, _, err := h.decide(ctx, a, ref, a.ReplyToID); err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("card submit ignored")
	}
}

func (h *MessagesHandler) decide(ctx context.Context, a *botframework.Activity, ref botframework.ConversationReference, cardID string) (service.DecisionResult, int, error) {
	log := logging.FromContext(ctx)

	data, err := card.ParseActionData(a.Value)
	if err != nil {
		return service.DecisionResult{}, http.StatusBadRequest, err
	}

	decider := a.From.Name
	if decider == "" {
		decider = a.From.ID
	}
	res, err := h.approvals.Decide(ctx, service.Decision{
		Data:           data,
		Decider:        decider,
		Ref:            ref,
		CardActivityID: cardID,
	})
	if errors.Is(err, service.ErrUnknownAction) {
		return res, http.StatusBadRequest, err
	}
	if err != nil {
		log.Error().Err(err).Msg("decide leave request")
		return res, http.StatusInternalServerError, err
	}

	ev := log.Info()
	if failed := res.Failed(); len(failed) > 0 {
		ev = log.Warn().Int("failed_steps", len(failed))
	}
	ev.Str("request_id", data.RequestID).
		Str("status", string(res.Status)).
		Str("decider", decider).
		Msg("leave request decided")
	return res, http.StatusOK, nil
}

func invokeError(status int, msg string) botframework.InvokeResponse {
	return botframework.InvokeResponse{
		StatusCode: status,
		Type:       errorContentType,
		Value: map[string]string{
			"code":    http.StatusText(status),
			"message": msg,
		},
	}
}

func localeOf(a *botframework.Activity) string {
	if len(a.Locale) >= 2 {
		return a.Locale[:2]
	}
	return ""
}
