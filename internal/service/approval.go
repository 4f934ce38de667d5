package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leavebot/internal/botframework"
	"leavebot/internal/card"
	"leavebot/internal/i18n"
	"leavebot/internal/logging"
	"leavebot/internal/model"
	"leavebot/internal/nlu"
	"leavebot/internal/sink"
)

// Workflow step names, in execution order.
const (
	StepCard      = "card"
	StepConfirm   = "confirm"
	StepAbsence   = "absence"
	StepChannel   = "channel"
	StepRequester = "requester"
)

var (
	ErrUnknownAction    = errors.New("unknown card action")
	ErrRequesterUnknown = errors.New("requester has no conversation with the bot")
)

type AbsenceSink interface {
	CreateAbsence(ctx context.Context, req model.PendingApproval, hours float64) error
}

type Announcer interface {
	Announce(ctx context.Context, ann sink.Announcement) error
}

type Notifier interface {
	Send(ctx context.Context, key, text string) (bool, error)
	Locale(ctx context.Context, key string) string
}

// Decision is a manager's button press.
type Decision struct {
	Data    card.ActionData
	Decider string
	// Ref addresses the manager's conversation; CardActivityID is the
	// activity holding the approval card.
	Ref            botframework.ConversationReference
	CardActivityID string
}

type StepResult struct {
	Name string
	Err  error
}

// DecisionResult lists what each workflow step did. Steps that do not apply
// (the absence record on rejection) are absent.
type DecisionResult struct {
	Status model.DecisionStatus
	Card   card.Card
	Steps  []StepResult
}

// Failed returns the steps that did not succeed.
func (r DecisionResult) Failed() []StepResult {
	var failed []StepResult
	for _, s := range r.Steps {
		if s.Err != nil {
			failed = append(failed, s)
		}
	}
	return failed
}

type ApprovalDeps struct {
	Sender    ActivitySender
	Tasks     TaskLister
	Absence   AbsenceSink
	Channel   Announcer
	Requester Notifier
	Now       func() time.Time
}

// ApprovalService applies a manager's decision. It keeps no state: the
// request travels inside the card.
type ApprovalService struct {
	ApprovalDeps
}

func NewApprovalService(deps ApprovalDeps) *ApprovalService {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &ApprovalService{ApprovalDeps: deps}
}

// Decide replaces the approval card first, then runs the side effects in
// order. Side effect failures are reported in the result and to the manager;
// only an unknown action is an error.
func (s *ApprovalService) Decide(ctx context.Context, d Decision) (DecisionResult, error) {
	status, ok := model.StatusForAction(d.Data.Action)
	if !ok {
		return DecisionResult{}, fmt.Errorf("%w: %q", ErrUnknownAction, d.Data.Action)
	}
	req := d.Data.PendingApproval

	log := logging.FromContext(ctx).With().
		Str("component", "approval").
		Str("request_id", req.RequestID).
		Str("status", string(status)).
		Logger()
	ctx = logging.WithContext(ctx, log)

	taskBlock := ""
	if tasks, err := s.Tasks.ListOpenTasks(ctx, req.UserEmail); err != nil {
		log.Warn().Err(err).Msg("refresh open tasks")
	} else {
		taskBlock = card.FormatTaskBlock(tasks)
	}

	result := DecisionResult{
		Status: status,
		Card:   card.RenderDecided(req, taskBlock, status, d.Decider, s.Now()),
	}
	step := func(name string, err error) {
		if err != nil {
			log.Error().Err(err).Str("step", name).Msg("approval step failed")
		}
		result.Steps = append(result.Steps, StepResult{Name: name, Err: err})
	}

	step(StepCard, s.replaceCard(ctx, d, result.Card))

	confirmID := "approval.confirm_approved"
	if status == model.StatusRejected {
		confirmID = "approval.confirm_rejected"
	}
	step(StepConfirm, s.tellManager(ctx, d.Ref, i18n.T(ctx, confirmID, map[string]any{
		"User":  req.UserName,
		"Start": req.StartDate,
		"End":   req.EndDate,
	})))

	if status == model.StatusApproved {
		hours := nlu.HoursValue(req.Hours, req.StartDate, req.EndDate)
		step(StepAbsence, s.Absence.CreateAbsence(ctx, req, hours))
	}

	step(StepChannel, s.Channel.Announce(ctx, sink.Announcement{
		Request: req,
		Status:  status,
		Decider: d.Decider,
	}))

	step(StepRequester, s.notifyRequester(ctx, req, status, d.Decider))

	if failed := result.Failed(); len(failed) > 0 {
		if err := s.tellManager(ctx, d.Ref, s.diagnostics(ctx, req, failed)); err != nil {
			log.Error().Err(err).Msg("send diagnostics")
		}
	}
	log.Info().Int("failed_steps", len(result.Failed())).Msg("decision applied")
	return result, nil
}

// replaceCard updates the card in place, or posts the decided card as a new
// message with a note when the channel refuses the update.
func (s *ApprovalService) replaceCard(ctx context.Context, d Decision, decided card.Card) error {
	err := s.Sender.Update(ctx, d.Ref, d.CardActivityID, botframework.NewAttachmentMessage("", decided.Attachment()))
	if err == nil {
		return nil
	}
	logging.FromContext(ctx).Warn().Err(err).Msg("update approval card, posting a new one")

	msg := botframework.NewAttachmentMessage(i18n.T(ctx, "approval.update_fallback"), decided.Attachment())
	if _, err := s.Sender.Send(ctx, d.Ref, msg); err != nil {
		return fmt.Errorf("post decided card: %w", err)
	}
	return nil
}

func (s *ApprovalService) tellManager(ctx context.Context, ref botframework.ConversationReference, text string) error {
	_, err := s.Sender.Send(ctx, ref, botframework.NewMessage(text))
	return err
}

func (s *ApprovalService) notifyRequester(ctx context.Context, req model.PendingApproval, status model.DecisionStatus, decider string) error {
	rctx := ctx
	if locale := s.Requester.Locale(ctx, req.UserEmail); locale != "" {
		rctx = i18n.WithLocale(ctx, locale)
	}
	msgID := "requester.approved"
	if status == model.StatusRejected {
		msgID = "requester.rejected"
	}
	text := i18n.T(rctx, msgID, map[string]any{
		"Start":   req.StartDate,
		"End":     req.EndDate,
		"Hours":   req.Hours,
		"Decider": decider,
		"Reason":  req.Reason,
	})

	sent, err := s.Requester.Send(ctx, req.UserEmail, text)
	if err != nil {
		return err
	}
	if !sent {
		return ErrRequesterUnknown
	}
	return nil
}

func (s *ApprovalService) diagnostics(ctx context.Context, req model.PendingApproval, failed []StepResult) string {
	var b strings.Builder
	b.WriteString(i18n.T(ctx, "approval.diagnostics"))
	for _, f := range failed {
		b.WriteString("\n\n• ")
		if errors.Is(f.Err, ErrRequesterUnknown) {
			b.WriteString(i18n.T(ctx, "approval.requester_unknown", map[string]any{"User": req.UserName}))
			continue
		}
		b.WriteString(i18n.T(ctx, "approval.step."+f.Name, map[string]any{"User": req.UserName}))
		b.WriteString(": ")
		b.WriteString(f.Err.Error())
	}
	return b.String()
}
