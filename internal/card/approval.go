package card

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"leavebot/internal/model"
)

// ActionData is the payload echoed back when a button is pressed: the action
// tag plus the whole request.
type ActionData struct {
	Action string `json:"action"`
	model.PendingApproval
}

// ParseActionData decodes the value of a card invoke or submit activity.
// Action.Execute wraps the data under "action.data"; Action.Submit sends it
// bare.
func ParseActionData(raw json.RawMessage) (ActionData, error) {
	var data ActionData
	if len(raw) == 0 {
		return data, fmt.Errorf("parse action data: empty value")
	}

	var execute struct {
		Action struct {
			Verb string          `json:"verb"`
			Data json.RawMessage `json:"data"`
		} `json:"action"`
	}
	if err := json.Unmarshal(raw, &execute); err == nil && len(execute.Action.Data) > 0 {
		if err := json.Unmarshal(execute.Action.Data, &data); err != nil {
			return data, fmt.Errorf("parse action data: %w", err)
		}
		if data.Action == "" {
			data.Action = execute.Action.Verb
		}
		return data, nil
	}

	if err := json.Unmarshal(raw, &data); err != nil {
		return data, fmt.Errorf("parse action data: %w", err)
	}
	return data, nil
}

const noOpenTasks = "No open tasks."

// RenderApproval builds the card sent to the manager: six request facts, the
// requester's open tasks, and Approve/Reject buttons carrying the request.
func RenderApproval(req model.PendingApproval, taskBlock string) Card {
	return newCard(requestBody(req, taskBlock), []Action{
		decisionAction("Approve", model.ActionApprove, "positive", req),
		decisionAction("Reject", model.ActionReject, "destructive", req),
	})
}

// RenderDecided builds the card that replaces the approval card once a
// decision is made. It keeps the request body, adds a status banner, and has
// no actions.
func RenderDecided(req model.PendingApproval, taskBlock string, status model.DecisionStatus, decider string, at time.Time) Card {
	color, style := "good", "good"
	if status == model.StatusRejected {
		color, style = "attention", "attention"
	}

	body := requestBody(req, taskBlock)
	body = append(body, Element{
		Type:      "Container",
		Style:     style,
		Separator: true,
		Spacing:   "medium",
		Items: []Element{
			{Type: "TextBlock", Text: string(status), Size: "large", Weight: "bolder", Color: color},
			factSet(
				Fact{Title: "Decided by", Value: decider},
				Fact{Title: "Decided at", Value: at.Format("2006-01-02 15:04 MST")},
			),
		},
	})
	return newCard(body, nil)
}

func requestBody(req model.PendingApproval, taskBlock string) []Element {
	if strings.TrimSpace(taskBlock) == "" {
		taskBlock = noOpenTasks
	}
	return []Element{
		{Type: "TextBlock", Text: "Leave request", Size: "large", Weight: "bolder"},
		factSet(RequestFacts(req)...),
		{Type: "TextBlock", Text: "Open tasks", Weight: "bolder", Separator: true, Spacing: "medium"},
		textBlock(taskBlock),
	}
}

// RequestFacts lists the six request fields in display order.
func RequestFacts(req model.PendingApproval) []Fact {
	return []Fact{
		{Title: "Employee", Value: req.UserName},
		{Title: "Email", Value: req.UserEmail},
		{Title: "Start date", Value: req.StartDate},
		{Title: "End date", Value: req.EndDate},
		{Title: "Hours", Value: req.Hours},
		{Title: "Reason", Value: req.Reason},
	}
}

func decisionAction(title, action, style string, req model.PendingApproval) Action {
	return Action{
		Type:  "Action.Execute",
		Title: title,
		Verb:  action,
		Style: style,
		Data:  ActionData{Action: action, PendingApproval: req},
	}
}

// Summary is the plain-text form of a request, used when a card cannot be
// delivered.
func Summary(req model.PendingApproval, taskBlock string) string {
	var b strings.Builder
	b.WriteString("Leave request\n")
	for _, f := range RequestFacts(req) {
		fmt.Fprintf(&b, "%s: %s\n", f.Title, f.Value)
	}
	if strings.TrimSpace(taskBlock) == "" {
		taskBlock = noOpenTasks
	}
	b.WriteString("Open tasks:\n")
	b.WriteString(taskBlock)
	return b.String()
}
