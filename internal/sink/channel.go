package sink

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"leavebot/internal/card"
	"leavebot/internal/model"
)

// Theme colours of channel announcements.
const (
	ThemeApproved = "2EB886"
	ThemeRejected = "D63333"
	ThemeNeutral  = "0078D7"
)

// ChannelClient posts to the team channel's incoming webhook.
type ChannelClient struct {
	url        string
	httpClient *http.Client
}

func NewChannelClient(url string, timeout time.Duration) *ChannelClient {
	return &ChannelClient{url: url, httpClient: newHTTPClient(timeout)}
}

// Announcement is a decided request.
type Announcement struct {
	Request model.PendingApproval
	Status  model.DecisionStatus
	Decider string
}

type messageCard struct {
	Type       string           `json:"@type"`
	Context    string           `json:"@context"`
	Summary    string           `json:"summary"`
	ThemeColor string           `json:"themeColor"`
	Title      string           `json:"title,omitempty"`
	Text       string           `json:"text,omitempty"`
	Sections   []messageSection `json:"sections,omitempty"`
}

type messageSection struct {
	Facts []messageFact `json:"facts"`
}

type messageFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func newMessageCard(title, theme string) messageCard {
	return messageCard{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		Summary:    title,
		ThemeColor: theme,
		Title:      title,
	}
}

// Announce posts the decision with the six request facts, the decider and
// the status.
func (c *ChannelClient) Announce(ctx context.Context, ann Announcement) error {
	theme, verb := ThemeApproved, "approved"
	if ann.Status == model.StatusRejected {
		theme, verb = ThemeRejected, "rejected"
	}

	var facts []messageFact
	for _, f := range card.RequestFacts(ann.Request) {
		facts = append(facts, messageFact{Name: f.Title, Value: f.Value})
	}
	facts = append(facts,
		messageFact{Name: "Decided by", Value: ann.Decider},
		messageFact{Name: "Status", Value: string(ann.Status)},
	)

	msg := newMessageCard(fmt.Sprintf("Leave request of %s %s", ann.Request.UserName, verb), theme)
	msg.Sections = []messageSection{{Facts: facts}}

	if err := postJSON(ctx, c.httpClient, c.url, msg); err != nil {
		return fmt.Errorf("announce decision: %w", err)
	}
	return nil
}

// PostText posts a plain notification.
func (c *ChannelClient) PostText(ctx context.Context, title, text string) error {
	msg := newMessageCard(title, ThemeNeutral)
	msg.Text = text
	if err := postJSON(ctx, c.httpClient, c.url, msg); err != nil {
		return fmt.Errorf("post channel message: %w", err)
	}
	return nil
}
