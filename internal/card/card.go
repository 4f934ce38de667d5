// Package card renders the Adaptive Cards shown to managers. Rendering is
// pure: the same input always produces the same card.
package card

import (
	"leavebot/internal/botframework"
)

const (
	ContentType = "application/vnd.microsoft.card.adaptive"
	schema      = "http://adaptivecards.io/schemas/adaptive-card.json"
	version     = "1.4"
)

// Card is an Adaptive Card.
type Card struct {
	Type    string    `json:"type"`
	Schema  string    `json:"$schema"`
	Version string    `json:"version"`
	Body    []Element `json:"body"`
	Actions []Action  `json:"actions,omitempty"`
}

// Element covers the body element types used here: TextBlock, FactSet and
// Container.
type Element struct {
	Type      string    `json:"type"`
	Text      string    `json:"text,omitempty"`
	Size      string    `json:"size,omitempty"`
	Weight    string    `json:"weight,omitempty"`
	Color     string    `json:"color,omitempty"`
	Wrap      bool      `json:"wrap,omitempty"`
	IsSubtle  bool      `json:"isSubtle,omitempty"`
	Spacing   string    `json:"spacing,omitempty"`
	Separator bool      `json:"separator,omitempty"`
	Style     string    `json:"style,omitempty"`
	Facts     []Fact    `json:"facts,omitempty"`
	Items     []Element `json:"items,omitempty"`
}

type Fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

// Action is an Action.Execute button.
type Action struct {
	Type  string `json:"type"`
	Title string `json:"title"`
	Verb  string `json:"verb,omitempty"`
	Style string `json:"style,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Attachment wraps c for sending through the connector.
func (c Card) Attachment() botframework.Attachment {
	return botframework.Attachment{ContentType: ContentType, Content: c}
}

func newCard(body []Element, actions []Action) Card {
	return Card{
		Type:    "AdaptiveCard",
		Schema:  schema,
		Version: version,
		Body:    body,
		Actions: actions,
	}
}

func textBlock(text string) Element {
	return Element{Type: "TextBlock", Text: text, Wrap: true}
}

func factSet(facts ...Fact) Element {
	return Element{Type: "FactSet", Facts: facts}
}
