// Package botframework talks to the chat connector: it decodes inbound
// activities and sends, replies to and updates activities in a conversation.
package botframework

import (
	"encoding/json"
)

// Activity types.
const (
	ActivityMessage        = "message"
	ActivityInvoke         = "invoke"
	ActivityEvent          = "event"
	ActivityInvokeResponse = "invokeResponse"
)

// InvokeAdaptiveCardAction is the invoke name sent when a card button with an
// Action.Execute is pressed.
const InvokeAdaptiveCardAction = "adaptiveCard/action"

// Activity is the connector's message envelope. Only the fields the bot reads
// or writes are modelled.
type Activity struct {
	Type         string              `json:"type"`
	ID           string              `json:"id,omitempty"`
	ServiceURL   string              `json:"serviceUrl,omitempty"`
	ChannelID    string              `json:"channelId,omitempty"`
	From         ChannelAccount      `json:"from,omitzero"`
	Recipient    ChannelAccount      `json:"recipient,omitzero"`
	Conversation ConversationAccount `json:"conversation,omitzero"`
	Text         string              `json:"text,omitempty"`
	TextFormat   string              `json:"textFormat,omitempty"`
	Locale       string              `json:"locale,omitempty"`
	Name         string              `json:"name,omitempty"`
	Value        json.RawMessage     `json:"value,omitempty"`
	ReplyToID    string              `json:"replyToId,omitempty"`
	Attachments  []Attachment        `json:"attachments,omitempty"`
}

// ChannelAccount identifies a user or the bot.
type ChannelAccount struct {
	ID          string `json:"id,omitempty"`
	Name        string `json:"name,omitempty"`
	AADObjectID string `json:"aadObjectId,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
}

// ConversationAccount identifies a conversation.
type ConversationAccount struct {
	ID               string `json:"id,omitempty"`
	Name             string `json:"name,omitempty"`
	ConversationType string `json:"conversationType,omitempty"`
	TenantID         string `json:"tenantId,omitempty"`
	IsGroup          bool   `json:"isGroup,omitempty"`
}

// ConversationReference is everything needed to address a conversation later,
// outside the turn it was captured in.
type ConversationReference struct {
	ActivityID   string              `json:"activityId,omitempty" bson:"activity_id,omitempty"`
	User         ChannelAccount      `json:"user" bson:"user"`
	Bot          ChannelAccount      `json:"bot" bson:"bot"`
	Conversation ConversationAccount `json:"conversation" bson:"conversation"`
	ChannelID    string              `json:"channelId" bson:"channel_id"`
	ServiceURL   string              `json:"serviceUrl" bson:"service_url"`
	Locale       string              `json:"locale,omitempty" bson:"locale,omitempty"`
}

// Attachment carries a card.
type Attachment struct {
	ContentType string `json:"contentType"`
	Content     any    `json:"content"`
}

// ResourceResponse is returned by the connector for created activities.
type ResourceResponse struct {
	ID string `json:"id"`
}

// InvokeResponse is the body returned to an invoke activity.
type InvokeResponse struct {
	StatusCode int    `json:"statusCode"`
	Type       string `json:"type"`
	Value      any    `json:"value,omitempty"`
}

// Validate checks the fields every routed activity needs.
func (a *Activity) Validate() error {
	switch {
	case a.Type == "":
		return errMissing("type")
	case a.Conversation.ID == "":
		return errMissing("conversation.id")
	case a.ServiceURL == "":
		return errMissing("serviceUrl")
	}
	return nil
}

// GetConversationReference captures the addressing data of an inbound
// activity.
func GetConversationReference(a *Activity) ConversationReference {
	return ConversationReference{
		ActivityID:   a.ID,
		User:         a.From,
		Bot:          a.Recipient,
		Conversation: a.Conversation,
		ChannelID:    a.ChannelID,
		ServiceURL:   a.ServiceURL,
		Locale:       a.Locale,
	}
}

// ApplyReference addresses an outgoing activity to ref.
func ApplyReference(a *Activity, ref ConversationReference) {
	a.ChannelID = ref.ChannelID
	a.ServiceURL = ref.ServiceURL
	a.Conversation = ref.Conversation
	a.From = ref.Bot
	a.Recipient = ref.User
	if a.Locale == "" {
		a.Locale = ref.Locale
	}
}

// NewMessage builds a plain text message activity.
func NewMessage(text string) *Activity {
	return &Activity{Type: ActivityMessage, Text: text, TextFormat: "markdown"}
}

// NewAttachmentMessage builds a message activity carrying one attachment.
func NewAttachmentMessage(text string, att Attachment) *Activity {
	a := NewMessage(text)
	a.Attachments = []Attachment{att}
	return a
}
