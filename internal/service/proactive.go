package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leavebot/internal/botframework"
	"leavebot/internal/logging"
	"leavebot/internal/store"
)

// ActivitySender is the connector surface used to talk to users.
type ActivitySender interface {
	Send(ctx context.Context, ref botframework.ConversationReference, activity *botframework.Activity) (*botframework.ResourceResponse, error)
	Update(ctx context.Context, ref botframework.ConversationReference, activityID string, activity *botframework.Activity) error
}

// ProactiveDispatcher remembers where each user can be reached and pushes
// unsolicited messages there. No queueing, no retry.
type ProactiveDispatcher struct {
	book   store.ReferenceBook
	sender ActivitySender
}

func NewProactiveDispatcher(book store.ReferenceBook, sender ActivitySender) *ProactiveDispatcher {
	return &ProactiveDispatcher{book: book, sender: sender}
}

// UserKey normalises an identity (email, channel user id or directory object
// id) for the reference book.
func UserKey(id string) string {
	return strings.ToLower(strings.TrimSpace(id))
}

// Remember stores ref under every identity of its user. A one-to-one
// conversation always wins; a group or channel reference is kept only for
// users the bot has no one-to-one conversation with yet.
func (d *ProactiveDispatcher) Remember(ctx context.Context, ref botframework.ConversationReference) {
	log := logging.FromContext(ctx)
	personal := isPersonal(ref.Conversation)
	for _, id := range []string{ref.User.Email, ref.User.ID, ref.User.AADObjectID} {
		key := UserKey(id)
		if key == "" {
			continue
		}
		if !personal {
			existing, err := d.book.Get(ctx, key)
			if err == nil && isPersonal(existing.Conversation) {
				continue
			}
			if err != nil && !errors.Is(err, store.ErrNotFound) {
				log.Error().Err(err).Str("user_key", key).Msg("look up conversation reference")
				continue
			}
		}
		if err := d.book.Put(ctx, key, ref); err != nil {
			log.Error().Err(err).Str("user_key", key).Msg("remember conversation reference")
		}
	}
}

func isPersonal(c botframework.ConversationAccount) bool {
	return !c.IsGroup && (c.ConversationType == "" || c.ConversationType == "personal")
}

// Locale is the locale last seen from the user, or "".
func (d *ProactiveDispatcher) Locale(ctx context.Context, key string) string {
	ref, err := d.book.Get(ctx, UserKey(key))
	if err != nil {
		return ""
	}
	return ref.Locale
}

// Send pushes text to the user. It returns false when the user has never
// talked to the bot.
func (d *ProactiveDispatcher) Send(ctx context.Context, key, text string) (bool, error) {
	return d.SendActivity(ctx, key, botframework.NewMessage(text))
}

// SendCard pushes a card, with optional text, to the user.
func (d *ProactiveDispatcher) SendCard(ctx context.Context, key, text string, att botframework.Attachment) (bool, error) {
	return d.SendActivity(ctx, key, botframework.NewAttachmentMessage(text, att))
}

func (d *ProactiveDispatcher) SendActivity(ctx context.Context, key string, activity *botframework.Activity) (bool, error) {
	key = UserKey(key)
	if key == "" {
		return false, nil
	}
	ref, err := d.book.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup reference: %w", err)
	}
	if _, err := d.sender.Send(ctx, ref, activity); err != nil {
		return false, fmt.Errorf("proactive send: %w", err)
	}
	return true, nil
}
