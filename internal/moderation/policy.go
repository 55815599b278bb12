// Package moderation holds the policy chain that inspects every group
// message and enforces the rules of the house: link removal, strike
// escalation, blacklist commands, mass mentions and group locking.
package moderation

import (
	"context"
	"strings"
	"time"

	"github.com/damasnight/whatsapp-mod-bot/internal/store"
	"github.com/damasnight/whatsapp-mod-bot/pkg/identity"
	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
	"github.com/damasnight/whatsapp-mod-bot/pkg/whatsapp"
)

// BotTitle prefixes every user-facing notification the bot posts.
const BotTitle = "👏🍻 *DﾑMﾑS* 💃🔥 *Dﾑ* *NIGӇԵ*💃🎶🍾🍸"

// Event is a normalized inbound group message as the policies see it.
type Event struct {
	MessageID string
	ChatJID   string
	SenderJID string
	// SenderID is the canonical form of SenderJID.
	SenderID string
	PushName string
	// Text is the message body or media caption, whichever is present.
	Text     string
	Mentions []string

	QuotedID     string
	QuotedSender string
	QuotedText   string

	FromMe    bool
	Timestamp time.Time
}

// HasCommand reports whether the message text starts with the given command
// word, case-insensitively.
func (e *Event) HasCommand(command string) bool {
	text := strings.TrimSpace(strings.ToLower(e.Text))
	command = strings.ToLower(command)
	return text == command || strings.HasPrefix(text, command+" ")
}

// CommandArgs returns the text after the command word, trimmed.
func (e *Event) CommandArgs(command string) string {
	text := strings.TrimSpace(e.Text)
	if len(text) <= len(command) {
		return ""
	}
	return strings.TrimSpace(text[len(command):])
}

// HasMarker reports whether the marker occurs anywhere in the text as a
// whole token. Report-style commands ride inside a sentence or a caption,
// so the marker may trail the body ("spam demais #adv").
func (e *Event) HasMarker(marker string) bool {
	text := strings.ToLower(e.Text)
	marker = strings.ToLower(marker)
	for idx := strings.Index(text, marker); idx >= 0; {
		before := idx == 0 || isTokenBoundary(text[idx-1])
		end := idx + len(marker)
		after := end >= len(text) || isTokenBoundary(text[end])
		if before && after {
			return true
		}
		next := strings.Index(text[idx+1:], marker)
		if next < 0 {
			return false
		}
		idx += 1 + next
	}
	return false
}

func isTokenBoundary(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '.', ',', '!', '?', ':', ';', '(', ')':
		return true
	}
	return false
}

// StripMarker returns the text with the first whole-token occurrence of the
// marker removed, trimmed.
func (e *Event) StripMarker(marker string) string {
	text := strings.ToLower(e.Text)
	lowered := strings.ToLower(marker)
	for idx := strings.Index(text, lowered); idx >= 0; {
		before := idx == 0 || isTokenBoundary(text[idx-1])
		end := idx + len(lowered)
		after := end >= len(text) || isTokenBoundary(text[end])
		if before && after {
			return strings.TrimSpace(strings.TrimSpace(e.Text[:idx]) + " " + strings.TrimSpace(e.Text[end:]))
		}
		next := strings.Index(text[idx+1:], lowered)
		if next < 0 {
			break
		}
		idx += 1 + next
	}
	return strings.TrimSpace(e.Text)
}

// TargetUsers resolves the users a moderation command acts on, in priority
// order: explicit mentions, then the author of a quoted message, then bare
// numbers in the command arguments.
func (e *Event) TargetUsers(command string) []string {
	if len(e.Mentions) > 0 {
		targets := make([]string, 0, len(e.Mentions))
		for _, m := range e.Mentions {
			targets = append(targets, identity.Normalize(m))
		}
		return targets
	}
	if e.QuotedSender != "" {
		return []string{identity.Normalize(e.QuotedSender)}
	}
	args := e.StripMarker(command)
	if args == "" {
		return nil
	}
	var targets []string
	for _, field := range strings.Fields(args) {
		if digits := identity.Digits(field); len(digits) >= 8 {
			targets = append(targets, identity.Normalize(field))
		}
	}
	return targets
}

// Transport is the outbound surface the policies use. *whatsapp.Client
// satisfies it.
type Transport interface {
	SendText(ctx context.Context, chatJID string, text string, mentions []string) (string, error)
	SendImage(ctx context.Context, chatJID string, imageBytes []byte, imageType string, caption string, mentions []string) (string, error)
	SendAudio(ctx context.Context, chatJID string, audioBytes []byte, mimeType string, seconds uint32) (string, error)
	DeleteMessage(ctx context.Context, chatJID string, messageID string, senderJID string) error
	React(ctx context.Context, chatJID string, messageID string, senderJID string, emoji string) error
	RemoveParticipants(ctx context.Context, gjid string, memberJIDs []string) ([]string, error)
	GroupInfo(ctx context.Context, gjid string) (*whatsapp.GroupInfo, error)
	InviteLink(ctx context.Context, gjid string, reset bool) (string, error)
	SetAnnounce(ctx context.Context, gjid string, announce bool) error
	ProfilePicture(ctx context.Context, userJID string) ([]byte, error)
	BotJID() string
}

// BlacklistStore is the slice of the persistence layer the policies need.
type BlacklistStore interface {
	IsBlocked(ctx context.Context, userID string) (bool, error)
	Add(ctx context.Context, userID string, addedBy string, reason string) (alreadyPresent bool, err error)
	Remove(ctx context.Context, userID string) (wasPresent bool, err error)
	List(ctx context.Context) ([]store.BlacklistEntry, error)
}

// StrikeStore tracks warning counts per user and group.
type StrikeStore interface {
	Increment(ctx context.Context, userID string, groupID string) (int, error)
	Reset(ctx context.Context, userID string, groupID string) error
}

// Policy is one moderation rule. Matches decides whether Handle runs;
// passive policies match on content, command policies on a command word.
type Policy interface {
	Name() string
	Matches(e *Event) bool
	Handle(ctx context.Context, e *Event) error
}

// Chain runs policies over each event. Passive policies all get a chance to
// act; command policies are mutually exclusive and the first match wins. A
// policy error is logged and never stops the rest of the chain.
type Chain struct {
	passive  []Policy
	commands []Policy
}

func NewChain(passive []Policy, commands []Policy) *Chain {
	return &Chain{passive: passive, commands: commands}
}

// Run dispatches the event through the chain.
func (c *Chain) Run(ctx context.Context, e *Event) {
	for _, p := range c.passive {
		if !p.Matches(e) {
			continue
		}
		if err := p.Handle(ctx, e); err != nil {
			log.ModOp(e.ChatJID, p.Name()).Error("Policy failed: " + err.Error())
		}
	}
	for _, p := range c.commands {
		if !p.Matches(e) {
			continue
		}
		if err := p.Handle(ctx, e); err != nil {
			log.ModOp(e.ChatJID, p.Name()).Error("Policy failed: " + err.Error())
		}
		return
	}
}

// senderIsAdmin checks the sender's admin role against live group metadata.
func senderIsAdmin(ctx context.Context, t Transport, e *Event) (bool, *whatsapp.GroupInfo, error) {
	info, err := t.GroupInfo(ctx, e.ChatJID)
	if err != nil {
		return false, nil, err
	}
	return info.IsAdmin(e.SenderJID), info, nil
}

// sendAndDelete posts a notification and revokes it after ttl, keeping the
// group clean of bot chatter.
func sendAndDelete(ctx context.Context, t Transport, chatJID string, text string, mentions []string, ttl time.Duration) {
	id, err := t.SendText(ctx, chatJID, text, mentions)
	if err != nil {
		log.ModOp(chatJID, "notify").Error("Failed to send notification: " + err.Error())
		return
	}
	time.AfterFunc(ttl, func() {
		deleteCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := t.DeleteMessage(deleteCtx, chatJID, id, t.BotJID()); err != nil {
			log.ModOp(chatJID, "notify").Warn("Failed to delete notification: " + err.Error())
		}
	})
}
