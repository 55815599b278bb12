package moderation

import (
	"context"
	"fmt"

	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
)

const (
	resetLinkCommand = "#rlink"
	lockCommand      = "#fdamas"
	unlockCommand    = "#abrir"
)

// GroupAdminPolicy covers the admin housekeeping commands: invite link
// rotation and locking/unlocking the group to admin-only posting.
type GroupAdminPolicy struct {
	Transport Transport
}

func NewGroupAdminPolicy(t Transport) *GroupAdminPolicy {
	return &GroupAdminPolicy{Transport: t}
}

func (p *GroupAdminPolicy) Name() string { return "groupadmin" }

func (p *GroupAdminPolicy) Matches(e *Event) bool {
	return e.HasCommand(resetLinkCommand) || e.HasCommand(lockCommand) || e.HasCommand(unlockCommand)
}

func (p *GroupAdminPolicy) Handle(ctx context.Context, e *Event) error {
	isAdmin, info, err := senderIsAdmin(ctx, p.Transport, e)
	if err != nil {
		return err
	}
	if !isAdmin {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\n⛔ Somente admins podem usar esse comando.", nil, adminOnlyNoticeTTL)
		return nil
	}
	if !info.IsAdmin(p.Transport.BotJID()) {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\n🙏 Preciso ser admin do grupo para fazer isso.", nil, adminOnlyNoticeTTL)
		return nil
	}

	switch {
	case e.HasCommand(resetLinkCommand):
		return p.resetLink(ctx, e)
	case e.HasCommand(lockCommand):
		return p.setLock(ctx, e, true)
	case e.HasCommand(unlockCommand):
		return p.setLock(ctx, e, false)
	}
	return nil
}

func (p *GroupAdminPolicy) resetLink(ctx context.Context, e *Event) error {
	link, err := p.Transport.InviteLink(ctx, e.ChatJID, true)
	if err != nil {
		return fmt.Errorf("resetting invite link: %w", err)
	}
	log.ModOp(e.ChatJID, p.Name()).Info("Invite link rotated")

	// The fresh link goes to the group so admins can grab it before it
	// self-deletes.
	sendAndDelete(ctx, p.Transport, e.ChatJID,
		fmt.Sprintf("%s\n\n🔄 Link do grupo renovado:\n%s", BotTitle, link), nil, listNoticeTTL)
	return nil
}

func (p *GroupAdminPolicy) setLock(ctx context.Context, e *Event, lock bool) error {
	if err := p.Transport.SetAnnounce(ctx, e.ChatJID, lock); err != nil {
		return fmt.Errorf("updating group announce mode: %w", err)
	}
	text := BotTitle + "\n\n🔓 O grupo está aberto! Podem falar. 🎉"
	if lock {
		text = BotTitle + "\n\n🔒 O grupo está fechado. Somente admins podem enviar mensagens."
	}
	_, err := p.Transport.SendText(ctx, e.ChatJID, text, nil)
	return err
}
