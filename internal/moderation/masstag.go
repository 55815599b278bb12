package moderation

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/damasnight/whatsapp-mod-bot/pkg/identity"
)

const (
	massTagCommand       = "#all damas"
	autoTagOnCommand     = "!autotag-on"
	autoTagOffCommand    = "!autotag-off"
	autoTagStatusCommand = "!autotag-status"
	autoTagUpdateCommand = "!autotag-update"
	autoTagHelpCommand   = "!autotag-help"

	// Member snapshots avoid hammering the group metadata endpoint when
	// admins tag everyone repeatedly during an event.
	snapshotTTL = time.Hour
)

type memberSnapshot struct {
	members []string
	takenAt time.Time
}

// MassTagPolicy tags every member of the group in a single message. The
// feature is toggled per group with the !autotag commands and is admin-only
// at both ends.
type MassTagPolicy struct {
	Transport Transport

	mu        sync.Mutex
	enabled   map[string]bool
	snapshots map[string]memberSnapshot

	now func() time.Time
}

func NewMassTagPolicy(t Transport) *MassTagPolicy {
	return &MassTagPolicy{
		Transport: t,
		enabled:   make(map[string]bool),
		snapshots: make(map[string]memberSnapshot),
		now:       time.Now,
	}
}

func (p *MassTagPolicy) Name() string { return "masstag" }

// Matches accepts the tag marker anywhere in the message, so "Festa hoje às
// 22h #all damas" works the same as leading with the marker.
func (p *MassTagPolicy) Matches(e *Event) bool {
	return e.HasMarker(massTagCommand) ||
		e.HasCommand(autoTagOnCommand) ||
		e.HasCommand(autoTagOffCommand) ||
		e.HasCommand(autoTagStatusCommand) ||
		e.HasCommand(autoTagUpdateCommand) ||
		e.HasCommand(autoTagHelpCommand)
}

func (p *MassTagPolicy) Handle(ctx context.Context, e *Event) error {
	isAdmin, _, err := senderIsAdmin(ctx, p.Transport, e)
	if err != nil {
		return err
	}
	if !isAdmin {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\n⛔ Somente admins podem marcar todo mundo.", nil, adminOnlyNoticeTTL)
		return nil
	}

	switch {
	case e.HasCommand(autoTagOnCommand):
		p.setEnabled(e.ChatJID, true)
		_, err := p.Transport.SendText(ctx, e.ChatJID, BotTitle+"\n\n✅ Marcação geral ativada neste grupo.", nil)
		return err
	case e.HasCommand(autoTagOffCommand):
		p.setEnabled(e.ChatJID, false)
		_, err := p.Transport.SendText(ctx, e.ChatJID, BotTitle+"\n\n🛑 Marcação geral desativada neste grupo.", nil)
		return err
	case e.HasCommand(autoTagStatusCommand):
		status := "desativada 🛑"
		if p.isEnabled(e.ChatJID) {
			status = "ativada ✅"
		}
		_, err := p.Transport.SendText(ctx, e.ChatJID,
			fmt.Sprintf("%s\n\nℹ️ Marcação geral está %s neste grupo.", BotTitle, status), nil)
		return err
	case e.HasCommand(autoTagUpdateCommand):
		p.dropSnapshot(e.ChatJID)
		members, err := p.members(ctx, e.ChatJID)
		if err != nil {
			return fmt.Errorf("refreshing member snapshot: %w", err)
		}
		_, err = p.Transport.SendText(ctx, e.ChatJID,
			fmt.Sprintf("%s\n\n🔄 Lista de membros atualizada: %d pessoas.", BotTitle, len(members)), nil)
		return err
	case e.HasCommand(autoTagHelpCommand):
		_, err := p.Transport.SendText(ctx, e.ChatJID, autoTagHelp, nil)
		return err
	}

	if !p.isEnabled(e.ChatJID) {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\nℹ️ Marcação geral está desativada. Use "+autoTagOnCommand+" para ativar.", nil, adminOnlyNoticeTTL)
		return nil
	}

	members, err := p.members(ctx, e.ChatJID)
	if err != nil {
		return fmt.Errorf("loading group members: %w", err)
	}

	// The bot does not tag itself.
	botJID := p.Transport.BotJID()
	mentions := make([]string, 0, len(members))
	for _, m := range members {
		if identity.Same(m, botJID) {
			continue
		}
		mentions = append(mentions, m)
	}

	body := strings.TrimSpace(e.StripMarker(massTagCommand))
	if body == "" {
		body = "📣 Atenção, damas! Chamada geral! 🍻"
	}
	// Mentions ride in the message metadata, so the text stays clean.
	_, err = p.Transport.SendText(ctx, e.ChatJID, BotTitle+"\n\n"+body, mentions)
	return err
}

const autoTagHelp = BotTitle + `

📖 *Marcação geral*
` + massTagCommand + ` [mensagem] — marcar todo mundo
` + autoTagOnCommand + ` — ativar no grupo
` + autoTagOffCommand + ` — desativar no grupo
` + autoTagStatusCommand + ` — ver o estado
` + autoTagUpdateCommand + ` — atualizar a lista de membros`

func (p *MassTagPolicy) dropSnapshot(gjid string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.snapshots, gjid)
}

func (p *MassTagPolicy) setEnabled(gjid string, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled[gjid] = enabled
}

func (p *MassTagPolicy) isEnabled(gjid string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.enabled[gjid]
}

func (p *MassTagPolicy) members(ctx context.Context, gjid string) ([]string, error) {
	p.mu.Lock()
	snap, ok := p.snapshots[gjid]
	p.mu.Unlock()
	if ok && p.now().Sub(snap.takenAt) < snapshotTTL {
		return snap.members, nil
	}

	info, err := p.Transport.GroupInfo(ctx, gjid)
	if err != nil {
		return nil, err
	}
	members := info.MemberJIDs()

	p.mu.Lock()
	p.snapshots[gjid] = memberSnapshot{members: members, takenAt: p.now()}
	p.mu.Unlock()
	return members, nil
}
