package moderation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/damasnight/whatsapp-mod-bot/pkg/identity"
	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
	"github.com/damasnight/whatsapp-mod-bot/pkg/whatsapp"
)

const (
	blacklistAddCommand    = "#addlista"
	blacklistRemoveCommand = "#remlista"
	blacklistCheckCommand  = "#verilista"
	blacklistListCommand   = "#lista"
	blacklistInfoCommand   = "#infolista"
	blacklistSweepCommand  = "#veriflista"

	shortNoticeTTL = 5 * time.Second
	checkNoticeTTL = 10 * time.Second
	listNoticeTTL  = 20 * time.Second
)

// GroupSweeper re-checks a group's full roster against the blacklist.
type GroupSweeper interface {
	SweepGroup(ctx context.Context, gjid string) (removed []string, err error)
}

// BlacklistPolicy handles the blacklist command family. Mutating commands
// are admin-only; lookups answer anyone. Every reply self-deletes so the
// list never lingers in the chat history.
type BlacklistPolicy struct {
	Transport Transport
	Blacklist BlacklistStore
	Sweeper   GroupSweeper
}

func NewBlacklistPolicy(t Transport, b BlacklistStore, s GroupSweeper) *BlacklistPolicy {
	return &BlacklistPolicy{Transport: t, Blacklist: b, Sweeper: s}
}

func (p *BlacklistPolicy) Name() string { return "blacklist" }

func (p *BlacklistPolicy) Matches(e *Event) bool {
	return e.HasCommand(blacklistAddCommand) ||
		e.HasCommand(blacklistRemoveCommand) ||
		e.HasCommand(blacklistCheckCommand) ||
		e.HasCommand(blacklistListCommand) ||
		e.HasCommand(blacklistInfoCommand) ||
		e.HasCommand(blacklistSweepCommand)
}

func (p *BlacklistPolicy) Handle(ctx context.Context, e *Event) error {
	switch {
	case e.HasCommand(blacklistAddCommand):
		return p.handleAdd(ctx, e)
	case e.HasCommand(blacklistRemoveCommand):
		return p.handleRemove(ctx, e)
	case e.HasCommand(blacklistCheckCommand):
		return p.handleCheck(ctx, e)
	case e.HasCommand(blacklistInfoCommand):
		return p.handleInfo(ctx, e)
	case e.HasCommand(blacklistListCommand):
		return p.handleList(ctx, e)
	case e.HasCommand(blacklistSweepCommand):
		return p.handleSweep(ctx, e)
	}
	return nil
}

func (p *BlacklistPolicy) requireAdmin(ctx context.Context, e *Event) (bool, error) {
	isAdmin, _, err := senderIsAdmin(ctx, p.Transport, e)
	if err != nil {
		return false, err
	}
	if !isAdmin {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\n⛔ Somente admins podem mexer na lista negra.", nil, shortNoticeTTL)
	}
	return isAdmin, nil
}

func (p *BlacklistPolicy) handleAdd(ctx context.Context, e *Event) error {
	isAdmin, err := p.requireAdmin(ctx, e)
	if err != nil || !isAdmin {
		return err
	}

	targets := e.TargetUsers(blacklistAddCommand)
	if len(targets) == 0 {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\n⚠️ Informe o número, marque ou responda a pessoa para adicionar à lista negra.", nil, shortNoticeTTL)
		return nil
	}

	reason := commandReason(e, blacklistAddCommand)
	if reason == "" {
		reason = "added via " + blacklistAddCommand
	}

	for _, target := range targets {
		already, err := p.Blacklist.Add(ctx, target, e.SenderID, reason)
		if err != nil {
			return fmt.Errorf("adding %s to blacklist: %w", target, err)
		}
		mention := "@" + whatsapp.DecomposeJID(target)
		if already {
			sendAndDelete(ctx, p.Transport, e.ChatJID,
				fmt.Sprintf("%s\n\nℹ️ %s já estava na lista negra.", BotTitle, mention),
				[]string{target}, shortNoticeTTL)
			continue
		}
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			fmt.Sprintf("%s\n\n🚷 %s entrou na lista negra.", BotTitle, mention),
			[]string{target}, shortNoticeTTL)

		// Blacklisting someone currently in the group removes them on the
		// spot instead of waiting for the periodic sweep.
		info, err := p.Transport.GroupInfo(ctx, e.ChatJID)
		if err != nil {
			log.ModOp(e.ChatJID, p.Name()).Warn("Could not verify membership after blacklisting: " + err.Error())
			continue
		}
		if info.IsMember(target) && !info.IsAdmin(target) && !identity.Same(target, p.Transport.BotJID()) {
			if _, err := p.Transport.RemoveParticipants(ctx, e.ChatJID, []string{target}); err != nil {
				log.ModOp(e.ChatJID, p.Name()).Error("Failed to remove freshly blacklisted member: " + err.Error())
			}
		}
	}
	return nil
}

// commandReason keeps whatever free text follows the command once the
// target tokens (mentions and bare numbers) are removed.
func commandReason(e *Event, command string) string {
	var words []string
	for _, field := range strings.Fields(e.CommandArgs(command)) {
		if strings.HasPrefix(field, "@") {
			continue
		}
		if digits := identity.Digits(field); len(digits) >= 8 {
			continue
		}
		words = append(words, field)
	}
	return strings.Join(words, " ")
}

func (p *BlacklistPolicy) handleRemove(ctx context.Context, e *Event) error {
	isAdmin, err := p.requireAdmin(ctx, e)
	if err != nil || !isAdmin {
		return err
	}

	targets := e.TargetUsers(blacklistRemoveCommand)
	if len(targets) == 0 {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\n⚠️ Informe o número para remover da lista negra.", nil, shortNoticeTTL)
		return nil
	}

	for _, target := range targets {
		present, err := p.Blacklist.Remove(ctx, target)
		if err != nil {
			return fmt.Errorf("removing %s from blacklist: %w", target, err)
		}
		mention := "@" + whatsapp.DecomposeJID(target)
		if present {
			sendAndDelete(ctx, p.Transport, e.ChatJID,
				fmt.Sprintf("%s\n\n✅ %s saiu da lista negra.", BotTitle, mention),
				[]string{target}, shortNoticeTTL)
		} else {
			sendAndDelete(ctx, p.Transport, e.ChatJID,
				fmt.Sprintf("%s\n\nℹ️ %s não estava na lista negra.", BotTitle, mention),
				[]string{target}, shortNoticeTTL)
		}
	}
	return nil
}

func (p *BlacklistPolicy) handleCheck(ctx context.Context, e *Event) error {
	targets := e.TargetUsers(blacklistCheckCommand)
	if len(targets) == 0 {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\n⚠️ Informe o número para verificar.", nil, shortNoticeTTL)
		return nil
	}

	for _, target := range targets {
		blocked, err := p.Blacklist.IsBlocked(ctx, target)
		if err != nil {
			return fmt.Errorf("checking %s against blacklist: %w", target, err)
		}
		mention := "@" + whatsapp.DecomposeJID(target)
		verdict := "✅ %s está limpo."
		if blocked {
			verdict = "🚷 %s está na lista negra."
		}
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			fmt.Sprintf("%s\n\n"+verdict, BotTitle, mention),
			[]string{target}, checkNoticeTTL)
	}
	return nil
}

func (p *BlacklistPolicy) handleInfo(ctx context.Context, e *Event) error {
	targets := e.TargetUsers(blacklistInfoCommand)
	if len(targets) == 0 {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\n⚠️ Informe o número para consultar.", nil, shortNoticeTTL)
		return nil
	}

	entries, err := p.Blacklist.List(ctx)
	if err != nil {
		return fmt.Errorf("listing blacklist: %w", err)
	}
	byID := make(map[string]int, len(entries))
	for i, entry := range entries {
		byID[entry.UserID] = i
	}

	for _, target := range targets {
		mention := "@" + whatsapp.DecomposeJID(target)
		idx, ok := byID[target]
		if !ok {
			sendAndDelete(ctx, p.Transport, e.ChatJID,
				fmt.Sprintf("%s\n\nℹ️ %s não está na lista negra.", BotTitle, mention),
				[]string{target}, checkNoticeTTL)
			continue
		}
		entry := entries[idx]
		text := fmt.Sprintf("%s\n\n🚷 *Ficha de %s*\nAdicionado por: @%s\nMotivo: %s\nDesde: %s",
			BotTitle, mention, whatsapp.DecomposeJID(entry.AddedBy), entry.Reason,
			entry.CreatedAt.Format("02/01/2006 15:04"))
		sendAndDelete(ctx, p.Transport, e.ChatJID, text,
			[]string{target, entry.AddedBy}, checkNoticeTTL)
	}
	return nil
}

func (p *BlacklistPolicy) handleList(ctx context.Context, e *Event) error {
	entries, err := p.Blacklist.List(ctx)
	if err != nil {
		return fmt.Errorf("listing blacklist: %w", err)
	}
	if len(entries) == 0 {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\n✨ A lista negra está vazia.", nil, shortNoticeTTL)
		return nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n🚷 *Lista negra (%d)*\n", BotTitle, len(entries))
	for i, entry := range entries {
		fmt.Fprintf(&b, "%d. %s\n", i+1, whatsapp.DecomposeJID(entry.UserID))
	}
	sendAndDelete(ctx, p.Transport, e.ChatJID, b.String(), nil, listNoticeTTL)
	return nil
}

func (p *BlacklistPolicy) handleSweep(ctx context.Context, e *Event) error {
	isAdmin, err := p.requireAdmin(ctx, e)
	if err != nil || !isAdmin {
		return err
	}

	// The whole exchange is transient: the invoking command, the progress
	// notice and the result all disappear from the chat.
	if err := p.Transport.DeleteMessage(ctx, e.ChatJID, e.MessageID, e.SenderJID); err != nil {
		log.ModOp(e.ChatJID, p.Name()).Warn("Failed to delete sweep command: " + err.Error())
	}
	sendAndDelete(ctx, p.Transport, e.ChatJID,
		BotTitle+"\n\n🔎 Verificando o grupo...", nil, shortNoticeTTL)

	removed, err := p.Sweeper.SweepGroup(ctx, e.ChatJID)
	if err != nil {
		return fmt.Errorf("sweeping group: %w", err)
	}
	if len(removed) == 0 {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\n✅ Ninguém da lista negra está no grupo.", nil, checkNoticeTTL)
		return nil
	}

	names := make([]string, 0, len(removed))
	for _, r := range removed {
		names = append(names, "@"+whatsapp.DecomposeJID(r))
	}
	sendAndDelete(ctx, p.Transport, e.ChatJID,
		fmt.Sprintf("%s\n\n🧹 Removidos da lista negra: %s", BotTitle, strings.Join(names, " ")),
		removed, checkNoticeTTL)
	return nil
}
