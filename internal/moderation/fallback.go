package moderation

import (
	"context"
	"strings"
)

// commandHelp lists the commands the bot answers to, shown to admins who
// typo a command.
const commandHelp = BotTitle + `

📖 *Comandos do bot*
` + blacklistAddCommand + ` — adicionar à lista negra
` + blacklistRemoveCommand + ` — remover da lista negra
` + blacklistCheckCommand + ` — verificar um número
` + blacklistListCommand + ` — mostrar a lista negra
` + blacklistInfoCommand + ` — ficha de um número
` + blacklistSweepCommand + ` — varrer o grupo
` + banCommand + ` — banir alguém
` + strikeCommand + ` — dar advertência
` + resetLinkCommand + ` — renovar o link do grupo
` + lockCommand + ` — fechar o grupo
` + unlockCommand + ` — abrir o grupo
` + massTagCommand + ` — marcar todo mundo
` + musicCommand + ` — tocar uma música`

// FallbackPolicy catches "#"-prefixed messages no other command claimed and
// shows admins the command list. It must sit last in the command chain.
type FallbackPolicy struct {
	Transport Transport
}

func NewFallbackPolicy(t Transport) *FallbackPolicy {
	return &FallbackPolicy{Transport: t}
}

func (p *FallbackPolicy) Name() string { return "fallback" }

func (p *FallbackPolicy) Matches(e *Event) bool {
	text := strings.TrimSpace(e.Text)
	// Only react to things that look like bot commands, not hashtags.
	return strings.HasPrefix(text, "#da") || strings.HasPrefix(text, "!autotag")
}

func (p *FallbackPolicy) Handle(ctx context.Context, e *Event) error {
	isAdmin, _, err := senderIsAdmin(ctx, p.Transport, e)
	if err != nil {
		return err
	}
	if !isAdmin {
		return nil
	}
	sendAndDelete(ctx, p.Transport, e.ChatJID, commandHelp, nil, listNoticeTTL)
	return nil
}
