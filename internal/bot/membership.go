package bot

import (
	"context"

	"go.mau.fi/whatsmeow/types/events"

	"github.com/damasnight/whatsapp-mod-bot/pkg/identity"
	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
)

// Remover is the slice of the transport membership enforcement needs.
type Remover interface {
	RemoveParticipants(ctx context.Context, gjid string, memberJIDs []string) ([]string, error)
	BotJID() string
}

// BlockChecker answers single-user blacklist lookups.
type BlockChecker interface {
	IsBlocked(ctx context.Context, userID string) (bool, error)
}

// Greeter posts welcome and farewell messages.
type Greeter interface {
	Welcome(ctx context.Context, gjid string, userJID string)
	Farewell(ctx context.Context, gjid string, userJID string)
}

// Membership reacts to joins and leaves. Blacklisted joiners are removed on
// the spot before any welcome goes out; everyone else gets greeted.
type Membership struct {
	remover   Remover
	blacklist BlockChecker
	greeter   Greeter
}

func NewMembership(r Remover, b BlockChecker, g Greeter) *Membership {
	return &Membership{remover: r, blacklist: b, greeter: g}
}

// HandleGroupChange is wired as the transport's participant callback.
func (m *Membership) HandleGroupChange(evt *events.GroupInfo) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	gjid := evt.JID.String()
	for _, joined := range evt.Join {
		m.handleJoin(ctx, gjid, joined.String())
	}
	for _, left := range evt.Leave {
		m.handleLeave(ctx, gjid, left.String())
	}
}

func (m *Membership) handleJoin(ctx context.Context, gjid string, userJID string) {
	if identity.Same(userJID, m.remover.BotJID()) {
		return
	}

	blocked, err := m.blacklist.IsBlocked(ctx, userJID)
	if err != nil {
		// When the lookup fails the member stays; the periodic sweep is the
		// safety net.
		log.ModOp(gjid, "membership").Error("Blacklist lookup failed on join: " + err.Error())
		m.greeter.Welcome(ctx, gjid, userJID)
		return
	}
	if blocked {
		log.ModOp(gjid, "membership").Info("Blacklisted member joined, removing: " + identity.Normalize(userJID))
		if _, err := m.remover.RemoveParticipants(ctx, gjid, []string{userJID}); err != nil {
			log.ModOp(gjid, "membership").Error("Failed to remove blacklisted joiner: " + err.Error())
		}
		return
	}

	m.greeter.Welcome(ctx, gjid, userJID)
}

func (m *Membership) handleLeave(ctx context.Context, gjid string, userJID string) {
	if identity.Same(userJID, m.remover.BotJID()) {
		return
	}
	m.greeter.Farewell(ctx, gjid, userJID)
}
