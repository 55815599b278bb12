// Package greeting welcomes new members and says goodbye to leavers, with
// the group rules delivered shortly after the welcome.
package greeting

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/damasnight/whatsapp-mod-bot/pkg/env"
	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
	"github.com/damasnight/whatsapp-mod-bot/pkg/whatsapp"
)

// rulesDelay gives the newcomer a moment to read the welcome before the
// rules land.
const rulesDelay = 10 * time.Second

var welcomeTemplates = []string{
	"🎉 Seja muito bem-vinda(o), @%s! Chegou a mais nova dama da night! 💃",
	"🍾 Olha quem chegou! @%s entrou pro grupo! Bora brindar! 🥂",
	"💃 @%s caiu na pista! Seja bem-vinda(o) à night! 🔥",
	"🌟 Boas-vindas, @%s! Aqui a night nunca acaba! 🎶",
}

var farewellTemplates = []string{
	"👋 @%s saiu da night... Sentiremos saudades! 😢",
	"🚪 @%s deixou o grupo. A pista fica mais vazia sem você! 💔",
	"😢 Até mais, @%s! As damas não esquecem você! ✨",
}

// Transport is the outbound slice the greeter uses.
type Transport interface {
	SendText(ctx context.Context, chatJID string, text string, mentions []string) (string, error)
	SendImage(ctx context.Context, chatJID string, imageBytes []byte, imageType string, caption string, mentions []string) (string, error)
	ProfilePicture(ctx context.Context, userJID string) ([]byte, error)
	GroupInfo(ctx context.Context, gjid string) (*whatsapp.GroupInfo, error)
}

// Greeter posts welcome and farewell messages.
type Greeter struct {
	transport Transport
	botTitle  string

	// rulesEnabled gates the delayed rules follow-up. Some groups keep a
	// long description that would spam every newcomer.
	rulesEnabled bool

	pick  func(n int) int
	after func(time.Duration, func())
}

func NewGreeter(t Transport, botTitle string) *Greeter {
	return &Greeter{
		transport:    t,
		botTitle:     botTitle,
		rulesEnabled: env.GetEnvBoolOrDefault("GREETING_RULES_ENABLED", true),
		pick:         rand.Intn,
		after:        func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// Welcome greets a new member, with their profile picture as the card image
// when one is visible, and schedules the group rules.
func (g *Greeter) Welcome(ctx context.Context, gjid string, userJID string) {
	template := welcomeTemplates[g.pick(len(welcomeTemplates))]
	text := fmt.Sprintf("%s\n\n"+template, g.botTitle, whatsapp.DecomposeJID(userJID))

	picture, err := g.transport.ProfilePicture(ctx, userJID)
	if err != nil || len(picture) == 0 {
		if _, err := g.transport.SendText(ctx, gjid, text, []string{userJID}); err != nil {
			log.ModOp(gjid, "greeting").Error("Failed to send welcome: " + err.Error())
			return
		}
	} else {
		if _, err := g.transport.SendImage(ctx, gjid, picture, "image/jpeg", text, []string{userJID}); err != nil {
			log.ModOp(gjid, "greeting").Error("Failed to send welcome card: " + err.Error())
			return
		}
	}

	if !g.rulesEnabled {
		return
	}
	g.after(rulesDelay, func() {
		rulesCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		g.sendRules(rulesCtx, gjid, userJID)
	})
}

// sendRules posts the group description as the house rules. A group without
// a description gets nothing.
func (g *Greeter) sendRules(ctx context.Context, gjid string, userJID string) {
	info, err := g.transport.GroupInfo(ctx, gjid)
	if err != nil {
		log.ModOp(gjid, "greeting").Warn("Could not fetch rules: " + err.Error())
		return
	}
	if info.Topic == "" {
		return
	}
	text := fmt.Sprintf("%s\n\n📜 *Regras da casa, @%s:*\n\n%s",
		g.botTitle, whatsapp.DecomposeJID(userJID), info.Topic)
	if _, err := g.transport.SendText(ctx, gjid, text, []string{userJID}); err != nil {
		log.ModOp(gjid, "greeting").Warn("Failed to send rules: " + err.Error())
	}
}

// Farewell waves a leaving member goodbye.
func (g *Greeter) Farewell(ctx context.Context, gjid string, userJID string) {
	template := farewellTemplates[g.pick(len(farewellTemplates))]
	text := fmt.Sprintf("%s\n\n"+template, g.botTitle, whatsapp.DecomposeJID(userJID))
	if _, err := g.transport.SendText(ctx, gjid, text, []string{userJID}); err != nil {
		log.ModOp(gjid, "greeting").Error("Failed to send farewell: " + err.Error())
	}
}
