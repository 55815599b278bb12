// Package internal wires the moderation bot together: datastore, WhatsApp
// transport, policy chain, session supervision and the admin API.
package internal

import (
	"context"
	"errors"
	"fmt"

	"github.com/damasnight/whatsapp-mod-bot/internal/admin"
	"github.com/damasnight/whatsapp-mod-bot/internal/bot"
	"github.com/damasnight/whatsapp-mod-bot/internal/greeting"
	"github.com/damasnight/whatsapp-mod-bot/internal/moderation"
	"github.com/damasnight/whatsapp-mod-bot/internal/music"
	"github.com/damasnight/whatsapp-mod-bot/internal/reconcile"
	"github.com/damasnight/whatsapp-mod-bot/internal/session"
	"github.com/damasnight/whatsapp-mod-bot/internal/store"
	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
	"github.com/damasnight/whatsapp-mod-bot/pkg/whatsapp"
)

// App bundles everything main needs to run and shut down the bot.
type App struct {
	Store   *store.Store
	Client  *whatsapp.Client
	Machine *session.Machine
	Sweeper *reconcile.Sweeper
	API     *admin.API
}

// Startup builds the full application graph and connects the WhatsApp
// session.
func Startup(ctx context.Context) (*App, error) {
	st, err := store.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	client, err := whatsapp.NewClient(ctx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("creating whatsapp client: %w", err)
	}

	var downloader music.Downloader
	if dl, err := music.NewFromEnv(); err == nil {
		downloader = dl
	} else if errors.Is(err, music.ErrNotConfigured) {
		log.Print(nil).Warn("Music download API not configured, #damas music will be unavailable")
	}

	sweeper := reconcile.NewSweeper(client, st.Blacklist, moderation.BotTitle)
	greeter := greeting.NewGreeter(client, moderation.BotTitle)

	chain := moderation.NewChain(
		[]moderation.Policy{
			moderation.NewOversizePolicy(client),
			moderation.NewAntiLink(client),
		},
		[]moderation.Policy{
			moderation.NewBanPolicy(client),
			moderation.NewGroupAdminPolicy(client),
			moderation.NewMassTagPolicy(client),
			moderation.NewBlacklistPolicy(client, st.Blacklist, sweeper),
			moderation.NewMusicPolicy(client, downloader),
			moderation.NewStrikePolicy(client, st.Strikes),
			moderation.NewFallbackPolicy(client),
		},
	)

	dispatcher := bot.NewDispatcher(chain)
	membership := bot.NewMembership(client, st.Blacklist, greeter)
	machine := session.NewMachine(client.Connect)
	// Anyone blacklisted while the bot was offline is caught right after
	// the session comes back.
	machine.OnOpen = func() {
		go func() {
			if err := sweeper.SweepAll(context.Background()); err != nil {
				log.Print(nil).Error("Post-connect sweep failed: " + err.Error())
			}
		}()
	}

	client.SetHandlers(whatsapp.Handlers{
		Message:      dispatcher.HandleMessage,
		Participants: membership.HandleGroupChange,
		Connected:    machine.Connected,
		Disconnected: machine.Disconnected,
	})

	if err := machine.Start(); err != nil {
		st.Close()
		return nil, fmt.Errorf("connecting whatsapp session: %w", err)
	}

	return &App{
		Store:   st,
		Client:  client,
		Machine: machine,
		Sweeper: sweeper,
		API:     admin.NewAPI(st.Blacklist, st.Strikes, sweeper, machine, client),
	}, nil
}

// Shutdown tears the application down in reverse order of construction.
func (a *App) Shutdown() {
	a.Client.Disconnect()
	if err := a.Store.Close(); err != nil {
		log.Print(nil).Error("Failed to close store: " + err.Error())
	}
}
