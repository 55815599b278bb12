package moderation

import (
	"context"
	"errors"
	"fmt"

	"github.com/damasnight/whatsapp-mod-bot/internal/music"
	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
)

const musicCommand = "#damas music"

// MusicPolicy answers "#damas music <song>" with an audio message. When no
// download API is configured the bot says so instead of staying silent.
type MusicPolicy struct {
	Transport  Transport
	Downloader music.Downloader
}

func NewMusicPolicy(t Transport, d music.Downloader) *MusicPolicy {
	return &MusicPolicy{Transport: t, Downloader: d}
}

func (p *MusicPolicy) Name() string { return "music" }

func (p *MusicPolicy) Matches(e *Event) bool {
	return e.HasCommand(musicCommand)
}

func (p *MusicPolicy) Handle(ctx context.Context, e *Event) error {
	query := e.CommandArgs(musicCommand)
	if query == "" {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\n🎵 Me diga o nome da música: "+musicCommand+" <nome>", nil, shortNoticeTTL)
		return nil
	}
	if p.Downloader == nil {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\n😔 O serviço de música está fora do ar no momento.", nil, shortNoticeTTL)
		return nil
	}

	ackID, err := p.Transport.SendText(ctx, e.ChatJID,
		fmt.Sprintf("%s\n\n🎧 Procurando *%s*...", BotTitle, query), nil)
	if err != nil {
		return err
	}

	track, err := p.Downloader.Fetch(ctx, query)
	if derr := p.Transport.DeleteMessage(ctx, e.ChatJID, ackID, p.Transport.BotJID()); derr != nil {
		log.ModOp(e.ChatJID, p.Name()).Warn("Failed to delete search notice: " + derr.Error())
	}
	if errors.Is(err, music.ErrNotFound) {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			fmt.Sprintf("%s\n\n🤷 Não achei nada para *%s*.", BotTitle, query), nil, shortNoticeTTL)
		return nil
	}
	if err != nil {
		sendAndDelete(ctx, p.Transport, e.ChatJID,
			BotTitle+"\n\n😔 Deu ruim baixando a música, tenta de novo mais tarde.", nil, shortNoticeTTL)
		return fmt.Errorf("fetching track: %w", err)
	}

	title := track.Title
	if track.Artist != "" {
		title += " - " + track.Artist
	}
	if _, err := p.Transport.SendText(ctx, e.ChatJID,
		fmt.Sprintf("%s\n\n🎶 Tocando agora: *%s*", BotTitle, title), nil); err != nil {
		log.ModOp(e.ChatJID, p.Name()).Warn("Failed to announce track: " + err.Error())
	}
	_, err = p.Transport.SendAudio(ctx, e.ChatJID, track.Audio, track.MimeType, track.Seconds)
	return err
}
