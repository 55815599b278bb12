// Package reconcile keeps group rosters consistent with the blacklist.
// Real-time enforcement catches joins; the periodic sweep catches anyone who
// slipped in while the bot was offline.
package reconcile

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/damasnight/whatsapp-mod-bot/pkg/env"
	"github.com/damasnight/whatsapp-mod-bot/pkg/identity"
	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
	"github.com/damasnight/whatsapp-mod-bot/pkg/whatsapp"
)

// Transport is the outbound surface the sweeper needs.
type Transport interface {
	JoinedGroups(ctx context.Context) ([]*whatsapp.GroupInfo, error)
	GroupInfo(ctx context.Context, gjid string) (*whatsapp.GroupInfo, error)
	RemoveParticipants(ctx context.Context, gjid string, memberJIDs []string) ([]string, error)
	SendText(ctx context.Context, chatJID string, text string, mentions []string) (string, error)
	BotJID() string
}

// Blacklist answers batch membership questions against the ban list.
type Blacklist interface {
	FilterBlocked(ctx context.Context, userIDs []string) ([]string, error)
}

// Sweeper walks group rosters and removes blacklisted members.
type Sweeper struct {
	transport Transport
	blacklist Blacklist
	botTitle  string

	concurrency int
	timeout     time.Duration
}

func NewSweeper(t Transport, b Blacklist, botTitle string) *Sweeper {
	return &Sweeper{
		transport:   t,
		blacklist:   b,
		botTitle:    botTitle,
		concurrency: env.GetEnvIntOrDefault("SWEEP_CONCURRENCY", 3),
		timeout:     env.GetEnvDurationOrDefault("SWEEP_TIMEOUT", 2*time.Minute),
	}
}

// SweepAll reconciles every joined group. Group failures are isolated; one
// unreachable group does not abort the rest of the pass.
func (s *Sweeper) SweepAll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	groups, err := s.transport.JoinedGroups(ctx)
	if err != nil {
		return fmt.Errorf("listing joined groups: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, group := range groups {
		gjid := group.JID
		g.Go(func() error {
			removed, err := s.SweepGroup(ctx, gjid)
			if err != nil {
				log.Sweep(gjid).Error("Sweep failed: " + err.Error())
				return nil
			}
			if len(removed) > 0 {
				log.Sweep(gjid).Info(fmt.Sprintf("Removed %d blacklisted member(s)", len(removed)))
			}
			return nil
		})
	}
	return g.Wait()
}

// SweepGroup removes every blacklisted member from one group and returns
// their JIDs. Admins and the bot itself are never touched, so a sweep on a
// clean group is a no-op and the operation is safe to repeat.
func (s *Sweeper) SweepGroup(ctx context.Context, gjid string) ([]string, error) {
	info, err := s.transport.GroupInfo(ctx, gjid)
	if err != nil {
		return nil, fmt.Errorf("fetching group info: %w", err)
	}

	blocked, err := s.blacklist.FilterBlocked(ctx, info.MemberJIDs())
	if err != nil {
		return nil, fmt.Errorf("matching roster against blacklist: %w", err)
	}

	botJID := s.transport.BotJID()
	targets := make([]string, 0, len(blocked))
	for _, member := range blocked {
		if info.IsAdmin(member) || identity.Same(member, botJID) {
			continue
		}
		targets = append(targets, member)
	}
	if len(targets) == 0 {
		return nil, nil
	}

	removed, err := s.transport.RemoveParticipants(ctx, gjid, targets)
	if err != nil {
		return nil, fmt.Errorf("removing blacklisted members: %w", err)
	}
	if len(removed) > 0 {
		s.announce(ctx, gjid, removed)
	}
	return removed, nil
}

func (s *Sweeper) announce(ctx context.Context, gjid string, removed []string) {
	mentions := make([]string, 0, len(removed))
	for _, r := range removed {
		mentions = append(mentions, "@"+whatsapp.DecomposeJID(r))
	}
	text := fmt.Sprintf("%s\n\n🧹 Limpeza feita: %s fora do grupo por estar na lista negra.",
		s.botTitle, strings.Join(mentions, " "))
	if _, err := s.transport.SendText(ctx, gjid, text, removed); err != nil {
		log.Sweep(gjid).Warn("Failed to announce sweep: " + err.Error())
	}
}
