// Package admin exposes the moderation state over a small authenticated
// HTTP API for operators.
package admin

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/damasnight/whatsapp-mod-bot/internal/session"
	"github.com/damasnight/whatsapp-mod-bot/internal/store"
	"github.com/damasnight/whatsapp-mod-bot/pkg/env"
	"github.com/damasnight/whatsapp-mod-bot/pkg/identity"
	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
	"github.com/damasnight/whatsapp-mod-bot/pkg/router"
)

// Blacklist is the persistence slice the API needs.
type Blacklist interface {
	Add(ctx context.Context, userID string, addedBy string, reason string) (alreadyPresent bool, err error)
	Remove(ctx context.Context, userID string) (wasPresent bool, err error)
	List(ctx context.Context) ([]store.BlacklistEntry, error)
}

// Strikes reads the warning ladder counters.
type Strikes interface {
	Count(ctx context.Context, userID string, groupID string) (int, error)
}

// Sweeper triggers roster reconciliation on demand.
type Sweeper interface {
	SweepAll(ctx context.Context) error
	SweepGroup(ctx context.Context, gjid string) ([]string, error)
}

// SessionInfo reports the connection lifecycle.
type SessionInfo interface {
	Phase() session.Phase
}

// Bot reports identity and readiness of the WhatsApp client.
type Bot interface {
	BotJID() string
	IsReady() bool
}

// API is the admin HTTP handler set.
type API struct {
	blacklist Blacklist
	strikes   Strikes
	sweeper   Sweeper
	session   SessionInfo
	bot       Bot
}

func NewAPI(b Blacklist, st Strikes, s Sweeper, sess SessionInfo, bot Bot) *API {
	return &API{blacklist: b, strikes: st, sweeper: s, session: sess, bot: bot}
}

// Auth gates every admin route behind the ADMIN_API_SECRET shared secret.
func Auth() fiber.Handler {
	secret := env.GetEnvStringOrDefault("ADMIN_API_SECRET", "")
	return func(c *fiber.Ctx) error {
		if secret == "" {
			log.Print(c).Warn("ADMIN_API_SECRET is unset, refusing admin request")
			return router.ResponseUnauthorized(c, "admin api is not configured")
		}
		if c.Get("X-Admin-Secret") != secret {
			return router.ResponseUnauthorized(c, "invalid admin secret")
		}
		return c.Next()
	}
}

// Health answers liveness probes and is the only unauthenticated route.
func (a *API) Health(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "ok", fiber.Map{
		"session": string(a.session.Phase()),
		"ready":   a.bot.IsReady(),
	})
}

func (a *API) Session(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "session state", fiber.Map{
		"phase":   string(a.session.Phase()),
		"ready":   a.bot.IsReady(),
		"bot_jid": a.bot.BotJID(),
	})
}

type blacklistEntryRes struct {
	Number    string    `json:"number"`
	AddedBy   string    `json:"added_by"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

func (a *API) ListBlacklist(c *fiber.Ctx) error {
	entries, err := a.blacklist.List(c.Context())
	if err != nil {
		log.Print(c).Error("Failed to list blacklist: " + err.Error())
		return router.ResponseInternalError(c, "failed to list blacklist")
	}
	out := make([]blacklistEntryRes, 0, len(entries))
	for _, e := range entries {
		out = append(out, blacklistEntryRes{
			Number:    e.UserID,
			AddedBy:   e.AddedBy,
			Reason:    e.Reason,
			CreatedAt: e.CreatedAt,
		})
	}
	return router.ResponseSuccessWithData(c, "blacklist", out)
}

type addBlacklistReq struct {
	Number string `json:"number"`
	Reason string `json:"reason"`
}

func (a *API) AddBlacklist(c *fiber.Ctx) error {
	var req addBlacklistReq
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "invalid request body")
	}
	if identity.Digits(req.Number) == "" {
		return router.ResponseBadRequest(c, "number is required")
	}

	already, err := a.blacklist.Add(c.Context(), req.Number, "admin-api", req.Reason)
	if err != nil {
		log.Print(c).Error("Failed to add blacklist entry: " + err.Error())
		return router.ResponseInternalError(c, "failed to add blacklist entry")
	}
	if already {
		return router.ResponseSuccess(c, "number was already blacklisted")
	}
	return router.ResponseCreated(c, "number blacklisted")
}

func (a *API) RemoveBlacklist(c *fiber.Ctx) error {
	number := c.Params("number")
	if identity.Digits(number) == "" {
		return router.ResponseBadRequest(c, "number is required")
	}

	present, err := a.blacklist.Remove(c.Context(), number)
	if err != nil {
		log.Print(c).Error("Failed to remove blacklist entry: " + err.Error())
		return router.ResponseInternalError(c, "failed to remove blacklist entry")
	}
	if !present {
		return router.ResponseNotFound(c, "number is not blacklisted")
	}
	return router.ResponseSuccess(c, "number removed from blacklist")
}

func (a *API) StrikeCount(c *fiber.Ctx) error {
	gjid := c.Params("gid")
	number := c.Params("number")
	if gjid == "" || identity.Digits(number) == "" {
		return router.ResponseBadRequest(c, "group id and number are required")
	}

	count, err := a.strikes.Count(c.Context(), identity.Normalize(number), gjid)
	if err != nil {
		log.Print(c).Error("Failed to read strike count: " + err.Error())
		return router.ResponseInternalError(c, "failed to read strike count")
	}
	return router.ResponseSuccessWithData(c, "strike count", fiber.Map{
		"number": identity.Digits(number),
		"group":  gjid,
		"count":  count,
	})
}

func (a *API) SweepAll(c *fiber.Ctx) error {
	if err := a.sweeper.SweepAll(c.Context()); err != nil {
		log.Print(c).Error("Sweep failed: " + err.Error())
		return router.ResponseInternalError(c, "sweep failed")
	}
	return router.ResponseSuccess(c, "sweep completed")
}

func (a *API) SweepGroup(c *fiber.Ctx) error {
	gjid := c.Params("gid")
	if gjid == "" {
		return router.ResponseBadRequest(c, "group id is required")
	}
	removed, err := a.sweeper.SweepGroup(c.Context(), gjid)
	if err != nil {
		log.Print(c).Error("Group sweep failed: " + err.Error())
		return router.ResponseInternalError(c, "group sweep failed")
	}
	return router.ResponseSuccessWithData(c, "group swept", fiber.Map{
		"removed": removed,
	})
}
