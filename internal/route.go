package internal

import (
	"github.com/gofiber/fiber/v2"

	"github.com/damasnight/whatsapp-mod-bot/internal/admin"
	"github.com/damasnight/whatsapp-mod-bot/pkg/router"
)

// Routes mounts the admin API. Everything except the health probe sits
// behind the shared-secret gate.
func Routes(web *fiber.App, app *App) {
	web.Use(router.RequestID())

	web.Get("/health", app.API.Health)

	authed := web.Group("/", admin.Auth())
	authed.Get("/session", app.API.Session)
	authed.Get("/blacklist", app.API.ListBlacklist)
	authed.Post("/blacklist", app.API.AddBlacklist)
	authed.Delete("/blacklist/:number", app.API.RemoveBlacklist)
	authed.Post("/sweep", app.API.SweepAll)
	authed.Post("/groups/:gid/sweep", app.API.SweepGroup)
	authed.Get("/groups/:gid/strikes/:number", app.API.StrikeCount)
}
