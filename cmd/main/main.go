package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/damasnight/whatsapp-mod-bot/internal"
	"github.com/damasnight/whatsapp-mod-bot/pkg/env"
	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
)

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	app, err := internal.Startup(ctx)
	cancel()
	if err != nil {
		log.Print(nil).Fatal("Startup failed: " + err.Error())
	}

	scheduler := internal.Routines(app)

	web := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
	})
	web.Use(recover.New())
	internal.Routes(web, app)

	address := env.GetEnvStringOrDefault("ADMIN_LISTEN_ADDRESS", ":3000")
	go func() {
		log.Print(nil).Info("Admin API listening on " + address)
		if err := web.Listen(address); err != nil {
			log.Print(nil).Fatal("Admin API stopped: " + err.Error())
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Print(nil).Info("Shutting down")
	scheduler.Stop()
	if err := web.Shutdown(); err != nil {
		log.Print(nil).Error("Admin API shutdown failed: " + err.Error())
	}
	app.Shutdown()
	log.Print(nil).Info("Bye")
}
