package internal

import (
	"context"

	"github.com/robfig/cron/v3"

	"github.com/damasnight/whatsapp-mod-bot/pkg/env"
	"github.com/damasnight/whatsapp-mod-bot/pkg/log"
)

// Routines schedules the background jobs. The blacklist sweep runs every
// five minutes so members banned while the bot was offline never linger.
func Routines(app *App) *cron.Cron {
	scheduler := cron.New(
		cron.WithSeconds(),
		cron.WithChain(cron.Recover(cron.DefaultLogger)),
	)

	schedule := env.GetEnvStringOrDefault("SWEEP_SCHEDULE", "0 */5 * * * *")
	_, err := scheduler.AddFunc(schedule, func() {
		if err := app.Sweeper.SweepAll(context.Background()); err != nil {
			log.Print(nil).Error("Scheduled sweep failed: " + err.Error())
		}
	})
	if err != nil {
		log.Print(nil).Fatal("Invalid sweep schedule: " + err.Error())
	}

	scheduler.Start()
	return scheduler
}
