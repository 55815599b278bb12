package log

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

var logger = logrus.New()

func init() {
	logger.Formatter = &logrus.TextFormatter{
		TimestampFormat: time.RFC3339,
		FullTimestamp:   true,
		DisableColors:   false,
		ForceColors:     true,
	}
}

// Print returns an entry enriched with request fields when called from an
// HTTP handler. Pass nil outside of the admin API.
func Print(c *fiber.Ctx) *logrus.Entry {
	if c == nil {
		return logger.WithFields(logrus.Fields{})
	}

	remoteIP := c.IP()
	if v := c.Locals("remote_ip"); v != nil {
		if ip, ok := v.(string); ok && ip != "" {
			remoteIP = ip
		}
	}
	return logger.WithFields(logrus.Fields{
		"remote_ip": remoteIP,
		"method":    c.Method(),
		"uri":       c.OriginalURL(),
	})
}

// ModOp scopes an entry to one moderation policy acting on one group.
func ModOp(groupJID string, policy string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"group":  groupJID,
		"policy": policy,
	})
}

// Session scopes an entry to the connection lifecycle.
func Session(phase string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"session_phase": phase,
	})
}

// Sweep scopes an entry to the blacklist reconciliation job.
func Sweep(groupJID string) *logrus.Entry {
	if groupJID == "" {
		return logger.WithField("job", "blacklist_sweep")
	}
	return logger.WithFields(logrus.Fields{
		"job":   "blacklist_sweep",
		"group": groupJID,
	})
}
