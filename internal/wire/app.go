// Package wire assembles the application graph.
package wire

import (
	"context"
	"errors"

	"candidnotes/internal/chat"
	"candidnotes/internal/common"
	"candidnotes/internal/config"
	"candidnotes/internal/health"
	"candidnotes/internal/notif"
	"candidnotes/internal/presence"
	"candidnotes/internal/realtime"
	"candidnotes/internal/ws"

	"github.com/sirupsen/logrus"
)

type Application struct {
	Config        *config.Config
	Logger        *logrus.Logger
	Store         common.Store
	Publisher     common.Publisher
	Registry      *realtime.Registry
	Broadcaster   *realtime.Broadcaster
	Tracker       presence.Tracker
	Auth          common.Authenticator
	Tokens        *common.TokenService
	Notifications *notif.NotificationService
	Pipeline      *chat.MessagePipeline
	Typing        *presence.TypingRelay
	Gateway       *ws.Gateway
	Health        *health.Checker
	GRPC          *health.GRPCServer

	NotificationHandler *notif.NotificationHandler
	HistoryHandler      *chat.HistoryHandler
	PresenceHandler     *presence.PresenceHandler
}

// Shutdown closes live connections first so no new work arrives, drains
// the fan-out queue, then releases the backends.
func (app *Application) Shutdown(ctx context.Context) error {
	var errs []error

	app.Registry.Close()
	app.Typing.Close()

	if err := app.Notifications.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}

	app.GRPC.Stop()

	if err := app.Publisher.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := app.Tracker.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := app.Store.Close(ctx); err != nil {
		errs = append(errs, err)
	}

	app.Logger.Info("Application shutdown complete")
	return errors.Join(errs...)
}
