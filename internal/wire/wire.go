//go:build wireinject
// +build wireinject

package wire

import (
	"candidnotes/internal/chat"
	"candidnotes/internal/notif"
	"candidnotes/internal/presence"
	"candidnotes/internal/realtime"

	"github.com/google/wire"
)

var infraSet = wire.NewSet(
	ProvideConfig,
	ProvideLogger,
	ProvideStore,
	ProvidePublisher,
	realtime.NewRegistry,
	realtime.NewBroadcaster,
	ProvideTracker,
	ProvideTokenService,
	ProvideAuthenticator,
)

var serviceSet = wire.NewSet(
	ProvideNotificationService,
	ProvideMessagePipeline,
	ProvideTypingRelay,
	ProvideGateway,
	ProvideChecker,
	ProvideGRPCServer,
	notif.NewNotificationHandler,
	chat.NewHistoryHandler,
	presence.NewPresenceHandler,
)

func InitializeApplication() (*Application, error) {
	wire.Build(
		infraSet,
		serviceSet,
		wire.Struct(new(Application), "*"),
	)
	return &Application{}, nil
}
