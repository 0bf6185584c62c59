package wire

import (
	"context"
	"os"
	"testing"

	"candidnotes/internal/events"
	"candidnotes/internal/memstore"
	"candidnotes/internal/presence"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func memoryEnv(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("JWT_SECRET", "wire-test")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("NATS_URL", "")
	t.Setenv("LOG_LEVEL", "error")
}

func TestInitializeApplication_Memory(t *testing.T) {
	memoryEnv(t)

	app, err := InitializeApplication()
	require.NoError(t, err)

	assert.IsType(t, &memstore.Store{}, app.Store)
	assert.IsType(t, events.Noop{}, app.Publisher)
	assert.IsType(t, &presence.LocalTracker{}, app.Tracker)
	assert.NotNil(t, app.Gateway)
	assert.NotNil(t, app.NotificationHandler)

	require.NoError(t, app.Shutdown(context.Background()))
}

func TestInitializeApplication_RejectsUnknownDriver(t *testing.T) {
	memoryEnv(t)
	t.Setenv("STORE_DRIVER", "sqlite")

	_, err := InitializeApplication()
	assert.Error(t, err)
}

func TestInitializeApplication_RequiresSecret(t *testing.T) {
	memoryEnv(t)
	t.Setenv("JWT_SECRET", "")
	require.NoError(t, os.Unsetenv("JWT_SECRET"))

	_, err := InitializeApplication()
	assert.Error(t, err)
}
