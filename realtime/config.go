package realtime

import (
	"time"

	"go.uber.org/zap"
)

// TokenProvider returns the current bearer token. It is called at every
// (re)connection attempt so a refreshed token is always picked up; the client
// never caches its result.
type TokenProvider func() string

// Config controls how the SDK connects to a hub endpoint.
type Config struct {
	HubURL        string
	TokenProvider TokenProvider

	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration

	// Reconnect backoff bounds. The delay doubles from initial up to max and
	// resets after every successful (re)connect.
	ReconnectInitialDelay time.Duration
	ReconnectMaxDelay     time.Duration

	Logger *zap.Logger
}

// DefaultConfig returns sensible defaults. Set a timeout to 0 to disable it.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:      10 * time.Second,
		ReadTimeout:           0, // hub pushes are sparse; no read deadline by default
		WriteTimeout:          10 * time.Second,
		ReconnectInitialDelay: time.Second,
		ReconnectMaxDelay:     60 * time.Second,
	}
}

func (c *Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}
