package rider

import (
	"fmt"

	"github.com/redis/go-redis/v9"

	"deliveryBack/internal/rider/presence"
	"deliveryBack/internal/rider/push"
	"deliveryBack/internal/rider/statement"
)

// Logger is the minimal logging interface required by the rider module.
type Logger interface {
	Infof(string, ...interface{})
	Errorf(string, ...interface{})
}

// Deps aggregates runtime dependencies for the rider module. Redis, Push and
// Uploader are optional; the features backed by them are disabled when nil.
type Deps struct {
	Store    Store
	Redis    *redis.Client
	Logger   Logger
	Config   Config
	Push     push.Sender
	Uploader statement.Uploader
	Clock    presence.Clock
}

// Validate ensures that the deps struct contains the essentials before bootstrapping services.
func (d *Deps) Validate() error {
	if d == nil {
		return fmt.Errorf("rider deps are nil")
	}
	if d.Store == nil {
		return fmt.Errorf("rider deps Store is required")
	}
	if d.Logger == nil {
		return fmt.Errorf("rider deps Logger is required")
	}
	return d.Config.Validate()
}
