package redis

import (
	"errors"

	"github.com/LerianStudio/lib-coordination/coordination"
	"github.com/LerianStudio/lib-coordination/coordination/circuitbreaker"
)

// DefaultBreakerName names the breaker shared by Store and Locker.
const DefaultBreakerName = "redis"

// guard runs store calls through an optional circuit breaker. Rejections by an
// open breaker are tagged transient so retry predicates treat them as such.
type guard struct {
	breaker circuitbreaker.Manager
	name    string
}

func newGuard(manager circuitbreaker.Manager, name string, config circuitbreaker.Config) guard {
	if manager == nil {
		return guard{}
	}

	if name == "" {
		name = DefaultBreakerName
	}

	manager.GetOrCreate(name, config)

	return guard{breaker: manager, name: name}
}

func (g guard) run(fn func() error) error {
	if g.breaker == nil {
		return fn()
	}

	_, err := g.breaker.Execute(g.name, func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, circuitbreaker.ErrUnavailable) {
		return coordination.Transient(err)
	}

	return err
}
