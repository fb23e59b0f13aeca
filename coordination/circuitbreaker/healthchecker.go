package circuitbreaker

import (
	"context"
	"errors"
	"maps"
	"sync"
	"time"

	"github.com/LerianStudio/lib-coordination/coordination/log"
)

var (
	// ErrInvalidHealthCheckInterval indicates that the health check interval must be positive
	ErrInvalidHealthCheckInterval = errors.New("circuitbreaker: health check interval must be positive")
	// ErrInvalidHealthCheckTimeout indicates that the health check timeout must be positive
	ErrInvalidHealthCheckTimeout = errors.New("circuitbreaker: health check timeout must be positive")
)

type healthChecker struct {
	manager        Manager
	checks         map[string]HealthCheckFunc
	interval       time.Duration
	checkTimeout   time.Duration
	logger         log.Logger
	stopOnce       sync.Once
	stopChan       chan struct{}
	immediateCheck chan string
	wg             sync.WaitGroup
	mu             sync.RWMutex
}

// NewHealthChecker creates a health checker that probes every interval, giving
// each probe checkTimeout to answer.
//
//nolint:ireturn
func NewHealthChecker(manager Manager, interval, checkTimeout time.Duration, logger log.Logger) (HealthChecker, error) {
	if manager == nil {
		return nil, ErrNilManager
	}

	if logger == nil {
		return nil, ErrNilLogger
	}

	if interval <= 0 {
		return nil, ErrInvalidHealthCheckInterval
	}

	if checkTimeout <= 0 {
		return nil, ErrInvalidHealthCheckTimeout
	}

	return &healthChecker{
		manager:        manager,
		checks:         make(map[string]HealthCheckFunc),
		interval:       interval,
		checkTimeout:   checkTimeout,
		logger:         logger,
		stopChan:       make(chan struct{}),
		immediateCheck: make(chan string, 10),
	}, nil
}

func (hc *healthChecker) Register(name string, fn HealthCheckFunc) {
	hc.mu.Lock()
	defer hc.mu.Unlock()

	hc.checks[name] = fn
}

func (hc *healthChecker) Start() {
	hc.wg.Add(1)

	go hc.loop()

	hc.logger.Log(context.Background(), log.LevelInfo, "health checker started", log.Duration("interval", hc.interval))
}

func (hc *healthChecker) Stop() {
	hc.stopOnce.Do(func() { close(hc.stopChan) })
	hc.wg.Wait()
}

func (hc *healthChecker) loop() {
	defer hc.wg.Done()

	ticker := time.NewTicker(hc.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			hc.checkAll()
		case name := <-hc.immediateCheck:
			hc.check(name)
		case <-hc.stopChan:
			return
		}
	}
}

func (hc *healthChecker) checkAll() {
	hc.mu.RLock()
	checks := make(map[string]HealthCheckFunc, len(hc.checks))
	maps.Copy(checks, hc.checks)
	hc.mu.RUnlock()

	for name := range checks {
		hc.check(name)
	}
}

func (hc *healthChecker) check(name string) {
	hc.mu.RLock()
	fn, exists := hc.checks[name]
	hc.mu.RUnlock()

	if !exists || hc.manager.IsHealthy(name) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), hc.checkTimeout)
	err := fn(ctx)

	cancel()

	if err != nil {
		hc.logger.Log(ctx, log.LevelWarn, "dependency still unhealthy", log.String("breaker", name), log.Err(err))
		return
	}

	hc.logger.Log(ctx, log.LevelInfo, "dependency recovered, resetting breaker", log.String("breaker", name))
	hc.manager.Reset(name)
}

func (hc *healthChecker) GetHealthStatus() map[string]string {
	hc.mu.RLock()
	defer hc.mu.RUnlock()

	status := make(map[string]string, len(hc.checks))
	for name := range hc.checks {
		status[name] = string(hc.manager.GetState(name))
	}

	return status
}

// OnStateChange schedules an immediate probe when a breaker opens.
func (hc *healthChecker) OnStateChange(name string, _ State, to State) {
	if to != StateOpen {
		return
	}

	select {
	case hc.immediateCheck <- name:
	default:
		hc.logger.Log(context.Background(), log.LevelWarn, "immediate health check queue full", log.String("breaker", name))
	}
}
