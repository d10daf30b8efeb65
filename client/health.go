package client

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// HealthMonitor periodically pings the server and reports when consecutive
// failures reach a threshold.
type HealthMonitor struct {
	client           *Client
	interval         time.Duration
	failureThreshold int
	failureCount     atomic.Int32
	healthy          atomic.Bool
	onUnhealthy      func(err error)
	stopOnce         sync.Once
	stopCh           chan struct{}
	wg               sync.WaitGroup
	logger           Logger
}

// NewHealthMonitor creates a health monitor for the client. onUnhealthy,
// if set, is called each time the failure threshold is reached.
func NewHealthMonitor(client *Client, interval time.Duration, threshold int, onUnhealthy func(err error)) *HealthMonitor {
	if threshold < 1 {
		threshold = 1
	}
	h := &HealthMonitor{
		client:           client,
		interval:         interval,
		failureThreshold: threshold,
		onUnhealthy:      onUnhealthy,
		stopCh:           make(chan struct{}),
		logger:           client.logger.WithFields(String("component", "health_monitor")),
	}
	h.healthy.Store(true)
	return h
}

// Start begins the health check monitoring in a background goroutine.
func (h *HealthMonitor) Start() {
	h.wg.Add(1)
	go h.monitorLoop()
	h.logger.Info("health monitor started", Duration("interval", h.interval))
}

// Stop stops the health monitor and waits for the loop to exit. It is safe
// to call more than once.
func (h *HealthMonitor) Stop() {
	h.stopOnce.Do(func() {
		close(h.stopCh)
		h.wg.Wait()
		h.logger.Info("health monitor stopped")
	})
}

// Healthy reports whether the last check succeeded or failures are still
// below the threshold.
func (h *HealthMonitor) Healthy() bool {
	return h.healthy.Load()
}

func (h *HealthMonitor) monitorLoop() {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stopCh:
			return

		case <-ticker.C:
			if h.client.IsClosed() {
				continue
			}
			h.check()
		}
	}
}

// check runs one ping and updates the failure count.
func (h *HealthMonitor) check() {
	ctx, cancel := context.WithTimeout(context.Background(), h.client.opts.timeout())
	defer cancel()

	err := h.client.Ping(ctx)
	if err == nil {
		h.healthy.Store(true)
		if prev := h.failureCount.Swap(0); prev > 0 {
			h.logger.Info("health check recovered", Int("previousFailures", int(prev)))
		}
		return
	}

	failures := int(h.failureCount.Add(1))
	h.logger.Warn("health check failed",
		Error("error", err),
		Int("failureCount", failures))

	if failures >= h.failureThreshold {
		h.healthy.Store(false)
		h.logger.Error("health check failure threshold exceeded", Int("threshold", h.failureThreshold))
		h.failureCount.Store(0)
		if h.onUnhealthy != nil {
			h.onUnhealthy(err)
		}
	}
}
