package client

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dan-strohschein/aql-driver/protocol"
	"github.com/dan-strohschein/aql-driver/transport"
)

// HookContext contains information about the request being executed.
// This is passed to hooks to allow inspection and modification.
type HookContext struct {
	// Request is the request about to be sent. Before hooks may modify it.
	Request *transport.Request

	// Operation names the API call, e.g. "cursor.create" or "collection.get"
	Operation string

	// StartTime is when the request execution began
	StartTime time.Time

	// Metadata allows hooks to store arbitrary data for passing between Before/After
	Metadata map[string]interface{}

	// TraceID is the cursor trace id, or a fresh id for requests outside a cursor
	TraceID string

	// StatusCode is the HTTP status of the response (available in After hook)
	StatusCode int

	// Error stores the transport error or the decoded server error of a
	// non-success response (available in After hook)
	Error error

	// Duration is the execution time (available in After hook)
	Duration time.Duration
}

// Hook is the interface that all hooks must implement.
// Hooks can inspect, modify, or abort request execution.
type Hook interface {
	// Name returns the unique name of this hook
	Name() string

	// Before is called before the request is sent.
	// Returning an error aborts the request and returns the error.
	Before(ctx context.Context, hookCtx *HookContext) error

	// After is called after the request completes (even if it failed).
	// Returning an error replaces any existing error.
	After(ctx context.Context, hookCtx *HookContext) error
}

// hookEntry wraps a Hook with its registration order for stable iteration.
type hookEntry struct {
	hook  Hook
	order int
}

// RegisterHook adds a hook to the client's hook chain.
// Hooks are executed in FIFO order (first registered, first executed).
// If a hook with the same name already exists, it is replaced.
func (c *Client) RegisterHook(hook Hook) {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()

	for i, entry := range c.hooks {
		if entry.hook.Name() == hook.Name() {
			c.hooks[i].hook = hook
			c.logger.Info("hook replaced", String("hook", hook.Name()))
			return
		}
	}

	order := len(c.hooks)
	c.hooks = append(c.hooks, hookEntry{hook: hook, order: order})
	c.logger.Info("hook registered", String("hook", hook.Name()), Int("order", order))
}

// UnregisterHook removes a hook by name.
// Returns true if the hook was found and removed, false otherwise.
func (c *Client) UnregisterHook(name string) bool {
	c.hooksMu.Lock()
	defer c.hooksMu.Unlock()

	for i, entry := range c.hooks {
		if entry.hook.Name() == name {
			c.hooks = append(c.hooks[:i], c.hooks[i+1:]...)
			c.logger.Info("hook unregistered", String("hook", name))
			return true
		}
	}

	return false
}

// GetHooks returns the names of all registered hooks in execution order.
func (c *Client) GetHooks() []string {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()

	names := make([]string, len(c.hooks))
	for i, entry := range c.hooks {
		names[i] = entry.hook.Name()
	}
	return names
}

func (c *Client) snapshotHooks() []Hook {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()

	hooks := make([]Hook, len(c.hooks))
	for i, entry := range c.hooks {
		hooks[i] = entry.hook
	}
	return hooks
}

// executeBeforeHooks runs all Before hooks in order.
// If any hook returns an error, execution stops and the error is returned.
func (c *Client) executeBeforeHooks(ctx context.Context, hookCtx *HookContext) error {
	for _, hook := range c.snapshotHooks() {
		if err := hook.Before(ctx, hookCtx); err != nil {
			c.logger.Debug("hook aborted request",
				String("hook", hook.Name()),
				String("operation", hookCtx.Operation),
				Error("error", err))
			return err
		}
	}

	return nil
}

// executeAfterHooks runs all After hooks in order.
// All hooks are executed even if one returns an error.
// The last error returned (if any) is returned.
func (c *Client) executeAfterHooks(ctx context.Context, hookCtx *HookContext) error {
	var lastErr error
	for _, hook := range c.snapshotHooks() {
		if err := hook.After(ctx, hookCtx); err != nil {
			c.logger.Debug("hook returned error in After",
				String("hook", hook.Name()),
				String("operation", hookCtx.Operation),
				Error("error", err))
			lastErr = err
		}
	}

	return lastErr
}

// inferOperation names the API call a request performs.
func inferOperation(req *transport.Request) string {
	path := req.Path
	family := ""
	switch {
	case strings.HasPrefix(path, protocol.PathCursor):
		family = "cursor"
	case strings.HasPrefix(path, protocol.PathExport):
		family = "export"
	case strings.HasPrefix(path, protocol.PathCollection):
		return "collection.get"
	case path == protocol.PathVersion:
		return "version"
	default:
		return "unknown"
	}

	switch req.Method {
	case http.MethodPost:
		return family + ".create"
	case http.MethodPut:
		return family + ".fetch"
	case http.MethodDelete:
		return family + ".delete"
	default:
		return family + ".unknown"
	}
}
