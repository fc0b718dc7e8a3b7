package app

import (
	"context"
	"fmt"

	authService "github.com/allisson/propflow/internal/auth/service"
	"github.com/allisson/propflow/internal/http"
	"github.com/allisson/propflow/internal/system"
)

// AdminTokenService verifies admin bearer tokens against ADMIN_TOKEN_HASH.
func (c *Container) AdminTokenService() (*authService.AdminTokenService, error) {
	return lazy(c, "adminTokenService", func() (*authService.AdminTokenService, error) {
		return authService.NewAdminTokenService(c.config.AdminTokenHash)
	})
}

// EventSystem returns the event system lifecycle owner.
func (c *Container) EventSystem() (*system.EventSystem, error) {
	var err error
	c.eventSystemInit.Do(func() {
		var eventSystem *system.EventSystem
		eventSystem, err = c.initEventSystem()
		if err != nil {
			c.setInitError("eventSystem", err)
			return
		}
		c.mu.Lock()
		c.eventSystem = eventSystem
		c.mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("eventSystem"); storedErr != nil {
		return nil, storedErr
	}
	return c.eventSystem, nil
}

// HTTPServer returns the API server with its router configured. ctx bounds the
// background work of the router's middleware.
func (c *Container) HTTPServer(ctx context.Context) (*http.Server, error) {
	var err error
	c.httpServerInit.Do(func() {
		var server *http.Server
		server, err = c.initHTTPServer(ctx)
		if err != nil {
			c.setInitError("httpServer", err)
			return
		}
		c.mu.Lock()
		c.httpServer = server
		c.mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("httpServer"); storedErr != nil {
		return nil, storedErr
	}
	return c.httpServer, nil
}

// MetricsServer returns the Prometheus metrics server, or nil when metrics are disabled.
func (c *Container) MetricsServer() (*http.MetricsServer, error) {
	var err error
	c.metricsServerInit.Do(func() {
		provider, providerErr := c.MetricsProvider()
		if providerErr != nil {
			err = providerErr
			c.setInitError("metricsServer", err)
			return
		}
		if provider == nil {
			return
		}
		server := http.NewMetricsServer(c.config.ServerHost, c.config.MetricsPort, c.Logger(), provider)
		c.mu.Lock()
		c.metricsServer = server
		c.mu.Unlock()
	})
	if err != nil {
		return nil, err
	}
	if storedErr := c.initError("metricsServer"); storedErr != nil {
		return nil, storedErr
	}
	return c.metricsServer, nil
}

func (c *Container) initEventSystem() (*system.EventSystem, error) {
	bus, err := c.EventBus()
	if err != nil {
		return nil, fmt.Errorf("failed to get event bus for event system: %w", err)
	}
	queue, err := c.JobQueue()
	if err != nil {
		return nil, fmt.Errorf("failed to get job queue for event system: %w", err)
	}
	dispatcher, err := c.WebhookDispatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook dispatcher for event system: %w", err)
	}
	handlers, err := c.EventHandlers()
	if err != nil {
		return nil, fmt.Errorf("failed to get event handlers for event system: %w", err)
	}

	return system.NewEventSystem(
		system.Config{
			PollInterval:    c.config.JobPollInterval,
			ProcessWebhooks: true,
		},
		bus,
		queue,
		dispatcher,
		handlers,
		c.Logger(),
	), nil
}

func (c *Container) initHTTPServer(ctx context.Context) (*http.Server, error) {
	db, err := c.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database for http server: %w", err)
	}
	tokenService, err := c.AdminTokenService()
	if err != nil {
		return nil, err
	}
	eventHandler, err := c.EventHandler()
	if err != nil {
		return nil, err
	}
	webhookHandler, err := c.WebhookHandler()
	if err != nil {
		return nil, err
	}
	deadLetterHandler, err := c.DeadLetterHandler()
	if err != nil {
		return nil, err
	}
	provider, err := c.MetricsProvider()
	if err != nil {
		return nil, err
	}

	server := http.NewServer(db, c.config.ServerHost, c.config.ServerPort, c.Logger())
	server.SetupRouter(ctx, c.config, tokenService, eventHandler, webhookHandler, deadLetterHandler, provider)
	return server, nil
}
