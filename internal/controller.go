package internal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/dcrodman/lodestone/internal/core"
	"github.com/dcrodman/lodestone/internal/core/debug"
	"github.com/dcrodman/lodestone/internal/core/metrics"
	"github.com/dcrodman/lodestone/internal/handshake"
	"github.com/dcrodman/lodestone/internal/login"
	"github.com/dcrodman/lodestone/internal/session"
	"github.com/dcrodman/lodestone/internal/status"
)

const metricsShutdownTimeout = 5 * time.Second

// Controller is the main entrypoint for lodestone. It's responsible for initializing
// any shared resources (such as logging, metrics, and the player registry), defining
// the servers, and launching everything.
type Controller struct {
	Config *core.Config
	// Logger is created from Config when left nil.
	Logger *logrus.Logger
	// Handler runs each player's session after login. Defaults to an
	// IdleHandler that keeps the connection open until the client leaves.
	Handler session.Handler

	wg            sync.WaitGroup
	metrics       *metrics.Metrics
	registry      *session.Registry
	metricsServer *metrics.Server
	servers       []*frontend
}

// Start runs the server until ctx is cancelled and everything has shut down.
func (c *Controller) Start(ctx context.Context) error {
	if err := c.init(); err != nil {
		return err
	}
	defer c.Shutdown()

	// Start any debug utilities if we're configured to do so.
	if c.Config.Debugging.Enabled {
		debug.StartPprofServer(c.Logger, c.Config.Debugging.PprofPort)
	}
	if c.metricsServer != nil {
		c.metricsServer.Start()
	}

	return c.run(ctx)
}

// init sets up the shared resources and declares the servers without starting anything.
func (c *Controller) init() error {
	if c.Logger == nil {
		logger, err := core.NewLogger(c.Config)
		if err != nil {
			return fmt.Errorf("error initializing logger: %w", err)
		}
		c.Logger = logger
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	c.metrics = metrics.New(reg)
	if c.Config.Metrics.Enabled {
		c.metricsServer = metrics.NewServer(c.Config.MetricsAddress(), reg, c.Logger)
	}

	return c.declareServers()
}

// Set up all of the servers we want to run.
func (c *Controller) declareServers() error {
	policy, err := session.ParseDuplicatePolicy(c.Config.Login.DuplicatePolicy)
	if err != nil {
		return err
	}
	c.registry = session.NewRegistry(policy, c.Config.Login.EvictionTimeout, c.Logger.WithField("server", "REGISTRY"), c.metrics)

	handler := c.Handler
	if handler == nil {
		handler = &session.IdleHandler{Logger: c.Logger.WithField("server", "PLAY")}
	}

	loginServer, err := login.NewServer(c.Config, c.Logger.WithField("server", "LOGIN"), c.registry, handler, c.metrics)
	if err != nil {
		return err
	}

	c.servers = []*frontend{
		{
			Address: c.Config.ListenAddress(),
			Backend: &handshake.Router{
				Config:  c.Config,
				Logger:  c.Logger.WithField("server", "HANDSHAKE"),
				Metrics: c.metrics,
				Status: &status.Server{
					Config:  c.Config,
					Logger:  c.Logger.WithField("server", "STATUS"),
					Players: c.registry,
					Metrics: c.metrics,
				},
				Login: loginServer,
			},
		},
	}
	return nil
}

func (c *Controller) run(ctx context.Context) error {
	if err := c.startServers(ctx); err != nil {
		return err
	}
	c.wg.Wait()
	return nil
}

func (c *Controller) startServers(ctx context.Context) error {
	// Start all of our servers. Failure to initialize one of the registered servers is considered terminal.
	for _, server := range c.servers {
		server.Config = c.Config
		server.Logger = c.Logger
		server.Metrics = c.metrics

		if err := server.Start(ctx, &c.wg); err != nil {
			return fmt.Errorf("error starting %s server: %w", server.Backend.Identifier(), err)
		}
	}
	return nil
}

// Shutdown waits for the servers to exit and then releases the shared resources.
func (c *Controller) Shutdown() {
	c.wg.Wait()

	// Every session's connection belongs to a frontend, so this normally has
	// nothing left to do by now.
	if c.registry != nil {
		c.registry.Shutdown()
	}

	if c.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := c.metricsServer.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			c.Logger.Warnf("error shutting down metrics server: %v", err)
		}
	}
	c.Logger.Info("server stopped")
}
