package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dcrodman/lodestone/internal"
	"github.com/dcrodman/lodestone/internal/core"
)

// Give up on a graceful shutdown after this long.
const shutdownTimeout = 30 * time.Second

func ServerCommand(cmd *cobra.Command, _ []string) error {
	config, err := core.LoadConfig(ConfigFlag)
	if err != nil {
		return err
	}
	fmt.Println("using configuration directory:", ConfigFlag)

	// Bind the Controller to one top-level server context so that we can shut down cleanly.
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Register a SIGTERM handler so that Ctrl-C will shut the servers down gracefully.
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go exitHandler(cancel, c)

	// Start up the controller to handle all of the resources and server init.
	controller := &internal.Controller{
		Config: config,
	}
	if err := controller.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	fmt.Println("shut down")
	return nil
}

func exitHandler(cancelFn func(), c chan os.Signal) {
	<-c
	fmt.Println("waiting to shut down gracefully...")
	cancelFn()

	// A second signal, or a shutdown that never finishes, exits immediately.
	select {
	case <-c:
	case <-time.After(shutdownTimeout):
		fmt.Println("timed out waiting for shutdown")
	}
	os.Exit(1)
}
