// Copyright 2018-present Network Optix, Inc. Licensed under MPL 2.0: www.mozilla.org/MPL/2.0/
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tcmutarget/pkg/api"
	"tcmutarget/pkg/config"
	"tcmutarget/pkg/logger"
	"tcmutarget/pkg/target"
	"tcmutarget/pkg/tcmu/loopback"
)

var (
	configPath string
	logLevel   string
	socketPath string
	storageDir string
)

var rootCmd = &cobra.Command{
	Use:   "tcmutarget",
	Short: "Userspace SCSI target serving file backed block devices",
}

var serveCmd = &cobra.Command{
	Use:           "serve",
	Short:         "Attach the configured devices and serve commands until interrupted",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			settings.LogLevel = logLevel
		}
		if cmd.Flags().Changed("socket") {
			settings.SocketPath = socketPath
		}
		if cmd.Flags().Changed("storage-dir") {
			settings.StorageDir = storageDir
		}
		if err := settings.Validate(); err != nil {
			return err
		}
		logger.SetLoggingConfig(settings.Level())

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, settings)
	},
}

func serve(ctx context.Context, settings *config.Config) error {
	log := logger.GetLogger()
	stores, err := settings.Stores()
	if err != nil {
		return err
	}
	loop, err := target.NewLoop(settings.Options(), stores)
	if err != nil {
		return err
	}
	defer loop.Close()
	handler := loop.Handler(
		settings.Handler.Name,
		settings.Handler.Subtype,
		settings.Handler.Description,
		stores.CheckConfig,
	)
	framework, err := loopback.Initialize(handler, settings.DeviceConfigs()...)
	if err != nil {
		return err
	}
	defer framework.Close()
	log.Infof("handler %s serves subtype %s with %d devices", handler.Name, handler.Subtype, loop.Registry().Len())

	server := api.NewApiServer(api.NewDemonApiHandler(framework, loop.Registry()), settings.SocketPath)
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return loop.Run(ctx, framework)
	})
	group.Go(func() error {
		return server.Run(ctx)
	})
	err = group.Wait()
	var pollErr *target.ErrPoll
	if errors.As(err, &pollErr) {
		log.Errorf("event loop failed: %s", pollErr)
	}
	return err
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")
	serveCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (error, warning, info, debug)")
	serveCmd.Flags().StringVar(&socketPath, "socket", config.DefaultSocketPath, "Control socket path")
	serveCmd.Flags().StringVar(&storageDir, "storage-dir", config.DefaultStorageDir, "Directory of images with an empty config path")
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
