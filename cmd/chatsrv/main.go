package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/wtask/chatrelay/internal/chat"
	"github.com/wtask/chatrelay/internal/chat/broker"
	"github.com/wtask/chatrelay/internal/chat/transport"
)

func main() {
	config, err := parseConfig(os.Args[1:], os.Getenv, os.Stderr)
	if errors.Is(err, flag.ErrHelp) {
		os.Exit(0)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s (v%s) error:\n\n\t%s\n", BinaryName, Version, err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: config.LogLevel})).
		With("app", BinaryName, "version", Version.String())
	if err := run(config, logger); err != nil {
		logger.Error("chat server failed", "error", err)
		os.Exit(1)
	}
}

func run(config Configuration, logger *slog.Logger) error {
	logger.Info("started with config", "config", fmt.Sprintf("%+v", config))

	server, err := chat.NewServer(
		chat.WithLogger(logger),
		chat.WithHistoryGreets(config.HistoryGreets),
		chat.WithMaxClients(config.MaxClients),
		chat.WithSessionOptions(
			broker.WithBufferSize(config.BufferSize),
			broker.WithOutboxSize(config.OutboxSize),
			broker.WithWriteTimeout(config.WriteTimeout),
		),
	)
	if err != nil {
		return fmt.Errorf("can't build chat server: %w", err)
	}

	listeners := []transport.Listener{}
	closeAll := func() {
		for _, l := range listeners {
			l.Close()
		}
	}
	tcp, err := transport.Listen("tcp", config.TCPAddress())
	if err != nil {
		return err
	}
	listeners = append(listeners, tcp)
	if config.WebSocketAddress != "" {
		ws, err := transport.ListenWebSocket(config.WebSocketAddress, config.WebSocketPath)
		if err != nil {
			closeAll()
			return err
		}
		listeners = append(listeners, ws)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	group, ctx := errgroup.WithContext(ctx)
	for _, l := range listeners {
		l := l
		group.Go(func() error {
			if err := server.Serve(l); !errors.Is(err, chat.ErrServerStopped) {
				return err
			}
			return nil
		})
	}
	group.Go(func() error {
		<-ctx.Done()
		logger.Info("got stop signal")
		return server.Stop(config.ShutdownTimeout)
	})
	logger.Info("chat server has started, press Ctrl-C to stop")

	if err := group.Wait(); err != nil {
		return err
	}
	logger.Info("chat server stopped, bye")
	return nil
}
