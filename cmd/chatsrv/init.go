package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/wtask/chatrelay/pkg/semver"
)

type (
	// Configuration - server configuration
	Configuration struct {
		// IPAddress - bind the address
		IPAddress string
		// Port - bind the port
		Port uint
		// WebSocketAddress - optional bind address of WebSocket listener
		WebSocketAddress string
		// WebSocketPath - WebSocket upgrade path
		WebSocketPath string
		// BufferSize - max bytes taken by single read
		BufferSize int
		// OutboxSize - queue length of outgoing messages per client
		OutboxSize int
		// WriteTimeout - deadline for single write to client
		WriteTimeout time.Duration
		// HistoryGreets - num of messages from chat history which is pushed to newly connected client
		HistoryGreets int
		// MaxClients - max num of simultaneously connected clients, 0 is unlimited
		MaxClients int
		// ShutdownTimeout - bound of graceful stop
		ShutdownTimeout time.Duration
		// LogLevel - minimal level of log records
		LogLevel slog.Level
	}
)

const envPrefix = "CHATSRV_"

var (
	// BinaryName - name of run application binary
	BinaryName = strings.TrimSuffix(filepath.Base(os.Args[0]), filepath.Ext(os.Args[0]))

	// Version - app version fingerprint
	Version = semver.V{Major: 1, Minor: 0, Patch: 0}.WithBuild(vcsBuild()...)
)

// vcsBuild - short revision of the binary source if Go toolchain has stamped it.
func vcsBuild() []string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	meta := []string{}
	for _, setting := range info.Settings {
		switch {
		case setting.Key == "vcs.revision" && len(setting.Value) >= 7:
			meta = append(meta, setting.Value[:7])
		case setting.Key == "vcs.modified" && setting.Value == "true":
			meta = append(meta, "dirty")
		}
	}
	return meta
}

// DefaultConfig - configuration used when neither flags nor environment are given.
func DefaultConfig() Configuration {
	return Configuration{
		IPAddress:       "127.0.0.1",
		Port:            9999,
		WebSocketPath:   "/ws",
		BufferSize:      1024,
		OutboxSize:      64,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		LogLevel:        slog.LevelInfo,
	}
}

// TCPAddress - host:port of TCP listener.
func (c Configuration) TCPAddress() string {
	return net.JoinHostPort(c.IPAddress, strconv.FormatUint(uint64(c.Port), 10))
}

// parseConfig - builds configuration from command line arguments (without program name)
// and environment. Returns flag.ErrHelp when usage is requested.
func parseConfig(args []string, getenv func(string) string, out io.Writer) (Configuration, error) {
	config := DefaultConfig()
	flags := flag.NewFlagSet(BinaryName, flag.ContinueOnError)
	flags.SetOutput(out)
	flags.Usage = func() {
		fmt.Fprintf(out, "Launch broadcast chat server over TCP (v%s)\n\n\t%s [options]\nOptions:\n\n", Version, BinaryName)
		flags.PrintDefaults()
		fmt.Fprintf(out, "\nEvery option may be set with %s<NAME> environment variable, e.g. %sPORT.\n", envPrefix, envPrefix)
	}

	level := config.LogLevel.String()
	flags.StringVar(&config.IPAddress, "ip", config.IPAddress, "Listen address")
	flags.UintVar(&config.Port, "port", config.Port, "Listen port")
	flags.StringVar(&config.WebSocketAddress, "ws", "", "Optional WebSocket listen address, host:port")
	flags.StringVar(&config.WebSocketPath, "ws-path", config.WebSocketPath, "WebSocket upgrade path")
	flags.IntVar(&config.BufferSize, "buffer", config.BufferSize, "Max bytes of single read from client, longer input is split")
	flags.IntVar(&config.OutboxSize, "outbox", config.OutboxSize, "Num of outgoing messages queued per client")
	flags.DurationVar(&config.WriteTimeout, "write-timeout", config.WriteTimeout, "Deadline for single write to client")
	flags.IntVar(&config.HistoryGreets, "history-greets", 0, "Num of messages from chat history which is pushed to newly connected client")
	flags.IntVar(&config.MaxClients, "max-clients", 0, "Max num of connected clients, 0 is unlimited")
	flags.DurationVar(&config.ShutdownTimeout, "shutdown-timeout", config.ShutdownTimeout, "Max duration of graceful stop")
	flags.StringVar(&level, "log-level", level, "Log level: debug, info, warn or error")

	if err := flags.Parse(args); err != nil {
		return config, err
	}
	if flags.NArg() > 0 {
		return config, fmt.Errorf("unexpected arguments: %s", strings.Join(flags.Args(), " "))
	}

	explicit := map[string]bool{}
	flags.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
	var err error
	flags.VisitAll(func(f *flag.Flag) {
		if err != nil || explicit[f.Name] {
			return
		}
		name := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		value := getenv(name)
		if value == "" {
			return
		}
		if e := f.Value.Set(value); e != nil {
			err = fmt.Errorf("invalid %s value %q: %w", name, value, e)
		}
	})
	if err != nil {
		return config, err
	}

	if err := config.LogLevel.UnmarshalText([]byte(level)); err != nil {
		return config, fmt.Errorf("log-level: %w", err)
	}
	return config, config.validate()
}

func (c Configuration) validate() error {
	switch {
	case c.Port > 65535:
		return errors.New("port value should be in range 0-65535")
	case c.BufferSize < 1:
		return errors.New("buffer value should be greater 0")
	case c.OutboxSize < 1:
		return errors.New("outbox value should be greater 0")
	case c.WriteTimeout <= 0:
		return errors.New("write-timeout value should be greater 0")
	case c.HistoryGreets < 0:
		return errors.New("history-greets value should be greater or equal 0")
	case c.MaxClients < 0:
		return errors.New("max-clients value should be greater or equal 0")
	case c.ShutdownTimeout <= 0:
		return errors.New("shutdown-timeout value should be greater 0")
	case c.WebSocketAddress != "" && !strings.HasPrefix(c.WebSocketPath, "/"):
		return errors.New("ws-path value should start with /")
	}
	return nil
}
