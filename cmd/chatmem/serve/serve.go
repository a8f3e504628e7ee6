// Package servecmder provides the serve command that runs the chatmem API.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/chatmem/api"
	"github.com/papercomputeco/chatmem/api/mcp"
	"github.com/papercomputeco/chatmem/pkg/chat"
	"github.com/papercomputeco/chatmem/pkg/cliui"
	"github.com/papercomputeco/chatmem/pkg/config"
	"github.com/papercomputeco/chatmem/pkg/dotdir"
	"github.com/papercomputeco/chatmem/pkg/eventstream"
	"github.com/papercomputeco/chatmem/pkg/eventstream/kafka"
	"github.com/papercomputeco/chatmem/pkg/eventstream/nop"
	"github.com/papercomputeco/chatmem/pkg/generation"
	"github.com/papercomputeco/chatmem/pkg/generation/backends"
	"github.com/papercomputeco/chatmem/pkg/logger"
	"github.com/papercomputeco/chatmem/pkg/prompt"
	"github.com/papercomputeco/chatmem/pkg/storage"
	"github.com/papercomputeco/chatmem/pkg/worker"
)

// shutdownTimeout bounds how long shutdown waits for an in-flight generation.
const shutdownTimeout = 2 * time.Minute

type serveCommander struct {
	cfg       *config.Config
	configDir string
	debug     bool

	// flag targets; the effective values are read back from viper
	listen        string
	logFile       string
	storage       string
	sqlitePath    string
	postgresDSN   string
	libsqlURL     string
	provider      string
	target        string
	model         string
	maxTokens     uint
	maxPairs      uint
	contextTokens uint
	enforceLimits bool
	kafkaBrokers  string
	kafkaTopic    string

	logger *slog.Logger
}

var serveFlags = []string{
	config.FlagListen,
	config.FlagLogFile,
	config.FlagStorage,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagLibSQLURL,
	config.FlagProvider,
	config.FlagTarget,
	config.FlagModel,
	config.FlagMaxTokens,
	config.FlagMaxPairs,
	config.FlagContextTokens,
	config.FlagEnforceLimits,
	config.FlagKafkaBrokers,
	config.FlagKafkaTopic,
}

const serveLongDesc string = `Run the chatmem API server.

The server owns the generation backend and admits one generation at a time;
a request that arrives while the model is busy is rejected with 503 rather
than queued. Conversations and learned memory are kept in the configured
storage backend.

Configuration is layered: flags, then CHATMEM_ environment variables, then
config.toml in the .chatmem/ directory, then defaults.

Examples:
  chatmem serve
  chatmem serve --provider ollama --target http://localhost:11434 --model llama3.2
  chatmem serve --storage postgres --postgres-dsn postgres://localhost/chatmem
  chatmem serve --kafka-brokers localhost:9092`

const serveShortDesc string = "Run the chatmem API server"

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagLogFile, &cmder.logFile)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorage, &cmder.storage)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.Flags, config.FlagLibSQLURL, &cmder.libsqlURL)
	config.AddStringFlag(cmd, config.Flags, config.FlagProvider, &cmder.provider)
	config.AddStringFlag(cmd, config.Flags, config.FlagTarget, &cmder.target)
	config.AddStringFlag(cmd, config.Flags, config.FlagModel, &cmder.model)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxTokens, &cmder.maxTokens)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxPairs, &cmder.maxPairs)
	config.AddUintFlag(cmd, config.Flags, config.FlagContextTokens, &cmder.contextTokens)
	config.AddBoolFlag(cmd, config.Flags, config.FlagEnforceLimits, &cmder.enforceLimits)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaBrokers, &cmder.kafkaBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagKafkaTopic, &cmder.kafkaTopic)

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	var (
		logFile io.Closer
		err     error
	)
	c.logger, logFile, err = c.newLogger()
	if err != nil {
		return err
	}
	if logFile != nil {
		defer logFile.Close()
	}

	dataDir, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		return fmt.Errorf("resolving data dir: %w", err)
	}

	var store storage.Driver
	err = cliui.Step(os.Stdout, "Opening storage", func() (err error) {
		store, err = openStore(ctx, c.cfg.Storage, dataDir, c.logger)
		return err
	})
	if err != nil {
		return err
	}
	defer store.Close()

	gen, err := backends.New(generation.Config{
		Provider: c.cfg.Generation.Provider,
		Target:   c.cfg.Generation.Target,
		Model:    c.cfg.Generation.Model,
		APIKey:   c.cfg.Generation.APIKey,
	})
	if err != nil {
		return err
	}

	// The server never starts without a working generation backend.
	err = cliui.Step(os.Stdout, "Loading "+c.cfg.Generation.Provider+" backend", func() error {
		return generation.Load(ctx, gen)
	})
	if err != nil {
		_ = gen.Close()
		return fmt.Errorf("generation backend %s at %s: %w", c.cfg.Generation.Provider, c.cfg.Generation.Target, err)
	}
	c.logger.Info("generation backend loaded",
		"provider", c.cfg.Generation.Provider,
		"target", c.cfg.Generation.Target,
		"model", c.cfg.Generation.Model,
	)

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}

	pool, err := worker.NewPool(&worker.Config{
		Publisher: publisher,
		Logger:    c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating event pool: %w", err)
	}

	coord, err := chat.New(chat.Config{
		Store:     store,
		Generator: gen,
		Params:    c.params(),
		Limits: prompt.Limits{
			Enforce:   c.cfg.Context.EnforceLimits,
			MaxPairs:  int(c.cfg.Context.MaxPairs),
			MaxTokens: int(c.cfg.Context.MaxTokens),
		},
		Events: pool,
		Logger: c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating chat coordinator: %w", err)
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Memory: coord,
		Logger: c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer := api.NewServer(api.Config{
		ListenAddr: c.cfg.Server.Listen,
		MCPHandler: mcpServer.Handler(),
	}, coord, c.logger)

	errChan := make(chan error, 1)
	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	var runErr error
	select {
	case runErr = <-errChan:
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	}

	return errors.Join(runErr, c.shutdown(apiServer, coord))
}

// shutdown stops accepting requests, lets open streams finish, then waits for
// the generation gate before releasing the backend.
func (c *serveCommander) shutdown(apiServer *api.Server, coord *chat.Coordinator) error {
	var errs []error
	if err := apiServer.Shutdown(); err != nil {
		errs = append(errs, fmt.Errorf("shutting down API server: %w", err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := coord.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutting down chat coordinator: %w", err))
	}

	return errors.Join(errs...)
}

func (c *serveCommander) params() generation.Params {
	p := generation.DefaultParams
	if c.cfg.Generation.MaxTokens > 0 {
		p.MaxTokens = int(c.cfg.Generation.MaxTokens)
	}
	if c.cfg.Generation.Temperature > 0 {
		p.Temperature = c.cfg.Generation.Temperature
	}
	if c.cfg.Generation.TopP > 0 {
		p.TopP = c.cfg.Generation.TopP
	}
	return p
}

func (c *serveCommander) newPublisher() (eventstream.Publisher, error) {
	brokers := splitBrokers(c.cfg.EventStream.KafkaBrokers)
	if len(brokers) == 0 {
		c.logger.Debug("turn events disabled, no kafka brokers configured")
		return nop.NewPublisher(), nil
	}

	p, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   c.cfg.EventStream.KafkaTopic,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}

	c.logger.Info("publishing turn events to kafka",
		"brokers", brokers,
		"topic", c.cfg.EventStream.KafkaTopic,
	)
	return p, nil
}

func splitBrokers(s string) []string {
	var brokers []string
	for b := range strings.SplitSeq(s, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}

// newLogger returns the terminal logger, fanned out to a JSON log file when
// one is configured. The returned closer is nil without a log file.
func (c *serveCommander) newLogger() (*slog.Logger, io.Closer, error) {
	terminal := logger.New(logger.WithDebug(c.debug), logger.WithPretty(true))
	if c.cfg.Server.LogFile == "" {
		return terminal, nil, nil
	}

	f, err := logger.OpenFile(c.cfg.Server.LogFile)
	if err != nil {
		return nil, nil, err
	}

	file := logger.New(logger.WithDebug(c.debug), logger.WithJSON(true), logger.WithWriter(f))
	return logger.Multi(terminal, file), f, nil
}
