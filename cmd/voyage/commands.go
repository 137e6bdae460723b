package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nordveg/voyage/internal/agent"
	"github.com/nordveg/voyage/internal/agent/providers"
	"github.com/nordveg/voyage/internal/config"
	"github.com/nordveg/voyage/internal/gateway"
	"github.com/nordveg/voyage/internal/mcp"
	"github.com/nordveg/voyage/internal/observability"
	"github.com/nordveg/voyage/internal/sessions"
	"github.com/nordveg/voyage/internal/tools/catalog"
	"github.com/nordveg/voyage/internal/toolserver"
	"github.com/nordveg/voyage/internal/travel"
)

func loadConfig(configPath *string) (*config.Config, *slog.Logger, error) {
	path := *configPath
	if path == "" {
		path = os.Getenv("VOYAGE_CONFIG")
	}
	if path == "" {
		path = "voyage.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	return cfg, logger, nil
}

func buildStore(cfg *config.Config) (sessions.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		return sessions.NewPostgresStore(cfg.Database.DSN, sessions.PostgresOptions{
			MaxOpenConns:    cfg.Database.MaxOpenConns,
			ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		})
	case "sqlite", "":
		return sessions.NewSQLiteStore(cfg.Database.Path)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Database.Driver)
	}
}

// buildRegistry populates the tool registry from the configured source
// and returns a cleanup function.
func buildRegistry(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*agent.ToolRegistry, func(), error) {
	registry := agent.NewToolRegistry()
	cleanup := func() {}

	switch cfg.Tools.Mode {
	case "builtin", "":
		service := travel.NewService(cfg.Travel, logger)
		travel.RegisterTools(service, registry)

	case "catalog":
		loader := catalog.NewLoader(cfg.Tools.CatalogURL, cfg.Tools.Timeout, logger)
		if err := loader.RegisterAll(ctx, registry); err != nil {
			return nil, nil, fmt.Errorf("load tool catalog: %w", err)
		}

	case "mcp":
		client := mcp.NewClient(mcp.ServerConfig{
			Command: cfg.Tools.MCP.Command,
			Args:    cfg.Tools.MCP.Args,
			Env:     cfg.Tools.MCP.Env,
			Timeout: cfg.Tools.Timeout,
		}, logger)
		if err := client.Connect(ctx); err != nil {
			return nil, nil, fmt.Errorf("connect tool server: %w", err)
		}
		mcp.RegisterTools(client, registry)
		cleanup = func() { client.Close() }

	default:
		return nil, nil, fmt.Errorf("unknown tools mode %q", cfg.Tools.Mode)
	}

	logger.Info("tool registry ready", "mode", cfg.Tools.Mode, "tools", len(registry.Names()))
	return registry, cleanup, nil
}

func buildRuntime(cfg *config.Config, store sessions.Store, registry *agent.ToolRegistry, logger *slog.Logger, metrics *observability.Metrics) (*agent.Runtime, error) {
	provider, err := providers.New(cfg.LLM)
	if err != nil {
		return nil, err
	}
	return agent.NewRuntime(store, provider, registry, agent.RuntimeOptions{
		Model:         cfg.LLM.Model,
		SystemPrompt:  cfg.Agent.SystemPrompt,
		MaxRounds:     cfg.Agent.MaxRounds,
		MaxTokens:     cfg.LLM.MaxTokens,
		ContextWindow: cfg.Agent.ContextWindow,
		DefaultOwner:  cfg.Agent.DefaultOwner,
		Logger:        logger,
		Metrics:       metrics,
	}), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the conversational agent API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			store, err := buildStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signalContext()
			defer stop()

			registry, cleanup, err := buildRegistry(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			metrics := observability.NewMetrics()
			runtime, err := buildRuntime(cfg, store, registry, logger, metrics)
			if err != nil {
				return err
			}

			if cfg.Retention.MaxAge > 0 {
				sweeper := sessions.NewSweeper(store, cfg.Retention.MaxAge, cfg.Retention.Schedule, logger)
				if err := sweeper.Start(); err != nil {
					return fmt.Errorf("start retention sweeper: %w", err)
				}
				defer sweeper.Stop()
			}

			server := gateway.New(runtime, store, logger, metrics, gateway.Options{
				DefaultOwner: cfg.Agent.DefaultOwner,
				TurnTimeout:  cfg.Agent.TurnTimeout,
				HistoryLimit: cfg.Agent.HistoryLimit,
			})
			return server.Start(ctx, fmt.Sprintf(":%d", cfg.Server.Port))
		},
	}
}

func newToolserverCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "toolserver",
		Short: "Start the travel tool HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			service := travel.NewService(cfg.Travel, logger)
			metrics := observability.NewMetrics()
			server := toolserver.New(service, logger, metrics)

			ctx, stop := signalContext()
			defer stop()
			return server.Start(ctx, fmt.Sprintf(":%d", cfg.Server.ToolServerPort))
		},
	}
}

func newChatCmd(configPath *string) *cobra.Command {
	var ownerID string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the travel assistant interactively",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if ownerID == "" {
				ownerID = cfg.Agent.DefaultOwner
			}

			store, err := buildStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signalContext()
			defer stop()

			registry, cleanup, err := buildRegistry(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer cleanup()

			runtime, err := buildRuntime(cfg, store, registry, logger, nil)
			if err != nil {
				return err
			}

			fmt.Println("voyage travel assistant. Type 'exit' to quit.")
			scanner := bufio.NewScanner(os.Stdin)
			sessionID := ""
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					break
				}
				query := strings.TrimSpace(scanner.Text())
				if query == "" {
					continue
				}
				if query == "exit" || query == "quit" {
					break
				}

				result, err := runtime.ProcessQuery(ctx, sessionID, ownerID, query)
				if err != nil {
					if result != nil && result.Reply != "" {
						fmt.Println(result.Reply)
					} else {
						fmt.Fprintln(os.Stderr, "Error:", err)
					}
					if ctx.Err() != nil {
						break
					}
					continue
				}
				sessionID = result.SessionID
				fmt.Println(result.Reply)
			}
			return scanner.Err()
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "Owner id for the conversation")
	return cmd
}

func newSessionsCmd(configPath *string) *cobra.Command {
	var (
		ownerID string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List stored conversation sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			if ownerID == "" {
				ownerID = cfg.Agent.DefaultOwner
			}

			store, err := buildStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			summaries, err := store.ListSessions(ctx, ownerID, limit)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Println("No sessions found.")
				return nil
			}
			for _, summary := range summaries {
				fmt.Printf("%s  %-30s  %3d messages  last active %s\n",
					summary.SessionID,
					summary.Title,
					summary.MessageCount,
					summary.LastActivity.Local().Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ownerID, "owner", "", "Owner id to list sessions for")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum sessions to list")
	return cmd
}

func newStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show session store statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			store, err := buildStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			stats, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("Sessions:  %d\n", stats.TotalSessions)
			fmt.Printf("Messages:  %d\n", stats.TotalMessages)
			fmt.Printf("Owners:    %d\n", stats.DistinctOwners)
			if stats.StoragePath != "" {
				fmt.Printf("Storage:   %s (%d bytes)\n", stats.StoragePath, stats.StorageBytes)
			}
			return nil
		},
	}
}

func newPurgeCmd(configPath *string) *cobra.Command {
	var (
		olderThan time.Duration
		ownerID   string
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete sessions inactive for longer than the threshold",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			store, err := buildStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
			defer cancel()

			removed, err := store.PurgeOlderThan(ctx, olderThan, ownerID)
			if err != nil {
				return err
			}
			fmt.Printf("Removed %d session(s).\n", removed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Inactivity threshold, e.g. 720h")
	cmd.Flags().StringVar(&ownerID, "owner", "", "Restrict the purge to one owner (default: all owners)")
	return cmd
}
