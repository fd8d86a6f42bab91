package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"invoicechat/internal/agent"
	"invoicechat/internal/channel"
	"invoicechat/internal/config"
	"invoicechat/internal/domain"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:     "invoicechat",
		Short:   "Chat with your invoice assistant",
		Long:    "invoicechat talks to an invoice agent backend, shows its answers, and keeps a live view of the invoices it touches.",
		Version: version,

		SilenceUsage: true,
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.invoicechat/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(chatCmd())
	root.AddCommand(askCmd())
	root.AddCommand(configCmd())
	root.AddCommand(doctorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := config.ExpandPath(resolveConfigPath())
			if _, err := os.Stat(cfgPath); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
			}
			if err := config.Save(cfgPath, config.Defaults()); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}

func chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start interactive chat",
		RunE:  runChat,
	}
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The CLI shows streamed frames but is built after the engine it drives.
	var cli *channel.CLI
	a, err := buildApp(cfg, func(f domain.Frame) {
		if cli != nil {
			cli.ShowFrame(f)
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()
	a.serveMetrics(ctx)
	a.loadListing(ctx)

	if cfg.Feed.Enabled {
		feed := channel.NewUpdateFeed(channel.FeedConfig{
			Addr:    cfg.Feed.Listen,
			Path:    cfg.Feed.Path,
			Updates: a.updates,
			Logger:  logger,
		})
		go func() {
			if err := feed.Start(ctx); err != nil {
				logger.Error("update feed error", "err", err)
			}
		}()
	}

	cli = channel.NewCLI(channel.CLIConfig{
		Engine:  a.engine,
		Records: a.publisher,
		Updates: a.updates,
		Logger:  logger,
	})
	return cli.Start(ctx)
}

// askResult is the --json output of the ask command.
type askResult struct {
	Reply   string                `json:"reply"`
	Records []domain.Record       `json:"records,omitempty"`
	Update  *domain.UpdateAction  `json:"update,omitempty"`
	Tools   []domain.ToolCall     `json:"tools,omitempty"`
	Error   *domain.ErrorEnvelope `json:"error,omitempty"`
}

func askCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Ask a single question and print the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(cfg, nil)
			if err != nil {
				return err
			}
			defer a.Close()
			a.loadListing(ctx)

			res, err := a.engine.Send(ctx, strings.Join(args, " "))
			return printAnswer(cmd, res, err, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the answer and any records as JSON")
	return cmd
}

func printAnswer(cmd *cobra.Command, res *agent.TurnResult, sendErr error, asJSON bool) error {
	out := cmd.OutOrStdout()
	var env *domain.ErrorEnvelope
	if sendErr != nil && !errors.As(sendErr, &env) {
		return sendErr
	}

	if !asJSON {
		if env != nil {
			fmt.Fprintln(out, env.Message)
			if env.Suggestion != "" {
				fmt.Fprintln(out, env.Suggestion)
			}
			return env
		}
		if res != nil {
			fmt.Fprintln(out, res.Reply.Content)
		}
		return nil
	}

	result := askResult{Error: env}
	if res != nil {
		result.Reply = res.Reply.Content
		result.Tools = res.Calls
		if res.Payload != nil {
			result.Records = res.Payload.Records
		}
		if res.Update != nil {
			action := res.Update.Action
			result.Update = &action
		}
	}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal answer: %w", err)
	}
	fmt.Fprintln(out, string(data))
	if env != nil {
		return env
	}
	return nil
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(config.Sanitize(cfg), "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "get <path>",
		Short: "Get a config value by dot path (e.g. backend.apiBase)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			v, err := config.GetByPath(config.Sanitize(cfg), args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(v, "", "  ")
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <path> <value>",
		Short: "Set a config value by dot path and save",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return err
			}
			if err := config.Validate(cfg); err != nil {
				return err
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("config updated", "path", args[0], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every config path and value",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			paths := config.ListPaths(config.Sanitize(cfg))
			keys := make([]string, 0, len(paths))
			for k := range paths {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", k, paths[k])
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath())
		},
	})

	return cmd
}
