package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"invoicechat/internal/config"
	"invoicechat/internal/interpreter"
	"invoicechat/internal/provider"
	"invoicechat/internal/records"

	"github.com/spf13/cobra"
)

func doctorCmd() *cobra.Command {
	var skipBackend bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run diagnostic checks on your invoicechat setup",
		Long: `Verifies that the configuration, alias table, record cache, and agent
backend are correctly set up. Reports pass/fail for each check.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			cfgPath := config.ExpandPath(resolveConfigPath())
			fmt.Fprintf(out, "invoicechat doctor v%s\n", version)
			fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")

			d := &doctor{out: out}

			// 1. Config file
			var cfg *config.Config
			if _, err := os.Stat(cfgPath); err != nil {
				d.warn("Config file", fmt.Sprintf("not found at %s, using defaults", cfgPath))
				cfg = config.Defaults()
			} else if cfg, err = config.Load(cfgPath); err != nil {
				d.fail("Config validation", err.Error())
				return d.summary()
			} else {
				d.pass("Config file", cfgPath)
			}

			// 2. Alias table
			if cfg.Interpreter.AliasFile == "" {
				d.pass("Alias table", "built-in")
			} else if _, err := interpreter.LoadAliasFile(cfg.Interpreter.AliasFile); err != nil {
				d.fail("Alias table", err.Error())
			} else {
				d.pass("Alias table", cfg.Interpreter.AliasFile)
			}

			// 3. Record cache
			if cfg.Cache.Driver == "sqlite" {
				if err := checkCache(cfg.Cache.DBPath); err != nil {
					d.fail("Record cache", err.Error())
				} else {
					d.pass("Record cache", cfg.Cache.DBPath)
				}
			} else {
				d.pass("Record cache", "in memory")
			}

			// 4. Agent backend
			if skipBackend {
				d.warn("Agent backend", "skipped")
			} else {
				client := provider.NewHTTPClient(provider.HTTPClientConfig{
					APIBase:    cfg.Backend.APIBase,
					APIKey:     cfg.Backend.APIKey,
					InvokePath: cfg.Backend.InvokePath,
					StreamPath: cfg.Backend.StreamPath,
					Timeout:    15 * time.Second,
					MaxRetries: -1,
					Logger:     logger,
				})
				ctx, cancel := context.WithTimeout(cmd.Context(), 20*time.Second)
				err := client.Ping(ctx)
				cancel()
				if err != nil {
					d.fail("Agent backend", err.Error())
				} else {
					d.pass("Agent backend", cfg.Backend.APIBase)
				}
			}

			// 5. Log file writable
			if cfg.General.LogFile != "" {
				f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
				if err != nil {
					d.warn("Log file", err.Error())
				} else {
					f.Close()
					d.pass("Log file", cfg.General.LogFile)
				}
			}

			return d.summary()
		},
	}
	cmd.Flags().BoolVar(&skipBackend, "offline", false, "skip the agent backend check")
	return cmd
}

type doctor struct {
	out                    io.Writer
	passed, failed, warned int
}

func (d *doctor) pass(check, detail string) {
	d.passed++
	fmt.Fprintf(d.out, "  [PASS] %-20s %s\n", check, detail)
}

func (d *doctor) fail(check, detail string) {
	d.failed++
	fmt.Fprintf(d.out, "  [FAIL] %-20s %s\n", check, detail)
}

func (d *doctor) warn(check, detail string) {
	d.warned++
	fmt.Fprintf(d.out, "  [WARN] %-20s %s\n", check, detail)
}

func (d *doctor) summary() error {
	fmt.Fprintf(d.out, "\n━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n")
	fmt.Fprintf(d.out, "Results: %d passed, %d warnings, %d failed\n", d.passed, d.warned, d.failed)
	if d.failed > 0 {
		fmt.Fprintf(d.out, "\nPlease fix the failed checks before chatting.\n")
		return fmt.Errorf("%d check(s) failed", d.failed)
	}
	if d.warned > 0 {
		fmt.Fprintf(d.out, "\ninvoicechat should work but consider fixing the warnings.\n")
	} else {
		fmt.Fprintf(d.out, "\nAll checks passed! invoicechat is ready.\n")
	}
	return nil
}

// checkCache opens the SQLite cache, which creates the file and runs
// migrations, then reads the listing back.
func checkCache(dbPath string) error {
	c, err := records.NewSQLiteCache(dbPath, logger)
	if err != nil {
		return err
	}
	defer c.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := c.All(ctx); err != nil {
		return fmt.Errorf("cannot read: %w", err)
	}
	return nil
}
