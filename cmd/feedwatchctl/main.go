package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	config "github.com/NordCoder/Feedwatch/internal/config/watcher"
	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/services/control"
	"github.com/spf13/cobra"
)

type globals struct {
	configPath string
	server     string
	timeout    time.Duration
}

func main() {
	g := &globals{}
	root := &cobra.Command{
		Use:          "feedwatchctl",
		Short:        "Control a running feedwatch watcher",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "", "watcher config file; its notify.control_url is used as the server")
	root.PersistentFlags().StringVar(&g.server, "server", "", "control API base URL (overrides --config)")
	root.PersistentFlags().DurationVar(&g.timeout, "timeout", 30*time.Second, "request timeout")

	root.AddCommand(endpointsCmd(g))
	root.AddCommand(stateCmd(g))
	root.AddCommand(muteCmd(g))
	root.AddCommand(unmuteCmd(g))
	root.AddCommand(resetCmd(g))
	root.AddCommand(historyCmd(g))
	root.AddCommand(schedulersCmd(g))
	root.AddCommand(testMapCmd(g))

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func (g *globals) client() (*control.Client, error) {
	base := g.server
	if base == "" && g.configPath != "" {
		cfg, err := config.Load(g.configPath)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		base = cfg.Notify.ControlURL
	}
	return control.NewClient(base, nil), nil
}

// call runs fn with a fresh client and prints its JSON answer.
func (g *globals) call(cmd *cobra.Command, fn func(ctx context.Context, c *control.Client) (json.RawMessage, error)) error {
	c, err := g.client()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(cmd.Context(), g.timeout)
	defer cancel()
	raw, err := fn(ctx, c)
	if err != nil {
		return err
	}
	return printJSON(cmd, raw)
}

func printJSON(cmd *cobra.Command, raw json.RawMessage) error {
	if len(raw) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), buf.String())
	return nil
}

func endpointsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "List and manage endpoint configurations",
	}

	var active bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List endpoint tags",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.call(cmd, func(ctx context.Context, c *control.Client) (json.RawMessage, error) {
				tags, err := c.ListEndpoints(ctx, active)
				if err != nil {
					return nil, err
				}
				return json.Marshal(tags)
			})
		},
	}
	list.Flags().BoolVar(&active, "active", false, "only endpoints with a running scheduler")

	get := &cobra.Command{
		Use:   "get <tag>",
		Short: "Show the resolved configuration of an endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *control.Client) (json.RawMessage, error) {
				return c.GetEndpoint(ctx, args[0])
			})
		},
	}

	var fields string
	set := &cobra.Command{
		Use:   "set <tag>",
		Short: "Create or update an endpoint from a JSON document of changed fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			partial, err := readDocument(fields)
			if err != nil {
				return err
			}
			return g.call(cmd, func(ctx context.Context, c *control.Client) (json.RawMessage, error) {
				return c.UpsertEndpoint(ctx, args[0], partial)
			})
		},
	}
	set.Flags().StringVarP(&fields, "fields", "f", "", "JSON object, or @file to read it from")
	_ = set.MarkFlagRequired("fields")

	remove := &cobra.Command{
		Use:   "remove <tag>",
		Short: "Drop the overrides of an endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *control.Client) (json.RawMessage, error) {
				return c.RemoveEndpoint(ctx, args[0])
			})
		},
	}

	activation := func(use string, on bool) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <tag>",
			Short: strings.ToUpper(use[:1]) + use[1:] + " the scheduler of an endpoint",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.call(cmd, func(ctx context.Context, c *control.Client) (json.RawMessage, error) {
					return nil, c.SetActive(ctx, args[0], on)
				})
			},
		}
	}

	cmd.AddCommand(list, get, set, remove, activation("activate", true), activation("deactivate", false))
	return cmd
}

func stateCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "state <tag>",
		Short: "Show the notification state of an endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *control.Client) (json.RawMessage, error) {
				return c.State(ctx, args[0])
			})
		},
	}
}

func muteCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "mute", Short: "Mute item or failure alerts"}

	var minutes int
	items := &cobra.Command{
		Use:   "items <tag>",
		Short: "Mute item alerts for the visible items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *control.Client) (json.RawMessage, error) {
				return c.MuteItems(ctx, args[0], minutes)
			})
		},
	}
	items.Flags().IntVarP(&minutes, "minutes", "m", 0, "mute duration; 0 uses the server default")

	cmd.AddCommand(items, stateOpCmd(g, "api <tag>", "Mute failure alerts", "mute/api"))
	return cmd
}

func unmuteCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{Use: "unmute", Short: "Lift item or failure mutes"}
	cmd.AddCommand(
		stateOpCmd(g, "items <tag>", "Lift the item mute", "unmute/items"),
		stateOpCmd(g, "api <tag>", "Lift the failure mute", "unmute/api"),
	)
	return cmd
}

func resetCmd(g *globals) *cobra.Command {
	return stateOpCmd(g, "reset <tag>", "Forget processed and muted item ids", "reset")
}

func stateOpCmd(g *globals, use, short, op string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *control.Client) (json.RawMessage, error) {
				return c.StateOp(ctx, args[0], op)
			})
		},
	}
}

func historyCmd(g *globals) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history <tag>",
		Short: "List recent notifications of an endpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return g.call(cmd, func(ctx context.Context, c *control.Client) (json.RawMessage, error) {
				return c.History(ctx, args[0], limit)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "max entries")
	return cmd
}

func schedulersCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedulers",
		Short: "List running schedulers and their drift from the active set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.call(cmd, func(ctx context.Context, c *control.Client) (json.RawMessage, error) {
				return c.Schedulers(ctx)
			})
		},
	}

	op := func(use, short string) *cobra.Command {
		return &cobra.Command{
			Use:   use + " <tag>",
			Short: short,
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return g.call(cmd, func(ctx context.Context, c *control.Client) (json.RawMessage, error) {
					return c.SchedulerOp(ctx, args[0], use)
				})
			},
		}
	}

	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Stop schedulers whose endpoint is not active",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return g.call(cmd, func(ctx context.Context, c *control.Client) (json.RawMessage, error) {
				return c.CleanupSchedulers(ctx)
			})
		},
	}

	cmd.AddCommand(
		op("start", "Start the timer of an endpoint without activating it"),
		op("stop", "Stop the timer of an endpoint without deactivating it"),
		op("restart", "Restart the timer of an endpoint"),
		cleanup,
	)
	return cmd
}

func testMapCmd(g *globals) *cobra.Command {
	var doc string
	cmd := &cobra.Command{
		Use:   "test-map",
		Short: "Fetch an endpoint once and preview the mapped items",
		RunE: func(cmd *cobra.Command, _ []string) error {
			raw, err := readRaw(doc)
			if err != nil {
				return err
			}
			var cfg endpoint.Config
			if err := json.Unmarshal(raw, &cfg); err != nil {
				return fmt.Errorf("decode endpoint: %w", err)
			}
			return g.call(cmd, func(ctx context.Context, c *control.Client) (json.RawMessage, error) {
				return c.TestMap(ctx, &cfg)
			})
		},
	}
	cmd.Flags().StringVarP(&doc, "endpoint", "e", "", "endpoint JSON, or @file to read it from")
	_ = cmd.MarkFlagRequired("endpoint")
	return cmd
}

func readDocument(arg string) (map[string]any, error) {
	raw, err := readRaw(arg)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return out, nil
}

func readRaw(arg string) ([]byte, error) {
	if path, ok := strings.CutPrefix(arg, "@"); ok {
		return os.ReadFile(path)
	}
	return []byte(arg), nil
}
