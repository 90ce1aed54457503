package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/RobinCoderZhao/optimist-daily/internal/appconfig"
	"github.com/RobinCoderZhao/optimist-daily/internal/feed"
	"github.com/RobinCoderZhao/optimist-daily/internal/prefs"
	"github.com/RobinCoderZhao/optimist-daily/internal/session"
	"github.com/RobinCoderZhao/optimist-daily/pkg/htmltext"
)

const descriptionWidth = 160

// queryFlags are the inputs shared by fetch and plan.
type queryFlags struct {
	search   string
	category string
	prefs    []string
	user     int
	sort     string
}

func (q *queryFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&q.search, "search", "", "free-text search")
	cmd.Flags().StringVar(&q.category, "category", "", `category, or "All" for preferences`)
	cmd.Flags().StringSliceVar(&q.prefs, "prefs", nil, "preferred categories (comma separated)")
	cmd.Flags().IntVar(&q.user, "user", 0, "load preferences of this user from the store")
	cmd.Flags().StringVar(&q.sort, "sort", "newest", "newest or oldest")
}

func (q *queryFlags) order() (feed.SortOrder, error) {
	order, ok := feed.ParseSortOrder(q.sort)
	if !ok {
		return "", fmt.Errorf("invalid --sort %q: want newest or oldest", q.sort)
	}
	return order, nil
}

// preferences returns the --prefs list, or the stored preferences of --user.
func (q *queryFlags) preferences(ctx context.Context, cfg appconfig.Config) ([]string, error) {
	if len(q.prefs) > 0 || q.user == 0 {
		return q.prefs, nil
	}
	stores, err := cfg.OpenStores(ctx)
	if err != nil {
		return nil, err
	}
	defer stores.Close()
	return stores.Prefs.GetCategories(ctx, q.user)
}

func fetchCmd(configPath *string) *cobra.Command {
	var q queryFlags
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run one aggregation cycle and print the feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			order, err := q.order()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Feed.Timeout+30*time.Second)
			defer cancel()

			stored, err := q.preferences(ctx, cfg)
			if err != nil {
				return err
			}
			adapters := feed.BuildAdapters(cfg.Feed.Providers)
			agg := feed.NewAggregator(adapters, feed.NewExecutor(adapters, cfg.Feed.ExecutorOptions()...))

			snap, err := runCycle(ctx, agg, stored, q.search, q.category, order)
			if err != nil {
				return err
			}
			for _, p := range snap.Failures {
				fmt.Fprintf(cmd.ErrOrStderr(), "provider %s failed\n", p)
			}
			if outputJSON {
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			printFeed(cmd.OutOrStdout(), snap)
			if snap.Status == session.StatusFailed {
				return errors.New("every provider failed")
			}
			return nil
		},
	}
	q.register(cmd)
	cmd.Flags().BoolVar(&outputJSON, "json", false, "print the snapshot as JSON")
	return cmd
}

// runCycle drives a session through its first cycle.
func runCycle(ctx context.Context, p session.Pipeline, stored []string, search, category string, order feed.SortOrder) (session.Snapshot, error) {
	sess := session.New(p,
		func(context.Context) ([]string, error) { return stored, nil },
		session.WithInitialInputs(search, category, order),
	)
	defer sess.Close()

	if err := sess.Start(ctx); err != nil {
		return session.Snapshot{}, err
	}
	return sess.Wait(ctx, sess.Snapshot().Generation)
}

func printFeed(w io.Writer, snap session.Snapshot) {
	fmt.Fprintf(w, "%s  %s  %d articles (%s)\n\n", snap.Intent, snap.Order, len(snap.Feed), snap.Status)
	for i, a := range snap.Feed {
		published := "undated"
		if a.HasPublishedAt() {
			published = a.PublishedAt.Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%2d. %s\n    %s · %s · %s\n", i+1, a.Title, published, firstNonEmpty(a.SourceName, string(a.Source)), a.URL)
		if a.Description != "" {
			fmt.Fprintf(w, "    %s\n", htmltext.Truncate(a.Description, descriptionWidth))
		}
	}
}

func planCmd(configPath *string) *cobra.Command {
	var q queryFlags

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the query intent and provider requests without calling them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			stored, err := q.preferences(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			intent := feed.Plan(q.search, q.category, stored)
			agg := feed.NewAggregator(feed.BuildAdapters(cfg.Feed.Providers), nil)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "intent: %s\n", intent)
			specs := agg.Requests(intent)
			if len(specs) == 0 {
				fmt.Fprintln(out, "no active providers (enable one and set its API key)")
				return nil
			}
			for _, spec := range specs {
				fmt.Fprintf(out, "%-18s %s\n", spec.Provider, spec.Redacted())
			}
			return nil
		},
	}
	q.register(cmd)
	return cmd
}

func prefsCmd(configPath *string) *cobra.Command {
	var userID int

	cmd := &cobra.Command{
		Use:   "prefs",
		Short: "Read or write stored category preferences",
	}
	cmd.PersistentFlags().IntVar(&userID, "user", 0, "user ID")
	_ = cmd.MarkPersistentFlagRequired("user")

	get := &cobra.Command{
		Use:   "get",
		Short: "Print a user's categories",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStores(cmd.Context(), *configPath, func(st *appconfig.Stores) error {
				categories, err := st.Prefs.GetCategories(cmd.Context(), userID)
				if err != nil {
					return err
				}
				if len(categories) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "(none)")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(categories, ", "))
				return nil
			})
		},
	}

	set := &cobra.Command{
		Use:   "set CATEGORY...",
		Short: "Replace a user's categories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			categories, err := prefs.Validate(args)
			if err != nil {
				return err
			}
			return withStores(cmd.Context(), *configPath, func(st *appconfig.Stores) error {
				if err := st.Prefs.SetCategories(cmd.Context(), userID, categories); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "saved %d categories for user %d\n", len(categories), userID)
				return nil
			})
		},
	}

	cmd.AddCommand(get, set)
	return cmd
}

func withStores(ctx context.Context, configPath string, fn func(*appconfig.Stores) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	stores, err := cfg.OpenStores(ctx)
	if err != nil {
		return err
	}
	defer stores.Close()
	return fn(stores)
}

func loadConfig(path string) (appconfig.Config, error) {
	cfg, err := appconfig.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config: %w", err)
	}
	// Keep stdout for the feed itself.
	slog.SetDefault(cfg.Log.NewLogger(os.Stderr))
	return cfg, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
