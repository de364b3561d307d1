package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/nats-io/nats.go"
	"github.com/spf13/cobra"

	"github.com/WessleyAI/wessley-support/engine/backend"
	"github.com/WessleyAI/wessley-support/engine/domain"
	"github.com/WessleyAI/wessley-support/engine/notify"
	"github.com/WessleyAI/wessley-support/pkg/natsutil"
)

var (
	importApp string

	previewFlags  requestFlags
	generateFlags requestFlags
	publish       bool
	autoPublish   float64
	clusterIDs    []string
	overrideCat   string
	overrideTags  []string
)

var importCmd = &cobra.Command{
	Use:   "import <tickets.json>",
	Short: "Load tickets from a JSON array into the store",
	Long: `Load tickets from a JSON array into the configured store.

Each element is a ticket with id, app_id, title, body, category, status,
created_at, resolved_at and responses. --app fills in a missing app_id.

Examples:
  faqgen import tickets.json --app acme
  faqgen import - < tickets.json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tickets, err := readTickets(args[0], cmd.InOrStdin(), importApp)
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		store, closeStore, err := backend.OpenStore(ctx, settings)
		if err != nil {
			return err
		}
		defer closeStore()

		apps := make(map[string]bool)
		for _, t := range tickets {
			if !apps[t.AppID] {
				if err := store.EnsureApp(ctx, t.AppID, t.AppID); err != nil {
					return err
				}
				apps[t.AppID] = true
			}
			if err := store.SaveTicket(ctx, t); err != nil {
				return err
			}
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Fprintf(cmd.OutOrStdout(), "%s imported %d ticket(s) for %d app(s)\n", green("✓"), len(tickets), len(apps))
		return nil
	},
}

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Cluster tickets and show FAQ candidates without saving",
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := previewFlags.request()
		if err != nil {
			return err
		}
		be, err := backend.Open(cmd.Context(), settings, logger)
		if err != nil {
			return err
		}
		defer be.Close()

		res, err := be.Service.Preview(cmd.Context(), req)
		if err != nil {
			return err
		}
		if previewFlags.asJSON {
			return printJSON(cmd.OutOrStdout(), res)
		}
		renderPreview(cmd.OutOrStdout(), res)
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Cluster tickets and create FAQ entries",
	Long: `Cluster tickets and create one FAQ entry per cluster.

Cluster ids are only stable between runs when generator.seed is set, so
--clusters is meant to be used with a seeded configuration.

Examples:
  faqgen generate --app acme --auto-publish 0.8
  faqgen generate --app acme --clusters cluster_0,cluster_2 --publish`,
	RunE: func(cmd *cobra.Command, args []string) error {
		req, err := generateFlags.request()
		if err != nil {
			return err
		}
		opts := materializeOptions(cmd)
		be, err := backend.Open(cmd.Context(), settings, logger)
		if err != nil {
			return err
		}
		defer be.Close()

		res, err := be.Service.Generate(cmd.Context(), req, opts)
		if err != nil {
			return err
		}
		if generateFlags.asJSON {
			if err := printJSON(cmd.OutOrStdout(), res); err != nil {
				return err
			}
		} else {
			renderMaterialize(cmd.OutOrStdout(), res)
		}
		if res.Statistics.Failed > 0 {
			return fmt.Errorf("%d cluster(s) failed", res.Statistics.Failed)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print FAQ change events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		if settings.NATS.URL == "" {
			return errors.New("nats.url (or NATS_URL) is required for watch")
		}
		subject := settings.NATS.Subject
		if subject == "" {
			subject = notify.DefaultSubject
		}
		nc, err := nats.Connect(settings.NATS.URL, nats.Name("faqgen-watch"))
		if err != nil {
			return fmt.Errorf("nats connect: %w", err)
		}
		defer nc.Close()

		out := cmd.OutOrStdout()
		events := make(chan notify.Event, 64)
		sub, err := natsutil.Subscribe(nc, subject, func(_ context.Context, ev notify.Event) {
			events <- ev
		}, logger)
		if err != nil {
			return err
		}
		defer sub.Unsubscribe()

		fmt.Fprintf(out, "watching %s on %s\n", subject, settings.NATS.URL)
		for {
			select {
			case ev := <-events:
				renderEvent(out, ev)
			case <-cmd.Context().Done():
				return nil
			}
		}
	},
}

func init() {
	importCmd.Flags().StringVar(&importApp, "app", "", "app id for tickets that have none")

	previewFlags.register(previewCmd.Flags())
	previewCmd.MarkFlagRequired("app")

	generateFlags.register(generateCmd.Flags())
	generateCmd.MarkFlagRequired("app")
	f := generateCmd.Flags()
	f.BoolVar(&publish, "publish", false, "publish every created entry")
	f.Float64Var(&autoPublish, "auto-publish", 0, "publish entries whose confidence reaches this value")
	f.StringSliceVar(&clusterIDs, "clusters", nil, "only materialise these cluster ids")
	f.StringVar(&overrideCat, "set-category", "", "category for every created entry")
	f.StringSliceVar(&overrideTags, "tag", nil, "tags for every created entry")
}

func materializeOptions(cmd *cobra.Command) domain.MaterializeOptions {
	opts := domain.MaterializeOptions{Publish: publish, ClusterIDs: clusterIDs}
	if cmd.Flags().Changed("auto-publish") {
		t := autoPublish
		opts.AutoPublishThreshold = &t
	}
	if cmd.Flags().Changed("set-category") {
		c := overrideCat
		opts.Category = &c
	}
	if cmd.Flags().Changed("tag") {
		opts.Tags = overrideTags
	}
	return opts
}

// readTickets decodes a JSON array of tickets from path ("-" for stdin).
func readTickets(path string, stdin io.Reader, defaultApp string) ([]domain.TicketRecord, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var tickets []domain.TicketRecord
	if err := json.NewDecoder(r).Decode(&tickets); err != nil {
		return nil, fmt.Errorf("decode tickets: %w", err)
	}
	for i := range tickets {
		t := &tickets[i]
		if t.AppID == "" {
			t.AppID = defaultApp
		}
		if t.ID == "" || t.AppID == "" {
			return nil, fmt.Errorf("ticket %d: id and app_id are required", i)
		}
		if t.Status == "" {
			t.Status = domain.StatusResolved
		}
	}
	return tickets, nil
}
