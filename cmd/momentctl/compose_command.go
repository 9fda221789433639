package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yangwenmai/storyteller/internal/engine"
	"github.com/yangwenmai/storyteller/internal/ingest"
	"github.com/yangwenmai/storyteller/internal/model"
	"github.com/yangwenmai/storyteller/internal/session"
	"github.com/yangwenmai/storyteller/internal/store"
)

type composeOptions struct {
	tier    string
	title   string
	refine  []string
	tags    []string
	header  int
	commit  bool
	instant bool
	json    bool
}

type tagArg struct {
	category model.TagCategory
	value    string
}

type composeResult struct {
	Draft    model.MomentDraft `json:"draft"`
	Tier     model.Tier        `json:"tier"`
	MomentID string            `json:"moment_id,omitempty"`
	Warning  *model.ErrorInfo  `json:"warning,omitempty"`
}

func newComposeCommand(ctx *commandContext) *cobra.Command {
	var opts composeOptions

	cmd := &cobra.Command{
		Use:   "compose <photo>...",
		Short: "Compose a moment from photos",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := parseTagArgs(opts.tags)
			if err != nil {
				return err
			}
			if opts.header < 0 || opts.header > len(args) {
				return fmt.Errorf("--header must be between 1 and %d", len(args))
			}
			return ctx.withStore(func(st *store.Store) error {
				return runCompose(cmd, ctx, st, args, tags, opts)
			})
		},
	}

	cmd.Flags().StringVar(&opts.tier, "tier", "", "Subscription tier that sets the photo ceiling (default from config)")
	cmd.Flags().StringVar(&opts.title, "title", "", "Replace the generated title")
	cmd.Flags().StringArrayVar(&opts.refine, "refine", nil, "Refinement instruction, applied in order (repeatable)")
	cmd.Flags().StringArrayVar(&opts.tags, "tag", nil, "Add a tag as category=value (repeatable)")
	cmd.Flags().IntVar(&opts.header, "header", 0, "1-based position of the header photo")
	cmd.Flags().BoolVar(&opts.commit, "commit", false, "Save the moment to the database")
	cmd.Flags().BoolVar(&opts.instant, "instant", false, "Skip the upload and analysis delays")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print the result as JSON")

	return cmd
}

func runCompose(cmd *cobra.Command, ctx *commandContext, st *store.Store, paths []string, tags []tagArg, opts composeOptions) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger := ctx.logger()
	out := cmd.OutOrStdout()
	colorize := shouldColorize(out)

	tier := model.ParseTier(cfg.DefaultTier)
	if strings.TrimSpace(opts.tier) != "" {
		tier = model.ParseTier(opts.tier)
	}

	modelClient, _ := engine.NewModelClient(*cfg)
	teller := engine.NewStoryteller(modelClient, logger)
	sessOpts := []session.Option{
		session.WithDelays(cfg.UploadDelay, cfg.AnalyzeDelay),
		session.WithIngestor(ingest.New(ingest.WithMaxPhotoBytes(cfg.MaxPhotoBytes), ingest.WithLogger(logger))),
		session.WithLogger(logger),
	}
	if opts.instant {
		sessOpts = append(sessOpts, session.WithScheduler(func(_ time.Duration, fn func()) { go fn() }))
	}
	sess := session.New(teller, teller, sessOpts...)
	defer sess.Close()

	sources, err := ingest.FileSources(paths)
	if err != nil {
		return err
	}
	runCtx := cmd.Context()
	if runCtx == nil {
		runCtx = context.Background()
	}
	items, err := sess.AddPhotos(runCtx, sources)
	if err != nil {
		return err
	}
	if opts.header > 0 {
		sess.SetHeader(items[opts.header-1].ID)
	}
	if !opts.json {
		writeItems(out, sess.Items())
	}

	if _, err := sess.WaitForArtifact(runCtx); err != nil {
		return fmt.Errorf("wait for story: %w", err)
	}
	warning := sess.LastError()
	if warning != nil && !opts.json {
		fmt.Fprintln(out, paint("warning: story generation failed, using a placeholder: "+warning.Message, ansiYellow, colorize))
	}

	for _, instruction := range opts.refine {
		if err := sess.Refine(runCtx, instruction); err != nil {
			return fmt.Errorf("refine %q: %w", instruction, err)
		}
	}
	if opts.title != "" {
		sess.SetTitle(opts.title)
	}
	for _, tag := range tags {
		sess.AddTag(tag.category, tag.value)
	}

	draft, err := sess.Assemble(tier)
	var ceiling *session.CeilingError
	if errors.As(err, &ceiling) {
		return fmt.Errorf("%w: remove %d photo(s) or choose a larger tier", err, ceiling.Count-ceiling.Ceiling)
	}
	if err != nil {
		return err
	}

	result := composeResult{Draft: draft, Tier: tier, Warning: warning}
	if opts.commit {
		id, err := sess.Commit(runCtx, tier, st)
		if err != nil {
			return err
		}
		result.MomentID = id
	}

	if opts.json {
		return writeJSON(cmd, result)
	}
	fmt.Fprintln(out)
	writeDraft(out, draft, colorize)
	if result.MomentID != "" {
		fmt.Fprintf(out, "\nSaved moment %s (%s tier)\n", result.MomentID, tier)
	}
	return nil
}

// parseTagArgs parses "category=value" flags.
func parseTagArgs(raw []string) ([]tagArg, error) {
	out := make([]tagArg, 0, len(raw))
	for _, r := range raw {
		name, value, ok := strings.Cut(r, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --tag %q: want category=value", r)
		}
		category, err := model.ParseTagCategory(name)
		if err != nil {
			return nil, fmt.Errorf("invalid --tag %q: %w", r, err)
		}
		value = strings.TrimSpace(value)
		if value == "" {
			return nil, fmt.Errorf("invalid --tag %q: empty value", r)
		}
		out = append(out, tagArg{category: category, value: value})
	}
	return out, nil
}
