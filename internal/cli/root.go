// Package cli implements the studio command line: one-shot generate, edit and
// compose runs plus management of the stored Gemini API key.
package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"studio/internal/imagegen"
	"studio/internal/infra"
	"studio/internal/infra/credentials"
)

// Runner executes one generation request end to end.
type Runner interface {
	Run(ctx context.Context, mode imagegen.Mode, prompt string, attachments []imagegen.Attachment) imagegen.Result
}

// Options overrides the collaborators normally built from configuration.
type Options struct {
	Stdout io.Writer
	Stderr io.Writer
	Stdin  io.Reader

	Config      *infra.Config
	Credentials credentials.Store
	Runner      Runner
}

type env struct {
	opts    Options
	verbose bool

	logger infra.Logger
	store  credentials.Store
	runner Runner
	close  func()
}

// NewRootCommand builds the command tree.
func NewRootCommand(opts Options) *cobra.Command {
	e := &env{opts: opts, close: func() {}}

	root := &cobra.Command{
		Use:   "studio",
		Short: "Generate, edit and compose images with Gemini",
		Long: `studio sends prompts and images to the Gemini image model and saves the
result to disk.

Examples:
  studio key set
  studio generate "a watercolor fox in the snow"
  studio edit -i cat.png "give the cat a party hat"
  studio compose -i room.png -i sofa.png "place the sofa in the room"`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return e.setup(cmd.Context())
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			e.close()
		},
	}
	if opts.Stdout != nil {
		root.SetOut(opts.Stdout)
	}
	if opts.Stderr != nil {
		root.SetErr(opts.Stderr)
	}
	if opts.Stdin != nil {
		root.SetIn(opts.Stdin)
	}
	root.PersistentFlags().BoolVarP(&e.verbose, "verbose", "v", false, "Log provider traffic to stderr")

	root.AddCommand(
		newGenerateCommand(e),
		newEditCommand(e),
		newComposeCommand(e),
		newKeyCommand(e),
	)
	return root
}

func (e *env) setup(ctx context.Context) error {
	cfg := e.opts.Config
	if cfg == nil {
		loaded, err := infra.LoadConfig()
		if err != nil {
			return err
		}
		cfg = loaded
	}

	stderr := e.opts.Stderr
	if stderr == nil {
		stderr = io.Discard
	}
	e.logger = infra.NewLoggerTo(stderr, cfg.AppEnv)
	if !e.verbose {
		e.logger = e.logger.Level(zerolog.WarnLevel)
	}

	e.store = e.opts.Credentials
	if e.store == nil {
		store, closeStore, err := credentials.Open(ctx, cfg, e.logger)
		if err != nil {
			return fmt.Errorf("open credential store: %w", err)
		}
		e.store = store
		e.close = closeStore
	}

	e.runner = e.opts.Runner
	if e.runner == nil {
		client := imagegen.NewClient(imagegen.Options{
			BaseURL:    cfg.GeminiBaseURL,
			Model:      cfg.GeminiModel,
			HTTPClient: &http.Client{Timeout: cfg.GeminiTimeout},
			Logger:     &e.logger,
		})
		e.runner = imagegen.NewPipeline(imagegen.PipelineOptions{
			Credentials: e.store,
			Transport:   client,
			Logger:      &e.logger,
		})
	}
	return nil
}
