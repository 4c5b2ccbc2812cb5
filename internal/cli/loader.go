package cli

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/quill/internal/engine"
	"github.com/roach88/quill/internal/schema"
	"github.com/roach88/quill/internal/store"
)

// openEngine loads the schema file, opens the database and wires an
// engine. The caller closes the returned store.
func openEngine(opts *RootOptions) (*engine.Engine, *store.Store, error) {
	if opts.Schema == "" {
		return nil, nil, NewExitError(ExitCommandError, "--schema is required")
	}
	if opts.Database == "" {
		return nil, nil, NewExitError(ExitCommandError, "--db is required")
	}

	registry, err := schema.LoadFile(opts.Schema)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "load schema", err)
	}

	s, err := store.Open(opts.Database, registry)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "open database", err)
	}
	if err := s.EnsureSchema(context.Background(), registry); err != nil {
		s.Close()
		return nil, nil, WrapExitError(ExitCommandError, "ensure schema", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if opts.Verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	return engine.New(s, registry, engine.WithLogger(logger)), s, nil
}
