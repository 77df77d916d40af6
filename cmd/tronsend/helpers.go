package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/brojonat/tronsend/service/db"
	"github.com/brojonat/tronsend/service/network"
	"github.com/brojonat/tronsend/service/temporal"
	"github.com/brojonat/tronsend/service/transfer"
	"github.com/brojonat/tronsend/service/tron"
	"github.com/itchyny/gojq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/urfave/cli/v2"
)

// newLogger writes JSON logs to the app's error stream so stdout stays machine readable.
func newLogger(c *cli.Context) *slog.Logger {
	var level slog.Level
	switch c.String("log-level") {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewJSONHandler(c.App.ErrWriter, &slog.HandlerOptions{Level: level}))
}

// getDialer builds the node dialer from the global flags.
func getDialer(c *cli.Context, logger *slog.Logger) transfer.DialFunc {
	dial := transfer.HTTPDialer(tron.HTTPClientOptions{
		RateLimit: c.Float64("rpc-rate-limit"),
	}, nil, logger)
	return transfer.WithEndpoint(dial, c.String("rpc-url"))
}

// openLedger opens a read-only session on the selected network.
func openLedger(ctx context.Context, c *cli.Context, logger *slog.Logger) (transfer.Ledger, network.Profile, error) {
	profile, err := network.Resolve(c.String("network"))
	if err != nil {
		return nil, network.Profile{}, err
	}
	profile = profile.WithAPIKey(c.String("api-key"))
	if profile.RequiresAPIKey() && profile.APIKey == "" {
		return nil, profile, fmt.Errorf("api-key is required for %s (set TRONGRID_API_KEY or use --api-key)", profile.Name)
	}

	ledger, err := getDialer(c, logger)(ctx, profile, nil)
	if err != nil {
		return nil, profile, err
	}
	return ledger, profile, nil
}

// Helper function to connect to database
func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := pgxpool.New(c.Context, dbURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := pool.Ping(c.Context); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := db.NewStore(pool, nil)
	if err := store.EnsureSchema(c.Context); err != nil {
		pool.Close()
		return nil, nil, err
	}
	closer := func() { pool.Close() }

	return store, closer, nil
}

func getTemporalClient(c *cli.Context, logger *slog.Logger) (*temporal.Client, error) {
	return temporal.NewClient(
		c.String("temporal-host"),
		c.String("temporal-namespace"),
		c.String("temporal-task-queue"),
		logger,
	)
}

// structured reports whether output should be JSON rather than human readable.
func structured(c *cli.Context) bool {
	return c.Bool("json") || c.String("jq") != ""
}

// outputStructured writes v as JSON, through the --jq filter when one is given.
func outputStructured(c *cli.Context, v interface{}) error {
	if filter := c.String("jq"); filter != "" {
		return outputJQ(c.App.Writer, filter, v)
	}
	return outputJSON(c.App.Writer, v)
}

// Helper function to output JSON
func outputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputJQ runs filter over v and writes one JSON document per result.
func outputJQ(w io.Writer, filter string, v interface{}) error {
	query, err := gojq.Parse(filter)
	if err != nil {
		return fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		return fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
	}

	// gojq only understands plain JSON values
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var input interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	iter := code.Run(input)
	for {
		result, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, isErr := result.(error); isErr {
			return fmt.Errorf("jq filter %q: %w", filter, err)
		}
		if err := enc.Encode(result); err != nil {
			return err
		}
	}
}

// formatTRX renders an amount in SUN as TRX with full precision.
func formatTRX(sun uint64) string {
	return fmt.Sprintf("%d.%06d TRX", sun/1_000_000, sun%1_000_000)
}

// Helper function to format optional values
func formatOptional(s *string) string {
	if s != nil && *s != "" {
		return *s
	}
	return "(none)"
}
