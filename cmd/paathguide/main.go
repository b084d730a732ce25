// Command paathguide serves and queries a Gurbani verse corpus.
// It provides commands for loading corpus files, searching from the
// terminal, and running the REST API server.
package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/FocuswithJustin/PaathGuide/core/corpus"
	"github.com/FocuswithJustin/PaathGuide/internal/api"
	"github.com/FocuswithJustin/PaathGuide/internal/config"
	"github.com/FocuswithJustin/PaathGuide/internal/loader"
	"github.com/FocuswithJustin/PaathGuide/internal/logging"
	"github.com/FocuswithJustin/PaathGuide/internal/store"
)

const version = "0.1.0"

// CLI defines the command-line interface for paathguide.
var CLI struct {
	// Global flags
	Config string `name:"config" short:"c" help:"Path to YAML configuration file" type:"path"`
	DB     string `name:"db" help:"SQLite database path (overrides config)" type:"path"`

	Serve   ServeCmd   `cmd:"" help:"Start REST API server"`
	Load    LoadCmd    `cmd:"" help:"Load a corpus file into the database"`
	Search  SearchCmd  `cmd:"" help:"Search the corpus from the terminal"`
	Random  RandomCmd  `cmd:"" help:"Print a random verse"`
	Stats   StatsCmd   `cmd:"" help:"Print corpus statistics"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// loadConfig reads the configuration file and applies global flag overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(CLI.Config)
	if err != nil {
		return cfg, err
	}
	if CLI.DB != "" {
		cfg.Database.Path = CLI.DB
	}
	initLogging(cfg.Log)
	return cfg, nil
}

func initLogging(cfg config.Log) {
	level := logging.LevelInfo
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	format := logging.FormatJSON
	if strings.EqualFold(cfg.Format, "text") {
		format = logging.FormatText
	}
	logging.InitLogger(level, format)
}

// openCorpus opens the database and builds the in-memory corpus from it.
// The caller owns the returned store and must close it.
func openCorpus(ctx context.Context, cfg config.Config) (*store.Store, *corpus.Corpus, error) {
	st, err := store.Open(ctx, cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database %s: %w", cfg.Database.Path, err)
	}

	c := corpus.New(corpus.Config{
		ShingleSize:   cfg.Search.ShingleSize,
		MinSimilarity: cfg.Search.MinSimilarity,
		MaxCandidates: cfg.Search.MaxCandidates,
	})

	recs, err := st.Repository().All(ctx)
	if err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("failed to read verses: %w", err)
	}
	if err := c.Replace(recs); err != nil {
		st.Close()
		return nil, nil, fmt.Errorf("failed to build corpus index: %w", err)
	}

	return st, c, nil
}

// ServeCmd starts the REST API server.
type ServeCmd struct {
	Port int `help:"HTTP server port (overrides config)"`
}

func (s *ServeCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if s.Port != 0 {
		cfg.Server.Port = s.Port
	}

	ctx := context.Background()
	st, c, err := openCorpus(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	repo := st.Repository()
	ldr := &loader.Loader{Repo: repo, Corpus: c}

	srv := api.New(api.Config{
		Port:              cfg.Server.Port,
		RateLimitRequests: cfg.Server.RateLimit.RequestsPerMinute,
		RateLimitBurst:    cfg.Server.RateLimit.Burst,
		Auth: api.AuthConfig{
			Enabled: cfg.Server.Auth.Enabled,
			APIKey:  cfg.Server.Auth.APIKey,
		},
		TLS: api.TLSConfig{
			Enabled:  cfg.Server.TLS.Enabled,
			CertFile: cfg.Server.TLS.CertFile,
			KeyFile:  cfg.Server.TLS.KeyFile,
		},
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, c, repo, ldr)

	return srv.Start()
}

// LoadCmd loads a corpus file into the database.
type LoadCmd struct {
	Path      string `arg:"" help:"Corpus file (.txt, .txt.xz or .xml)" type:"existingfile"`
	SkipFirst int    `help:"Skip the first N lines of a text file"`
	Clear     bool   `help:"Delete all existing verses before loading"`
}

func (l *LoadCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, c, err := openCorpus(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	ldr := &loader.Loader{Repo: st.Repository(), Corpus: c}
	summary, err := ldr.LoadFile(ctx, l.Path, loader.Options{
		SkipFirst:     l.SkipFirst,
		ClearExisting: l.Clear,
	})
	if err != nil {
		return fmt.Errorf("load failed: %w", err)
	}

	fmt.Printf("Loaded: %s\n", summary.Source)
	fmt.Printf("  Verses: %d\n", summary.Loaded)
	fmt.Printf("  Skipped: %d\n", summary.Skipped)
	fmt.Printf("  Duplicates: %d\n", summary.Duplicates)
	if errs := summary.ErrorStrings(); len(errs) > 0 {
		fmt.Printf("  Errors: %d\n", len(errs))
		for _, e := range errs {
			fmt.Printf("    %s\n", e)
		}
	}
	return nil
}

// SearchCmd searches the corpus from the terminal.
type SearchCmd struct {
	Query         []string `arg:"" help:"Search query"`
	Limit         int      `help:"Maximum number of results" default:"10"`
	Exact         bool     `help:"Use exact full-text search instead of fuzzy matching"`
	MinSimilarity float64  `name:"min-similarity" help:"Minimum fuzzy match score (0-1)"`
}

func (s *SearchCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	query := strings.TrimSpace(strings.Join(s.Query, " "))
	if query == "" {
		return fmt.Errorf("query must not be empty")
	}

	ctx := context.Background()
	st, c, err := openCorpus(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	if s.Exact {
		verses, total, err := st.Repository().Search(ctx, store.SearchQuery{
			Query: query,
			Limit: s.Limit,
		})
		if err != nil {
			return err
		}
		fmt.Printf("%d matches (%d shown)\n", total, len(verses))
		for _, v := range verses {
			fmt.Printf("  (%d-%d) %s\n", v.Page, v.Line, v.Gurmukhi)
		}
		return nil
	}

	results, err := c.SearchMinScore(query, s.Limit, s.MinSimilarity)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No matches")
		return nil
	}
	for _, r := range results {
		fmt.Printf("%2d. [%.3f %s] (%d-%d) %s\n",
			r.Rank, r.Score, r.MatchType, r.Record.Page, r.Record.Line, r.Record.Gurmukhi)
		if r.Record.Translation != "" {
			fmt.Printf("      %s\n", r.Record.Translation)
		}
	}
	return nil
}

// RandomCmd prints a random verse.
type RandomCmd struct{}

func (r *RandomCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, c, err := openCorpus(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := c.RandomRecord()
	if err != nil {
		return err
	}
	fmt.Printf("(%d-%d) %s\n", rec.Page, rec.Line, rec.Gurmukhi)
	if rec.Transliteration != "" {
		fmt.Printf("  %s\n", rec.Transliteration)
	}
	if rec.Translation != "" {
		fmt.Printf("  %s\n", rec.Translation)
	}
	return nil
}

// StatsCmd prints corpus statistics.
type StatsCmd struct{}

func (s *StatsCmd) Run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, c, err := openCorpus(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	stats := c.Stats()
	fmt.Printf("Verses: %d\n", stats.TotalRecords)
	fmt.Printf("Pages: %d\n", stats.TotalPages)
	fmt.Printf("With translation: %d\n", stats.VersesWithTranslation)
	fmt.Printf("With transliteration: %d\n", stats.VersesWithTransliterated)
	fmt.Printf("Raags: %d\n", stats.UniqueRaags)
	fmt.Printf("Authors: %d\n", stats.UniqueAuthors)
	return nil
}

type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("paathguide version %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("paathguide"),
		kong.Description("PaathGuide - Gurbani verse search and navigation"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}
