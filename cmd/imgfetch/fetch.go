package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nao1215/imgfetch/internal/config"
	"github.com/nao1215/imgfetch/internal/database"
	"github.com/nao1215/imgfetch/internal/fetcher"
	"github.com/nao1215/imgfetch/internal/metadata"
	"github.com/nao1215/imgfetch/internal/model"
	"github.com/nao1215/imgfetch/internal/pipeline"
	"github.com/nao1215/imgfetch/internal/report"
	"github.com/nao1215/imgfetch/internal/validator"
)

// NewFetchCmd creates the fetch command.
func NewFetchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch [url...]",
		Short: "Download images, skipping content that was saved before",
		Long: `Fetch downloads every URL into the output directory.

Each URL ends in exactly one of four results:
  saved      the image was written to the output directory
  duplicate  the same content was saved before (by any URL, in any run)
  rejected   the response is not an image or is empty
  failed     the URL is invalid, unreachable, too large, or could not be stored

URLs come from the arguments, from --urls (comma or newline separated), or
from --list (one file, "-" for stdin). With none of these, imgfetch asks for
URLs on the terminal.

Examples:
  # Fetch two images into ./Fetched_Images
  imgfetch fetch https://example.com/a.png https://example.com/b.jpg

  # Fetch a comma separated list into ./pics
  imgfetch fetch --urls "https://example.com/a.png,https://example.com/b.jpg" -d pics

  # Read URLs from a file and fetch four at a time
  imgfetch fetch --list urls.txt -p 4

  # Fetch anonymously through an embedded Tor daemon
  imgfetch fetch --tor https://example.com/a.png

  # Fetch through a SOCKS5 proxy and write a Markdown report
  imgfetch fetch --proxy socks5://127.0.0.1:9050 --markdown -r report.md --list urls.txt

Configuration file (.imgfetch.yaml) example:
  output_dir: pics
  max_size: 20MB
  hosts:
    images.example.com:
      cookie: "session=abc123"
      headers:
        Referer: "https://example.com/"`,
		Args: cobra.ArbitraryArgs,
		RunE: runFetchCmd,
	}

	// Input flags
	cmd.Flags().StringP("urls", "u", "",
		"Comma or newline separated list of URLs")
	cmd.Flags().StringP("list", "l", "",
		`File with URLs separated by commas or newlines ("-" reads stdin)`)

	// Storage flags
	cmd.Flags().StringP("output-dir", "d", config.DefaultOutputDir,
		"Directory images and the hash index are stored in")

	// Fetch policy flags
	cmd.Flags().StringP("max-size", "s", humanize.IBytes(uint64(config.DefaultMaxSize)),
		`Largest accepted image (e.g. "500KB", "10MiB")`)
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout for each request, including the body")
	cmd.Flags().Int("max-redirects", config.DefaultMaxRedirects,
		"Redirects followed per request (0 disables redirects)")
	cmd.Flags().IntP("concurrency", "p", config.DefaultConcurrency,
		"Number of URLs fetched at once")
	cmd.Flags().String("user-agent", "",
		"User-Agent header (default: imgfetch/<version>)")
	cmd.Flags().StringSlice("allow-type", nil,
		`Accept only these image subtypes (e.g. "png,jpeg"); default accepts any image/*`)
	cmd.Flags().Bool("no-metadata", false,
		"Do not read EXIF metadata from saved images")

	// Transport flags
	cmd.Flags().StringP("proxy", "x", "",
		"Proxy URL (socks5://, socks5h://, http://)")
	cmd.Flags().Bool("tor", false,
		"Fetch through an embedded Tor daemon")
	cmd.Flags().DurationP("tor-timeout", "T", config.DefaultTorStartupTimeout,
		"Timeout for embedded Tor startup")

	// Configuration and history
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .imgfetch.yaml in current, XDG config or home directory)")
	cmd.Flags().Bool("no-history", false,
		"Do not record this run in the history database")
	cmd.Flags().String("db-dir", "",
		"History database directory (default: XDG data directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("report", "r", "",
		"Write report to specified file path (creates directories if needed)")

	return cmd
}

// runFetchCmd executes the fetch command.
func runFetchCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// URLs still in flight are reported as cancelled after an interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received shutdown signal, cancelling...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return runFetch(ctx, cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), logger)
}

// buildConfig creates a Config from defaults, the configuration file and
// cobra command flags, in increasing order of precedence.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	cfg.UserAgent = userAgent()
	cfg.Verbose = getVerboseFlag(cmd)

	flags := cmd.Flags()
	var err error

	cfg.ConfigFilePath, err = flags.GetString("config")
	if err != nil {
		return nil, err
	}

	// An explicitly given file must exist; the search locations are optional.
	explicitConfigPath := cfg.ConfigFilePath != ""
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	if configPath != "" {
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		if err := cfg.ApplyFile(file); err != nil {
			return nil, fmt.Errorf("config file %s: %w", configPath, err)
		}
		cfg.ConfigFilePath = configPath
	} else if explicitConfigPath {
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if flags.Changed("output-dir") {
		if cfg.OutputDir, err = flags.GetString("output-dir"); err != nil {
			return nil, err
		}
	}

	if flags.Changed("max-size") {
		raw, err := flags.GetString("max-size")
		if err != nil {
			return nil, err
		}
		n, err := humanize.ParseBytes(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", config.ErrInvalidMaxSize, raw)
		}
		cfg.MaxSize = int64(n) //nolint:gosec // checked by Validate
	}

	if flags.Changed("timeout") {
		if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
			return nil, err
		}
	}

	if flags.Changed("max-redirects") {
		if cfg.MaxRedirects, err = flags.GetInt("max-redirects"); err != nil {
			return nil, err
		}
	}

	if flags.Changed("concurrency") {
		if cfg.Concurrency, err = flags.GetInt("concurrency"); err != nil {
			return nil, err
		}
	}

	if flags.Changed("user-agent") {
		if cfg.UserAgent, err = flags.GetString("user-agent"); err != nil {
			return nil, err
		}
	}

	if flags.Changed("allow-type") {
		if cfg.AllowedTypes, err = flags.GetStringSlice("allow-type"); err != nil {
			return nil, err
		}
	}

	noMetadata, err := flags.GetBool("no-metadata")
	if err != nil {
		return nil, err
	}
	if noMetadata {
		cfg.ExtractMetadata = false
	}

	if flags.Changed("proxy") {
		if cfg.ProxyURL, err = flags.GetString("proxy"); err != nil {
			return nil, err
		}
	}

	if cfg.UseTor, err = flags.GetBool("tor"); err != nil {
		return nil, err
	}
	if cfg.TorStartupTimeout, err = flags.GetDuration("tor-timeout"); err != nil {
		return nil, err
	}

	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return nil, err
	}
	cfg.SaveHistory = !noHistory

	dbDir, err := flags.GetString("db-dir")
	if err != nil {
		return nil, err
	}
	if dbDir != "" {
		cfg.DBDir = dbDir
	}

	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("report"); err != nil {
		return nil, err
	}

	cfg.URLs, err = collectURLs(cmd, args)
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// collectURLs gathers the batch from arguments, --urls and --list, in that
// order. With none of them given it prompts on stdin.
func collectURLs(cmd *cobra.Command, args []string) ([]string, error) {
	urlsFlag, err := cmd.Flags().GetString("urls")
	if err != nil {
		return nil, err
	}
	listFile, err := cmd.Flags().GetString("list")
	if err != nil {
		return nil, err
	}

	if len(args) == 0 && urlsFlag == "" && listFile == "" {
		return promptURLs(cmd.InOrStdin(), cmd.ErrOrStderr())
	}

	var urls []string
	for _, arg := range args {
		urls = append(urls, model.ParseURLList(arg)...)
	}
	urls = append(urls, model.ParseURLList(urlsFlag)...)

	if listFile != "" {
		var data []byte
		if listFile == "-" {
			data, err = io.ReadAll(cmd.InOrStdin())
		} else {
			data, err = os.ReadFile(listFile) //nolint:gosec // User-provided list path is intentional
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read URL list: %w", err)
		}
		urls = append(urls, model.ParseURLList(string(data))...)
	}

	return urls, nil
}

// promptURLs reads URLs interactively until an empty line or EOF.
func promptURLs(in io.Reader, out io.Writer) ([]string, error) {
	fmt.Fprintln(out, "Enter image URLs separated by commas or new lines.")
	fmt.Fprintln(out, "Finish with an empty line (or Ctrl-D):")

	var sb strings.Builder
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			break
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URLs: %w", err)
	}
	return model.ParseURLList(sb.String()), nil
}

// runFetch executes one batch. Only run-fatal conditions return an error;
// per-URL problems are part of the report.
func runFetch(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer, logger *slog.Logger) error {
	logger.Info("starting fetch",
		"urls", len(cfg.URLs),
		"outputDir", cfg.OutputDir,
		"concurrency", cfg.Concurrency,
		"proxy", cfg.ProxyURL,
		"tor", cfg.UseTor,
	)

	transport, cleanup, err := setupTransport(ctx, cfg, stderr, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	fetcherOpts := []fetcher.Option{
		fetcher.WithMaxBytes(cfg.MaxSize),
		fetcher.WithTimeout(cfg.Timeout),
		fetcher.WithMaxRedirects(cfg.MaxRedirects),
		fetcher.WithUserAgent(cfg.UserAgent),
		fetcher.WithLogger(logger),
		fetcher.WithHeaders(cfg.Hosts.HeadersFor),
	}
	if transport != nil {
		fetcherOpts = append(fetcherOpts, fetcher.WithTransport(transport))
	}

	orchCfg := pipeline.OrchestratorConfig{
		Fetcher:     fetcher.New(fetcherOpts...),
		Validator:   validator.New(validator.WithAllowedTypes(cfg.AllowedTypes)),
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	}
	if cfg.ExtractMetadata {
		orchCfg.Extractor = metadata.NewEXIFExtractor()
	}

	started := time.Now()
	run := &database.Run{ID: uuid.NewString(), StartedAt: started, OutputDir: absPath(cfg.OutputDir)}

	catalog := openCatalog(ctx, cfg, run, logger)
	if catalog != nil {
		defer catalog.Close()
		orchCfg.Recorder = catalog.Recorder(run.ID)
	}

	orch, err := pipeline.NewOrchestrator(cfg.OutputDir, orchCfg)
	if err != nil {
		finishRun(ctx, catalog, run.ID, model.Summary{}, err, logger)
		return err
	}

	outcomes, runErr := orch.Run(ctx, cfg.URLs)

	batch := model.NewBatchReport(run.ID, orch.OutputDir(), started, outcomes)
	if runErr != nil {
		batch.Fatal = runErr.Error()
	}
	finishRun(ctx, catalog, run.ID, batch.Summary, runErr, logger)

	if err := outputReport(cfg, batch, stdout); err != nil {
		logger.Error("report failed", "error", err)
		if runErr == nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}

	return runErr
}

// setupTransport returns the round tripper for the configured proxy or
// embedded Tor daemon, or nil for a direct connection. cleanup is never nil.
func setupTransport(ctx context.Context, cfg *config.Config, stderr io.Writer, logger *slog.Logger) (http.RoundTripper, func(), error) {
	noop := func() {}

	switch {
	case cfg.UseTor:
		return startEmbeddedTor(ctx, cfg, stderr, logger)

	case cfg.ProxyURL != "":
		transport, err := fetcher.NewProxyTransport(cfg.ProxyURL)
		if err != nil {
			return nil, noop, err
		}

		// Fail before the batch when a SOCKS proxy is not there at all.
		if addr := fetcher.ProxyAddress(cfg.ProxyURL); addr != "" {
			checkCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
			defer cancel()
			if status := fetcher.CheckSOCKS5(checkCtx, addr); status != fetcher.ProxyStatusOK {
				return nil, noop, fmt.Errorf("proxy check failed: %s (make sure a SOCKS5 proxy is running at %s)", status, addr)
			}
			logger.Info("SOCKS5 proxy verified", "address", addr)
		}
		return transport, noop, nil

	default:
		return nil, noop, nil
	}
}

// startEmbeddedTor starts an embedded Tor daemon and returns a transport
// through it. The cleanup function stops the daemon.
func startEmbeddedTor(ctx context.Context, cfg *config.Config, stderr io.Writer, logger *slog.Logger) (http.RoundTripper, func(), error) {
	fmt.Fprintln(stderr, "Starting embedded Tor daemon...")
	fmt.Fprintln(stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.")

	embeddedTor := fetcher.NewEmbeddedTor(
		fetcher.WithStartupTimeout(cfg.TorStartupTimeout),
	)
	if err := embeddedTor.Start(ctx); err != nil {
		return nil, func() {}, fmt.Errorf("failed to start embedded Tor: %w", err)
	}

	cleanup := func() {
		logger.Info("stopping embedded Tor daemon...")
		if err := embeddedTor.Stop(); err != nil {
			logger.Error("failed to stop embedded Tor", "error", err)
		}
	}

	logger.Info("embedded Tor daemon started",
		"socksAddr", embeddedTor.SocksAddr(),
		"controlAddr", embeddedTor.ControlAddr(),
	)

	transport, err := embeddedTor.Transport()
	if err != nil {
		cleanup()
		return nil, func() {}, fmt.Errorf("failed to create Tor transport: %w", err)
	}

	if status := fetcher.CheckSOCKS5(ctx, embeddedTor.SocksAddr()); status != fetcher.ProxyStatusOK {
		cleanup()
		return nil, func() {}, fmt.Errorf("embedded Tor proxy check failed: %s", status)
	}

	fmt.Fprintf(stderr, "Embedded Tor daemon started (SOCKS proxy %s)\n", embeddedTor.SocksAddr())
	return transport, cleanup, nil
}

// openCatalog opens the history database and starts a run in it. History
// is a convenience: when it cannot be opened the batch runs without it.
func openCatalog(ctx context.Context, cfg *config.Config, run *database.Run, logger *slog.Logger) *database.Catalog {
	if !cfg.SaveHistory {
		return nil
	}

	catalog, err := database.Open(cfg.DBDir, database.DefaultOptions())
	if err != nil {
		logger.Warn("history disabled: failed to open database", "dir", cfg.DBDir, "error", err)
		return nil
	}

	if err := catalog.StartRun(ctx, run); err != nil {
		logger.Warn("history disabled: failed to start run", "error", err)
		_ = catalog.Close() //nolint:errcheck // Best effort cleanup
		return nil
	}

	logger.Info("recording run", "runID", run.ID, "db", catalog.Path())
	return catalog
}

// finishRun closes the run in the catalog, if there is one.
func finishRun(ctx context.Context, catalog *database.Catalog, runID string, summary model.Summary, runErr error, logger *slog.Logger) {
	if catalog == nil {
		return
	}

	var fatal string
	if runErr != nil {
		fatal = runErr.Error()
	}
	// Finish the run even after an interrupt.
	if err := catalog.FinishRun(context.WithoutCancel(ctx), runID, time.Now(), summary, fatal); err != nil {
		logger.Warn("failed to finish run in history", "runID", runID, "error", err)
	}
}

// outputReport outputs the batch report in the requested format.
func outputReport(cfg *config.Config, batch *model.BatchReport, stdout io.Writer) error {
	output := stdout
	if cfg.ReportFile != "" {
		dir := filepath.Dir(cfg.ReportFile)
		if dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0750); err != nil {
				return fmt.Errorf("failed to create report directory: %w", err)
			}
		}

		f, err := os.OpenFile(cfg.ReportFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
		if err != nil {
			return fmt.Errorf("failed to create report file: %w", err)
		}
		defer f.Close()
		output = f
	}

	var writer report.Writer
	switch {
	case cfg.JSONReport:
		writer = report.NewJSONWriter(output, report.WithPrettyPrint(), report.WithVersion(getVersion()))
	case cfg.MarkdownReport:
		writer = report.NewMarkdownWriter(output)
	default:
		writer = report.NewSimpleWriter(output, report.WithVerbose(cfg.Verbose))
	}

	if _, err := writer.Write(batch); err != nil {
		return err
	}

	// Keep the one-line summary on the terminal when the report goes to a file.
	if cfg.ReportFile != "" {
		s := batch.Summary
		fmt.Fprintf(stdout, "saved %d, duplicate %d, rejected %d, failed %d; report written to %s\n",
			s.Saved, s.Duplicate, s.Rejected, s.Failed, cfg.ReportFile)
	}
	return nil
}

// absPath returns p as an absolute path when it can be determined.
func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return p
}
