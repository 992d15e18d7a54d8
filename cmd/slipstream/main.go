package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/slipstream-hr/slipstream/internal/client"
	"github.com/slipstream-hr/slipstream/internal/common"
	"github.com/slipstream-hr/slipstream/internal/models"
	"github.com/slipstream-hr/slipstream/internal/services/events"
	"github.com/slipstream-hr/slipstream/internal/services/scheduler"
	badgerstore "github.com/slipstream-hr/slipstream/internal/storage/badger"
	"github.com/slipstream-hr/slipstream/internal/tracker"
)

// configPaths is a custom flag type that allows multiple -config flags
type configPaths []string

func (c *configPaths) String() string {
	return fmt.Sprintf("%v", *c)
}

func (c *configPaths) Set(value string) error {
	*c = append(*c, value)
	return nil
}

var (
	// Command-line flags
	configFiles  configPaths // Multiple -config flags supported
	apiURL       = flag.String("api-url", "", "Backend API base URL (overrides config)")
	apiToken     = flag.String("token", "", "Bearer token (overrides config)")
	showVersion  = flag.Bool("version", false, "Print version information")
	showVersionV = flag.Bool("v", false, "Print version information (shorthand)")

	// Global state
	config *common.Config
	logger arbor.ILogger
)

func init() {
	// Register custom flag for multiple config files
	flag.Var(&configFiles, "config", "Configuration file path (can be specified multiple times, later files override earlier ones)")
	flag.Var(&configFiles, "c", "Configuration file path (shorthand)")
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: slipstream [flags] <command> [command flags]

Commands:
  employees                    List employees (refreshes local cache)
  batches                      List payslip batches (refreshes local cache)
  upload-employees <file>      Bulk upload an employee spreadsheet (.xlsx)
  upload-payslips <file>       Upload a payslip PDF or ZIP (-month YYYY-MM required)
  send-batch <uuid>            Queue email sending for a processed batch (-at to defer)
  template <file>              Download the bulk upload spreadsheet template

Flags:
`)
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	flag.Parse()

	// Handle version flag
	if *showVersion || *showVersionV {
		fmt.Printf("Slipstream version %s\n", common.GetVersion())
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	// Startup sequence (REQUIRED ORDER):
	// 1. Load config (defaults -> file1 -> file2 -> ... -> env)
	// 2. Apply CLI overrides (highest priority)
	// 3. Initialize logger
	// 4. Print banner
	var err error

	// Auto-discover config file if not specified
	if len(configFiles) == 0 {
		if _, err := os.Stat("slipstream.toml"); err == nil {
			configFiles = append(configFiles, "slipstream.toml")
		}
	}

	config, err = common.LoadFromFiles(configFiles...)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	common.ApplyFlagOverrides(config, *apiURL, *apiToken)

	logger = common.InitLogger(config)

	common.PrintBanner(common.GetVersion())

	logger.Debug().
		Str("base_url", config.API.BaseURL).
		Str("poll_interval", config.Tracker.PollInterval).
		Str("log_level", config.Logging.Level).
		Msg("Resolved configuration")

	app, err := newApp(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer app.Close()

	if err := app.run(args[0], args[1:]); err != nil {
		logger.Error().Err(err).Str("command", args[0]).Msg("Command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// App wires the client, tracker, reconciler, event bus and cache
type App struct {
	config     *common.Config
	logger     arbor.ILogger
	client     *client.Client
	tracker    *tracker.Tracker
	reconciler *tracker.Reconciler
	db         *badgerstore.BadgerDB
	cache      *badgerstore.CollectionCache
}

func newApp(config *common.Config, logger arbor.ILogger) (*App, error) {
	apiClient, err := client.New(config, logger)
	if err != nil {
		return nil, err
	}

	eventService := events.NewService(logger)

	db, err := badgerstore.NewBadgerDB(logger, &config.Cache)
	if err != nil {
		return nil, err
	}

	cache := badgerstore.NewCollectionCache(db, apiClient, logger)
	if err := cache.BindEvents(eventService); err != nil {
		db.Close()
		return nil, err
	}

	jobTracker := tracker.New(apiClient, logger,
		tracker.WithInterval(config.PollInterval()),
		tracker.WithMaxPolls(config.Tracker.MaxPolls),
	)

	return &App{
		config:     config,
		logger:     logger,
		client:     apiClient,
		tracker:    jobTracker,
		reconciler: tracker.NewReconciler(eventService, logger),
		db:         db,
		cache:      cache,
	}, nil
}

// Close releases application resources
func (a *App) Close() {
	a.tracker.Close()
	if a.db != nil {
		a.db.Close()
	}
}

func (a *App) run(command string, args []string) error {
	ctx := context.Background()

	switch command {
	case "employees":
		return a.runEmployees(ctx, args)
	case "batches":
		return a.runBatches(ctx, args)
	case "upload-employees":
		return a.runUploadEmployees(ctx, args)
	case "upload-payslips":
		return a.runUploadPayslips(ctx, args)
	case "send-batch":
		return a.runSendBatch(ctx, args)
	case "template":
		return a.runTemplate(ctx, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func (a *App) runEmployees(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("employees", flag.ExitOnError)
	noRefresh := fs.Bool("cached", false, "Print the cached snapshot without refetching")
	fs.Parse(args)

	if !*noRefresh {
		if err := a.cache.RefreshEmployees(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Refresh failed, falling back to cached snapshot")
		}
	}

	employees, err := a.cache.Employees(ctx)
	if err != nil {
		return err
	}

	if len(employees) == 0 {
		fmt.Println("No employees found.")
		return nil
	}

	fmt.Printf("%-12s %-25s %-30s %s\n", "IPPIS", "NAME", "EMAIL", "DEPARTMENT")
	for _, e := range employees {
		fmt.Printf("%-12s %-25s %-30s %s\n", e.IppisNumber, e.FirstName+" "+e.LastName, e.Email, e.Department)
	}
	fmt.Printf("\n%d employees\n", len(employees))
	return nil
}

func (a *App) runBatches(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("batches", flag.ExitOnError)
	payMonth := fs.String("month", "", "Filter by pay month (YYYY-MM)")
	noRefresh := fs.Bool("cached", false, "Print the cached snapshot without refetching")
	fs.Parse(args)

	if !*noRefresh {
		if err := a.cache.RefreshBatches(ctx); err != nil {
			a.logger.Warn().Err(err).Msg("Refresh failed, falling back to cached snapshot")
		}
	}

	batches, err := a.cache.Batches(ctx, *payMonth)
	if err != nil {
		return err
	}

	if len(batches) == 0 {
		fmt.Println("No payslip batches found.")
		return nil
	}

	fmt.Printf("%-38s %-8s %-10s %-10s %-7s %s\n", "UUID", "MONTH", "STATUS", "EMAIL", "FILES", "SENT")
	for _, b := range batches {
		sent := "-"
		if b.SentAt != nil {
			sent = b.SentAt.Format("2006-01-02 15:04")
		}
		fmt.Printf("%-38s %-8s %-10s %-10s %d/%-5d %s\n",
			b.UUID, b.PayMonth, b.Status, b.EmailStatus, b.SuccessCount, b.TotalFiles, sent)
	}
	fmt.Printf("\n%d batches\n", len(batches))
	return nil
}

func (a *App) runUploadEmployees(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload-employees", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: slipstream upload-employees <file.xlsx>")
	}

	submission, err := a.client.SubmitBulkUpload(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	fmt.Printf("Upload accepted (job %s), processing...\n", submission.JobID)
	return a.trackToCompletion(ctx, submission.JobID, models.JobKindEmployeeBulkUpload)
}

func (a *App) runUploadPayslips(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("upload-payslips", flag.ExitOnError)
	payMonth := fs.String("month", "", "Pay month (YYYY-MM, required)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: slipstream upload-payslips -month YYYY-MM <file.pdf|file.zip>")
	}

	submission, err := a.client.SubmitPayslipUpload(ctx, fs.Arg(0), *payMonth)
	if err != nil {
		return err
	}

	fmt.Printf("Upload accepted (job %s), processing...\n", submission.JobID)
	return a.trackToCompletion(ctx, submission.JobID, models.JobKindPayslipUpload)
}

func (a *App) runSendBatch(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send-batch", flag.ExitOnError)
	at := fs.String("at", "", "Defer sending until this time (RFC 3339 or 2006-01-02 15:04)")
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: slipstream send-batch [-at time] <batch-uuid>")
	}
	batchUUID := fs.Arg(0)

	if *at != "" {
		return a.runScheduledSend(ctx, batchUUID, *at)
	}

	submission, err := a.client.SubmitBatchSend(ctx, batchUUID)
	if err != nil {
		return err
	}

	fmt.Printf("Send queued (job %s)...\n", submission.JobID)
	return a.trackToCompletion(ctx, submission.JobID, models.JobKindBatchSend)
}

// runScheduledSend defers a batch send via the scheduler and stays in
// the foreground until the dispatched job reaches a terminal state
func (a *App) runScheduledSend(ctx context.Context, batchUUID, at string) error {
	if !a.config.Scheduler.Enabled {
		return fmt.Errorf("scheduler is disabled in configuration")
	}

	when, err := parseScheduleTime(at)
	if err != nil {
		return err
	}

	updates := make(chan *models.Job, 16)
	sendScheduler := scheduler.NewService(a.client, a.tracker, func(job *models.Job) {
		updates <- job
	}, a.logger)

	if err := sendScheduler.Start(); err != nil {
		return err
	}
	defer sendScheduler.Stop()

	if err := sendScheduler.ScheduleSendAt(batchUUID, when); err != nil {
		return err
	}

	fmt.Printf("Batch %s scheduled for %s, waiting...\n", batchUUID, when.Format("2006-01-02 15:04"))
	return a.renderUpdates(ctx, updates)
}

func (a *App) runTemplate(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("template", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: slipstream template <output.xlsx>")
	}
	outPath := fs.Arg(0)

	data, err := a.client.DownloadEmployeeTemplate(ctx)
	if err != nil {
		return err
	}

	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outPath, err)
	}

	fmt.Printf("Template saved to %s\n", filepath.Clean(outPath))
	return nil
}

// trackToCompletion polls one job to its terminal state, rendering
// progress as it arrives
func (a *App) trackToCompletion(ctx context.Context, jobID string, kind models.JobKind) error {
	updates := make(chan *models.Job, 16)
	a.tracker.Track(jobID, kind, func(job *models.Job) {
		updates <- job
	})
	return a.renderUpdates(ctx, updates)
}

// renderUpdates consumes job snapshots until a terminal one arrives,
// then reconciles it into the final outcome
func (a *App) renderUpdates(ctx context.Context, updates <-chan *models.Job) error {
	for job := range updates {
		view := tracker.NormalizeProgress(job.Progress)
		switch {
		case job.IsTerminal():
			return a.renderOutcome(ctx, job)
		case view.DetailText != "":
			fmt.Printf("  %3d%%  %s\n", view.Percentage, view.DetailText)
		default:
			fmt.Printf("  %3d%%  %s\n", view.Percentage, job.State)
		}
	}
	return nil
}

// renderOutcome prints the reconciled notice for a terminal job
func (a *App) renderOutcome(ctx context.Context, job *models.Job) error {
	notice := a.reconciler.Reconcile(ctx, job)
	if notice == nil {
		return nil
	}

	switch notice.Severity {
	case tracker.SeveritySuccess:
		fmt.Printf("\n✓ %s\n", notice.Message)
	case tracker.SeverityWarning:
		fmt.Printf("\n⚠ %s\n", notice.Message)
		for _, rowErr := range notice.RowErrors {
			fmt.Printf("  row %d (%s): %v\n", rowErr.Row, rowErr.IppisNumber, rowErr.Errors)
		}
	case tracker.SeverityError:
		return fmt.Errorf("%s", notice.Message)
	}

	// Give the listing commands a fresh snapshot right away rather than
	// waiting for the next explicit refresh
	a.refreshAfter(ctx, job.Kind)
	return nil
}

// refreshAfter synchronously refreshes the collection a completed job
// invalidated
func (a *App) refreshAfter(ctx context.Context, kind models.JobKind) {
	refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	var err error
	switch kind {
	case models.JobKindEmployeeBulkUpload:
		err = a.cache.RefreshEmployees(refreshCtx)
	case models.JobKindPayslipUpload, models.JobKindBatchSend:
		err = a.cache.RefreshBatches(refreshCtx)
	}
	if err != nil {
		a.logger.Warn().Err(err).Msg("Post-completion cache refresh failed")
	}
}

// parseScheduleTime accepts RFC 3339 or a local "2006-01-02 15:04" time
func parseScheduleTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", value, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q: use RFC 3339 or \"2006-01-02 15:04\"", value)
}
