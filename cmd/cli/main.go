package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/sheets-ledger/internal/auth"
	"github.com/dvloznov/sheets-ledger/internal/config"
	"github.com/dvloznov/sheets-ledger/internal/domain"
	"github.com/dvloznov/sheets-ledger/internal/importer"
	"github.com/dvloznov/sheets-ledger/internal/ingest"
	"github.com/dvloznov/sheets-ledger/internal/locator"
	"github.com/dvloznov/sheets-ledger/internal/logger"
	"github.com/dvloznov/sheets-ledger/internal/mirror"
	"github.com/dvloznov/sheets-ledger/internal/sheets"
	"github.com/rs/zerolog"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.LoadConfig("app")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewWithLevel(cfg.Logging.Level, cfg.Logging.Format)

	switch os.Args[1] {
	case "import":
		runImport(cfg, log)
	case "query":
		runQuery(cfg, log)
	case "categories":
		runCategories(cfg, log)
	case "spending":
		runSpending(cfg, log)
	case "locate":
		runLocate(cfg, log)
	case "upload":
		runUpload(log)
	case "migrate":
		runMigrate(cfg, log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Sheets Ledger CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  import      Import a CSV file (local path or gs:// URI) into the ledger")
	fmt.Println("  query       List ledger transactions")
	fmt.Println("  categories  Show the category lookup")
	fmt.Println("  spending    Sum expenses, in total and by category")
	fmt.Println("  locate      Print the ledger spreadsheet id, creating the spreadsheet if needed")
	fmt.Println("  upload      Upload a CSV file to GCS")
	fmt.Println("  migrate     Create the BigQuery mirror table")
	fmt.Println("  help        Show this help message")
	fmt.Println("\nLedger commands read the OAuth access token from GOOGLE_ACCESS_TOKEN.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// commandContext returns a context carrying log and the resolved credentials.
func commandContext(cfg *config.Config, log zerolog.Logger, timeout time.Duration) (context.Context, context.CancelFunc, auth.Credentials) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = logger.WithContext(ctx, log)

	creds, err := auth.StaticProvider{Creds: auth.Credentials{BearerToken: cfg.Google.AccessToken}}.Credentials(ctx, "")
	if err != nil {
		log.Fatal().Err(err).Msg("No credentials")
	}
	// Resolve the account e-mail so mirrored rows are attributed correctly.
	creds, err = auth.NewGoogleProvider().Credentials(ctx, creds.BearerToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Access token rejected")
	}
	return ctx, cancel, creds
}

func newLocator(cfg *config.Config) *locator.Locator {
	return locator.New(cfg.Sheets.SpreadsheetTitle,
		locator.WithLedgerOptions(
			sheets.WithQueryBaseURL(cfg.Sheets.QueryBaseURL),
			sheets.WithMatchPolicy(cfg.Ledger.MatchPolicy),
		),
	)
}

func openLedger(ctx context.Context, cfg *config.Config, log zerolog.Logger, creds auth.Credentials) sheets.Ledger {
	ledger, err := newLocator(cfg).Open(ctx, creds)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	return ledger
}

func parseSheet(log zerolog.Logger, s string) domain.Sheet {
	sheet, err := domain.ParseSheet(s)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -sheet")
	}
	return sheet
}

func parseDateFlag(log zerolog.Logger, name, value string) *civil.Date {
	if value == "" {
		return nil
	}
	d, err := civil.ParseDate(value)
	if err != nil {
		log.Fatal().Err(err).Str("flag", name).Msg("Dates must be YYYY-MM-DD")
	}
	return &d
}

func runImport(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	source := fs.String("file", "", "CSV file: local path or gs://bucket/object")
	sheetName := fs.String("sheet", "expenses", "target sheet: expenses or income")
	skipCompare := fs.Bool("skip-compare", false, "append every row without checking for duplicates")
	dryRun := fs.Bool("dry-run", false, "parse and compare only, do not append")
	fs.Parse(os.Args[2:])

	if *source == "" {
		log.Fatal().Msg("Usage: cli import -file PATH [-sheet expenses|income]")
	}
	sheet := parseSheet(log, *sheetName)

	ctx, cancel, creds := commandContext(cfg, log, 5*time.Minute)
	defer cancel()

	src := importer.Router{Local: importer.FileSource{}}
	if strings.HasPrefix(*source, "gs://") {
		gcs, err := importer.NewGCSSource(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create storage client")
		}
		defer gcs.Close()
		src.GCS = gcs
	}

	candidates, err := importer.New(src).Load(ctx, *source, sheet)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load import file")
	}
	if len(candidates) == 0 {
		fmt.Println("Import file has no rows.")
		return
	}

	ledger := openLedger(ctx, cfg, log, creds)

	if *dryRun {
		fresh, err := ledger.CompareTransactions(ctx, sheet, candidates)
		if err != nil {
			log.Fatal().Err(err).Msg("Compare failed")
		}
		fmt.Printf("%d of %d rows are new (dry run, nothing appended).\n", len(fresh), len(candidates))
		printTransactions(fresh)
		return
	}

	opts := []ingest.Option{ingest.WithSortAfterAppend(cfg.Ledger.SortAfterAppend)}
	if cfg.BigQuery.Enabled() {
		m, err := mirror.NewBigQueryMirror(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset, cfg.BigQuery.Table)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create BigQuery mirror")
		}
		defer m.Close()
		opts = append(opts, ingest.WithMirror(m))
	}

	res, err := ingest.NewService(opts...).Ingest(ctx, ledger, ingest.Batch{
		User:        creds.UserIdentity,
		Sheet:       sheet,
		Candidates:  candidates,
		SkipCompare: *skipCompare,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Import failed")
	}

	fmt.Printf("Imported %d of %d rows into %s (%d duplicates skipped).\n", res.Accepted, res.Submitted, sheet, res.Duplicates)
}

func runQuery(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	sheetName := fs.String("sheet", "expenses", "sheet: expenses or income")
	start := fs.String("start", "", "first date, YYYY-MM-DD")
	end := fs.String("end", "", "last date, YYYY-MM-DD")
	limit := fs.Int("limit", 20, "maximum rows, 0 for all")
	fs.Parse(os.Args[2:])

	sheet := parseSheet(log, *sheetName)
	filter := sheets.DateRange(parseDateFlag(log, "start", *start), parseDateFlag(log, "end", *end))

	ctx, cancel, creds := commandContext(cfg, log, time.Minute)
	defer cancel()

	txs, err := openLedger(ctx, cfg, log, creds).GetTransactions(ctx, sheets.QueryOptions{
		Sheet:  sheet,
		Filter: filter,
		Limit:  *limit,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Query failed")
	}

	fmt.Printf("\n=== %s, %s (%d) ===\n", sheet, filter, len(txs))
	printTransactions(txs)
}

func printTransactions(txs []domain.Transaction) {
	for _, tx := range txs {
		fmt.Printf("%s  %12s  %-30s %s", tx.Date, tx.Amount.StringFixed(2), tx.Merchant, tx.Category)
		if tx.Subcategory != "" {
			fmt.Printf(" / %s", tx.Subcategory)
		}
		fmt.Println()
	}
}

func runCategories(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("categories", flag.ExitOnError)
	sheetName := fs.String("sheet", "expenses", "sheet whose categories to show: expenses or income")
	payment := fs.Bool("payment-methods", false, "show payment methods instead")
	fs.Parse(os.Args[2:])

	ctx, cancel, creds := commandContext(cfg, log, time.Minute)
	defer cancel()
	ledger := openLedger(ctx, cfg, log, creds)

	var (
		groups map[string][]string
		err    error
	)
	if *payment {
		groups, err = ledger.GetPaymentMethods(ctx)
	} else {
		groups, err = ledger.GetCategories(ctx, parseSheet(log, *sheetName))
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Lookup failed")
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		fmt.Printf("%s: %s\n", name, strings.Join(groups[name], ", "))
	}
}

func runSpending(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("spending", flag.ExitOnError)
	start := fs.String("start", "", "first date, YYYY-MM-DD")
	end := fs.String("end", "", "last date, YYYY-MM-DD")
	fs.Parse(os.Args[2:])

	filter := sheets.DateRange(parseDateFlag(log, "start", *start), parseDateFlag(log, "end", *end))

	ctx, cancel, creds := commandContext(cfg, log, time.Minute)
	defer cancel()
	ledger := openLedger(ctx, cfg, log, creds)

	total, err := ledger.GetTotalSpending(ctx, filter)
	if err != nil {
		log.Fatal().Err(err).Msg("Total spending failed")
	}
	byCategory, err := ledger.GetCategorySpending(ctx, filter)
	if err != nil {
		log.Fatal().Err(err).Msg("Category spending failed")
	}

	categories := make([]string, 0, len(byCategory))
	for c := range byCategory {
		categories = append(categories, c)
	}
	slices.Sort(categories)

	fmt.Printf("\n=== Spending, %s ===\n", filter)
	for _, c := range categories {
		fmt.Printf("%-30s %12s\n", c, byCategory[c].StringFixed(2))
	}
	fmt.Printf("%-30s %12s\n", "TOTAL", total.StringFixed(2))
}

func runLocate(cfg *config.Config, log zerolog.Logger) {
	ctx, cancel, creds := commandContext(cfg, log, time.Minute)
	defer cancel()

	id, err := newLocator(cfg).FindOrCreate(ctx, creds)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to locate ledger")
	}
	fmt.Printf("%s: https://docs.google.com/spreadsheets/d/%s\n", creds.UserIdentity, id)
}

func runUpload(log zerolog.Logger) {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	bucketName := fs.String("bucket", os.Getenv("GCS_BUCKET"), "GCS bucket name")
	objectName := fs.String("object", "", "GCS object name (defaults to imports/<filename>)")
	filePath := fs.String("file", "", "Path to local CSV file")
	fs.Parse(os.Args[2:])

	if *bucketName == "" || *filePath == "" {
		log.Fatal().Msg("Usage: cli upload -bucket NAME -file PATH")
	}

	if *objectName == "" {
		*objectName = "imports/" + filepath.Base(*filePath)
	}

	ctx := logger.WithContext(context.Background(), log)

	gcs, err := importer.NewGCSSource(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer gcs.Close()

	log.Info().
		Str("bucket", *bucketName).
		Str("object", *objectName).
		Str("file", *filePath).
		Msg("Uploading file to GCS")

	uri, err := gcs.UploadFile(ctx, *bucketName, *objectName, *filePath)
	if err != nil {
		log.Fatal().Err(err).Msg("Upload failed")
	}

	fmt.Printf("Uploaded %s to %s\n", *filePath, uri)
	fmt.Printf("Import it with: cli import -file %s\n", uri)
}

func runMigrate(cfg *config.Config, log zerolog.Logger) {
	if !cfg.BigQuery.Enabled() {
		log.Fatal().Msg("BIGQUERY_PROJECT is not set")
	}

	ctx := logger.WithContext(context.Background(), log)

	m, err := mirror.NewBigQueryMirror(ctx, cfg.BigQuery.Project, cfg.BigQuery.Dataset, cfg.BigQuery.Table)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery client")
	}
	defer m.Close()

	if err := m.EnsureTable(ctx); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}

	fmt.Printf("Table %s.%s is ready.\n", cfg.BigQuery.Dataset, cfg.BigQuery.Table)
}
