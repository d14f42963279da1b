package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jcsn13/ocr-prescription/internal/logger"
	"github.com/jcsn13/ocr-prescription/internal/prescription"
	"github.com/jcsn13/ocr-prescription/internal/sheets"
	"github.com/jcsn13/ocr-prescription/pkg/models"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var batchCmd = &cobra.Command{
	Use:   "batch [folder-path]",
	Short: "Validate every prescription image in a folder",
	Long: `Validate all prescription images in a folder and optionally append the
results to a Google Sheet.

Each image (.jpg, .jpeg, .png) must have a transaction file next to it with
the same base name and a .json extension:

  receitas/
    0001.jpg   0001.json
    0002.png   0002.json

Images are processed in parallel by BATCH_WORKERS workers (default 4).
Results keep the order of the file names.

Optional environment variables:
  GOOGLE_SHEET_URL  - Google Sheets URL to append results to
  GOOGLE_SHEET_NAME - Sheet (tab) name (default: Validacoes)
  BATCH_WORKERS     - Number of parallel workers`,
	Example: `  # Validate a folder and write all result envelopes to a file
  rxcheck batch ./receitas -o resultados.json

  # Process without writing to the configured Google Sheet
  rxcheck batch ./receitas --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

// BatchResult is the outcome for one image in a batch run.
type BatchResult struct {
	File   string                  `json:"file"`
	Result models.ProcessingResult `json:"result"`
	Index  int                     `json:"-"`
}

// batchJob pairs an image with its transaction file.
type batchJob struct {
	ImagePath       string
	TransactionPath string
	Index           int
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringP("output", "o", "", "Write all results as a JSON array to this file")
	batchCmd.Flags().Bool("dry-run", false, "Process files but don't write to Google Sheet")
	batchCmd.Flags().Int("timeout", 1800, "Overall timeout in seconds")
}

func runBatch(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("batch")

	folderPath := args[0]
	outputPath, _ := cmd.Flags().GetString("output")
	dryRun, _ := cmd.Flags().GetBool("dry-run")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	folderInfo, err := os.Stat(folderPath)
	if err != nil {
		return fmt.Errorf("folder not found: %s", folderPath)
	}
	if !folderInfo.IsDir() {
		return fmt.Errorf("path is not a directory: %s", folderPath)
	}

	jobs, err := findBatchJobs(folderPath)
	if err != nil {
		return fmt.Errorf("failed to list prescription images: %w", err)
	}
	out := cmd.OutOrStdout()
	if len(jobs) == 0 {
		fmt.Fprintln(out, "No prescription images found in folder.")
		return nil
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	svc, err := loadServices(log)
	if err != nil {
		return err
	}
	defer svc.Close()

	pipeline, err := svc.pipeline(ctx, log)
	if err != nil {
		return describeError(err)
	}

	log.Info().
		Str("folder", folderPath).
		Int("images", len(jobs)).
		Int("workers", svc.cfg.BatchWorkers).
		Bool("dry_run", dryRun).
		Msg("Starting batch validation")

	fmt.Fprintf(out, "Processing %d prescriptions with %d workers...\n\n", len(jobs), svc.cfg.BatchWorkers)
	results := processBatch(ctx, pipeline, jobs, svc.cfg.BatchWorkers, out, log)

	summary := summarizeBatch(results)
	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintf(out, "Approved: %d\nReproved: %d\nErrors:   %d\n", summary.approved, summary.reproved, summary.failed)
	fmt.Fprintln(out, strings.Repeat("=", 50))

	if outputPath != "" {
		data, err := json.MarshalIndent(results, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		if err := writeOutput(out, outputPath, append(data, '\n'), log); err != nil {
			return err
		}
	}

	if !dryRun && svc.cfg.SheetURL != "" {
		if err := exportToSheet(ctx, svc.cfg.SheetURL, svc.cfg.SheetName, results, time.Now()); err != nil {
			log.Error().Err(err).Msg("Google Sheet export failed")
			return fmt.Errorf("failed to write to Google Sheet: %w", err)
		}
		fmt.Fprintf(out, "Sheet: %s\nRows added: %d\n", svc.cfg.SheetName, len(results))
	}

	log.Info().
		Int("total", len(results)).
		Int("approved", summary.approved).
		Int("reproved", summary.reproved).
		Int("errors", summary.failed).
		Msg("Batch validation completed")
	return nil
}

// findBatchJobs lists the supported images directly inside folderPath in
// name order, each paired with its sibling transaction file.
func findBatchJobs(folderPath string) ([]batchJob, error) {
	entries, err := os.ReadDir(folderPath)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".jpg", ".jpeg", ".png":
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	jobs := make([]batchJob, len(names))
	for i, name := range names {
		base := strings.TrimSuffix(name, filepath.Ext(name))
		jobs[i] = batchJob{
			ImagePath:       filepath.Join(folderPath, name),
			TransactionPath: filepath.Join(folderPath, base+".json"),
			Index:           i,
		}
	}
	return jobs, nil
}

// processBatch runs jobs on a pool of workers. Results are stored at the
// index of their job.
func processBatch(ctx context.Context, p processor, jobs []batchJob, numWorkers int, progress io.Writer, log zerolog.Logger) []BatchResult {
	if numWorkers < 1 {
		numWorkers = 1
	}

	queue := make(chan batchJob, len(jobs))
	results := make([]BatchResult, len(jobs))

	var processedCount int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for w := 0; w < numWorkers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()

			for job := range queue {
				log.Debug().
					Int("worker", workerID).
					Str("file", job.ImagePath).
					Msg("Worker processing prescription")

				result := BatchResult{
					File:   filepath.Base(job.ImagePath),
					Result: processBatchJob(ctx, p, job),
					Index:  job.Index,
				}
				results[job.Index] = result

				mu.Lock()
				processedCount++
				fmt.Fprintf(progress, "[%d/%d] %s - %s\n", processedCount, len(jobs), result.File, batchStatus(result.Result))
				mu.Unlock()
			}
		}(w)
	}

	for _, job := range jobs {
		queue <- job
	}
	close(queue)

	wg.Wait()
	return results
}

// processBatchJob validates one image. Input problems produce the same
// failure envelope the pipeline uses.
func processBatchJob(ctx context.Context, p processor, job batchJob) models.ProcessingResult {
	raw, err := os.ReadFile(job.TransactionPath)
	if err != nil {
		return inputFailure(fmt.Errorf("transaction file %s: %w", filepath.Base(job.TransactionPath), err))
	}
	_, transaction, err := models.ParseTransaction(raw)
	if err != nil {
		return inputFailure(errors.New(models.InvalidTransactionMessage))
	}

	img, err := prescription.LoadImage(job.ImagePath)
	if err != nil {
		return inputFailure(err)
	}
	if !img.Supported() {
		return inputFailure(fmt.Errorf("unsupported image type %s", img.MIMEType))
	}

	return p.Process(ctx, img, transaction)
}

func inputFailure(err error) models.ProcessingResult {
	return models.ProcessingResult{
		Classification: models.ClassificationError,
		Error:          prescription.ErrorPrefix + err.Error(),
		ErrorKind:      string(prescription.KindInput),
	}
}

type batchSummary struct {
	approved int
	reproved int
	failed   int
}

func summarizeBatch(results []BatchResult) batchSummary {
	var s batchSummary
	for _, r := range results {
		switch {
		case r.Result.Failed() || r.Result.ValidationResult == nil:
			s.failed++
		case r.Result.ValidationResult.Status == models.StatusApproved:
			s.approved++
		default:
			s.reproved++
		}
	}
	return s
}

func batchStatus(result models.ProcessingResult) string {
	if result.Failed() || result.ValidationResult == nil {
		return "ERROR (" + result.ErrorKind + ")"
	}
	return string(result.ValidationResult.Status)
}

func exportToSheet(ctx context.Context, sheetURL, sheetName string, results []BatchResult, processedAt time.Time) error {
	sheetsService, err := sheets.NewSheetsService(ctx, sheetURL)
	if err != nil {
		return err
	}

	rows := make([]sheets.Row, len(results))
	for i, r := range results {
		rows[i] = sheets.NewRow(r.File, r.Result, processedAt)
	}
	return sheetsService.AppendRows(ctx, sheetName, rows)
}
