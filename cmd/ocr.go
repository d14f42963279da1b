package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jcsn13/ocr-prescription/internal/logger"
	"github.com/spf13/cobra"
)

var ocrCmd = &cobra.Command{
	Use:   "ocr [image-file]",
	Short: "Extract text from a prescription image",
	Long: `Run only the OCR stage on a prescription image.

The backend is selected with OCR_BACKEND: "documentai" (default) uses the
Document AI processor in DOCUMENT_AI_PROCESSOR_ID, "vision" uses Cloud Vision
document text detection. Images up to 20MB are processed synchronously.

Required environment variables:
  GOOGLE_APPLICATION_CREDENTIALS - Path to service account JSON file, OR
  GOOGLE_CREDENTIALS - Inline JSON credentials string
  GOOGLE_CLOUD_PROJECT - Your Google Cloud project ID`,
	Example: `  # Extract text to stdout
  rxcheck ocr receita.jpg

  # Save extracted text to file
  rxcheck ocr receita.jpg -o receita.txt

  # Output as JSON with a custom timeout
  rxcheck ocr receita.png --json --timeout 60`,
	Args: cobra.ExactArgs(1),
	RunE: runOCR,
}

// OCROutput represents the JSON output structure when --json flag is used
type OCROutput struct {
	Text               string `json:"text"`
	Backend            string `json:"backend"`
	ProcessingDuration string `json:"processing_duration"`
	FileName           string `json:"file_name"`
	FileSize           int    `json:"file_size"`
}

func init() {
	rootCmd.AddCommand(ocrCmd)

	ocrCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	ocrCmd.Flags().Bool("json", false, "Output as JSON")
	ocrCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runOCR(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("ocr")

	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	img, err := readImageFile(args[0], log)
	if err != nil {
		return err
	}

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	svc, err := loadServices(log)
	if err != nil {
		return err
	}
	defer svc.Close()

	extractor, err := svc.extractor(ctx, log)
	if err != nil {
		return describeError(err)
	}

	log.Info().
		Str("file", args[0]).
		Str("backend", svc.cfg.OCRBackend).
		Int("size", len(img.Data)).
		Msg("Processing image")

	start := time.Now()
	text, err := extractor.ExtractText(ctx, img.Data, img.MIMEType)
	if err != nil {
		log.Error().Err(err).Msg("OCR processing failed")
		return describeError(err)
	}
	duration := time.Since(start)

	log.Info().
		Dur("duration", duration).
		Int("text_length", len(text)).
		Msg("OCR processing completed successfully")

	out := []byte(text + "\n")
	if jsonOutput {
		out, err = json.MarshalIndent(OCROutput{
			Text:               text,
			Backend:            svc.cfg.OCRBackend,
			ProcessingDuration: duration.String(),
			FileName:           img.Name,
			FileSize:           len(img.Data),
		}, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		out = append(out, '\n')
	}

	return writeOutput(cmd.OutOrStdout(), outputPath, out, log)
}
