package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jcsn13/ocr-prescription/internal/logger"
	"github.com/jcsn13/ocr-prescription/pkg/models"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate [image-file]",
	Short: "Validate a prescription image against a transaction",
	Long: `Run the full pipeline on a prescription image: classification, OCR for
handwritten prescriptions, and validation against the transaction data.

The transaction is a JSON object with name_in_prescription, doctor_name,
prescription_date, crm_number, crm_state and items. Malformed JSON is rejected
before any model is called.

Required environment variables:
  GOOGLE_CLOUD_PROJECT     - Your Google Cloud project ID
  GEMINI_API_KEY           - Gemini API key (or OPENAI_API_KEY with COMPLETION_PROVIDER=openai)
  DOCUMENT_AI_PROCESSOR_ID - Document AI OCR processor (unless OCR_BACKEND=vision)`,
	Example: `  # Validate with a transaction file
  rxcheck validate receita.jpg --transaction venda.json

  # Read the transaction from stdin and print the raw result envelope
  cat venda.json | rxcheck validate receita.png --transaction - --json

  # Inline transaction
  rxcheck validate receita.jpg --transaction-json '{"name_in_prescription": "Paula Maria", "items": []}'`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("transaction", "t", "", "Transaction JSON file path, or - for stdin")
	validateCmd.Flags().String("transaction-json", "", "Transaction JSON given inline")
	validateCmd.Flags().StringP("output", "o", "", "Output file path (default: stdout)")
	validateCmd.Flags().Bool("json", false, "Output the result envelope as JSON")
	validateCmd.Flags().Int("timeout", 600, "Overall timeout in seconds")
	validateCmd.MarkFlagsMutuallyExclusive("transaction", "transaction-json")
	validateCmd.MarkFlagsOneRequired("transaction", "transaction-json")
}

func runValidate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("validate")

	transactionPath, _ := cmd.Flags().GetString("transaction")
	transactionInline, _ := cmd.Flags().GetString("transaction-json")
	outputPath, _ := cmd.Flags().GetString("output")
	jsonOutput, _ := cmd.Flags().GetBool("json")
	timeoutSecs, _ := cmd.Flags().GetInt("timeout")

	imagePath := args[0]

	rawTransaction, err := readTransaction(transactionPath, transactionInline, cmd.InOrStdin())
	if err != nil {
		return err
	}

	record, transaction, err := models.ParseTransaction(rawTransaction)
	if err != nil {
		log.Error().Err(err).Msg("Rejected transaction data")
		return errors.New(models.InvalidTransactionMessage)
	}

	img, err := readImageFile(imagePath, log)
	if err != nil {
		return err
	}

	log.Info().
		Str("file", imagePath).
		Str("mime_type", img.MIMEType).
		Str("patient", record.NameInPrescription).
		Int("items", len(record.Items)).
		Msg("Starting prescription validation")

	ctx, cancel := createContextWithTimeout(time.Duration(timeoutSecs)*time.Second, log)
	defer cancel()

	svc, err := loadServices(log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := svc.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to close clients")
		}
	}()

	pipeline, err := svc.pipeline(ctx, log)
	if err != nil {
		return describeError(err)
	}

	result := pipeline.Process(ctx, img, transaction)

	var out []byte
	if jsonOutput {
		out, err = json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to create JSON output: %w", err)
		}
		out = append(out, '\n')
	} else {
		out, err = renderResult(result)
		if err != nil {
			return err
		}
	}

	if err := writeOutput(cmd.OutOrStdout(), outputPath, out, log); err != nil {
		return err
	}

	if result.Failed() {
		return fmt.Errorf("prescription could not be validated (%s)", result.ErrorKind)
	}
	return nil
}

// readTransaction returns the transaction bytes from a file, stdin or the
// inline flag.
func readTransaction(path, inline string, stdin io.Reader) ([]byte, error) {
	switch {
	case inline != "":
		return []byte(inline), nil
	case path == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("failed to read transaction from stdin: %w", err)
		}
		return data, nil
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read transaction file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("transaction data is required (--transaction or --transaction-json)")
	}
}

// renderResult formats a result for people: classification, then the verdict
// as indented JSON or the error message.
func renderResult(result models.ProcessingResult) ([]byte, error) {
	var b strings.Builder

	b.WriteString("=== Classification ===\n")
	b.WriteString(result.Classification)
	b.WriteString("\n\n")

	if result.Failed() {
		b.WriteString("=== Error ===\n")
		b.WriteString(result.Error)
		b.WriteString("\n")
		return []byte(b.String()), nil
	}

	verdict, err := json.MarshalIndent(result.ValidationResult, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to format verdict: %w", err)
	}
	b.WriteString("=== Validation Results ===\n")
	b.Write(verdict)
	b.WriteString("\n")
	return []byte(b.String()), nil
}

func writeOutput(stdout io.Writer, outputPath string, data []byte, log zerolog.Logger) error {
	if outputPath == "" {
		if _, err := stdout.Write(data); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
		return nil
	}

	if err := os.WriteFile(outputPath, data, 0o644); err != nil {
		log.Error().
			Err(err).
			Str("output_file", outputPath).
			Msg("Failed to write output file")
		return fmt.Errorf("failed to write output file: %w", err)
	}

	log.Info().
		Str("output_file", outputPath).
		Int("bytes", len(data)).
		Msg("Results written to file")
	return nil
}
