package cmd

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jcsn13/ocr-prescription/internal/logger"
	"github.com/spf13/cobra"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [image-file]",
	Short: "Classify a prescription as handwritten or typed",
	Long: `Run only the classification stage on a prescription image and print the
normalized label (MANUSCRITA or DIGITADA).

The four reference images are read from FEWSHOT_DIR:
  manuscritas/manuscrita01.jpg, manuscritas/manuscrita02.jpg,
  digitadas/digitada01.jpg, digitadas/digitada02.png`,
	Example: `  rxcheck classify receita.jpg
  rxcheck classify receita.png --json`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

// ClassifyOutput is printed when --json is given.
type ClassifyOutput struct {
	Label       string `json:"label"`
	Structured  bool   `json:"structured"`
	Handwritten bool   `json:"handwritten"`
	FileName    string `json:"file_name"`
}

func init() {
	rootCmd.AddCommand(classifyCmd)

	classifyCmd.Flags().Bool("json", false, "Output as JSON")
	classifyCmd.Flags().Int("timeout", 300, "Processing timeout in seconds")
}

func runClassify(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("classify")

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

	classifier, err := svc.classifier(ctx, log)
	if err != nil {
		return describeError(err)
	}

	label, err := classifier.Classify(ctx, img)
	if err != nil {
		log.Error().Err(err).Msg("Classification failed")
		return describeError(err)
	}

	if !jsonOutput {
		fmt.Fprintln(cmd.OutOrStdout(), label.Value)
		return nil
	}

	out, err := json.MarshalIndent(ClassifyOutput{
		Label:       label.Value,
		Structured:  label.Structured,
		Handwritten: label.Handwritten(),
		FileName:    img.Name,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to create JSON output: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
