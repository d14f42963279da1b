package cmd

import (
	"fmt"
	"os"

	"github.com/jcsn13/ocr-prescription/internal/logger"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

var rootCmd = &cobra.Command{
	Use:   "rxcheck",
	Short: "rxcheck - validate medical prescriptions against sales transactions",
	Long: `rxcheck checks a prescription image against the sales transaction it
authorizes.

The image is first classified as handwritten (MANUSCRITA) or typed (DIGITADA).
Handwritten prescriptions are transcribed with OCR, then a generative model
compares the prescription with the transaction and returns an APPROVED or
REPROVED verdict with discrepancy codes.`,
	Version:      version,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		log := logger.WithComponent("root")
		log.Debug().
			Str("version", version).
			Msg("rxcheck executed without subcommand")

		_ = cmd.Help()
	},
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
