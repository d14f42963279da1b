package main

import (
	"log"

	"github.com/jcsn13/ocr-prescription/cmd"
	"github.com/jcsn13/ocr-prescription/internal/config"
	"github.com/jcsn13/ocr-prescription/internal/logger"
	"github.com/joho/godotenv"
)

func main() {
	// A missing .env is normal in containers
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	logConfig := logger.DefaultConfig()
	if cfg, err := config.Load(); err != nil {
		// Commands report configuration problems themselves
		log.Printf("Warning: Could not load configuration: %v", err)
	} else {
		logConfig = cfg.GetLoggerConfig()
	}

	if err := logger.Setup(logConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	log := logger.WithComponent("main")
	log.Debug().Msg("Starting rxcheck")

	cmd.Execute()
}
