package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jcsn13/ocr-prescription/internal/logger"
	"github.com/jcsn13/ocr-prescription/internal/ocr"
	"github.com/jcsn13/ocr-prescription/internal/prescription"
	"github.com/jcsn13/ocr-prescription/pkg/models"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// maxUploadSize bounds the multipart body: one image plus the transaction.
const maxUploadSize = ocr.MaxFileSizeBytes + 1<<20

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the validation pipeline over HTTP",
	Long: `Start an HTTP server exposing the validation pipeline.

Endpoints:
  POST /v1/prescriptions/validate  multipart form with an "image" file (JPEG or
                                   PNG) and a "transaction" JSON field
  GET  /healthz                    liveness probe

The response body is the processing result: classification,
validation_result and, on failure, error and error_kind.`,
	Example: `  rxcheck serve --addr :8080

  curl -F image=@receita.jpg -F transaction=@venda.json \
    http://localhost:8080/v1/prescriptions/validate`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
}

// processor is the part of the pipeline the HTTP handler needs.
type processor interface {
	Process(ctx context.Context, img prescription.Image, transaction []byte) models.ProcessingResult
}

type errorResponse struct {
	Error string `json:"error"`
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	addr, _ := cmd.Flags().GetString("addr")
	shutdownTimeout, _ := cmd.Flags().GetDuration("shutdown-timeout")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	svc, err := loadServices(log)
	if err != nil {
		return err
	}
	defer svc.Close()

	pipeline, err := svc.pipeline(ctx, log)
	if err != nil {
		return describeError(err)
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           newRouter(pipeline, log),
		ReadHeaderTimeout: 10 * time.Second,
		// Three model calls plus OCR, each bounded by CALL_TIMEOUT.
		WriteTimeout: 4*svc.cfg.CallTimeout + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
		return err
	}
	log.Info().Msg("Server shutdown complete")
	return nil
}

func newRouter(p processor, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /v1/prescriptions/validate", validateHandler(p, log))
	return mux
}

func validateHandler(p processor, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
		if err := r.ParseMultipartForm(maxUploadSize); err != nil {
			log.Warn().Err(err).Msg("Rejected upload")
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid multipart upload: " + err.Error()})
			return
		}

		_, transaction, err := models.ParseTransaction([]byte(r.FormValue("transaction")))
		if err != nil {
			log.Warn().Err(err).Msg("Rejected transaction data")
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: models.InvalidTransactionMessage})
			return
		}

		file, header, err := r.FormFile("image")
		if err != nil {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: prescription.ErrMissingImage.Error()})
			return
		}
		defer file.Close()

		data, err := io.ReadAll(file)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: "failed to read image"})
			return
		}

		img := prescription.NewImage(data, header.Header.Get("Content-Type"))
		img.Name = header.Filename
		if img.Empty() {
			respondJSON(w, http.StatusBadRequest, errorResponse{Error: prescription.ErrMissingImage.Error()})
			return
		}
		if !img.Supported() {
			respondJSON(w, http.StatusUnsupportedMediaType, errorResponse{Error: "unsupported image type " + img.MIMEType + ": use JPEG or PNG"})
			return
		}

		respondJSON(w, http.StatusOK, p.Process(r.Context(), img, transaction))
	}
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
