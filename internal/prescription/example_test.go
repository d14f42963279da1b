package prescription_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jcsn13/ocr-prescription/internal/completion"
	"github.com/jcsn13/ocr-prescription/internal/ocr"
	"github.com/jcsn13/ocr-prescription/internal/prescription"
	"github.com/jcsn13/ocr-prescription/internal/schema"
	"github.com/jcsn13/ocr-prescription/pkg/models"
)

// Example runs the pipeline against canned model answers.
func Example() {
	model := completion.CompleterFunc(func(ctx context.Context, req completion.Request) (string, error) {
		if req.Config.ResponseSchema == schema.ClassificationSchema {
			return `{"response": "DIGITADA"}`, nil
		}
		return `{"name_in_prescription": "Paula Maria", "doctor_name": "Dr. Silva", "prescription_date": "2023-12-14",
			"crm_number": "31024", "crm_state": "SP", "status": "REPROVED",
			"reasonsPrescriptionDiscrepancy": ["EXPIRED_PRESCRIPTION_DATE"], "items": []}`, nil
	})
	extractor := ocr.ExtractorFunc(func(ctx context.Context, content []byte, mimeType string) (string, error) {
		return "", nil
	})

	validator, err := prescription.NewValidator(model, prescription.ValidatorOptions{EnforceAggregateStatus: true})
	if err != nil {
		log.Fatal(err)
	}
	pipeline := prescription.NewPipeline(
		prescription.NewClassifier(model, &prescription.FewShotSet{}),
		extractor,
		validator,
		prescription.Options{CallTimeout: 30 * time.Second},
	)

	_, transaction, err := models.ParseTransaction([]byte(`{"name_in_prescription": "Paula Maria", "prescription_date": "2024-10-25", "items": []}`))
	if err != nil {
		log.Fatal(err)
	}

	img := prescription.NewImage([]byte{0xff, 0xd8, 0xff, 0xe0}, "")
	result := pipeline.Process(context.Background(), img, transaction)

	fmt.Println(result.Classification)
	fmt.Println(result.ValidationResult.Status, result.ValidationResult.ReasonsPrescriptionDiscrepancy)
	// Output:
	// DIGITADA
	// REPROVED [EXPIRED_PRESCRIPTION_DATE]
}

// ExampleNormalizeLabel shows the two label variants.
func ExampleNormalizeLabel() {
	for _, raw := range []string{`{"response": "MANUSCRITA"}`, "DIGITADA"} {
		label := prescription.NormalizeLabel(raw)
		fmt.Println(label.Value, label.Structured, label.Handwritten())
	}
	// Output:
	// MANUSCRITA true true
	// DIGITADA false false
}

// Example_failure shows the failure envelope.
func Example_failure() {
	model := completion.CompleterFunc(func(ctx context.Context, req completion.Request) (string, error) {
		return "", fmt.Errorf("quota exhausted")
	})
	validator, _ := prescription.NewValidator(model, prescription.ValidatorOptions{})
	pipeline := prescription.NewPipeline(prescription.NewClassifier(model, nil), nil, validator, prescription.Options{})

	result := pipeline.Process(context.Background(), prescription.NewImage([]byte{0xff, 0xd8}, "image/jpeg"), []byte(`{}`))
	out, _ := json.Marshal(result)
	fmt.Println(string(out))
	// Output:
	// {"classification":"ERROR","validation_result":{},"error":"Error in prescription processing: Classify failed: classification completion failed: external service call failed: quota exhausted","error_kind":"transport"}
}
