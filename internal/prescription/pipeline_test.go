package prescription

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jcsn13/ocr-prescription/internal/ocr"
	"github.com/jcsn13/ocr-prescription/pkg/models"
)

type pipelineFixture struct {
	completer *stubCompleter
	extractor *stubExtractor
	pipeline  *Pipeline
}

func newFixture(t *testing.T, completer *stubCompleter, vopts ValidatorOptions, opts Options) *pipelineFixture {
	t.Helper()
	extractor := &stubExtractor{text: "Paula Maria\nDipirona 500mg 6/6h\n14/12/2023"}
	validator, err := NewValidator(completer, vopts)
	if err != nil {
		t.Fatalf("NewValidator() error = %v", err)
	}
	return &pipelineFixture{
		completer: completer,
		extractor: extractor,
		pipeline:  NewPipeline(NewClassifier(completer, testFewShot()), extractor, validator, opts),
	}
}

func (f *pipelineFixture) process() models.ProcessingResult {
	return f.pipeline.Process(context.Background(), testImage(), []byte(transactionJSON))
}

func assertFailed(t *testing.T, res models.ProcessingResult, kind Kind) {
	t.Helper()
	if res.Classification != models.ClassificationError {
		t.Errorf("Classification = %q, want ERROR", res.Classification)
	}
	if res.ValidationResult != nil {
		t.Errorf("ValidationResult = %+v, want empty", res.ValidationResult)
	}
	if !strings.HasPrefix(res.Error, ErrorPrefix) || len(res.Error) == len(ErrorPrefix) {
		t.Errorf("Error = %q, want prefixed message", res.Error)
	}
	if res.ErrorKind != string(kind) {
		t.Errorf("ErrorKind = %q, want %q", res.ErrorKind, kind)
	}
}

func TestProcessTypedSkipsOCR(t *testing.T) {
	f := newFixture(t, &stubCompleter{label: "DIGITADA", verdict: approvedVerdict}, ValidatorOptions{}, Options{})

	res := f.process()
	if res.Failed() {
		t.Fatalf("Process() failed: %s", res.Error)
	}
	if res.Classification != "DIGITADA" {
		t.Errorf("Classification = %q", res.Classification)
	}
	if res.ValidationResult == nil || res.ValidationResult.Status == "" {
		t.Error("missing validation status")
	}
	if n := f.extractor.callCount(); n != 0 {
		t.Errorf("OCR called %d times, want 0", n)
	}

	reqs := f.completer.validationRequests()
	if len(reqs) != 1 || strings.Contains(reqs[0].Parts[0].Text, "Receita (texto OCR)") {
		t.Error("validation should run once without OCR text")
	}
}

func TestProcessHandwrittenRunsOCROnce(t *testing.T) {
	f := newFixture(t, &stubCompleter{label: `{"response": "MANUSCRITA"}`, verdict: approvedVerdict}, ValidatorOptions{}, Options{})

	res := f.process()
	if res.Failed() {
		t.Fatalf("Process() failed: %s", res.Error)
	}
	if res.Classification != "MANUSCRITA" {
		t.Errorf("Classification = %q, want normalized MANUSCRITA", res.Classification)
	}
	if n := f.extractor.callCount(); n != 1 {
		t.Errorf("OCR called %d times, want 1", n)
	}

	reqs := f.completer.validationRequests()
	if len(reqs) != 1 || !strings.Contains(reqs[0].Parts[0].Text, "Receita (texto OCR):\n"+f.extractor.text) {
		t.Error("validation prompt should carry OCR text")
	}
}

func TestProcessHandwrittenWithoutOCRText(t *testing.T) {
	illegible := strings.Replace(expiredVerdict, `["EXPIRED_PRESCRIPTION_DATE"]`, `["ILLEGIBLE_PRESCRIPTION"]`, 1)
	f := newFixture(t, &stubCompleter{label: "MANUSCRITA", verdict: illegible}, ValidatorOptions{}, Options{})
	f.extractor.text = ""

	res := f.process()
	if res.Failed() {
		t.Fatalf("Process() failed: %s", res.Error)
	}
	if res.Classification != "MANUSCRITA" || !res.ValidationResult.HasDiscrepancy(models.IllegiblePrescription) {
		t.Errorf("result = %+v, want MANUSCRITA with ILLEGIBLE_PRESCRIPTION", res)
	}

	reqs := f.completer.validationRequests()
	if len(reqs) != 1 || !strings.Contains(reqs[0].Parts[0].Text, "Receita (texto OCR):\n\n") {
		t.Error("validation should run with an empty OCR block")
	}
	if len(reqs[0].Parts) != 2 || !reqs[0].Parts[1].IsBlob() {
		t.Error("validation should still send the image")
	}
}

func TestProcessLooseLabelRoutesToOCR(t *testing.T) {
	f := newFixture(t, &stubCompleter{label: "manuscritaDIGITADA", verdict: approvedVerdict}, ValidatorOptions{}, Options{})

	if res := f.process(); res.Failed() {
		t.Fatalf("Process() failed: %s", res.Error)
	}
	if n := f.extractor.callCount(); n != 1 {
		t.Errorf("OCR called %d times, want 1", n)
	}
}

func TestProcessStrictClassification(t *testing.T) {
	f := newFixture(t, &stubCompleter{label: "manuscritaDIGITADA", verdict: approvedVerdict}, ValidatorOptions{}, Options{StrictClassification: true})

	res := f.process()
	assertFailed(t, res, KindClassification)
	if f.extractor.callCount() != 0 || len(f.completer.validationRequests()) != 0 {
		t.Error("no stage should run after an unrecognized label")
	}

	f = newFixture(t, &stubCompleter{label: `{"response": "[MANUSCRITA]"}`, verdict: approvedVerdict}, ValidatorOptions{}, Options{StrictClassification: true})
	if res := f.process(); res.Failed() {
		t.Fatalf("Process() failed: %s", res.Error)
	}
	if f.extractor.callCount() != 1 {
		t.Error("strict MANUSCRITA should run OCR")
	}
}

func TestProcessExpiredPrescription(t *testing.T) {
	f := newFixture(t, &stubCompleter{label: "DIGITADA", verdict: expiredVerdict}, ValidatorOptions{CheckSchema: true, EnforceAggregateStatus: true}, Options{})

	res := f.process()
	if res.Failed() {
		t.Fatalf("Process() failed: %s", res.Error)
	}
	v := res.ValidationResult
	if !v.HasDiscrepancy(models.ExpiredPrescriptionDate) || v.Status != models.StatusReproved {
		t.Errorf("verdict = %+v, want REPROVED with EXPIRED_PRESCRIPTION_DATE", v)
	}

	reqs := f.completer.validationRequests()
	if !strings.Contains(reqs[0].Parts[0].Text, `"prescription_date":"2024-10-25"`) {
		t.Error("transaction date not embedded in prompt")
	}
}

func TestProcessFailures(t *testing.T) {
	tests := []struct {
		name      string
		completer *stubCompleter
		ocrErr    error
		vopts     ValidatorOptions
		kind      Kind
		wantCause string
	}{
		{
			name:      "classification transport",
			completer: &stubCompleter{labelErr: errUnavailable},
			kind:      KindTransport,
			wantCause: "service unavailable",
		},
		{
			name:      "validation transport",
			completer: &stubCompleter{label: "DIGITADA", verdictErr: errUnavailable},
			kind:      KindTransport,
			wantCause: "service unavailable",
		},
		{
			name:      "ocr failure",
			completer: &stubCompleter{label: "MANUSCRITA", verdict: approvedVerdict},
			ocrErr:    errors.New("processor not found"),
			kind:      KindTransport,
			wantCause: "processor not found",
		},
		{
			name:      "image rejected by ocr",
			completer: &stubCompleter{label: "MANUSCRITA", verdict: approvedVerdict},
			ocrErr:    ocr.WrapOCRError("ExtractText", ocr.ErrImageTooLarge, "21MB"),
			kind:      KindInput,
			wantCause: ErrImageRejected.Error(),
		},
		{
			name:      "undecodable verdict",
			completer: &stubCompleter{label: "DIGITADA", verdict: "Desculpe, não consigo ler a receita."},
			kind:      KindDecode,
			wantCause: ErrResponseDecode.Error(),
		},
		{
			name:      "schema violation",
			completer: &stubCompleter{label: "DIGITADA", verdict: strings.Replace(approvedVerdict, `"status": "APPROVED",`, `"status": "MAYBE",`, 1)},
			vopts:     ValidatorOptions{CheckSchema: true},
			kind:      KindSchema,
			wantCause: ErrSchemaViolation.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.completer, tt.vopts, Options{})
			f.extractor.err = tt.ocrErr

			res := f.process()
			assertFailed(t, res, tt.kind)
			if !strings.Contains(res.Error, tt.wantCause) {
				t.Errorf("Error = %q, want it to mention %q", res.Error, tt.wantCause)
			}
		})
	}
}

func TestProcessTransportFailureEnvelope(t *testing.T) {
	f := newFixture(t, &stubCompleter{label: "DIGITADA", verdictErr: errUnavailable}, ValidatorOptions{}, Options{})

	raw, err := json.Marshal(f.process())
	if err != nil {
		t.Fatal(err)
	}

	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatal(err)
	}
	if doc["classification"] != "ERROR" {
		t.Errorf("classification = %v", doc["classification"])
	}
	if v, ok := doc["validation_result"].(map[string]any); !ok || len(v) != 0 {
		t.Errorf("validation_result = %v, want {}", doc["validation_result"])
	}
	if msg, _ := doc["error"].(string); !strings.HasPrefix(msg, ErrorPrefix) {
		t.Errorf("error = %v", doc["error"])
	}
}

func TestProcessMissingImage(t *testing.T) {
	f := newFixture(t, &stubCompleter{label: "DIGITADA", verdict: approvedVerdict}, ValidatorOptions{}, Options{})

	res := f.pipeline.Process(context.Background(), Image{}, []byte(transactionJSON))
	assertFailed(t, res, KindInput)
	if len(f.completer.requests) != 0 {
		t.Error("completion called without an image")
	}
}

func TestProcessCallTimeout(t *testing.T) {
	f := newFixture(t, &stubCompleter{blockOnCall: true}, ValidatorOptions{}, Options{CallTimeout: 20 * time.Millisecond})

	res := f.process()
	assertFailed(t, res, KindTransport)
	if !strings.Contains(res.Error, context.DeadlineExceeded.Error()) {
		t.Errorf("Error = %q, want deadline exceeded", res.Error)
	}
}

func TestProcessIdempotent(t *testing.T) {
	for _, label := range []string{"DIGITADA", "MANUSCRITA"} {
		f := newFixture(t, &stubCompleter{label: label, verdict: expiredVerdict}, ValidatorOptions{EnforceAggregateStatus: true}, Options{})

		first, err := json.Marshal(f.process())
		if err != nil {
			t.Fatal(err)
		}
		second, err := json.Marshal(f.process())
		if err != nil {
			t.Fatal(err)
		}
		if string(first) != string(second) {
			t.Errorf("%s: results differ:\n%s\n%s", label, first, second)
		}
	}
}

func TestProcessConcurrent(t *testing.T) {
	f := newFixture(t, &stubCompleter{label: "MANUSCRITA", verdict: approvedVerdict}, ValidatorOptions{}, Options{})

	const runs = 8
	var wg sync.WaitGroup
	results := make([]models.ProcessingResult, runs)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = f.process()
		}(i)
	}
	wg.Wait()

	for i, res := range results {
		if res.Failed() {
			t.Errorf("run %d failed: %s", i, res.Error)
		}
	}
	if n := f.extractor.callCount(); n != runs {
		t.Errorf("OCR called %d times, want %d", n, runs)
	}
}

func TestAggregateLawOnSuccess(t *testing.T) {
	inconsistent := strings.Replace(approvedVerdict,
		`"status": "APPROVED", "reasonsPrescriptionDiscrepancy": []}`,
		`"status": "REPROVED", "reasonsPrescriptionDiscrepancy": ["DOSAGE_NOT_MATCHING_PRESCRIPTION"]}`, 1)
	f := newFixture(t, &stubCompleter{label: "DIGITADA", verdict: inconsistent}, ValidatorOptions{EnforceAggregateStatus: true}, Options{})

	res := f.process()
	if res.Failed() {
		t.Fatalf("Process() failed: %s", res.Error)
	}
	v := res.ValidationResult
	if v.Status == models.StatusApproved && !v.AllItemsApproved() {
		t.Error("APPROVED verdict with a rejected item")
	}
	if v.Status != models.StatusReproved {
		t.Errorf("Status = %s, want REPROVED", v.Status)
	}
}
