package prescription

import (
	"context"
	"errors"
	"sync"

	"github.com/jcsn13/ocr-prescription/internal/completion"
	"github.com/jcsn13/ocr-prescription/internal/schema"
)

var (
	jpegHeader = []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10, 'J', 'F', 'I', 'F', 0x00}
	pngHeader  = []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 0x00}
)

const transactionJSON = `{"name_in_prescription":"Paula Maria","doctor_name":"Dr. Silva","prescription_date":"2024-10-25","crm_number":"31024","crm_state":"SP","items":[{"product":{"code":"2126","name":"Dipirona","ean":"07898148305100","dosage":"500mg"}}]}`

const approvedVerdict = `{
	"name_in_prescription": "Paula Maria",
	"doctor_name": "Dr. Silva",
	"prescription_date": "2024-10-25",
	"crm_number": "31024",
	"crm_state": "SP",
	"status": "APPROVED",
	"reasonsPrescriptionDiscrepancy": [],
	"items": [
		{"product": {"code": "2126", "name": "Dipirona", "ean": "07898148305100"}, "status": "APPROVED", "reasonsPrescriptionDiscrepancy": []}
	]
}`

const expiredVerdict = `{
	"name_in_prescription": "Paula Maria",
	"doctor_name": "Dr. Silva",
	"prescription_date": "2023-12-14",
	"crm_number": "31024",
	"crm_state": "SP",
	"status": "REPROVED",
	"reasonsPrescriptionDiscrepancy": ["EXPIRED_PRESCRIPTION_DATE"],
	"items": [
		{"product": {"code": "2126", "name": "Dipirona", "ean": "07898148305100"}, "status": "APPROVED", "reasonsPrescriptionDiscrepancy": []}
	]
}`

var errUnavailable = errors.New("rpc error: code = Unavailable desc = service unavailable")

func testImage() Image {
	return NewImage(jpegHeader, "")
}

func testFewShot() *FewShotSet {
	return &FewShotSet{
		Handwritten: []Image{
			{Data: []byte("m1"), MIMEType: MIMEJPEG, Name: "manuscrita01.jpg"},
			{Data: []byte("m2"), MIMEType: MIMEJPEG, Name: "manuscrita02.jpg"},
		},
		Typed: []Image{
			{Data: []byte("d1"), MIMEType: MIMEJPEG, Name: "digitada01.jpg"},
			{Data: []byte("d2"), MIMEType: MIMEPNG, Name: "digitada02.png"},
		},
	}
}

// stubCompleter answers classification and validation requests with fixed
// completions and records every request it sees.
type stubCompleter struct {
	mu sync.Mutex

	label       string
	labelErr    error
	verdict     string
	verdictErr  error
	requests    []completion.Request
	blockOnCall bool
}

func (s *stubCompleter) Complete(ctx context.Context, req completion.Request) (string, error) {
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	if s.blockOnCall {
		<-ctx.Done()
		return "", ctx.Err()
	}

	if req.Config.ResponseSchema == schema.ClassificationSchema {
		return s.label, s.labelErr
	}
	return s.verdict, s.verdictErr
}

func (s *stubCompleter) validationRequests() []completion.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []completion.Request
	for _, r := range s.requests {
		if r.Config.ResponseSchema == schema.ValidationSchema {
			out = append(out, r)
		}
	}
	return out
}

// stubExtractor counts OCR calls.
type stubExtractor struct {
	mu    sync.Mutex
	text  string
	err   error
	calls int
}

func (s *stubExtractor) ExtractText(ctx context.Context, content []byte, mimeType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.text, s.err
}

func (s *stubExtractor) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
