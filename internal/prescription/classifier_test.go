package prescription

import (
	"context"
	"errors"
	"testing"

	"github.com/jcsn13/ocr-prescription/internal/schema"
)

func TestClassifierRequestLayout(t *testing.T) {
	stub := &stubCompleter{label: `{"response": "DIGITADA"}`}
	c := NewClassifier(stub, testFewShot())

	label, err := c.Classify(context.Background(), testImage())
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if label.Value != "DIGITADA" || !label.Structured {
		t.Errorf("Classify() = %+v", label)
	}

	if len(stub.requests) != 1 {
		t.Fatalf("got %d requests, want 1", len(stub.requests))
	}
	req := stub.requests[0]

	wantKinds := []string{"text", "m1", "m2", "text", "d1", "d2", "text", "target"}
	if len(req.Parts) != len(wantKinds) {
		t.Fatalf("got %d parts, want %d", len(req.Parts), len(wantKinds))
	}
	for i, want := range wantKinds {
		p := req.Parts[i]
		switch want {
		case "text":
			if p.IsBlob() {
				t.Errorf("part %d is a blob, want text", i)
			}
		case "target":
			if !p.IsBlob() || p.MIMEType != MIMEJPEG || string(p.Data) != string(jpegHeader) {
				t.Errorf("part %d is not the target image", i)
			}
		default:
			if string(p.Data) != want {
				t.Errorf("part %d data = %q, want %q", i, p.Data, want)
			}
		}
	}
	if req.Parts[0].Text != classifyIntro || req.Parts[3].Text != classifyTypedExamples || req.Parts[6].Text != classifyInstructions {
		t.Error("prompt texts out of order")
	}
	if req.Parts[5].MIMEType != MIMEPNG {
		t.Errorf("digitada02 MIME = %q", req.Parts[5].MIMEType)
	}

	if req.Config.ResponseSchema != schema.ClassificationSchema || req.Config.Temperature != 0.3 {
		t.Errorf("unexpected config %+v", req.Config)
	}
	if len(req.Safety) != 4 {
		t.Errorf("got %d safety settings, want 4", len(req.Safety))
	}
}

func TestClassifierMissingImage(t *testing.T) {
	stub := &stubCompleter{label: "DIGITADA"}
	_, err := NewClassifier(stub, testFewShot()).Classify(context.Background(), Image{})

	if !errors.Is(err, ErrMissingImage) || KindOf(err) != KindInput {
		t.Errorf("Classify() error = %v (kind %s), want missing image input error", err, KindOf(err))
	}
	if len(stub.requests) != 0 {
		t.Error("completion called without an image")
	}
}

func TestClassifierTransportFailure(t *testing.T) {
	stub := &stubCompleter{labelErr: errUnavailable}
	_, err := NewClassifier(stub, testFewShot()).Classify(context.Background(), testImage())

	if !errors.Is(err, ErrTransport) || !errors.Is(err, errUnavailable) {
		t.Errorf("Classify() error = %v, want transport error wrapping cause", err)
	}
	if KindOf(err) != KindTransport {
		t.Errorf("KindOf() = %s, want transport", KindOf(err))
	}
}
