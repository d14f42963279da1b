package schema

import (
	"encoding/json"
	"strings"
	"testing"
)

const validVerdict = `{
	"name_in_prescription": "Paula Maria",
	"doctor_name": "Dr. Silva",
	"prescription_date": "2023-12-14",
	"crm_number": "31024",
	"crm_state": "SP",
	"status": "REPROVED",
	"reasonsPrescriptionDiscrepancy": ["EXPIRED_PRESCRIPTION_DATE"],
	"items": [
		{
			"product": {"code": "2126", "name": "Dipirona", "ean": "07898148305100"},
			"status": "APPROVED",
			"reasonsPrescriptionDiscrepancy": []
		}
	]
}`

func TestValidationSchemaAcceptsVerdict(t *testing.T) {
	v, err := Compile("validation", ValidationSchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if err := v.Validate([]byte(validVerdict)); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestValidationSchemaRejects(t *testing.T) {
	v, err := Compile("validation", ValidationSchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(map[string]any)
		wantErr string
	}{
		{
			name:    "unknown prescription code",
			mutate:  func(m map[string]any) { m["reasonsPrescriptionDiscrepancy"] = []any{"NOT_A_CODE"} },
			wantErr: "does not match schema",
		},
		{
			name:    "status outside enum",
			mutate:  func(m map[string]any) { m["status"] = "MAYBE" },
			wantErr: "does not match schema",
		},
		{
			name:    "missing items",
			mutate:  func(m map[string]any) { delete(m, "items") },
			wantErr: "does not match schema",
		},
		{
			name: "item code in prescription scope",
			mutate: func(m map[string]any) {
				m["reasonsPrescriptionDiscrepancy"] = []any{"PRODUCT_NOT_IN_PRESCRIPTION"}
			},
			wantErr: "does not match schema",
		},
		{
			name: "item without product",
			mutate: func(m map[string]any) {
				m["items"] = []any{map[string]any{"status": "APPROVED", "reasonsPrescriptionDiscrepancy": []any{}}}
			},
			wantErr: "does not match schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var doc map[string]any
			if err := json.Unmarshal([]byte(validVerdict), &doc); err != nil {
				t.Fatal(err)
			}
			tt.mutate(doc)
			raw, _ := json.Marshal(doc)

			err := v.Validate(raw)
			if err == nil {
				t.Fatal("Validate() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateRejectsNonJSON(t *testing.T) {
	v, err := Compile("classification", ClassificationSchema)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if err := v.Validate([]byte("MANUSCRITA")); err == nil {
		t.Error("Validate() expected decode error for bare label")
	}
	if err := v.Validate([]byte(`{"response": "MANUSCRITA"}`)); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestJSONSchemaShape(t *testing.T) {
	doc := ValidationSchema.JSONSchema()
	if doc["type"] != "object" {
		t.Errorf("type = %v, want object", doc["type"])
	}
	required, _ := doc["required"].([]string)
	if len(required) != 8 {
		t.Errorf("required fields = %d, want 8", len(required))
	}
	props := doc["properties"].(map[string]any)
	status := props["status"].(map[string]any)
	if enum, _ := status["enum"].([]string); len(enum) != 2 {
		t.Errorf("status enum = %v, want 2 values", status["enum"])
	}
}

func TestGenerationConfigs(t *testing.T) {
	for name, cfg := range map[string]GenerationConfig{
		"classification": ClassificationConfig(),
		"validation":     ValidationConfig(),
	} {
		if cfg.Temperature != 0.3 || cfg.TopP != 0.95 || cfg.MaxOutputTokens != 8192 {
			t.Errorf("%s: unexpected sampling parameters %+v", name, cfg)
		}
		if cfg.ResponseMIMEType != "application/json" || cfg.ResponseSchema == nil {
			t.Errorf("%s: expected JSON response with schema", name)
		}
	}
	if got := len(SafetySettings()); got != 4 {
		t.Errorf("SafetySettings() = %d entries, want 4", got)
	}
}
