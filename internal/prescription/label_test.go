package prescription

import "testing"

func TestNormalizeLabel(t *testing.T) {
	tests := []struct {
		name           string
		raw            string
		wantValue      string
		wantStructured bool
	}{
		{"bare typed", "DIGITADA", "DIGITADA", false},
		{"bare with whitespace", "  MANUSCRITA\n", "MANUSCRITA", false},
		{"envelope", `{"response": "MANUSCRITA"}`, "MANUSCRITA", true},
		{"fenced envelope", "```json\n{\"response\": \"DIGITADA\"}\n```", "DIGITADA", true},
		{"envelope without response", `{"label": "DIGITADA"}`, `{"label": "DIGITADA"}`, false},
		{"envelope with non-string response", `{"response": 1}`, `{"response": 1}`, false},
		{"truncated envelope", `{"response": "MANUS`, `{"response": "MANUS`, false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeLabel(tt.raw)
			if got.Value != tt.wantValue || got.Structured != tt.wantStructured {
				t.Errorf("NormalizeLabel(%q) = %+v, want {%q %v}", tt.raw, got, tt.wantValue, tt.wantStructured)
			}
		})
	}
}

func TestLabelHandwritten(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"MANUSCRITA", true},
		{"manuscrita", true},
		{"[MANUSCRITA]", true},
		{"MANUSCRITADIGITADA", true},
		{"Receita MANUSCRITA.", true},
		{"DIGITADA", false},
		{"MANUSCRIT", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := (Label{Value: tt.value}).Handwritten(); got != tt.want {
			t.Errorf("Label{%q}.Handwritten() = %v, want %v", tt.value, got, tt.want)
		}
	}
}

func TestLabelParseCategory(t *testing.T) {
	tests := []struct {
		value  string
		want   Category
		wantOK bool
	}{
		{"MANUSCRITA", Handwritten, true},
		{" digitada ", Typed, true},
		{"[MANUSCRITA]", Handwritten, true},
		{"MANUSCRITADIGITADA", "", false},
		{"Receita MANUSCRITA.", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := (Label{Value: tt.value}).ParseCategory()
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("Label{%q}.ParseCategory() = %q, %v, want %q, %v", tt.value, got, ok, tt.want, tt.wantOK)
		}
	}
}
