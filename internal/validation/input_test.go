package validation

import (
	"strings"
	"testing"
)

func TestValidateInput(t *testing.T) {
	tests := []struct {
		name      string
		value     string
		kind      InputKind
		wantValid bool
		wantClean string
	}{
		{"text sanitized", "<b>hi</b>", KindText, true, "hi"},
		{"email ok", "Alice@Example.com", KindEmail, true, "alice@example.com"},
		{"email bad", "alice@", KindEmail, false, ""},
		{"email with space", "al ice@example.com", KindEmail, false, ""},
		{"number int", "42", KindNumber, true, "42"},
		{"number float", "-3.5", KindNumber, true, "-3.5"},
		{"number bad", "abc", KindNumber, false, ""},
		{"yes", "Yes", KindYesNo, true, "yes"},
		{"n", "n", KindYesNo, true, "no"},
		{"na", "N/A", KindYesNo, true, "n/a"},
		{"maybe", "maybe", KindYesNo, false, ""},
		{"empty number", "", KindNumber, true, ""},
		{"unknown kind", "x", InputKind("date"), false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateInput(tt.value, tt.kind)
			if got.Valid != tt.wantValid {
				t.Fatalf("Valid = %v, want %v (error %q)", got.Valid, tt.wantValid, got.Error)
			}
			if got.Valid && got.Sanitized != tt.wantClean {
				t.Errorf("Sanitized = %q, want %q", got.Sanitized, tt.wantClean)
			}
			if !got.Valid && got.Error == "" {
				t.Error("invalid result must carry an error message")
			}
		})
	}
}

func TestValidateQuestionnaireResponse(t *testing.T) {
	if r := ValidateQuestionnaireResponse("abc", KindNumber); r.Valid || !strings.Contains(r.Error, "number") {
		t.Errorf("abc as number = %+v, want numeric-format error", r)
	}
	if r := ValidateQuestionnaireResponse("42", KindNumber); !r.Valid || r.Sanitized != "42" {
		t.Errorf("42 as number = %+v", r)
	}

	atLimit := strings.Repeat("é", MaxResponseLength)
	if r := ValidateQuestionnaireResponse(atLimit, KindText); !r.Valid {
		t.Errorf("response at the cap should pass: %s", r.Error)
	}
	if r := ValidateQuestionnaireResponse(atLimit+"x", KindText); r.Valid {
		t.Error("response over the cap should fail")
	}
}
