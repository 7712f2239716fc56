package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

// InputKind selects the type-specific check applied by ValidateInput.
type InputKind string

const (
	KindText   InputKind = "text"
	KindEmail  InputKind = "email"
	KindNumber InputKind = "number"
	KindYesNo  InputKind = "yes_no"
)

// MaxResponseLength caps questionnaire and request responses, in characters.
const MaxResponseLength = 10000

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

var yesNoValues = map[string]string{
	"yes": "yes", "y": "yes", "true": "yes",
	"no": "no", "n": "no", "false": "no",
	"n/a": "n/a", "na": "n/a",
}

// Result is the outcome of a validation. Sanitized is only meaningful when
// Valid is true; Error is a message safe to show to the user.
type Result struct {
	Valid     bool   `json:"valid"`
	Sanitized string `json:"sanitized"`
	Error     string `json:"error,omitempty"`
}

func invalid(format string, args ...any) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// ValidateInput sanitizes value and applies the check for kind. An empty value
// is valid for every kind; required-ness is the caller's decision.
func ValidateInput(value string, kind InputKind) Result {
	clean := SanitizeText(value)
	if clean == "" {
		return Result{Valid: true}
	}

	switch kind {
	case KindText, "":
		return Result{Valid: true, Sanitized: clean}
	case KindEmail:
		if !emailPattern.MatchString(clean) {
			return invalid("please enter a valid email address")
		}
		return Result{Valid: true, Sanitized: strings.ToLower(clean)}
	case KindNumber:
		if _, err := strconv.ParseFloat(clean, 64); err != nil {
			return invalid("please enter a valid number")
		}
		return Result{Valid: true, Sanitized: clean}
	case KindYesNo:
		normalized, ok := yesNoValues[strings.ToLower(clean)]
		if !ok {
			return invalid("please answer yes, no or n/a")
		}
		return Result{Valid: true, Sanitized: normalized}
	default:
		return invalid("unsupported input type %q", kind)
	}
}

// ValidateQuestionnaireResponse is ValidateInput with the response length cap.
func ValidateQuestionnaireResponse(value string, kind InputKind) Result {
	if utf8.RuneCountInString(value) > MaxResponseLength {
		return invalid("response must be %d characters or fewer", MaxResponseLength)
	}
	return ValidateInput(value, kind)
}
