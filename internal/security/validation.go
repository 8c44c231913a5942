package security

import (
	"regexp"
	"strings"
	"unicode"

	apperrors "autotrade-console/internal/errors"
)

var (
	// RELIANCE.NS, M&M.BO, ^NSEI
	tickerRE = regexp.MustCompile(`^\^?[A-Z0-9&-]{1,20}(\.[A-Z]{1,4})?$`)
	planIDRE = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)
	// NSE_EQ|INE002A01018, NSE_INDEX|Nifty 50
	instrumentRE = regexp.MustCompile(`^[A-Z_]{2,12}\|[A-Za-z0-9 &._-]{1,40}$`)
	settingKeyRE = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

	// Free text must not look like SQL or a shell command.
	suspicious = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(union\s+select|drop\s+table|insert\s+into|delete\s+from)\b`),
		regexp.MustCompile(`(?i)\b(or|and)\s+1\s*=\s*1\b`),
		regexp.MustCompile(`--|;|'|"|\x60|\$\(|\|\||&&`),
		regexp.MustCompile(`(?i)\b(rm\s+-rf|sh\s+-c|wget|curl|eval|exec)\b`),
	}
)

const maxSettingValue = 256

// InputValidator checks identifiers before they reach the backend. In
// strict mode free text is also screened for injection patterns.
type InputValidator struct {
	strict bool
}

// NewInputValidator returns a validator.
func NewInputValidator(strict bool) *InputValidator {
	return &InputValidator{strict: strict}
}

// NormalizeTicker trims and upper-cases a ticker.
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// ValidateTicker returns the normalised ticker. An empty ticker is
// ErrEmptyTicker.
func (v *InputValidator) ValidateTicker(ticker string) (string, error) {
	t := NormalizeTicker(ticker)
	switch {
	case t == "":
		return "", apperrors.ErrEmptyTicker
	case len(t) > 26:
		return "", apperrors.NewValidationError("ticker", t, "ticker too long (max 26 characters)")
	case !tickerRE.MatchString(t):
		return "", apperrors.NewValidationError("ticker", t, "invalid ticker format")
	}
	return t, nil
}

// ValidateTickers validates each ticker, stopping at the first bad one.
func (v *InputValidator) ValidateTickers(tickers []string) ([]string, error) {
	out := make([]string, len(tickers))
	for i, t := range tickers {
		norm, err := v.ValidateTicker(t)
		if err != nil {
			return nil, err
		}
		out[i] = norm
	}
	return out, nil
}

// ValidatePlanID checks a plan id.
func (v *InputValidator) ValidatePlanID(planID string) error {
	id := strings.TrimSpace(planID)
	if id == "" {
		return apperrors.NewValidationError("plan_id", id, "plan ID cannot be empty")
	}
	if !planIDRE.MatchString(id) {
		return apperrors.NewValidationError("plan_id", id, "invalid plan ID format")
	}
	return nil
}

// ValidateInstrumentKey checks a relay key of the form SEGMENT|ID.
func (v *InputValidator) ValidateInstrumentKey(key string) error {
	k := strings.TrimSpace(key)
	if k == "" {
		return apperrors.NewValidationError("instrument_key", k, "instrument key cannot be empty")
	}
	if !instrumentRE.MatchString(k) {
		return apperrors.NewValidationError("instrument_key", k, "invalid instrument key format (expected SEGMENT|ID)")
	}
	return nil
}

// ValidateSetting checks one key=value engine settings pair.
func (v *InputValidator) ValidateSetting(key, value string) error {
	if !settingKeyRE.MatchString(key) {
		return apperrors.NewValidationError("setting", key, "setting names are lower_snake_case")
	}
	return v.ValidateText(key, value, maxSettingValue)
}

// ValidateText bounds free text and, in strict mode, rejects control
// characters and injection patterns.
func (v *InputValidator) ValidateText(field, text string, maxLen int) error {
	if len(text) > maxLen {
		return apperrors.NewValidationError(field, preview(text), "text too long")
	}
	if !v.strict {
		return nil
	}
	if strings.IndexFunc(text, unicode.IsControl) >= 0 {
		return apperrors.NewValidationError(field, preview(text), "control characters are not allowed")
	}
	for _, re := range suspicious {
		if re.MatchString(text) {
			return apperrors.NewValidationError(field, MaskSecrets(preview(text)), "potentially dangerous content detected")
		}
	}
	return nil
}

func preview(s string) string {
	if len(s) > 50 {
		return s[:50] + "..."
	}
	return s
}
