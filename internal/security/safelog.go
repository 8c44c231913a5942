package security

import (
	"regexp"
	"strings"
)

// secretKeys are field names whose values are never shown.
var secretKeys = []string{
	"api_token", "token", "access_token", "auth_token", "authorization",
	"bearer", "password", "secret", "credentials", "webhook", "webhook_url",
}

var (
	// key=value or key: value with a secret-looking key
	inlineSecretRE = regexp.MustCompile(`(?i)\b(api[_-]?token|access[_-]?token|auth[_-]?token|password|secret)(\s*[=:]\s*)["']?([^\s"'&]+)["']?`)
	bearerRE       = regexp.MustCompile(`(?i)\b(bearer)(\s+)([A-Za-z0-9._~+/-]+=*)`)
)

// IsSensitiveField reports whether values under field are secrets.
func IsSensitiveField(field string) bool {
	field = strings.ToLower(field)
	for _, k := range secretKeys {
		if field == k {
			return true
		}
	}
	return false
}

// MaskSecrets masks tokens and passwords embedded in free text while
// keeping the surrounding words.
func MaskSecrets(text string) string {
	for _, re := range []*regexp.Regexp{inlineSecretRE, bearerRE} {
		text = re.ReplaceAllStringFunc(text, func(m string) string {
			parts := re.FindStringSubmatch(m)
			return parts[1] + parts[2] + MaskCredential(parts[3])
		})
	}
	return text
}

// MaskCredential keeps the first and last four characters of long values
// and stars out the rest.
func MaskCredential(value string) string {
	n := len(value)
	switch {
	case n == 0:
		return ""
	case n <= 4:
		return strings.Repeat("*", n)
	case n <= 8:
		return value[:2] + strings.Repeat("*", n-2)
	}
	return value[:4] + strings.Repeat("*", n-8) + value[n-4:]
}

// RedactMap copies data, masking secret fields and secrets inside string
// values. Nested maps are handled recursively.
func RedactMap(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		secret := IsSensitiveField(k)
		switch val := v.(type) {
		case map[string]any:
			out[k] = RedactMap(val)
		case string:
			if secret {
				out[k] = MaskCredential(val)
			} else {
				out[k] = MaskSecrets(val)
			}
		default:
			if secret && v != nil {
				out[k] = "***"
			} else {
				out[k] = v
			}
		}
	}
	return out
}
