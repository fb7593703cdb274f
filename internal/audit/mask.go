package audit

import (
	"encoding/json"
	"strings"
)

// Field names that are always masked before a snapshot is persisted.
// Callers cannot opt out.
var maskedFields = map[string]bool{
	"email":          true,
	"attendee_email": true,
	"contact_email":  true,
	"phone":          true,
	"contact_phone":  true,
	"password":       true,
	"card_number":    true,
	"payment_id":     true,
	"payment_token":  true,
}

// MaskJSON deep-masks sensitive fields in a JSON document. Anything that
// cannot be parsed is replaced wholesale rather than stored raw.
func MaskJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return json.RawMessage(`"<unparseable>"`)
	}
	masked, err := json.Marshal(maskValue("", v))
	if err != nil {
		return json.RawMessage(`"<unserializable>"`)
	}
	return masked
}

func maskValue(field string, v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			if maskedFields[strings.ToLower(k)] {
				out[k] = redact(k, inner)
				continue
			}
			out[k] = maskValue(k, inner)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			out[i] = maskValue(field, inner)
		}
		return out
	default:
		return v
	}
}

// redact keeps just enough shape for debugging: first rune plus domain for
// emails, trailing digits for phone and payment identifiers, nothing at
// all for secrets.
func redact(field string, v any) string {
	s, ok := v.(string)
	if !ok || s == "" {
		return "***"
	}
	lower := strings.ToLower(field)
	if strings.Contains(lower, "password") || strings.Contains(lower, "token") {
		return "***"
	}
	if at := strings.IndexByte(s, '@'); at > 0 {
		return s[:1] + "***@" + s[at+1:]
	}
	digits := keepDigits(s)
	if len(digits) > 4 {
		return "***" + digits[len(digits)-4:]
	}
	return "***"
}

func keepDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
