package audit

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMaskJSONEmail(t *testing.T) {
	out := MaskJSON(json.RawMessage(`{"email": "john@example.com"}`))
	require.NotContains(t, string(out), "john@example.com")
	require.Contains(t, string(out), "j***@example.com")
}

func TestMaskJSONPhoneKeepsTrailingDigits(t *testing.T) {
	out := MaskJSON(json.RawMessage(`{"phone": "+1 (555) 123-4567"}`))
	s := string(out)
	require.NotContains(t, s, "555) 123")
	require.Contains(t, s, "***4567")
}

func TestMaskJSONPasswordFullyRedacted(t *testing.T) {
	out := MaskJSON(json.RawMessage(`{"password": "hunter2"}`))
	require.NotContains(t, string(out), "hunter2")
	require.Contains(t, string(out), `"***"`)
}

func TestMaskJSONNested(t *testing.T) {
	in := `{
		"booking": {
			"customer": {"email": "alice@example.org", "name": "Alice"},
			"contacts": [{"phone": "555-0100"}, {"phone": "5551234567"}]
		},
		"service": "consultation"
	}`
	out := string(MaskJSON(json.RawMessage(in)))
	require.NotContains(t, out, "alice@example.org")
	require.NotContains(t, out, "5551234567")
	require.Contains(t, out, "a***@example.org")
	// Non-sensitive fields pass through untouched.
	require.Contains(t, out, `"Alice"`)
	require.Contains(t, out, "consultation")
}

func TestMaskJSONPaymentIdentifiers(t *testing.T) {
	out := string(MaskJSON(json.RawMessage(`{"card_number": "4111111111111111", "payment_id": "pay_98765"}`)))
	require.NotContains(t, out, "4111111111111111")
	require.Contains(t, out, "***1111")
	require.NotContains(t, out, "pay_98765")
}

func TestMaskJSONShortAndNonStringValues(t *testing.T) {
	out := string(MaskJSON(json.RawMessage(`{"phone": "123", "email": 42}`)))
	require.NotContains(t, out, "123")
	require.Contains(t, out, `"***"`)
}

func TestMaskJSONUnparseable(t *testing.T) {
	out := MaskJSON(json.RawMessage(`{not json`))
	require.JSONEq(t, `"<unparseable>"`, string(out))
}
