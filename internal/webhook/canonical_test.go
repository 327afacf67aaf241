package webhook

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSONSortsKeysAndStripsWhitespace(t *testing.T) {
	event := PaymentEvent{
		Event:            EventPaymentSucceeded,
		UserID:           141614461,
		AmountStars:      100,
		Currency:         "XTR",
		TelegramChargeID: "1234567890",
		InvoicePayload:   `{"package_id": "basic_10"}`,
		Timestamp:        1738500000,
	}

	got, err := CanonicalJSON(event)
	require.NoError(t, err)

	want := `{"amount_stars":100,"currency":"XTR","event":"telegram_stars_payment_succeeded",` +
		`"invoice_payload":"{\"package_id\": \"basic_10\"}","telegram_charge_id":"1234567890",` +
		`"timestamp":1738500000,"user_id":141614461}`
	assert.Equal(t, want, string(got))
}

func TestCanonicalJSONInsertionOrderIndependent(t *testing.T) {
	a := map[string]any{"b": 2, "a": 1, "c": map[string]any{"y": "я", "x": "ю"}}
	b := map[string]any{"c": map[string]any{"x": "ю", "y": "я"}, "a": 1, "b": 2}

	ca, err := CanonicalJSON(a)
	require.NoError(t, err)
	cb, err := CanonicalJSON(b)
	require.NoError(t, err)

	assert.Equal(t, ca, cb, "same logical payload must serialize byte-identically")
	assert.Equal(t, `{"a":1,"b":2,"c":{"x":"ю","y":"я"}}`, string(ca))
}

func TestCanonicalJSONKeepsHTMLCharacters(t *testing.T) {
	got, err := CanonicalJSON(map[string]any{"url": "https://x.test/a?b=1&c=<d>"})
	require.NoError(t, err)
	assert.Equal(t, `{"url":"https://x.test/a?b=1&c=<d>"}`, string(got))
}

func TestSignAndVerify(t *testing.T) {
	secret := "test_secret_key_12345"
	body := []byte(`{"a":1}`)

	sig := Sign(secret, body)
	assert.Len(t, sig, 64)
	assert.Equal(t, sig, Sign(secret, body), "signature must be deterministic")

	assert.True(t, Verify(secret, body, sig))
	assert.False(t, Verify(secret, body, strings.Repeat("0", 64)))
	assert.False(t, Verify("other", body, sig))
}

func TestSignaturesMatchForReorderedPayloads(t *testing.T) {
	secret := "s"
	a, err := CanonicalJSON(map[string]any{"user_id": 1, "event": "e"})
	require.NoError(t, err)
	b, err := CanonicalJSON(map[string]any{"event": "e", "user_id": 1})
	require.NoError(t, err)

	assert.Equal(t, Sign(secret, a), Sign(secret, b))
}
