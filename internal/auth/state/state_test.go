package state

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestCreateVerify_RoundTrip(t *testing.T) {
	for _, maxAge := range []time.Duration{time.Second, time.Minute, DefaultMaxAge} {
		token, err := Create("s3cret", maxAge)
		require.NoError(t, err)
		assert.True(t, Verify(token, "s3cret"), "maxAge=%v", maxAge)
	}
}

func TestVerify_Expiry(t *testing.T) {
	start := time.Unix(1_700_000_000, 0)
	codec := NewCodec("s3cret", 10*time.Second).WithClock(fixedClock(start))

	token, err := codec.Create()
	require.NoError(t, err)

	assert.True(t, codec.WithClock(fixedClock(start.Add(10*time.Second))).Verify(token))
	assert.False(t, codec.WithClock(fixedClock(start.Add(11*time.Second))).Verify(token))
}

func TestVerify_WrongSecret(t *testing.T) {
	token, err := Create("secret-one", time.Minute)
	require.NoError(t, err)
	assert.False(t, Verify(token, "secret-two"))
	assert.False(t, Verify(token, ""))
}

func TestVerify_Corrupted(t *testing.T) {
	token, err := Create("s3cret", time.Minute)
	require.NoError(t, err)

	payloadPart, sigPart, _ := strings.Cut(token, ".")

	flipped := []byte(sigPart)
	if flipped[0] == 'A' {
		flipped[0] = 'B'
	} else {
		flipped[0] = 'A'
	}

	cases := map[string]string{
		"empty":               "",
		"no separator":        payloadPart + sigPart,
		"flipped signature":   payloadPart + "." + string(flipped),
		"truncated payload":   payloadPart[:len(payloadPart)-2] + "." + sigPart,
		"missing signature":   payloadPart + ".",
		"missing payload":     "." + sigPart,
		"bad base64":          "!!!." + sigPart,
		"extra segment":       token + ".extra",
		"only separator":      ".",
		"non json payload":    signed(t, "s3cret", b64.EncodeToString([]byte("not-json"))),
		"payload without exp": signed(t, "s3cret", b64.EncodeToString([]byte(`{"ts":1,"nonce":"x"}`))),
	}

	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			assert.NotPanics(t, func() {
				assert.False(t, Verify(tok, "s3cret"))
			})
		})
	}
}

func TestCreate_UniqueAndURLSafe(t *testing.T) {
	a, err := Create("s3cret", time.Minute)
	require.NoError(t, err)
	b, err := Create("s3cret", time.Minute)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	for _, tok := range []string{a, b} {
		assert.NotContains(t, tok, "=")
		assert.NotContains(t, tok, "+")
		assert.NotContains(t, tok, "/")
		assert.Equal(t, 1, strings.Count(tok, "."))
	}
}

func TestCreate_EmptySecret(t *testing.T) {
	_, err := Create("", time.Minute)
	assert.Error(t, err)
}

func signed(t *testing.T, secret, encoded string) string {
	t.Helper()
	c := NewCodec(secret, time.Minute)
	return encoded + "." + b64.EncodeToString(c.sign(encoded))
}
