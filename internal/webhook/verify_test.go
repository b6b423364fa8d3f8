package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type staticSecret struct {
	key string
	err error
}

func (s *staticSecret) DefaultWebhookSecret(context.Context) (string, error) {
	return s.key, s.err
}

func sign(t *testing.T, secret, id, timestamp string, body []byte) string {
	t.Helper()
	key, err := base64.StdEncoding.DecodeString(secret)
	require.NoError(t, err)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id + "." + timestamp + "."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

const rawSecret = "C2FVsBQIhrscChlQIMV+b5sSYspob7oD"

func TestVerifyValidSignature(t *testing.T) {
	v := NewVerifier(&staticSecret{key: "whsec_" + rawSecret})
	body := []byte(`{"status":"succeeded"}`)
	sig := sign(t, rawSecret, "msg_1", "1700000000", body)

	require.True(t, v.Verify(context.Background(), "msg_1", "1700000000", "v1,"+sig, body))
}

func TestVerifyUnprefixedSecret(t *testing.T) {
	v := NewVerifier(&staticSecret{key: rawSecret})
	body := []byte(`{}`)
	sig := sign(t, rawSecret, "msg_1", "1700000000", body)

	require.True(t, v.Verify(context.Background(), "msg_1", "1700000000", "v1,"+sig, body))
}

func TestVerifyTamperedBody(t *testing.T) {
	v := NewVerifier(&staticSecret{key: "whsec_" + rawSecret})
	sig := sign(t, rawSecret, "msg_1", "1700000000", []byte(`{"status":"succeeded"}`))

	require.False(t, v.Verify(
		context.Background(),
		"msg_1", "1700000000", "v1,"+sig,
		[]byte(`{"status":"failed"}`)))
}

func TestVerifyTamperedHeaders(t *testing.T) {
	v := NewVerifier(&staticSecret{key: "whsec_" + rawSecret})
	body := []byte(`{}`)
	sig := sign(t, rawSecret, "msg_1", "1700000000", body)

	require.False(t, v.Verify(context.Background(), "msg_2", "1700000000", "v1,"+sig, body))
	require.False(t, v.Verify(context.Background(), "msg_1", "1700000001", "v1,"+sig, body))
}

func TestVerifyAnyCandidateMatches(t *testing.T) {
	v := NewVerifier(&staticSecret{key: "whsec_" + rawSecret})
	body := []byte(`{}`)
	good := sign(t, rawSecret, "msg_1", "1700000000", body)
	bad := base64.StdEncoding.EncodeToString([]byte("not a signature here--"))

	sigs := "v1," + bad + " v1," + good
	require.True(t, v.Verify(context.Background(), "msg_1", "1700000000", sigs, body))
}

func TestVerifyMissingHeaders(t *testing.T) {
	v := NewVerifier(&staticSecret{key: "whsec_" + rawSecret})
	require.False(t, v.Verify(context.Background(), "", "1700000000", "v1,abc", []byte(`{}`)))
	require.False(t, v.Verify(context.Background(), "msg_1", "", "v1,abc", []byte(`{}`)))
	require.False(t, v.Verify(context.Background(), "msg_1", "1700000000", "", []byte(`{}`)))
}

func TestVerifyFailsClosedWithoutSecret(t *testing.T) {
	v := NewVerifier(&staticSecret{err: errors.New("provider unreachable")})
	body := []byte(`{}`)
	sig := sign(t, rawSecret, "msg_1", "1700000000", body)

	require.False(t, v.Verify(context.Background(), "msg_1", "1700000000", "v1,"+sig, body))
}

func TestVerifyMalformedCandidatesIgnored(t *testing.T) {
	v := NewVerifier(&staticSecret{key: "whsec_" + rawSecret})
	body := []byte(`{}`)
	good := sign(t, rawSecret, "msg_1", "1700000000", body)

	sigs := "garbage v1;wrong v1,!!! v1," + good
	require.True(t, v.Verify(context.Background(), "msg_1", "1700000000", sigs, body))
}
