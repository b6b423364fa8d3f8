package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strings"

	"github.com/pictoria-cloud/pictoria/pkg/log"
)

const secretPrefix = "whsec_"

// SecretSource yields the shared secret the provider signs
// webhook deliveries with.
type SecretSource interface {
	DefaultWebhookSecret(ctx context.Context) (string, error)
}

// Verifier authenticates inbound training webhooks. The signed
// payload is "{id}.{timestamp}.{body}", the signature header is a
// space-separated list of "version,base64" candidates, and the
// delivery is valid iff any candidate matches the HMAC-SHA256 of
// the payload under the decoded secret.
type Verifier struct {
	secrets SecretSource
}

// NewVerifier constructs a Verifier reading its secret from the
// provided source.
func NewVerifier(secrets SecretSource) *Verifier {
	return &Verifier{secrets: secrets}
}

// Verify reports whether the delivery is authentic. Any failure
// to obtain or decode the secret is treated as invalid: the
// endpoint is internet-reachable and must fail closed.
func (v *Verifier) Verify(ctx context.Context, id, timestamp, signatures string, body []byte) bool {
	if id == "" || timestamp == "" || signatures == "" {
		return false
	}

	secret, err := v.secrets.DefaultWebhookSecret(ctx)
	if err != nil {
		log.Error("failed to fetch webhook secret", "error", err)
		return false
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
	if err != nil {
		log.Error("failed to decode webhook secret")
		return false
	}

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(id))
	mac.Write([]byte("."))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	expected := mac.Sum(nil)

	for _, candidate := range strings.Fields(signatures) {
		// Each candidate is "version,base64signature".
		_, encoded, found := strings.Cut(candidate, ",")
		if !found {
			continue
		}
		sig, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			continue
		}
		if hmac.Equal(sig, expected) {
			return true
		}
	}

	return false
}
