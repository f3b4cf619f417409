package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrSignature means the X-Hub-Signature-256 header did not match the HMAC
// of the request body; the delivery is rejected with 403.
var ErrSignature = errors.New("webhook signature mismatch")

const signaturePrefix = "sha256="

// ValidateSignature checks the platform's HMAC-SHA256 body signature against
// the shared application secret. The comparison is constant-time.
func ValidateSignature(appSecret string, body []byte, header string) error {
	if !strings.HasPrefix(header, signaturePrefix) {
		return ErrSignature
	}

	supplied, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return ErrSignature
	}

	mac := hmac.New(sha256.New, []byte(appSecret))
	mac.Write(body)
	if !hmac.Equal(supplied, mac.Sum(nil)) {
		return ErrSignature
	}
	return nil
}
