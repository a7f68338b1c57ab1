package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// errVerification is the only error verification reports.
var errVerification = errors.New("webhook verification failed")

// verifyHMACSignature checks a hex HMAC-SHA256 of body, accepting "sha256=<hex>" or "<hex>".
func verifyHMACSignature(body []byte, signature, secret string) error {
	if secret == "" || signature == "" {
		return errVerification
	}

	actual, err := hex.DecodeString(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if err != nil {
		return errVerification
	}
	if !hmac.Equal(sign(body, secret), actual) {
		return errVerification
	}
	return nil
}

func sign(body []byte, secret string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

// SignatureFor returns the "sha256=<hex>" header value for body.
func SignatureFor(body []byte, secret string) string {
	return "sha256=" + hex.EncodeToString(sign(body, secret))
}
