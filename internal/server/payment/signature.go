package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"

	pkgerrors "github.com/pandeptwidyaop/multisite/pkg/errors"
)

// Notification headers.
const (
	HeaderSignature = "X-Signature"
	HeaderRequestID = "X-Request-Id"
)

// Manifest builds the string the provider signs for a notification.
func Manifest(dataID, requestID, ts string) string {
	return fmt.Sprintf("id:%s;request-id:%s;ts:%s;", dataID, requestID, ts)
}

// Sign returns the x-signature header value for a notification. It is what
// the provider computes and is used by tests and the local simulator.
func Sign(secret, dataID, requestID, ts string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Manifest(dataID, requestID, ts)))
	return "ts=" + ts + ",v1=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a notification's signature headers against
// dataID, the id of the resource the notification is about. An empty
// secret never verifies.
func VerifySignature(secret string, header http.Header, dataID string) error {
	if secret == "" {
		return fmt.Errorf("%w: webhook secret not configured", pkgerrors.ErrInvalidSignature)
	}

	raw := header.Get(HeaderSignature)
	if raw == "" {
		return fmt.Errorf("%w: missing signature", pkgerrors.ErrInvalidSignature)
	}

	var ts, v1 string
	for _, part := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "ts":
			ts = value
		case "v1":
			v1 = value
		}
	}
	if ts == "" || v1 == "" {
		return fmt.Errorf("%w: malformed signature", pkgerrors.ErrInvalidSignature)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(Manifest(dataID, header.Get(HeaderRequestID), ts)))
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(v1))) {
		return fmt.Errorf("%w: signature mismatch", pkgerrors.ErrInvalidSignature)
	}
	return nil
}
