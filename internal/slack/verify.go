package slack

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

const (
	signaturePrefix = "v0"
	maxSignatureAge = 5 * time.Minute
)

// VerifySignature checks a Slack request signature: the timestamp must be
// within five minutes of now (replay protection) and the signature must equal
// HMAC-SHA256(secret, "v0:<timestamp>:<body>") with a "v0=" prefix.
// Malformed input yields false, never an error.
func VerifySignature(secret, timestamp, body, signature string) bool {
	return verifySignatureAt(time.Now(), secret, timestamp, body, signature)
}

func verifySignatureAt(now time.Time, secret, timestamp, body, signature string) bool {
	if secret == "" || timestamp == "" || signature == "" {
		return false
	}

	ts, err := strconv.ParseInt(timestamp, 10, 64)
	if err != nil {
		return false
	}
	age := now.Unix() - ts
	if age < 0 {
		age = -age
	}
	if age > int64(maxSignatureAge/time.Second) {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signaturePrefix + ":" + timestamp + ":" + body))
	expected := signaturePrefix + "=" + hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
