package queue

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"
)

// signaturePrefix starts the signature header value. Sign and Verify use the
// form "v1=<base64(HMAC-SHA256(body))>"; the value has no second
// "."-separated segment.
const signaturePrefix = "v1="

// Sign computes the upstash-signature header value for a job body using the
// current signing key.
func Sign(signingKey string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(signingKey))
	mac.Write(body)
	sum := mac.Sum(nil)
	return signaturePrefix + base64.StdEncoding.EncodeToString(sum)
}

// Verify checks a signature header against the body, trying the current key
// first and falling back to the next key so a signing-key rotation does not
// reject in-flight jobs signed under the outgoing key.
func Verify(currentKey, nextKey string, body []byte, header string) error {
	sig, ok := strings.CutPrefix(header, signaturePrefix)
	if !ok {
		return fmt.Errorf("malformed signature header")
	}
	given, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return fmt.Errorf("decoding signature: %w", err)
	}

	if verifyWithKey(currentKey, body, given) {
		return nil
	}
	if nextKey != "" && verifyWithKey(nextKey, body, given) {
		return nil
	}
	return fmt.Errorf("signature does not match any configured signing key")
}

func verifyWithKey(key string, body, given []byte) bool {
	if key == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(key))
	mac.Write(body)
	want := mac.Sum(nil)
	return subtle.ConstantTimeCompare(want, given) == 1
}
