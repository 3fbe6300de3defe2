// Package auth handles the scanning identity: static bearer tokens
// and best-effort extraction of the attacker's own user id from JWT
// claims. Knowing the attacker id lets the verdict engine tell "my own
// data came back" (not a leak) apart from "the victim's data came back".
package auth

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// BearerHeader formats the Authorization header value for a token.
func BearerHeader(token string) string {
	return "Bearer " + token
}

// claimNames are checked in order when pulling the subject id out of a
// JWT payload.
var claimNames = []string{"userId", "user_id", "sub", "id"}

// ExtractUserID decodes a JWT's payload segment and returns the first
// recognized subject claim. Opaque (non-JWT) tokens return ok=false;
// that only degrades verdict precision, never correctness.
func ExtractUserID(token string) (string, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", false
	}

	payload, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return "", false
	}

	var claims map[string]any
	if err := json.Unmarshal(payload, &claims); err != nil {
		return "", false
	}

	for _, name := range claimNames {
		switch v := claims[name].(type) {
		case string:
			if v != "" {
				return v, true
			}
		case float64:
			// Numeric subject ids marshal back to their integral form.
			if data, err := json.Marshal(v); err == nil {
				return string(data), true
			}
		}
	}
	return "", false
}
