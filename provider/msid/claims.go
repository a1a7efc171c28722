package msid

import (
	"strings"

	"github.com/abhinandanshahdev/go-identity"
	"github.com/golang-jwt/jwt/v5"
)

// normalizeClaims extracts the identity fields this application cares about
// from raw Microsoft token claims. Identity comes from `oid` falling back to
// `sub`; email from `email`, `preferred_username`, then `upn`; directory
// roles from the `roles` list, defaulting empty.
func normalizeClaims(claims jwt.MapClaims) *identity.ExternalIdentity {
	ext := &identity.ExternalIdentity{
		SubjectID:   claimString(claims, "oid", "sub"),
		Email:       strings.ToLower(claimString(claims, "email", "preferred_username", "upn")),
		DisplayName: claimString(claims, "name"),
	}

	if raw, ok := claims["roles"]; ok {
		ext.DirectoryRoles = stringSlice(raw)
	}

	return ext
}

func claimString(claims jwt.MapClaims, keys ...string) string {
	for _, key := range keys {
		if val, ok := claims[key]; ok {
			if str, ok := val.(string); ok && str != "" {
				return str
			}
		}
	}
	return ""
}

func stringSlice(raw any) []string {
	switch vals := raw.(type) {
	case []string:
		return append([]string(nil), vals...)
	case []any:
		out := make([]string, 0, len(vals))
		for _, v := range vals {
			if str, ok := v.(string); ok && str != "" {
				out = append(out, str)
			}
		}
		return out
	default:
		return nil
	}
}
