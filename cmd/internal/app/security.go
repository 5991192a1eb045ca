package app

import (
	"errors"

	"workfolio/cmd/security/token"
)

// securityHasher builds the refresh credential hasher under the startup policy.
//
// Fail-fast: a required HMAC key that is missing or short stops the server instead of
// falling back to plain SHA-256.
func securityHasher(cfg Config) (token.Hasher, error) {
	h, err := token.HasherFromEnv(cfg.RequireTokenHMAC)
	switch {
	case errors.Is(err, token.ErrHMACKeyMissing):
		return token.Hasher{}, errors.New("security policy: PORTAL_REQUIRE_TOKEN_HMAC=true but PORTAL_TOKEN_HMAC_KEY is missing")
	case errors.Is(err, token.ErrHMACKeyTooShort):
		return token.Hasher{}, errors.New("security policy: PORTAL_TOKEN_HMAC_KEY is too short (min 32 bytes)")
	case err != nil:
		return token.Hasher{}, err
	}

	if cfg.RequireTokenHMAC && !h.HMAC() {
		return token.Hasher{}, errors.New("security policy: PORTAL_REQUIRE_TOKEN_HMAC=true but token hasher is not in HMAC mode")
	}
	return h, nil
}
