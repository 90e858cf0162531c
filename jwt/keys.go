package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// keyring holds the parsed signing key and the verify keys, resolved once at
// construction.
type keyring struct {
	method jwt.SigningMethod
	sign   any
	// verify is used when no kid map is configured.
	verify any
	byKid  map[string]any
	kid    string
}

func newKeyring(cfg Config) (*keyring, error) {
	kr := &keyring{kid: strings.TrimSpace(cfg.KeyID)}

	switch cfg.SigningMethod {
	case MethodHS256:
		kr.method = jwt.SigningMethodHS256
		if len(cfg.PrivateKey) < 32 {
			return nil, errors.New("hs256 requires a secret of at least 32 bytes")
		}
		kr.sign = cfg.PrivateKey
		kr.verify = cfg.PrivateKey
	case MethodEd25519:
		kr.method = jwt.SigningMethodEdDSA
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			kr.sign = priv
		}
		if len(cfg.PublicKey) > 0 {
			pub, err := parseEdPublicKey(cfg.PublicKey)
			if err != nil {
				return nil, err
			}
			kr.verify = pub
		}
		if len(cfg.VerifyKeys) == 0 && kr.verify == nil {
			return nil, errors.New("ed25519 requires public key or verify key set")
		}
	default:
		return nil, fmt.Errorf("unsupported signing method %q", cfg.SigningMethod)
	}

	if len(cfg.VerifyKeys) > 0 {
		kr.byKid = make(map[string]any, len(cfg.VerifyKeys))
		for kid, raw := range cfg.VerifyKeys {
			if strings.TrimSpace(kid) == "" {
				return nil, errors.New("verify key map contains empty kid")
			}
			key, err := kr.parseVerifyKey(raw)
			if err != nil {
				return nil, fmt.Errorf("invalid verify key for kid %q: %w", kid, err)
			}
			kr.byKid[kid] = key
		}
		if kr.kid != "" {
			if _, ok := kr.byKid[kr.kid]; !ok {
				return nil, errors.New("KeyID is not present in VerifyKeys")
			}
		}
	}
	return kr, nil
}

func (kr *keyring) parseVerifyKey(raw []byte) (any, error) {
	if kr.method == jwt.SigningMethodHS256 {
		return raw, nil
	}
	return parseEdPublicKey(raw)
}

// keyFunc selects the verify key by kid. With a kid map every token must carry a
// known kid; with a single KeyID the header must match it.
func (kr *keyring) keyFunc(t *jwt.Token) (any, error) {
	if t.Method.Alg() != kr.method.Alg() {
		return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
	}
	kid, _ := t.Header["kid"].(string)

	if kr.byKid != nil {
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		key, ok := kr.byKid[kid]
		if !ok {
			return nil, errors.New("unknown kid")
		}
		return key, nil
	}
	if kr.kid != "" && kid != kr.kid {
		if kid == "" {
			return nil, errors.New("missing kid")
		}
		return nil, errors.New("unknown kid")
	}
	return kr.verify, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
