package jwt

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the token signature algorithm.
type SigningMethod string

const (
	// MethodEd25519 signs with EdDSA over Ed25519 keys.
	MethodEd25519 SigningMethod = "ed25519"
	// MethodHS256 signs with HMAC-SHA256 over a shared secret.
	MethodHS256 SigningMethod = "hs256"
)

var (
	// ErrMissingSubject is returned when a token is requested without user or device.
	ErrMissingSubject = errors.New("jwt: user and device are required")
	// ErrSigningDisabled is returned by Issue when the manager only holds verify keys.
	ErrSigningDisabled = errors.New("jwt: no signing key configured")
	// ErrFutureIssuedAt is returned by Parse for tokens issued further ahead than
	// Config.MaxFutureIAT.
	ErrFutureIssuedAt = errors.New("jwt: token iat too far in the future")
)

// Config holds token lifetime, keys and validation settings.
type Config struct {
	TTL           time.Duration
	SigningMethod SigningMethod
	// PrivateKey is the HS256 secret or the Ed25519 private key (raw or PEM).
	PrivateKey []byte
	PublicKey  []byte
	Issuer     string
	Audience   string
	Leeway     time.Duration
	RequireIAT bool
	// MaxFutureIAT bounds clock skew on iat; zero means 10 minutes.
	MaxFutureIAT time.Duration
	KeyID        string
	// VerifyKeys enables key rotation: tokens must carry one of these kids.
	VerifyKeys map[string][]byte
	// Now overrides time.Now for issuance and validation.
	Now func() time.Time
}

// Manager issues and verifies device-session tokens.
type Manager struct {
	config Config
	keys   *keyring
	parser *jwt.Parser
}

// SessionClaims binds a token to one device session: sub is the user, did the device,
// sid the session row and plan the subscription tier at issuance.
type SessionClaims struct {
	DeviceID  string `json:"did"`
	SessionID string `json:"sid"`
	Plan      string `json:"plan,omitempty"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *SessionClaims) UserID() string {
	return c.Subject
}

// NewManager validates cfg, parses its keys and returns a [Manager].
func NewManager(cfg Config) (*Manager, error) {
	switch {
	case cfg.TTL <= 0:
		return nil, errors.New("invalid TTL configuration")
	case cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute:
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.KeyID = strings.TrimSpace(cfg.KeyID)

	keys, err := newKeyring(cfg)
	if err != nil {
		return nil, err
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{keys.method.Alg()}),
		jwt.WithTimeFunc(cfg.Now),
		jwt.WithExpirationRequired(),
	}
	if cfg.Leeway > 0 {
		opts = append(opts, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.RequireIAT {
		opts = append(opts, jwt.WithIssuedAt())
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	return &Manager{config: cfg, keys: keys, parser: jwt.NewParser(opts...)}, nil
}

// Issue signs a token for the (userID, deviceID) session and returns it with its expiry.
func (j *Manager) Issue(userID, deviceID, sessionID, plan string) (string, time.Time, error) {
	if strings.TrimSpace(userID) == "" || strings.TrimSpace(deviceID) == "" {
		return "", time.Time{}, ErrMissingSubject
	}
	if j.keys.sign == nil {
		return "", time.Time{}, ErrSigningDisabled
	}

	now := j.config.Now()
	expiresAt := now.Add(j.config.TTL)
	claims := SessionClaims{
		DeviceID:  deviceID,
		SessionID: sessionID,
		Plan:      plan,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    j.config.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	if j.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{j.config.Audience}
	}

	token := jwt.NewWithClaims(j.keys.method, claims)
	if j.keys.kid != "" {
		token.Header["kid"] = j.keys.kid
	}
	signed, err := token.SignedString(j.keys.sign)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies signature, algorithm, kid, issuer, audience and lifetime, then
// returns the session claims. Tokens without subject or device are rejected.
func (j *Manager) Parse(tokenStr string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := j.parser.ParseWithClaims(tokenStr, claims, j.keys.keyFunc)
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Subject == "" || claims.DeviceID == "" {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(j.config.Now().Add(j.config.MaxFutureIAT)) {
		return nil, ErrFutureIssuedAt
	}
	return claims, nil
}
