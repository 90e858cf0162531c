package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func newEdKeys(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate ed25519 key: %v", err)
	}
	return pub, priv
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Hour, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub, Issuer: "authcore"})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, exp, err := m.Issue("u1", "tv-salon", "sid-1", "famille")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if time.Until(exp) <= 0 {
		t.Fatalf("expiry must be in the future, got %v", exp)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.UserID() != "u1" || claims.DeviceID != "tv-salon" || claims.SessionID != "sid-1" || claims.Plan != "famille" {
		t.Fatalf("unexpected claims %+v", claims)
	}
	if claims.ID == "" {
		t.Fatal("expected jti to be set")
	}
}

func TestIssueRequiresSubjectAndKey(t *testing.T) {
	pub, _ := newEdKeys(t)
	verifyOnly, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, _, err := verifyOnly.Issue("u1", "d1", "s1", ""); !errors.Is(err, ErrSigningDisabled) {
		t.Fatalf("expected ErrSigningDisabled, got %v", err)
	}

	hs, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("0123456789abcdef0123456789abcdef")})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	if _, _, err := hs.Issue("u1", "", "s1", ""); !errors.Is(err, ErrMissingSubject) {
		t.Fatalf("expected ErrMissingSubject, got %v", err)
	}
}

func TestShortHMACSecretRejected(t *testing.T) {
	if _, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodHS256, PrivateKey: []byte("short")}); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	pub, _ := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := SessionClaims{DeviceID: "d1", SessionID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims)
	token, err := tok.SignedString([]byte("secret-secret-secret-secret"))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}

	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected wrong algorithm to be rejected")
	}
}

func TestParseIssuerAudienceAndLeeway(t *testing.T) {
	_, priv := newEdKeys(t)
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     priv.Public().(ed25519.PublicKey),
		Issuer:        "authcore",
		Audience:      "player",
		Leeway:        30 * time.Second,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	token, _, err := m.Issue("u", "d", "s1", "individuel")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(token); err != nil {
		t.Fatalf("expected valid token to parse: %v", err)
	}

	sign := func(c SessionClaims) string {
		s, err := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, c).SignedString(priv)
		if err != nil {
			t.Fatalf("sign: %v", err)
		}
		return s
	}
	base := func(iss string, aud string, exp, iat time.Time) SessionClaims {
		return SessionClaims{DeviceID: "d", SessionID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "u",
			Issuer:    iss,
			Audience:  gjwt.ClaimStrings{aud},
			ExpiresAt: gjwt.NewNumericDate(exp),
			IssuedAt:  gjwt.NewNumericDate(iat),
		}}
	}

	if _, err := m.Parse(sign(base("other", "player", time.Now().Add(time.Minute), time.Now()))); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}
	if _, err := m.Parse(sign(base("authcore", "admin", time.Now().Add(time.Minute), time.Now()))); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
	if _, err := m.Parse(sign(base("authcore", "player", time.Now().Add(-15*time.Second), time.Now().Add(-time.Minute)))); err != nil {
		t.Fatalf("expected token within leeway to pass: %v", err)
	}
	if _, err := m.Parse(sign(base("authcore", "player", time.Now().Add(-2*time.Minute), time.Now().Add(-3*time.Minute)))); err == nil {
		t.Fatal("expected expired token to fail")
	}
}

func TestParseRequiresDeviceClaim(t *testing.T) {
	pub, priv := newEdKeys(t)
	m, err := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PrivateKey: priv, PublicKey: pub})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	claims := SessionClaims{SessionID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	token, _ := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims).SignedString(priv)
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected token without device claim to fail")
	}
}

func TestParseUnknownKidFails(t *testing.T) {
	pub1, priv1 := newEdKeys(t)
	pub2, _ := newEdKeys(t)
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv1,
		PublicKey:     pub1,
		KeyID:         "k1",
		VerifyKeys:    map[string][]byte{"k1": pub1},
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := SessionClaims{DeviceID: "d1", SessionID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
	}}
	tok := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok.Header["kid"] = "k2"
	token, err := tok.SignedString(priv1)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected unknown kid failure")
	}

	tok2 := gjwt.NewWithClaims(gjwt.SigningMethodEdDSA, claims)
	tok2.Header["kid"] = "k1"
	good, _ := tok2.SignedString(priv1)
	if _, err := m.Parse(good); err != nil {
		t.Fatalf("expected known kid token to pass: %v", err)
	}

	m2, _ := NewManager(Config{TTL: time.Minute, SigningMethod: MethodEd25519, PublicKey: pub2, VerifyKeys: map[string][]byte{"k2": pub2}})
	if _, err := m2.Parse(good); err == nil {
		t.Fatal("expected parse failure with mismatched key set")
	}
}

func TestParseHonoursInjectedClock(t *testing.T) {
	pub, priv := newEdKeys(t)
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	m, err := NewManager(Config{
		TTL:           time.Minute,
		SigningMethod: MethodEd25519,
		PrivateKey:    priv,
		PublicKey:     pub,
		Now:           func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	token, _, err := m.Issue("u1", "d1", "s1", "")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Parse(token); err != nil {
		t.Fatalf("parse at issuance: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected token to expire under the injected clock")
	}
}

func TestParseRejectsFutureIssuedAt(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	m, err := NewManager(Config{
		TTL:           time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    secret,
		MaxFutureIAT:  time.Minute,
		Now:           func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	claims := SessionClaims{DeviceID: "d1", SessionID: "s1", RegisteredClaims: gjwt.RegisteredClaims{
		Subject:   "u1",
		IssuedAt:  gjwt.NewNumericDate(now.Add(5 * time.Minute)),
		ExpiresAt: gjwt.NewNumericDate(now.Add(time.Hour)),
	}}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := m.Parse(token); err == nil {
		t.Fatal("expected future iat rejected")
	}
}

func TestHS256KeyRotation(t *testing.T) {
	oldSecret := []byte("old-secret-0123456789abcdef012345")
	newSecret := []byte("new-secret-0123456789abcdef012345")

	previous, err := NewManager(Config{TTL: time.Hour, SigningMethod: MethodHS256, PrivateKey: oldSecret, KeyID: "2026-01"})
	if err != nil {
		t.Fatalf("previous manager: %v", err)
	}
	current, err := NewManager(Config{
		TTL:           time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    newSecret,
		KeyID:         "2026-06",
		VerifyKeys:    map[string][]byte{"2026-01": oldSecret, "2026-06": newSecret},
	})
	if err != nil {
		t.Fatalf("current manager: %v", err)
	}

	oldToken, _, err := previous.Issue("u1", "tv", "s1", "famille")
	if err != nil {
		t.Fatalf("issue old: %v", err)
	}
	if _, err := current.Parse(oldToken); err != nil {
		t.Fatalf("expected token under rotated-out kid to verify: %v", err)
	}
	newToken, _, err := current.Issue("u1", "tv", "s2", "famille")
	if err != nil {
		t.Fatalf("issue new: %v", err)
	}
	if _, err := previous.Parse(newToken); err == nil {
		t.Fatal("expected previous manager to reject the new kid")
	}

	if _, err := NewManager(Config{
		TTL:           time.Hour,
		SigningMethod: MethodHS256,
		PrivateKey:    newSecret,
		KeyID:         "missing",
		VerifyKeys:    map[string][]byte{"2026-06": newSecret},
	}); err == nil {
		t.Fatal("expected KeyID outside VerifyKeys rejected")
	}
}
