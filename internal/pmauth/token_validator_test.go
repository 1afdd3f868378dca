package pmauth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pmsync/pmsync/internal/pmerr"
)

const testSecret = "test-hs256-secret"

func issueHS256(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func TestValidate_AcceptsWellFormedToken(t *testing.T) {
	v := NewValidator(ValidatorConfig{HS256Secret: testSecret})

	tok := issueHS256(t, jwt.MapClaims{
		"sub":       "user-1",
		"tenant_id": "tenant-a",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"iat":       time.Now().Unix(),
		"roles":     []interface{}{"member"},
	})

	claims, err := v.Validate(tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if claims.Sub != "user-1" || claims.TenantID != "tenant-a" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "member" {
		t.Fatalf("expected roles to be carried through, got %+v", claims.Roles)
	}
}

func TestValidate_ExpiredTokenReturnsTokenExpiredKind(t *testing.T) {
	v := NewValidator(ValidatorConfig{HS256Secret: testSecret})

	tok := issueHS256(t, jwt.MapClaims{
		"sub":       "user-1",
		"tenant_id": "tenant-a",
		"exp":       time.Now().Add(-time.Hour).Unix(),
		"iat":       time.Now().Add(-2 * time.Hour).Unix(),
	})

	_, err := v.Validate(tok)
	e, ok := pmerr.As(err)
	if !ok || e.Kind != pmerr.TokenExpired {
		t.Fatalf("expected TokenExpired kind, got %v", err)
	}
}

func TestValidate_ClockSkewToleratesSlightlyExpiredToken(t *testing.T) {
	v := NewValidator(ValidatorConfig{HS256Secret: testSecret, ClockSkew: 30 * time.Second})

	tok := issueHS256(t, jwt.MapClaims{
		"sub":       "user-1",
		"tenant_id": "tenant-a",
		"exp":       time.Now().Add(-10 * time.Second).Unix(),
		"iat":       time.Now().Add(-time.Hour).Unix(),
	})

	if _, err := v.Validate(tok); err != nil {
		t.Fatalf("expected token within clock skew to validate, got %v", err)
	}
}

func TestValidate_RejectsEmptyTenantID(t *testing.T) {
	v := NewValidator(ValidatorConfig{HS256Secret: testSecret})

	tok := issueHS256(t, jwt.MapClaims{
		"sub":       "user-1",
		"tenant_id": "",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"iat":       time.Now().Unix(),
	})

	_, err := v.Validate(tok)
	e, ok := pmerr.As(err)
	if !ok || e.Kind != pmerr.Validation {
		t.Fatalf("expected Validation kind for empty tenant_id, got %v", err)
	}
}

func TestValidate_RejectsTenantIDOver128Chars(t *testing.T) {
	v := NewValidator(ValidatorConfig{HS256Secret: testSecret})

	long := make([]byte, 129)
	for i := range long {
		long[i] = 'a'
	}
	tok := issueHS256(t, jwt.MapClaims{
		"sub":       "user-1",
		"tenant_id": string(long),
		"exp":       time.Now().Add(time.Hour).Unix(),
		"iat":       time.Now().Unix(),
	})

	_, err := v.Validate(tok)
	e, ok := pmerr.As(err)
	if !ok || e.Kind != pmerr.Validation {
		t.Fatalf("expected Validation kind for overlong tenant_id, got %v", err)
	}
}

func TestValidate_RejectsWrongSigningSecret(t *testing.T) {
	v := NewValidator(ValidatorConfig{HS256Secret: "different-secret"})

	tok := issueHS256(t, jwt.MapClaims{
		"sub":       "user-1",
		"tenant_id": "tenant-a",
		"exp":       time.Now().Add(time.Hour).Unix(),
		"iat":       time.Now().Unix(),
	})

	if _, err := v.Validate(tok); err == nil {
		t.Fatalf("expected signature verification failure")
	}
}
