package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cervixai/screening-engine/pkg/models"
)

func unsignedToken(t *testing.T, subject, email, role string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		Email:            email,
		Role:             role,
	})
	signed, err := token.SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func devValidator(t *testing.T) TokenValidator {
	t.Helper()
	client, err := NewJWKSClient(&JWKSConfig{EnableVerification: false})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

func TestRequireActorAttachesIdentity(t *testing.T) {
	mw := NewMiddleware(devValidator(t), zap.NewNop())

	actorID := uuid.New()
	var got models.Actor
	handler := mw.RequireActor(func(w http.ResponseWriter, r *http.Request) {
		got, _ = models.GetActor(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/cases", nil)
	req.Header.Set("Authorization", "Bearer "+unsignedToken(t, actorID.String(), "dr@clinic.test", models.RolePathologist))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got.ID != actorID || got.Email != "dr@clinic.test" || got.Role != models.RolePathologist {
		t.Errorf("unexpected actor: %+v", got)
	}
}

func TestRequireActorRejectsMissingHeader(t *testing.T) {
	mw := NewMiddleware(devValidator(t), zap.NewNop())
	handler := mw.RequireActor(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run without a token")
	})

	req := httptest.NewRequest(http.MethodGet, "/cases", nil)
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestRequireActorRejectsClaimsWithoutRole(t *testing.T) {
	mw := NewMiddleware(devValidator(t), zap.NewNop())
	handler := mw.RequireActor(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run with incomplete claims")
	})

	req := httptest.NewRequest(http.MethodGet, "/cases", nil)
	req.Header.Set("Authorization", "Bearer "+unsignedToken(t, uuid.NewString(), "dr@clinic.test", ""))
	rec := httptest.NewRecorder()
	handler(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestClaimsToActor(t *testing.T) {
	id := uuid.New()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: id.String()},
		Email:            "dr@clinic.test",
		Role:             models.RolePhysician,
	}
	actor, err := claims.ToActor()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if actor.ID != id || actor.Role != models.RolePhysician {
		t.Errorf("unexpected actor: %+v", actor)
	}

	bad := []*Claims{
		{},
		{RegisteredClaims: jwt.RegisteredClaims{Subject: "not-a-uuid"}, Role: models.RolePhysician},
		{RegisteredClaims: jwt.RegisteredClaims{Subject: id.String()}},
	}
	for i, c := range bad {
		if _, err := c.ToActor(); err == nil {
			t.Errorf("claims %d should be rejected", i)
		}
	}
}
