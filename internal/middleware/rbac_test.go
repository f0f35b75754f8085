package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/oculoscan/oculoscan-api/internal/models"
)

func runRBAC(t *testing.T, actor *models.Actor, allowed ...models.UserRole) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/protected", nil)
	if actor != nil {
		c.Set(ContextActorKey, actor)
	}

	handler := RequireRoles(allowed...)
	handler(c)
	if !c.IsAborted() {
		c.Status(http.StatusOK)
	}
	return rec
}

func TestRequireRolesAllowsListedRole(t *testing.T) {
	rec := runRBAC(t, &models.Actor{ID: "doctor-1", Role: models.RoleDoctor}, models.RoleDoctor, models.RoleAdmin)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequireRolesBlocksOtherRoles(t *testing.T) {
	rec := runRBAC(t, &models.Actor{ID: "patient-1", Role: models.RolePatient}, models.RoleDoctor, models.RoleAdmin)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequireRolesRequiresActor(t *testing.T) {
	rec := runRBAC(t, nil, models.RoleDoctor)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
