package handler

import (
	"bytes"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-schedule-api/internal/middleware"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
)

func newTestContext(method, target string, body []byte, claims *models.JWTClaims) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, target, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.Request = req
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func tutorClaims(profileID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-" + profileID, ProfileID: profileID, Role: models.RoleTutor}
}

func adminClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "admin", ProfileID: "admin-profile", Role: models.RoleAdmin}
}
