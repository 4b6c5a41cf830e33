package handler

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/tutor-schedule-api/internal/middleware"
	"github.com/noah-isme/tutor-schedule-api/internal/models"
	appErrors "github.com/noah-isme/tutor-schedule-api/pkg/errors"
	"github.com/noah-isme/tutor-schedule-api/pkg/response"
)

const dateLayout = "2006-01-02"

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// requireActor writes 401 and returns false when the request carries no identity.
func requireActor(c *gin.Context) (models.Actor, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.ProfileID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Actor{}, false
	}
	return claims.Actor(), true
}

// resolveOwner picks whose calendar a request addresses. Admins must name the tutor; everyone else
// addresses their own calendar and may not name another.
func resolveOwner(c *gin.Context, requested string) (string, bool) {
	actor, ok := requireActor(c)
	if !ok {
		return "", false
	}
	requested = strings.TrimSpace(requested)
	if actor.Role == models.RoleAdmin {
		if requested == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "ownerId is required"))
			return "", false
		}
		return requested, true
	}
	if requested != "" && requested != actor.ProfileID {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "cannot access another tutor's calendar"))
		return "", false
	}
	return actor.ProfileID, true
}

// parseRange reads the from/to query parameters. Each accepts RFC 3339 or a YYYY-MM-DD date,
// which is taken as midnight in loc.
func parseRange(c *gin.Context, loc *time.Location) (time.Time, time.Time, bool) {
	from, err := parseInstant(c.Query("from"), loc)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "from must be RFC 3339 or YYYY-MM-DD"))
		return time.Time{}, time.Time{}, false
	}
	to, err := parseInstant(c.Query("to"), loc)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "to must be RFC 3339 or YYYY-MM-DD"))
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

func parseInstant(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.ParseInLocation(dateLayout, raw, loc)
}
