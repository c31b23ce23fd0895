package auth

import (
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	CtxFirebaseUID = "firebase_uid"
	CtxEmail       = "email"
)

// UserFirebaseUID extracts the Firebase UID set by FirebaseAuthMiddleware.
func UserFirebaseUID(c *gin.Context) string {
	return strings.TrimSpace(c.GetString(CtxFirebaseUID))
}

// Caller names the authenticated principal for logs: the email, then the
// Firebase UID, then "anonymous" when no user auth ran.
func Caller(c *gin.Context) string {
	if email := strings.TrimSpace(c.GetString(CtxEmail)); email != "" {
		return email
	}
	if uid := UserFirebaseUID(c); uid != "" {
		return uid
	}
	return "anonymous"
}
