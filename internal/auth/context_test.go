package auth

import (
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestCaller(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name  string
		uid   string
		email string
		want  string
	}{
		{"email wins", "uid-1", "a@example.com", "a@example.com"},
		{"uid only", " uid-1 ", "", "uid-1"},
		{"no auth", "", "", "anonymous"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			if tt.uid != "" {
				c.Set(CtxFirebaseUID, tt.uid)
			}
			if tt.email != "" {
				c.Set(CtxEmail, tt.email)
			}
			assert.Equal(t, tt.want, Caller(c))
		})
	}
}
