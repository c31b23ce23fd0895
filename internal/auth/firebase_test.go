package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/openfast-rag/openfast-rag-backend/config"
)

func TestInitializeFirebaseRequiresCredentials(t *testing.T) {
	_, err := InitializeFirebase(context.Background(), &config.AuthConfig{Mode: "firebase"})
	assert.ErrorContains(t, err, "FIREBASE_CREDENTIALS_PATH")

	_, err = InitializeFirebase(context.Background(), nil)
	assert.Error(t, err)
}
