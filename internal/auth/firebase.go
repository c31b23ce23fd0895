package auth

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/openfast-rag/openfast-rag-backend/config"
)

// InitializeFirebase returns the Auth client used to verify ID tokens when
// AUTH_MODE=firebase. FIREBASE_PROJECT_ID overrides the project read from
// the credentials file.
func InitializeFirebase(ctx context.Context, cfg *config.AuthConfig) (*auth.Client, error) {
	if cfg == nil || cfg.FirebaseCredentialsPath == "" {
		return nil, fmt.Errorf("FIREBASE_CREDENTIALS_PATH is required")
	}

	var appCfg *firebase.Config
	if cfg.FirebaseProjectID != "" {
		appCfg = &firebase.Config{ProjectID: cfg.FirebaseProjectID}
	}

	app, err := firebase.NewApp(ctx, appCfg, option.WithCredentialsFile(cfg.FirebaseCredentialsPath))
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}

	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return client, nil
}
