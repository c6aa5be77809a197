// README: Firebase Admin SDK initialisation: token verifier and FCM messaging client.
package infra

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// FirebaseToken holds the verified token data used by downstream middleware.
type FirebaseToken struct {
	UID    string
	Claims map[string]interface{}
}

// TokenVerifier verifies a raw Firebase ID token string and returns token data.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error)
}

type FirebaseApp struct {
	app *firebase.App
}

// NewFirebaseApp creates the Firebase app shared by the verifier and the
// messaging client. If credentialsFile is non-empty it is used as the
// service-account JSON path; otherwise application-default credentials apply.
func NewFirebaseApp(ctx context.Context, projectID, credentialsFile string) (*FirebaseApp, error) {
	opts := []option.ClientOption{}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase.NewApp: %w", err)
	}
	return &FirebaseApp{app: app}, nil
}

func (f *FirebaseApp) Verifier(ctx context.Context) (TokenVerifier, error) {
	client, err := f.app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Auth: %w", err)
	}
	return &firebaseVerifier{client: client}, nil
}

func (f *FirebaseApp) Messaging(ctx context.Context) (*messaging.Client, error) {
	client, err := f.app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase app.Messaging: %w", err)
	}
	return client, nil
}

type firebaseVerifier struct {
	client *auth.Client
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*FirebaseToken, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	return &FirebaseToken{UID: token.UID, Claims: token.Claims}, nil
}
