package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"firebase.google.com/go/v4/auth"
)

// ErrInvalidToken is returned when an ID token fails verification.
var ErrInvalidToken = errors.New("invalid token")

// TokenVerifier is the part of *auth.Client used here.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
}

// FirebaseVerifier maps Firebase ID tokens to identities.
type FirebaseVerifier struct {
	client TokenVerifier
}

// NewFirebaseVerifier wraps a Firebase auth client.
func NewFirebaseVerifier(client TokenVerifier) *FirebaseVerifier {
	return &FirebaseVerifier{client: client}
}

// Verify checks idToken and returns the identity it carries.
func (v *FirebaseVerifier) Verify(ctx context.Context, idToken string) (Identity, error) {
	idToken = strings.TrimSpace(idToken)
	if idToken == "" {
		return Guest, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return Guest, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return FromToken(token), nil
}

// FromToken builds an Identity from a verified token.
func FromToken(token *auth.Token) Identity {
	if token == nil {
		return Guest
	}
	return Identity{
		UserID:      token.UID,
		IsAnonymous: token.Firebase.SignInProvider == "anonymous",
	}
}
