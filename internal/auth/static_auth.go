package auth

import (
	"context"
	"crypto/subtle"
)

// StaticAuthenticator checks a single shared access code. An empty code
// disables the check.
type StaticAuthenticator struct {
	code string
}

func NewStaticAuthenticator(code string) *StaticAuthenticator {
	return &StaticAuthenticator{code: code}
}

func (a *StaticAuthenticator) Authenticate(_ context.Context, token string) (*Principal, error) {
	if a.code == "" {
		return &Principal{Subject: "anonymous", Label: "open"}, nil
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(a.code)) != 1 {
		return nil, ErrUnauthenticated
	}
	return &Principal{Subject: "access-code", Label: "static"}, nil
}
