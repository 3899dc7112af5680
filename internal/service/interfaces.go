package service

import (
	"context"

	"golang.org/x/oauth2"

	"github.com/sandeepkv93/checkin-gateway/internal/domain"
	"github.com/sandeepkv93/checkin-gateway/internal/geocode"
)

// OAuthProvider is implemented once per domain.Provider variant.
type OAuthProvider interface {
	Provider() domain.Provider
	AuthCodeURL(state, redirectURI string) string
	Exchange(ctx context.Context, code, redirectURI string) (*oauth2.Token, error)
	FetchUserInfo(ctx context.Context, token *oauth2.Token) (*OAuthUserInfo, error)
}

type OAuthUserInfo struct {
	ProviderUserID string
	Login          string
	Name           string
	AvatarURL      string
	Email          string
}

type Geocoder interface {
	Reverse(ctx context.Context, lng, lat float64) (*geocode.Result, error)
}

type SessionCreator interface {
	Create(ctx context.Context, user domain.User) (*domain.Session, error)
}
