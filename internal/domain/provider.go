package domain

import (
	"fmt"
	"strings"
)

// Provider identifies one of the supported identity providers.
type Provider string

const (
	ProviderGitHub Provider = "github"
	ProviderGitee  Provider = "gitee"
)

// Providers lists every supported provider in display order.
func Providers() []Provider {
	return []Provider{ProviderGitHub, ProviderGitee}
}

func ParseProvider(raw string) (Provider, error) {
	switch Provider(strings.ToLower(strings.TrimSpace(raw))) {
	case ProviderGitHub:
		return ProviderGitHub, nil
	case ProviderGitee:
		return ProviderGitee, nil
	default:
		return "", fmt.Errorf("unsupported provider %q", raw)
	}
}

func (p Provider) Valid() bool {
	return p == ProviderGitHub || p == ProviderGitee
}

func (p Provider) DisplayName() string {
	switch p {
	case ProviderGitHub:
		return "GitHub"
	case ProviderGitee:
		return "Gitee"
	default:
		return string(p)
	}
}

func (p Provider) String() string { return string(p) }
