package registry

import (
	"os"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
)

// Credentials holds explicit registry credentials.
type Credentials struct {
	Username string
	Password string
	Token    string
}

// CreateAuthenticatorFromCredentials creates an authenticator from explicit credentials
func CreateAuthenticatorFromCredentials(creds *Credentials) authn.Authenticator {
	if creds == nil {
		return authn.Anonymous
	}

	if creds.Username != "" {
		return &authn.Basic{
			Username: creds.Username,
			Password: creds.Password,
		}
	}

	if creds.Token != "" {
		return &authn.Bearer{Token: creds.Token}
	}

	return authn.Anonymous
}

// credentialsFromEnvironment reads <HOST>_USERNAME, <HOST>_PASSWORD and
// <HOST>_TOKEN, where HOST is the registry host with dots, dashes and colons
// replaced by underscores.
func credentialsFromEnvironment(hostPort string) *Credentials {
	envPrefix := strings.ToUpper(hostPort)
	envPrefix = strings.NewReplacer(".", "_", "-", "_", ":", "_").Replace(envPrefix)

	creds := &Credentials{
		Username: os.Getenv(envPrefix + "_USERNAME"),
		Password: os.Getenv(envPrefix + "_PASSWORD"),
		Token:    os.Getenv(envPrefix + "_TOKEN"),
	}
	if creds.Username == "" && creds.Token == "" {
		return nil
	}
	return creds
}

// authenticator picks credentials for the HTTP API: the url's own user
// first, then the environment, then the docker config keychain.
func authenticator(u *URL, reg name.Registry) authn.Authenticator {
	if u.Username != "" {
		return CreateAuthenticatorFromCredentials(&Credentials{Username: u.Username, Password: u.Password})
	}
	if creds := credentialsFromEnvironment(u.HostPort()); creds != nil {
		return CreateAuthenticatorFromCredentials(creds)
	}
	if auth, err := authn.DefaultKeychain.Resolve(reg); err == nil {
		return auth
	}
	return authn.Anonymous
}
