package registry

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// URL locates a registry: [scheme://][user[:pass]@]host[:port][/path].
type URL struct {
	Scheme   string
	Host     string
	Port     int
	Username string
	Password string
	Path     string
}

// ParseURL parses a registry location. The scheme defaults to http.
func ParseURL(raw string) (*URL, error) {
	raw = strings.TrimSpace(raw)
	hasScheme := strings.HasPrefix(raw, "http://") || strings.HasPrefix(raw, "https://")
	if !hasScheme && strings.Contains(raw, "://") {
		return nil, fmt.Errorf("unsupported scheme in registry url %q", raw)
	}
	if !hasScheme {
		raw = "//" + raw
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid registry url: %w", err)
	}
	if parsed.RawQuery != "" || parsed.ForceQuery {
		return nil, fmt.Errorf("query in registry url is not supported")
	}
	if parsed.Fragment != "" || strings.Contains(parsed.Path, ";") {
		return nil, fmt.Errorf("params/fragment in registry url are not supported")
	}

	u := &URL{
		Scheme: parsed.Scheme,
		Host:   parsed.Hostname(),
		Path:   parsed.Path,
	}
	if p := parsed.Port(); p != "" {
		port, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("invalid port %q in registry url", p)
		}
		u.Port = port
	}
	if parsed.User != nil {
		u.Username = parsed.User.Username()
		u.Password, _ = parsed.User.Password()
	}

	if err := u.Validate(); err != nil {
		return nil, err
	}
	return u, nil
}

// Validate normalizes defaults and checks the required parts.
func (u *URL) Validate() error {
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q in registry url", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing hostname in registry url")
	}
	if u.Password != "" && u.Username == "" {
		return fmt.Errorf("password is set without a username")
	}
	u.Path = strings.TrimRight(u.Path, "/")
	if u.Path != "" && !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}
	return nil
}

// HostPort returns host[:port].
func (u *URL) HostPort() string {
	if u.Port != 0 {
		return fmt.Sprintf("%s:%d", u.Host, u.Port)
	}
	return u.Host
}

// String returns the url with scheme and without credentials.
func (u *URL) String() string {
	return u.Scheme + "://" + u.DockerURL()
}

// DockerURL returns the url in the form the engine command line expects: no
// scheme, no credentials.
func (u *URL) DockerURL() string {
	return u.HostPort() + u.Path
}

// RepoTagURL returns the full name of repoTag inside this registry.
func (u *URL) RepoTagURL(repoTag string) string {
	return u.DockerURL() + "/" + repoTag
}

// Insecure reports whether the registry is reached over plain http.
func (u *URL) Insecure() bool {
	return u.Scheme == "http"
}
