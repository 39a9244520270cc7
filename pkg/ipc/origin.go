package ipc

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

// allowedOrigin is one parsed allowed_origins entry.
type allowedOrigin struct {
	raw    string
	scheme string
	host   string
	port   string // empty means the scheme default, or any port on loopback
}

// originPolicy answers whether a browser Origin may call the API.
type originPolicy struct {
	wildcard bool
	entries  []allowedOrigin
}

func newOriginPolicy(origins []string) *originPolicy {
	p := &originPolicy{}
	for _, o := range origins {
		o = strings.TrimSpace(o)
		switch {
		case o == "":
			continue
		case o == "*":
			p.wildcard = true
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" {
			continue
		}
		host, port := splitOriginHost(u.Host)
		p.entries = append(p.entries, allowedOrigin{
			raw:    o,
			scheme: strings.ToLower(u.Scheme),
			host:   strings.ToLower(host),
			port:   port,
		})
	}
	return p
}

// allow reports whether origin is accepted, and whether only the wildcard
// accepted it.
func (p *originPolicy) allow(origin string) (ok bool, wildcard bool) {
	origin = strings.TrimSpace(origin)
	u, err := url.Parse(origin)
	if origin == "" || err != nil || u.Scheme == "" || u.Host == "" {
		return false, false
	}
	scheme := strings.ToLower(u.Scheme)
	host, port := splitOriginHost(u.Host)
	host = strings.ToLower(host)
	if port == "" {
		port = schemePort(scheme)
	}

	for _, e := range p.entries {
		if strings.EqualFold(e.raw, origin) {
			return true, false
		}
		if e.scheme != scheme || e.host != host {
			continue
		}
		switch {
		case e.port != "":
			if e.port == port {
				return true, false
			}
		case isLoopbackHost(e.host):
			// Dev servers pick arbitrary ports.
			return true, false
		case port == schemePort(scheme):
			return true, false
		}
	}
	return p.wildcard, p.wildcard
}

func splitOriginHost(hostport string) (host, port string) {
	if h, p, err := net.SplitHostPort(hostport); err == nil {
		return h, p
	}
	return strings.TrimSuffix(strings.TrimPrefix(hostport, "["), "]"), ""
}

func schemePort(scheme string) string {
	if scheme == "https" || scheme == "wss" {
		return "443"
	}
	return "80"
}

func isLoopbackHost(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// isWebSocketOriginAllowed accepts upgrades without an Origin header
// (native clients), same-host upgrades and configured origins.
func (s *Server) isWebSocketOriginAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if u, err := url.Parse(origin); err == nil && u.Host != "" && strings.EqualFold(u.Host, r.Host) {
		return true
	}
	ok, _ := s.origins.allow(origin)
	return ok
}
