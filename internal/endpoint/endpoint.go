// Package endpoint turns user supplied camera addresses into stream targets.
package endpoint

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
)

const (
	// Scheme is the stream protocol prefix prepended to bare addresses.
	Scheme = "rtsp://"

	// DefaultPort is used when the address carries no explicit port.
	DefaultPort = 8554
)

// ErrInvalidAddress is returned when an address cannot be resolved to a target.
var ErrInvalidAddress = errors.New("invalid address")

// Target is a normalized stream location.
type Target struct {
	URI  string `json:"uri"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Address returns the host:port pair suitable for net.Dial.
func (t Target) Address() string {
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Normalize trims the raw address, prepends the rtsp:// prefix when missing
// and extracts host and port. It performs no I/O.
func Normalize(raw string) (Target, error) {
	addr := strings.TrimSpace(raw)
	if addr == "" {
		return Target{}, ErrInvalidAddress
	}

	if !hasScheme(addr) {
		addr = Scheme + addr
	}

	u, err := url.Parse(addr)
	if err != nil {
		return Target{}, ErrInvalidAddress
	}

	host := u.Hostname()
	if host == "" {
		return Target{}, ErrInvalidAddress
	}

	port := DefaultPort
	if p := u.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil || port <= 0 || port > 65535 {
			return Target{}, ErrInvalidAddress
		}
	}

	return Target{URI: addr, Host: host, Port: port}, nil
}

// WithCredentials returns uri with username and password set as userinfo.
// URIs that already carry userinfo are returned untouched.
func WithCredentials(uri, username, password string) string {
	if username == "" {
		return uri
	}

	u, err := url.Parse(uri)
	if err != nil || u.User != nil {
		return uri
	}

	u.User = url.UserPassword(username, password)
	return u.String()
}

// Redact strips userinfo from uri for logging.
func Redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	u.User = nil
	return u.String()
}

func hasScheme(addr string) bool {
	return len(addr) >= len(Scheme) && strings.EqualFold(addr[:len(Scheme)], Scheme)
}
