package exporter

import (
	"strconv"
	"strings"

	"github.com/gabrielpetry/MangoHud/internal/logger"
)

const (
	defaultPort   = 16969
	allInterfaces = "0.0.0.0"
)

// wellKnownHosts skip the bind-host format warning.
var wellKnownHosts = map[string]bool{
	allInterfaces: true,
	"127.0.0.1":   true,
	"localhost":   true,
}

// parseListenAddress turns a "host:port" or bare-port string into a bind
// target. It never fails: an unparsable or out-of-range port falls back to
// the default with an error log, and a host that is neither well known nor
// dotted-numeric gets a warning. The host format is not otherwise
// validated; the bind call decides whether it is usable.
func parseListenAddress(addr string) (host string, port int) {
	host = allInterfaces
	portText := addr
	if h, p, found := strings.Cut(addr, ":"); found {
		host = h
		portText = p
	}

	port = defaultPort
	if n, err := strconv.Atoi(portText); err == nil && n >= 1 && n <= 65535 {
		port = n
	} else {
		logger.Error().
			Str("port", portText).
			Int("fallback", defaultPort).
			Msg("Invalid metrics port, must be 1-65535; using default")
	}

	if !wellKnownHosts[host] && strings.ContainsFunc(host, isNotDigitOrDot) {
		logger.Warn().
			Str("host", host).
			Msg("Metrics bind host does not look like an IP address")
	}

	return host, port
}

func isNotDigitOrDot(r rune) bool {
	return (r < '0' || r > '9') && r != '.'
}
