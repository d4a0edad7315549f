package middleware

import (
	"net"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

// NewIPExtractor decides which address identifies the client. With no trusted
// proxies it is the TCP peer and forwarding headers are ignored. Otherwise
// X-Forwarded-For is honoured only for hops inside trustedProxies, a
// comma-separated list of CIDR ranges or single addresses.
func NewIPExtractor(trustedProxies string) (echo.IPExtractor, error) {
	var options []echo.TrustOption
	for _, raw := range strings.Split(trustedProxies, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		ipNet, err := parseRange(raw)
		if err != nil {
			return nil, err
		}
		options = append(options, echo.TrustIPRange(ipNet))
	}
	if len(options) == 0 {
		return echo.ExtractIPDirect(), nil
	}

	// Only the listed ranges, not echo's default loopback and private nets.
	options = append(options,
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	)
	return echo.ExtractIPFromXFFHeader(options...), nil
}

func parseRange(raw string) (*net.IPNet, error) {
	if !strings.Contains(raw, "/") {
		ip := net.ParseIP(raw)
		if ip == nil {
			return nil, errors.Errorf("invalid trusted proxy %q", raw)
		}
		bits := 128
		if ip.To4() != nil {
			ip = ip.To4()
			bits = 32
		}
		return &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)}, nil
	}
	_, ipNet, err := net.ParseCIDR(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid trusted proxy range %q", raw)
	}
	return ipNet, nil
}
