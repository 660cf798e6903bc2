package delivery

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/BogdanMod/lego-bot-sub001/internal/apperrors"
)

// DestinationGuard decides whether an outbound destination may be contacted.
type DestinationGuard interface {
	Validate(ctx context.Context, rawURL string) error
}

// Guard validates outbound webhook destinations before every connection.
// Results are deliberately never cached: DNS answers change, and a host that
// resolved publicly a minute ago can resolve to loopback now.
type Guard struct {
	allowedHosts map[string]struct{}
	allowHTTP    bool
	lookupIP     func(ctx context.Context, host string) ([]net.IP, error)
}

// Ensure Guard implements DestinationGuard
var _ DestinationGuard = (*Guard)(nil)

// NewGuard builds a destination guard. An empty allow-list permits any public
// host; allowHTTP relaxes the https-only rule for development setups.
func NewGuard(allowedHosts []string, allowHTTP bool) *Guard {
	allowed := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			allowed[h] = struct{}{}
		}
	}
	return &Guard{
		allowedHosts: allowed,
		allowHTTP:    allowHTTP,
		lookupIP:     defaultLookupIP,
	}
}

func defaultLookupIP(ctx context.Context, host string) ([]net.IP, error) {
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, err
	}
	ips := make([]net.IP, 0, len(addrs))
	for _, a := range addrs {
		ips = append(ips, a.IP)
	}
	return ips, nil
}

// Validate checks one destination URL. It parses the URL, enforces the scheme
// and allow-list rules, resolves the host and rejects any address that is not
// publicly routable.
func (g *Guard) Validate(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: unparseable url: %w", apperrors.ErrSSRFRejected, err)
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case "https":
	case "http":
		if !g.allowHTTP {
			return fmt.Errorf("%w: scheme %q not allowed", apperrors.ErrSSRFRejected, scheme)
		}
	default:
		return fmt.Errorf("%w: scheme %q not allowed", apperrors.ErrSSRFRejected, scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", apperrors.ErrSSRFRejected)
	}

	if len(g.allowedHosts) > 0 {
		if _, ok := g.allowedHosts[host]; !ok {
			return fmt.Errorf("%w: host %q not in allow-list", apperrors.ErrSSRFRejected, host)
		}
	}

	// A literal IP skips DNS but still goes through the routability check
	var ips []net.IP
	if ip := net.ParseIP(host); ip != nil {
		ips = []net.IP{ip}
	} else {
		ips, err = g.lookupIP(ctx, host)
		if err != nil {
			return fmt.Errorf("%w: failed to resolve host %q: %w", apperrors.ErrSSRFRejected, host, err)
		}
		if len(ips) == 0 {
			return fmt.Errorf("%w: host %q resolved to no addresses", apperrors.ErrSSRFRejected, host)
		}
	}

	// Every resolved address must be public; one bad A record poisons the set
	for _, ip := range ips {
		if reason := disallowedIP(ip); reason != "" {
			return fmt.Errorf("%w: host %q resolves to %s address %s", apperrors.ErrSSRFRejected, host, reason, ip)
		}
	}

	return nil
}

// disallowedIP names why an address is unfit as a webhook destination, or
// returns "" for publicly routable addresses.
func disallowedIP(ip net.IP) string {
	switch {
	case ip.IsLoopback():
		return "loopback"
	case ip.IsPrivate():
		return "private"
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return "link-local"
	case ip.IsUnspecified():
		return "unspecified"
	case ip.IsMulticast():
		return "multicast"
	}
	return ""
}
