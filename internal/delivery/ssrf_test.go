package delivery

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BogdanMod/lego-bot-sub001/internal/apperrors"
)

// guardWithLookup returns a guard whose DNS answers are fixed by the test.
func guardWithLookup(allowedHosts []string, allowHTTP bool, answers map[string][]string) *Guard {
	g := NewGuard(allowedHosts, allowHTTP)
	g.lookupIP = func(ctx context.Context, host string) ([]net.IP, error) {
		addrs, ok := answers[host]
		if !ok {
			return nil, errors.New("no such host")
		}
		ips := make([]net.IP, 0, len(addrs))
		for _, a := range addrs {
			ips = append(ips, net.ParseIP(a))
		}
		return ips, nil
	}
	return g
}

func TestGuardValidate_SchemeRules(t *testing.T) {
	g := guardWithLookup(nil, false, map[string][]string{"example.com": {"93.184.216.34"}})

	require.NoError(t, g.Validate(context.Background(), "https://example.com/hook"))

	err := g.Validate(context.Background(), "http://example.com/hook")
	assert.ErrorIs(t, err, apperrors.ErrSSRFRejected)

	err = g.Validate(context.Background(), "ftp://example.com/hook")
	assert.ErrorIs(t, err, apperrors.ErrSSRFRejected)
}

func TestGuardValidate_AllowHTTPForDev(t *testing.T) {
	g := guardWithLookup(nil, true, map[string][]string{"example.com": {"93.184.216.34"}})
	assert.NoError(t, g.Validate(context.Background(), "http://example.com/hook"))
}

func TestGuardValidate_RejectsNonPublicAddresses(t *testing.T) {
	testCases := []struct {
		name string
		url  string
	}{
		{"loopback literal", "https://127.0.0.1/hook"},
		{"loopback v6 literal", "https://[::1]/hook"},
		{"private 10.x literal", "https://10.0.0.5/hook"},
		{"private 192.168.x literal", "https://192.168.1.10/hook"},
		{"link-local literal", "https://169.254.169.254/latest/meta-data"},
		{"unspecified literal", "https://0.0.0.0/hook"},
	}

	g := NewGuard(nil, false)
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := g.Validate(context.Background(), tc.url)
			assert.ErrorIs(t, err, apperrors.ErrSSRFRejected)
		})
	}
}

func TestGuardValidate_RejectsHostsResolvingInternally(t *testing.T) {
	// DNS rebinding: a pretty hostname answering with loopback or RFC1918
	answers := map[string][]string{
		"rebind.example.com": {"127.0.0.1"},
		"intranet.corp":      {"10.1.2.3"},
		"half-bad.test":      {"93.184.216.34", "192.168.0.1"},
		"good.example.com":   {"93.184.216.34"},
	}
	g := guardWithLookup(nil, false, answers)

	assert.ErrorIs(t, g.Validate(context.Background(), "https://rebind.example.com/hook"), apperrors.ErrSSRFRejected)
	assert.ErrorIs(t, g.Validate(context.Background(), "https://intranet.corp/hook"), apperrors.ErrSSRFRejected)
	// One bad address in the answer set rejects the whole host
	assert.ErrorIs(t, g.Validate(context.Background(), "https://half-bad.test/hook"), apperrors.ErrSSRFRejected)
	assert.NoError(t, g.Validate(context.Background(), "https://good.example.com/hook"))
}

func TestGuardValidate_AllowList(t *testing.T) {
	answers := map[string][]string{
		"allowed.example.com": {"93.184.216.34"},
		"other.example.com":   {"93.184.216.34"},
		"internal.corp":       {"10.1.2.3"},
	}
	g := guardWithLookup([]string{"Allowed.Example.Com", "internal.corp"}, false, answers)

	assert.NoError(t, g.Validate(context.Background(), "https://allowed.example.com/hook"))
	assert.ErrorIs(t, g.Validate(context.Background(), "https://other.example.com/hook"), apperrors.ErrSSRFRejected)
	// Allow-listing does not waive the address check
	assert.ErrorIs(t, g.Validate(context.Background(), "https://internal.corp/hook"), apperrors.ErrSSRFRejected)
}

func TestGuardValidate_ResolutionFailure(t *testing.T) {
	g := guardWithLookup(nil, false, map[string][]string{})
	err := g.Validate(context.Background(), "https://nxdomain.example.com/hook")
	assert.ErrorIs(t, err, apperrors.ErrSSRFRejected)
}
