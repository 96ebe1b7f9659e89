package probe

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/davidbond17/pingpro/pkg/types"
)

// Request describes one probe target.
type Request struct {
	Host        string
	Timeout     time.Duration
	NetworkType types.NetworkType
}

const defaultScheme = "https://"

var ipv4Pattern = regexp.MustCompile(`^([0-9]{1,3}\.){3}[0-9]{1,3}$`)

// BuildURL turns a raw host into a request target. Hosts that already carry
// an http or https scheme are used as-is.
func BuildURL(host string) string {
	clean := strings.TrimSpace(host)
	lower := strings.ToLower(clean)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return clean
	}
	return defaultScheme + clean
}

// IsValidHost reports whether s is a usable probe target: a parseable URL
// or hostname, or a dotted-quad IPv4 literal.
func IsValidHost(s string) bool {
	clean := strings.TrimSpace(s)
	if clean == "" {
		return false
	}
	if u, err := url.Parse(BuildURL(clean)); err == nil && u.Hostname() != "" {
		return true
	}
	return ipv4Pattern.MatchString(clean)
}
