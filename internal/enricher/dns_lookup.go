/**
 * Reverse DNS Resolver.
 *
 * Resolves IP addresses to hostnames, serving as a fallback identity
 * signal when SNI or other application metadata is unavailable.
 * Caches both positive and negative results to avoid retry storms.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */
package enricher

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/kleaSCM/sentinel/internal/cache"
)

// DNSResolver performs reverse DNS lookups with bounded retry and a
// TTL cache. Owned by whatever component needs it (EnhancedIdentifier)
// rather than a process-wide singleton.
type DNSResolver struct {
	cache    *cache.TTLCache[string, string]
	timeout  time.Duration
	retries  uint
	resolver *net.Resolver
}

// NewDNSResolver builds a resolver with the given timeout per attempt,
// retry count, and a 1-hour TTL cache of up to 1000 entries.
func NewDNSResolver(timeout time.Duration, retries int) *DNSResolver {
	if retries < 0 {
		retries = 0
	}
	return &DNSResolver{
		cache:    cache.NewTTLCache[string, string](1000, time.Hour),
		timeout:  timeout,
		retries:  uint(retries),
		resolver: &net.Resolver{},
	}
}

// Resolve looks up the hostname for ip, consulting the cache first.
// Private IPs are never resolved. Negative results are cached as "" to
// avoid repeated lookups of the same unresolvable address.
func (r *DNSResolver) Resolve(ctx context.Context, ip string) string {
	if hostname, ok := r.cache.Get(ip); ok {
		return hostname
	}

	if isPrivateIP(ip) {
		return ""
	}

	hostname := r.lookup(ctx, ip)
	r.cache.Set(ip, hostname)
	return hostname
}

func (r *DNSResolver) lookup(ctx context.Context, ip string) string {
	var hostname string

	err := retry.Do(
		func() error {
			lctx, cancel := context.WithTimeout(ctx, r.timeout)
			defer cancel()

			names, err := r.resolver.LookupAddr(lctx, ip)
			if err != nil {
				return err
			}
			if len(names) == 0 {
				return nil
			}
			hostname = strings.TrimSuffix(names[0], ".")
			return nil
		},
		retry.Attempts(r.retries+1),
		retry.Delay(100*time.Millisecond),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return ""
	}
	return hostname
}

// isPrivateIP reports whether ip falls in an RFC1918/loopback/link-local range.
func isPrivateIP(ip string) bool {
	addr := net.ParseIP(ip)
	if addr == nil {
		return false
	}
	if addr.IsLoopback() || addr.IsLinkLocalUnicast() {
		return true
	}
	for _, cidr := range []string{"10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7"} {
		_, block, err := net.ParseCIDR(cidr)
		if err == nil && block.Contains(addr) {
			return true
		}
	}
	return false
}
