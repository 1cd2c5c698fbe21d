package security

import (
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	applog "walletwise/internal/log"
)

// Observer is told about every flagged request.
type Observer interface {
	SuspiciousRequest()
}

var (
	probePatterns = []string{
		"../", "..\\", ".env", "wp-admin", "wp-login", "phpmyadmin",
		".php", ".git", ".ssh", "etc/passwd", "cmd.exe",
		"<script", "javascript:", "union select",
	}
	scannerAgents = []string{"sqlmap", "nmap", "nikto", "gobuster", "dirb", "masscan", "zgrab"}
)

// DefaultTrustedProxies are loopback and the private ranges.
var DefaultTrustedProxies = []string{"127.0.0.0/8", "::1/128", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16"}

// Detector resolves client IPs and flags probing requests.
type Detector struct {
	trusted  []*net.IPNet
	logger   *applog.Logger
	observer Observer
}

// NewDetector parses the trusted proxy CIDRs. An empty list falls back to
// DefaultTrustedProxies.
func NewDetector(trustedProxies []string, logger *applog.Logger, observer Observer) (*Detector, error) {
	if len(trustedProxies) == 0 {
		trustedProxies = DefaultTrustedProxies
	}
	if logger == nil {
		logger = applog.Default(applog.ComponentSecurity)
	}
	d := &Detector{
		logger:   logger.WithComponent(applog.ComponentSecurity),
		observer: observer,
	}
	for _, cidr := range trustedProxies {
		_, network, err := net.ParseCIDR(strings.TrimSpace(cidr))
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", cidr, err)
		}
		d.trusted = append(d.trusted, network)
	}
	return d, nil
}

// ClientIP returns the peer address, or the first forwarded address when
// the peer is a trusted proxy.
func (d *Detector) ClientIP(r *http.Request) string {
	direct, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		direct = r.RemoteAddr
	}
	ip := net.ParseIP(direct)
	if ip == nil || !d.isTrusted(ip) {
		return direct
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); net.ParseIP(first) != nil {
			return first
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); net.ParseIP(xri) != nil {
		return xri
	}
	return direct
}

func (d *Detector) isTrusted(ip net.IP) bool {
	for _, n := range d.trusted {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Suspicious reports whether r looks like a scanner or an injection probe.
func (d *Detector) Suspicious(r *http.Request) bool {
	switch r.Method {
	case http.MethodTrace, http.MethodConnect, "TRACK", "DEBUG":
		return true
	}
	if len(r.URL.RequestURI()) > 2048 {
		return true
	}
	query, err := url.QueryUnescape(r.URL.RawQuery)
	if err != nil {
		query = r.URL.RawQuery
	}
	target := strings.ToLower(r.URL.Path + "?" + query)
	for _, p := range probePatterns {
		if strings.Contains(target, p) {
			return true
		}
	}
	agent := strings.ToLower(r.UserAgent())
	for _, a := range scannerAgents {
		if strings.Contains(agent, a) {
			return true
		}
	}
	return false
}

// Middleware logs and counts flagged requests. Flagged requests are still
// served; routing answers unknown paths with 404 anyway.
func (d *Detector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.Suspicious(r) {
			d.logger.WarnContext(r.Context(), "Suspicious request",
				applog.FieldClientIP, d.ClientIP(r),
				applog.FieldMethod, r.Method,
				applog.FieldPath, r.URL.Path,
				applog.FieldUserAgent, r.UserAgent())
			if d.observer != nil {
				d.observer.SuspiciousRequest()
			}
		}
		next.ServeHTTP(w, r)
	})
}
