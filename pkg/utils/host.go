package utils

import (
	"net"
	"regexp"
	"strings"
)

const maxHostnameLength = 253

var hostLabelRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

// NormalizeHost turns a Host header value into the form domains are stored
// in: port stripped, lowercased, trailing dot removed.
//
//	NormalizeHost("Acme.Example.COM:8080") == "acme.example.com"
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	return strings.TrimSuffix(strings.ToLower(host), ".")
}

// IsValidHostname reports whether host is a normalized multi-label DNS name.
func IsValidHostname(host string) bool {
	if host == "" || len(host) > maxHostnameLength {
		return false
	}
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if !hostLabelRegex.MatchString(label) {
			return false
		}
	}
	return true
}

// IsSubdomainOf reports whether host is exactly one label below base.
func IsSubdomainOf(host, base string) bool {
	suffix := "." + base
	if !strings.HasSuffix(host, suffix) {
		return false
	}
	label := strings.TrimSuffix(host, suffix)
	return label != "" && !strings.Contains(label, ".")
}
