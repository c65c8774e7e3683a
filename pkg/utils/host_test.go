package utils

import (
	"strings"
	"testing"
)

// TestNormalizeHost tests Host header normalization.
func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"acme.example.com", "acme.example.com"},
		{"acme.example.com:8080", "acme.example.com"},
		{"ACME.Example.Com", "acme.example.com"},
		{"acme.example.com.", "acme.example.com"},
		{" acme.example.com:443 ", "acme.example.com"},
		{"localhost:8000", "localhost"},
		{"[::1]:8080", "::1"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := NormalizeHost(tt.input); got != tt.expected {
				t.Errorf("NormalizeHost(%q) = %q; want %q", tt.input, got, tt.expected)
			}
		})
	}
}

// TestIsValidHostname tests hostname validation.
func TestIsValidHostname(t *testing.T) {
	tests := []struct {
		input    string
		expected bool
	}{
		{"acme.example.com", true},
		{"www.constructora-sur.cl", true},
		{"xn--nez-hqa.cl", true},
		{"localhost", false},
		{"", false},
		{"-acme.example.com", false},
		{"acme..example.com", false},
		{"Acme.example.com", false},
		{"acme.example.com:80", false},
		{strings.Repeat("a", 64) + ".com", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsValidHostname(tt.input); got != tt.expected {
				t.Errorf("IsValidHostname(%q) = %v; want %v", tt.input, got, tt.expected)
			}
		})
	}
}

// TestIsSubdomainOf tests base domain membership.
func TestIsSubdomainOf(t *testing.T) {
	base := "sitios.cl"
	tests := []struct {
		host     string
		expected bool
	}{
		{"acme.sitios.cl", true},
		{"sitios.cl", false},
		{"a.b.sitios.cl", false},
		{"acmesitios.cl", false},
		{"acme.other.cl", false},
	}

	for _, tt := range tests {
		if got := IsSubdomainOf(tt.host, base); got != tt.expected {
			t.Errorf("IsSubdomainOf(%q, %q) = %v; want %v", tt.host, base, got, tt.expected)
		}
	}
}
