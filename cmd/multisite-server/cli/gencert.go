package cli

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type certOptions struct {
	CertPath string
	KeyPath  string
	// Hosts are the names the certificate covers. A bare base domain also
	// gets its wildcard so every tenant subdomain is included.
	Hosts []string
	Days  int
}

var certOpts certOptions

func init() {
	gencertCmd.Flags().StringVar(&certOpts.CertPath, "cert", "certs/server.crt", "output path for certificate")
	gencertCmd.Flags().StringVarP(&certOpts.KeyPath, "key", "k", "certs/server.key", "output path for private key")
	gencertCmd.Flags().StringSliceVarP(&certOpts.Hosts, "host", "H", []string{"sitios.local"}, "base domain or extra hostnames (repeatable)")
	gencertCmd.Flags().IntVarP(&certOpts.Days, "days", "d", 365, "certificate validity in days")

	rootCmd.AddCommand(gencertCmd)
}

var gencertCmd = &cobra.Command{
	Use:   "gencert",
	Short: "Generate a self-signed certificate for local tenant sites",
	Long: `Generate a self-signed certificate and private key for development.
The base domain is covered together with its wildcard, so every tenant
subdomain is served over HTTPS. Point tls.cert_file and tls.key_file at
the output. Production deployments should use tls.auto_cert instead.`,
	Example: `  multisite-server gencert
  multisite-server gencert --host sitios.local --host www.acme.test --days 730`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return generateCertificate(cmd.OutOrStdout(), certOpts)
	},
}

// certNames expands the requested hosts into SAN entries.
func certNames(hosts []string) []string {
	seen := map[string]bool{}
	var names []string
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for _, h := range hosts {
		h = strings.ToLower(strings.TrimSpace(h))
		add(h)
		if h != "localhost" && !strings.HasPrefix(h, "*.") && strings.Count(h, ".") == 1 {
			add("*." + h)
		}
	}
	return names
}

func generateCertificate(w io.Writer, opts certOptions) error {
	names := certNames(opts.Hosts)
	if len(names) == 0 {
		return fmt.Errorf("at least one --host is required")
	}
	if opts.Days <= 0 {
		return fmt.Errorf("--days must be positive")
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := time.Now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"Multisite development"},
			CommonName:   names[0],
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(time.Duration(opts.Days) * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              names,
	}

	certBytes, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return fmt.Errorf("failed to create certificate: %w", err)
	}
	keyBytes, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return fmt.Errorf("failed to encode private key: %w", err)
	}

	if err := writePEM(opts.CertPath, "CERTIFICATE", certBytes, 0o644); err != nil {
		return err
	}
	if err := writePEM(opts.KeyPath, "EC PRIVATE KEY", keyBytes, 0o600); err != nil {
		return err
	}

	printTitle(w, "Certificate generated")
	printField(w, "Hosts", strings.Join(names, ", "))
	printField(w, "Valid for", strconv.Itoa(opts.Days)+" days")
	printField(w, "tls.cert_file", opts.CertPath)
	printField(w, "tls.key_file", opts.KeyPath)
	fmt.Fprintln(w, warnStyle.Render("Self-signed; browsers will warn until it is trusted locally."))
	return nil
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	if err := pem.Encode(f, &pem.Block{Type: blockType, Bytes: der}); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
