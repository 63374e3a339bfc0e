package mailer

import (
	"bytes"
	"crypto"
	"crypto/ed25519"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/emersion/go-msgauth/dkim"
)

// Keyring holds DKIM signing keys for the domains the sender accounts live
// in, all under one selector. A message is signed with the key of its
// sender's email domain; senders whose domain carries no key go out
// unsigned rather than failing the send.
type Keyring struct {
	selector string
	keys     map[string]crypto.Signer // sender email domain -> key
}

// NewKeyring creates an empty keyring for the given selector
func NewKeyring(selector string) *Keyring {
	return &Keyring{
		selector: selector,
		keys:     make(map[string]crypto.Signer),
	}
}

// AddDomain loads the PEM key file and registers it for the domain
func (k *Keyring) AddDomain(domain, keyFile string) error {
	domain = strings.ToLower(strings.TrimSpace(domain))
	if domain == "" {
		return fmt.Errorf("dkim: domain is empty")
	}

	key, err := loadSigningKey(keyFile)
	if err != nil {
		return fmt.Errorf("dkim: failed to load key for %s: %w", domain, err)
	}

	k.keys[domain] = key
	return nil
}

// Domains returns the registered domains, sorted
func (k *Keyring) Domains() []string {
	domains := make([]string, 0, len(k.keys))
	for d := range k.keys {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	return domains
}

// CanSign reports whether the sender's email domain has a key
func (k *Keyring) CanSign(senderEmail string) bool {
	_, ok := k.keys[senderDomain(senderEmail)]
	return ok
}

// Sign signs the message with the key of the sender's email domain. When
// the domain has no key the message is returned unchanged.
func (k *Keyring) Sign(senderEmail string, message []byte) ([]byte, error) {
	domain := senderDomain(senderEmail)
	key, ok := k.keys[domain]
	if !ok {
		return message, nil
	}

	options := &dkim.SignOptions{
		Domain:   domain,
		Selector: k.selector,
		Signer:   key,
		Hash:     crypto.SHA256,
		// Sign a fixed set of the headers the mailer emits; anything a
		// relay appends later must not break the signature.
		HeaderKeys: []string{"From", "To", "Subject", "Date", "Message-ID"},
	}

	var signed bytes.Buffer
	if err := dkim.Sign(&signed, bytes.NewReader(message), options); err != nil {
		return nil, fmt.Errorf("dkim: failed to sign for %s: %w", domain, err)
	}
	return signed.Bytes(), nil
}

// senderDomain extracts the lowercased domain of a sender address
func senderDomain(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return ""
	}
	return strings.ToLower(email[at+1:])
}

// loadSigningKey reads an RSA or ed25519 private key from a PEM file,
// accepting PKCS#1 and PKCS#8 encodings
func loadSigningKey(path string) (crypto.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}

	switch block.Type {
	case "RSA PRIVATE KEY":
		return x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		switch key := parsed.(type) {
		case *rsa.PrivateKey:
			return key, nil
		case ed25519.PrivateKey:
			return key, nil
		default:
			return nil, fmt.Errorf("unsupported key type %T in %s", parsed, path)
		}
	default:
		return nil, fmt.Errorf("unsupported PEM block %q in %s", block.Type, path)
	}
}
