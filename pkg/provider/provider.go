// Package provider holds the connection parameters for well known mail providers, and builds
// descriptors for user defined ones.
package provider

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mailmount/mailmount/pkg/policy"
)

// Type discriminates predefined descriptors from user supplied ones.
type Type string

const (
	// Predefined descriptors come from the built in table.
	Predefined Type = "predefined"
	// Custom descriptors are built from user supplied endpoints.
	Custom Type = "custom"
)

// Endpoint is a host and port for one protocol. Secure means TLS is negotiated at connect time;
// when false the session upgrades in-band with STARTTLS.
type Endpoint struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Secure bool   `json:"secure"`
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return fmt.Sprintf("%s:%d", e.Host, e.Port)
}

// Validate checks that the endpoint can be dialed.
func (e Endpoint) Validate() error {
	if strings.TrimSpace(e.Host) == "" {
		return errors.New("host is required")
	}
	if e.Port <= 0 || e.Port > 65535 {
		return fmt.Errorf("port %d out of range", e.Port)
	}
	return nil
}

// Descriptor describes how to reach the retrieval (IMAP) and submission (SMTP) servers of a provider.
type Descriptor struct {
	Name       string   `json:"name"`
	Type       Type     `json:"type"`
	Retrieval  Endpoint `json:"imap"`
	Submission Endpoint `json:"smtp"`
}

// Validate checks both endpoints, returning the first problem found.
func (d Descriptor) Validate() error {
	if err := d.Retrieval.Validate(); err != nil {
		return fmt.Errorf("imap: %w", err)
	}
	if err := d.Submission.Validate(); err != nil {
		return fmt.Errorf("smtp: %w", err)
	}
	switch d.Type {
	case Predefined, Custom:
	default:
		return fmt.Errorf("unknown provider type %q", d.Type)
	}
	return nil
}

var predefined = map[string]Descriptor{
	"gmail": {
		Name:       "Gmail",
		Type:       Predefined,
		Retrieval:  Endpoint{Host: "imap.gmail.com", Port: 993, Secure: true},
		Submission: Endpoint{Host: "smtp.gmail.com", Port: 587},
	},
	"yahoo": {
		Name:       "Yahoo Mail",
		Type:       Predefined,
		Retrieval:  Endpoint{Host: "imap.mail.yahoo.com", Port: 993, Secure: true},
		Submission: Endpoint{Host: "smtp.mail.yahoo.com", Port: 587},
	},
	"outlook": {
		Name:       "Outlook",
		Type:       Predefined,
		Retrieval:  Endpoint{Host: "outlook.office365.com", Port: 993, Secure: true},
		Submission: Endpoint{Host: "smtp-mail.outlook.com", Port: 587},
	},
	"hotmail": {
		Name:       "Hotmail",
		Type:       Predefined,
		Retrieval:  Endpoint{Host: "outlook.office365.com", Port: 993, Secure: true},
		Submission: Endpoint{Host: "smtp-mail.outlook.com", Port: 587},
	},
	"zoho": {
		Name:       "Zoho Mail",
		Type:       Predefined,
		Retrieval:  Endpoint{Host: "imap.zoho.com", Port: 993, Secure: true},
		Submission: Endpoint{Host: "smtp.zoho.com", Port: 587},
	},
	// Proton Mail is reached through the local bridge.
	"protonmail": {
		Name:       "ProtonMail (Bridge)",
		Type:       Predefined,
		Retrieval:  Endpoint{Host: "127.0.0.1", Port: 1143},
		Submission: Endpoint{Host: "127.0.0.1", Port: 1025},
	},
}

var domains = map[string]string{
	"gmail.com":      "gmail",
	"googlemail.com": "gmail",
	"yahoo.com":      "yahoo",
	"yahoo.co.uk":    "yahoo",
	"yahoo.fr":       "yahoo",
	"outlook.com":    "outlook",
	"live.com":       "outlook",
	"msn.com":        "outlook",
	"hotmail.com":    "hotmail",
	"hotmail.co.uk":  "hotmail",
	"zoho.com":       "zoho",
	"zohomail.com":   "zoho",
	"protonmail.com": "protonmail",
	"protonmail.ch":  "protonmail",
	"pm.me":          "protonmail",
}

// All returns a copy of the predefined provider table, keyed by provider name.
func All() map[string]Descriptor {
	m := make(map[string]Descriptor, len(predefined))
	for k, v := range predefined {
		m[k] = v
	}
	return m
}

// Get returns the predefined descriptor with the given key.
func Get(key string) (Descriptor, bool) {
	d, ok := predefined[key]
	return d, ok
}

// Lookup returns the key and descriptor for the provider serving domain, matched case-insensitively.
// ok is false when the domain is unknown.
func Lookup(domain string) (key string, d Descriptor, ok bool) {
	key, ok = domains[strings.ToLower(strings.TrimSuffix(strings.TrimSpace(domain), "."))]
	if !ok {
		return "", Descriptor{}, false
	}
	return key, predefined[key], true
}

// Detect finds the provider for an email address by its domain part.
func Detect(email string) (key string, d Descriptor, ok bool) {
	_, domain, err := policy.ParseEmailAddress(strings.TrimSpace(email))
	if err != nil {
		return "", Descriptor{}, false
	}
	return Lookup(domain)
}

// NewCustom builds a user defined descriptor. It performs no validation; callers that accept
// untrusted input should call Validate.
func NewCustom(
	name string,
	imapHost string, imapPort int, imapSecure bool,
	smtpHost string, smtpPort int, smtpSecure bool,
) Descriptor {
	if strings.TrimSpace(name) == "" {
		name = "Custom"
	}
	return Descriptor{
		Name:       name,
		Type:       Custom,
		Retrieval:  Endpoint{Host: imapHost, Port: imapPort, Secure: imapSecure},
		Submission: Endpoint{Host: smtpHost, Port: smtpPort, Secure: smtpSecure},
	}
}
