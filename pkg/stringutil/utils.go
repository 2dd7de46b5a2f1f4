package stringutil

import (
	"crypto/sha1"
	"fmt"
	"io"
	"net/mail"
	"strings"
)

// HashID joins the parts with a NUL separator and returns the hex SHA-1 of the result. It is used to
// derive identifiers that stay the same when the same server message is fetched again.
func HashID(parts ...string) string {
	h := sha1.New()
	for i, p := range parts {
		if i > 0 {
			if _, err := h.Write([]byte{0}); err != nil {
				return ""
			}
		}
		if _, err := io.WriteString(h, p); err != nil {
			// This shouldn't ever happen
			return ""
		}
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}

// FormatAddress renders an address as `name <address>`, or the bare address when it has no name.
func FormatAddress(a *mail.Address) string {
	if a == nil {
		return ""
	}
	name := strings.TrimSpace(a.Name)
	if name == "" {
		return a.Address
	}
	return name + " <" + a.Address + ">"
}

// JoinAddresses formats each address with FormatAddress and joins them with ", ".
func JoinAddresses(addrs []*mail.Address) string {
	s := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a != nil {
			s = append(s, FormatAddress(a))
		}
	}
	return strings.Join(s, ", ")
}
