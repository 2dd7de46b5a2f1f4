package policy

import (
	"errors"
	"fmt"
	"net/mail"
)

// ErrNoRecipients is returned when an outbound message has nobody to deliver to.
var ErrNoRecipients = errors.New("at least one recipient is required")

// CheckRecipients validates every address in the lists, and requires the first list (the To list of
// an outbound message) to be non-empty.
func CheckRecipients(to []*mail.Address, others ...[]*mail.Address) error {
	if len(to) == 0 {
		return ErrNoRecipients
	}
	lists := append([][]*mail.Address{to}, others...)
	for _, list := range lists {
		for _, a := range list {
			if a == nil {
				return errors.New("recipient address is missing")
			}
			if _, _, err := ParseEmailAddress(a.Address); err != nil {
				return fmt.Errorf("recipient %q: %w", a.Address, err)
			}
		}
	}
	return nil
}

// DisplayName returns name if it is non-blank, otherwise the local part of address.
func DisplayName(name, address string) string {
	for _, c := range name {
		if c != ' ' && c != '\t' {
			return name
		}
	}
	local, _, err := parseEmailAddress(address)
	if err != nil || local == "" {
		return address
	}
	return local
}
