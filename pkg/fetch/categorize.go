package fetch

import (
	"strings"

	"github.com/mailmount/mailmount/pkg/message"
)

type rule struct {
	category string
	subject  []string
	from     []string
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{category: message.CategoryPromotions, subject: []string{"sale", "offer", "deal"}},
	{category: message.CategoryPromotions, subject: []string{"newsletter"}, from: []string{"noreply", "no-reply"}},
	{category: message.CategoryWork, subject: []string{"work", "meeting", "project"}},
	{category: message.CategoryFinance, subject: []string{"invoice", "payment", "bank"}},
}

// Categorize derives a category from keywords in the subject and sender address. Matching is a
// case-insensitive substring test.
func Categorize(subject, from string) string {
	subject = strings.ToLower(subject)
	from = strings.ToLower(from)
	for _, r := range rules {
		if containsAny(subject, r.subject) || containsAny(from, r.from) {
			return r.category
		}
	}
	return message.CategoryPrimary
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}
