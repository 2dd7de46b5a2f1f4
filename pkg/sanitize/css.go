package sanitize

import (
	"bytes"
	"strings"

	"github.com/gorilla/css/scanner"
)

// cssProperties lists the inline style properties kept in message HTML. Anything that can move
// content outside its box (position, z-index, transforms) is left out.
var cssProperties = map[string]struct{}{
	"align":            {},
	"background":       {},
	"background-color": {},
	"border":           {},
	"border-bottom":    {},
	"border-collapse":  {},
	"border-color":     {},
	"border-left":      {},
	"border-radius":    {},
	"border-right":     {},
	"border-spacing":   {},
	"border-top":       {},
	"box-sizing":       {},
	"clear":            {},
	"color":            {},
	"display":          {},
	"float":            {},
	"font":             {},
	"font-family":      {},
	"font-size":        {},
	"font-style":       {},
	"font-weight":      {},
	"height":           {},
	"letter-spacing":   {},
	"line-height":      {},
	"list-style-type":  {},
	"margin":           {},
	"margin-bottom":    {},
	"margin-left":      {},
	"margin-right":     {},
	"margin-top":       {},
	"max-height":       {},
	"max-width":        {},
	"min-width":        {},
	"overflow":         {},
	"padding":          {},
	"padding-bottom":   {},
	"padding-left":     {},
	"padding-right":    {},
	"padding-top":      {},
	"table-layout":     {},
	"text-align":       {},
	"text-decoration":  {},
	"text-transform":   {},
	"vertical-align":   {},
	"white-space":      {},
	"width":            {},
	"word-break":       {},
}

// cssState consumes one token and returns the next state, or nil to reject the whole style.
type cssState func(b *bytes.Buffer, t *scanner.Token) cssState

// sanitizeStyle filters a style attribute down to the allowed declarations.
func sanitizeStyle(input string) string {
	b := &bytes.Buffer{}
	scan := scanner.New(input)
	state := cssProperty
	for {
		t := scan.Next()
		switch t.Type {
		case scanner.TokenEOF:
			return strings.TrimSpace(b.String())
		case scanner.TokenError:
			return ""
		}
		if state = state(b, t); state == nil {
			return ""
		}
	}
}

// cssProperty expects the name of the next declaration.
func cssProperty(b *bytes.Buffer, t *scanner.Token) cssState {
	switch t.Type {
	case scanner.TokenS:
		return cssProperty
	case scanner.TokenIdent:
		if _, ok := cssProperties[strings.ToLower(t.Value)]; !ok {
			return cssSkip
		}
		b.WriteString(t.Value)
		return cssValue
	case scanner.TokenChar:
		if t.Value == ";" {
			return cssProperty
		}
	}
	return cssSkip
}

// cssSkip drops tokens until the end of the declaration.
func cssSkip(b *bytes.Buffer, t *scanner.Token) cssState {
	if t.Type == scanner.TokenChar && t.Value == ";" {
		return cssProperty
	}
	return cssSkip
}

// cssValue copies the value of an allowed declaration. Values that could load remote content are
// rejected.
func cssValue(b *bytes.Buffer, t *scanner.Token) cssState {
	switch t.Type {
	case scanner.TokenURI, scanner.TokenFunction:
		if strings.HasPrefix(strings.ToLower(t.Value), "url") ||
			strings.HasPrefix(strings.ToLower(t.Value), "expression") {
			return nil
		}
	case scanner.TokenChar:
		if t.Value == ";" {
			b.WriteString(";")
			return cssProperty
		}
	}
	b.WriteString(t.Value)
	return cssValue
}
