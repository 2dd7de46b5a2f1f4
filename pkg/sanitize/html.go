// Package sanitize makes untrusted message HTML safe to render in a browser.
package sanitize

import (
	"bufio"
	"bytes"
	"io"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// Options controls optional filtering on top of the base policy.
type Options struct {
	// BlockRemoteImages drops img sources fetched over the network, which are commonly used as
	// read receipts.
	BlockRemoteImages bool
}

var (
	anyStyle = regexp.MustCompile(".*")
	policy   = newPolicy()
)

func newPolicy() *bluemonday.Policy {
	p := bluemonday.UGCPolicy()
	p.AllowElements("center", "font")
	p.AllowAttrs("color", "face", "size").OnElements("font")
	p.AllowAttrs("bgcolor", "align", "valign", "width", "height").
		OnElements("table", "tr", "td", "th", "tbody", "thead")
	p.AllowAttrs("style").Matching(anyStyle).Globally()
	p.AllowDataURIImages()
	p.AddTargetBlankToFullyQualifiedLinks(true)
	return p
}

// HTML sanitizes the provided message body while preserving inline styling.
func HTML(input string, opts Options) (string, error) {
	b := &bytes.Buffer{}
	if err := filterAttrs(b, strings.NewReader(input), opts); err != nil {
		return "", err
	}
	return policy.Sanitize(b.String()), nil
}

// attrRewrite returns the replacement value for an attribute and whether to keep it.
type attrRewrite func(tag, key, val string) (string, bool)

func rewrites(opts Options) []attrRewrite {
	rw := []attrRewrite{rewriteStyle}
	if opts.BlockRemoteImages {
		rw = append(rw, dropRemoteImage)
	}
	return rw
}

func rewriteStyle(_, key, val string) (string, bool) {
	if key != "style" {
		return val, true
	}
	val = sanitizeStyle(val)
	return val, val != ""
}

func dropRemoteImage(tag, key, val string) (string, bool) {
	if tag != "img" || (key != "src" && key != "srcset") {
		return val, true
	}
	return val, !isRemote(val)
}

func isRemote(src string) bool {
	s := strings.ToLower(strings.TrimSpace(src))
	return strings.HasPrefix(s, "http:") || strings.HasPrefix(s, "https:") || strings.HasPrefix(s, "//")
}

// filterAttrs copies the token stream of r to w, passing every start tag attribute through the
// rewrites selected by opts.
func filterAttrs(w io.Writer, r io.Reader, opts Options) error {
	rw := rewrites(opts)
	bw := bufio.NewWriter(w)
	b := make([]byte, 0, 256)
	z := html.NewTokenizer(r)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return err
			}
			return bw.Flush()
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if !hasAttr {
				if _, err := bw.Write(z.Raw()); err != nil {
					return err
				}
				continue
			}
			tag := string(name)
			b = append(b[:0], '<')
			b = append(b, name...)
			for more := true; more; {
				var key, val []byte
				key, val, more = z.TagAttr()
				k, v, keep := string(key), string(val), true
				for _, f := range rw {
					if v, keep = f(tag, k, v); !keep {
						break
					}
				}
				if keep {
					b = append(b, ' ')
					b = append(b, key...)
					b = append(b, `="`...)
					b = append(b, html.EscapeString(v)...)
					b = append(b, '"')
				}
			}
			if tt == html.SelfClosingTagToken {
				b = append(b, '/')
			}
			if _, err := bw.Write(append(b, '>')); err != nil {
				return err
			}
		default:
			if _, err := bw.Write(z.Raw()); err != nil {
				return err
			}
		}
	}
}
