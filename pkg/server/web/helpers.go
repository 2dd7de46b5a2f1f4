package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"html/template"
	"net/http"
	"regexp"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/mailmount/mailmount/pkg/mailerr"
	"github.com/mailmount/mailmount/pkg/storage"
)

// ErrorBody is the JSON body of every failed request.
type ErrorBody struct {
	Error   string `json:"error"`
	Success bool   `json:"success"`
}

// StatusFor maps a classified error to its HTTP status.
func StatusFor(err error) int {
	if errors.Is(err, storage.ErrNotExist) {
		return http.StatusNotFound
	}
	switch mailerr.KindOf(err) {
	case mailerr.Config:
		return http.StatusBadRequest
	case mailerr.Auth:
		return http.StatusUnauthorized
	case mailerr.Connection, mailerr.Send:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// causeOf returns the short failure text sent to the client.
func causeOf(err error) string {
	if errors.Is(err, storage.ErrNotExist) {
		return "not found"
	}
	return mailerr.Cause(err)
}

// RenderJSON writes v as the JSON response body with the given status.
func RenderJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Expires", "-1")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	if err := enc.Encode(v); err != nil {
		log.Warn().Str("module", "web").Err(err).Msg("Failed to write JSON response")
	}
}

// RenderError logs err and writes its JSON error body.
func RenderError(w http.ResponseWriter, req *http.Request, err error) {
	status := StatusFor(err)
	ev := log.Warn()
	if status == http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Str("module", "web").Str("path", req.RequestURI).Int("status", status).Err(err).
		Msg("Error handling request")
	RenderJSON(w, status, ErrorBody{Error: causeOf(err)})
}

// From http://daringfireball.net/2010/07/improved_regex_for_matching_urls
var urlRE = regexp.MustCompile("(?i)\\b((?:[a-z][\\w-]+:(?:/{1,3}|[a-z0-9%])|www\\d{0,3}[.]|[a-z0-9.\\-]+[.][a-z]{2,4}/)(?:[^\\s()<>]+|\\(([^\\s()<>]+|(\\([^\\s()<>]+\\)))*\\))+(?:\\(([^\\s()<>]+|(\\([^\\s()<>]+\\)))*\\)|[^\\s`!()\\[\\]{};:'\".,<>?«»“”‘’]))")

// TextToHTML escapes a plain text body and links any URLs, for messages that carry no HTML part.
func TextToHTML(text string) template.HTML {
	text = html.EscapeString(text)
	text = urlRE.ReplaceAllStringFunc(text, wrapURL)
	replacer := strings.NewReplacer("\r\n", "<br/>\n", "\r", "<br/>\n", "\n", "<br/>\n")
	return template.HTML(replacer.Replace(text))
}

func wrapURL(url string) string {
	unescaped := strings.ReplaceAll(url, "&amp;", "&")
	return fmt.Sprintf("<a href=\"%s\" target=\"_blank\">%s</a>", unescaped, url)
}
