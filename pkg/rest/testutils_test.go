package rest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mailmount/mailmount/pkg/config"
	"github.com/mailmount/mailmount/pkg/engine"
	"github.com/mailmount/mailmount/pkg/msghub"
	"github.com/mailmount/mailmount/pkg/server/web"
)

const baseURL = "http://localhost/api/v1"

func setupWebServer(mm engine.Manager, hub *msghub.Hub) *web.Server {
	s := web.NewServer(config.Web{}, mm, hub)
	SetupRoutes(s)
	return s
}

func testRestGet(s http.Handler, url string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", url, nil)
	req.Header.Add("Accept", "application/json")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

func testRestPost(s http.Handler, url string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("POST", url, strings.NewReader(body))
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.ServeHTTP(w, req)
	return w
}

// decodeBody requires a JSON body with the wanted status code.
func decodeBody(t *testing.T, w *httptest.ResponseRecorder, wantCode int) any {
	t.Helper()
	require.Equal(t, wantCode, w.Code, "body: %s", w.Body.String())
	var v any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func decodedBoolEquals(t *testing.T, json any, path string, want bool) {
	t.Helper()
	val, msg := getDecodedPath(json, strings.Split(path, "/")...)
	if assert.Empty(t, msg, "JSON result%s", msg) {
		assert.Equal(t, want, val, "JSON result/%s", path)
	}
}

func decodedNumberEquals(t *testing.T, json any, path string, want float64) {
	t.Helper()
	val, msg := getDecodedPath(json, strings.Split(path, "/")...)
	if assert.Empty(t, msg, "JSON result%s", msg) {
		assert.Equal(t, want, val, "JSON result/%s", path)
	}
}

func decodedStringEquals(t *testing.T, json any, path string, want string) {
	t.Helper()
	val, msg := getDecodedPath(json, strings.Split(path, "/")...)
	if assert.Empty(t, msg, "JSON result%s", msg) {
		assert.Equal(t, want, val, "JSON result/%s", path)
	}
}

func decodedLen(t *testing.T, json any, path string, want int) {
	t.Helper()
	val, msg := getDecodedPath(json, strings.Split(path, "/")...)
	if assert.Empty(t, msg, "JSON result%s", msg) {
		assert.Len(t, val, want, "JSON result/%s", path)
	}
}

// getDecodedPath recursively navigates the specified path, returing the requested element.  If
// something goes wrong, the returned string will contain an explanation.
//
// Named path elements require the parent element to be a map[string]any, numbers in square
// brackets require the parent element to be a []any.
//
//	getDecodedPath(o, "emails", "[1]", "subject")
//
// is equivalent to the JavaScript:
//
//	o.emails[1].subject
func getDecodedPath(o any, path ...string) (any, string) {
	if len(path) == 0 {
		return o, ""
	}
	if o == nil {
		return nil, " is nil"
	}
	key := path[0]
	var val any
	if key[0] == '[' {
		index, err := strconv.Atoi(strings.Trim(key, "[]"))
		if err != nil {
			return nil, "/" + key + " is not a slice index"
		}
		oslice, ok := o.([]any)
		if !ok {
			return nil, " is not a slice"
		}
		if index >= len(oslice) {
			return nil, "/" + key + " is out of bounds"
		}
		val = oslice[index]
	} else {
		omap, ok := o.(map[string]any)
		if !ok {
			return nil, " is not a map"
		}
		if val, ok = omap[key]; !ok {
			return nil, "/" + key + " is missing"
		}
	}
	result, msg := getDecodedPath(val, path[1:]...)
	if msg != "" {
		return nil, "/" + key + msg
	}
	return result, ""
}
