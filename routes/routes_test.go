package routes

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func named(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(name))
	})
}

func serve(h http.Handler, method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, target, nil))
	return w
}

func TestNew_ExactMatch(t *testing.T) {
	router := New(Table{
		{Path: "/download", Handler: named("download")},
		{Path: "/other", Handler: named("other")},
	}, named("fallback"))

	assert.Equal(t, "download", serve(router, "GET", "/download").Body.String())
	assert.Equal(t, "other", serve(router, "GET", "/other").Body.String())
}

func TestNew_AnyMethodMatches(t *testing.T) {
	router := New(Table{{Path: "/download", Handler: named("download")}}, named("fallback"))

	for _, method := range []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD", "OPTIONS"} {
		w := serve(router, method, "/download")
		assert.Equal(t, http.StatusOK, w.Code, method)
		if method != "HEAD" {
			assert.Equal(t, "download", w.Body.String(), method)
		}
	}
}

func TestNew_NonStandardMethodsMatch(t *testing.T) {
	router := New(Table{{Path: "/download", Handler: named("download")}}, named("fallback"))

	for _, method := range []string{"PROPFIND", "MKCOL", "FOO"} {
		assert.Equal(t, "download", serve(router, method, "/download").Body.String(), method)
		assert.Equal(t, "fallback", serve(router, method, "/").Body.String(), method)
		assert.Equal(t, "fallback", serve(router, method, "/download/").Body.String(), method)
	}
}

func TestNew_EscapedPathFallsBack(t *testing.T) {
	router := New(Table{{Path: "/download", Handler: named("download")}}, named("fallback"))

	assert.Equal(t, "fallback", serve(router, "GET", "/down%6Coad").Body.String())
	assert.Equal(t, "fallback", serve(router, "FOO", "/down%6Coad").Body.String())
}

func TestNew_FallbackForEverythingElse(t *testing.T) {
	router := New(Table{{Path: "/download", Handler: named("download")}}, named("fallback"))

	paths := []string{
		"/",
		"/anything-else",
		"/download/",
		"/download/extra",
		"/Download",
		"//download",
		"/downloads",
		"/a/b/c?x=1",
	}
	for _, path := range paths {
		w := serve(router, "GET", path)
		assert.Equal(t, http.StatusOK, w.Code, path)
		assert.Equal(t, "fallback", w.Body.String(), path)
	}
}

func TestNew_QueryDoesNotAffectMatch(t *testing.T) {
	router := New(Table{{Path: "/download", Handler: named("download")}}, named("fallback"))

	assert.Equal(t, "download", serve(router, "GET", "/download?version=2").Body.String())
}

func TestNew_EmptyTable(t *testing.T) {
	router := New(nil, named("fallback"))

	assert.Equal(t, "fallback", serve(router, "GET", "/download").Body.String())
}

func TestInitializeRoutes(t *testing.T) {
	source := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(source, []byte("bytes on disk"), 0o644))

	router, err := InitializeRoutes(Options{
		DownloadPath:   "/download",
		Source:         source,
		AttachmentName: "update.txt",
	})
	require.NoError(t, err)

	download := serve(router, "GET", "/download")
	assert.Equal(t, http.StatusOK, download.Code)
	assert.Equal(t, "application/octet-stream", download.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="update.txt"`, download.Header().Get("Content-Disposition"))
	assert.Equal(t, "bytes on disk", download.Body.String())

	root := serve(router, "GET", "/")
	other := serve(router, "GET", "/anything-else")
	assert.Equal(t, "text/html; charset=utf-8", root.Header().Get("Content-Type"))
	assert.Contains(t, root.Body.String(), "Software Update")
	assert.Equal(t, root.Body.Bytes(), other.Body.Bytes())
}

func TestInitializeRoutes_AnyMethodDownloads(t *testing.T) {
	source := filepath.Join(t.TempDir(), "update.txt")
	require.NoError(t, os.WriteFile(source, []byte("update"), 0o644))

	router, err := InitializeRoutes(Options{
		DownloadPath:   "/download",
		Source:         source,
		AttachmentName: "update.txt",
	})
	require.NoError(t, err)

	for _, method := range []string{"GET", "POST", "PROPFIND", "MKCOL", "FOO"} {
		w := serve(router, method, "/download")
		assert.Equal(t, http.StatusOK, w.Code, method)
		assert.Equal(t, "application/octet-stream", w.Header().Get("Content-Type"), method)
		assert.Equal(t, "update", w.Body.String(), method)
	}
}

func TestInitializeRoutes_DownloadMiddlewareOnlyWrapsDownload(t *testing.T) {
	source := filepath.Join(t.TempDir(), "update.txt")
	require.NoError(t, os.WriteFile(source, []byte("x"), 0o644))

	wrapped := 0
	router, err := InitializeRoutes(Options{
		DownloadPath:   "/download",
		Source:         source,
		AttachmentName: "update.txt",
		DownloadMiddleware: func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				wrapped++
				next.ServeHTTP(w, r)
			})
		},
	})
	require.NoError(t, err)

	serve(router, "GET", "/")
	assert.Equal(t, 0, wrapped)

	serve(router, "GET", "/download")
	assert.Equal(t, 1, wrapped)
}
