package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"update-server/handlers"
)

// Route binds an exact request path to a handler, for every method.
type Route struct {
	Path    string
	Handler http.Handler
}

// Table is the set of routes served next to the fallback.
type Table []Route

// New builds a router over table. Requests whose path matches no route
// exactly are answered by fallback, so the router itself never returns
// 404 or 405. Matching uses the escaped path when the request has one.
func New(table Table, fallback http.Handler) http.Handler {
	router := chi.NewRouter()
	byPath := make(map[string]http.Handler, len(table))

	for _, route := range table {
		router.Handle(route.Path, route.Handler)
		byPath[route.Path] = route.Handler
	}

	router.NotFound(fallback.ServeHTTP)

	// chi only dispatches methods it knows to Handle; anything else lands here.
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		if h, ok := byPath[routePath(r)]; ok {
			h.ServeHTTP(w, r)
			return
		}
		fallback.ServeHTTP(w, r)
	})

	return router
}

func routePath(r *http.Request) string {
	if r.URL.RawPath != "" {
		return r.URL.RawPath
	}
	return r.URL.Path
}

// Options configures the update server routes.
type Options struct {
	DownloadPath   string
	Source         string
	AttachmentName string

	// DownloadMiddleware wraps the download route only. May be nil.
	DownloadMiddleware func(http.Handler) http.Handler
}

// InitializeRoutes wires the download route and falls back to the landing page.
func InitializeRoutes(opts Options) (http.Handler, error) {
	page, err := handlers.PageHandler(opts.DownloadPath)
	if err != nil {
		return nil, err
	}

	var download http.Handler = handlers.DownloadHandler(opts.Source, opts.AttachmentName)
	if opts.DownloadMiddleware != nil {
		download = opts.DownloadMiddleware(download)
	}

	return New(Table{
		{Path: opts.DownloadPath, Handler: download},
	}, page), nil
}
