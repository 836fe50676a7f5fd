package http

import (
	"io/fs"
	"net/http"
	"strings"

	"conversa/internal/auth"
	"conversa/internal/content"
)

// NewFileServerHandler serves the pages. "/" and everything under "/app/"
// go through the route guard; the login page sends signed in visitors on.
func NewFileServerHandler(reader auth.StateReader, assets fs.FS) http.Handler {
	fileServer := http.FileServer(http.FS(assets))
	loading := pageHandler(assets, "loading.html", http.StatusServiceUnavailable)
	app := auth.Guard(reader, loading, pageHandler(assets, "index.html", http.StatusOK))
	login := pageHandler(assets, "login.html", http.StatusOK)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/" || r.URL.Path == "/index.html" || r.URL.Path == "/app" || strings.HasPrefix(r.URL.Path, "/app/"):
			app.ServeHTTP(w, r)
		case r.URL.Path == auth.LoginPath || r.URL.Path == "/login.html":
			state, _ := reader.Resolve(r.Context(), auth.RequestToken(r))
			if state.Authenticated() {
				http.Redirect(w, r, content.SafeRedirect(r.URL.Query().Get("from")), http.StatusFound)
				return
			}
			login.ServeHTTP(w, r)
		case strings.HasSuffix(r.URL.Path, ".go"):
			http.NotFound(w, r)
		default:
			fileServer.ServeHTTP(w, r)
		}
	})
}

func pageHandler(assets fs.FS, name string, status int) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := fs.ReadFile(assets, name)
		if err != nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(status)
		_, _ = w.Write(data)
	})
}
