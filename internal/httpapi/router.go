package httpapi

import (
	"net/http"
	"strings"
)

// SetupRouter sets up HTTP routes
func SetupRouter(handler *Handler) http.Handler {
	mux := http.NewServeMux()

	// GET /version
	mux.HandleFunc("/version", handler.GetVersion)

	// GET /metrics
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			handler.GetMetrics(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// POST /sessions
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			handler.CreateSession(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Everything under /sessions/{id}
	mux.HandleFunc("/sessions/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path

		switch {
		case strings.HasSuffix(path, "/file"):
			requireMethod(w, r, http.MethodPost, func() {
				handler.LoadFile(w, r, sessionID(path, "/file"))
			})
		case strings.HasSuffix(path, "/mapping"):
			requireMethod(w, r, http.MethodPut, func() {
				handler.UpdateMapping(w, r, sessionID(path, "/mapping"))
			})
		case strings.HasSuffix(path, "/validate"):
			requireMethod(w, r, http.MethodPost, func() {
				handler.Validate(w, r, sessionID(path, "/validate"))
			})
		case strings.HasSuffix(path, "/rows"):
			requireMethod(w, r, http.MethodGet, func() {
				handler.GetRows(w, r, sessionID(path, "/rows"))
			})
		case strings.HasSuffix(path, "/execute"):
			requireMethod(w, r, http.MethodPost, func() {
				handler.Execute(w, r, sessionID(path, "/execute"))
			})
		case strings.HasSuffix(path, "/back"):
			requireMethod(w, r, http.MethodPost, func() {
				handler.Back(w, r, sessionID(path, "/back"))
			})
		case strings.HasSuffix(path, "/cancel"):
			requireMethod(w, r, http.MethodPost, func() {
				handler.Cancel(w, r, sessionID(path, "/cancel"))
			})
		case strings.HasSuffix(path, "/report"):
			requireMethod(w, r, http.MethodGet, func() {
				handler.GetReport(w, r, sessionID(path, "/report"))
			})
		default:
			id := sessionID(path, "")
			if id == "" {
				http.Error(w, "sessionId is required", http.StatusBadRequest)
				return
			}
			switch r.Method {
			case http.MethodGet:
				handler.GetSession(w, r, id)
			case http.MethodDelete:
				handler.CloseSession(w, r, id)
			default:
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			}
		}
	})

	// POST /maintenance/wipe
	mux.HandleFunc("/maintenance/wipe", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			handler.Wipe(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	// Apply auth middleware, but exclude /version endpoint
	wrapped := AuthMiddleware(mux)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/version" {
			mux.ServeHTTP(w, r)
			return
		}
		wrapped.ServeHTTP(w, r)
	})
}

func requireMethod(w http.ResponseWriter, r *http.Request, method string, fn func()) {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	fn()
}
