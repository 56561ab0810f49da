package http

import (
	"net/http"
	"strings"
)

type RouterConfig struct {
	Sessions      *SessionHandler
	Registrations *RegistrationHandler
	Matches       *MatchHandler
	Middleware    []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	if cfg.Sessions != nil {
		mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				methodNotAllowed(w, http.MethodPost)
				return
			}
			cfg.Sessions.Create(w, r)
		})
		mux.HandleFunc("/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Sessions.Get(w, r)
			case http.MethodPut:
				cfg.Sessions.Update(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut)
			}
		})
		postOnly(mux, "/sessions/{id}/schedule", cfg.Sessions.Schedule)
		postOnly(mux, "/sessions/{id}/publish", cfg.Sessions.Publish)
		postOnly(mux, "/sessions/{id}/complete", cfg.Sessions.Complete)
		mux.HandleFunc("/rounds/{id}/phase", func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				methodNotAllowed(w, http.MethodGet)
				return
			}
			cfg.Sessions.RoundPhase(w, r)
		})
	}

	if cfg.Registrations != nil {
		postOnly(mux, "/sessions/{id}/registrations", cfg.Registrations.Register)
		mux.HandleFunc("/registrations/{id}", func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet:
				cfg.Registrations.Get(w, r)
			case http.MethodDelete:
				cfg.Registrations.Cancel(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodDelete)
			}
		})
		postOnly(mux, "/registrations/{id}/confirm", cfg.Registrations.Confirm)
		postOnly(mux, "/registrations/{id}/verify", cfg.Registrations.Verify)
	}

	if cfg.Matches != nil {
		postOnly(mux, "/matches/{id}/check-ins", cfg.Matches.CheckIn)
		postOnly(mux, "/matches/{id}/met", cfg.Matches.Met)
	}

	var handler http.Handler = mux
	if len(cfg.Middleware) > 0 {
		for i := len(cfg.Middleware) - 1; i >= 0; i-- {
			if cfg.Middleware[i] != nil {
				handler = cfg.Middleware[i](handler)
			}
		}
	}

	return handler
}

func postOnly(mux *http.ServeMux, pattern string, handle http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		handle(w, r)
	})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
