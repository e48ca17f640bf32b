package apitest

import (
	"context"
	"net/http"

	"github.com/cuemby/kvdeck/pkg/types"
	"github.com/google/uuid"
)

type userKey struct{}

func (s *Server) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}

		cookie, err := r.Cookie(CSRFCookie)
		if err != nil {
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "CSRF Failed: CSRF cookie not set."})
			return
		}
		s.mu.Lock()
		known := s.csrfTokens[cookie.Value]
		s.mu.Unlock()
		if !known || r.Header.Get(CSRFHeader) != cookie.Value {
			writeJSON(w, http.StatusForbidden, map[string]string{"detail": "CSRF Failed: CSRF token incorrect."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(SessionCookie)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Authentication credentials were not provided."})
			return
		}

		s.mu.Lock()
		uid, ok := s.sessions[cookie.Value]
		var user types.User
		for _, a := range s.accounts {
			if a.user.ID == uid {
				user = a.user
			}
		}
		s.mu.Unlock()

		if !ok {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Invalid session."})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func currentUser(r *http.Request) types.User {
	u, _ := r.Context().Value(userKey{}).(types.User)
	return u
}

func (s *Server) handleCSRF(w http.ResponseWriter, r *http.Request) {
	token := uuid.NewString()
	s.mu.Lock()
	s.csrfTokens[token] = true
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: CSRFCookie, Value: token, Path: "/"})
	writeJSON(w, http.StatusOK, map[string]string{"message": "CSRF cookie set"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds types.Credentials
	if err := readJSON(r, &creds); err != nil || creds.Username == "" || creds.Password == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Username and password are required"})
		return
	}

	s.mu.Lock()
	a, ok := s.accounts[creds.Username]
	if !ok || a.password != creds.Password {
		s.mu.Unlock()
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Invalid credentials"})
		return
	}
	sid := uuid.NewString()
	s.sessions[sid] = a.user.ID
	user := a.user
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: sid, Path: "/", HttpOnly: true})
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, cookie.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, currentUser(r))
}
