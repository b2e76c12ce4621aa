package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stevecastle/vr180/auth"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

var errAuthDisabled = errors.New("authentication is not enabled")

func authStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidCreds):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrUserExists), errors.Is(err, auth.ErrLastUser):
		return http.StatusConflict
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func loginHandler(d *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Use POST", http.StatusMethodNotAllowed)
			return
		}
		if d.Auth == nil {
			writeError(w, http.StatusNotFound, errAuthDisabled)
			return
		}
		var c credentials
		if err := readJSONBody(w, r, &c); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("bad json: %w", err))
			return
		}
		token, err := d.Auth.Login(c.Username, c.Password)
		if err != nil {
			writeError(w, authStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"token": token})
	}
}

func usersHandler(d *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Auth == nil {
			writeError(w, http.StatusNotFound, errAuthDisabled)
			return
		}
		switch r.Method {
		case http.MethodGet:
			users, err := d.Auth.ListUsers()
			if err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"users": users})
		case http.MethodPost:
			var c credentials
			if err := readJSONBody(w, r, &c); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Errorf("bad json: %w", err))
				return
			}
			if err := d.Auth.Register(c.Username, c.Password); err != nil {
				status := authStatus(err)
				if errors.Is(err, auth.ErrInvalidCreds) {
					status = http.StatusBadRequest
				}
				writeError(w, status, err)
				return
			}
			writeJSON(w, http.StatusCreated, map[string]string{"username": c.Username})
		default:
			http.Error(w, "Use GET or POST", http.StatusMethodNotAllowed)
		}
	}
}

func userHandler(d *Dependencies) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if d.Auth == nil {
			writeError(w, http.StatusNotFound, errAuthDisabled)
			return
		}
		if r.Method != http.MethodDelete {
			http.Error(w, "Use DELETE", http.StatusMethodNotAllowed)
			return
		}
		if err := d.Auth.DeleteUser(r.PathValue("name")); err != nil {
			writeError(w, authStatus(err), err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
