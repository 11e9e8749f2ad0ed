package router

import (
	"net/http"
	"strings"

	"github.com/gigdesk/backend/internal/auth"
	"github.com/gigdesk/backend/internal/dashboard"
)

// New returns an http.Handler that serves the dashboard API under /api/v1.
func New(authHandler *auth.Handler, dashHandler *dashboard.Handler) http.Handler {
	mux := http.NewServeMux()
	base := "/api/v1"
	mux.HandleFunc(base+"/auth/register", methodPOST(authHandler.Register))
	mux.HandleFunc(base+"/auth/login", methodPOST(authHandler.Login))

	mux.HandleFunc(base+"/account/me", methodGET(dashHandler.GetMe))
	mux.HandleFunc(base+"/account/settings", methodPATCH(dashHandler.UpdateSettings))
	mux.HandleFunc(base+"/orders", methodGET(dashHandler.ListOrders))
	mux.HandleFunc(base+"/transactions", methodGET(dashHandler.ListTransactions))
	mux.HandleFunc(base+"/notifications", methodGET(dashHandler.ListNotifications))

	mux.HandleFunc(base+"/notifications/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost && strings.HasSuffix(r.URL.Path, "/read") {
			dashHandler.MarkNotificationRead(w, r)
			return
		}
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	})

	return mux
}

func methodGET(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodPOST(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func methodPATCH(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}
