// Package handlers implements the document store server's HTTP API.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/velmar-soft/recibosgo/internal/config"
	"github.com/velmar-soft/recibosgo/internal/database"
	"github.com/velmar-soft/recibosgo/internal/middleware"
	"github.com/velmar-soft/recibosgo/internal/utils"
	"github.com/velmar-soft/recibosgo/internal/websocket"
)

// Router wraps the mux router and the server's collaborators
type Router struct {
	*mux.Router
	db  *database.DB
	cfg *config.Config
	hub *websocket.Hub
}

// NewRouter creates a new HTTP router with all routes
func NewRouter(db *database.DB, cfg *config.Config, hub *websocket.Hub) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		db:     db,
		cfg:    cfg,
		hub:    hub,
	}

	// Health check endpoint, also the connectivity monitor's probe target
	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	// Auth routes
	auth := r.PathPrefix("/auth").Subrouter()
	auth.HandleFunc("/login", r.login).Methods("POST")
	auth.HandleFunc("/register", r.register).Methods("POST")

	// Collection routes (protected)
	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(cfg.JWTSecret))
	api.HandleFunc("/collections/{collection}", r.listRecords).Methods("GET")
	api.HandleFunc("/collections/{collection}", r.createRecord).Methods("POST")
	api.HandleFunc("/collections/{collection}/{id}", r.getRecord).Methods("GET")
	api.HandleFunc("/collections/{collection}/{id}", r.patchRecord).Methods("PATCH")
	api.HandleFunc("/receipts/{id}/pdf", r.receiptPDF).Methods("GET")

	// Websocket push channel; browsers cannot set headers on the
	// upgrade request, so the token rides in the query string.
	r.HandleFunc("/ws", r.serveWS).Methods("GET")

	return r
}

// healthCheck returns the health status of the API
func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// serveWS upgrades a session push connection
func (r *Router) serveWS(w http.ResponseWriter, req *http.Request) {
	token := req.URL.Query().Get("token")
	claims, err := utils.ValidateToken(token, r.cfg.JWTSecret)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "Invalid or expired token")
		return
	}
	userID, _ := claims["id"].(string)
	if userID == "" {
		respondError(w, http.StatusUnauthorized, "Token has no user id")
		return
	}

	websocket.ServeWS(r.hub, w, req, userID)
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
