// Package agent exposes the offline client's local HTTP API. The desktop
// UI talks to this surface only; the agent decides per request whether to
// serve cached data or queue an offline write.
package agent

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/velmar-soft/recibosgo/internal/models"
	"github.com/velmar-soft/recibosgo/internal/remote"
	syncpkg "github.com/velmar-soft/recibosgo/internal/sync"
)

// API is the agent's local HTTP surface
type API struct {
	*mux.Router
	coord *syncpkg.Coordinator
	store syncpkg.OfflineStore
	conn  syncpkg.Connectivity
}

// NewAPI builds the agent router
func NewAPI(coord *syncpkg.Coordinator, store syncpkg.OfflineStore, conn syncpkg.Connectivity) *API {
	a := &API{
		Router: mux.NewRouter(),
		coord:  coord,
		store:  store,
		conn:   conn,
	}

	a.HandleFunc("/status", a.status).Methods("GET")
	a.HandleFunc("/sync", a.triggerSync).Methods("POST")
	a.HandleFunc("/collections/{collection}", a.listCollection).Methods("GET")
	a.HandleFunc("/offline/clients", a.addClient).Methods("POST")
	a.HandleFunc("/offline/receipts", a.addReceipt).Methods("POST")

	return a
}

// status reports connectivity and sync state for the UI's badges
func (a *API) status(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reachable":         a.conn.Reachable(),
		"state":             a.coord.State(),
		"isSyncing":         a.coord.IsSyncing(),
		"showSyncIndicator": a.coord.ShouldShowSyncIndicator(),
		"pendingOperations": a.coord.PendingOperationsCount(),
		"lastSync":          a.coord.LastSyncResult(),
	})
}

// triggerSync runs a manual drain
func (a *API) triggerSync(w http.ResponseWriter, req *http.Request) {
	result := a.coord.TriggerSync()
	if result == nil {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"triggered": false,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"triggered": true,
		"result":    result,
	})
}

// listCollection serves the local replica of a collection, refreshed from
// the remote store first when it is reachable. Queued offline creations
// for the collection are appended so new records show up immediately.
func (a *API) listCollection(w http.ResponseWriter, req *http.Request) {
	collection := mux.Vars(req)["collection"]

	if a.conn.Reachable() {
		// Best effort; a failed refresh falls back to the replica.
		a.coord.RefreshCache(req.Context(), collection)
	}

	userID := a.coord.UserID()
	records, err := a.store.GetCached(userID, collection)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read local replica")
		return
	}

	pending, err := a.store.ListPending(userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read pending queue")
		return
	}
	for i := range pending {
		opCollection, err := pending[i].Kind.CollectionFor()
		if err != nil || opCollection != collection {
			continue
		}
		payload, err := pending[i].PayloadMap()
		if err != nil {
			continue
		}
		payload["id"] = pending[i].TempID
		payload["pending"] = true
		records = append(records, remote.Record(payload))
	}

	writeJSON(w, http.StatusOK, records)
}

// addClient queues a client creation
func (a *API) addClient(w http.ResponseWriter, req *http.Request) {
	a.enqueue(w, req, models.OpCreateClient)
}

// addReceipt queues a receipt creation; the coordinator assigns a receipt
// number when the payload has none.
func (a *API) addReceipt(w http.ResponseWriter, req *http.Request) {
	a.enqueue(w, req, models.OpCreateReceipt)
}

func (a *API) enqueue(w http.ResponseWriter, req *http.Request, kind models.OperationKind) {
	var payload remote.Record
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	var (
		tempID string
		err    error
	)
	switch kind {
	case models.OpCreateReceipt:
		tempID, err = a.coord.AddOfflineReceipt(payload)
	default:
		tempID, err = a.coord.AddOfflineClient(payload)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to queue operation")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"id":      tempID,
		"pending": true,
		"number":  payload["number"],
	})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
