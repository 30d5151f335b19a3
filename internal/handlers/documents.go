package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/velmar-soft/recibosgo/internal/export"
	"github.com/velmar-soft/recibosgo/internal/middleware"
	"github.com/velmar-soft/recibosgo/internal/models"
	"github.com/velmar-soft/recibosgo/internal/websocket"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var knownCollections = map[string]bool{
	models.CollectionClients:        true,
	models.CollectionProducts:       true,
	models.CollectionCategories:     true,
	models.CollectionReceipts:       true,
	models.CollectionCompanyProfile: true,
}

// listRecords returns the records of one collection for the authenticated
// user. Query parameters of the form f.<field>=<value> filter on payload
// field equality; orderBy/dir sort the result.
func (r *Router) listRecords(w http.ResponseWriter, req *http.Request) {
	collection := mux.Vars(req)["collection"]
	if !knownCollections[collection] {
		respondError(w, http.StatusNotFound, "Unknown collection")
		return
	}
	userID := middleware.UserID(req)

	q := r.db.Where("collection = ? AND owner_id = ?", collection, userID)
	for param, values := range req.URL.Query() {
		field, isFilter := strings.CutPrefix(param, "f.")
		if !isFilter || len(values) == 0 {
			continue
		}
		// Ownership is enforced by the owner_id column, not the payload
		if field == "userId" {
			continue
		}
		q = q.Where(datatypes.JSONQuery("data").Equals(values[0], field))
	}

	orderBy := req.URL.Query().Get("orderBy")
	descending := req.URL.Query().Get("dir") == "desc"

	// Timestamps are real columns and sort in the database; payload
	// fields sort in memory after decoding.
	var payloadSort string
	switch orderBy {
	case "", "createdAt":
		q = q.Order(orderClause("created_at", descending))
	case "updatedAt":
		q = q.Order(orderClause("updated_at", descending))
	default:
		payloadSort = orderBy
		q = q.Order("created_at asc")
	}

	var docs []models.StoredDocument
	if err := q.Find(&docs).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to fetch records")
		return
	}

	records := make([]map[string]interface{}, 0, len(docs))
	for i := range docs {
		rec, err := mergeRecord(&docs[i])
		if err != nil {
			log.Printf("⚠️ Skipping undecodable document %s: %v", docs[i].ID, err)
			continue
		}
		records = append(records, rec)
	}

	if payloadSort != "" {
		sortRecords(records, payloadSort, descending)
	}

	respondJSON(w, http.StatusOK, records)
}

// createRecord stores a new record and notifies the owner's sessions
func (r *Router) createRecord(w http.ResponseWriter, req *http.Request) {
	collection := mux.Vars(req)["collection"]
	if !knownCollections[collection] {
		respondError(w, http.StatusNotFound, "Unknown collection")
		return
	}
	userID := middleware.UserID(req)

	var payload map[string]interface{}
	if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}
	// The server assigns identifiers; a client-sent id is a temp id
	delete(payload, "id")

	encoded, err := json.Marshal(payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}

	doc := models.StoredDocument{
		ID:         uuid.New().String(),
		Collection: collection,
		OwnerID:    userID,
		Data:       encoded,
	}
	if err := r.db.Create(&doc).Error; err != nil {
		log.Printf("❌ Failed to store record in %s: %v", collection, err)
		respondError(w, http.StatusInternalServerError, "Database error")
		return
	}

	log.Printf("📄 Record created: %s in %s", doc.ID, collection)
	r.notifyChanged(userID, collection)

	respondJSON(w, http.StatusCreated, map[string]string{"id": doc.ID})
}

// getRecord returns one record by id
func (r *Router) getRecord(w http.ResponseWriter, req *http.Request) {
	doc, ok := r.loadDocument(w, req)
	if !ok {
		return
	}

	rec, err := mergeRecord(doc)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to decode record")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// patchRecord merges a partial update into a record's payload
func (r *Router) patchRecord(w http.ResponseWriter, req *http.Request) {
	doc, ok := r.loadDocument(w, req)
	if !ok {
		return
	}

	var patch map[string]interface{}
	if err := json.NewDecoder(req.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	payload := make(map[string]interface{})
	if len(doc.Data) > 0 {
		if err := json.Unmarshal(doc.Data, &payload); err != nil {
			respondError(w, http.StatusInternalServerError, "Failed to decode record")
			return
		}
	}
	delete(patch, "id")
	for k, v := range patch {
		payload[k] = v
	}

	encoded, err := json.Marshal(payload)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid payload")
		return
	}
	doc.Data = encoded
	if err := r.db.Save(doc).Error; err != nil {
		respondError(w, http.StatusInternalServerError, "Database error")
		return
	}

	r.notifyChanged(doc.OwnerID, doc.Collection)

	rec, err := mergeRecord(doc)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to decode record")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// receiptPDF renders one receipt as a printable PDF
func (r *Router) receiptPDF(w http.ResponseWriter, req *http.Request) {
	userID := middleware.UserID(req)
	id := mux.Vars(req)["id"]

	var doc models.StoredDocument
	err := r.db.Where("id = ? AND collection = ? AND owner_id = ?", id, models.CollectionReceipts, userID).
		First(&doc).Error
	if err == gorm.ErrRecordNotFound {
		respondError(w, http.StatusNotFound, "Receipt not found")
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Database error")
		return
	}

	receipt, err := mergeRecord(&doc)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to decode receipt")
		return
	}

	pdf, err := export.ReceiptPDF(receipt, r.companyName(userID))
	if err != nil {
		log.Printf("❌ Failed to render receipt %s: %v", id, err)
		respondError(w, http.StatusInternalServerError, "Failed to render PDF")
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=recibo-%s.pdf", id))
	w.Write(pdf)
}

// companyName reads the owner's company profile; empty when none exists
func (r *Router) companyName(userID string) string {
	var doc models.StoredDocument
	err := r.db.Where("collection = ? AND owner_id = ?", models.CollectionCompanyProfile, userID).
		Order("created_at asc").
		First(&doc).Error
	if err != nil {
		return ""
	}
	profile, err := mergeRecord(&doc)
	if err != nil {
		return ""
	}
	name, _ := profile["name"].(string)
	return name
}

// loadDocument fetches the addressed record scoped to the authenticated
// owner, writing the error response itself when the record is unavailable.
func (r *Router) loadDocument(w http.ResponseWriter, req *http.Request) (*models.StoredDocument, bool) {
	vars := mux.Vars(req)
	collection := vars["collection"]
	if !knownCollections[collection] {
		respondError(w, http.StatusNotFound, "Unknown collection")
		return nil, false
	}
	userID := middleware.UserID(req)

	var doc models.StoredDocument
	err := r.db.Where("id = ? AND collection = ? AND owner_id = ?", vars["id"], collection, userID).
		First(&doc).Error
	if err == gorm.ErrRecordNotFound {
		respondError(w, http.StatusNotFound, "Record not found")
		return nil, false
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Database error")
		return nil, false
	}
	return &doc, true
}

func (r *Router) notifyChanged(userID, collection string) {
	if r.hub == nil {
		return
	}
	r.hub.NotifyUser(userID, websocket.Event{
		Type:       websocket.EventCollectionChanged,
		Collection: collection,
	})
}

// mergeRecord flattens a stored document into the wire shape: the payload
// fields plus id, userId and timestamps at top level.
func mergeRecord(doc *models.StoredDocument) (map[string]interface{}, error) {
	rec := make(map[string]interface{})
	if len(doc.Data) > 0 {
		if err := json.Unmarshal(doc.Data, &rec); err != nil {
			return nil, err
		}
	}
	rec["id"] = doc.ID
	rec["userId"] = doc.OwnerID
	rec["createdAt"] = doc.CreatedAt.UTC().Format(time.RFC3339)
	rec["updatedAt"] = doc.UpdatedAt.UTC().Format(time.RFC3339)
	return rec, nil
}

func orderClause(column string, descending bool) string {
	if descending {
		return column + " desc"
	}
	return column + " asc"
}

// sortRecords orders records by a payload field. Strings and numbers
// compare natively, anything else by its printed form.
func sortRecords(records []map[string]interface{}, field string, descending bool) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i][field], records[j][field]
		if descending {
			a, b = b, a
		}
		return compareValues(a, b)
	})
}

func compareValues(a, b interface{}) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af < bf
	}
	as, aok := a.(string)
	bs, bok := b.(string)
	if aok && bok {
		return as < bs
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
