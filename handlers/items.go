package handlers

import (
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/GitDonce/TwoGuys/models"
)

// GetItems retrieves all items.
func (h *Handlers) GetItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Store.ListItems(r.Context())
	if err != nil {
		h.storeFailure(w, r, err, "", "Failed to retrieve items")
		return
	}
	respondWithList(w, items)
}

// GetItem retrieves a single item by its ID.
func (h *Handlers) GetItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.Store.GetItem(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.storeFailure(w, r, err, "Item not found", "Failed to retrieve item")
		return
	}
	respondWithData(w, http.StatusOK, item, "")
}

// CreateItem creates a new item. Title and description are required.
func (h *Handlers) CreateItem(w http.ResponseWriter, r *http.Request) {
	var req models.CreateItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := validate.Struct(req); err != nil {
		respondWithError(w, http.StatusBadRequest, validationMessage(err, ruleMessages{
			"required": "Title and description are required",
		}))
		return
	}

	item, err := h.Store.CreateItem(r.Context(), models.Item{
		Title:       req.Title,
		Description: req.Description,
		Completed:   false,
		CreatedAt:   h.timestamp(),
	})
	if err != nil {
		h.storeFailure(w, r, err, "", "Failed to create item")
		return
	}
	h.Log.Debug("item created", zap.String("id", item.ID))
	respondWithData(w, http.StatusCreated, item, "Item created successfully")
}

// UpdateItem merges the provided fields into an existing item.
func (h *Handlers) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req models.UpdateItemRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	item, err := h.Store.UpdateItem(r.Context(), mux.Vars(r)["id"], req.Patch())
	if err != nil {
		h.storeFailure(w, r, err, "Item not found", "Failed to update item")
		return
	}
	respondWithData(w, http.StatusOK, item, "Item updated successfully")
}

// DeleteItem deletes an item by its ID and returns the deleted record.
func (h *Handlers) DeleteItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.Store.DeleteItem(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.storeFailure(w, r, err, "Item not found", "Failed to delete item")
		return
	}
	respondWithData(w, http.StatusOK, item, "Item deleted successfully")
}
