package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/wayfinder-app/wayfinder/internal/middleware"
	"github.com/wayfinder-app/wayfinder/internal/model"
	"github.com/wayfinder-app/wayfinder/internal/repository"
)

type routePayload struct {
	ID                string  `json:"id,omitempty"`
	StartLocationName string  `json:"start_location_name"`
	StartLocationLat  float64 `json:"start_location_lat"`
	StartLocationLng  float64 `json:"start_location_lng"`
	EndLocationName   string  `json:"end_location_name"`
	EndLocationLat    float64 `json:"end_location_lat"`
	EndLocationLng    float64 `json:"end_location_lng"`
	Distance          float64 `json:"distance"`
	DurationSeconds   int64   `json:"duration_seconds"`
	Saved             bool    `json:"saved"`
}

func routeToPayload(r model.Route) routePayload {
	return routePayload{
		ID:                r.ID.String(),
		StartLocationName: r.StartLocationName,
		StartLocationLat:  r.StartLocationLat,
		StartLocationLng:  r.StartLocationLng,
		EndLocationName:   r.EndLocationName,
		EndLocationLat:    r.EndLocationLat,
		EndLocationLng:    r.EndLocationLng,
		Distance:          r.Distance,
		DurationSeconds:   int64(r.Duration.Seconds()),
		Saved:             r.Saved,
	}
}

// ListRoutes returns the user's routes, newest first. An empty list is 200.
func (h *Handler) ListRoutes(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	routes, err := h.store.RoutesByUser(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	payload := make([]routePayload, 0, len(routes))
	for _, route := range routes {
		payload = append(payload, routeToPayload(route))
	}
	writeJSON(w, http.StatusOK, payload)
}

// CreateRoute stores a journey for the user.
func (h *Handler) CreateRoute(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	var req routePayload
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.StartLocationName == "" || req.EndLocationName == "" {
		writeError(w, http.StatusBadRequest, "start and end location names are required")
		return
	}

	route := &model.Route{
		UserID:            userID,
		StartLocationName: req.StartLocationName,
		StartLocationLat:  req.StartLocationLat,
		StartLocationLng:  req.StartLocationLng,
		EndLocationName:   req.EndLocationName,
		EndLocationLat:    req.EndLocationLat,
		EndLocationLng:    req.EndLocationLng,
		Distance:          req.Distance,
		Duration:          time.Duration(req.DurationSeconds) * time.Second,
		Saved:             req.Saved,
	}
	if err := h.store.CreateRoute(r.Context(), route); err != nil {
		h.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, routeToPayload(*route))
}

// DeleteRoute removes one of the user's routes.
func (h *Handler) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	h.deleteOwned(w, r, h.store.DeleteRoute)
}

type locationPayload struct {
	ID   string  `json:"id,omitempty"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lng  float64 `json:"lng"`
}

// ListLocations returns the user's searched locations. An empty history
// is 404; clients branch on it to skip rendering the panel.
func (h *Handler) ListLocations(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	locations, err := h.store.LocationsByUser(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if len(locations) == 0 {
		writeError(w, http.StatusNotFound, "no locations")
		return
	}
	payload := make([]locationPayload, 0, len(locations))
	for _, l := range locations {
		payload = append(payload, locationPayload{
			ID: l.ID.String(), Name: l.Name, Lat: l.Lat, Lng: l.Lng,
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

// CreateLocation records a looked-up point.
func (h *Handler) CreateLocation(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	var req locationPayload
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	location := &model.SearchedLocation{
		UserID: userID, Name: req.Name, Lat: req.Lat, Lng: req.Lng,
	}
	if err := h.store.CreateLocation(r.Context(), location); err != nil {
		h.writeEngineError(w, err)
		return
	}
	req.ID = location.ID.String()
	writeJSON(w, http.StatusCreated, req)
}

// DeleteLocation removes one searched location.
func (h *Handler) DeleteLocation(w http.ResponseWriter, r *http.Request) {
	h.deleteOwned(w, r, h.store.DeleteLocation)
}

type favRoutePayload struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

// ListFavRoutes returns the user's favourites; 404 when there are none,
// same contract as locations.
func (h *Handler) ListFavRoutes(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	favs, err := h.store.FavRoutesByUser(r.Context(), userID)
	if err != nil {
		h.writeEngineError(w, err)
		return
	}
	if len(favs) == 0 {
		writeError(w, http.StatusNotFound, "no favourite routes")
		return
	}
	payload := make([]favRoutePayload, 0, len(favs))
	for _, f := range favs {
		payload = append(payload, favRoutePayload{
			ID: f.ID.String(), Name: f.Name, Data: f.Data,
		})
	}
	writeJSON(w, http.StatusOK, payload)
}

// CreateFavRoute stores a named favourite with its opaque payload.
func (h *Handler) CreateFavRoute(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	var req favRoutePayload
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	fav := &model.FavRoute{UserID: userID, Name: req.Name, Data: req.Data}
	if err := h.store.CreateFavRoute(r.Context(), fav); err != nil {
		h.writeEngineError(w, err)
		return
	}
	req.ID = fav.ID.String()
	writeJSON(w, http.StatusCreated, req)
}

// DeleteFavRoute removes one favourite.
func (h *Handler) DeleteFavRoute(w http.ResponseWriter, r *http.Request) {
	h.deleteOwned(w, r, h.store.DeleteFavRoute)
}

type ownedDelete func(ctx context.Context, id, userID uuid.UUID) error

// deleteOwned parses the path ID and runs a user-scoped delete. 404 both
// for a missing row and for another user's row.
func (h *Handler) deleteOwned(w http.ResponseWriter, r *http.Request, del ownedDelete) {
	userID, ok := middleware.UserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}
	if err := del(r.Context(), id, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not found")
			return
		}
		h.writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
