package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/orderdesk/api/internal/services"
)

type locationRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// LocationHandlers manages stock locations.
type LocationHandlers struct {
	locations services.LocationService
}

// NewLocationHandlers constructs location handlers.
func NewLocationHandlers(locations services.LocationService) *LocationHandlers {
	return &LocationHandlers{locations: locations}
}

// Routes registers the /locations endpoints.
func (h *LocationHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createLocation)
	r.Get("/", h.listLocations)
}

func (h *LocationHandlers) createLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.locations == nil {
		writeUnavailable(ctx, w, "location")
		return
	}
	var req locationRequest
	if !decodeBody(w, r, &req) {
		return
	}
	location, err := h.locations.CreateLocation(ctx, services.CreateLocationCommand{Name: req.Name, Address: req.Address})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, map[string]any{"location": buildLocationPayload(location)})
}

func (h *LocationHandlers) listLocations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.locations == nil {
		writeUnavailable(ctx, w, "location")
		return
	}
	locations, err := h.locations.ListLocations(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]locationPayload, 0, len(locations))
	for _, location := range locations {
		items = append(items, buildLocationPayload(location))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"items": items})
}
