package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/beariot/beariot/internal/device"
	"github.com/beariot/beariot/internal/docstore"
	"github.com/beariot/beariot/pkg/models"
)

// Health check
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "beariot",
		"time":    time.Now().UTC(),
	})
}

// Device handlers

func (s *Server) listDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := device.ListDevices(r.Context(), s.store)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, devices)
}

func (s *Server) getDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	docs, err := s.store.ReadDocument(r.Context(), docstore.CollectionDevice, docstore.Query{"_id": id})
	if err != nil {
		respondStoreError(w, err)
		return
	}
	if len(docs) == 0 {
		respondError(w, http.StatusNotFound, "Device not found")
		return
	}

	var dev models.Device
	if err := json.Unmarshal(docs[0], &dev); err != nil {
		respondError(w, http.StatusInternalServerError, "Corrupt device record")
		return
	}
	respondJSON(w, http.StatusOK, dev)
}

// View handlers

func (s *Server) createView(w http.ResponseWriter, r *http.Request) {
	var dev models.Device
	if err := json.NewDecoder(r.Body).Decode(&dev); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	v, err := s.views.Create(r.Context(), &dev)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, v.Manager.Device())
}

func (s *Server) openView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, err := s.views.Open(r.Context(), id)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, v.Manager.Device())
}

func (s *Server) closeView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.views.Close(id) {
		respondError(w, http.StatusNotFound, "View not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getView(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"device": v.Manager.Device(),
		"dirty":  v.Manager.Dirty(),
		"saved":  v.Manager.Persisted(),
	})
}

// Save handlers

func (s *Server) saveLayout(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}

	saved, err := v.Manager.SaveLayout(r.Context())
	if err != nil {
		if errors.Is(err, device.ErrNothingToSave) {
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"changed": false,
				"device":  v.Manager.Device(),
			})
			return
		}
		respondStoreError(w, err)
		return
	}

	v.syncScheduler()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"changed": true,
		"device":  saved,
	})
}

func (s *Server) saveConfiguration(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}

	var body struct {
		Confirmed bool `json:"confirmed"`
	}
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}

	saved, err := v.Manager.SaveConfiguration(r.Context(), body.Confirmed)
	if err != nil {
		if errors.Is(err, device.ErrConfirmationRequired) {
			respondError(w, http.StatusConflict, "Saving increments the revision and adds a tag; confirm to proceed")
			return
		}
		respondStoreError(w, err)
		return
	}

	v.syncScheduler()
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) deleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, ok := s.view(w, r)
	if !ok {
		return
	}

	if err := v.Manager.Delete(r.Context()); err != nil {
		respondStoreError(w, err)
		return
	}
	s.views.Close(id)
	w.WriteHeader(http.StatusNoContent)
}

// Tag handlers

func (s *Server) updateTag(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid tag index")
		return
	}

	var tag models.Tag
	if err := json.NewDecoder(r.Body).Decode(&tag); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if err := v.Manager.UpdateTag(index, tag); err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	v.syncScheduler()
	respondJSON(w, http.StatusOK, v.Manager.Device())
}

func (s *Server) deleteTag(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid tag index")
		return
	}

	saved, err := v.Manager.DeleteTag(r.Context(), index)
	if err != nil {
		respondStoreError(w, err)
		return
	}
	v.syncScheduler()
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) moveElement(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}

	var body struct {
		Target string  `json:"target"`
		DX     float64 `json:"dx"`
		DY     float64 `json:"dy"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	v.Manager.ApplyDelta(body.Target, body.DX, body.DY)
	respondJSON(w, http.StatusOK, v.Manager.Device())
}

// Script handlers

func (s *Server) testScript(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}

	var body struct {
		Script string `json:"script"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	value, err := v.Scheduler.EvaluateOnce(r.Context(), body.Script)
	if err != nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{
			"ok":    false,
			"error": err.Error(),
		})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"ok":    true,
		"value": value,
	})
}

// Data handlers

type tagResultResponse struct {
	Label string      `json:"label"`
	Value interface{} `json:"value,omitempty"`
	Error string      `json:"error,omitempty"`
}

func (s *Server) getResults(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}

	dev := v.Manager.Device()
	results := v.Scheduler.Results()

	out := make([]tagResultResponse, 0, len(dev.Tags))
	for i, tag := range dev.Tags {
		resp := tagResultResponse{Label: tag.Label}
		if res, ok := results[i]; ok {
			if res.Err != nil {
				resp.Error = res.Err.Message
			} else {
				resp.Value = res.Value
			}
		}
		out = append(out, resp)
	}
	respondJSON(w, http.StatusOK, out)
}

func (s *Server) getLiveData(w http.ResponseWriter, r *http.Request) {
	v, ok := s.view(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, v.Scheduler.Live())
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	v, ok := s.view(w, r)
	if !ok {
		return
	}

	date := r.URL.Query().Get("date")
	if date == "" {
		respondError(w, http.StatusBadRequest, "Missing date parameter")
		return
	}

	v.Chart.SelectDate(r.Context(), id, date)

	state, selected, samples, err := v.Chart.Snapshot()
	resp := map[string]interface{}{
		"state": state,
		"date":  selected,
	}
	if err != nil {
		resp["error"] = err.Error()
	}
	if samples != nil {
		resp["samples"] = samples
	}
	respondJSON(w, http.StatusOK, resp)
}

// view resolves the open view for the request, responding 404 when it is
// not open.
func (s *Server) view(w http.ResponseWriter, r *http.Request) (*View, bool) {
	id := chi.URLParam(r, "id")
	v, ok := s.views.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "View not found")
		return nil, false
	}
	return v, true
}

// respondStoreError maps domain and persistence errors to HTTP statuses.
func respondStoreError(w http.ResponseWriter, err error) {
	var validationErr *device.ValidationError
	var notFoundErr *docstore.NotFoundError
	var persistErr *docstore.PersistenceError

	switch {
	case errors.As(err, &validationErr):
		respondError(w, http.StatusBadRequest, validationErr.Error())
	case errors.As(err, &notFoundErr):
		respondError(w, http.StatusNotFound, notFoundErr.Error())
	case errors.As(err, &persistErr):
		respondError(w, http.StatusBadGateway, persistErr.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   http.StatusText(status),
		"message": message,
	})
}
