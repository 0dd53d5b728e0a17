package web

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/VehicleTaxonomy/internal/core"
)

// maxJSONBody bounds the body of add commands.
const maxJSONBody = 64 << 10

type addRequest struct {
	Name string `json:"Name"`
}

type addVariantRequest struct {
	Name           string `json:"Name"`
	FuelCategory   string `json:"FuelCategory"`
	EngineSizeInCC *int   `json:"EngineSizeInCC"`
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %w", errBadBody, err)
	}
	return nil
}

// reply writes a command result, or the error if the command failed.
func reply[T any](s *Server, w http.ResponseWriter, r *http.Request, resp core.CommandResponse[T], err error) {
	if err != nil {
		s.respondError(w, r, err, errorStatus(err))
		return
	}
	writeCommand(w, resp)
}

// Makes

func (s *Server) handleListMakes(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.ListMakes(r.Context())
	reply(s, w, r, resp, err)
}

func (s *Server) handleAddMake(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	resp, err := s.service.AddMake(r.Context(), req.Name)
	reply(s, w, r, resp, err)
}

func (s *Server) handleIsMakeUnique(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.IsMakeUnique(r.Context(), r.URL.Query().Get("name"))
	reply(s, w, r, resp, err)
}

func (s *Server) handleDeleteMake(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.DeleteMake(r.Context(), chi.URLParam(r, "makeID"))
	reply(s, w, r, resp, err)
}

// Models

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.ListModels(r.Context(), chi.URLParam(r, "makeID"))
	reply(s, w, r, resp, err)
}

func (s *Server) handleAddModel(w http.ResponseWriter, r *http.Request) {
	var req addRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}
	resp, err := s.service.AddModel(r.Context(), chi.URLParam(r, "makeID"), req.Name)
	reply(s, w, r, resp, err)
}

func (s *Server) handleIsModelUnique(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.IsModelUnique(r.Context(), chi.URLParam(r, "makeID"), r.URL.Query().Get("name"))
	reply(s, w, r, resp, err)
}

func (s *Server) handleDeleteModel(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.DeleteModel(r.Context(), chi.URLParam(r, "makeID"), chi.URLParam(r, "modelID"))
	reply(s, w, r, resp, err)
}

// Variants

func (s *Server) handleListVariants(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.ListVariants(r.Context(), chi.URLParam(r, "makeID"), chi.URLParam(r, "modelID"))
	reply(s, w, r, resp, err)
}

func (s *Server) handleAddVariant(w http.ResponseWriter, r *http.Request) {
	var req addVariantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, r, err, http.StatusBadRequest)
		return
	}

	v := core.NewVariant{
		MakeID:         chi.URLParam(r, "makeID"),
		ModelID:        chi.URLParam(r, "modelID"),
		Name:           req.Name,
		EngineSizeInCC: req.EngineSizeInCC,
	}
	if req.FuelCategory != "" {
		v.FuelCategory = core.ParseFuelCategory(req.FuelCategory)
	}
	resp, err := s.service.AddVariant(r.Context(), v)
	reply(s, w, r, resp, err)
}

func (s *Server) handleIsVariantUnique(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.IsVariantUnique(r.Context(),
		chi.URLParam(r, "makeID"), chi.URLParam(r, "modelID"), r.URL.Query().Get("name"))
	reply(s, w, r, resp, err)
}

func (s *Server) handleDeleteVariant(w http.ResponseWriter, r *http.Request) {
	resp, err := s.service.DeleteVariant(r.Context(),
		chi.URLParam(r, "makeID"), chi.URLParam(r, "modelID"), chi.URLParam(r, "variantID"))
	reply(s, w, r, resp, err)
}
