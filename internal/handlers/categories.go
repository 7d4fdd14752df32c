// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package handlers contains the HTTP handlers for the category taxonomy.
// Handlers receive their dependencies through the handler struct and speak
// JSON only.
package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"taxonomy/internal/models"
	"taxonomy/internal/taxonomy"
	"taxonomy/internal/tree"
)

// Categories groups the category HTTP handlers.
type Categories struct {
	svc       *taxonomy.Service
	depthStep int
}

// NewCategories creates the handler group. depthStep is the default
// indentation of the flat view.
func NewCategories(svc *taxonomy.Service, depthStep int) *Categories {
	if depthStep < 0 {
		depthStep = tree.DefaultDepthStep
	}
	return &Categories{svc: svc, depthStep: depthStep}
}

type createRequest struct {
	Name          string     `json:"name" validate:"required,max=255"`
	AlternateName string     `json:"alternate_name" validate:"max=255"`
	ParentID      *uuid.UUID `json:"parent_id"`
	ImageRef      string     `json:"image_ref" validate:"max=255"`
}

type updateRequest struct {
	Name          *string `json:"name" validate:"omitempty,max=255"`
	AlternateName *string `json:"alternate_name" validate:"omitempty,max=255"`
	ImageRef      *string `json:"image_ref" validate:"omitempty,max=255"`
	IsActive      *bool   `json:"is_active"`
	Cascade       bool    `json:"cascade"`
}

type moveRequest struct {
	NewParentID *uuid.UUID `json:"new_parent_id"`
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// List serves GET /categories?view=tree|flat&active=&step=.
func (h *Categories) List(w http.ResponseWriter, r *http.Request) {
	activeOnly, err := boolParam(r, "active", false)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	switch view := r.URL.Query().Get("view"); view {
	case "", "tree":
		forest, err := h.svc.Forest(r.Context(), activeOnly)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if forest == nil {
			forest = []*tree.Node{}
		}
		writeJSON(w, http.StatusOK, forest)

	case "flat":
		step := h.depthStep
		if raw := r.URL.Query().Get("step"); raw != "" {
			step, err = strconv.Atoi(raw)
			if err != nil || step < 0 {
				writeBadRequest(w, "step must be a non-negative integer")
				return
			}
		}
		rows, err := h.svc.Flat(r.Context(), activeOnly, step)
		if err != nil {
			writeError(w, r, err)
			return
		}
		if rows == nil {
			rows = []tree.FlatRow{}
		}
		writeJSON(w, http.StatusOK, rows)

	default:
		writeBadRequest(w, "view must be tree or flat")
	}
}

// Roots serves GET /categories/roots.
func (h *Categories) Roots(w http.ResponseWriter, r *http.Request) {
	h.children(w, r, nil)
}

// Children serves GET /categories/{id}/children.
func (h *Categories) Children(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	h.children(w, r, &id)
}

func (h *Categories) children(w http.ResponseWriter, r *http.Request, parentID *uuid.UUID) {
	activeOnly, err := boolParam(r, "active", false)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	rows, err := h.svc.Children(r.Context(), parentID, activeOnly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rows == nil {
		rows = []models.Category{}
	}
	writeJSON(w, http.StatusOK, rows)
}

// Get serves GET /categories/{id}.
func (h *Categories) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	c, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// GetBySlug serves GET /categories/slug/{slug}.
func (h *Categories) GetBySlug(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.GetBySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Create serves POST /categories.
func (h *Categories) Create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	c, err := h.svc.Create(r.Context(), taxonomy.CreateInput{
		Name:          req.Name,
		AlternateName: req.AlternateName,
		ParentID:      req.ParentID,
		ImageRef:      req.ImageRef,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	slog.Info("category created", "id", c.ID, "slug", c.Slug)
	w.Header().Set("Location", "/categories/"+c.ID.String())
	writeJSON(w, http.StatusCreated, c)
}

// Update serves PATCH /categories/{id}. Slug and parent are not editable
// here; they have their own endpoints.
func (h *Categories) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	c, err := h.svc.Update(r.Context(), id, taxonomy.UpdateInput{
		Name:          req.Name,
		AlternateName: req.AlternateName,
		ImageRef:      req.ImageRef,
		IsActive:      req.IsActive,
		Cascade:       req.Cascade,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Move serves POST /categories/{id}/move. A missing or null new_parent_id
// makes the category a root.
func (h *Categories) Move(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	var req moveRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	c, err := h.svc.Move(r.Context(), id, req.NewParentID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// RegenerateSlug serves POST /categories/{id}/slug.
func (h *Categories) RegenerateSlug(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	c, err := h.svc.RegenerateSlug(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Delete serves DELETE /categories/{id}?cascade=bool.
func (h *Categories) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r)
	if !ok {
		return
	}
	cascade, err := boolParam(r, "cascade", false)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := h.svc.Delete(r.Context(), id, cascade); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// idParam parses the {id} URL parameter, writing a 400 on failure.
func idParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

func boolParam(r *http.Request, name string, fallback bool) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New(name + " must be true or false")
	}
	return v, nil
}

// statusFor maps a taxonomy error code to an HTTP status.
func statusFor(code string) int {
	switch code {
	case taxonomy.CodeValidation:
		return http.StatusBadRequest
	case taxonomy.CodeNotFound, taxonomy.CodeParentNotFound:
		return http.StatusNotFound
	case taxonomy.CodeDuplicateSlug, taxonomy.CodeCycleDetected, taxonomy.CodeHasActiveChildren:
		return http.StatusConflict
	case taxonomy.CodeTooDeep:
		return http.StatusUnprocessableEntity
	case taxonomy.CodeConflict:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps err to a status and JSON envelope. Internal errors are
// logged and their text withheld from the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := taxonomy.Code(err)
	status := statusFor(code)
	msg := err.Error()

	switch status {
	case http.StatusInternalServerError:
		slog.Error("request failed",
			"request_id", chimw.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		msg = "internal server error"
	case http.StatusServiceUnavailable:
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: taxonomy.CodeValidation})
}

// writeJSON sends a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
