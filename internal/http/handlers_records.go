package http

import (
	"net/http"

	"blackout/internal/auth"
	"blackout/internal/core"
	"blackout/internal/log"
	"blackout/internal/services"
)

// handleCreate serves POST /api/{kind}/create.
func (s *Server) handleCreate(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := auth.OwnerFromContext(r.Context())
		if !ok {
			UnauthorizedError("authentication required").Write(w)
			return
		}
		var req recordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			BadRequestError("invalid request body: " + err.Error()).Write(w)
			return
		}

		out := s.finance.Create(r.Context(), services.CreateIntent{Owner: owner, Kind: kind, Fields: req.Fields()})
		if out.Err != nil {
			s.writeOutcomeError(w, r, out)
			return
		}
		NewResponse().Status(http.StatusCreated).JSON(newRecordView(out.Record)).Write(w)
	}
}

// handleList serves GET /api/{kind}.
func (s *Server) handleList(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := auth.OwnerFromContext(r.Context())
		if !ok {
			UnauthorizedError("authentication required").Write(w)
			return
		}

		out := s.finance.List(r.Context(), owner, kind)
		if out.Err != nil {
			s.writeOutcomeError(w, r, out)
			return
		}
		NewResponse().JSON(map[string]any{collectionName(kind): newRecordViews(out.Records)}).Write(w)
	}
}

// handleUpdate serves PUT /api/{kind}/{id}.
func (s *Server) handleUpdate(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := auth.OwnerFromContext(r.Context())
		if !ok {
			UnauthorizedError("authentication required").Write(w)
			return
		}
		id, err := parseID(r)
		if err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}
		var req recordRequest
		if err := decodeJSON(w, r, &req); err != nil {
			BadRequestError("invalid request body: " + err.Error()).Write(w)
			return
		}

		out := s.finance.Update(r.Context(), services.UpdateIntent{Owner: owner, Kind: kind, ID: id, Fields: req.Fields()})
		if out.Err != nil {
			s.writeOutcomeError(w, r, out)
			return
		}
		NewResponse().JSON(newRecordView(out.Record)).Write(w)
	}
}

// handleDelete serves DELETE /api/{kind}/{id}.
func (s *Server) handleDelete(kind core.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner, ok := auth.OwnerFromContext(r.Context())
		if !ok {
			UnauthorizedError("authentication required").Write(w)
			return
		}
		id, err := parseID(r)
		if err != nil {
			BadRequestError(err.Error()).Write(w)
			return
		}

		out := s.finance.Delete(r.Context(), services.DeleteIntent{Owner: owner, Kind: kind, ID: id})
		if out.Err != nil {
			s.writeOutcomeError(w, r, out)
			return
		}
		NewResponse().JSON(map[string]any{
			"message": kind.String() + " deleted",
			"record":  newRecordView(out.Record),
		}).Write(w)
	}
}

// handleTotals serves GET /api/finance.
func (s *Server) handleTotals(w http.ResponseWriter, r *http.Request) {
	owner, ok := auth.OwnerFromContext(r.Context())
	if !ok {
		UnauthorizedError("authentication required").Write(w)
		return
	}

	out := s.finance.Totals(r.Context(), owner)
	if out.Err != nil {
		s.writeOutcomeError(w, r, out)
		return
	}
	NewResponse().JSON(newTotalsView(out.Totals)).Write(w)
}

// writeOutcomeError maps a rejected or failed intent to its response.
// Persistence details are logged, never returned.
func (s *Server) writeOutcomeError(w http.ResponseWriter, r *http.Request, out services.Outcome) {
	switch out.Status {
	case services.StatusInvalid:
		BadRequestError(out.Err.Error()).Write(w)
	case services.StatusInsufficientBalance:
		InsufficientBalanceError(out.Err.Error()).Write(w)
	case services.StatusNotFound:
		NotFoundError("record not found").Write(w)
	default:
		log.FromContext(r.Context()).WithComponent(log.ComponentHTTP).ErrorContext(r.Context(),
			"Request failed", log.FieldPath, r.URL.Path, log.FieldError, out.Err)
		InternalServerError("internal error, please retry").Write(w)
	}
}
