// Package api provides HTTP handlers for SafeBot endpoints.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/campussafe/safebot/internal/models"
)

// incidentsHandler routes POST (public submission) and GET (admin listing)
// on /api/incidents.
func (s *Server) incidentsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	switch r.Method {
	case http.MethodPost:
		s.createIncidentHandler(w, r)
	case http.MethodGet:
		s.requireAdmin(s.listIncidentsHandler)(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Server.incidentsHandler: method not allowed", "method", r.Method)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
	}
}

// createIncidentHandler handles direct report submission from the web form
// (POST /api/incidents). Web reports carry a contact email instead of a
// verified chat identity.
func (s *Server) createIncidentHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.createIncidentHandler: processing submission", "path", r.URL.Path)
	var incident models.Incident
	if err := json.NewDecoder(r.Body).Decode(&incident); err != nil {
		slog.Warn("Server.createIncidentHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}

	now := time.Now()
	incident.ID = uuid.NewString()
	incident.Status = models.IncidentStatusPending
	incident.CreatedAt = now
	incident.UpdatedAt = now
	if incident.Urgency == "" {
		incident.Urgency = models.DefaultUrgency
	}

	if err := incident.Validate(); err != nil {
		slog.Warn("Server.createIncidentHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.st.AddIncident(incident); err != nil {
		slog.Error("Server.createIncidentHandler: failed to store incident", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to store incident"))
		return
	}

	slog.Info("Server.createIncidentHandler: incident stored", "incidentID", incident.ID, "category", incident.Category)
	writeJSONResponse(w, http.StatusCreated, models.SuccessWithMessage("Incident reported successfully", map[string]string{"id": incident.ID}))
}

// listIncidentsHandler returns all reports, newest first (GET /api/incidents).
func (s *Server) listIncidentsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.listIncidentsHandler: processing request", "path", r.URL.Path)
	incidents, err := s.st.GetIncidents()
	if err != nil {
		slog.Error("Server.listIncidentsHandler: failed to fetch incidents", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch incidents"))
		return
	}
	slog.Debug("Server.listIncidentsHandler: incidents fetched", "count", len(incidents))
	writeJSONResponse(w, http.StatusOK, models.Success(incidents))
}

// incidentHandler handles single-report lookup (GET /api/incidents/{id}).
func (s *Server) incidentHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
		return
	}
	s.requireAdmin(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/api/incidents/")
		if id == "" || strings.Contains(id, "/") {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Unknown incident endpoint"))
			return
		}
		incident, err := s.st.GetIncident(id)
		if err != nil {
			slog.Error("Server.incidentHandler: failed to fetch incident", "error", err, "id", id)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to fetch incident"))
			return
		}
		if incident == nil {
			writeJSONResponse(w, http.StatusNotFound, models.Error("Incident not found"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(incident))
	})(w, r)
}

// healthHandler provides a health check endpoint for monitoring and load balancing
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	healthData := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}

	// Storage reachability is the health indicator.
	if _, err := s.st.GetIncidents(); err != nil {
		slog.Warn("Health check: store unreachable", "error", err)
		healthData["status"] = "degraded"
		healthData["error"] = "Failed to reach storage backend"
	}

	statusCode := http.StatusOK
	if healthData["status"] == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSONResponse(w, statusCode, healthData)
}
