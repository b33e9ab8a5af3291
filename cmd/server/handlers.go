package main

import (
	"fmt"
	"net/http"

	"github.com/lychee-technology/tabula"
)

// templatePayload is the request body of POST .../templates.
type templatePayload struct {
	Template *tabula.Template `json:"template"`
	Fields   []*tabula.Field  `json:"fields"`
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, err.Error())
			return
		}
	}
	writeSuccess(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleFieldTypes handles GET /api/v1/field_types
func (s *Server) handleFieldTypes(w http.ResponseWriter, r *http.Request) {
	writeSuccess(w, http.StatusOK, s.engine.FieldTypes())
}

// handleCreateTemplate handles POST /api/v1/{tenant}/{project}/templates
func (s *Server) handleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var payload templatePayload
	if err := readJSONBody(r, &payload); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}
	if payload.Template == nil {
		writeError(w, http.StatusBadRequest, "template is required")
		return
	}
	payload.Template.TenantID = r.PathValue("tenant")
	payload.Template.ProjectID = r.PathValue("project")

	result, err := s.engine.CreateTemplate(r.Context(), payload.Template, payload.Fields)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeSuccess(w, http.StatusCreated, result)
}

// handleListTemplates handles GET /api/v1/{tenant}/{project}/templates
func (s *Server) handleListTemplates(w http.ResponseWriter, r *http.Request) {
	templates, err := s.engine.ListTemplates(r.Context(), r.PathValue("tenant"), r.PathValue("project"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, templates)
}

// handleGetTemplate handles GET /api/v1/{tenant}/{project}/templates/{name}
func (s *Server) handleGetTemplate(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.engine.GetTemplateByName(r.Context(),
		r.PathValue("tenant"), r.PathValue("project"), r.PathValue("name"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}

	fields, err := s.engine.GetFields(r.Context(), tpl.ID)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, templatePayload{Template: tpl, Fields: fields})
}

// handleUpdateTemplate handles PUT /api/v1/templates/{id}
func (s *Server) handleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var values map[string]any
	if err := readJSONBody(r, &values); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	result, err := s.engine.UpdateTemplate(r.Context(), id, values)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// handleDeleteTemplate handles DELETE /api/v1/templates/{id}
func (s *Server) handleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.engine.DeleteTemplate(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// handleSyncTemplate handles POST /api/v1/templates/{id}/sync
func (s *Server) handleSyncTemplate(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sync, err := s.engine.SyncTemplate(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, sync)
}

// handleGetFields handles GET /api/v1/templates/{id}/fields
func (s *Server) handleGetFields(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	fields, err := s.engine.GetFields(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, fields)
}

// handleAddField handles POST /api/v1/templates/{id}/fields
func (s *Server) handleAddField(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var field tabula.Field
	if err := readJSONBody(r, &field); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	result, err := s.engine.AddField(r.Context(), id, &field)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeSuccess(w, http.StatusCreated, result)
}

// handleUpdateField handles PUT /api/v1/fields/{id}
func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var values map[string]any
	if err := readJSONBody(r, &values); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	result, err := s.engine.UpdateField(r.Context(), id, values)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// handleDeleteField handles DELETE /api/v1/fields/{id}
func (s *Server) handleDeleteField(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.engine.DeleteField(r.Context(), id)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, result)
}

// handleCreateRecord handles POST /api/v1/{tenant}/{project}/records/{template}
func (s *Server) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	var values tabula.Record
	if err := readJSONBody(r, &values); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid json body: %v", err))
		return
	}

	record, err := s.engine.CreateRecord(r.Context(),
		r.PathValue("tenant"), r.PathValue("project"), r.PathValue("template"), values)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeSuccess(w, http.StatusCreated, record)
}

// handleListRecords handles GET /api/v1/{tenant}/{project}/records/{template}
func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r.URL.Query())

	records, err := s.engine.ListRecords(r.Context(),
		r.PathValue("tenant"), r.PathValue("project"), r.PathValue("template"), limit, offset)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, records)
}

// handleGetRecord handles GET /api/v1/{tenant}/{project}/records/{template}/{id}
func (s *Server) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := s.engine.GetRecord(r.Context(),
		r.PathValue("tenant"), r.PathValue("project"), r.PathValue("template"), id)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, record)
}

// handleGetRecordByUUID handles GET /api/v1/{tenant}/{project}/records/{template}/uuid/{uuid}
func (s *Server) handleGetRecordByUUID(w http.ResponseWriter, r *http.Request) {
	record, err := s.engine.GetRecordByUUID(r.Context(),
		r.PathValue("tenant"), r.PathValue("project"), r.PathValue("template"), r.PathValue("uuid"))
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, record)
}

// handleDeleteRecord handles DELETE /api/v1/{tenant}/{project}/records/{template}/{id}
func (s *Server) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.engine.DeleteRecord(r.Context(),
		r.PathValue("tenant"), r.PathValue("project"), r.PathValue("template"), id); err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, map[string]any{"deleted": id})
}

// handleSearchReferences handles GET /api/v1/{tenant}/{project}/references/{template}/{field}?q=...
func (s *Server) handleSearchReferences(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := parsePagination(query)

	records, err := s.engine.SearchReferenceTargets(r.Context(),
		r.PathValue("tenant"), r.PathValue("project"),
		r.PathValue("template"), r.PathValue("field"), query.Get("q"), limit)
	if err != nil {
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeSuccess(w, http.StatusOK, records)
}
