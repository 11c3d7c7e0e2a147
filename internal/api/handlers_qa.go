package api

import (
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/mux"

	"shaneshark.com/portfolio/internal/apperr"
	"shaneshark.com/portfolio/internal/qa"
	"shaneshark.com/portfolio/internal/store"
)

// ListQaHandler serves the public paged listing
func (s *Server) ListQaHandler(w http.ResponseWriter, r *http.Request) {
	q, err := parseQaQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.QA.ListPublic(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, page)
}

// TagsHandler returns the preset tag list
func (s *Server) TagsHandler(w http.ResponseWriter, r *http.Request) {
	writeOK(w, qa.Tags())
}

// GetQaHandler returns one entry and counts the view
func (s *Server) GetQaHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	info, err := s.QA.GetPublic(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, info)
}

func (s *Server) AdminListHandler(w http.ResponseWriter, r *http.Request) {
	q, err := parseQaQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}
	page, err := s.QA.ListAdmin(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, page)
}

func (s *Server) AdminGetQaHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	info, err := s.QA.GetAdmin(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, info)
}

func (s *Server) CreateQaHandler(w http.ResponseWriter, r *http.Request) {
	var req qa.CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	id, err := s.QA.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, id)
}

func (s *Server) UpdateQaHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req qa.UpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.QA.Update(r.Context(), id, req); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, true)
}

func (s *Server) DeleteQaHandler(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.QA.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeOK(w, true)
}

func pathID(r *http.Request) (store.ID, error) {
	id, err := store.ParseID(mux.Vars(r)["id"])
	if err != nil || id <= 0 {
		return 0, apperr.Params(ErrInvalidID)
	}
	return id, nil
}

// parseQaQuery reads current, pageSize, tag, keyword and isHot
func parseQaQuery(v url.Values) (store.QaQuery, error) {
	var q store.QaQuery
	var err error
	if q.Current, err = optionalInt(v, "current"); err != nil {
		return q, err
	}
	if q.PageSize, err = optionalInt(v, "pageSize"); err != nil {
		return q, err
	}
	q.Tag = v.Get("tag")
	q.Keyword = v.Get("keyword")
	if raw := v.Get("isHot"); raw != "" {
		hot, err := strconv.Atoi(raw)
		if err != nil || (hot != 0 && hot != 1) {
			return q, apperr.Params("isHot must be 0 or 1")
		}
		q.IsHot = &hot
	}
	return q, nil
}

func optionalInt(v url.Values, key string) (int64, error) {
	raw := v.Get(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, apperr.Params(key + " must be a number")
	}
	return n, nil
}
