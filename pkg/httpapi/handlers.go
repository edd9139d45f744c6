package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ammar0144/postloader/pkg/admin"
	"github.com/ammar0144/postloader/pkg/loader"
	"github.com/ammar0144/postloader/pkg/models"
)

var errBadRequest = errors.New("bad request")

type errorResponse struct {
	Error string `json:"error"`
}

type listResponse struct {
	Posts []models.Post `json:"posts"`
}

type countResponse struct {
	Count int64 `json:"count"`
}

type archiveResponse struct {
	Years []models.ArchiveYear `json:"years"`
}

type deletePostsRequest struct {
	IDs []int64 `json:"ids"`
}

type deletedResponse struct {
	Deleted int64 `json:"deleted"`
}

type changedResponse struct {
	Changed bool `json:"changed"`
}

// newLoader builds a request loader from the base configuration and the
// query string: fields=a,b selects fields (id is always kept),
// with=author,files,tags resolves associations, limit/offset page the list.
// A page is never larger than MaxPageSize, which is also the default limit.
func (s *Server) newLoader(r *http.Request) (*loader.Loader, error) {
	l := loader.New(s.deps.Store,
		loader.WithConfig(s.deps.Base),
		loader.WithCache(s.deps.Cache),
		loader.WithTimeZone(s.deps.Location),
		loader.WithLogger(s.deps.Logger),
		loader.WithMetrics(s.deps.Metrics),
	)
	q := r.URL.Query()

	if v := q.Get("fields"); v != "" {
		fields := []loader.Field{loader.FieldID}
		for _, name := range splitList(v) {
			f, err := loader.ParseField(name)
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
		if err := l.SetFields(fields...); err != nil {
			return nil, err
		}
	}

	for _, name := range splitList(q.Get("with")) {
		a, err := loader.ParseAssociation(name)
		if err != nil {
			return nil, err
		}
		if err := l.SetLoadAssociation(a, true); err != nil {
			return nil, err
		}
	}

	if q.Has("limit") || q.Has("offset") {
		limit, err := intParam(q.Get("limit"), 0)
		if err != nil {
			return nil, err
		}
		if limit == 0 {
			if cur := l.Config().Range; cur != nil {
				limit = cur.Limit
			}
		}
		// a page without a limit would drop the offset
		if limit == 0 || limit > s.deps.MaxPageSize {
			limit = s.deps.MaxPageSize
		}
		offset, err := intParam(q.Get("offset"), 0)
		if err != nil {
			return nil, err
		}
		if err := l.SetRange(limit, offset); err != nil {
			return nil, err
		}
	}

	return l, nil
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	l, err := s.newLoader(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	set, err := l.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	posts := set.Posts()
	if posts == nil {
		posts = []models.Post{}
	}
	writeJSON(w, http.StatusOK, listResponse{Posts: posts})
}

func (s *Server) countPosts(w http.ResponseWriter, r *http.Request) {
	l, err := s.newLoader(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	count, err := l.Count(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: count})
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "postID")
	if err != nil {
		s.writeError(w, err)
		return
	}
	l, err := s.newLoader(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	post, err := l.ByID(r.Context(), id)
	s.writePost(w, post, err)
}

func (s *Server) postByNaturalKey(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 1 {
		s.writeError(w, fmt.Errorf("%w: invalid year", errBadRequest))
		return
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		s.writeError(w, fmt.Errorf("%w: invalid month", errBadRequest))
		return
	}
	l, err := s.newLoader(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	date := time.Date(year, time.Month(month), 15, 12, 0, 0, 0, l.Location())
	post, err := l.ByNaturalKey(r.Context(), date, chi.URLParam(r, "shortname"))
	s.writePost(w, post, err)
}

func (s *Server) archive(w http.ResponseWriter, r *http.Request) {
	l, err := s.newLoader(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	years, err := l.ArchiveYears(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, archiveResponse{Years: years})
}

func (s *Server) deletePosts(w http.ResponseWriter, r *http.Request) {
	var req deletePostsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, fmt.Errorf("%w: %w", errBadRequest, err))
		return
	}
	n, err := s.deps.Admin.DeletePosts(r.Context(), req.IDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{Deleted: n})
}

func (s *Server) deleteComment(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "commentID")
	if err != nil {
		s.writeError(w, err)
		return
	}
	n, err := s.deps.Admin.DeleteComments(r.Context(), []int64{id})
	if err != nil {
		s.writeError(w, err)
		return
	}
	if n == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "comment not found"})
		return
	}
	writeJSON(w, http.StatusOK, deletedResponse{Deleted: n})
}

func (s *Server) attachFile(w http.ResponseWriter, r *http.Request) {
	s.fileVisibility(w, r, s.deps.Admin.AttachFile)
}

func (s *Server) detachFile(w http.ResponseWriter, r *http.Request) {
	s.fileVisibility(w, r, s.deps.Admin.DetachFile)
}

func (s *Server) fileVisibility(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) (bool, error)) {
	id, err := idParam(r, "fileID")
	if err != nil {
		s.writeError(w, err)
		return
	}
	changed, err := op(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, changedResponse{Changed: changed})
}

func (s *Server) deleteFile(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r, "fileID")
	if err != nil {
		s.writeError(w, err)
		return
	}
	ok, err := s.deps.Admin.DeleteFile(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "file not found"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writePost(w http.ResponseWriter, post *models.Post, err error) {
	if err != nil {
		s.writeError(w, err)
		return
	}
	if post == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "post not found"})
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// writeError maps domain errors to status codes
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errBadRequest), loader.IsConfiguration(err):
		status = http.StatusBadRequest
	case loader.IsStoreUnavailable(err):
		status = http.StatusServiceUnavailable
	case errors.Is(err, admin.ErrTenantMismatch):
		status = http.StatusForbidden
	}
	if status >= http.StatusInternalServerError {
		s.deps.Logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func idParam(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id < 1 {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return id, nil
}

func intParam(v string, def int) (int, error) {
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: invalid number %q", errBadRequest, v)
	}
	return n, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
