package http

import (
	"net/http"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/pointtree/geom"
	"github.com/aukilabs/pointtree/models"
	"github.com/aukilabs/pointtree/rtree"
	"github.com/segmentio/encoding/json"
)

const (
	ErrTypeInvalidJSON = "invalid_json"

	maxRequestBodySize = 16 << 20
)

// IndexAPI serves the indexes of a store as a JSON API.
type IndexAPI struct {
	Store *models.IndexStore
}

// Register adds the API routes to mux.
func (a *IndexAPI) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /indexes", a.handleCreate)
	mux.HandleFunc("GET /indexes", a.handleList)
	mux.HandleFunc("GET /indexes/{id}", a.withIndex(a.handleGet))
	mux.HandleFunc("DELETE /indexes/{id}", a.handleRemove)
	mux.HandleFunc("POST /indexes/{id}/points", a.withIndex(a.handleInsert))
	mux.HandleFunc("DELETE /indexes/{id}/points", a.withIndex(a.handleDelete))
	mux.HandleFunc("POST /indexes/{id}/find", a.withIndex(a.handleFind))
	mux.HandleFunc("POST /indexes/{id}/query", a.withIndex(a.handleQuery))
	mux.HandleFunc("POST /indexes/{id}/subdivide", a.withIndex(a.handleSubdivide))
	mux.HandleFunc("POST /indexes/{id}/resize", a.withIndex(a.handleResize))
	mux.HandleFunc("POST /indexes/{id}/rebuild", a.withIndex(a.handleRebuild))
}

type createIndexRequest struct {
	Name          string  `json:"name"`
	MaxDispersion float64 `json:"max_dispersion"`
	RebuildRatio  float64 `json:"rebuild_ratio"`
}

type listIndexesResponse struct {
	Indexes []models.IndexInfo `json:"indexes"`
}

type insertRequest struct {
	Points []geom.Point `json:"points"`
	Bulk   bool         `json:"bulk"`
}

type pointRequest struct {
	Point *geom.Point `json:"point"`
}

type deleteResponse struct {
	Removed int `json:"removed"`
}

type queryRequest struct {
	Min *geom.Point `json:"min"`
	Max *geom.Point `json:"max"`
}

type queryResponse struct {
	Points []geom.Point `json:"points"`
	Count  int          `json:"count"`
}

type subdivideResponse struct {
	Split bool `json:"split"`
}

type resizeResponse struct {
	RebuildRecommended bool `json:"rebuild_recommended"`
}

type errorResponse struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (a *IndexAPI) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createIndexRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var opts []rtree.Option
	if req.MaxDispersion != 0 {
		if req.MaxDispersion < 0 {
			writeError(w, r, errors.New("max dispersion must be positive").
				WithType(rtree.ErrTypeInvalidInput).
				WithTag("max_dispersion", req.MaxDispersion))
			return
		}
		opts = append(opts, rtree.WithMaxDispersion(req.MaxDispersion))
	}
	if req.RebuildRatio != 0 {
		if req.RebuildRatio < 1 {
			writeError(w, r, errors.New("rebuild ratio must be at least 1").
				WithType(rtree.ErrTypeInvalidInput).
				WithTag("rebuild_ratio", req.RebuildRatio))
			return
		}
		opts = append(opts, rtree.WithRebuildRatio(req.RebuildRatio))
	}

	index, err := a.Store.New(req.Name, opts...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, index.Info())
}

func (a *IndexAPI) handleList(w http.ResponseWriter, r *http.Request) {
	indexes := a.Store.List()

	res := listIndexesResponse{
		Indexes: make([]models.IndexInfo, 0, len(indexes)),
	}
	for _, index := range indexes {
		res.Indexes = append(res.Indexes, index.Info())
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *IndexAPI) handleGet(w http.ResponseWriter, r *http.Request, index *models.Index) {
	writeJSON(w, http.StatusOK, index.Info())
}

func (a *IndexAPI) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := a.Store.Remove(r.PathValue("id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *IndexAPI) handleInsert(w http.ResponseWriter, r *http.Request, index *models.Index) {
	var req insertRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	insert := index.Insert
	if req.Bulk {
		insert = index.BulkInsert
	}

	res, err := insert(req.Points)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *IndexAPI) handleDelete(w http.ResponseWriter, r *http.Request, index *models.Index) {
	p, err := decodePoint(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	removed, err := index.Delete(p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Removed: removed})
}

func (a *IndexAPI) handleFind(w http.ResponseWriter, r *http.Request, index *models.Index) {
	p, err := decodePoint(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	res, err := index.Find(p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *IndexAPI) handleQuery(w http.ResponseWriter, r *http.Request, index *models.Index) {
	var req queryRequest
	if err := decodeRequest(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Min == nil || req.Max == nil {
		writeError(w, r, errors.New("query box requires min and max").
			WithType(rtree.ErrTypeInvalidInput))
		return
	}

	points, err := index.Query(geom.NewRect(*req.Min, *req.Max))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Points: points,
		Count:  len(points),
	})
}

func (a *IndexAPI) handleSubdivide(w http.ResponseWriter, r *http.Request, index *models.Index) {
	writeJSON(w, http.StatusOK, subdivideResponse{Split: index.Subdivide()})
}

func (a *IndexAPI) handleResize(w http.ResponseWriter, r *http.Request, index *models.Index) {
	writeJSON(w, http.StatusOK, resizeResponse{RebuildRecommended: index.Resize()})
}

func (a *IndexAPI) handleRebuild(w http.ResponseWriter, r *http.Request, index *models.Index) {
	index.Rebuild()
	writeJSON(w, http.StatusOK, index.Info())
}

func (a *IndexAPI) withIndex(h func(http.ResponseWriter, *http.Request, *models.Index)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := a.Store.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, r, err)
			return
		}
		h(w, r, index)
	}
}

func decodeRequest(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("decoding request body failed").
			WithType(ErrTypeInvalidJSON).
			Wrap(err)
	}
	return nil
}

func decodePoint(w http.ResponseWriter, r *http.Request) (geom.Point, error) {
	var req pointRequest
	if err := decodeRequest(w, r, &req); err != nil {
		return geom.Point{}, err
	}
	if req.Point == nil {
		return geom.Point{}, errors.New("missing point").
			WithType(rtree.ErrTypeInvalidInput)
	}
	return *req.Point, nil
}

// StatusCode returns the HTTP status that reports err.
func StatusCode(err error) int {
	switch errors.Type(err) {
	case rtree.ErrTypeInvalidInput, ErrTypeInvalidJSON:
		return http.StatusBadRequest

	case rtree.ErrTypeUnsupportedOperation, models.ErrTypeIndexAlreadyExists:
		return http.StatusConflict

	case rtree.ErrTypeNotFound, models.ErrTypeIndexNotFound:
		return http.StatusNotFound

	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusCode(err)

	if status >= http.StatusInternalServerError {
		logs.Warn(errors.New("http request failed").
			WithTag("method", r.Method).
			WithTag("path", r.URL.Path).
			Wrap(err))
	} else {
		logs.WithTag("method", r.Method).
			WithTag("path", r.URL.Path).
			WithTag("status", status).
			WithTag("error_type", errors.Type(err)).
			Debug("http request rejected")
	}

	writeJSON(w, status, errorResponse{
		Type:    errors.Type(err),
		Message: err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		logs.Warn(errors.New("encoding http response failed").Wrap(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}
