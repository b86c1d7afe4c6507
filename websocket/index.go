package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pointtree/geom"
	"github.com/aukilabs/pointtree/models"
	"github.com/aukilabs/pointtree/rtree"
	"github.com/google/uuid"
	"golang.org/x/net/websocket"
)

// HeaderClientID is the HTTP header where clients can give their id.
const HeaderClientID = "X-Client-ID"

// IndexHandler serves the indexes of a store to a single client.
type IndexHandler struct {
	// The time a client is idle before being disconnected.
	ClientIdleTimeout time.Duration

	// The store that contains the indexes.
	Indexes *models.IndexStore

	// The index used by messages that do not specify one.
	DefaultIndex string

	conn     *websocket.Conn
	clientID string
}

// DeleteResult is the data of a delete response.
type DeleteResult struct {
	Removed int `json:"removed"`
}

// QueryResult is the data of a query response.
type QueryResult struct {
	Points []geom.Point `json:"points"`
	Count  int          `json:"count"`
}

// SubdivideResult is the data of a subdivide response.
type SubdivideResult struct {
	Split bool `json:"split"`
}

// ResizeResult is the data of a resize response.
type ResizeResult struct {
	RebuildRecommended bool `json:"rebuild_recommended"`
}

func (h *IndexHandler) HandleConnect(conn *websocket.Conn) {
	h.conn = conn

	h.clientID = conn.Request().Header.Get(HeaderClientID)
	if h.clientID == "" {
		h.clientID = uuid.NewString()
	}
}

func (h *IndexHandler) HandleDisconnect(err error) {
}

func (h *IndexHandler) HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error {
	respond.Send(NewResponse(msg, nil))
	return nil
}

func (h *IndexHandler) HandleInsert(ctx context.Context, respond ResponseSender, msg Msg) error {
	index, err := h.index(msg)
	if err != nil {
		return err
	}

	res, err := index.Insert(msg.Points)
	if err != nil {
		return err
	}

	respond.Send(NewResponse(msg, res))
	return nil
}

func (h *IndexHandler) HandleBulkInsert(ctx context.Context, respond ResponseSender, msg Msg) error {
	index, err := h.index(msg)
	if err != nil {
		return err
	}

	res, err := index.BulkInsert(msg.Points)
	if err != nil {
		return err
	}

	respond.Send(NewResponse(msg, res))
	return nil
}

func (h *IndexHandler) HandleDelete(ctx context.Context, respond ResponseSender, msg Msg) error {
	index, p, err := h.indexAndPoint(msg)
	if err != nil {
		return err
	}

	removed, err := index.Delete(p)
	if err != nil {
		return err
	}

	respond.Send(NewResponse(msg, DeleteResult{Removed: removed}))
	return nil
}

func (h *IndexHandler) HandleFind(ctx context.Context, respond ResponseSender, msg Msg) error {
	index, p, err := h.indexAndPoint(msg)
	if err != nil {
		return err
	}

	res, err := index.Find(p)
	if err != nil {
		return err
	}

	respond.Send(NewResponse(msg, res))
	return nil
}

func (h *IndexHandler) HandleQuery(ctx context.Context, respond ResponseSender, msg Msg) error {
	index, err := h.index(msg)
	if err != nil {
		return err
	}

	if msg.Min == nil || msg.Max == nil {
		return errors.New("query box requires min and max").
			WithType(rtree.ErrTypeInvalidInput)
	}

	points, err := index.Query(geom.NewRect(*msg.Min, *msg.Max))
	if err != nil {
		return err
	}

	respond.Send(NewResponse(msg, QueryResult{
		Points: points,
		Count:  len(points),
	}))
	return nil
}

func (h *IndexHandler) HandleSubdivide(ctx context.Context, respond ResponseSender, msg Msg) error {
	index, err := h.index(msg)
	if err != nil {
		return err
	}

	respond.Send(NewResponse(msg, SubdivideResult{Split: index.Subdivide()}))
	return nil
}

func (h *IndexHandler) HandleResize(ctx context.Context, respond ResponseSender, msg Msg) error {
	index, err := h.index(msg)
	if err != nil {
		return err
	}

	respond.Send(NewResponse(msg, ResizeResult{RebuildRecommended: index.Resize()}))
	return nil
}

func (h *IndexHandler) HandleRebuild(ctx context.Context, respond ResponseSender, msg Msg) error {
	index, err := h.index(msg)
	if err != nil {
		return err
	}

	index.Rebuild()
	respond.Send(NewResponse(msg, index.Stats()))
	return nil
}

func (h *IndexHandler) HandleStats(ctx context.Context, respond ResponseSender, msg Msg) error {
	index, err := h.index(msg)
	if err != nil {
		return err
	}

	respond.Send(NewResponse(msg, index.Info()))
	return nil
}

func (h *IndexHandler) Receiver() Receiver {
	return NewReceiver(h.conn)
}

func (h *IndexHandler) Sender() Sender {
	return NewSender(h.conn)
}

func (h *IndexHandler) Close() {
}

func (h *IndexHandler) IdleTimeout() time.Duration {
	return h.ClientIdleTimeout
}

func (h *IndexHandler) GetClientID() string {
	return h.clientID
}

func (h *IndexHandler) index(msg Msg) (*models.Index, error) {
	id := msg.IndexID
	if id == "" {
		id = h.DefaultIndex
	}
	if id == "" {
		id = models.DefaultIndexName
	}
	return h.Indexes.Get(id)
}

func (h *IndexHandler) indexAndPoint(msg Msg) (*models.Index, geom.Point, error) {
	index, err := h.index(msg)
	if err != nil {
		return nil, geom.Point{}, err
	}

	if msg.Point == nil {
		return nil, geom.Point{}, errors.New("missing point").
			WithType(rtree.ErrTypeInvalidInput).
			WithTag("msg_type", msg.Type)
	}
	return index, *msg.Point, nil
}
