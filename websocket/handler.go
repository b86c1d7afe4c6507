package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pointtree/models"
	"github.com/aukilabs/pointtree/rtree"
	"golang.org/x/net/websocket"
)

const (
	sendChanSize    = 512
	receiveChanSize = 64
)

// Handler represents a point index handler.
type Handler interface {
	// Handles a client connection.
	HandleConnect(conn *websocket.Conn)

	// Handles a client's disconnection.
	HandleDisconnect(error)

	// Handles a ping request.
	HandlePing(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to insert points one by one.
	HandleInsert(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to load points into a leaf root at once.
	HandleBulkInsert(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to delete every copy of a point.
	HandleDelete(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a request to find the leaf holding a point.
	HandleFind(ctx context.Context, respond ResponseSender, msg Msg) error

	// Handles a range query.
	HandleQuery(ctx context.Context, respond ResponseSender, msg Msg) error

	HandleSubdivide(ctx context.Context, respond ResponseSender, msg Msg) error

	HandleResize(ctx context.Context, respond ResponseSender, msg Msg) error

	HandleRebuild(ctx context.Context, respond ResponseSender, msg Msg) error

	HandleStats(ctx context.Context, respond ResponseSender, msg Msg) error

	// Creates a message receiver used to receive incoming messages.
	Receiver() Receiver

	// Creates a message sender passed in service methods in order to send
	// messages.
	Sender() Sender

	// Closes the service and releases its allocated resources.
	Close()

	// The time a client is idle before being disconnected.
	IdleTimeout() time.Duration

	// Get ClientID
	GetClientID() string
}

// Handle handles the given service.
func Handle(ctx context.Context, conn *websocket.Conn, h Handler) {
	handler := handler{
		Conn:    conn,
		Handler: h,
	}

	handler.Handle(ctx)
}

type handler struct {
	// The WebSocket connection.
	Conn *websocket.Conn

	// The point index handler.
	Handler Handler

	sendChan       chan Response
	receiveChan    chan Msg
	sender         Sender
	receiver       Receiver
	disconnectChan chan error
}

func (h *handler) Handle(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	h.Handler.HandleConnect(h.Conn)

	h.disconnectChan = make(chan error, 8)
	defer func() {
		for len(h.disconnectChan) != 0 {
			<-h.disconnectChan
		}
	}()

	var wg sync.WaitGroup

	h.sendChan = make(chan Response, sendChanSize)
	h.sender = h.Handler.Sender()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startSending(ctx)
	}()

	h.receiveChan = make(chan Msg, receiveChanSize)
	h.receiver = h.Handler.Receiver()
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.startReceiving(ctx)
	}()

	idleTimeout := h.Handler.IdleTimeout()
	idleTimer := time.NewTimer(idleTimeout)
	defer idleTimer.Stop()

	responder := responseSender{
		send: h.send,
	}

	for ctx.Err() == nil {
		select {
		case <-ctx.Done():
			// Closing the connection unblocks the receiving goroutine.
			h.handleDisconnect(ctx.Err())

		case <-idleTimer.C:
			h.disconnect(errors.New("idle connection").WithTag("duration", idleTimeout))

		case msg := <-h.receiveChan:
			idleTimer.Stop()
			idleTimer.Reset(idleTimeout)

			if err := h.handleMessage(ctx, msg, responder); err != nil {
				h.disconnect(errors.New("handling message failed").Wrap(err))
			}

		case err := <-h.disconnectChan:
			h.handleDisconnect(err)
			if ctx.Err() == nil {
				// cancel context so go routines can cleanly exit
				cancel()
			}
		}
	}

	wg.Wait()
}

func (h *handler) send(res Response) {
	h.sendChan <- res
}

func (h *handler) startSending(ctx context.Context) {
	defer func() {
		for len(h.sendChan) != 0 {
			<-h.sendChan
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case res := <-h.sendChan:
			if _, err := h.sender(res); err != nil {
				h.disconnect(errors.New("sending message failed").Wrap(err))
				return
			}
		}
	}
}

func (h *handler) startReceiving(ctx context.Context) {
	for {
		msg, _, err := h.receiver()
		if err != nil {
			h.disconnect(errors.New("receiving message failed").Wrap(err))
			return
		}

		select {
		case <-ctx.Done():
			return

		case h.receiveChan <- msg:
		}
	}
}

func (h *handler) handleMessage(ctx context.Context, msg Msg, responder ResponseSender) error {
	var err error

	switch msg.Type {
	case MsgTypePing:
		err = h.Handler.HandlePing(ctx, responder, msg)

	case MsgTypeInsert:
		err = h.Handler.HandleInsert(ctx, responder, msg)

	case MsgTypeBulkInsert:
		err = h.Handler.HandleBulkInsert(ctx, responder, msg)

	case MsgTypeDelete:
		err = h.Handler.HandleDelete(ctx, responder, msg)

	case MsgTypeFind:
		err = h.Handler.HandleFind(ctx, responder, msg)

	case MsgTypeQuery:
		err = h.Handler.HandleQuery(ctx, responder, msg)

	case MsgTypeSubdivide:
		err = h.Handler.HandleSubdivide(ctx, responder, msg)

	case MsgTypeResize:
		err = h.Handler.HandleResize(ctx, responder, msg)

	case MsgTypeRebuild:
		err = h.Handler.HandleRebuild(ctx, responder, msg)

	case MsgTypeStats:
		err = h.Handler.HandleStats(ctx, responder, msg)

	default:
		err = errors.New("unsupported message type").
			WithType(ErrTypeUnsupportedMsgType).
			WithTag("msg_type", msg.Type)
	}

	if isClientError(err) {
		responder.Send(NewErrorResponse(msg, err))
		return nil
	}
	return err
}

// isClientError reports whether err is caused by the content of a message.
// Such errors are reported to the client and do not end the connection.
func isClientError(err error) bool {
	switch errors.Type(err) {
	case rtree.ErrTypeInvalidInput,
		rtree.ErrTypeUnsupportedOperation,
		rtree.ErrTypeNotFound,
		models.ErrTypeIndexNotFound,
		ErrTypeUnsupportedMsgType:
		return err != nil

	default:
		return false
	}
}

func (h *handler) disconnect(err error) {
	select {
	case h.disconnectChan <- err:
	default:
	}
}

func (h *handler) handleDisconnect(err error) {
	h.Conn.Close()
	h.Handler.HandleDisconnect(err)
}

type responseSender struct {
	send func(Response)
}

func (r responseSender) Send(res Response) {
	r.send(res)
}
