package websocket

import (
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/pointtree/geom"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"
)

const (
	ErrTypeInvalidMsg         = "invalid_msg"
	ErrTypeUnsupportedMsgType = "unsupported_msg_type"
)

// MsgType identifies a message and its response.
type MsgType string

const (
	MsgTypePing       MsgType = "ping"
	MsgTypeInsert     MsgType = "insert"
	MsgTypeBulkInsert MsgType = "bulk_insert"
	MsgTypeDelete     MsgType = "delete"
	MsgTypeFind       MsgType = "find"
	MsgTypeQuery      MsgType = "query"
	MsgTypeSubdivide  MsgType = "subdivide"
	MsgTypeResize     MsgType = "resize"
	MsgTypeRebuild    MsgType = "rebuild"
	MsgTypeStats      MsgType = "stats"
	MsgTypeError      MsgType = "error"
)

// Response returns the type of the message that answers t.
func (t MsgType) Response() MsgType {
	return t + "_response"
}

// Msg is a message sent by a client.
type Msg struct {
	Type      MsgType      `json:"type"`
	RequestID uint32       `json:"request_id,omitempty"`
	IndexID   string       `json:"index_id,omitempty"`
	Point     *geom.Point  `json:"point,omitempty"`
	Points    []geom.Point `json:"points,omitempty"`
	Min       *geom.Point  `json:"min,omitempty"`
	Max       *geom.Point  `json:"max,omitempty"`
}

// Response is a message sent to a client.
type Response struct {
	Type      MsgType    `json:"type"`
	RequestID uint32     `json:"request_id,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorData `json:"error,omitempty"`
}

type ErrorData struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewResponse returns the response to msg.
func NewResponse(msg Msg, data any) Response {
	return Response{
		Type:      msg.Type.Response(),
		RequestID: msg.RequestID,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// NewErrorResponse returns the response reporting that msg failed with err.
func NewErrorResponse(msg Msg, err error) Response {
	return Response{
		Type:      MsgTypeError,
		RequestID: msg.RequestID,
		Timestamp: time.Now(),
		Error: &ErrorData{
			Type:    errors.Type(err),
			Message: err.Error(),
		},
	}
}

// Receiver reads a message and returns the number of bytes read.
type Receiver func() (Msg, int, error)

// Sender writes a response and returns the number of bytes written.
type Sender func(Response) (int, error)

// ResponseSender queues responses to be sent to a client.
type ResponseSender interface {
	Send(Response)
}

// NewReceiver returns a receiver that decodes JSON text frames from conn.
func NewReceiver(conn *websocket.Conn) Receiver {
	return func() (Msg, int, error) {
		var b []byte
		if err := websocket.Message.Receive(conn, &b); err != nil {
			return Msg{}, 0, err
		}

		var msg Msg
		if err := json.Unmarshal(b, &msg); err != nil {
			return Msg{}, len(b), errors.New("decoding message failed").
				WithType(ErrTypeInvalidMsg).
				Wrap(err)
		}
		if msg.Type == "" {
			return Msg{}, len(b), errors.New("message without type").
				WithType(ErrTypeInvalidMsg)
		}
		return msg, len(b), nil
	}
}

// NewSender returns a sender that encodes responses as JSON text frames on
// conn.
func NewSender(conn *websocket.Conn) Sender {
	return func(res Response) (int, error) {
		b, err := json.Marshal(res)
		if err != nil {
			return 0, errors.New("encoding response failed").
				WithTag("type", res.Type).
				Wrap(err)
		}

		if err := websocket.Message.Send(conn, string(b)); err != nil {
			return 0, err
		}
		return len(b), nil
	}
}
