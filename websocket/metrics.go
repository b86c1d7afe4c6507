package websocket

import (
	"context"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/net/websocket"
)

const (
	errTypeLabel  = "error_type"
	msgTypeLabel  = "msg_type"
	endpointLabel = "endpoint"
)

var (
	wsConnectedClients = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ws_connected_clients",
		Help: "The number of connected clients.",
	}, []string{
		endpointLabel,
	})

	wsReceivedMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_msgs",
		Help: "The number of messages received from WebSocket connections.",
	}, []string{
		endpointLabel,
		msgTypeLabel,
	})

	wsReceivedBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_received_bytes",
		Help: "The number of bytes received from WebSocket connections.",
	}, []string{
		endpointLabel,
		msgTypeLabel,
	})

	wsReceiveError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_receive_errors",
		Help: "The errors that occured while receiving a websocket message.",
	}, []string{
		endpointLabel,
		errTypeLabel,
	})

	wsSentMsgs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_msgs",
		Help: "The number of messages sent to WebSocket connections.",
	}, []string{
		endpointLabel,
		msgTypeLabel,
	})

	wsSentBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_sent_bytes",
		Help: "The number of bytes sent to WebSocket connections.",
	}, []string{
		endpointLabel,
		msgTypeLabel,
	})

	wsSendError = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_send_errors",
		Help: "The errors that occured while sending a websocket message.",
	}, []string{
		endpointLabel,
		errTypeLabel,
		msgTypeLabel,
	})

	wsMsgErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ws_msg_errors",
		Help: "The errors returned while processing a WebSocket msg.",
	}, []string{
		endpointLabel,
		errTypeLabel,
		msgTypeLabel,
	})

	wsMsgLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "ws_msg_latency",
		Help: "The time to process a WebSocket msg.",
	}, []string{
		endpointLabel,
		msgTypeLabel,
	})
)

// HandlerWithMetrics reports the traffic and the processing time of h.
// endpoint labels the metrics of the server the handler is mounted on.
func HandlerWithMetrics(h Handler, endpoint string) Handler {
	return &handlerWithMetrics{
		Handler:  h,
		endpoint: endpoint,
	}
}

type handlerWithMetrics struct {
	Handler

	endpoint string
}

func (h *handlerWithMetrics) HandleConnect(conn *websocket.Conn) {
	wsConnectedClients.
		With(prometheus.Labels{
			endpointLabel: h.endpoint,
		}).
		Inc()

	h.Handler.HandleConnect(conn)
}

func (h *handlerWithMetrics) HandleDisconnect(err error) {
	wsConnectedClients.
		With(prometheus.Labels{
			endpointLabel: h.endpoint,
		}).
		Dec()

	h.Handler.HandleDisconnect(err)
}

func (h *handlerWithMetrics) HandlePing(ctx context.Context, sender ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandlePing(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) HandleInsert(ctx context.Context, sender ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleInsert(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) HandleBulkInsert(ctx context.Context, sender ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleBulkInsert(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) HandleDelete(ctx context.Context, sender ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleDelete(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) HandleFind(ctx context.Context, sender ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleFind(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) HandleQuery(ctx context.Context, sender ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleQuery(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) HandleSubdivide(ctx context.Context, sender ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleSubdivide(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) HandleResize(ctx context.Context, sender ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleResize(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) HandleRebuild(ctx context.Context, sender ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleRebuild(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) HandleStats(ctx context.Context, sender ResponseSender, msg Msg) error {
	return h.measureLatency(msg, func() error {
		return h.Handler.HandleStats(ctx, sender, msg)
	})
}

func (h *handlerWithMetrics) Receiver() Receiver {
	receive := h.Handler.Receiver()

	return func() (Msg, int, error) {
		msg, n, err := receive()
		if err != nil {
			wsReceiveError.
				With(prometheus.Labels{
					endpointLabel: h.endpoint,
					errTypeLabel:  errors.Type(err),
				}).
				Inc()
		} else {
			wsReceivedMsgs.
				With(prometheus.Labels{
					endpointLabel: h.endpoint,
					msgTypeLabel:  string(msg.Type),
				}).
				Inc()
		}

		if n != 0 {
			wsReceivedBytes.
				With(prometheus.Labels{
					endpointLabel: h.endpoint,
					msgTypeLabel:  string(msg.Type),
				}).
				Add(float64(n))
		}

		return msg, n, err
	}
}

func (h *handlerWithMetrics) Sender() Sender {
	sender := h.Handler.Sender()

	return func(res Response) (int, error) {
		msgType := string(res.Type)

		n, err := sender(res)
		if err != nil {
			wsSendError.
				With(prometheus.Labels{
					endpointLabel: h.endpoint,
					msgTypeLabel:  msgType,
					errTypeLabel:  errors.Type(err),
				}).
				Inc()
		}

		if n != 0 {
			wsSentMsgs.
				With(prometheus.Labels{
					endpointLabel: h.endpoint,
					msgTypeLabel:  msgType,
				}).
				Inc()
			wsSentBytes.
				With(prometheus.Labels{
					endpointLabel: h.endpoint,
					msgTypeLabel:  msgType,
				}).
				Add(float64(n))
		}

		return n, err
	}
}

func (h *handlerWithMetrics) measureLatency(msg Msg, f func() error) error {
	start := time.Now()

	err := f()
	if err != nil {
		wsMsgErrors.With(prometheus.Labels{
			endpointLabel: h.endpoint,
			errTypeLabel:  errors.Type(err),
			msgTypeLabel:  string(msg.Type),
		}).Inc()
	}

	wsMsgLatency.With(prometheus.Labels{
		endpointLabel: h.endpoint,
		msgTypeLabel:  string(msg.Type),
	}).Observe(time.Since(start).Seconds())

	return err
}
