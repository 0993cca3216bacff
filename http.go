package newsrag

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mark3labs/mcp-go/server"

	"github.com/higress-group/newsrag/common/apperr"
	"github.com/higress-group/newsrag/common/logger"
	"github.com/higress-group/newsrag/metrics"
	"github.com/higress-group/newsrag/stream"
	"github.com/higress-group/newsrag/synth"
)

const maxRequestBytes = 64 << 10

type chatRequest struct {
	Query          string       `json:"query"`
	ConversationID string       `json:"conversation_id"`
	Summary        string       `json:"summary"`
	History        []synth.Turn `json:"history"`
}

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// NewHTTPHandler exposes the client:
//
//	POST /v1/chat                  JSON question answering
//	GET  /v1/stream                WebSocket streaming
//	GET  /v1/conversations/{id}    stored conversation messages
//	GET  /v1/stats                 aggregate execution stats
//	GET  /metrics, /healthz, /mcp
func NewHTTPHandler(c *Client) http.Handler {
	h := &handler{client: c, upgrader: upgrader(c.cfg.Server.AllowedWSOrigins)}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat", h.chat)
	mux.HandleFunc("GET /v1/stream", h.stream)
	mux.HandleFunc("GET /v1/conversations/{id}", h.conversation)
	mux.HandleFunc("GET /v1/stats", h.stats)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": Version})
	})
	if c.cfg.Server.EnableMetrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}
	if c.cfg.Server.EnableMCP {
		mux.Handle("/mcp", server.NewStreamableHTTPServer(NewMCPServer(c)))
	}
	return mux
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func ListenAndServe(ctx context.Context, c *Client) error {
	sc := c.cfg.Server
	srv := &http.Server{
		Addr:         sc.Address,
		Handler:      NewHTTPHandler(c),
		ReadTimeout:  time.Duration(sc.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout: time.Duration(sc.WriteTimeoutMs) * time.Millisecond,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Infof("newsrag: listening on %s", sc.Address)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

type handler struct {
	client   *Client
	upgrader websocket.Upgrader
}

func upgrader(origins []string) websocket.Upgrader {
	u := websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096}
	if len(origins) > 0 {
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[o] = true
		}
		u.CheckOrigin = func(r *http.Request) bool {
			return allowed["*"] || allowed[r.Header.Get("Origin")]
		}
	}
	return u
}

func (h *handler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		writeError(w, apperr.Validation("invalid request body: "+err.Error()))
		return
	}
	resp, err := h.client.Handle(r.Context(), req.Query, ConversationContext{
		ConversationID: req.ConversationID,
		History:        req.History,
		Summary:        req.Summary,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// stream serves one WebSocket connection. Messages are handled in order.
func (h *handler) stream(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warnf("newsrag: websocket upgrade failed, err: %v", err)
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxRequestBytes)
	sink := stream.NewWebSocketSink(conn, time.Duration(h.client.cfg.Server.WriteTimeoutMs)*time.Millisecond)

	for {
		var msg stream.ClientMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Debugf("newsrag: websocket read ended, err: %v", err)
			}
			return
		}
		if msg.Action != stream.ActionSendMessage {
			if err := sink.Send(stream.Failure(msg.ConversationID, "unsupported action: "+msg.Action)); err != nil {
				return
			}
			continue
		}
		if _, err := h.client.HandleStream(r.Context(), msg.Query, ConversationContext{ConversationID: msg.ConversationID}, sink); err != nil {
			logger.Debugf("newsrag: stream request rejected, err: %v", err)
		}
	}
}

func (h *handler) conversation(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, apperr.Validation("limit must be a non-negative integer"))
			return
		}
		limit = n
	}
	id := r.PathValue("id")
	msgs, err := h.client.History(r.Context(), id, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"conversation_id": id, "messages": msgs})
}

func (h *handler) stats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.client.engine.Stats().Snapshot())
}

func writeError(w http.ResponseWriter, err error) {
	body := errorBody{Error: err.Error()}
	var ae *apperr.Error
	if errors.As(err, &ae) {
		body.Kind = ae.Kind.String()
	}
	writeJSON(w, apperr.HTTPStatus(err), body)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warnf("newsrag: write response failed, err: %v", err)
	}
}
