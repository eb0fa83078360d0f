package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/devroom-sh/devroom/internal/api/response"
	"github.com/devroom-sh/devroom/internal/assistant"
	"github.com/devroom-sh/devroom/internal/config"
	"github.com/devroom-sh/devroom/internal/domain"
	"github.com/devroom-sh/devroom/internal/sandbox"
	"github.com/devroom-sh/devroom/internal/workspace"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// RunnerFactory builds a fresh execution runner for one session
type RunnerFactory func() (sandbox.Runner, error)

// Handler upgrades admitted clients to websocket connections and routes
// their frames to the workspace store, the sandbox controller, and the
// room. One sandbox controller exists per user per project, created on
// the first run request and kept alive across disconnects until service
// shutdown; a reconnecting client re-attaches to it.
type Handler struct {
	gateway    *Gateway
	registry   *Registry
	store      *workspace.Store
	responder  *assistant.Responder
	sandboxCfg config.SandboxConfig
	newRunner  RunnerFactory
	upgrader   websocket.Upgrader
	logger     zerolog.Logger

	mu          sync.Mutex
	controllers map[controllerKey]*sandboxSession
	closed      bool
}

// controllerKey is stable across connections: the same user in the same
// project always reaches the same sandbox, whatever their session ID.
type controllerKey struct {
	user    uuid.UUID
	project string
}

type sandboxSession struct {
	ctrl *sandbox.Controller
	sink *memberSink
}

// memberSink is the retargetable delivery end of a controller's notify
// stream. The controller outlives any one connection, so the sink swaps
// in whichever member currently owns the sandbox.
type memberSink struct {
	mu     sync.Mutex
	member *Member
}

func (s *memberSink) attach(m *Member) {
	s.mu.Lock()
	s.member = m
	s.mu.Unlock()
}

func (s *memberSink) deliver(payload []byte) {
	s.mu.Lock()
	m := s.member
	s.mu.Unlock()
	if m != nil {
		m.Deliver(payload)
	}
}

func NewHandler(
	gateway *Gateway,
	registry *Registry,
	store *workspace.Store,
	responder *assistant.Responder,
	sandboxCfg config.SandboxConfig,
	newRunner RunnerFactory,
	logger zerolog.Logger,
) *Handler {
	return &Handler{
		gateway:    gateway,
		registry:   registry,
		store:      store,
		responder:  responder,
		sandboxCfg: sandboxCfg,
		newRunner:  newRunner,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser origin policy is enforced by the CORS layer on
			// the REST surface; tokens gate the socket itself.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger:      logger.With().Str("component", "ws").Logger(),
		controllers: make(map[controllerKey]*sandboxSession),
	}
}

type client struct {
	handler *Handler
	conn    *websocket.Conn
	session *domain.Session
	member  *Member
	logger  zerolog.Logger
}

// ServeHTTP performs the admission handshake and, on success, upgrades
// the connection and serves it until the client goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	projectID := r.URL.Query().Get("projectId")

	session, member, err := h.gateway.Admit(r.Context(), token, projectID)
	if err != nil {
		switch {
		case errors.Is(err, ErrMissingCredential), errors.Is(err, ErrInvalidToken):
			response.Unauthorized(w, err.Error())
		case errors.Is(err, ErrUnknownProject):
			response.NotFound(w, err.Error())
		case errors.Is(err, ErrRateLimited):
			response.Error(w, http.StatusTooManyRequests, err.Error())
		default:
			response.InternalError(w, "handshake failed")
		}
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.registry.Leave(session)
		h.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		handler: h,
		conn:    conn,
		session: session,
		member:  member,
		logger: h.logger.With().Str("session", session.ID.String()).
			Str("room", session.RoomID).Logger(),
	}

	go c.writePump()
	c.readPump(r.Context())
}

// Close disposes every sandbox controller. Called at service shutdown,
// after the registry has been closed.
func (h *Handler) Close(ctx context.Context) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	controllers := make([]*sandbox.Controller, 0, len(h.controllers))
	for _, entry := range h.controllers {
		controllers = append(controllers, entry.ctrl)
	}
	h.controllers = make(map[controllerKey]*sandboxSession)
	h.mu.Unlock()

	for _, ctrl := range controllers {
		ctrl.Dispose(ctx)
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(header, "Bearer "); ok {
		return after
	}
	return r.URL.Query().Get("token")
}

func (c *client) readPump(ctx context.Context) {
	defer func() {
		// The session leaves the room but its sandbox keeps running;
		// a rebuild on the next connect would lose the live process.
		c.handler.registry.Leave(c.session)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Msg("connection closed unexpectedly")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.sendError("bad_frame", "frame is not valid JSON")
			continue
		}
		c.dispatch(ctx, frame)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case payload, ok := <-c.member.Send():
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) dispatch(ctx context.Context, frame Frame) {
	switch frame.Type {
	case FrameProjectMessage:
		c.handleMessage(ctx, frame.Payload)
	case FrameFilePatch:
		c.handleFilePatch(frame.Payload)
	case FrameSaveTree:
		c.handleSaveTree(ctx)
	case FrameRun:
		c.handleRun(ctx)
	case FrameStop:
		c.handleStop(ctx)
	case FrameClearOutput:
		if ctrl := c.handler.controllerFor(c); ctrl != nil {
			ctrl.ClearOutput()
		}
	case FramePreview:
		c.handlePreview(frame.Payload)
	default:
		c.sendError("unknown_frame", "unsupported frame type "+string(frame.Type))
	}
}

func (c *client) handleMessage(ctx context.Context, payload json.RawMessage) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(payload, &body); err != nil || body.Message == "" {
		c.sendError("bad_payload", "project-message requires a message")
		return
	}

	msg := domain.ChatMessage{
		ID:     c.session.NextMessageID(),
		Sender: domain.Sender{ID: c.session.UserID, Name: c.session.UserName},
		Body:   body.Message,
	}
	encoded, err := EncodeFrame(FrameProjectMessage, msg)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode chat message")
		return
	}
	c.handler.registry.Publish(c.session.RoomID, encoded, c.session.ID)

	responder := c.handler.responder
	if responder != nil && responder.Enabled() && responder.IsMention(body.Message) {
		go c.respond(context.WithoutCancel(ctx), body.Message)
	}
}

func (c *client) respond(ctx context.Context, body string) {
	reply, err := c.handler.responder.Respond(ctx, c.session.RoomID, body)
	if err != nil {
		c.logger.Error().Err(err).Msg("assistant reply failed")
		c.sendError("assistant_failed", "the assistant could not respond")
		return
	}

	msg := domain.ChatMessage{
		ID:            c.session.NextMessageID(),
		Sender:        domain.Sender{Name: "AI"},
		FromAssistant: true,
		Body:          reply.DisplayText,
	}
	encoded, err := EncodeFrame(FrameProjectMessage, msg)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode assistant message")
		return
	}
	// The assistant reply goes to everyone, the asker included. A
	// committed tree, if any, reaches the room through the store's
	// commit hook.
	c.handler.registry.Broadcast(c.session.RoomID, encoded)
}

func (c *client) handleFilePatch(payload json.RawMessage) {
	var patch FilePatchPayload
	if err := json.Unmarshal(payload, &patch); err != nil || patch.Path == "" {
		c.sendError("bad_payload", "file-patch requires a path")
		return
	}
	c.handler.store.QueuePatch(c.session.RoomID, patch.Path, patch.Contents)
}

func (c *client) handleSaveTree(ctx context.Context) {
	if err := c.handler.store.Save(ctx, c.session.RoomID); err != nil {
		c.logger.Error().Err(err).Msg("save failed")
		c.sendError("save_failed", "could not persist the file tree")
	}
}

func (c *client) handleRun(ctx context.Context) {
	tree, ok := c.handler.store.Get(c.session.RoomID)
	if !ok {
		c.sendError("no_workspace", "no file tree loaded for this project")
		return
	}

	ctrl, err := c.handler.controller(c)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to create sandbox")
		c.sendError("sandbox_failed", "could not create a sandbox")
		return
	}

	// Outlives the connection: a disconnect mid-install must not tear
	// the process down.
	runCtx := context.WithoutCancel(ctx)
	go func() {
		if err := ctrl.Run(runCtx, tree); err != nil && !errors.Is(err, sandbox.ErrSuperseded) {
			c.logger.Error().Err(err).Msg("run failed")
		}
	}()
}

func (c *client) handleStop(ctx context.Context) {
	ctrl := c.handler.controllerFor(c)
	if ctrl == nil {
		return
	}
	stopCtx := context.WithoutCancel(ctx)
	go func() {
		if err := ctrl.Stop(stopCtx); err != nil {
			c.logger.Error().Err(err).Msg("stop failed")
		}
	}()
}

func (c *client) handlePreview(payload json.RawMessage) {
	var req PreviewRequestPayload
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			c.sendError("bad_payload", "preview payload is not valid JSON")
			return
		}
	}

	ctrl := c.handler.controllerFor(c)
	if ctrl == nil {
		c.sendError("no_preview", "nothing is running")
		return
	}
	url, err := sandbox.Navigate(ctrl.PreviewOrigin(), req.Path)
	if err != nil {
		c.sendError("no_preview", "nothing is running")
		return
	}

	encoded, err := EncodeFrame(FramePreview, PreviewPayload{URL: url})
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to encode preview frame")
		return
	}
	c.member.Deliver(encoded)
}

// controller returns the client's sandbox controller, creating it on
// first use and re-attaching its event stream to the current member.
// Controller events must not block: the sink's Deliver drops on a full
// buffer.
func (h *Handler) controller(c *client) (*sandbox.Controller, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	key := controllerKey{user: c.session.UserID, project: c.session.RoomID}
	if entry, ok := h.controllers[key]; ok {
		entry.sink.attach(c.member)
		return entry.ctrl, nil
	}
	if h.closed {
		return nil, errors.New("handler is closed")
	}

	runner, err := h.newRunner()
	if err != nil {
		return nil, err
	}

	sink := &memberSink{member: c.member}
	notify := func(ev sandbox.Event) {
		var payload []byte
		switch ev.Kind {
		case sandbox.EventState:
			payload, _ = EncodeFrame(FrameSandboxState, SandboxStatePayload{State: string(ev.State)})
		case sandbox.EventOutput:
			payload, _ = EncodeFrame(FrameSandboxOutput, SandboxOutputPayload{Chunk: ev.Chunk})
		case sandbox.EventPreview:
			payload, _ = EncodeFrame(FramePreview, PreviewPayload{URL: ev.Origin})
		}
		if payload != nil {
			sink.deliver(payload)
		}
	}

	ctrl := sandbox.NewController(runner, h.sandboxCfg, notify, c.logger)
	h.controllers[key] = &sandboxSession{ctrl: ctrl, sink: sink}
	return ctrl, nil
}

// controllerFor returns the client's existing controller, if any,
// re-attaching its event stream to the current member.
func (h *Handler) controllerFor(c *client) *sandbox.Controller {
	h.mu.Lock()
	defer h.mu.Unlock()

	entry, ok := h.controllers[controllerKey{user: c.session.UserID, project: c.session.RoomID}]
	if !ok {
		return nil
	}
	entry.sink.attach(c.member)
	return entry.ctrl
}

func (c *client) sendError(code, message string) {
	encoded, err := EncodeFrame(FrameError, ErrorPayload{Code: code, Message: message})
	if err != nil {
		return
	}
	c.member.Deliver(encoded)
}
