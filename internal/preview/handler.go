package preview

import (
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/resumely/cvsync/internal/render"
	cvsync "github.com/resumely/cvsync/internal/sync"
)

// StatusData is the combined session status shown in the preview page.
type StatusData struct {
	Identity     string     `json:"identity"`
	SyncState    string     `json:"sync_state"`
	Dirty        bool       `json:"dirty"`
	LastSyncedAt *time.Time `json:"last_synced_at,omitempty"`
	RenderStatus string     `json:"render_status"`
	Fingerprint  string     `json:"fingerprint,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// SyncEventData describes one sync engine event.
type SyncEventData struct {
	Event    string `json:"event"`
	Identity string `json:"identity"`
	State    string `json:"state"`
	Revision uint64 `json:"revision,omitempty"`
	Error    string `json:"error,omitempty"`
}

// ConflictData describes a remote change detected on refocus.
type ConflictData struct {
	Identity        string     `json:"identity"`
	RemoteUpdatedAt time.Time  `json:"remote_updated_at"`
	LastSyncedAt    *time.Time `json:"last_synced_at,omitempty"`
}

// RenderData describes a preview status change.
type RenderData struct {
	Status      string `json:"status"`
	Fingerprint string `json:"fingerprint,omitempty"`
	Error       string `json:"error,omitempty"`
}

// SessionInfo supplies the parts of the status not carried by events.
type SessionInfo interface {
	IsDirty() bool
	LastSyncedAt() *time.Time
}

// Handler turns sync and render events into preview messages.
type Handler struct {
	server  *Server
	session SessionInfo
	logger  *zap.Logger

	mu     sync.Mutex
	status StatusData
}

// NewHandler creates a handler broadcasting through server.
func NewHandler(server *Server, session SessionInfo, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		server:  server,
		session: session,
		logger:  logger.Named("preview"),
		status: StatusData{
			SyncState:    cvsync.Idle.String(),
			RenderStatus: render.StatusIdle.String(),
		},
	}
}

// OnSyncEvent handles a sync engine event.
func (h *Handler) OnSyncEvent(ev cvsync.Event) {
	if ev.Kind == cvsync.EventConflict && ev.Conflict != nil {
		h.send(MessageTypeConflict, ConflictData{
			Identity:        ev.Conflict.Identity,
			RemoteUpdatedAt: ev.Conflict.RemoteUpdatedAt,
			LastSyncedAt:    ev.Conflict.LastSyncedAt,
		})
	} else {
		data := SyncEventData{
			Event:    ev.Kind.String(),
			Identity: ev.Identity,
			State:    ev.State.String(),
			Revision: ev.Revision,
		}
		if ev.Err != nil {
			data.Error = ev.Err.Error()
		}
		h.send(MessageTypeSync, data)
	}

	h.mu.Lock()
	h.status.Identity = ev.Identity
	h.status.SyncState = ev.State.String()
	if ev.Kind == cvsync.EventIdentityChanged {
		h.status.RenderStatus = render.StatusIdle.String()
		h.status.Fingerprint = ""
		h.status.Error = ""
	}
	h.mu.Unlock()
	h.broadcastStatus()
}

// OnRenderUpdate handles a previewer status change.
func (h *Handler) OnRenderUpdate(u render.Update) {
	data := RenderData{Status: u.Status.String(), Fingerprint: u.Fingerprint}
	if u.Err != nil {
		data.Error = u.Err.Error()
	}
	h.send(MessageTypeRender, data)

	h.mu.Lock()
	h.status.RenderStatus = data.Status
	h.status.Error = data.Error
	if u.Fingerprint != "" {
		h.status.Fingerprint = u.Fingerprint
	}
	h.mu.Unlock()
	h.broadcastStatus()
}

// Status returns the current combined status.
func (h *Handler) Status() StatusData {
	h.mu.Lock()
	st := h.status
	h.mu.Unlock()
	if h.session != nil {
		st.Dirty = h.session.IsDirty()
		st.LastSyncedAt = h.session.LastSyncedAt()
	}
	return st
}

func (h *Handler) broadcastStatus() {
	h.send(MessageTypeStatus, h.Status())
}

func (h *Handler) send(typ MessageType, data any) {
	msg, err := NewMessage(typ, data)
	if err != nil {
		h.logger.Error("failed to marshal message", zap.String("type", string(typ)), zap.Error(err))
		return
	}
	h.server.Broadcast(msg)
}

// NewMessage builds a message with data encoded as JSON.
func NewMessage(typ MessageType, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: typ, Timestamp: time.Now(), Data: raw}, nil
}
