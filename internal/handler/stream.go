package handler

import (
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"coinscout/internal/domain"
	"coinscout/internal/scan"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamBuffer       = 16
)

// Terminal states can land in the store without a hub notification (the
// reaper, a cancel served by another replica), so streams re-check status
// on this interval instead of waiting on the hub forever.
var streamPollInterval = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// ProgressHub fans scan state transitions out to websocket subscribers.
// A slow subscriber drops updates rather than blocking the scan.
type ProgressHub struct {
	mu   sync.Mutex
	subs map[string]map[chan domain.ScanState]struct{}
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[string]map[chan domain.ScanState]struct{})}
}

func (h *ProgressHub) NotifyProgress(state domain.ScanState) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[state.ScanID] {
		select {
		case ch <- state:
		default:
		}
	}
}

func (h *ProgressHub) subscribe(scanID string) (chan domain.ScanState, func()) {
	ch := make(chan domain.ScanState, streamBuffer)
	h.mu.Lock()
	if h.subs[scanID] == nil {
		h.subs[scanID] = make(map[chan domain.ScanState]struct{})
	}
	h.subs[scanID][ch] = struct{}{}
	h.mu.Unlock()

	return ch, func() {
		h.mu.Lock()
		delete(h.subs[scanID], ch)
		if len(h.subs[scanID]) == 0 {
			delete(h.subs, scanID)
		}
		h.mu.Unlock()
	}
}

// StreamScan godoc
// @Summary      Stream live scan progress
// @Description  Upgrades to a websocket and pushes scan state updates until the scan reaches a terminal state
// @Tags         scans
// @Param        scan_id  path   string  true  "Scan ID"
// @Param        user_id  query  string  true  "User ID"
// @Success      101  {string}  string  "Switching Protocols"
// @Failure      400  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /api/opportunities/stream/{scan_id} [get]
func (h *Handler) StreamScan(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "handler.stream-scan")
	defer span.End()

	userID, scanID, ok := h.scanIdentity(c)
	if !ok {
		return
	}

	state, err := h.discoveryService.Status(ctx, userID, scanID)
	if err != nil {
		if errors.Is(err, scan.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	updates, unsubscribe := h.hub.subscribe(scanID)
	defer unsubscribe()

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("websocket upgrade for scan %s failed: %v", scanID, err)
		return
	}
	defer conn.Close()

	// Snapshot first, then live updates. A scan that finished before the
	// client connected gets exactly one message.
	if !h.writeState(conn, state) || state.Status.IsTerminal() {
		return
	}

	ticker := time.NewTicker(streamPollInterval)
	defer ticker.Stop()

	for {
		select {
		case update := <-updates:
			if !h.writeState(conn, update) || update.Status.IsTerminal() {
				return
			}
		case <-ticker.C:
			current, err := h.discoveryService.Status(ctx, userID, scanID)
			if err != nil {
				return
			}
			if current.Status.IsTerminal() {
				h.writeState(conn, current)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (h *Handler) writeState(conn *websocket.Conn, state domain.ScanState) bool {
	conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if err := conn.WriteJSON(state); err != nil {
		return false
	}
	return true
}
