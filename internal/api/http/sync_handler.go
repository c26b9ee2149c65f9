package http

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mezmur-app/mezmur-sync/internal/api/http/middleware"
	"github.com/mezmur-app/mezmur-sync/internal/connectivity"
	"github.com/mezmur-app/mezmur-sync/internal/logging"
)

// StatusSource publishes the orchestrator status.
type StatusSource interface {
	Status() connectivity.Status
	Subscribe(fn func(connectivity.Status)) (unsubscribe func())
}

// QueueLen reports how many of a user's writes are waiting for replay.
type QueueLen interface {
	LenFor(ctx context.Context, userID string) (int, error)
}

// SyncHandler exposes connectivity status and queue replay.
type SyncHandler struct {
	status   StatusSource
	queue    QueueLen
	replayer connectivity.QueueReplayer
}

func NewSyncHandler(status StatusSource, queue QueueLen, replayer connectivity.QueueReplayer) *SyncHandler {
	return &SyncHandler{status: status, queue: queue, replayer: replayer}
}

func (h *SyncHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/status", h.getStatus)
	rg.GET("/stream", h.stream)
	rg.POST("/queue/replay", middleware.RequireAccount(), h.replay)
}

func (h *SyncHandler) getStatus(c *gin.Context) {
	resp := gin.H{"ok": true, "status": h.status.Status()}
	if id := middleware.CurrentIdentity(c); h.queue != nil && id.Authenticated() {
		n, err := h.queue.LenFor(c.Request.Context(), id.UserID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
			return
		}
		resp["pending"] = n
	}
	c.JSON(http.StatusOK, resp)
}

// stream sends the current status, then every transition, as server-sent
// events until the client goes away.
func (h *SyncHandler) stream(c *gin.Context) {
	updates := make(chan connectivity.Status, 16)
	unsubscribe := h.status.Subscribe(func(s connectivity.Status) {
		select {
		case updates <- s:
		default:
		}
	})
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("status", h.status.Status())
	c.Writer.Flush()

	done := c.Request.Context().Done()
	c.Stream(func(w io.Writer) bool {
		select {
		case s := <-updates:
			c.SSEvent("status", s)
			return true
		case <-done:
			return false
		}
	})
}

func (h *SyncHandler) replay(c *gin.Context) {
	if h.replayer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "error": "sync unavailable"})
		return
	}
	id := middleware.CurrentIdentity(c)
	res, err := h.replayer.ProcessQueue(c.Request.Context(), id.UserID)
	if err != nil {
		logging.FromContext(c.Request.Context(), "sync_http").Error("replay", err)
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": res})
}
