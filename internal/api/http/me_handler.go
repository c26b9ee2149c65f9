package http

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mezmur-app/mezmur-sync/internal/api/http/middleware"
	"github.com/mezmur-app/mezmur-sync/internal/identity"
	"github.com/mezmur-app/mezmur-sync/internal/kvstore"
	"github.com/mezmur-app/mezmur-sync/internal/library"
	"github.com/mezmur-app/mezmur-sync/internal/migration"
	"github.com/mezmur-app/mezmur-sync/internal/profile"
)

// sync status reported for writes that were not pushed remotely
const (
	syncLocal   = "local"
	syncPending = "pending"
)

// MeHandler serves the caller's favorites, playlists and preferences, and
// the sign-in migration.
type MeHandler struct {
	local  kvstore.Store
	sub    library.Submitter
	engine *migration.Engine
}

func NewMeHandler(local kvstore.Store, sub library.Submitter, engine *migration.Engine) *MeHandler {
	return &MeHandler{local: local, sub: sub, engine: engine}
}

func (h *MeHandler) Register(rg *gin.RouterGroup) {
	account := rg.Group("", middleware.RequireAccount())
	account.POST("/migrate", h.migrate)
	account.POST("/pull", h.pull)

	rg.GET("/favorites", h.listFavorites)
	rg.POST("/favorites", h.toggleFavorite)

	rg.GET("/playlists", h.listPlaylists)
	rg.POST("/playlists", h.createPlaylist)
	rg.PATCH("/playlists/:id", h.updatePlaylist)
	rg.DELETE("/playlists/:id", h.deletePlaylist)
	rg.POST("/playlists/:id/items/:hymnId", h.addItem)
	rg.DELETE("/playlists/:id/items/:hymnId", h.removeItem)

	rg.POST("/preferences", h.setPreferences)
}

func (h *MeHandler) migrate(c *gin.Context) {
	res, err := h.engine.OnSignIn(c.Request.Context(), middleware.CurrentIdentity(c))
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error(), "result": res})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": res})
}

func (h *MeHandler) pull(c *gin.Context) {
	id := middleware.CurrentIdentity(c)
	res, err := h.engine.PullCloudData(c.Request.Context(), id.UserID)
	if errors.Is(err, profile.ErrProfileNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "profile not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"ok": false, "error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "result": res})
}

func (h *MeHandler) favorites(c *gin.Context) (*library.Favorites, bool) {
	favs := library.NewFavorites(h.local, h.sub)
	if err := favs.Load(c.Request.Context(), middleware.CurrentIdentity(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return nil, false
	}
	return favs, true
}

func (h *MeHandler) listFavorites(c *gin.Context) {
	favs, ok := h.favorites(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "favorites": favs.List()})
}

type toggleReq struct {
	HymnID string `json:"hymnId"`
}

func (h *MeHandler) toggleFavorite(c *gin.Context) {
	var req toggleReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.HymnID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	favs, ok := h.favorites(c)
	if !ok {
		return
	}
	list, ticket := favs.Toggle(c.Request.Context(), strings.TrimSpace(req.HymnID))
	c.JSON(http.StatusOK, gin.H{
		"ok":         true,
		"favorites":  list,
		"isFavorite": favs.IsFavorite(strings.TrimSpace(req.HymnID)),
		"sync":       syncStatus(c, ticket),
	})
}

func (h *MeHandler) playlists(c *gin.Context) (*library.Playlists, bool) {
	pls := library.NewPlaylists(h.local, h.sub)
	if err := pls.Load(c.Request.Context(), middleware.CurrentIdentity(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
		return nil, false
	}
	return pls, true
}

func (h *MeHandler) listPlaylists(c *gin.Context) {
	pls, ok := h.playlists(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "playlists": pls.List()})
}

type createPlaylistReq struct {
	Name string `json:"name"`
}

func (h *MeHandler) createPlaylist(c *gin.Context) {
	var req createPlaylistReq
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	pls, ok := h.playlists(c)
	if !ok {
		return
	}
	pl, ticket := pls.Create(c.Request.Context(), strings.TrimSpace(req.Name))
	c.JSON(http.StatusCreated, gin.H{"ok": true, "playlist": pl, "sync": syncStatus(c, ticket)})
}

type updatePlaylistReq struct {
	Name  *string  `json:"name"`
	Items []string `json:"items"`
}

func (h *MeHandler) updatePlaylist(c *gin.Context) {
	var req updatePlaylistReq
	if err := c.ShouldBindJSON(&req); err != nil || (req.Name == nil && req.Items == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	h.mutatePlaylist(c, func(ctx context.Context, pls *library.Playlists, id string) (*profile.Ticket, error) {
		var last *profile.Ticket
		if req.Name != nil {
			t, err := pls.Rename(ctx, id, strings.TrimSpace(*req.Name))
			if err != nil {
				return nil, err
			}
			last = t
		}
		if req.Items != nil {
			t, err := pls.Reorder(ctx, id, req.Items)
			if err != nil {
				return nil, err
			}
			last = t
		}
		return last, nil
	})
}

func (h *MeHandler) deletePlaylist(c *gin.Context) {
	pls, ok := h.playlists(c)
	if !ok {
		return
	}
	ticket, err := pls.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		playlistError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "sync": syncStatus(c, ticket)})
}

func (h *MeHandler) addItem(c *gin.Context) {
	h.mutatePlaylist(c, func(ctx context.Context, pls *library.Playlists, id string) (*profile.Ticket, error) {
		return pls.Add(ctx, id, c.Param("hymnId"))
	})
}

func (h *MeHandler) removeItem(c *gin.Context) {
	h.mutatePlaylist(c, func(ctx context.Context, pls *library.Playlists, id string) (*profile.Ticket, error) {
		return pls.Remove(ctx, id, c.Param("hymnId"))
	})
}

func (h *MeHandler) mutatePlaylist(c *gin.Context, fn func(context.Context, *library.Playlists, string) (*profile.Ticket, error)) {
	pls, ok := h.playlists(c)
	if !ok {
		return
	}
	id := c.Param("id")
	ticket, err := fn(c.Request.Context(), pls, id)
	if err != nil {
		playlistError(c, err)
		return
	}
	pl, err := pls.Get(id)
	if err != nil {
		playlistError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "playlist": pl, "sync": syncStatus(c, ticket)})
}

type preferencesReq struct {
	Theme    *string `json:"theme"`
	Language *string `json:"language"`
}

func (h *MeHandler) setPreferences(c *gin.Context) {
	var req preferencesReq
	if err := c.ShouldBindJSON(&req); err != nil || (req.Theme == nil && req.Language == nil) {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid body"})
		return
	}

	ctx := c.Request.Context()
	id := middleware.CurrentIdentity(c)
	resp := gin.H{"ok": true}

	prefs := []struct {
		value *string
		key   string
		typ   profile.SyncType
	}{
		{req.Theme, kvstore.KeySelectedTheme, profile.SyncTheme},
		{req.Language, kvstore.KeySelectedLanguage, profile.SyncLanguage},
	}
	for _, p := range prefs {
		if p.value == nil {
			continue
		}
		if err := h.local.Set(ctx, p.key, *p.value); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
			return
		}
		resp[string(p.typ)] = syncStatus(c, h.submit(id, p.typ, *p.value))
	}
	c.JSON(http.StatusOK, resp)
}

func (h *MeHandler) submit(id identity.Identity, t profile.SyncType, data any) *profile.Ticket {
	if h.sub == nil || !id.Authenticated() {
		return nil
	}
	return h.sub.Submit(profile.Task{UserID: id.UserID, Type: t, Data: data})
}

// syncStatus reports a ticket's outcome. With ?wait=true the handler waits
// for the remote push to settle; otherwise it answers "pending".
func syncStatus(c *gin.Context, ticket *profile.Ticket) string {
	if ticket == nil {
		return syncLocal
	}
	if c.Query("wait") != "true" {
		return syncPending
	}
	res, err := ticket.Wait(c.Request.Context())
	if err != nil {
		return syncPending
	}
	return string(res.Outcome)
}

func playlistError(c *gin.Context, err error) {
	if errors.Is(err, library.ErrPlaylistNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"ok": false, "error": "playlist not found"})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": err.Error()})
}
