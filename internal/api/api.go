// Package api exposes the device caches over HTTP.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/biofugitive/fieldcache/internal/activity"
	"github.com/biofugitive/fieldcache/pkg/schema"
)

// Handler serves the cache routes. Caches come from the request context.
type Handler struct {
	// Now drives the time_ago rendering; defaults to time.Now.
	Now func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// --- Session ---

func (h *Handler) GetSession(c *gin.Context) {
	c.JSON(http.StatusOK, MustSession(c).Snapshot())
}

func (h *Handler) Login(c *gin.Context) {
	var input struct {
		Token string      `json:"token"`
		User  schema.User `json:"user"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sess := MustSession(c)
	if err := sess.Login(c.Request.Context(), input.Token, input.User); err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (h *Handler) Logout(c *gin.Context) {
	sess := MustSession(c)
	if err := sess.Logout(c.Request.Context()); err != nil {
		// The session is forgotten in memory either way.
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "session": sess.Snapshot()})
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

func (h *Handler) Extend(c *gin.Context) {
	sess := MustSession(c)
	if err := sess.ExtendSession(c.Request.Context()); err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot())
}

// --- Activities ---

type activityView struct {
	schema.Activity
	TimeAgo string `json:"time_ago"`
}

func (h *Handler) renderActivities(list []schema.Activity) []activityView {
	now := h.now()
	out := make([]activityView, len(list))
	for i, a := range list {
		out[i] = activityView{Activity: a, TimeAgo: activity.FormatTimeAgo(a.Timestamp, now)}
	}
	return out
}

func (h *Handler) ListActivities(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"activities": h.renderActivities(MustActivities(c).List())})
}

func (h *Handler) AddActivity(c *gin.Context) {
	var input struct {
		Kind    string         `json:"kind" binding:"required"`
		Message string         `json:"message"`
		Color   schema.Color   `json:"color"`
		Details map[string]any `json:"details"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	list, durability := MustActivities(c).Append(c.Request.Context(), activity.Kind(input.Kind), activity.Overrides{
		Message: input.Message,
		Color:   input.Color,
		Details: input.Details,
	})
	c.JSON(http.StatusCreated, gin.H{
		"activities": h.renderActivities(list),
		"durability": durability.String(),
	})
}

func (h *Handler) RefreshActivities(c *gin.Context) {
	log := MustActivities(c)
	log.Refresh(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"activities": h.renderActivities(log.List())})
}

func (h *Handler) ClearActivities(c *gin.Context) {
	if err := MustActivities(c).Clear(c.Request.Context()); err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}

func (h *Handler) ListKinds(c *gin.Context) {
	c.JSON(http.StatusOK, activity.Kinds())
}

// --- Recently viewed persons ---

func (h *Handler) ListRecent(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"persons": MustRecent(c).List()})
}

func (h *Handler) TouchRecent(c *gin.Context) {
	var input struct {
		PersonID string         `json:"person_id" binding:"required"`
		Name     string         `json:"name"`
		Details  map[string]any `json:"details"`
	}
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	list := MustRecent(c).Touch(c.Request.Context(), schema.PersonRef{
		PersonID: input.PersonID,
		Name:     input.Name,
		Details:  input.Details,
	})
	c.JSON(http.StatusOK, gin.H{"persons": list})
}

func (h *Handler) ClearRecent(c *gin.Context) {
	if err := MustRecent(c).Clear(c.Request.Context()); err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
