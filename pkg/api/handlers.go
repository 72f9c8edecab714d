package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/harrisonrobin/taskboard/pkg/aggregate"
	"github.com/harrisonrobin/taskboard/pkg/board"
	"github.com/harrisonrobin/taskboard/pkg/events"
	"github.com/harrisonrobin/taskboard/pkg/model"
	"github.com/harrisonrobin/taskboard/pkg/reconcile"
	"github.com/harrisonrobin/taskboard/pkg/store"
	"github.com/harrisonrobin/taskboard/pkg/syncer"
	"github.com/harrisonrobin/taskboard/pkg/visibility"
)

type viewSummary struct {
	View  model.ViewLevel `json:"view"`
	Count int             `json:"count"`
}

type viewsResponse struct {
	Actor        model.Actor       `json:"actor"`
	Views        []viewSummary     `json:"views"`
	Members      map[string]int    `json:"members,omitempty"`
	Unavailable  []model.ViewLevel `json:"unavailable,omitempty"`
	OfflineViews []model.ViewLevel `json:"offlineViews,omitempty"`
}

type tasksResponse struct {
	View         model.ViewLevel   `json:"view"`
	Target       string            `json:"target,omitempty"`
	Offline      bool              `json:"offline"`
	Tasks        []model.Task      `json:"tasks"`
	Counts       aggregate.Counts  `json:"counts"`
	Members      []model.Member    `json:"members,omitempty"`
	Unavailable  []model.ViewLevel `json:"unavailable,omitempty"`
	OfflineViews []model.ViewLevel `json:"offlineViews,omitempty"`
}

type syncResponse struct {
	Synced  int    `json:"synced"`
	Skipped int    `json:"skipped"`
	Failed  int    `json:"failed"`
	Error   string `json:"error,omitempty"`
}

func (s *Server) boardFor(c *gin.Context) (*board.Board, model.Actor, error) {
	actor := actorFrom(c)
	q, err := s.queues.get(actor.ID)
	if err != nil {
		return nil, actor, err
	}
	engine := reconcile.NewEngine(s.store, q, s.logger)
	return board.New(engine, actor, s.roster, s.logger), actor, nil
}

func (s *Server) handleViews(c *gin.Context) {
	b, actor, err := s.boardFor(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	snap, err := b.Refresh(c.Request.Context())
	// The default personal view failing offline does not hide the counts.
	if err != nil && !errors.Is(err, store.ErrBackendUnavailable) {
		s.writeError(c, err)
		return
	}

	resp := viewsResponse{
		Actor:        actor,
		Members:      snap.Counts.Members,
		Unavailable:  snap.Unavailable,
		OfflineViews: snap.OfflineViews,
	}
	for _, v := range visibility.Permitted(actor) {
		if n, ok := snap.Counts.Views[v]; ok {
			resp.Views = append(resp.Views, viewSummary{View: v, Count: n})
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleViewTasks(c *gin.Context) {
	view, err := model.ParseViewLevel(c.Param("view"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	b, actor, err := s.boardFor(c)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	target := c.Query("member")
	if view == model.ViewTeam {
		target = c.Query("team")
	}
	b.SetView(view, target)

	snap, err := b.Refresh(c.Request.Context())
	if err != nil {
		s.writeError(c, err)
		return
	}
	resp := tasksResponse{
		View:         snap.View,
		Target:       snap.Target,
		Offline:      snap.Offline,
		Tasks:        snap.Tasks,
		Counts:       snap.Counts,
		Unavailable:  snap.Unavailable,
		OfflineViews: snap.OfflineViews,
	}
	if resp.Tasks == nil {
		resp.Tasks = []model.Task{}
	}
	if view == model.ViewIndividual {
		resp.Members = visibility.VisibleMembers(actor, s.roster)
	}
	c.JSON(http.StatusOK, resp)
}

// handleCreateTask creates the task remotely, or queues it as pending when
// no backend is reachable.
func (s *Server) handleCreateTask(c *gin.Context) {
	actor := actorFrom(c)
	var t model.Task
	if err := c.ShouldBindJSON(&t); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	// Placement follows the owner's standing, never the request body.
	t.OwnerID = actor.ID
	t.TeamID = actor.TeamID
	t.DepartmentType = actor.DepartmentType
	t.Pending = false
	if t.AssignedTo != "" && t.AssignedTo != actor.ID && !visibility.CanTarget(actor, t.AssignedTo, s.roster) {
		c.JSON(http.StatusForbidden, gin.H{"error": "cannot assign tasks to " + t.AssignedTo})
		return
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	q, err := s.queues.get(actor.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	task, queued, err := s.syncer.Submit(c.Request.Context(), q, t)
	switch {
	case err != nil:
		s.writeError(c, err)
	case queued:
		c.JSON(http.StatusAccepted, task)
	default:
		c.JSON(http.StatusCreated, task)
	}
}

func (s *Server) handleSync(c *gin.Context) {
	actor := actorFrom(c)
	q, err := s.queues.get(actor.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	res, err := s.syncer.Run(c.Request.Context(), actor, q)
	resp := syncResponse{Synced: res.Synced, Skipped: res.Skipped, Failed: res.Failed}
	switch {
	case err == nil:
		c.JSON(http.StatusOK, resp)
	case errors.Is(err, syncer.ErrPartialSync):
		resp.Error = err.Error()
		c.JSON(http.StatusOK, resp)
	default:
		s.writeError(c, err)
	}
}

// handleEvents streams bus events as server-sent events until the client
// goes away. Sync results are only sent to the actor they belong to.
func (s *Server) handleEvents(c *gin.Context) {
	actor := actorFrom(c)
	sub := s.bus.Subscribe()
	defer sub.Close()

	// Send headers now so the client knows the subscription is live.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	c.Stream(func(io.Writer) bool {
		select {
		case <-c.Request.Context().Done():
			return false
		case e, ok := <-sub.C():
			if !ok {
				return false
			}
			switch e.Kind {
			case events.TasksSynced:
				if !e.For(actor.ID) {
					return true
				}
			case events.TasksRefreshNeeded:
				e.ActorID = ""
			}
			c.SSEvent(string(e.Kind), e)
			return true
		}
	})
}

func (s *Server) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, visibility.ErrViewNotPermitted):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrBackendUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, model.ErrInvalidTask):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, board.ErrStale), errors.Is(err, store.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
