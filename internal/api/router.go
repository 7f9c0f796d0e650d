package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deusflow/topicnews/internal/article"
	"github.com/deusflow/topicnews/internal/config"
	"github.com/deusflow/topicnews/internal/metrics"
	"github.com/deusflow/topicnews/internal/news"
	"github.com/deusflow/topicnews/internal/store"
)

// Aggregator is the part of news.Aggregator the API drives.
type Aggregator interface {
	Categories() []config.Category
	Category(id string) (config.Category, bool)
	RefreshOne(ctx context.Context, id string) ([]article.Article, error)
}

type Server struct {
	agg    Aggregator
	store  *store.SectionStore
	health *metrics.Health
}

func NewServer(agg Aggregator, st *store.SectionStore, health *metrics.Health) *Server {
	if health == nil {
		health = metrics.Global
	}
	return &Server{agg: agg, store: st, health: health}
}

func (s *Server) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", s.healthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api")
	{
		v1.GET("/categories", s.listCategories)
		v1.GET("/articles", s.searchArticles)
		v1.GET("/sections/:id", s.getSection)
		v1.POST("/sections/:id/refresh", s.refreshSection)
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	stats := s.health.GetStats()

	status := http.StatusOK
	state := "ok"
	if !s.health.Healthy() {
		status = http.StatusServiceUnavailable
		state = "error"
	}

	c.JSON(status, gin.H{
		"status":     state,
		"last_run":   stats["last_run_time"],
		"last_error": stats["last_error"],
		"stats":      stats,
	})
}

type categoryView struct {
	ID         string   `json:"id"`
	Label      string   `json:"label"`
	Queries    []string `json:"queries"`
	Count      int      `json:"count"`
	Generation uint64   `json:"generation"`
}

func (s *Server) listCategories(c *gin.Context) {
	cats := s.agg.Categories()
	out := make([]categoryView, 0, len(cats))
	for _, cat := range cats {
		view := categoryView{ID: cat.ID, Label: cat.Label, Queries: cat.Queries}
		if sec, found := s.store.Section(cat.ID); found {
			view.Count = len(sec.Articles)
			view.Generation = sec.Generation
		}
		out = append(out, view)
	}
	ok(c, out)
}

func (s *Server) searchArticles(c *gin.Context) {
	section := c.Query("section")
	if section != "" && section != store.AllSection {
		if _, known := s.agg.Category(section); !known {
			fail(c, http.StatusNotFound, "unknown_category", "unknown category "+section)
			return
		}
	}
	ok(c, s.store.Search(section, c.Query("q")))
}

func (s *Server) getSection(c *gin.Context) {
	id := c.Param("id")
	if _, known := s.agg.Category(id); !known {
		fail(c, http.StatusNotFound, "unknown_category", "unknown category "+id)
		return
	}

	sec, found := s.store.Section(id)
	if !found {
		// Known but not yet refreshed.
		sec = store.Section{Articles: []article.Article{}}
	}
	ok(c, sec)
}

func (s *Server) refreshSection(c *gin.Context) {
	id := c.Param("id")
	items, err := s.agg.RefreshOne(c.Request.Context(), id)
	switch {
	case err == nil:
		if items == nil {
			items = []article.Article{}
		}
		ok(c, items)
	case errors.Is(err, news.ErrUnknownCategory):
		fail(c, http.StatusNotFound, "unknown_category", err.Error())
	case errors.Is(err, news.ErrSuperseded):
		fail(c, http.StatusConflict, "superseded", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		fail(c, http.StatusServiceUnavailable, "canceled", err.Error())
	default:
		fail(c, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    "ok",
		"message": "success",
		"data":    data,
	})
}

func fail(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}
