package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/agenthands/unison/internal/core"
	"github.com/agenthands/unison/internal/core/model"
)

type Server struct {
	Engine *core.Engine
	Logger *zap.Logger
}

func NewServer(engine *core.Engine, logger *zap.Logger) *Server {
	return &Server{Engine: engine, Logger: logger}
}

func (s *Server) SetupRouter() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	entities := r.Group("/entities/:guid")
	entities.GET("", s.GetEntity)
	entities.GET("/relationships", s.GetRelationships)
	entities.GET("/relationships/unique", s.GetUniqueRelationship)
	entities.GET("/related", s.GetRelatedEntities)

	return r
}

func (s *Server) GetEntity(c *gin.Context) {
	opts, err := parseOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entity, err := s.Engine.ResolveEntityByGUID(c.Request.Context(), c.Param("guid"), opts)
	if err != nil {
		s.fail(c, err)
		return
	}
	if entity == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "entity is not visible at the requested time"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entity": entity})
}

func (s *Server) GetRelationships(c *gin.Context) {
	start, req, ok := s.relationshipRequest(c)
	if !ok {
		return
	}

	rels, err := s.Engine.ResolveRelationships(c.Request.Context(), start, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	if rels == nil {
		rels = []*model.RelationshipInstance{}
	}
	c.JSON(http.StatusOK, gin.H{"relationships": rels})
}

func (s *Server) GetUniqueRelationship(c *gin.Context) {
	start, req, ok := s.relationshipRequest(c)
	if !ok {
		return
	}

	rel, err := s.Engine.ResolveUniqueRelationship(c.Request.Context(), start, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"relationship": rel})
}

func (s *Server) GetRelatedEntities(c *gin.Context) {
	start, req, ok := s.relationshipRequest(c)
	if !ok {
		return
	}

	related, err := s.Engine.ResolveRelatedEntities(c.Request.Context(), start, req)
	if err != nil {
		s.fail(c, err)
		return
	}
	if related == nil {
		related = []*model.EntityInstance{}
	}
	c.JSON(http.StatusOK, gin.H{"entities": related})
}

// relationshipRequest parses the query string and fetches the starting
// entity. It writes the error response itself and reports false on failure.
func (s *Server) relationshipRequest(c *gin.Context) (*model.EntityInstance, core.RelationshipRequest, bool) {
	var req core.RelationshipRequest
	opts, err := parseOptions(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, req, false
	}
	req.Options = opts
	req.TypeName = c.Query("type")
	req.TypeGUID = c.Query("type_guid")
	req.RelatedTypeName = c.Query("related_type")
	for _, st := range c.QueryArray("status") {
		req.Statuses = append(req.Statuses, model.InstanceStatus(strings.ToUpper(st)))
	}

	if req.AttachmentEnd, err = intQuery(c, "end"); err != nil || req.AttachmentEnd < 0 || req.AttachmentEnd > 2 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "end must be 0, 1 or 2"})
		return nil, req, false
	}
	if req.StartFrom, err = intQuery(c, "start_from"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, req, false
	}
	if req.PageSize, err = intQuery(c, "page_size"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return nil, req, false
	}

	start, err := s.Engine.Store.GetEntity(c.Request.Context(), c.Param("guid"), opts.AsOfTime)
	if err != nil {
		s.fail(c, err)
		return nil, req, false
	}
	return start, req, true
}

func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch model.KindOf(err) {
	case model.KindNotFound, model.KindProxyOnly:
		status = http.StatusNotFound
	case model.KindTypeMismatch:
		status = http.StatusUnprocessableEntity
	case model.KindAmbiguousResult:
		status = http.StatusConflict
	case model.KindStoreUnavailable:
		status = http.StatusServiceUnavailable
	}

	body := gin.H{"error": err.Error(), "kind": model.KindOf(err).String()}
	var modelErr *model.Error
	if errors.As(err, &modelErr) && len(modelErr.GUIDs) > 0 {
		body["guids"] = modelErr.GUIDs
	}

	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, body)
}

func parseOptions(c *gin.Context) (core.Options, error) {
	var (
		opts core.Options
		err  error
	)
	if opts.EffectiveTime, err = timeQuery(c, "effective_time"); err != nil {
		return opts, err
	}
	if opts.AsOfTime, err = timeQuery(c, "as_of_time"); err != nil {
		return opts, err
	}
	if opts.ForLineage, err = boolQuery(c, "for_lineage"); err != nil {
		return opts, err
	}
	if opts.ForDuplicateProcessing, err = boolQuery(c, "for_duplicate_processing"); err != nil {
		return opts, err
	}
	opts.ExpectedTypeName = c.Query("expected_type")
	return opts, nil
}

func timeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, errors.New(key + " must be an RFC3339 timestamp")
	}
	return &t, nil
}

func boolQuery(c *gin.Context, key string) (bool, error) {
	raw := c.Query(key)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New(key + " must be a boolean")
	}
	return v, nil
}

func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return v, nil
}
