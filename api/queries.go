package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Bikxs/skafu-core/faults"
	"github.com/Bikxs/skafu-core/messaging"
	"github.com/Bikxs/skafu-core/models"
)

// listProjects returns the project read model, filterable by status and owner
func (s *Server) listProjects(c *gin.Context) {
	query := s.db.Model(&models.ProjectView{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if owner := c.Query("owner_id"); owner != "" {
		query = query.Where("owner_id = ?", owner)
	}

	limit, offset := pagination(c)

	var projects []models.ProjectView
	if err := query.Order("updated_at desc").Limit(limit).Offset(offset).Find(&projects).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"projects": projects})
}

// getProject returns one project by aggregate id
func (s *Server) getProject(c *gin.Context) {
	id := c.Param("id")

	var project models.ProjectView
	err := s.db.Where("aggregate_id = ?", id).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, project)
}

// getProjectEvents returns the raw event stream of one project
func (s *Server) getProjectEvents(c *gin.Context) {
	id := c.Param("id")

	fromSequence := int64(0)
	if from := c.Query("from"); from != "" {
		parsed, err := strconv.ParseInt(from, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid from sequence"})
			return
		}
		fromSequence = parsed
	}

	events, err := s.store.ReadStream(c.Request.Context(), id, fromSequence)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if len(events) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "project not found"})
		return
	}

	envelopes := make([]messaging.EventEnvelope, 0, len(events))
	for _, event := range events {
		env, err := messaging.Wrap(event)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		envelopes = append(envelopes, env)
	}

	c.JSON(http.StatusOK, gin.H{"events": envelopes})
}

// listTemplates returns the template catalog, filterable by status and
// framework
func (s *Server) listTemplates(c *gin.Context) {
	query := s.db.Model(&models.TemplateView{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if framework := c.Query("framework"); framework != "" {
		query = query.Where("framework = ?", framework)
	}

	limit, offset := pagination(c)

	var templates []models.TemplateView
	if err := query.Order("updated_at desc").Limit(limit).Offset(offset).Find(&templates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"templates": templates})
}

// getTemplate returns one template by aggregate id
func (s *Server) getTemplate(c *gin.Context) {
	id := c.Param("id")

	var template models.TemplateView
	err := s.db.Where("aggregate_id = ?", id).First(&template).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, template)
}

// getErrorsByCorrelation returns every error record sharing a correlation id
func (s *Server) getErrorsByCorrelation(c *gin.Context) {
	correlationID := c.Param("correlationId")

	records, err := s.errors.QueryByCorrelation(c.Request.Context(), correlationID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"errors": records})
}

// queryErrorWindow returns error records in a time window with optional
// component, severity, code and retryable filters
func (s *Server) queryErrorWindow(c *gin.Context) {
	end := time.Now().UTC()
	start := end.Add(-1 * time.Hour)

	if raw := c.Query("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid start time, expected RFC3339"})
			return
		}
		start = parsed
	}
	if raw := c.Query("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid end time, expected RFC3339"})
			return
		}
		end = parsed
	}

	filter := faults.Filter{
		SourceComponent: c.Query("component"),
		Severity:        c.Query("severity"),
		Code:            c.Query("code"),
	}
	if raw := c.Query("retryable"); raw != "" {
		retryable, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid retryable flag"})
			return
		}
		filter.Retryable = &retryable
	}

	records, err := s.errors.QueryByWindow(c.Request.Context(), start, end, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"errors": records})
}

func pagination(c *gin.Context) (limit, offset int) {
	limit = 50
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 && parsed <= 500 {
			limit = parsed
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed >= 0 {
			offset = parsed
		}
	}
	return limit, offset
}
