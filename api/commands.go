package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Bikxs/skafu-core/domain"
	"github.com/Bikxs/skafu-core/messaging"
)

// CommandRequest is the intake shape for command submission
type CommandRequest struct {
	AggregateID string          `json:"aggregate_id" binding:"required"`
	CommandType string          `json:"command_type" binding:"required"`
	Payload     json.RawMessage `json:"payload"`
	CausationID string          `json:"causation_id"`
}

// CommandResponse is returned on successful command execution
type CommandResponse struct {
	CommandID      string                    `json:"command_id"`
	CorrelationID  string                    `json:"correlation_id"`
	ProducedEvents []messaging.EventEnvelope `json:"produced_events"`
}

// submitCommand accepts a command, runs it synchronously, and returns the
// committed events
func (s *Server) submitCommand(c *gin.Context) {
	var req CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	cmd := domain.Command{
		AggregateID:   req.AggregateID,
		CommandType:   req.CommandType,
		Payload:       req.Payload,
		CorrelationID: c.GetString(correlationIDKey),
		CausationID:   req.CausationID,
	}
	cmd.Normalize()

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.CommandTimeout)
	defer cancel()

	result, err := s.handler.Handle(ctx, cmd)
	if err != nil {
		status, body := commandErrorResponse(cmd, err)
		c.JSON(status, body)
		return
	}

	envelopes := make([]messaging.EventEnvelope, 0, len(result.ProducedEvents))
	for _, event := range result.ProducedEvents {
		env, err := messaging.Wrap(event)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		envelopes = append(envelopes, env)
	}

	c.JSON(http.StatusOK, CommandResponse{
		CommandID:      result.CommandID,
		CorrelationID:  result.CorrelationID,
		ProducedEvents: envelopes,
	})
}

// commandErrorResponse maps processing failures to HTTP semantics. Conflicts
// and timeouts are distinct statuses so callers can retry or reconcile.
func commandErrorResponse(cmd domain.Command, err error) (int, gin.H) {
	body := gin.H{
		"error":          err.Error(),
		"code":           domain.ErrorCode(err),
		"command_id":     cmd.CommandID,
		"correlation_id": cmd.CorrelationID,
		"retryable":      domain.IsRetryable(err),
	}

	var validation *domain.ValidationError
	var businessRule *domain.BusinessRuleViolation

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest, body
	case errors.As(err, &businessRule):
		return http.StatusUnprocessableEntity, body
	case errors.Is(err, domain.ErrConcurrencyConflict):
		return http.StatusConflict, body
	case errors.Is(err, domain.ErrCommandTimeout):
		return http.StatusGatewayTimeout, body
	case errors.Is(err, domain.ErrAggregateNotFound):
		return http.StatusNotFound, body
	case errors.Is(err, domain.ErrUnknownCommandType):
		return http.StatusBadRequest, body
	default:
		return http.StatusInternalServerError, body
	}
}
