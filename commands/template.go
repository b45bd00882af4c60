package commands

import (
	"fmt"

	"github.com/Bikxs/skafu-core/domain"
)

type RegisterTemplatePayload struct {
	Name      string `json:"name" validate:"required,min=1,max=120"`
	SourceURL string `json:"source_url" validate:"required,url"`
	Framework string `json:"framework" validate:"required"`
}

type UpdateTemplatePayload struct {
	Name      string `json:"name" validate:"required,min=1,max=120"`
	SourceURL string `json:"source_url" validate:"required,url"`
	Framework string `json:"framework" validate:"required"`
}

type PublishTemplatePayload struct {
	Version string `json:"version" validate:"required"`
}

type DeprecateTemplatePayload struct {
	Reason string `json:"reason" validate:"max=500"`
}

// decideTemplate computes the events a command produces against current
// template state
func decideTemplate(agg *domain.TemplateAggregate, cmd domain.Command) ([]staged, error) {
	switch cmd.CommandType {
	case domain.RegisterTemplate:
		var payload RegisterTemplatePayload
		if err := decodeCommandPayload(cmd, &payload); err != nil {
			return nil, err
		}
		if agg.Exists() {
			return nil, &domain.BusinessRuleViolation{
				Rule:   "template-unique",
				Reason: fmt.Sprintf("template %s already exists", agg.AggregateID()),
			}
		}
		return []staged{{domain.TemplateRegistered, &domain.TemplateRegisteredPayload{
			Name:      payload.Name,
			SourceURL: payload.SourceURL,
			Framework: payload.Framework,
		}}}, nil

	case domain.UpdateTemplate:
		var payload UpdateTemplatePayload
		if err := decodeCommandPayload(cmd, &payload); err != nil {
			return nil, err
		}
		if err := requireTemplate(agg); err != nil {
			return nil, err
		}
		if agg.State.Status == domain.TemplateStatusDeprecated {
			return nil, &domain.BusinessRuleViolation{
				Rule:   "template-mutable",
				Reason: fmt.Sprintf("template %s is deprecated", agg.AggregateID()),
			}
		}
		return []staged{{domain.TemplateUpdated, &domain.TemplateUpdatedPayload{
			Name:      payload.Name,
			SourceURL: payload.SourceURL,
			Framework: payload.Framework,
		}}}, nil

	case domain.PublishTemplate:
		var payload PublishTemplatePayload
		if err := decodeCommandPayload(cmd, &payload); err != nil {
			return nil, err
		}
		if err := requireTemplate(agg); err != nil {
			return nil, err
		}
		if agg.State.Status == domain.TemplateStatusDeprecated {
			return nil, &domain.BusinessRuleViolation{
				Rule:   "template-publishable",
				Reason: fmt.Sprintf("template %s is deprecated", agg.AggregateID()),
			}
		}
		if agg.State.Status == domain.TemplateStatusPublished && agg.State.Version == payload.Version {
			return nil, nil
		}
		return []staged{{domain.TemplatePublished, &domain.TemplatePublishedPayload{
			Version: payload.Version,
		}}}, nil

	case domain.DeprecateTemplate:
		var payload DeprecateTemplatePayload
		if err := decodeCommandPayload(cmd, &payload); err != nil {
			return nil, err
		}
		if err := requireTemplate(agg); err != nil {
			return nil, err
		}
		if agg.State.Status == domain.TemplateStatusDeprecated {
			return nil, nil
		}
		return []staged{{domain.TemplateDeprecated, &domain.TemplateDeprecatedPayload{
			Reason: payload.Reason,
		}}}, nil

	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownCommandType, cmd.CommandType)
	}
}

func requireTemplate(agg *domain.TemplateAggregate) error {
	if !agg.Exists() {
		return fmt.Errorf("%w: template %s", domain.ErrAggregateNotFound, agg.AggregateID())
	}
	return nil
}
