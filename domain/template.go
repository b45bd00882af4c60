package domain

import "fmt"

// Template status values
const (
	TemplateStatusDraft      = "DRAFT"
	TemplateStatusPublished  = "PUBLISHED"
	TemplateStatusDeprecated = "DEPRECATED"
)

// TemplateState is the current state of a template aggregate
type TemplateState struct {
	Name      string `json:"name"`
	SourceURL string `json:"source_url"`
	Framework string `json:"framework"`
	Version   string `json:"version"`
	Status    string `json:"status"`
}

// TemplateAggregate is the aggregate for a scaffolding template
type TemplateAggregate struct {
	*AggregateBase
	State TemplateState
}

// NewTemplateAggregate creates an empty template aggregate
func NewTemplateAggregate(id string) *TemplateAggregate {
	return &TemplateAggregate{
		AggregateBase: NewAggregateBase(AggregateTemplate, id),
	}
}

// Exists reports whether any event has been applied
func (a *TemplateAggregate) Exists() bool {
	return a.Sequence() > 0
}

// Apply reduces a single event into the template state
func (a *TemplateAggregate) Apply(e Event) error {
	switch p := e.Payload.(type) {
	case *TemplateRegisteredPayload:
		a.State.Name = p.Name
		a.State.SourceURL = p.SourceURL
		a.State.Framework = p.Framework
		a.State.Status = TemplateStatusDraft

	case *TemplateUpdatedPayload:
		a.State.Name = p.Name
		a.State.SourceURL = p.SourceURL
		a.State.Framework = p.Framework

	case *TemplatePublishedPayload:
		a.State.Version = p.Version
		a.State.Status = TemplateStatusPublished

	case *TemplateDeprecatedPayload:
		a.State.Status = TemplateStatusDeprecated

	default:
		return fmt.Errorf("%w: %T", ErrUnknownEventType, e.Payload)
	}

	a.advance(e)
	return nil
}
