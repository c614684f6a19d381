package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/rendis/flowgraph/internal/serialization"
	"github.com/rendis/flowgraph/pkg/schema"
)

// instanceDocument is the persisted layout of a WorkflowInstance, with each
// variable tagged by the serializer kind that produced it.
type instanceDocument struct {
	DefinitionID        string                                   `json:"definitionId"`
	CorrelationID       string                                   `json:"correlationId"`
	Status              schema.WorkflowStatus                    `json:"status"`
	Variables           map[string]serialization.SerializedValue `json:"variables"`
	BlockingActivityIDs []string                                 `json:"blockingActivityIds"`
	Bookmarks           map[string]schema.Bookmark               `json:"bookmarks,omitempty"`
	ExecutionLog        []schema.ExecutionLogEntry               `json:"executionLog"`
	FaultedActivityID   string                                   `json:"faultedActivityId,omitempty"`
	FaultMessage        string                                   `json:"faultMessage,omitempty"`
	CreatedAt           time.Time                                `json:"createdAt"`
	UpdatedAt           time.Time                                `json:"updatedAt"`
}

// Codec converts instances to and from their persisted JSON document.
type Codec struct {
	registry *serialization.Registry
}

// NewCodec creates a codec. A nil registry uses the default serializers
// without sealed values.
func NewCodec(registry *serialization.Registry) *Codec {
	if registry == nil {
		registry, _ = serialization.DefaultRegistry(nil)
	}
	return &Codec{registry: registry}
}

// Registry returns the serializer registry used for variables.
func (c *Codec) Registry() *serialization.Registry { return c.registry }

// Marshal encodes inst as a JSON document.
func (c *Codec) Marshal(inst *schema.WorkflowInstance) ([]byte, error) {
	vars, err := c.registry.SerializeMap(inst.Variables)
	if err != nil {
		return nil, err
	}
	doc := instanceDocument{
		DefinitionID:        inst.DefinitionID,
		CorrelationID:       inst.CorrelationID,
		Status:              inst.Status,
		Variables:           vars,
		BlockingActivityIDs: nonNil(inst.BlockingActivityIDs),
		Bookmarks:           inst.Bookmarks,
		ExecutionLog:        inst.ExecutionLog,
		FaultedActivityID:   inst.FaultedActivityID,
		FaultMessage:        inst.FaultMessage,
		CreatedAt:           inst.CreatedAt,
		UpdatedAt:           inst.UpdatedAt,
	}
	if doc.ExecutionLog == nil {
		doc.ExecutionLog = []schema.ExecutionLogEntry{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeSerialization, "marshal instance").WithCause(err)
	}
	return data, nil
}

// Unmarshal decodes a document produced by Marshal.
func (c *Codec) Unmarshal(data []byte) (*schema.WorkflowInstance, error) {
	var doc instanceDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, schema.NewError(schema.ErrCodeSerialization, "unmarshal instance").WithCause(err)
	}
	vars, err := c.registry.DeserializeMap(doc.Variables)
	if err != nil {
		return nil, fmt.Errorf("instance %s: %w", doc.CorrelationID, err)
	}
	return &schema.WorkflowInstance{
		DefinitionID:        doc.DefinitionID,
		CorrelationID:       doc.CorrelationID,
		Status:              doc.Status,
		Variables:           vars,
		BlockingActivityIDs: nonNil(doc.BlockingActivityIDs),
		Bookmarks:           doc.Bookmarks,
		ExecutionLog:        doc.ExecutionLog,
		FaultedActivityID:   doc.FaultedActivityID,
		FaultMessage:        doc.FaultMessage,
		CreatedAt:           doc.CreatedAt,
		UpdatedAt:           doc.UpdatedAt,
	}, nil
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}

func cloneDefinition(def *schema.WorkflowType) (*schema.WorkflowType, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return nil, schema.NewError(schema.ErrCodeSerialization, "marshal definition").WithCause(err)
	}
	var out schema.WorkflowType
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, schema.NewError(schema.ErrCodeSerialization, "unmarshal definition").WithCause(err)
	}
	return &out, nil
}

func notFound(resource, id string) *schema.WorkflowError {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", resource, id)
}
