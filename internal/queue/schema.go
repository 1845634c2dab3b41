// internal/queue/schema.go
package queue

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	stderrors "courier-gateway/internal/common/errors"
	"courier-gateway/internal/models"
)

// jobSchema guards the queue boundary: jobs are produced by another service
// and must be rejected before they consume a worker slot.
const jobSchema = `{
	"type": "object",
	"required": ["tenantId", "targets", "content"],
	"properties": {
		"tenantId": {"type": "string", "minLength": 1},
		"targets": {
			"type": "array",
			"minItems": 1,
			"items": {
				"type": "object",
				"required": ["platformId", "addresseeType", "addresseeId"],
				"properties": {
					"platformId": {"type": "string", "minLength": 1},
					"addresseeType": {"type": "string", "enum": ["user", "channel", "group"]},
					"addresseeId": {"type": "string", "minLength": 1}
				}
			}
		},
		"content": {
			"type": "object",
			"required": ["text"],
			"properties": {
				"text": {"type": "string", "minLength": 1}
			}
		}
	}
}`

var jobSchemaLoader = gojsonschema.NewStringLoader(jobSchema)

// ValidateJob checks a SendJob against the queue's JSON schema.
func ValidateJob(job *models.SendJob) error {
	if job == nil {
		return stderrors.NewJobPayloadInvalidError("job is nil")
	}

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job for validation: %w", err)
	}

	result, err := gojsonschema.Validate(jobSchemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}
		return stderrors.NewJobPayloadInvalidError(strings.Join(details, "; "))
	}
	return nil
}
