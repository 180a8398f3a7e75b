// Package policy evaluates the document intake policy with OPA.
package policy

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/open-policy-agent/opa/rego"
)

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// Intake is the policy input describing one submitted document.
type Intake struct {
	MediaType          string   `json:"media_type"`
	Size               int64    `json:"size"`
	MaxSize            int64    `json:"max_size"`
	AcceptedMediaTypes []string `json:"accepted_media_types"`
}

// NewEngine creates a new policy engine with the given policy content.
// The policy must define the set data.intake.deny of reason strings.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("data.intake.deny"),
		rego.Module("intake.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// Evaluate checks the intake policy and returns the deny reasons, sorted.
// An empty result means the document is accepted.
func (e *Engine) Evaluate(ctx context.Context, in Intake) ([]string, error) {
	in.MediaType = NormalizeMediaType(in.MediaType)
	input := map[string]interface{}{
		"media_type":           in.MediaType,
		"size":                 in.Size,
		"max_size":             in.MaxSize,
		"accepted_media_types": in.AcceptedMediaTypes,
	}

	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate policy: %w", err)
	}

	if len(results) == 0 || len(results[0].Expressions) == 0 {
		return nil, nil
	}

	set, ok := results[0].Expressions[0].Value.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected policy result type %T", results[0].Expressions[0].Value)
	}

	reasons := make([]string, 0, len(set))
	for _, v := range set {
		reasons = append(reasons, fmt.Sprint(v))
	}
	sort.Strings(reasons)
	return reasons, nil
}

// NormalizeMediaType lowercases a media type and drops its parameters.
func NormalizeMediaType(mediaType string) string {
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = mediaType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mediaType))
}

// DefaultPolicy is the default intake policy.
const DefaultPolicy = `
package intake

import rego.v1

accepted_type if {
	some t in input.accepted_media_types
	lower(t) == input.media_type
}

deny contains msg if {
	not accepted_type
	msg := sprintf("unsupported media type: %v", [input.media_type])
}

deny contains msg if {
	input.size > input.max_size
	msg := sprintf("file too large: %v bytes exceeds limit of %v bytes", [input.size, input.max_size])
}

deny contains "file is empty" if {
	input.size == 0
}
`
