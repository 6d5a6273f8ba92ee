// Package dispatch implements the single parameterized HTTP-to-WebSocket
// helper used by every REST endpoint: it extracts and validates params,
// resolves the target session, correlates a request/response round trip,
// and translates the outcome into an HTTP response.
package dispatch

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// ParamSource names where a parameter may be read from.
type ParamSource string

const (
	SourceQuery       ParamSource = "query"
	SourceBody        ParamSource = "body"
	SourceQueryOrBody ParamSource = "query-or-body"
)

// ParamType names the strict coercion applied to a raw parameter value.
type ParamType string

const (
	TypeString  ParamType = "string"
	TypeNumber  ParamType = "number"
	TypeBoolean ParamType = "boolean"
	TypeObject  ParamType = "object"
)

// ParamSpec describes one parameter an endpoint accepts.
type ParamSpec struct {
	Name   string
	Source ParamSource
	Type   ParamType
}

// extractParams reads required and optional params per spec, applying
// strict type coercion. It returns an error suitable for a 400
// MissingParameter/TypeMismatch response on the first failure.
func extractParams(r *http.Request, required, optional []ParamSpec) (map[string]any, error) {
	query := r.URL.Query()
	body, err := readJSONBody(r)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}

	result := make(map[string]any, len(required)+len(optional))

	for _, spec := range required {
		raw, ok := lookupParam(spec, query, body)
		if !ok {
			return nil, fmt.Errorf("missing required parameter %q", spec.Name)
		}
		coerced, err := coerce(spec, raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", spec.Name, err)
		}
		result[spec.Name] = coerced
	}

	for _, spec := range optional {
		raw, ok := lookupParam(spec, query, body)
		if !ok {
			continue
		}
		coerced, err := coerce(spec, raw)
		if err != nil {
			return nil, fmt.Errorf("parameter %q: %w", spec.Name, err)
		}
		result[spec.Name] = coerced
	}

	return result, nil
}

func readJSONBody(r *http.Request) (map[string]any, error) {
	if r.Body == nil {
		return map[string]any{}, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, err
	}
	if body == nil {
		body = map[string]any{}
	}
	return body, nil
}

func lookupParam(spec ParamSpec, query map[string][]string, body map[string]any) (any, bool) {
	switch spec.Source {
	case SourceQuery:
		vals, ok := query[spec.Name]
		if !ok || len(vals) == 0 {
			return nil, false
		}
		return vals[0], true
	case SourceBody:
		v, ok := body[spec.Name]
		return v, ok
	case SourceQueryOrBody:
		if vals, ok := query[spec.Name]; ok && len(vals) > 0 {
			return vals[0], true
		}
		v, ok := body[spec.Name]
		return v, ok
	default:
		return nil, false
	}
}

func coerce(spec ParamSpec, v any) (any, error) {
	switch spec.Type {
	case TypeString:
		if s, ok := v.(string); ok {
			return s, nil
		}
		return nil, fmt.Errorf("expected string")
	case TypeNumber:
		switch t := v.(type) {
		case float64:
			return t, nil
		case string:
			n, err := strconv.ParseFloat(t, 64)
			if err != nil {
				return nil, fmt.Errorf("expected number")
			}
			return n, nil
		default:
			return nil, fmt.Errorf("expected number")
		}
	case TypeBoolean:
		switch t := v.(type) {
		case bool:
			return t, nil
		case string:
			b, err := strconv.ParseBool(t)
			if err != nil {
				return nil, fmt.Errorf("expected boolean")
			}
			return b, nil
		default:
			return nil, fmt.Errorf("expected boolean")
		}
	case TypeObject:
		if m, ok := v.(map[string]any); ok {
			return m, nil
		}
		return nil, fmt.Errorf("expected object")
	default:
		return v, nil
	}
}

// remainingPayload returns every extracted param except clientId, which the
// dispatcher already pulled out into the envelope's own ClientID field.
func remainingPayload(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		if k == "clientId" {
			continue
		}
		out[k] = v
	}
	return out
}
