package httpapi

import (
	"github.com/go-chi/chi/v5"

	"github.com/ashureev/worldbroker/internal/dispatch"
)

// entityConfigs describes every REST endpoint's mapping onto a WebSocket
// operation. The Type values are the literal wire operation names worlds
// already dispatch on (spec's design notes require preserving them
// verbatim for compatibility), which is why they read "entity", "create",
// "give", … rather than mirroring the REST path.
func entityConfigs() map[string]dispatch.Config {
	clientID := dispatch.ParamSpec{Name: "clientId", Source: dispatch.SourceQuery, Type: dispatch.TypeString}

	return map[string]dispatch.Config{
		"get": {
			Type:     "entity",
			Required: []dispatch.ParamSpec{clientID},
			Optional: []dispatch.ParamSpec{
				{Name: "uuid", Source: dispatch.SourceQuery, Type: dispatch.TypeString},
				{Name: "selected", Source: dispatch.SourceQuery, Type: dispatch.TypeBoolean},
				{Name: "actor", Source: dispatch.SourceQuery, Type: dispatch.TypeString},
			},
		},
		"create": {
			Type: "create",
			Required: []dispatch.ParamSpec{
				clientID,
				{Name: "entityType", Source: dispatch.SourceBody, Type: dispatch.TypeString},
				{Name: "data", Source: dispatch.SourceBody, Type: dispatch.TypeObject},
			},
			Optional: []dispatch.ParamSpec{
				{Name: "folder", Source: dispatch.SourceBody, Type: dispatch.TypeString},
			},
			Validate: validateEntityCreate,
		},
		"update": {
			Type: "update",
			Required: []dispatch.ParamSpec{
				clientID,
				{Name: "data", Source: dispatch.SourceBody, Type: dispatch.TypeObject},
			},
			Optional: []dispatch.ParamSpec{
				{Name: "uuid", Source: dispatch.SourceQueryOrBody, Type: dispatch.TypeString},
				{Name: "selected", Source: dispatch.SourceQueryOrBody, Type: dispatch.TypeBoolean},
				{Name: "actor", Source: dispatch.SourceQueryOrBody, Type: dispatch.TypeString},
			},
		},
		"delete": {
			Type:     "delete",
			Required: []dispatch.ParamSpec{clientID},
			Optional: []dispatch.ParamSpec{
				{Name: "uuid", Source: dispatch.SourceQuery, Type: dispatch.TypeString},
				{Name: "selected", Source: dispatch.SourceQuery, Type: dispatch.TypeBoolean},
			},
		},
		"give": {
			Type:     "give",
			Required: []dispatch.ParamSpec{clientID},
			Optional: []dispatch.ParamSpec{
				{Name: "fromUuid", Source: dispatch.SourceBody, Type: dispatch.TypeString},
				{Name: "toUuid", Source: dispatch.SourceBody, Type: dispatch.TypeString},
				{Name: "selected", Source: dispatch.SourceBody, Type: dispatch.TypeBoolean},
				{Name: "itemUuid", Source: dispatch.SourceBody, Type: dispatch.TypeString},
				{Name: "itemName", Source: dispatch.SourceBody, Type: dispatch.TypeString},
				{Name: "quantity", Source: dispatch.SourceBody, Type: dispatch.TypeNumber},
			},
		},
		"remove": {
			Type:     "remove",
			Required: []dispatch.ParamSpec{clientID},
			Optional: []dispatch.ParamSpec{
				{Name: "actorUuid", Source: dispatch.SourceBody, Type: dispatch.TypeString},
				{Name: "selected", Source: dispatch.SourceBody, Type: dispatch.TypeBoolean},
				{Name: "itemUuid", Source: dispatch.SourceBody, Type: dispatch.TypeString},
				{Name: "itemName", Source: dispatch.SourceBody, Type: dispatch.TypeString},
				{Name: "quantity", Source: dispatch.SourceBody, Type: dispatch.TypeNumber},
			},
		},
		"increase": {
			Type: "increase",
			Required: []dispatch.ParamSpec{
				clientID,
				{Name: "attribute", Source: dispatch.SourceBody, Type: dispatch.TypeString},
				{Name: "amount", Source: dispatch.SourceBody, Type: dispatch.TypeNumber},
			},
			Optional: []dispatch.ParamSpec{
				{Name: "uuid", Source: dispatch.SourceQueryOrBody, Type: dispatch.TypeString},
				{Name: "selected", Source: dispatch.SourceQueryOrBody, Type: dispatch.TypeBoolean},
			},
		},
		"decrease": {
			Type: "decrease",
			Required: []dispatch.ParamSpec{
				clientID,
				{Name: "attribute", Source: dispatch.SourceBody, Type: dispatch.TypeString},
				{Name: "amount", Source: dispatch.SourceBody, Type: dispatch.TypeNumber},
			},
			Optional: []dispatch.ParamSpec{
				{Name: "uuid", Source: dispatch.SourceQueryOrBody, Type: dispatch.TypeString},
				{Name: "selected", Source: dispatch.SourceQueryOrBody, Type: dispatch.TypeBoolean},
			},
		},
		"kill": {
			Type:     "kill",
			Required: []dispatch.ParamSpec{clientID},
			Optional: []dispatch.ParamSpec{
				{Name: "uuid", Source: dispatch.SourceQuery, Type: dispatch.TypeString},
				{Name: "selected", Source: dispatch.SourceQuery, Type: dispatch.TypeBoolean},
			},
		},
	}
}

// validateEntityCreate enforces the script denylist when entityType is
// "Macro", per spec's E4 end-to-end scenario.
func validateEntityCreate(params map[string]any) *dispatch.ValidationError {
	entityType, _ := params["entityType"].(string)
	if entityType != "Macro" {
		return nil
	}
	data, _ := params["data"].(map[string]any)
	command, _ := data["command"].(string)
	return dispatch.CheckScriptDenylist(command)
}

// registerEntityRoutes mounts every REST endpoint from the table above onto
// r, wrapping each with d.Handle.
func registerEntityRoutes(r chi.Router, d *dispatch.Dispatcher) {
	cfgs := entityConfigs()
	r.Get("/entity/get", d.Handle(cfgs["get"]))
	r.Post("/entity/create", d.Handle(cfgs["create"]))
	r.Put("/entity/update", d.Handle(cfgs["update"]))
	r.Delete("/entity/delete", d.Handle(cfgs["delete"]))
	r.Post("/entity/give", d.Handle(cfgs["give"]))
	r.Post("/entity/remove", d.Handle(cfgs["remove"]))
	r.Post("/entity/increase", d.Handle(cfgs["increase"]))
	r.Post("/entity/decrease", d.Handle(cfgs["decrease"]))
	r.Post("/entity/kill", d.Handle(cfgs["kill"]))
}
