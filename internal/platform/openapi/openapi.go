package openapi

import (
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

// Param is a query, path, header or form parameter.
type Param struct {
	Name        string
	In          string // query, path, header
	Type        string // string, integer, array
	Format      string
	Required    bool
	Description string
}

// Response describes one status code of an operation. Schema names a
// component; ContentType defaults to application/json.
type Response struct {
	Description string
	Schema      string
	Array       bool
	ContentType string
}

// Operation is one documented route.
type Operation struct {
	Method      string
	Path        string // echo style, e.g. /reports/measures/:id/evaluate
	ID          string
	Summary     string
	Tag         string
	Params      []Param
	Body        string // component schema of a JSON body
	Multipart   []Param
	Responses   map[int]Response
	Deprecated  bool
	Description string
}

// Generator builds an OpenAPI 3.0 document from registered operations.
type Generator struct {
	title   string
	version string
	baseURL string
	ops     []Operation
	schemas map[string]map[string]interface{}
}

func NewGenerator(title, version, baseURL string) *Generator {
	return &Generator{
		title:   title,
		version: version,
		baseURL: baseURL,
		schemas: map[string]map[string]interface{}{"Error": errorSchema()},
	}
}

// AddSchema registers a component schema under name.
func (g *Generator) AddSchema(name string, schema map[string]interface{}) {
	g.schemas[name] = schema
}

func (g *Generator) Add(ops ...Operation) {
	g.ops = append(g.ops, ops...)
}

// GenerateSpec produces the OpenAPI 3.0 document as a map.
func (g *Generator) GenerateSpec() map[string]interface{} {
	paths := make(map[string]interface{})
	var tags []string
	seen := make(map[string]bool)

	for _, op := range g.ops {
		path := toOpenAPIPath(op.Path)
		item, _ := paths[path].(map[string]interface{})
		if item == nil {
			item = make(map[string]interface{})
			paths[path] = item
		}
		item[strings.ToLower(op.Method)] = g.buildOperation(op)

		if op.Tag != "" && !seen[op.Tag] {
			seen[op.Tag] = true
			tags = append(tags, op.Tag)
		}
	}
	sort.Strings(tags)

	tagList := make([]map[string]string, 0, len(tags))
	for _, t := range tags {
		tagList = append(tagList, map[string]string{"name": t})
	}

	schemas := make(map[string]interface{}, len(g.schemas))
	for name, s := range g.schemas {
		schemas[name] = s
	}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":   g.title,
			"version": g.version,
		},
		"servers": []map[string]string{
			{"url": g.baseURL},
		},
		"tags":  tagList,
		"paths": paths,
		"components": map[string]interface{}{
			"schemas": schemas,
			"securitySchemes": map[string]interface{}{
				"bearerAuth": map[string]interface{}{
					"type":         "http",
					"scheme":       "bearer",
					"bearerFormat": "JWT",
				},
			},
		},
		"security": []map[string][]string{{"bearerAuth": {}}},
	}
}

func (g *Generator) buildOperation(op Operation) map[string]interface{} {
	out := map[string]interface{}{
		"operationId": op.ID,
		"summary":     op.Summary,
		"responses":   g.buildResponses(op.Responses),
	}
	if op.Tag != "" {
		out["tags"] = []string{op.Tag}
	}
	if op.Description != "" {
		out["description"] = op.Description
	}
	if op.Deprecated {
		out["deprecated"] = true
	}
	if len(op.Params) > 0 {
		params := make([]map[string]interface{}, 0, len(op.Params))
		for _, p := range op.Params {
			params = append(params, buildParameter(p))
		}
		out["parameters"] = params
	}

	switch {
	case op.Body != "":
		out["requestBody"] = map[string]interface{}{
			"required": true,
			"content": map[string]interface{}{
				"application/json": map[string]interface{}{
					"schema": ref(op.Body),
				},
			},
		}
	case len(op.Multipart) > 0:
		props := make(map[string]interface{}, len(op.Multipart))
		var required []string
		for _, p := range op.Multipart {
			props[p.Name] = paramSchema(p)
			if p.Required {
				required = append(required, p.Name)
			}
		}
		schema := map[string]interface{}{"type": "object", "properties": props}
		if len(required) > 0 {
			schema["required"] = required
		}
		out["requestBody"] = map[string]interface{}{
			"required": true,
			"content": map[string]interface{}{
				"multipart/form-data": map[string]interface{}{"schema": schema},
			},
		}
	}
	return out
}

func (g *Generator) buildResponses(responses map[int]Response) map[string]interface{} {
	out := make(map[string]interface{}, len(responses))
	for code, r := range responses {
		resp := map[string]interface{}{"description": r.Description}
		ct := r.ContentType
		if ct == "" {
			ct = echo.MIMEApplicationJSON
		}
		switch {
		case r.Schema != "":
			schema := ref(r.Schema)
			if r.Array {
				schema = map[string]interface{}{"type": "array", "items": schema}
			}
			resp["content"] = map[string]interface{}{ct: map[string]interface{}{"schema": schema}}
		case r.ContentType != "":
			resp["content"] = map[string]interface{}{
				ct: map[string]interface{}{
					"schema": map[string]interface{}{"type": "string", "format": "binary"},
				},
			}
		case code >= 400:
			resp["content"] = map[string]interface{}{ct: map[string]interface{}{"schema": ref("Error")}}
		}
		out[strconv.Itoa(code)] = resp
	}
	return out
}

func buildParameter(p Param) map[string]interface{} {
	out := map[string]interface{}{
		"name":   p.Name,
		"in":     p.In,
		"schema": paramSchema(p),
	}
	if p.Required || p.In == "path" {
		out["required"] = true
	}
	if p.Description != "" {
		out["description"] = p.Description
	}
	if p.Type == "array" {
		out["style"] = "form"
		out["explode"] = true
	}
	return out
}

func paramSchema(p Param) map[string]interface{} {
	typ := p.Type
	if typ == "" {
		typ = "string"
	}
	if typ == "array" {
		return map[string]interface{}{"type": "array", "items": map[string]string{"type": "string"}}
	}
	s := map[string]interface{}{"type": typ}
	if p.Format != "" {
		s["format"] = p.Format
	}
	return s
}

// toOpenAPIPath rewrites echo's :param segments as {param}.
func toOpenAPIPath(path string) string {
	parts := strings.Split(path, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, ":") {
			parts[i] = "{" + p[1:] + "}"
		}
	}
	return strings.Join(parts, "/")
}

func ref(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

// errorSchema is the body echo writes for an *echo.HTTPError.
func errorSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":     "object",
		"required": []string{"message"},
		"properties": map[string]interface{}{
			"message": map[string]string{"type": "string"},
		},
	}
}

// Object builds an object schema from property name to type. A type of the
// form "string:date" carries a format; "[]string" is an array of strings.
func Object(required []string, props map[string]string) map[string]interface{} {
	properties := make(map[string]interface{}, len(props))
	for name, typ := range props {
		switch {
		case strings.HasPrefix(typ, "[]"):
			properties[name] = map[string]interface{}{
				"type":  "array",
				"items": map[string]string{"type": typ[2:]},
			}
		case strings.Contains(typ, ":"):
			t, f, _ := strings.Cut(typ, ":")
			properties[name] = map[string]string{"type": t, "format": f}
		default:
			properties[name] = map[string]string{"type": typ}
		}
	}
	s := map[string]interface{}{"type": "object", "properties": properties}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// RegisterRoutes serves the document at /openapi.json.
func (g *Generator) RegisterRoutes(e *echo.Echo) {
	spec := g.GenerateSpec()
	e.GET("/openapi.json", func(c echo.Context) error {
		return c.JSON(http.StatusOK, spec)
	})
}
