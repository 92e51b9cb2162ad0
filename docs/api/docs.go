// Package api holds the OpenAPI document served at /swagger.
// Regenerate with: swag init -g cmd/server/main.go -o docs/api
package api

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "termsOfService": "http://swagger.io/terms/",
        "contact": {
            "name": "API Support",
            "url": "https://github.com/localnerve/lite",
            "email": "info@localnerve.com"
        },
        "license": {
            "name": "AGPL-3.0",
            "url": "https://www.gnu.org/licenses/agpl-3.0.html"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {"get": {"tags": ["Stats"], "summary": "Health check", "produces": ["application/json"], "responses": {"200": {"description": "OK"}, "503": {"description": "Service Unavailable"}}}},
        "/catalog": {"get": {"tags": ["Queries"], "summary": "Artifact category catalog", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
        "/stats": {"get": {"tags": ["Stats"], "summary": "Dashboard", "produces": ["application/json"], "responses": {"200": {"description": "OK"}}}},
        "/stats/charts": {"get": {"tags": ["Stats"], "summary": "Dashboard charts", "produces": ["text/html"], "responses": {"200": {"description": "HTML page"}}}},
        "/cases": {
            "get": {"tags": ["Cases"], "summary": "List cases", "produces": ["application/json"], "parameters": [{"type": "string", "name": "status", "in": "query"}, {"type": "string", "name": "q", "in": "query"}, {"type": "integer", "name": "page", "in": "query"}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Cases"], "summary": "Create a case", "consumes": ["application/json"], "produces": ["application/json"], "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"}, "409": {"description": "Conflict"}}}
        },
        "/cases/{id}": {
            "get": {"tags": ["Cases"], "summary": "Case detail", "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}},
            "patch": {"tags": ["Cases"], "summary": "Update case metadata", "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}},
            "delete": {"tags": ["Cases"], "summary": "Delete a case and its namespace", "security": [{"CookieAuth": []}], "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/cases/{id}/status": {"put": {"tags": ["Cases"], "summary": "Set case status", "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}}}},
        "/cases/{id}/recount": {"post": {"tags": ["Cases"], "summary": "Recompute case totals", "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/cases/{id}/uploads": {"post": {"tags": ["Ingestion"], "summary": "Upload artifact files", "consumes": ["multipart/form-data", "application/json"], "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}, {"type": "file", "name": "file", "in": "formData"}, {"type": "boolean", "name": "wait", "in": "query"}], "responses": {"200": {"description": "Completed"}, "202": {"description": "Accepted"}, "400": {"description": "Bad Request"}, "422": {"description": "Empty payload"}, "429": {"description": "Too Many Requests"}}}},
        "/cases/{id}/categories/{category}/import": {"post": {"tags": ["Ingestion"], "summary": "Import rows into one category", "consumes": ["text/csv", "application/json"], "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}, {"type": "string", "name": "category", "in": "path", "required": true}], "responses": {"200": {"description": "Completed"}, "202": {"description": "Accepted"}, "404": {"description": "Unknown category"}}}},
        "/cases/{id}/ingestions": {"get": {"tags": ["Ingestion"], "summary": "List ingestion runs", "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/ingestions/{run}": {
            "get": {"tags": ["Ingestion"], "summary": "Ingestion run status", "parameters": [{"type": "string", "name": "run", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}},
            "delete": {"tags": ["Ingestion"], "summary": "Cancel an ingestion run", "parameters": [{"type": "string", "name": "run", "in": "path", "required": true}], "responses": {"202": {"description": "Accepted"}, "400": {"description": "Bad Request"}}}
        },
        "/ingestions/{run}/retry": {"post": {"tags": ["Ingestion"], "summary": "Retry an ingestion run", "description": "Remove the rows of a failed, partial or cancelled run and ingest its retained file again. Requires the admin role.", "parameters": [{"type": "string", "name": "run", "in": "path", "required": true}], "responses": {"202": {"description": "Accepted"}, "409": {"description": "Conflict"}}}},
        "/cases/{id}/categories": {"get": {"tags": ["Queries"], "summary": "Category row counts", "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/cases/{id}/categories/{category}": {"get": {"tags": ["Queries"], "summary": "List category rows", "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}, {"type": "string", "name": "category", "in": "path", "required": true}, {"type": "string", "name": "filter", "in": "query"}, {"type": "string", "name": "sort", "in": "query"}], "responses": {"200": {"description": "OK"}}}},
        "/cases/{id}/categories/{category}/export": {"get": {"tags": ["Queries"], "summary": "Export category rows", "produces": ["application/json", "text/csv"], "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}, {"type": "string", "name": "category", "in": "path", "required": true}, {"type": "string", "name": "format", "in": "query"}], "responses": {"200": {"description": "OK"}}}},
        "/cases/{id}/export": {"get": {"tags": ["Queries"], "summary": "Export a whole case", "produces": ["application/json"], "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/cases/{id}/search": {
            "get": {"tags": ["Queries"], "summary": "Keyword search", "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}, {"type": "string", "name": "q", "in": "query", "required": true}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Queries"], "summary": "Keyword search", "consumes": ["application/json"], "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}
        },
        "/cases/{id}/users": {"get": {"tags": ["Queries"], "summary": "Distinct user names", "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/cases/{id}/sql": {"post": {"tags": ["Queries"], "summary": "Read-only SQL", "security": [{"CookieAuth": []}], "consumes": ["application/json"], "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "OK"}, "400": {"description": "Forbidden query"}}}},
        "/cases/{id}/charts": {"get": {"tags": ["Stats"], "summary": "Case charts", "produces": ["text/html"], "parameters": [{"type": "integer", "name": "id", "in": "path", "required": true}], "responses": {"200": {"description": "HTML page"}}}}
    },
    "securityDefinitions": {
        "CookieAuth": {"type": "apiKey", "name": "cookie_session", "in": "cookie"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:3000",
	BasePath:         "/api",
	Schemes:          []string{"http", "https"},
	Title:            "LITE API",
	Description:      "Forensic triage case management: cases, artifact ingestion and queries",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
