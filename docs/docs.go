// Package docs holds the OpenAPI description served at /swagger.
// Regenerate with: swag init -g cmd/server/main.go -o docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "license": {
            "name": "MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/api/analyze": {
            "post": {
                "description": "Fetches GitHub metadata for the repository, asks the model for a score, summary and roadmap, and returns the validated result. Every failure returns a zero-score payload with a remedial roadmap.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["analysis"],
                "summary": "Analyze a public GitHub repository",
                "parameters": [
                    {
                        "description": "Repository to analyze",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {"$ref": "#/definitions/types.AnalyzeRequest"}
                    }
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.AnalysisResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/types.FailurePayload"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/types.FailurePayload"}},
                    "405": {"description": "Method Not Allowed", "schema": {"$ref": "#/definitions/types.FailurePayload"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/types.FailurePayload"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/types.FailurePayload"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.FailurePayload"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/types.FailurePayload"}},
                    "504": {"description": "Gateway Timeout", "schema": {"$ref": "#/definitions/types.FailurePayload"}}
                }
            }
        },
        "/api/test-groq": {
            "get": {
                "produces": ["application/json"],
                "tags": ["diagnostics"],
                "summary": "Probe the model provider",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ProbeReport"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ProbeReport"}}
                }
            },
            "post": {
                "produces": ["application/json"],
                "tags": ["diagnostics"],
                "summary": "Probe the model provider",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.ProbeReport"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/types.ProbeReport"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["operations"],
                "summary": "Service and upstream health",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object"}}
                }
            }
        },
        "/metrics": {
            "get": {
                "produces": ["application/json"],
                "tags": ["operations"],
                "summary": "Request, upstream and limiter counters",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}}
                }
            }
        }
    },
    "definitions": {
        "types.AnalyzeRequest": {
            "type": "object",
            "required": ["repoUrl"],
            "properties": {
                "repoUrl": {"type": "string", "example": "https://github.com/owner/repo"}
            }
        },
        "types.AnalysisResult": {
            "type": "object",
            "properties": {
                "score": {"type": "number", "maximum": 100, "minimum": 0},
                "summary": {"type": "string"},
                "roadmap": {"type": "array", "items": {"type": "string"}}
            }
        },
        "types.FailureDetail": {
            "type": "object",
            "properties": {
                "category": {"type": "string"},
                "message": {"type": "string"},
                "request_id": {"type": "string"}
            }
        },
        "types.FailurePayload": {
            "type": "object",
            "properties": {
                "score": {"type": "number"},
                "summary": {"type": "string"},
                "roadmap": {"type": "array", "items": {"type": "string"}},
                "error": {"$ref": "#/definitions/types.FailureDetail"}
            }
        },
        "types.ProbeReport": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "message": {"type": "string"},
                "model": {"type": "string"},
                "statusCode": {"type": "integer"},
                "apiResponse": {"type": "string"},
                "errorDetails": {"type": "string"},
                "logs": {"type": "array", "items": {"type": "string"}}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Repo Analyzer API",
	Description:      "Scores public GitHub repositories with an LLM and returns a summary and improvement roadmap.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
