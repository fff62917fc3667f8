// Package docs registers the OpenAPI description of the quoting API with swag.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "object"}},
                    "503": {"description": "Service Unavailable", "schema": {"type": "object"}}
                }
            }
        },
        "/model": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Loaded risk model",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/model.Info"}}
                }
            }
        },
        "/quote": {
            "post": {
                "description": "Scores the driver, adjusts the bonus-malus coefficient, applies the telemetry fault penalty and assembles the premium.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["quotes"],
                "summary": "Quote one driver",
                "parameters": [
                    {"description": "Driver record", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/quote.Request"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/quote.Quote"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.AppError"}},
                    "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/errors.AppError"}}
                }
            }
        },
        "/quote/batch": {
            "post": {
                "description": "Missing numeric attributes are imputed with medians of the whole batch. Quotes keep request order.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["quotes"],
                "summary": "Quote many drivers",
                "parameters": [
                    {"description": "Driver records", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/quote.BatchRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/quote.BatchResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.AppError"}}
                }
            }
        },
        "/quotes": {
            "get": {
                "produces": ["application/json"],
                "tags": ["quotes"],
                "summary": "Issued quotes, newest first",
                "parameters": [
                    {"type": "integer", "description": "Page size (max 100)", "name": "limit", "in": "query"},
                    {"type": "integer", "description": "Offset", "name": "offset", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/database.QuotePage"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.AppError"}}
                }
            }
        },
        "/quotes/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["quotes"],
                "summary": "Issued quote by ID",
                "parameters": [
                    {"type": "string", "description": "Quote ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/quote.Quote"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/errors.AppError"}}
                }
            }
        },
        "/score": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["quotes"],
                "summary": "Claim probabilities only",
                "parameters": [
                    {"description": "Driver records", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/quote.ScoreRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/quote.ScoreResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/errors.AppError"}}
                }
            }
        }
    },
    "definitions": {
        "errors.AppError": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "code": {"type": "string"},
                "category": {"type": "string"},
                "http_status": {"type": "integer"},
                "timestamp": {"type": "string"},
                "request_id": {"type": "string"}
            }
        },
        "model.Info": {
            "type": "object",
            "properties": {
                "name": {"type": "string"},
                "version": {"type": "integer"},
                "trained_at": {"type": "string"},
                "trees": {"type": "integer"},
                "features": {"type": "integer"},
                "threshold": {"type": "number"}
            }
        },
        "premium.Result": {
            "type": "object",
            "properties": {
                "base_tariff": {"type": "number"},
                "region_coeff": {"type": "number"},
                "engine_power_coeff": {"type": "number"},
                "age_exp_coeff": {"type": "number"},
                "final_kbm": {"type": "number"},
                "ko_coeff": {"type": "number"},
                "season_coeff": {"type": "number"},
                "tariff": {"type": "number"},
                "tariff_display": {"type": "string"}
            }
        },
        "quote.PremiumInput": {
            "type": "object",
            "properties": {
                "base_tariff": {"type": "number"},
                "region_coeff": {"type": "number"},
                "engine_power_coeff": {"type": "number"},
                "age_exp_coeff": {"type": "number"},
                "season_coeff": {"type": "number"},
                "unlimited_drivers": {"type": "boolean"}
            }
        },
        "quote.Request": {
            "type": "object",
            "required": ["driver"],
            "properties": {
                "driver": {"type": "object", "additionalProperties": {}},
                "telemetry_path": {"type": "string"},
                "premium": {"$ref": "#/definitions/quote.PremiumInput"}
            }
        },
        "quote.BatchRequest": {
            "type": "object",
            "required": ["requests"],
            "properties": {
                "requests": {"type": "array", "items": {"$ref": "#/definitions/quote.Request"}}
            }
        },
        "telemetry.Report": {
            "type": "object",
            "properties": {
                "path": {"type": "string"},
                "signal": {"type": "boolean"},
                "fault": {"type": "boolean"},
                "trips": {"type": "array", "items": {"type": "object"}},
                "warnings": {"type": "array", "items": {"type": "string"}}
            }
        },
        "quote.Quote": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "created_at": {"type": "string"},
                "probability": {"type": "number"},
                "high_risk": {"type": "boolean"},
                "threshold": {"type": "number"},
                "base_kbm": {"type": "number"},
                "recommended_kbm": {"type": "number"},
                "final_kbm": {"type": "number"},
                "adjustments": {"type": "array", "items": {"type": "string"}},
                "premium": {"$ref": "#/definitions/premium.Result"},
                "telemetry": {"$ref": "#/definitions/telemetry.Report"},
                "model": {"type": "string"}
            }
        },
        "quote.BatchResponse": {
            "type": "object",
            "properties": {
                "quotes": {"type": "array", "items": {"$ref": "#/definitions/quote.Quote"}},
                "count": {"type": "integer"}
            }
        },
        "quote.ScoreRequest": {
            "type": "object",
            "required": ["drivers"],
            "properties": {
                "drivers": {"type": "array", "items": {"type": "object", "additionalProperties": {}}}
            }
        },
        "quote.ScoreResponse": {
            "type": "object",
            "properties": {
                "scores": {
                    "type": "array",
                    "items": {
                        "type": "object",
                        "properties": {
                            "probability": {"type": "number"},
                            "high_risk": {"type": "boolean"},
                            "threshold": {"type": "number"}
                        }
                    }
                }
            }
        },
        "database.QuotePage": {
            "type": "object",
            "properties": {
                "quotes": {"type": "array", "items": {"type": "object"}},
                "total": {"type": "integer"},
                "limit": {"type": "integer"},
                "offset": {"type": "integer"}
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
	Title:            "KBM Risk API",
	Description:      "Bonus-malus coefficient and premium quotes from driver risk scoring.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
