package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "University Timetable API",
        "description": "Class and exam timetable scheduling with a failure resolution queue",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Scheduling", "description": "Scheduling batches, retries and exports"},
        {"name": "Failures", "description": "Unplaced items awaiting resolution"}
    ],
    "paths": {
        "/semesters/{id}/batches": {
            "post": {
                "tags": ["Scheduling"],
                "summary": "Run a scheduling batch for a semester",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RunBatchRequest"}}
                ],
                "responses": {
                    "201": {"description": "Batch finished", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Batch queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Semester locked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "get": {
                "tags": ["Scheduling"],
                "summary": "List scheduling batches of a semester",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/{id}": {
            "get": {
                "tags": ["Scheduling"],
                "summary": "Get a batch with its placements and failures",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/{id}/summary": {
            "get": {
                "tags": ["Scheduling"],
                "summary": "Failure counts of a batch by status and reason",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/{id}/cancel": {
            "post": {
                "tags": ["Scheduling"],
                "summary": "Cancel a queued or running batch",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "202": {"description": "Cancellation requested", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Batch already finished", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/batches/{id}/export": {
            "get": {
                "tags": ["Scheduling"],
                "summary": "Download the timetable produced by a batch",
                "produces": ["application/pdf", "text/csv"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["pdf", "csv"]}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/failures": {
            "get": {
                "tags": ["Failures"],
                "summary": "List scheduling failures",
                "parameters": [
                    {"name": "batchId", "in": "query", "type": "string"},
                    {"name": "semesterId", "in": "query", "type": "string"},
                    {"name": "status", "in": "query", "type": "string", "enum": ["pending", "resolved", "retried", "ignored"]},
                    {"name": "reason", "in": "query", "type": "string"},
                    {"name": "kind", "in": "query", "type": "string", "enum": ["CLASS_TIMETABLE", "EXAM_TIMETABLE"]},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/failures/retry": {
            "post": {
                "tags": ["Failures"],
                "summary": "Retry pending failures as a new batch",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RetryFailuresRequest"}}
                ],
                "responses": {
                    "201": {"description": "Retry batch finished", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Retry batch queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/failures/{id}": {
            "get": {
                "tags": ["Failures"],
                "summary": "Get a scheduling failure",
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/failures/{id}/resolve": {
            "post": {
                "tags": ["Failures"],
                "summary": "Resolve or ignore a pending failure",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ResolveFailureRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Missing notes", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/failures/{id}/reopen": {
            "post": {
                "tags": ["Failures"],
                "summary": "Move a closed failure back to pending",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ReopenFailureRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "RunBatchRequest": {
            "type": "object",
            "required": ["kind"],
            "properties": {
                "kind": {"type": "string", "enum": ["CLASS_TIMETABLE", "EXAM_TIMETABLE"]},
                "dates": {"type": "array", "items": {"type": "string", "format": "date"}},
                "async": {"type": "boolean"}
            }
        },
        "RetryFailuresRequest": {
            "type": "object",
            "required": ["failureIds"],
            "properties": {
                "failureIds": {"type": "array", "items": {"type": "string", "format": "uuid"}},
                "dates": {"type": "array", "items": {"type": "string", "format": "date"}},
                "async": {"type": "boolean"}
            }
        },
        "ResolveFailureRequest": {
            "type": "object",
            "required": ["status", "notes"],
            "properties": {
                "status": {"type": "string", "enum": ["resolved", "ignored"]},
                "notes": {"type": "string"}
            }
        },
        "ReopenFailureRequest": {
            "type": "object",
            "required": ["notes"],
            "properties": {
                "notes": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "pagination": {"$ref": "#/definitions/Pagination"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
