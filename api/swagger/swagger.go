package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "University Lifecycle API",
        "description": "Student and application lifecycle engine: guards, transitions, milestones and admissions.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": ["http"],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "security": [{"BearerAuth": []}],
    "tags": [
        {"name": "Lifecycle", "description": "Guards, transitions, milestones and history of a student or application"},
        {"name": "Admissions", "description": "Application intake"},
        {"name": "Catalog", "description": "Rule catalog administration"}
    ],
    "parameters": {
        "entityType": {"name": "entityType", "in": "path", "required": true, "type": "string", "enum": ["student", "application"]},
        "entityId": {"name": "entityId", "in": "path", "required": true, "type": "string"}
    },
    "paths": {
        "/lifecycle/{entityType}/{entityId}/actions": {
            "get": {
                "tags": ["Lifecycle"],
                "summary": "List every catalog action with its guard decision",
                "parameters": [{"$ref": "#/parameters/entityType"}, {"$ref": "#/parameters/entityId"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Rule catalog unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lifecycle/{entityType}/{entityId}/actions/{action}": {
            "get": {
                "tags": ["Lifecycle"],
                "summary": "Check whether an action is allowed for an entity",
                "parameters": [
                    {"$ref": "#/parameters/entityType"},
                    {"$ref": "#/parameters/entityId"},
                    {"name": "action", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ActionDecision"}},
                    "503": {"description": "Rule catalog unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lifecycle/{entityType}/{entityId}/transitions": {
            "get": {
                "tags": ["Lifecycle"],
                "summary": "List transitions leaving the current status",
                "parameters": [{"$ref": "#/parameters/entityType"}, {"$ref": "#/parameters/entityId"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "post": {
                "tags": ["Lifecycle"],
                "summary": "Move an entity along a workflow transition",
                "parameters": [
                    {"$ref": "#/parameters/entityType"},
                    {"$ref": "#/parameters/entityId"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/TransitionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Applied", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Concurrent modification", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "422": {"description": "No such transition, reason or actor missing", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lifecycle/{entityType}/{entityId}/milestones": {
            "post": {
                "tags": ["Lifecycle"],
                "summary": "Report that an entity reached a financial milestone",
                "parameters": [
                    {"$ref": "#/parameters/entityType"},
                    {"$ref": "#/parameters/entityId"},
                    {"name": "async", "in": "query", "type": "boolean"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MilestoneRequest"}}
                ],
                "responses": {
                    "200": {"description": "Applied or duplicate", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "202": {"description": "Queued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "500": {"description": "Automatic rule failed", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/lifecycle/{entityType}/{entityId}/holds/{holdCode}": {
            "put": {
                "tags": ["Lifecycle"],
                "summary": "Place a financial hold",
                "parameters": [
                    {"$ref": "#/parameters/entityType"},
                    {"$ref": "#/parameters/entityId"},
                    {"name": "holdCode", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            },
            "delete": {
                "tags": ["Lifecycle"],
                "summary": "Lift a financial hold",
                "parameters": [
                    {"$ref": "#/parameters/entityType"},
                    {"$ref": "#/parameters/entityId"},
                    {"name": "holdCode", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/lifecycle/{entityType}/{entityId}/history": {
            "get": {
                "tags": ["Lifecycle"],
                "summary": "List the status history, newest first",
                "parameters": [
                    {"$ref": "#/parameters/entityType"},
                    {"$ref": "#/parameters/entityId"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "pageSize", "in": "query", "type": "integer"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/lifecycle/{entityType}/{entityId}/history/export": {
            "get": {
                "tags": ["Lifecycle"],
                "summary": "Download the status history",
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"$ref": "#/parameters/entityType"},
                    {"$ref": "#/parameters/entityId"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {"200": {"description": "File", "schema": {"type": "file"}}}
            }
        },
        "/lifecycle/{entityType}/{entityId}/pending-actions": {
            "get": {
                "tags": ["Lifecycle"],
                "summary": "List manual transitions surfaced by milestones",
                "parameters": [{"$ref": "#/parameters/entityType"}, {"$ref": "#/parameters/entityId"}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/admissions/intake": {
            "post": {
                "tags": ["Admissions"],
                "summary": "Evaluate a new application and record its initial status",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/IntakeRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Application already has lifecycle state", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admissions/{entityId}/submit": {
            "post": {
                "tags": ["Admissions"],
                "summary": "Submit a draft application",
                "parameters": [
                    {"$ref": "#/parameters/entityId"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/IntakeRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/catalog/reload": {
            "post": {
                "tags": ["Catalog"],
                "summary": "Reload the rule catalog",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "503": {"description": "Rule catalog unavailable", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/catalog/rules/milestone-actions": {
            "put": {
                "tags": ["Catalog"],
                "summary": "Create or update a milestone enablement rule",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MilestoneAction"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/catalog/rules/hold-blocks": {
            "put": {
                "tags": ["Catalog"],
                "summary": "Create or update a hold blocking rule",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/HoldBlockedAction"}}],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}}
            }
        },
        "/catalog/rules/milestone-impacts": {
            "put": {
                "tags": ["Catalog"],
                "summary": "Create or update a milestone status impact rule",
                "parameters": [{"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/MilestoneStatusImpact"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Rule would make the catalog inconsistent", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "ActionDecision": {
            "type": "object",
            "properties": {
                "action": {"type": "string"},
                "allowed": {"type": "boolean"}
            }
        },
        "TransitionRequest": {
            "type": "object",
            "required": ["triggerCode"],
            "properties": {
                "triggerCode": {"type": "string"},
                "reasonCode": {"type": "string"},
                "notes": {"type": "string"}
            }
        },
        "MilestoneRequest": {
            "type": "object",
            "required": ["milestoneCode"],
            "properties": {
                "milestoneCode": {"type": "string"}
            }
        },
        "ApplicantData": {
            "type": "object",
            "properties": {
                "testScores": {"type": "object", "additionalProperties": {"type": "number"}},
                "gpa": {"type": "number"},
                "graduationYear": {"type": "integer"},
                "certificateType": {"type": "string"}
            }
        },
        "IntakeRequest": {
            "type": "object",
            "required": ["majorId"],
            "properties": {
                "applicationId": {"type": "string"},
                "majorId": {"type": "string"},
                "isDraft": {"type": "boolean"},
                "applicant": {"$ref": "#/definitions/ApplicantData"}
            }
        },
        "MilestoneAction": {
            "type": "object",
            "properties": {
                "milestoneCode": {"type": "string"},
                "actionCode": {"type": "string"},
                "isEnabled": {"type": "boolean"}
            }
        },
        "HoldBlockedAction": {
            "type": "object",
            "properties": {
                "holdReasonCode": {"type": "string"},
                "actionCode": {"type": "string"},
                "isBlocked": {"type": "boolean"}
            }
        },
        "MilestoneStatusImpact": {
            "type": "object",
            "properties": {
                "milestoneCode": {"type": "string"},
                "targetStatusCode": {"type": "string"},
                "isAutomatic": {"type": "boolean"},
                "isActive": {"type": "boolean"}
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
