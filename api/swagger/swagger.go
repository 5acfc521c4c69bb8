package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Advance Requests API",
        "description": "Advance payment workflow: submission, approval, withholding, payment and legalization.",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Advances", "description": "Advance request workflow"},
        {"name": "Documents", "description": "Support document links"}
    ],
    "paths": {
        "/advances": {
            "get": {
                "tags": ["Advances"],
                "summary": "List advance requests",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "state", "in": "query", "type": "string", "description": "Comma separated states"},
                    {"name": "approverEmail", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "limit", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Advances"],
                "summary": "Submit advance request",
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json", "multipart/form-data"],
                "parameters": [
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/SubmitAdvanceRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/advances/export": {
            "get": {
                "tags": ["Advances"],
                "summary": "Export visible advance requests",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf", "xlsx"]},
                    {"name": "state", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"}
                }
            }
        },
        "/advances/{id}": {
            "get": {
                "tags": ["Advances"],
                "summary": "Get advance request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Belongs to another requester"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/advances/{id}/approve": {
            "post": {
                "tags": ["Advances"],
                "summary": "Approve advance request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition or concurrent update"}
                }
            }
        },
        "/advances/{id}/reject": {
            "post": {
                "tags": ["Advances"],
                "summary": "Reject advance request",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/RejectAdvanceRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition or concurrent update"}
                }
            }
        },
        "/advances/{id}/withholding": {
            "post": {
                "tags": ["Advances"],
                "summary": "Record withholding validation",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ValidateWithholdingRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Negative amounts or payable"},
                    "409": {"description": "Invalid transition or concurrent update"}
                }
            }
        },
        "/advances/{id}/payment": {
            "post": {
                "tags": ["Advances"],
                "summary": "Register payment",
                "security": [{"BearerAuth": []}],
                "consumes": ["application/json", "multipart/form-data"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": false, "schema": {"$ref": "#/definitions/RegisterPaymentRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition or concurrent update"}
                }
            }
        },
        "/advances/{id}/legalization": {
            "post": {
                "tags": ["Advances"],
                "summary": "Record legalization",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LegalizeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Invalid transition or concurrent update"}
                }
            }
        },
        "/advances/{id}/documents/{kind}": {
            "get": {
                "tags": ["Documents"],
                "summary": "Signed link to an advance document",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "kind", "in": "path", "required": true, "type": "string", "enum": ["support", "payment"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/documents/download": {
            "get": {
                "tags": ["Documents"],
                "summary": "Download a document through a signed link",
                "parameters": [
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File"},
                    "401": {"description": "Invalid or expired link"}
                }
            }
        }
    },
    "definitions": {
        "SubmitAdvanceRequest": {
            "type": "object",
            "properties": {
                "requesterId": {"type": "integer"},
                "requesterName": {"type": "string"},
                "approverId": {"type": "integer"},
                "approverEmail": {"type": "string"},
                "vendorName": {"type": "string"},
                "vendorTaxId": {"type": "string"},
                "concept": {"type": "string"},
                "requestedAmount": {"type": "number"}
            },
            "required": ["requesterId", "requesterName", "vendorName", "concept", "requestedAmount"]
        },
        "RejectAdvanceRequest": {
            "type": "object",
            "properties": {
                "detail": {"type": "string"}
            }
        },
        "ValidateWithholdingRequest": {
            "type": "object",
            "properties": {
                "sourceWithholding": {"type": "number"},
                "vatWithholding": {"type": "number"},
                "icaWithholding": {"type": "number"},
                "otherDeductions": {"type": "number"},
                "outcome": {"type": "string", "enum": ["ACTIVE_ADVANCE", "CLOSED"]},
                "reason": {"type": "string"},
                "reasonDetail": {"type": "string"}
            }
        },
        "RegisterPaymentRequest": {
            "type": "object",
            "properties": {
                "paid": {"type": "boolean"},
                "supportRef": {"type": "string"}
            },
            "required": ["paid"]
        },
        "LegalizeRequest": {
            "type": "object",
            "properties": {
                "legalized": {"type": "boolean"},
                "legalizedBy": {"type": "string"}
            },
            "required": ["legalized"]
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
