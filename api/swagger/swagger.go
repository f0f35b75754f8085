package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "OculoScan API",
        "description": "Scan request lifecycle service for the OculoScan diagnostic portal",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Token issuance and identity"},
        {"name": "ScanRequests", "description": "Scan request lifecycle"},
        {"name": "Dashboard", "description": "Faceted lifecycle counts"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Tokens issued"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "New access token"},
                    "401": {"description": "Invalid refresh token"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Revoke refresh token",
                "responses": {
                    "204": {"description": "Logged out"}
                }
            }
        },
        "/auth/password": {
            "put": {
                "tags": ["Authentication"],
                "summary": "Change password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ChangePasswordRequest"}}
                ],
                "responses": {
                    "204": {"description": "Password changed"},
                    "401": {"description": "Current password does not match"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Resolved identity for the access token",
                "responses": {
                    "200": {"description": "Actor"}
                }
            }
        },
        "/scan-requests": {
            "post": {
                "tags": ["ScanRequests"],
                "summary": "Open a scan request",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateScanRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Validation error"}
                }
            },
            "get": {
                "tags": ["ScanRequests"],
                "summary": "List scan requests (role scoped)",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string", "description": "Comma separated statuses"},
                    {"name": "priority", "in": "query", "type": "string", "description": "Comma separated priorities"},
                    {"name": "view", "in": "query", "type": "string", "description": "all or mine"},
                    {"name": "limit", "in": "query", "type": "integer"},
                    {"name": "offset", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "Listing"}
                }
            }
        },
        "/scan-requests/{id}": {
            "get": {
                "tags": ["ScanRequests"],
                "summary": "Scan request detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Detail"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/scan-requests/{id}/assign": {
            "post": {
                "tags": ["ScanRequests"],
                "summary": "Claim a pending request for the calling clinician",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Assigned"},
                    "409": {"description": "Already claimed or not pending"}
                }
            }
        },
        "/scan-requests/{id}/image": {
            "post": {
                "tags": ["ScanRequests"],
                "summary": "Upload a scan image",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "file", "in": "formData", "required": true, "type": "file"}
                ],
                "responses": {
                    "200": {"description": "Image recorded"},
                    "413": {"description": "Image too large"}
                }
            }
        },
        "/scan-requests/images/{token}": {
            "get": {
                "tags": ["ScanRequests"],
                "summary": "Download a scan image via signed token",
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Image bytes"},
                    "401": {"description": "Invalid or expired token"}
                }
            }
        },
        "/scan-requests/{id}/analysis": {
            "post": {
                "tags": ["ScanRequests"],
                "summary": "Run or record image analysis",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Prediction stored"},
                    "409": {"description": "Request not assigned"}
                }
            }
        },
        "/scan-requests/{id}/note": {
            "put": {
                "tags": ["ScanRequests"],
                "summary": "Save the clinical note",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ClinicalNoteRequest"}}
                ],
                "responses": {
                    "200": {"description": "Note saved"},
                    "409": {"description": "Not in review"}
                }
            }
        },
        "/scan-requests/{id}/complete": {
            "post": {
                "tags": ["ScanRequests"],
                "summary": "Complete a reviewed request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Completed"},
                    "409": {"description": "Not reviewed"}
                }
            }
        },
        "/scan-requests/{id}/cancel": {
            "post": {
                "tags": ["ScanRequests"],
                "summary": "Cancel a pending request",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Cancelled"},
                    "409": {"description": "Not pending"}
                }
            }
        },
        "/dashboard/summary": {
            "get": {
                "tags": ["Dashboard"],
                "summary": "Status and priority facet counts",
                "responses": {
                    "200": {"description": "Summary"}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "ChangePasswordRequest": {
            "type": "object",
            "properties": {
                "current_password": {"type": "string"},
                "new_password": {"type": "string"}
            }
        },
        "CreateScanRequest": {
            "type": "object",
            "properties": {
                "description": {"type": "string"},
                "symptoms": {"type": "string"},
                "medical_history": {"type": "string"},
                "priority": {"type": "string", "enum": ["low", "medium", "high", "urgent"]}
            }
        },
        "ClinicalNoteRequest": {
            "type": "object",
            "properties": {
                "note": {"type": "string"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "Envelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
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
