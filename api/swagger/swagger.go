package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Token API",
        "description": "Refresh-token lifecycle service with rotation and theft detection",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Tokens", "description": "Token issuance, rotation and revocation"},
        {"name": "Admin", "description": "Principal administration and audit trail"}
    ],
    "paths": {
        "/token": {
            "post": {
                "tags": ["Tokens"],
                "summary": "Issue initial token pair",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Token pair", "schema": {"$ref": "#/definitions/TokenPair"}},
                    "401": {"description": "Invalid credentials or inactive principal"}
                }
            }
        },
        "/token/refresh": {
            "post": {
                "tags": ["Tokens"],
                "summary": "Rotate refresh token",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/RotateRequest"}}
                ],
                "responses": {
                    "200": {"description": "New token pair", "schema": {"$ref": "#/definitions/TokenPair"}},
                    "401": {"description": "Invalid, expired, reused, or inactive-owner token"}
                }
            }
        },
        "/token/revoke": {
            "post": {
                "tags": ["Tokens"],
                "summary": "Revoke one refresh token",
                "parameters": [
                    {"in": "body", "name": "payload", "required": true, "schema": {"$ref": "#/definitions/RotateRequest"}}
                ],
                "responses": {
                    "204": {"description": "Revoked (idempotent)"}
                }
            }
        },
        "/token/revoke-all": {
            "post": {
                "tags": ["Tokens"],
                "summary": "Log out everywhere",
                "security": [{"Bearer": []}],
                "responses": {
                    "204": {"description": "All sessions revoked"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/sessions": {
            "get": {
                "tags": ["Tokens"],
                "summary": "List active sessions",
                "security": [{"Bearer": []}],
                "responses": {
                    "200": {"description": "Active sessions"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/me": {
            "get": {
                "tags": ["Tokens"],
                "summary": "Current principal",
                "security": [{"Bearer": []}],
                "responses": {
                    "200": {"description": "Principal info"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/admin/principals": {
            "post": {
                "tags": ["Admin"],
                "summary": "Create principal",
                "security": [{"Bearer": []}],
                "responses": {
                    "201": {"description": "Created"},
                    "409": {"description": "Email already registered"}
                }
            }
        },
        "/admin/principals/{id}/deactivate": {
            "patch": {
                "tags": ["Admin"],
                "summary": "Deactivate principal and revoke its tokens",
                "security": [{"Bearer": []}],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deactivated"},
                    "404": {"description": "Unknown principal"}
                }
            }
        },
        "/admin/audit": {
            "get": {
                "tags": ["Admin"],
                "summary": "List audit events",
                "security": [{"Bearer": []}],
                "responses": {
                    "200": {"description": "Audit events"}
                }
            }
        },
        "/admin/audit/export": {
            "get": {
                "tags": ["Admin"],
                "summary": "Export audit trail as csv or pdf",
                "security": [{"Bearer": []}],
                "responses": {
                    "200": {"description": "File download"}
                }
            }
        }
    },
    "securityDefinitions": {
        "Bearer": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "RotateRequest": {
            "type": "object",
            "required": ["refresh_token"],
            "properties": {
                "refresh_token": {"type": "string"}
            }
        },
        "TokenPair": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "refresh_token": {"type": "string"},
                "token_type": {"type": "string"},
                "expires_in": {"type": "integer"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
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
