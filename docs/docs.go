// Package docs registers the OpenAPI document served under /swagger.
// Keep it in sync with the handler annotations when routes change.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {"name": "API Support", "email": "support@example.com"},
        "license": {"name": "MIT", "url": "https://opensource.org/licenses/MIT"},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "tags": ["health"],
                "summary": "Health check",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/HealthResponse"}},
                    "503": {"description": "Degraded", "schema": {"$ref": "#/definitions/HealthResponse"}}
                }
            }
        },
        "/api/v1/users/register": {
            "post": {
                "tags": ["users"],
                "summary": "Register a new user",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/Credentials"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/RegisterResponse"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "409": {"description": "Email already exists", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/v1/users/login": {
            "post": {
                "tags": ["users"],
                "summary": "Log in",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/Credentials"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/AccessToken"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/v1/users/me": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["users"],
                "summary": "Current user",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/User"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/v1/users": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["users"],
                "summary": "List users (admin)",
                "produces": ["application/json"],
                "parameters": [
                    {"in": "query", "name": "skip", "type": "integer"},
                    {"in": "query", "name": "limit", "type": "integer"},
                    {"in": "query", "name": "email", "type": "string"},
                    {"in": "query", "name": "role", "type": "string", "enum": ["user", "admin"]}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/User"}}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/v1/users/{id}": {
            "patch": {
                "security": [{"BearerAuth": []}],
                "tags": ["users"],
                "summary": "Update user",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"in": "path", "name": "id", "required": true, "type": "string"},
                    {"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/UpdateUserRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/User"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "409": {"description": "Email already exists", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/v1/users/password-reset/request": {
            "post": {
                "tags": ["users"],
                "summary": "Request password reset",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/EmailRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/MessageResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/v1/users/password-reset/confirm": {
            "post": {
                "tags": ["users"],
                "summary": "Confirm password reset",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/ResetPasswordRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/MessageResponse"}},
                    "400": {"description": "Invalid token or weak password", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/v1/users/email-verification/request": {
            "post": {
                "tags": ["users"],
                "summary": "Resend verification email",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/EmailRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/MessageResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/v1/users/email-verification/confirm": {
            "post": {
                "tags": ["users"],
                "summary": "Verify email",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/TokenRequest"}}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/MessageResponse"}},
                    "400": {"description": "Invalid or expired token", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/api/v1/urls": {
            "post": {
                "tags": ["urls"],
                "summary": "Shorten a URL",
                "parameters": [{"in": "body", "name": "request", "required": true, "schema": {"$ref": "#/definitions/CreateURLRequest"}}],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ShortURL"}},
                    "400": {"description": "Invalid, blocked or too long URL", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "503": {"description": "No free short code", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "get": {
                "tags": ["urls"],
                "summary": "List short URLs",
                "parameters": [
                    {"in": "query", "name": "skip", "type": "integer"},
                    {"in": "query", "name": "limit", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/ShortURL"}}}
                }
            }
        },
        "/api/v1/urls/{id}": {
            "get": {
                "tags": ["urls"],
                "summary": "Get a short URL",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "integer"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ShortURL"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["urls"],
                "summary": "Delete a short URL",
                "parameters": [{"in": "path", "name": "id", "required": true, "type": "integer"}],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/r/api/url/{code}": {
            "get": {
                "tags": ["redirect"],
                "summary": "Resolve a short code",
                "parameters": [{"in": "path", "name": "code", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResolveResponse"}},
                    "403": {"description": "Destination is blocked", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "404": {"description": "Unknown code", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        },
        "/r/{code}": {
            "get": {
                "tags": ["redirect"],
                "summary": "Follow a short code",
                "parameters": [{"in": "path", "name": "code", "required": true, "type": "string"}],
                "responses": {
                    "302": {"description": "Found"},
                    "403": {"description": "Destination is blocked", "schema": {"$ref": "#/definitions/ErrorResponse"}},
                    "404": {"description": "Unknown code", "schema": {"$ref": "#/definitions/ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "ErrorResponse": {
            "type": "object",
            "properties": {"error": {"type": "string"}, "code": {"type": "string"}}
        },
        "HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "checks": {"type": "object", "additionalProperties": {"type": "string"}}
            }
        },
        "Credentials": {
            "type": "object",
            "properties": {"email": {"type": "string"}, "password": {"type": "string"}}
        },
        "EmailRequest": {
            "type": "object",
            "properties": {"email": {"type": "string"}}
        },
        "TokenRequest": {
            "type": "object",
            "properties": {"token": {"type": "string"}}
        },
        "ResetPasswordRequest": {
            "type": "object",
            "properties": {"token": {"type": "string"}, "new_password": {"type": "string"}}
        },
        "UpdateUserRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"},
                "role": {"type": "string", "enum": ["user", "admin"]},
                "is_active": {"type": "boolean"}
            }
        },
        "MessageResponse": {
            "type": "object",
            "properties": {"message": {"type": "string"}}
        },
        "AccessToken": {
            "type": "object",
            "properties": {
                "access_token": {"type": "string"},
                "token_type": {"type": "string"},
                "expires_in": {"type": "integer"},
                "expires_at": {"type": "string", "format": "date-time"}
            }
        },
        "User": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "format": "uuid"},
                "email": {"type": "string"},
                "is_active": {"type": "boolean"},
                "is_superuser": {"type": "boolean"},
                "is_verified": {"type": "boolean"},
                "role": {"type": "string", "enum": ["user", "admin"]},
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"}
            }
        },
        "RegisterResponse": {
            "type": "object",
            "properties": {"user": {"$ref": "#/definitions/User"}, "message": {"type": "string"}}
        },
        "CreateURLRequest": {
            "type": "object",
            "properties": {"original_url": {"type": "string"}}
        },
        "ShortURL": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "short_code": {"type": "string"},
                "original_url": {"type": "string"},
                "access_count": {"type": "integer"},
                "created_at": {"type": "string", "format": "date-time"},
                "short_url": {"type": "string"}
            }
        },
        "ResolveResponse": {
            "type": "object",
            "properties": {"url": {"type": "string"}}
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Type \"Bearer\" followed by a space and the access token.",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Shortener API",
	Description:      "URL shortener with user accounts, email verification and password reset.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
