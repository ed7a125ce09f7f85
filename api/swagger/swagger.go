package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Smart Edu API",
        "description": "Task management service for schools",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "tags": [
        {"name": "Auth", "description": "Login, registration and sessions"},
        {"name": "Admin", "description": "User management and system statistics"},
        {"name": "Classes", "description": "Class registry"},
        {"name": "Subjects", "description": "Subject registry"},
        {"name": "Teacher", "description": "Task lifecycle and grading"},
        {"name": "Student", "description": "Assignments and submissions"},
        {"name": "Notifications", "description": "Per-user notification feed"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate with email and password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Token pair issued", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange a refresh token for a new token pair",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RefreshRequest"}}
                ],
                "responses": {
                    "200": {"description": "Rotated token pair", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Token expired or revoked", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/register/teacher": {
            "post": {
                "tags": ["Auth"],
                "summary": "Register a teacher account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterTeacherRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/register/student": {
            "post": {
                "tags": ["Auth"],
                "summary": "Register a student account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterStudentRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Email already registered", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Auth"],
                "security": [{"BearerAuth": []}],
                "summary": "Current user profile",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/users": {
            "get": {
                "tags": ["Admin"],
                "security": [{"BearerAuth": []}],
                "summary": "List users",
                "parameters": [
                    {"name": "role", "in": "query", "type": "string"},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/export/users": {
            "get": {
                "tags": ["Admin"],
                "security": [{"BearerAuth": []}],
                "summary": "Export all users as CSV",
                "produces": ["text/csv"],
                "responses": {
                    "200": {"description": "CSV payload"}
                }
            }
        },
        "/admin/stats": {
            "get": {
                "tags": ["Admin"],
                "security": [{"BearerAuth": []}],
                "summary": "System statistics",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/tasks": {
            "get": {
                "tags": ["Admin"],
                "security": [{"BearerAuth": []}],
                "summary": "List every teacher's tasks",
                "parameters": [
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/admin/tasks/{id}": {
            "delete": {
                "tags": ["Admin"],
                "security": [{"BearerAuth": []}],
                "summary": "Delete any teacher's task",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/APIError"}}
                }
            }
        },
        "/teacher/dashboard": {
            "get": {
                "tags": ["Teacher"],
                "security": [{"BearerAuth": []}],
                "summary": "Own tasks plus per-student completion rollups",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teacher/tasks": {
            "get": {
                "tags": ["Teacher"],
                "security": [{"BearerAuth": []}],
                "summary": "List own tasks",
                "parameters": [
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "size", "in": "query", "type": "integer"},
                    {"name": "sort", "in": "query", "type": "string"},
                    {"name": "order", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Teacher"],
                "security": [{"BearerAuth": []}],
                "summary": "Create a task and fan it out to students",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "title", "in": "formData", "type": "string", "required": true},
                    {"name": "description", "in": "formData", "type": "string"},
                    {"name": "deadline", "in": "formData", "type": "string", "required": true},
                    {"name": "priority", "in": "formData", "type": "string"},
                    {"name": "instructions", "in": "formData", "type": "string"},
                    {"name": "class_ids", "in": "formData", "type": "array", "items": {"type": "string"}, "required": true},
                    {"name": "file", "in": "formData", "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Class not taught by caller", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teacher/tasks/{id}/progress": {
            "get": {
                "tags": ["Teacher"],
                "security": [{"BearerAuth": []}],
                "summary": "Per-student completion breakdown for a task",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/teacher/assignments/{id}/grade": {
            "post": {
                "tags": ["Teacher"],
                "security": [{"BearerAuth": []}],
                "summary": "Record a score and feedback for a submission",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/GradeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/student/assignments": {
            "get": {
                "tags": ["Student"],
                "security": [{"BearerAuth": []}],
                "summary": "List own assignments ordered by urgency",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/student/assignments/{id}/submit": {
            "post": {
                "tags": ["Student"],
                "security": [{"BearerAuth": []}],
                "summary": "Submit work for an assignment",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true},
                    {"name": "content", "in": "formData", "type": "string"},
                    {"name": "file", "in": "formData", "type": "file"}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "409": {"description": "Already submitted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications": {
            "get": {
                "tags": ["Notifications"],
                "security": [{"BearerAuth": []}],
                "summary": "List own notifications",
                "parameters": [
                    {"name": "include_read", "in": "query", "type": "boolean"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/notifications/{id}/read": {
            "post": {
                "tags": ["Notifications"],
                "security": [{"BearerAuth": []}],
                "summary": "Mark a notification as read",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found or not owned", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
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
        "RefreshRequest": {
            "type": "object",
            "required": ["refresh_token"],
            "properties": {
                "refresh_token": {"type": "string"}
            }
        },
        "RegisterTeacherRequest": {
            "type": "object",
            "required": ["name", "email", "password"],
            "properties": {
                "name": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"},
                "subject": {"type": "string"},
                "class_ids": {"type": "array", "items": {"type": "string"}}
            }
        },
        "RegisterStudentRequest": {
            "type": "object",
            "required": ["name", "email", "password", "class_id"],
            "properties": {
                "name": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"},
                "class_id": {"type": "string"}
            }
        },
        "GradeRequest": {
            "type": "object",
            "required": ["score"],
            "properties": {
                "score": {"type": "integer", "minimum": 0, "maximum": 100},
                "feedback": {"type": "string"}
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
