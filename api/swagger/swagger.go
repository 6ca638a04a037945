package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "LearnHub API",
        "description": "Course catalog, enrollment and instructor management API",
        "version": "1.0.0"
    },
    "basePath": "/api",
    "schemes": [
        "http",
        "https"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "in": "header", "name": "Authorization"}
    },
    "tags": [
        {"name": "Authentication", "description": "Registration, login and session"},
        {"name": "Admin", "description": "Instructor provisioning"},
        {"name": "Instructor", "description": "Course authoring and profile"},
        {"name": "Courses", "description": "Public course catalog"},
        {"name": "Enrollments", "description": "Learner enrollments"},
        {"name": "Learner", "description": "Learner dashboard"}
    ],
    "paths": {
        "/auth/register": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Register a learner account",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/RegisterRequest"}}
                ],
                "responses": {
                    "201": {"description": "Registered and logged in", "schema": {"$ref": "#/definitions/UserEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "409": {"description": "Email already registered", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "429": {"description": "Too many attempts", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "Login successful", "schema": {"$ref": "#/definitions/UserEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "403": {"description": "Account inactive", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "429": {"description": "Too many attempts", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Logout current session",
                "responses": {
                    "200": {"description": "Logged out successfully"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Current user",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/UserEnvelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/admin/instructors": {
            "post": {
                "tags": ["Admin"],
                "summary": "Create instructor",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateInstructorRequest"}}
                ],
                "responses": {
                    "201": {"description": "Instructor created successfully", "schema": {"$ref": "#/definitions/UserEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "409": {"description": "Email already registered", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/instructor/profile": {
            "patch": {
                "tags": ["Instructor"],
                "summary": "Change instructor password",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ChangePasswordRequest"}}
                ],
                "responses": {
                    "200": {"description": "Password updated successfully"},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/instructor/courses": {
            "get": {
                "tags": ["Instructor"],
                "summary": "List managed courses",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/CourseListEnvelope"}}
                }
            },
            "post": {
                "tags": ["Instructor"],
                "summary": "Create course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CourseInput"}}
                ],
                "responses": {
                    "201": {"description": "Course created", "schema": {"$ref": "#/definitions/CourseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/instructor/courses/stats": {
            "get": {
                "tags": ["Instructor"],
                "summary": "Course counts",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/CourseStatsEnvelope"}}
                }
            }
        },
        "/instructor/courses/export": {
            "get": {
                "tags": ["Instructor"],
                "summary": "Export managed courses",
                "security": [{"BearerAuth": []}],
                "produces": ["text/csv", "application/pdf"],
                "parameters": [
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "File download"},
                    "400": {"description": "Unknown format", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/instructor/courses/{courseId}": {
            "get": {
                "tags": ["Instructor"],
                "summary": "Get managed course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "courseId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/CourseEnvelope"}},
                    "403": {"description": "Not the course owner", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "404": {"description": "Course not found", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            },
            "patch": {
                "tags": ["Instructor"],
                "summary": "Partially update course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "courseId", "in": "path", "required": true, "type": "string"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CourseInput"}}
                ],
                "responses": {
                    "200": {"description": "Course updated or no changes to apply", "schema": {"$ref": "#/definitions/CourseEnvelope"}},
                    "400": {"description": "Validation error", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "403": {"description": "Not the course owner", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "404": {"description": "Course not found", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/courses": {
            "get": {
                "tags": ["Courses"],
                "summary": "Browse public courses",
                "parameters": [
                    {"name": "category", "in": "query", "type": "string"},
                    {"name": "level", "in": "query", "type": "string", "enum": ["Beginner", "Intermediate", "Advanced"]},
                    {"name": "search", "in": "query", "type": "string"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/PublicCourseList"}},
                    "400": {"description": "Invalid level", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/courses/{courseId}": {
            "get": {
                "tags": ["Courses"],
                "summary": "Public course detail",
                "parameters": [
                    {"name": "courseId", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "Course fetched successfully", "schema": {"$ref": "#/definitions/CourseEnvelope"}},
                    "404": {"description": "Course not found", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/enrollments": {
            "get": {
                "tags": ["Enrollments"],
                "summary": "My enrollments",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            },
            "post": {
                "tags": ["Enrollments"],
                "summary": "Enroll in a public course",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/EnrollRequest"}}
                ],
                "responses": {
                    "200": {"description": "Already enrolled in this course"},
                    "201": {"description": "Enrolled successfully"},
                    "400": {"description": "courseId is required", "schema": {"$ref": "#/definitions/ErrorBody"}},
                    "404": {"description": "Course not found", "schema": {"$ref": "#/definitions/ErrorBody"}}
                }
            }
        },
        "/learner/stats": {
            "get": {
                "tags": ["Learner"],
                "summary": "Learner enrollment counts",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        }
    },
    "definitions": {
        "ErrorBody": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "code": {"type": "string"}
            }
        },
        "UserInfo": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "name": {"type": "string"},
                "email": {"type": "string"},
                "role": {"type": "string", "enum": ["admin", "instructor", "learner"]}
            }
        },
        "UserEnvelope": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "user": {"$ref": "#/definitions/UserInfo"}
            }
        },
        "RegisterRequest": {
            "type": "object",
            "required": ["name", "email", "password"],
            "properties": {
                "name": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string", "minLength": 8}
            }
        },
        "CreateInstructorRequest": {
            "type": "object",
            "required": ["name", "email", "password"],
            "properties": {
                "name": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string", "minLength": 8}
            }
        },
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "ChangePasswordRequest": {
            "type": "object",
            "required": ["currentPassword", "newPassword"],
            "properties": {
                "currentPassword": {"type": "string"},
                "newPassword": {"type": "string", "minLength": 8}
            }
        },
        "EnrollRequest": {
            "type": "object",
            "required": ["courseId"],
            "properties": {
                "courseId": {"type": "string"}
            }
        },
        "CourseInput": {
            "type": "object",
            "properties": {
                "title": {"type": "string", "minLength": 5, "maxLength": 120},
                "skills": {"type": "array", "items": {"type": "string"}},
                "level": {"type": "string", "enum": ["Beginner", "Intermediate", "Advanced"]},
                "category": {"type": "string"},
                "duration": {"type": "string"},
                "price": {"type": "number", "minimum": 0},
                "isPublic": {"type": "boolean"}
            }
        },
        "Course": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "instructorId": {"type": "string"},
                "skills": {"type": "array", "items": {"type": "string"}},
                "level": {"type": "string"},
                "category": {"type": "string"},
                "duration": {"type": "string"},
                "price": {"type": "number"},
                "isPublic": {"type": "boolean"},
                "rating": {"type": "number"},
                "ratingCount": {"type": "integer"},
                "createdAt": {"type": "string", "format": "date-time"},
                "updatedAt": {"type": "string", "format": "date-time"}
            }
        },
        "CourseEnvelope": {
            "type": "object",
            "properties": {
                "message": {"type": "string"},
                "course": {"$ref": "#/definitions/Course"}
            }
        },
        "CourseListEnvelope": {
            "type": "object",
            "properties": {
                "courses": {"type": "array", "items": {"$ref": "#/definitions/Course"}}
            }
        },
        "CourseStatsEnvelope": {
            "type": "object",
            "properties": {
                "stats": {
                    "type": "object",
                    "properties": {
                        "total": {"type": "integer"},
                        "public": {"type": "integer"},
                        "draft": {"type": "integer"},
                        "free": {"type": "integer"},
                        "paid": {"type": "integer"}
                    }
                }
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "pageSize": {"type": "integer"},
                "totalCount": {"type": "integer"}
            }
        },
        "PublicCourseList": {
            "type": "object",
            "properties": {
                "courses": {"type": "array", "items": {"$ref": "#/definitions/Course"}},
                "pagination": {"$ref": "#/definitions/Pagination"}
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
