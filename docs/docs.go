// Package docs swagger document of the board API
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
        "/ca.pem": {
            "get": {
                "produces": ["application/x-pem-file"],
                "summary": "trust anchor",
                "responses": {"200": {"description": "OK"}}
            }
        },
        "/messages": {
            "get": {
                "produces": ["application/json"],
                "summary": "list messages",
                "parameters": [
                    {"type": "string", "description": "callsign", "name": "author", "in": "query"},
                    {"type": "integer", "description": "max messages", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {"type": "array", "items": {"$ref": "#/definitions/types.Message"}}
                    }
                }
            },
            "post": {
                "consumes": ["application/x-www-form-urlencoded"],
                "summary": "post message",
                "parameters": [
                    {"type": "string", "description": "message", "name": "content", "in": "formData", "required": true}
                ],
                "responses": {
                    "303": {"description": "See Other"},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/messages/{message_id}": {
            "get": {
                "produces": ["application/json"],
                "summary": "get message",
                "parameters": [
                    {"type": "string", "description": "message id", "name": "message_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/types.Message"}},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/visitor": {
            "post": {
                "consumes": ["application/x-www-form-urlencoded"],
                "produces": ["application/x-pkcs12"],
                "summary": "issue visitor certificate",
                "parameters": [
                    {"type": "string", "description": "nickname", "name": "nickname", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "400": {"description": "Bad Request"},
                    "500": {"description": "Internal Server Error"}
                }
            }
        }
    },
    "definitions": {
        "types.Message": {
            "type": "object",
            "properties": {
                "author": {"type": "string"},
                "content": {"type": "string"},
                "created": {"type": "string"},
                "id": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "v1",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "hamboard",
	Description:      "amateur radio message board",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
