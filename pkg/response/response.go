// Package response writes the JSON envelope every API endpoint returns.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the standard API response envelope.
type Body struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Fail sends an error envelope with the given status. data may be nil.
func Fail(c *gin.Context, status int, msg string, data any) {
	c.JSON(status, Body{Success: false, Data: data, Error: msg})
}

func BadRequest(c *gin.Context, msg string)   { Fail(c, http.StatusBadRequest, msg, nil) }
func Unauthorized(c *gin.Context, msg string) { Fail(c, http.StatusUnauthorized, msg, nil) }
func Forbidden(c *gin.Context, msg string)    { Fail(c, http.StatusForbidden, msg, nil) }
func NotFound(c *gin.Context, msg string)     { Fail(c, http.StatusNotFound, msg, nil) }
func Conflict(c *gin.Context, msg string)     { Fail(c, http.StatusConflict, msg, nil) }
func Internal(c *gin.Context, msg string)     { Fail(c, http.StatusInternalServerError, msg, nil) }

// BadGateway reports a failing upstream such as object storage or the database.
func BadGateway(c *gin.Context, msg string) { Fail(c, http.StatusBadGateway, msg, nil) }

// ServiceUnavailable reports a local resource, like the camera, that cannot be used right now.
func ServiceUnavailable(c *gin.Context, msg string) {
	Fail(c, http.StatusServiceUnavailable, msg, nil)
}
