package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type errorBody struct {
	Error string `json:"error"`
}

func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, errorBody{Error: message})
}

func respondJSON(c *gin.Context, status int, payload any) {
	c.JSON(status, payload)
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		respondError(c, 400, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
