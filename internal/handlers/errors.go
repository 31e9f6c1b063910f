package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/flashquiz/internal/models"
)

var errorStatuses = []struct {
	err    error
	status int
}{
	{models.ErrNotFound, http.StatusNotFound},
	{models.ErrNotOwner, http.StatusForbidden},
	{models.ErrOwnerCannotPlay, http.StatusForbidden},
	{models.ErrOwnerCannotLeave, http.StatusForbidden},
	{models.ErrInvalidSettings, http.StatusBadRequest},
	{models.ErrEmptyCollection, http.StatusUnprocessableEntity},
	{models.ErrInvalidTransition, http.StatusConflict},
	{models.ErrCapacityExceeded, http.StatusConflict},
	{models.ErrAlreadyJoined, http.StatusConflict},
	{models.ErrAlreadyInRoom, http.StatusConflict},
	{models.ErrNoPlayers, http.StatusConflict},
	{models.ErrStale, http.StatusConflict},
	{models.ErrPersistence, http.StatusServiceUnavailable},
}

func errorStatus(err error) int {
	for _, e := range errorStatuses {
		if errors.Is(err, e.err) {
			return e.status
		}
	}
	return http.StatusInternalServerError
}

func respondError(c *gin.Context, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		c.Error(err)
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
