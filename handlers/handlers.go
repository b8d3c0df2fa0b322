package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"vps-gateway-service/models"
	"vps-gateway-service/repositories"
)

// HealthCheck returns the health status of the service
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"time":    time.Now().Format(time.RFC3339),
		"service": "vps-gateway-service",
	})
}

// ServerHandler exposes the server inventory over REST
type ServerHandler struct {
	store repositories.ServerStore
}

// NewServerHandler creates a new ServerHandler
func NewServerHandler(store repositories.ServerStore) *ServerHandler {
	return &ServerHandler{store: store}
}

// ListServers returns the server inventory
func (h *ServerHandler) ListServers(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil || limit <= 0 {
		limit = 20
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	servers, err := h.store.ListServers(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"servers": servers,
		"total":   len(servers),
		"limit":   limit,
		"offset":  offset,
	})
}

// GetServer returns one server record by id
func (h *ServerHandler) GetServer(c *gin.Context) {
	serverID := c.Param("id")

	server, err := h.store.FindServerByID(c.Request.Context(), serverID)
	if err != nil {
		if errors.Is(err, repositories.ErrServerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, server)
}

// UpdateServer updates the mutable fields of a server record
func (h *ServerHandler) UpdateServer(c *gin.Context) {
	serverID := c.Param("id")

	var update models.ServerUpdateRequest
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.store.UpdateServer(c.Request.Context(), serverID, &update); err != nil {
		if errors.Is(err, repositories.ErrServerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"server_id": serverID,
		"status":    "updated",
		"message":   "Server settings updated",
	})
}

// DeleteServer removes a server record
func (h *ServerHandler) DeleteServer(c *gin.Context) {
	serverID := c.Param("id")

	if err := h.store.DeleteServer(c.Request.Context(), serverID); err != nil {
		if errors.Is(err, repositories.ErrServerNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Server not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"server_id": serverID,
		"status":    "deleted",
		"message":   "Server removed from inventory",
	})
}
