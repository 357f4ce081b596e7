package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ggeimport/ggeimport/internal/export"
	"github.com/ggeimport/ggeimport/internal/store"
)

// handleGetStatus returns the connector status of the current run.
func (s *Server) handleGetStatus(c *gin.Context) {
	s.mu.Lock()
	src := s.status
	s.mu.Unlock()

	locations, occupants := s.store.Len()
	resp := gin.H{
		"locations": locations,
		"occupants": occupants,
	}
	if src != nil {
		resp["import"] = src.Status()
	}
	c.JSON(http.StatusOK, resp)
}

// handleGetLocations lists locations. Optional filters: owner (id) and
// region (name).
func (s *Server) handleGetLocations(c *gin.Context) {
	var owner *int64
	if v := c.Query("owner"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid owner"})
			return
		}
		owner = &id
	}
	region := c.Query("region")

	out := make([]store.Location, 0)
	for _, l := range s.store.Locations() {
		if owner != nil && (l.OwnerID == nil || *l.OwnerID != *owner) {
			continue
		}
		if region != "" && (l.Region == nil || l.Region.String() != region) {
			continue
		}
		out = append(out, l)
	}

	c.JSON(http.StatusOK, gin.H{
		"locations": out,
		"total":     len(out),
	})
}

// handleGetLocation returns a single location.
func (s *Server) handleGetLocation(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	l, ok := s.store.Location(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "location not found"})
		return
	}
	c.JSON(http.StatusOK, l)
}

// handleGetOccupants lists occupants, optionally only known allies.
func (s *Server) handleGetOccupants(c *gin.Context) {
	alliesOnly := c.Query("allies") == "true"

	out := make([]store.Occupant, 0)
	for _, o := range s.store.Occupants() {
		if alliesOnly && !o.IsKnownAlly {
			continue
		}
		out = append(out, o)
	}

	c.JSON(http.StatusOK, gin.H{
		"occupants": out,
		"total":     len(out),
	})
}

// handleGetExport returns the records as they are written to the output
// file.
func (s *Server) handleGetExport(c *gin.Context) {
	c.JSON(http.StatusOK, export.Records(s.store.Snapshot()))
}

// handleGetImports lists the runs stored in the snapshot database.
func (s *Server) handleGetImports(c *gin.Context) {
	s.mu.Lock()
	d := s.db
	s.mu.Unlock()
	if d == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "snapshot database not enabled"})
		return
	}

	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	runs, err := d.Imports(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imports": runs})
}
