package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"faceclock/internal/attendance"
)

func (s *Server) captureStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.capture.Stats())
}

func (s *Server) captureStart(c *gin.Context) {
	if err := s.capture.Start(s.base); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error(), "capture": s.capture.Stats()})
		return
	}
	c.JSON(http.StatusOK, s.capture.Stats())
}

func (s *Server) captureStop(c *gin.Context) {
	if err := s.capture.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.capture.Stats())
}

func (s *Server) debounceReset(c *gin.Context) {
	if err := s.capture.ResetDebounce(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listEvents(c *gin.Context) {
	f := attendance.EventFilter{
		PersonID: c.Query("person_id"),
		Activity: c.Query("activity"),
	}
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			f.Offset = parsed
		}
	}
	evts, err := s.registry.ListEvents(c.Request.Context(), f)
	if err != nil {
		s.internalError(c, "list events", err)
		return
	}
	if evts == nil {
		evts = []attendance.Event{}
	}
	c.JSON(http.StatusOK, gin.H{"events": evts})
}

func (s *Server) listPeople(c *gin.Context) {
	people, err := s.registry.ListPeople(c.Request.Context())
	if err != nil {
		s.internalError(c, "list people", err)
		return
	}
	if people == nil {
		people = []attendance.Person{}
	}
	c.JSON(http.StatusOK, gin.H{"people": people})
}

type personRequest struct {
	ID          string `json:"id" binding:"required"`
	Code        string `json:"code"`
	DisplayName string `json:"display_name" binding:"required"`
	Department  string `json:"department"`
	Role        string `json:"role"`
}

func (s *Server) upsertPerson(c *gin.Context) {
	var req personRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Code == "" {
		req.Code = req.ID
	}
	p, err := s.registry.UpsertPerson(c.Request.Context(), attendance.Person{
		ID:          req.ID,
		Code:        req.Code,
		DisplayName: req.DisplayName,
		Department:  req.Department,
		Role:        req.Role,
	})
	if err != nil {
		s.internalError(c, "upsert person", err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

// getPerson includes the weekly schedule and the activity active right now, if any.
func (s *Server) getPerson(c *gin.Context) {
	ctx := c.Request.Context()
	p, ok := s.person(c)
	if !ok {
		return
	}
	entries, err := s.registry.FindSchedule(ctx, p.ID)
	if err != nil {
		s.internalError(c, "find schedule", err)
		return
	}
	body := gin.H{"person": p, "schedule": nonNil(entries)}
	if cur, ok := attendance.ActiveEntry(entries, time.Now().In(s.loc)); ok {
		body["current_activity"] = cur
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) listSchedule(c *gin.Context) {
	p, ok := s.person(c)
	if !ok {
		return
	}
	entries, err := s.registry.FindSchedule(c.Request.Context(), p.ID)
	if err != nil {
		s.internalError(c, "find schedule", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"schedule": nonNil(entries)})
}

type scheduleRequest struct {
	Day      *int                 `json:"day_of_week" binding:"required"`
	Start    attendance.ClockTime `json:"start_time"`
	End      attendance.ClockTime `json:"end_time"`
	Activity string               `json:"activity" binding:"required"`
}

func (s *Server) addSchedule(c *gin.Context) {
	p, ok := s.person(c)
	if !ok {
		return
	}
	var req scheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry := attendance.ScheduleEntry{
		PersonID: p.ID,
		Day:      time.Weekday(*req.Day),
		Start:    req.Start,
		End:      req.End,
		Activity: req.Activity,
	}
	if err := entry.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	saved, err := s.registry.AddSchedule(c.Request.Context(), entry)
	if err != nil {
		s.internalError(c, "add schedule", err)
		return
	}
	c.JSON(http.StatusCreated, saved)
}

func (s *Server) removeSchedule(c *gin.Context) {
	err := s.registry.RemoveSchedule(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, attendance.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "schedule entry not found"})
	case err != nil:
		s.internalError(c, "remove schedule", err)
	default:
		c.Status(http.StatusNoContent)
	}
}

// person resolves :id or writes a 404.
func (s *Server) person(c *gin.Context) (*attendance.Person, bool) {
	p, err := s.registry.LookupPerson(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.internalError(c, "lookup person", err)
		return nil, false
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "person not found"})
		return nil, false
	}
	return p, true
}

func (s *Server) internalError(c *gin.Context, op string, err error) {
	s.log.Error(op, "path", c.Request.URL.Path, "err", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": op + " failed"})
}

func nonNil(entries []attendance.ScheduleEntry) []attendance.ScheduleEntry {
	if entries == nil {
		return []attendance.ScheduleEntry{}
	}
	return entries
}
