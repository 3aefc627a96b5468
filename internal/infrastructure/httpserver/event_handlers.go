package httpserver

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/codeweberdotcom/limitguard/internal/core/domain/ratelimit"
)

func (s *Server) listEvents(c echo.Context) error {
	filter := &ratelimit.EventFilter{
		Module:      c.QueryParam("module"),
		EventType:   ratelimit.EventType(c.QueryParam("event_type")),
		Mode:        ratelimit.Mode(c.QueryParam("mode")),
		Key:         c.QueryParam("key"),
		Search:      c.QueryParam("search"),
		Environment: ratelimit.Environment(c.QueryParam("environment")),
		Cursor:      c.QueryParam("cursor"),
	}

	if v := c.QueryParam("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid limit")
		}
		filter.Limit = limit
	}
	if v := c.QueryParam("exclude_test"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid exclude_test")
		}
		filter.ExcludeTest = b
	}
	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from must be RFC3339")
		}
		filter.From = &t
	}
	if v := c.QueryParam("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "to must be RFC3339")
		}
		filter.To = &t
	}

	events, nextCursor, err := s.eventSvc.List(c.Request().Context(), filter)
	if err != nil {
		if errors.Is(err, ratelimit.ErrValidation) {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if events == nil {
		events = []*ratelimit.Event{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{"items": events, "next_cursor": nextCursor})
}
