package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const dateOnlyLayout = "2006-01-02"

func parseIDParam(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return id, nil
}

func parsePeriodParams(c *gin.Context) (int, int, error) {
	year, err := strconv.Atoi(strings.TrimSpace(c.Param("year")))
	if err != nil {
		return 0, 0, newValidationError("year", "invalid_year", "invalid year")
	}
	month, err := strconv.Atoi(strings.TrimSpace(c.Param("month")))
	if err != nil {
		return 0, 0, newValidationError("month", "invalid_month", "invalid month")
	}
	return year, month, nil
}

func parseOptionalInt(value string, def int) (int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return def, nil
	}
	return strconv.Atoi(trimmed)
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return nil, errors.New("invalid_snowflake_id")
	}
	return &parsed, nil
}

func parseSnowflakeIDs(values []string) ([]snowflake.ID, error) {
	out := make([]snowflake.ID, 0, len(values))
	for _, v := range values {
		id, err := parseOptionalSnowflakeID(v)
		if err != nil {
			return nil, err
		}
		if id != nil {
			out = append(out, *id)
		}
	}
	return out, nil
}

// parseOptionalDate accepts RFC3339 or a bare date, read in loc.
func parseOptionalDate(value string, loc *time.Location) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return time.Time{}, nil
	}
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed, nil
	}
	if loc == nil {
		loc = time.UTC
	}
	if parsed, err := time.ParseInLocation(dateOnlyLayout, trimmed, loc); err == nil {
		return parsed, nil
	}
	return time.Time{}, errors.New("invalid_time")
}
