package server

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	timeLayout = time.RFC3339

	defaultListLimit = 50
	maxListLimit     = 200
)

func parseOptionalInt64(value string) (*int64, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
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

// parseIDParam parses a required snowflake path parameter.
func parseIDParam(value string) (snowflake.ID, error) {
	id, err := parseOptionalSnowflakeID(value)
	if err != nil || id == nil {
		return 0, newValidationError("id", "invalid_id", "invalid id")
	}
	return *id, nil
}

// parseLimit clamps the limit query parameter to (0, maxListLimit].
func parseLimit(value string) (int, error) {
	parsed, err := parseOptionalInt64(value)
	if err != nil {
		return 0, newValidationError("limit", "invalid_limit", "limit must be a number")
	}
	if parsed == nil || *parsed <= 0 {
		return defaultListLimit, nil
	}
	if *parsed > maxListLimit {
		return maxListLimit, nil
	}
	return int(*parsed), nil
}
