package utils

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const cursorSeparator = "_"

const (
	DefaultPageLimit = 20
	MaxPageLimit     = 100
)

// EncodeCursor кодирует позицию keyset-пагинации (время, id) в base64-строку.
func EncodeCursor(t time.Time, id int64) string {
	if id == 0 || t.IsZero() {
		return ""
	}
	raw := strconv.FormatInt(t.UnixNano(), 10) + cursorSeparator + strconv.FormatInt(id, 10)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor разбирает курсор. Пустой курсор означает первую страницу и
// возвращает нулевые значения без ошибки.
func DecodeCursor(cursor string) (time.Time, int64, error) {
	if cursor == "" {
		return time.Time{}, 0, nil
	}
	decoded, err := base64.URLEncoding.DecodeString(cursor)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid cursor base64 format: %w", err)
	}
	parts := strings.SplitN(string(decoded), cursorSeparator, 2)
	if len(parts) != 2 {
		return time.Time{}, 0, fmt.Errorf("invalid cursor format, expected 2 parts, got %d", len(parts))
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid cursor timestamp: %w", err)
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return time.Time{}, 0, fmt.Errorf("invalid cursor id: %w", err)
	}
	return time.Unix(0, nanos).UTC(), id, nil
}

// NormalizeLimit приводит limit к допустимому диапазону.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultPageLimit
	}
	if limit > MaxPageLimit {
		return MaxPageLimit
	}
	return limit
}
