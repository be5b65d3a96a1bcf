package v1

import (
	"strconv"
	"strings"

	"vpnkey-hub/internal/repository"
)

func parseIntOrDefault(raw string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}

func paginationFromQuery(pageRaw, pageSizeRaw string) (page, pageSize int, p repository.Pagination) {
	page = parseIntOrDefault(pageRaw, 1)
	pageSize = parseIntOrDefault(pageSizeRaw, 20)
	if pageSize > 200 {
		pageSize = 200
	}

	p = repository.Pagination{
		Limit:  int32(pageSize),
		Offset: int32((page - 1) * pageSize),
	}
	return page, pageSize, p
}
