package query

import (
	"strings"

	"github.com/HanTheDev/multi-tenant-dashboard/internal/cache"
)

// NormalizeQuery trims, collapses whitespace runs to single spaces and
// lowercases. Queries that differ only in letter case inside string literals
// normalize to the same text.
func NormalizeQuery(q string) string {
	return strings.ToLower(strings.Join(strings.Fields(q), " "))
}

// CacheKey returns the "sql" namespace key for a query in a tenant/user scope.
func CacheKey(q string, tenantID, userID int64) string {
	return cache.Key(cache.NamespaceSQL, tenantID, userID, NormalizeQuery(q))
}
