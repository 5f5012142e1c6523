package cache

import (
	"strconv"
	"strings"
)

const (
	NamespaceSQL     = "sql"
	NamespaceWidgets = "widgets"
)

// Key composes "<namespace>:<tenantId>:<userId>:<subject>".
func Key(namespace string, tenantID, userID int64, subject string) string {
	var b strings.Builder
	b.Grow(len(namespace) + len(subject) + 24)
	b.WriteString(namespace)
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(tenantID, 10))
	b.WriteByte(':')
	b.WriteString(strconv.FormatInt(userID, 10))
	b.WriteByte(':')
	b.WriteString(subject)
	return b.String()
}

// TenantPrefix matches every key of a namespace that belongs to tenantID,
// across all users.
func TenantPrefix(namespace string, tenantID int64) string {
	return namespace + ":" + strconv.FormatInt(tenantID, 10) + ":"
}
