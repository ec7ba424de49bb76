// internal/pkg/identity/identity.go
package identity

import (
	"net/http"
	"strconv"
	"strings"

	"atlas/internal/pkg/apperr"
)

// Actor 是经网关鉴权后的请求主体。
// 身份与会话校验不在本系统内实现，网关通过内部头把结果传进来。
type Actor struct {
	ID   int64
	Role string
}

const (
	RoleUser     = "user"
	RoleAdmin    = "admin"
	RoleSupplier = "supplier"
)

const (
	headerUserID   = "X-User-Id"
	headerUserRole = "X-User-Role"
)

// FromRequest 从内部头解析请求主体。
func FromRequest(r *http.Request) (*Actor, error) {
	rawID := strings.TrimSpace(r.Header.Get(headerUserID))
	role := strings.ToLower(strings.TrimSpace(r.Header.Get(headerUserRole)))
	if rawID == "" || role == "" {
		return nil, apperr.Forbidden("missing identity headers")
	}
	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil || id <= 0 {
		return nil, apperr.Forbidden("invalid user id")
	}
	return &Actor{ID: id, Role: role}, nil
}

// RequireRole 校验主体角色是否在允许列表内。
func (a *Actor) RequireRole(roles ...string) error {
	for _, role := range roles {
		if a.Role == role {
			return nil
		}
	}
	return apperr.Forbidden("insufficient role")
}

// IsAdmin 管理员拥有跨用户的读写权限。
func (a *Actor) IsAdmin() bool { return a.Role == RoleAdmin }
