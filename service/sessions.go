package service

import (
	"context"

	"github.com/layer-3/memowallet/core"
)

// Sessions is the part of SessionManager the submit paths depend on
type Sessions interface {
	GetCurrentSession() *core.Session
	UpdateActivity(ctx context.Context)
}

var _ Sessions = (*SessionManager)(nil)
