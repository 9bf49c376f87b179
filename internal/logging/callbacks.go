package logging

import (
	"go.uber.org/zap"

	"github.com/kaivolabs/pgreg/pkg/registry"
)

// Callbacks is the default registry.Callbacks implementation: it only
// logs. cmd/node wires it into every scope it starts, and it is what
// demonstrates the shape every real callback implementation should
// follow.
type Callbacks struct {
	Log *zap.Logger
}

func (c Callbacks) OnProcessJoined(scope string, group registry.GroupName, h registry.Handle, meta registry.Meta, reason registry.Reason) {
	c.Log.Info("joined", zap.String("scope", scope), zap.String("group", string(group)), zap.String("handle", h.String()), zap.String("reason", reason.String()))
}

func (c Callbacks) OnProcessLeft(scope string, group registry.GroupName, h registry.Handle, meta registry.Meta, reason registry.Reason) {
	c.Log.Info("left", zap.String("scope", scope), zap.String("group", string(group)), zap.String("handle", h.String()), zap.String("reason", reason.String()))
}

func (c Callbacks) OnGroupProcessUpdated(scope string, group registry.GroupName, h registry.Handle, meta registry.Meta, reason registry.Reason) {
	c.Log.Info("updated", zap.String("scope", scope), zap.String("group", string(group)), zap.String("handle", h.String()), zap.String("reason", reason.String()))
}
