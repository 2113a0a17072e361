package meter

import "github.com/ineyio/creditsync"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ creditsync.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnDeduct(creditsync.DeductEvent)       {}
func (m *NoopMeter) OnReconcile(creditsync.ReconcileEvent) {}
func (m *NoopMeter) OnClassify(creditsync.ClassifyEvent)   {}
