package modules

import "tenantdesk.io/console/internal/governance/audit"

// GovernanceModule subscribes the audit logger to the event dispatcher.
type GovernanceModule struct {
	noop
	Audit *audit.Logger
}

func NewGovernanceModule(infra *Infrastructure) *GovernanceModule {
	l := audit.NewLogger(infra.Stores.Audit)
	l.Subscribe(infra.Events)
	return &GovernanceModule{Audit: l}
}

func (*GovernanceModule) Name() string { return "governance" }
