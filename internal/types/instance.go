package types

// InstanceStatus is the lifecycle state of a provisioned workload.
type InstanceStatus string

const (
	InstanceStatusPending      InstanceStatus = "PENDING"
	InstanceStatusProvisioning InstanceStatus = "PROVISIONING"
	InstanceStatusRunning      InstanceStatus = "RUNNING"
	InstanceStatusStopped      InstanceStatus = "STOPPED"
	InstanceStatusError        InstanceStatus = "ERROR"
	InstanceStatusTerminated   InstanceStatus = "TERMINATED"
	InstanceStatusMaintenance  InstanceStatus = "MAINTENANCE"
)

func (s InstanceStatus) Validate() bool {
	switch s {
	case InstanceStatusPending, InstanceStatusProvisioning, InstanceStatusRunning,
		InstanceStatusStopped, InstanceStatusError, InstanceStatusTerminated,
		InstanceStatusMaintenance:
		return true
	}
	return false
}

// IsTerminal reports whether no further reconciliation applies.
func (s InstanceStatus) IsTerminal() bool {
	return s == InstanceStatusTerminated
}
