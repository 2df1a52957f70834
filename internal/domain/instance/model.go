package instance

import (
	"time"

	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/types"
)

// Instance is the concrete per-subscription workload running on the
// orchestration cluster.
type Instance struct {
	ID             string `db:"id" json:"id" gorm:"primaryKey"`
	SubscriptionID string `db:"subscription_id" json:"subscription_id" gorm:"index"`
	UserID         string `db:"user_id" json:"user_id" gorm:"index"`
	ServiceID      string `db:"service_id" json:"service_id"`

	InstanceStatus types.InstanceStatus `db:"instance_status" json:"instance_status"`

	Name           string `db:"name" json:"name"`
	Namespace      string `db:"namespace" json:"namespace" gorm:"index:idx_instances_ns_deploy,priority:1"`
	DeploymentName string `db:"deployment_name" json:"deployment_name" gorm:"index:idx_instances_ns_deploy,priority:2"`
	ServiceName    string `db:"service_name" json:"service_name"`
	IngressName    string `db:"ingress_name" json:"ingress_name"`
	ConfigMapName  string `db:"config_map_name" json:"config_map_name"`
	PVCName        string `db:"pvc_name" json:"pvc_name"`
	PodName        string `db:"pod_name" json:"pod_name"`

	Subdomain    string `db:"subdomain" json:"subdomain"`
	CustomDomain string `db:"custom_domain" json:"custom_domain,omitempty"`
	PublicURL    string `db:"public_url" json:"public_url"`
	SSLEnabled   bool   `db:"ssl_enabled" json:"ssl_enabled"`

	// EnvOverrides are instance-specific environment values overlaid on the
	// service template.
	EnvOverrides types.Metadata `db:"env_overrides" json:"env_overrides" gorm:"type:jsonb;serializer:json"`

	HealthStatus    string     `db:"health_status" json:"health_status,omitempty"`
	CPUMilliUsed    int        `db:"cpu_milli_used" json:"cpu_milli_used"`
	MemoryMBUsed    int        `db:"memory_mb_used" json:"memory_mb_used"`
	LastStarted     *time.Time `db:"last_started" json:"last_started,omitempty"`
	LastStopped     *time.Time `db:"last_stopped" json:"last_stopped,omitempty"`
	LastHealthCheck *time.Time `db:"last_health_check" json:"last_health_check,omitempty"`

	types.BaseModel
}

func (i *Instance) TableName() string {
	return "service_instances"
}

func (i *Instance) Validate() error {
	if i.SubscriptionID == "" {
		return ierr.NewError("instance requires a subscription").
			Mark(ierr.ErrValidation)
	}
	if !i.InstanceStatus.Validate() {
		return ierr.NewError("invalid instance status").
			WithReportableDetails(map[string]any{"status": i.InstanceStatus}).
			Mark(ierr.ErrValidation)
	}
	return nil
}

// instanceTransitions enumerates the legal workload state changes. Terminate
// is allowed from every non-terminal state; a terminated workload can be
// queued for provisioning again via PENDING.
var instanceTransitions = map[types.InstanceStatus][]types.InstanceStatus{
	types.InstanceStatusPending: {
		types.InstanceStatusProvisioning,
		types.InstanceStatusError,
	},
	types.InstanceStatusProvisioning: {
		types.InstanceStatusRunning,
		types.InstanceStatusError,
	},
	types.InstanceStatusRunning: {
		types.InstanceStatusStopped,
		types.InstanceStatusProvisioning,
		types.InstanceStatusMaintenance,
		types.InstanceStatusError,
	},
	types.InstanceStatusStopped: {
		types.InstanceStatusProvisioning,
		types.InstanceStatusRunning,
		types.InstanceStatusError,
	},
	types.InstanceStatusError: {
		types.InstanceStatusPending,
	},
	types.InstanceStatusMaintenance: {
		types.InstanceStatusRunning,
		types.InstanceStatusStopped,
		types.InstanceStatusError,
	},
	types.InstanceStatusTerminated: {
		types.InstanceStatusPending,
	},
}

// CanTransition reports whether the move to target is legal.
func (i *Instance) CanTransition(target types.InstanceStatus) bool {
	if target == types.InstanceStatusTerminated {
		return i.InstanceStatus != types.InstanceStatusTerminated
	}
	for _, t := range instanceTransitions[i.InstanceStatus] {
		if t == target {
			return true
		}
	}
	return false
}

// Transition moves the instance to the target status or fails with an
// invalid-transition error.
func (i *Instance) Transition(target types.InstanceStatus) error {
	if !i.CanTransition(target) {
		return ierr.NewErrorf("cannot transition instance from %s to %s",
			i.InstanceStatus, target).
			WithHintf("Instance is %s", i.InstanceStatus).
			WithReportableDetails(map[string]any{
				"from": i.InstanceStatus,
				"to":   target,
			}).
			Mark(ierr.ErrInvalidTransition)
	}
	i.InstanceStatus = target
	return nil
}
