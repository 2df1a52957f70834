package provisioner

import (
	"context"
	"fmt"
	"time"

	"github.com/servorahq/servora/internal/config"
	"github.com/servorahq/servora/internal/domain/catalog"
	"github.com/servorahq/servora/internal/domain/instance"
	"github.com/servorahq/servora/internal/domain/subscription"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/kube"
	"github.com/servorahq/servora/internal/logger"
	"github.com/servorahq/servora/internal/types"
)

// Provisioner drives instances through their lifecycle against the cluster.
// All cluster access goes through the kube client; the database is the source
// of truth for desired state.
type Provisioner struct {
	cfg           *config.Configuration
	kube          kube.Client
	instances     instance.Repository
	subscriptions subscription.Repository
	catalog       catalog.Repository
	logger        *logger.Logger
}

func New(
	cfg *config.Configuration,
	kubeClient kube.Client,
	instances instance.Repository,
	subscriptions subscription.Repository,
	catalogRepo catalog.Repository,
	log *logger.Logger,
) *Provisioner {
	return &Provisioner{
		cfg:           cfg,
		kube:          kubeClient,
		instances:     instances,
		subscriptions: subscriptions,
		catalog:       catalogRepo,
		logger:        log,
	}
}

type workload struct {
	sub  *subscription.Subscription
	inst *instance.Instance
	svc  *catalog.Service
	plan *catalog.Plan
}

func (p *Provisioner) load(ctx context.Context, subscriptionID string) (*workload, error) {
	sub, err := p.subscriptions.Get(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	inst, err := p.instances.GetBySubscription(ctx, subscriptionID)
	if err != nil {
		return nil, err
	}
	svc, err := p.catalog.GetService(ctx, sub.ServiceID)
	if err != nil {
		return nil, err
	}
	plan, err := p.catalog.GetPlan(ctx, sub.PlanID)
	if err != nil {
		return nil, err
	}
	return &workload{sub: sub, inst: inst, svc: svc, plan: plan}, nil
}

// cancelled re-reads the subscription between cluster steps so a concurrent
// cancellation aborts the rollout instead of racing it.
func (p *Provisioner) cancelled(ctx context.Context, subscriptionID string) bool {
	sub, err := p.subscriptions.Get(ctx, subscriptionID)
	if err != nil {
		return false
	}
	return !sub.IsBillable()
}

// Provision drives a fresh instance from PENDING to RUNNING: apply the
// manifest set in order, wait for the deployment to report ready, capture the
// serving pod. Failures clean up whatever was created, land the instance in
// ERROR with the cause recorded and leave a retry to regenerate the same
// manifests.
func (p *Provisioner) Provision(ctx context.Context, subscriptionID string) error {
	w, err := p.load(ctx, subscriptionID)
	if err != nil {
		return err
	}

	if w.inst.InstanceStatus == types.InstanceStatusRunning {
		return nil
	}
	if w.inst.InstanceStatus == types.InstanceStatusPending {
		if err := w.inst.Transition(types.InstanceStatusProvisioning); err != nil {
			return err
		}
		if err := p.instances.Update(ctx, w.inst); err != nil {
			return err
		}
	} else if w.inst.InstanceStatus != types.InstanceStatusProvisioning {
		return ierr.NewErrorf("instance %s is %s, not provisionable",
			w.inst.ID, w.inst.InstanceStatus).
			Mark(ierr.ErrInvalidTransition)
	}

	manifests := kube.GenerateManifests(w.svc, w.plan, w.inst)
	for _, m := range manifests {
		if p.cancelled(ctx, subscriptionID) {
			p.logger.Infow("provisioning aborted by cancellation",
				"subscription_id", subscriptionID, "instance_id", w.inst.ID)
			return p.Terminate(ctx, subscriptionID)
		}
		if _, err := p.kube.Apply(ctx, m); err != nil {
			p.cleanupPartial(ctx, w.inst)
			return p.fail(ctx, w.inst, err)
		}
	}

	if err := p.kube.WaitReady(ctx, w.inst.DeploymentName, w.inst.Namespace, p.cfg.Kubernetes.CreateTimeout); err != nil {
		p.cleanupPartial(ctx, w.inst)
		return p.fail(ctx, w.inst, err)
	}

	if p.cancelled(ctx, subscriptionID) {
		return p.Terminate(ctx, subscriptionID)
	}

	return p.markRunning(ctx, w.inst)
}

// Update re-applies the manifest set after a plan change so the workload picks
// up the new resource envelope, then waits for the rollout.
func (p *Provisioner) Update(ctx context.Context, subscriptionID string) error {
	w, err := p.load(ctx, subscriptionID)
	if err != nil {
		return err
	}

	if err := w.inst.Transition(types.InstanceStatusProvisioning); err != nil {
		return err
	}
	if err := p.instances.Update(ctx, w.inst); err != nil {
		return err
	}

	for _, m := range kube.GenerateManifests(w.svc, w.plan, w.inst) {
		if _, err := p.kube.Apply(ctx, m); err != nil {
			return p.fail(ctx, w.inst, err)
		}
	}

	if err := p.kube.WaitReady(ctx, w.inst.DeploymentName, w.inst.Namespace, p.cfg.Kubernetes.UpdateTimeout); err != nil {
		return p.fail(ctx, w.inst, err)
	}

	return p.markRunning(ctx, w.inst)
}

// Stop scales the deployment to zero. Cluster resources stay in place so
// Start is cheap.
func (p *Provisioner) Stop(ctx context.Context, subscriptionID string) error {
	w, err := p.load(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if w.inst.InstanceStatus == types.InstanceStatusStopped {
		return nil
	}
	if err := w.inst.Transition(types.InstanceStatusStopped); err != nil {
		return err
	}
	if err := p.kube.ScaleDeployment(ctx, w.inst.DeploymentName, w.inst.Namespace, 0); err != nil {
		return p.fail(ctx, w.inst, err)
	}
	now := time.Now().UTC()
	w.inst.LastStopped = &now
	w.inst.PodName = ""
	return p.instances.Update(ctx, w.inst)
}

// Start scales a stopped deployment back to one replica and waits for it.
func (p *Provisioner) Start(ctx context.Context, subscriptionID string) error {
	w, err := p.load(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if w.inst.InstanceStatus == types.InstanceStatusRunning {
		return nil
	}
	if !w.inst.CanTransition(types.InstanceStatusRunning) {
		return ierr.NewErrorf("instance %s cannot start from %s",
			w.inst.ID, w.inst.InstanceStatus).
			Mark(ierr.ErrInvalidTransition)
	}
	if err := p.kube.ScaleDeployment(ctx, w.inst.DeploymentName, w.inst.Namespace, 1); err != nil {
		return p.fail(ctx, w.inst, err)
	}
	if err := p.kube.WaitReady(ctx, w.inst.DeploymentName, w.inst.Namespace, p.cfg.Kubernetes.UpdateTimeout); err != nil {
		return p.fail(ctx, w.inst, err)
	}
	return p.markRunning(ctx, w.inst)
}

// Restart triggers a rolling restart of a running instance.
func (p *Provisioner) Restart(ctx context.Context, subscriptionID string) error {
	w, err := p.load(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if w.inst.InstanceStatus != types.InstanceStatusRunning {
		return ierr.NewErrorf("instance %s is %s, only running instances restart",
			w.inst.ID, w.inst.InstanceStatus).
			Mark(ierr.ErrInvalidTransition)
	}
	if err := p.kube.RolloutRestart(ctx, w.inst.DeploymentName, w.inst.Namespace); err != nil {
		return p.fail(ctx, w.inst, err)
	}
	if err := p.kube.WaitReady(ctx, w.inst.DeploymentName, w.inst.Namespace, p.cfg.Kubernetes.UpdateTimeout); err != nil {
		return p.fail(ctx, w.inst, err)
	}
	return p.markRunning(ctx, w.inst)
}

// Terminate tears down every cluster resource of the instance in reverse
// apply order. Missing resources are fine; termination is idempotent. The
// per-user namespace is shared and never deleted here.
func (p *Provisioner) Terminate(ctx context.Context, subscriptionID string) error {
	inst, err := p.instances.GetBySubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if inst.InstanceStatus == types.InstanceStatusTerminated {
		return nil
	}

	var firstErr error
	for _, d := range resourceDeletions(inst) {
		if d.name == "" {
			continue
		}
		if _, err := p.kube.Delete(ctx, d.kind, d.name, inst.Namespace); err != nil {
			p.logger.Warnw("failed to delete instance resource",
				"instance_id", inst.ID, "kind", d.kind, "name", d.name, "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if firstErr != nil {
		return p.fail(ctx, inst, firstErr)
	}

	if err := inst.Transition(types.InstanceStatusTerminated); err != nil {
		return err
	}
	now := time.Now().UTC()
	inst.LastStopped = &now
	inst.PodName = ""
	inst.HealthStatus = ""
	return p.instances.Update(ctx, inst)
}

// resourceDeletion pairs a resource kind with the instance's name for it, in
// reverse apply order. The shared per-user namespace is excluded.
type resourceDeletion struct {
	kind kube.Kind
	name string
}

func resourceDeletions(inst *instance.Instance) []resourceDeletion {
	return []resourceDeletion{
		{kube.KindIngress, inst.IngressName},
		{kube.KindService, inst.ServiceName},
		{kube.KindDeployment, inst.DeploymentName},
		{kube.KindPVC, inst.PVCName},
		{kube.KindConfigMap, inst.ConfigMapName},
	}
}

// cleanupPartial best-effort deletes whatever a failed provision attempt may
// have created, in reverse apply order. Errors are logged and swallowed; the
// instance still lands in ERROR and a retry regenerates the same manifests.
func (p *Provisioner) cleanupPartial(ctx context.Context, inst *instance.Instance) {
	for _, d := range resourceDeletions(inst) {
		if d.name == "" {
			continue
		}
		if _, err := p.kube.Delete(ctx, d.kind, d.name, inst.Namespace); err != nil {
			p.logger.Warnw("failed to clean up after provisioning failure",
				"instance_id", inst.ID, "kind", d.kind, "name", d.name, "error", err)
		}
	}
}

// Reset moves an errored instance back to PENDING so the next provision
// attempt can run it again.
func (p *Provisioner) Reset(ctx context.Context, subscriptionID string) error {
	inst, err := p.instances.GetBySubscription(ctx, subscriptionID)
	if err != nil {
		return err
	}
	if err := inst.Transition(types.InstanceStatusPending); err != nil {
		return err
	}
	inst.HealthStatus = ""
	return p.instances.Update(ctx, inst)
}

func (p *Provisioner) markRunning(ctx context.Context, inst *instance.Instance) error {
	pod, err := p.kube.NewestPodFor(ctx, inst.DeploymentName, inst.Namespace)
	if err != nil {
		p.logger.Warnw("failed to resolve serving pod",
			"instance_id", inst.ID, "error", err)
	} else {
		inst.PodName = pod
	}

	if err := inst.Transition(types.InstanceStatusRunning); err != nil {
		return err
	}
	now := time.Now().UTC()
	inst.LastStarted = &now
	inst.LastHealthCheck = &now
	inst.HealthStatus = "healthy"
	if err := p.instances.Update(ctx, inst); err != nil {
		return err
	}
	p.logger.Infow("instance running",
		"instance_id", inst.ID, "pod", inst.PodName, "namespace", inst.Namespace)
	return nil
}

// fail records the cause on the instance and lands it in ERROR. The original
// error is returned so callers see the real failure, not the bookkeeping.
func (p *Provisioner) fail(ctx context.Context, inst *instance.Instance, cause error) error {
	inst.HealthStatus = fmt.Sprintf("provisioning failed: %v", cause)
	if inst.CanTransition(types.InstanceStatusError) {
		inst.InstanceStatus = types.InstanceStatusError
	}
	if err := p.instances.Update(ctx, inst); err != nil {
		p.logger.Errorw("failed to record instance failure",
			"instance_id", inst.ID, "error", err)
	}
	p.logger.Errorw("instance operation failed",
		"instance_id", inst.ID, "namespace", inst.Namespace, "error", cause)
	return cause
}
