package provisioner

import (
	"context"
	"time"

	"github.com/servorahq/servora/internal/logger"
	"github.com/sourcegraph/conc/pool"
)

// JobType names the lifecycle operation a queued job performs.
type JobType string

const (
	JobProvision JobType = "provision"
	JobUpdate    JobType = "update"
	JobStop      JobType = "stop"
	JobStart     JobType = "start"
	JobRestart   JobType = "restart"
	JobTerminate JobType = "terminate"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
	// staleThreshold is how long a PENDING or PROVISIONING instance may sit
	// untouched before the startup sweep picks it up.
	staleThreshold = 10 * time.Minute
)

// Job is a unit of provisioning work keyed by subscription.
type Job struct {
	Type           JobType
	SubscriptionID string
}

// Pool runs provisioning jobs on a bounded set of workers. HTTP handlers and
// the billing scheduler enqueue; the pool executes outside any database
// transaction so slow cluster operations never hold row locks.
type Pool struct {
	provisioner *Provisioner
	logger      *logger.Logger
	jobs        chan Job
	workers     int
}

func NewPool(p *Provisioner, log *logger.Logger) *Pool {
	return &Pool{
		provisioner: p,
		logger:      log,
		jobs:        make(chan Job, defaultQueueSize),
		workers:     defaultWorkers,
	}
}

// Enqueue queues a job without blocking. A full queue drops the job and
// reports false; the startup sweep re-discovers dropped provisioning work.
func (p *Pool) Enqueue(job Job) bool {
	select {
	case p.jobs <- job:
		return true
	default:
		p.logger.Warnw("provisioner queue full, dropping job",
			"type", job.Type, "subscription_id", job.SubscriptionID)
		return false
	}
}

// Run consumes jobs until ctx is cancelled, then waits for in-flight work.
func (p *Pool) Run(ctx context.Context) {
	workers := pool.New().WithMaxGoroutines(p.workers)
	for {
		select {
		case <-ctx.Done():
			workers.Wait()
			return
		case job := <-p.jobs:
			workers.Go(func() {
				p.execute(ctx, job)
			})
		}
	}
}

func (p *Pool) execute(ctx context.Context, job Job) {
	log := p.logger.With("type", job.Type, "subscription_id", job.SubscriptionID)
	log.Infow("provisioner job started")

	var err error
	switch job.Type {
	case JobProvision:
		err = p.provisioner.Provision(ctx, job.SubscriptionID)
	case JobUpdate:
		err = p.provisioner.Update(ctx, job.SubscriptionID)
	case JobStop:
		err = p.provisioner.Stop(ctx, job.SubscriptionID)
	case JobStart:
		err = p.provisioner.Start(ctx, job.SubscriptionID)
	case JobRestart:
		err = p.provisioner.Restart(ctx, job.SubscriptionID)
	case JobTerminate:
		err = p.provisioner.Terminate(ctx, job.SubscriptionID)
	default:
		log.Errorw("unknown provisioner job type")
		return
	}

	if err != nil {
		log.Errorw("provisioner job failed", "error", err)
		return
	}
	log.Infow("provisioner job finished")
}

// SweepStale re-enqueues instances stuck mid-provision, typically after a
// process restart. Provision is idempotent, so resuming is safe.
func (p *Pool) SweepStale(ctx context.Context) error {
	stale, err := p.provisioner.instances.ListStaleReconciling(ctx, time.Now().UTC().Add(-staleThreshold))
	if err != nil {
		return err
	}
	for _, inst := range stale {
		p.logger.Infow("resuming stale instance",
			"instance_id", inst.ID, "status", inst.InstanceStatus,
			"subscription_id", inst.SubscriptionID)
		p.Enqueue(Job{Type: JobProvision, SubscriptionID: inst.SubscriptionID})
	}
	return nil
}
