package testutil

import (
	"sync"

	"github.com/servorahq/servora/internal/provisioner"
)

// RecordingQueue captures provisioner jobs instead of executing them. Set
// Reject to simulate a saturated queue.
type RecordingQueue struct {
	mu     sync.Mutex
	jobs   []provisioner.Job
	Reject bool
}

func NewRecordingQueue() *RecordingQueue {
	return &RecordingQueue{}
}

func (q *RecordingQueue) Enqueue(job provisioner.Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.Reject {
		return false
	}
	q.jobs = append(q.jobs, job)
	return true
}

// Jobs returns a snapshot of everything enqueued so far.
func (q *RecordingQueue) Jobs() []provisioner.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]provisioner.Job(nil), q.jobs...)
}

// JobsOfType filters the snapshot by job type.
func (q *RecordingQueue) JobsOfType(jobType provisioner.JobType) []provisioner.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	var result []provisioner.Job
	for _, j := range q.jobs {
		if j.Type == jobType {
			result = append(result, j)
		}
	}
	return result
}

func (q *RecordingQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.jobs = nil
}
