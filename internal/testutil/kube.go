package testutil

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/servorahq/servora/internal/kube"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
)

// FakeKubeClient records cluster operations and answers from canned state.
// Error knobs simulate orchestrator failures.
type FakeKubeClient struct {
	mu sync.Mutex

	applied  []runtime.Object
	deleted  []string
	scales   map[string]int32
	restarts []string

	// OnApply runs before each apply is recorded; returning an error fails
	// the call. Used to interleave state changes mid-provisioning.
	OnApply func(obj runtime.Object) error

	PodName      string
	Logs         string
	ApplyErr     error
	DeleteErr    error
	WaitReadyErr error
	ScaleErr     error
	Unavailable  bool
}

func NewFakeKubeClient() *FakeKubeClient {
	return &FakeKubeClient{scales: make(map[string]int32)}
}

var _ kube.Client = (*FakeKubeClient)(nil)

func (f *FakeKubeClient) Apply(ctx context.Context, obj runtime.Object) (kube.ApplyAction, error) {
	f.mu.Lock()
	onApply := f.OnApply
	applyErr := f.ApplyErr
	f.mu.Unlock()

	if onApply != nil {
		if err := onApply(obj); err != nil {
			return "", err
		}
	}
	if applyErr != nil {
		return "", applyErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied = append(f.applied, obj.DeepCopyObject())
	return kube.ApplyActionCreated, nil
}

func (f *FakeKubeClient) Delete(ctx context.Context, kind kube.Kind, name, namespace string) (bool, error) {
	if f.DeleteErr != nil {
		return false, f.DeleteErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, fmt.Sprintf("%s/%s/%s", kind, namespace, name))
	return true, nil
}

func (f *FakeKubeClient) WaitReady(ctx context.Context, deploymentName, namespace string, timeout time.Duration) error {
	return f.WaitReadyErr
}

func (f *FakeKubeClient) ListPodsFor(ctx context.Context, deploymentName, namespace string) ([]corev1.Pod, error) {
	if f.PodName == "" {
		return nil, nil
	}
	return []corev1.Pod{{
		ObjectMeta: metav1.ObjectMeta{Name: f.PodName, Namespace: namespace},
	}}, nil
}

func (f *FakeKubeClient) NewestPodFor(ctx context.Context, deploymentName, namespace string) (string, error) {
	return f.PodName, nil
}

func (f *FakeKubeClient) StreamLogs(ctx context.Context, namespace, pod, container string, sink io.Writer) error {
	_, err := io.WriteString(sink, f.Logs)
	return err
}

func (f *FakeKubeClient) ScaleDeployment(ctx context.Context, name, namespace string, replicas int32) error {
	if f.ScaleErr != nil {
		return f.ScaleErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scales[namespace+"/"+name] = replicas
	return nil
}

func (f *FakeKubeClient) RolloutRestart(ctx context.Context, name, namespace string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restarts = append(f.restarts, namespace+"/"+name)
	return nil
}

func (f *FakeKubeClient) IsAvailable(ctx context.Context) bool {
	return !f.Unavailable
}

// Applied returns a snapshot of every object applied so far.
func (f *FakeKubeClient) Applied() []runtime.Object {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]runtime.Object(nil), f.applied...)
}

// Deleted returns "Kind/namespace/name" entries in deletion order.
func (f *FakeKubeClient) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// ScaleOf returns the last replica count set for namespace/name.
func (f *FakeKubeClient) ScaleOf(namespace, name string) (int32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.scales[namespace+"/"+name]
	return n, ok
}

// Restarts returns "namespace/name" entries for every rollout restart.
func (f *FakeKubeClient) Restarts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.restarts...)
}
