package kube

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/servorahq/servora/internal/config"
	ierr "github.com/servorahq/servora/internal/errors"
	"github.com/servorahq/servora/internal/logger"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	k8serrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/labels"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// ApplyAction describes what Apply did with a manifest.
type ApplyAction string

const (
	ApplyActionCreated  ApplyAction = "created"
	ApplyActionUpdated  ApplyAction = "updated"
	ApplyActionExisting ApplyAction = "existing"
)

// Kind identifies the cluster resource kinds the control plane manages.
type Kind string

const (
	KindNamespace  Kind = "Namespace"
	KindConfigMap  Kind = "ConfigMap"
	KindPVC        Kind = "PersistentVolumeClaim"
	KindDeployment Kind = "Deployment"
	KindService    Kind = "Service"
	KindIngress    Kind = "Ingress"
)

const (
	readyPollInterval = 5 * time.Second
	transientRetries  = 3
)

// Client is the only component that talks to the orchestrator. It is safe for
// concurrent use; one instance is shared across callers.
type Client interface {
	// Apply creates the resource or, for mutable kinds, replaces it. Namespace
	// and PersistentVolumeClaim are left in place when they already exist.
	Apply(ctx context.Context, obj runtime.Object) (ApplyAction, error)
	// Delete removes the resource; missing resources report found=false.
	Delete(ctx context.Context, kind Kind, name, namespace string) (found bool, err error)
	// WaitReady blocks until the deployment reports an Available=True
	// condition or the timeout fires.
	WaitReady(ctx context.Context, deploymentName, namespace string, timeout time.Duration) error
	// ListPodsFor lists pods carrying the deployment's selector labels.
	ListPodsFor(ctx context.Context, deploymentName, namespace string) ([]corev1.Pod, error)
	// NewestPodFor returns the pod with the latest creation timestamp
	// regardless of phase, or "" when none exist.
	NewestPodFor(ctx context.Context, deploymentName, namespace string) (string, error)
	// StreamLogs follows the container log into sink until ctx is cancelled
	// or the stream ends.
	StreamLogs(ctx context.Context, namespace, pod, container string, sink io.Writer) error
	// ScaleDeployment sets the replica count.
	ScaleDeployment(ctx context.Context, name, namespace string, replicas int32) error
	// RolloutRestart bumps the pod template restart annotation, triggering a
	// rolling restart.
	RolloutRestart(ctx context.Context, name, namespace string) error
	// IsAvailable reports whether the cluster API answers.
	IsAvailable(ctx context.Context) bool
}

type client struct {
	clientset kubernetes.Interface
	logger    *logger.Logger
}

// NewClient builds a cluster client from an explicit kubeconfig when
// configured, falling back to in-cluster config.
func NewClient(cfg *config.Configuration, log *logger.Logger) (Client, error) {
	restCfg, err := buildRESTConfig(cfg.Kubernetes)
	if err != nil {
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to create kubernetes client").
			Mark(ierr.ErrSystem)
	}

	return NewClientForClientset(clientset, log), nil
}

// NewClientForClientset wraps an existing clientset; tests inject fakes here.
func NewClientForClientset(clientset kubernetes.Interface, log *logger.Logger) Client {
	return &client{
		clientset: clientset,
		logger:    log,
	}
}

func buildRESTConfig(cfg config.KubernetesConfig) (*rest.Config, error) {
	if cfg.KubeconfigPath != "" {
		loadingRules := &clientcmd.ClientConfigLoadingRules{ExplicitPath: cfg.KubeconfigPath}
		cc := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, &clientcmd.ConfigOverrides{})
		restCfg, err := cc.ClientConfig()
		if err != nil {
			return nil, ierr.WithError(err).
				WithMessage("failed to load kubeconfig").
				Mark(ierr.ErrSystem)
		}
		if cfg.SkipTLSVerify {
			restCfg.TLSClientConfig.Insecure = true
			restCfg.TLSClientConfig.CAData = nil
			restCfg.TLSClientConfig.CAFile = ""
		}
		return restCfg, nil
	}

	restCfg, err := rest.InClusterConfig()
	if err != nil {
		return nil, ierr.WithError(err).
			WithMessage("failed to load in-cluster config").
			Mark(ierr.ErrSystem)
	}
	return restCfg, nil
}

// withRetry runs the operation, retrying transient orchestrator failures at
// 1 s / 2 s / 4 s. Permanent failures surface immediately.
func (c *client) withRetry(ctx context.Context, op func() error) error {
	bo := backoff.WithContext(backoff.WithMaxRetries(
		backoff.NewExponentialBackOff(
			backoff.WithInitialInterval(time.Second),
			backoff.WithMultiplier(2),
			backoff.WithRandomizationFactor(0),
		),
		transientRetries-1,
	), ctx)

	return backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		if isTransient(err) {
			c.logger.Warnw("retrying orchestrator call", "error", err)
			return classify(err)
		}
		return backoff.Permanent(classify(err))
	}, bo)
}

func isTransient(err error) bool {
	if k8serrors.IsConflict(err) ||
		k8serrors.IsServerTimeout(err) ||
		k8serrors.IsTimeout(err) ||
		k8serrors.IsTooManyRequests(err) ||
		k8serrors.IsServiceUnavailable(err) ||
		k8serrors.IsInternalError(err) {
		return true
	}
	// Anything without an API status is assumed to be a network failure.
	var statusErr *k8serrors.StatusError
	return !ierr.As(err, &statusErr)
}

// classify tags orchestrator errors with the transient/permanent sentinel so
// upper layers can decide on cleanup policy.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if isTransient(err) {
		return ierr.WithError(err).
			WithHint("The orchestrator is temporarily unavailable").
			Mark(ierr.ErrOrchestratorTransient)
	}
	return ierr.WithError(err).
		WithHint("The orchestrator rejected the request").
		Mark(ierr.ErrOrchestratorPermanent)
}

func (c *client) Apply(ctx context.Context, obj runtime.Object) (ApplyAction, error) {
	var action ApplyAction
	err := c.withRetry(ctx, func() error {
		var err error
		action, err = c.applyOnce(ctx, obj)
		return err
	})
	return action, err
}

func (c *client) applyOnce(ctx context.Context, obj runtime.Object) (ApplyAction, error) {
	switch o := obj.(type) {
	case *corev1.Namespace:
		_, err := c.clientset.CoreV1().Namespaces().Get(ctx, o.Name, metav1.GetOptions{})
		if err == nil {
			return ApplyActionExisting, nil
		}
		if !k8serrors.IsNotFound(err) {
			return "", err
		}
		_, err = c.clientset.CoreV1().Namespaces().Create(ctx, o, metav1.CreateOptions{})
		return ApplyActionCreated, err

	case *corev1.PersistentVolumeClaim:
		_, err := c.clientset.CoreV1().PersistentVolumeClaims(o.Namespace).Get(ctx, o.Name, metav1.GetOptions{})
		if err == nil {
			// Claims are immutable once bound; leave in place.
			return ApplyActionExisting, nil
		}
		if !k8serrors.IsNotFound(err) {
			return "", err
		}
		_, err = c.clientset.CoreV1().PersistentVolumeClaims(o.Namespace).Create(ctx, o, metav1.CreateOptions{})
		return ApplyActionCreated, err

	case *corev1.ConfigMap:
		existing, err := c.clientset.CoreV1().ConfigMaps(o.Namespace).Get(ctx, o.Name, metav1.GetOptions{})
		if k8serrors.IsNotFound(err) {
			_, err = c.clientset.CoreV1().ConfigMaps(o.Namespace).Create(ctx, o, metav1.CreateOptions{})
			return ApplyActionCreated, err
		}
		if err != nil {
			return "", err
		}
		o.ResourceVersion = existing.ResourceVersion
		_, err = c.clientset.CoreV1().ConfigMaps(o.Namespace).Update(ctx, o, metav1.UpdateOptions{})
		return ApplyActionUpdated, err

	case *appsv1.Deployment:
		existing, err := c.clientset.AppsV1().Deployments(o.Namespace).Get(ctx, o.Name, metav1.GetOptions{})
		if k8serrors.IsNotFound(err) {
			_, err = c.clientset.AppsV1().Deployments(o.Namespace).Create(ctx, o, metav1.CreateOptions{})
			return ApplyActionCreated, err
		}
		if err != nil {
			return "", err
		}
		o.ResourceVersion = existing.ResourceVersion
		_, err = c.clientset.AppsV1().Deployments(o.Namespace).Update(ctx, o, metav1.UpdateOptions{})
		return ApplyActionUpdated, err

	case *corev1.Service:
		existing, err := c.clientset.CoreV1().Services(o.Namespace).Get(ctx, o.Name, metav1.GetOptions{})
		if k8serrors.IsNotFound(err) {
			_, err = c.clientset.CoreV1().Services(o.Namespace).Create(ctx, o, metav1.CreateOptions{})
			return ApplyActionCreated, err
		}
		if err != nil {
			return "", err
		}
		// ClusterIP is immutable; carry it over on replace.
		o.ResourceVersion = existing.ResourceVersion
		o.Spec.ClusterIP = existing.Spec.ClusterIP
		_, err = c.clientset.CoreV1().Services(o.Namespace).Update(ctx, o, metav1.UpdateOptions{})
		return ApplyActionUpdated, err

	case *networkingv1.Ingress:
		existing, err := c.clientset.NetworkingV1().Ingresses(o.Namespace).Get(ctx, o.Name, metav1.GetOptions{})
		if k8serrors.IsNotFound(err) {
			_, err = c.clientset.NetworkingV1().Ingresses(o.Namespace).Create(ctx, o, metav1.CreateOptions{})
			return ApplyActionCreated, err
		}
		if err != nil {
			return "", err
		}
		o.ResourceVersion = existing.ResourceVersion
		_, err = c.clientset.NetworkingV1().Ingresses(o.Namespace).Update(ctx, o, metav1.UpdateOptions{})
		return ApplyActionUpdated, err

	default:
		return "", ierr.NewErrorf("unsupported manifest type %T", obj).
			Mark(ierr.ErrOrchestratorPermanent)
	}
}

func (c *client) Delete(ctx context.Context, kind Kind, name, namespace string) (bool, error) {
	found := true
	err := c.withRetry(ctx, func() error {
		var err error
		switch kind {
		case KindNamespace:
			err = c.clientset.CoreV1().Namespaces().Delete(ctx, name, metav1.DeleteOptions{})
		case KindConfigMap:
			err = c.clientset.CoreV1().ConfigMaps(namespace).Delete(ctx, name, metav1.DeleteOptions{})
		case KindPVC:
			err = c.clientset.CoreV1().PersistentVolumeClaims(namespace).Delete(ctx, name, metav1.DeleteOptions{})
		case KindDeployment:
			err = c.clientset.AppsV1().Deployments(namespace).Delete(ctx, name, metav1.DeleteOptions{})
		case KindService:
			err = c.clientset.CoreV1().Services(namespace).Delete(ctx, name, metav1.DeleteOptions{})
		case KindIngress:
			err = c.clientset.NetworkingV1().Ingresses(namespace).Delete(ctx, name, metav1.DeleteOptions{})
		default:
			return ierr.NewErrorf("unsupported kind %s", kind).
				Mark(ierr.ErrOrchestratorPermanent)
		}
		if k8serrors.IsNotFound(err) {
			found = false
			return nil
		}
		return err
	})
	return found, err
}

func (c *client) WaitReady(ctx context.Context, deploymentName, namespace string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(readyPollInterval)
	defer ticker.Stop()

	for {
		dep, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, deploymentName, metav1.GetOptions{})
		if err == nil {
			for _, cond := range dep.Status.Conditions {
				if cond.Type == appsv1.DeploymentAvailable && cond.Status == corev1.ConditionTrue {
					return nil
				}
			}
		} else if !isTransient(err) {
			return classify(err)
		}

		if time.Now().After(deadline) {
			return ierr.NewErrorf("deployment %s/%s not ready after %s", namespace, deploymentName, timeout).
				WithHint("The workload did not become ready in time").
				Mark(ierr.ErrReadyTimeout)
		}

		select {
		case <-ctx.Done():
			return ierr.WithError(ctx.Err()).
				Mark(ierr.ErrReadyTimeout)
		case <-ticker.C:
		}
	}
}

func (c *client) ListPodsFor(ctx context.Context, deploymentName, namespace string) ([]corev1.Pod, error) {
	var pods []corev1.Pod
	err := c.withRetry(ctx, func() error {
		dep, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, deploymentName, metav1.GetOptions{})
		if err != nil {
			return err
		}
		selector := labels.Set(dep.Spec.Selector.MatchLabels).AsSelector().String()
		list, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{LabelSelector: selector})
		if err != nil {
			return err
		}
		pods = list.Items
		return nil
	})
	return pods, err
}

func (c *client) NewestPodFor(ctx context.Context, deploymentName, namespace string) (string, error) {
	pods, err := c.ListPodsFor(ctx, deploymentName, namespace)
	if err != nil {
		return "", err
	}
	if len(pods) == 0 {
		return "", nil
	}
	sort.Slice(pods, func(i, j int) bool {
		return pods[i].CreationTimestamp.After(pods[j].CreationTimestamp.Time)
	})
	return pods[0].Name, nil
}

func (c *client) StreamLogs(ctx context.Context, namespace, pod, container string, sink io.Writer) error {
	req := c.clientset.CoreV1().Pods(namespace).GetLogs(pod, &corev1.PodLogOptions{
		Container: container,
		Follow:    true,
	})
	stream, err := req.Stream(ctx)
	if err != nil {
		return classify(err)
	}
	defer stream.Close()

	_, err = io.Copy(sink, stream)
	if err != nil && ctx.Err() == nil {
		return ierr.WithError(err).
			WithMessage("log stream interrupted").
			Mark(ierr.ErrOrchestratorTransient)
	}
	return nil
}

func (c *client) ScaleDeployment(ctx context.Context, name, namespace string, replicas int32) error {
	return c.withRetry(ctx, func() error {
		dep, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		dep.Spec.Replicas = &replicas
		_, err = c.clientset.AppsV1().Deployments(namespace).Update(ctx, dep, metav1.UpdateOptions{})
		return err
	})
}

func (c *client) RolloutRestart(ctx context.Context, name, namespace string) error {
	return c.withRetry(ctx, func() error {
		dep, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
		if err != nil {
			return err
		}
		if dep.Spec.Template.Annotations == nil {
			dep.Spec.Template.Annotations = map[string]string{}
		}
		dep.Spec.Template.Annotations[restartedAtAnnotation] = time.Now().UTC().Format(time.RFC3339)
		_, err = c.clientset.AppsV1().Deployments(namespace).Update(ctx, dep, metav1.UpdateOptions{})
		return err
	})
}

const restartedAtAnnotation = "servora.io/restarted-at"

func (c *client) IsAvailable(ctx context.Context) bool {
	_, err := c.clientset.Discovery().ServerVersion()
	return err == nil
}
