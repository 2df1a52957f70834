package kube

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/servorahq/servora/internal/domain/catalog"
	"github.com/servorahq/servora/internal/domain/instance"
	"github.com/servorahq/servora/internal/types"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"
)

const (
	// ManagedLabel marks every resource owned by the control plane.
	ManagedLabel = "servora.io/managed"
	appLabel     = "app"
	instLabel    = "instance"
)

var nonDNSChars = regexp.MustCompile(`[^a-z0-9-]+`)

// SanitizeName lowercases the input, collapses anything outside [a-z0-9-] to a
// dash and trims to the 63-character DNS label limit.
func SanitizeName(name string) string {
	s := strings.ToLower(name)
	s = nonDNSChars.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 63 {
		s = strings.Trim(s[:63], "-")
	}
	return s
}

// NamespaceForUser is the per-user namespace every instance of the user lives
// in.
func NamespaceForUser(userID string) string {
	return SanitizeName("user-" + userID)
}

// BuildSubdomain derives the public subdomain for a new instance:
// <slug>-<last6(userID)>-<base36(ts)>.
func BuildSubdomain(slug, userID string, now time.Time) string {
	suffix := userID
	if len(suffix) > 6 {
		suffix = suffix[len(suffix)-6:]
	}
	ts := strconv.FormatInt(now.UnixMilli(), 36)
	return SanitizeName(fmt.Sprintf("%s-%s-%s", slug, suffix, ts))
}

// ResourceNames are the canonical cluster resource names for an instance.
type ResourceNames struct {
	Namespace  string
	Deployment string
	Service    string
	Ingress    string
	ConfigMap  string
	PVC        string
}

// NamesFor derives every resource name from the instance name. The derivation
// is pure so retries always target the same resources.
func NamesFor(userID, instanceName string) ResourceNames {
	base := SanitizeName(instanceName)
	return ResourceNames{
		Namespace:  NamespaceForUser(userID),
		Deployment: base,
		Service:    base + "-svc",
		Ingress:    base + "-ingress",
		ConfigMap:  base + "-config",
		PVC:        base + "-pvc",
	}
}

// GenerateManifests is a pure function from (service, plan, instance) to the
// ordered manifest set. Apply order matters: namespace first, workload before
// the objects that select it is not required, but deletion uses the reverse.
func GenerateManifests(svc *catalog.Service, plan *catalog.Plan, inst *instance.Instance) []runtime.Object {
	names := ResourceNames{
		Namespace:  inst.Namespace,
		Deployment: inst.DeploymentName,
		Service:    inst.ServiceName,
		Ingress:    inst.IngressName,
		ConfigMap:  inst.ConfigMapName,
		PVC:        inst.PVCName,
	}
	labels := labelsFor(svc, inst)

	manifests := []runtime.Object{
		namespaceManifest(names, labels),
		configMapManifest(names, labels, svc, inst),
	}
	if plan.StorageGB > 0 {
		manifests = append(manifests, pvcManifest(names, labels, plan))
	}
	manifests = append(manifests,
		deploymentManifest(names, labels, svc, plan, inst),
		serviceManifest(names, labels, svc),
		ingressManifest(names, labels, inst),
	)
	return manifests
}

func labelsFor(svc *catalog.Service, inst *instance.Instance) map[string]string {
	return map[string]string{
		appLabel:     SanitizeName(svc.Slug),
		instLabel:    SanitizeName(inst.ID),
		ManagedLabel: "true",
	}
}

func namespaceManifest(names ResourceNames, labels map[string]string) *corev1.Namespace {
	return &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name:   names.Namespace,
			Labels: map[string]string{ManagedLabel: "true"},
		},
	}
}

// EnvFor overlays the instance variables and the fixed instance keys on the
// service environment template.
func EnvFor(svc *catalog.Service, inst *instance.Instance) types.Metadata {
	env := svc.EnvTemplate.Merge(inst.EnvOverrides)
	return env.Merge(types.Metadata{
		"INSTANCE_ID":   inst.ID,
		"INSTANCE_NAME": inst.Name,
		"SUBDOMAIN":     inst.Subdomain,
		"PUBLIC_URL":    inst.PublicURL,
	})
}

func configMapManifest(names ResourceNames, labels map[string]string, svc *catalog.Service, inst *instance.Instance) *corev1.ConfigMap {
	return &corev1.ConfigMap{
		ObjectMeta: metav1.ObjectMeta{
			Name:      names.ConfigMap,
			Namespace: names.Namespace,
			Labels:    labels,
		},
		Data: EnvFor(svc, inst),
	}
}

func pvcManifest(names ResourceNames, labels map[string]string, plan *catalog.Plan) *corev1.PersistentVolumeClaim {
	return &corev1.PersistentVolumeClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      names.PVC,
			Namespace: names.Namespace,
			Labels:    labels,
		},
		Spec: corev1.PersistentVolumeClaimSpec{
			AccessModes: []corev1.PersistentVolumeAccessMode{corev1.ReadWriteOnce},
			Resources: corev1.VolumeResourceRequirements{
				Requests: corev1.ResourceList{
					corev1.ResourceStorage: resource.MustParse(fmt.Sprintf("%dGi", plan.StorageGB)),
				},
			},
		},
	}
}

func deploymentManifest(names ResourceNames, labels map[string]string, svc *catalog.Service, plan *catalog.Plan, inst *instance.Instance) *appsv1.Deployment {
	replicas := int32(1)
	resources := corev1.ResourceList{
		corev1.ResourceCPU:    resource.MustParse(fmt.Sprintf("%dm", plan.CPUMilli)),
		corev1.ResourceMemory: resource.MustParse(fmt.Sprintf("%dMi", plan.MemoryMB)),
	}

	env := EnvFor(svc, inst)
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	envVars := make([]corev1.EnvVar, 0, len(keys))
	for _, k := range keys {
		envVars = append(envVars, corev1.EnvVar{Name: k, Value: env[k]})
	}

	probe := &corev1.Probe{
		ProbeHandler: corev1.ProbeHandler{
			TCPSocket: &corev1.TCPSocketAction{
				Port: intstr.FromInt(svc.ContainerPort),
			},
		},
		InitialDelaySeconds: 15,
		PeriodSeconds:       20,
	}

	container := corev1.Container{
		Name:  SanitizeName(svc.Slug),
		Image: svc.DockerImage,
		Ports: []corev1.ContainerPort{
			{ContainerPort: int32(svc.ContainerPort)},
		},
		Env: envVars,
		Resources: corev1.ResourceRequirements{
			Requests: resources,
			Limits:   resources,
		},
		LivenessProbe:  probe,
		ReadinessProbe: probe,
	}

	spec := corev1.PodSpec{
		Containers: []corev1.Container{container},
	}

	if plan.StorageGB > 0 {
		mountPath := svc.MountPath
		if mountPath == "" {
			mountPath = "/data"
		}
		spec.Volumes = []corev1.Volume{
			{
				Name: "data",
				VolumeSource: corev1.VolumeSource{
					PersistentVolumeClaim: &corev1.PersistentVolumeClaimVolumeSource{
						ClaimName: names.PVC,
					},
				},
			},
		}
		spec.Containers[0].VolumeMounts = []corev1.VolumeMount{
			{Name: "data", MountPath: mountPath},
		}
	}

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      names.Deployment,
			Namespace: names.Namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{
				MatchLabels: map[string]string{
					appLabel:  labels[appLabel],
					instLabel: labels[instLabel],
				},
			},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec:       spec,
			},
		},
	}
}

func serviceManifest(names ResourceNames, labels map[string]string, svc *catalog.Service) *corev1.Service {
	return &corev1.Service{
		ObjectMeta: metav1.ObjectMeta{
			Name:      names.Service,
			Namespace: names.Namespace,
			Labels:    labels,
		},
		Spec: corev1.ServiceSpec{
			Selector: map[string]string{
				appLabel:  labels[appLabel],
				instLabel: labels[instLabel],
			},
			Ports: []corev1.ServicePort{
				{
					Port:       80,
					TargetPort: intstr.FromInt(svc.ContainerPort),
				},
			},
		},
	}
}

func ingressManifest(names ResourceNames, labels map[string]string, inst *instance.Instance) *networkingv1.Ingress {
	host := inst.Subdomain
	if inst.CustomDomain != "" {
		host = inst.CustomDomain
	}
	pathType := networkingv1.PathTypePrefix

	ing := &networkingv1.Ingress{
		ObjectMeta: metav1.ObjectMeta{
			Name:      names.Ingress,
			Namespace: names.Namespace,
			Labels:    labels,
		},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{
				{
					Host: host,
					IngressRuleValue: networkingv1.IngressRuleValue{
						HTTP: &networkingv1.HTTPIngressRuleValue{
							Paths: []networkingv1.HTTPIngressPath{
								{
									Path:     "/",
									PathType: &pathType,
									Backend: networkingv1.IngressBackend{
										Service: &networkingv1.IngressServiceBackend{
											Name: names.Service,
											Port: networkingv1.ServiceBackendPort{Number: 80},
										},
									},
								},
							},
						},
					},
				},
			},
		},
	}

	if inst.SSLEnabled {
		ing.Spec.TLS = []networkingv1.IngressTLS{
			{
				Hosts:      []string{host},
				SecretName: names.Deployment + "-tls",
			},
		}
	}

	return ing
}
