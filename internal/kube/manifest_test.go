package kube

import (
	"strings"
	"testing"
	"time"

	"github.com/servorahq/servora/internal/domain/catalog"
	"github.com/servorahq/servora/internal/domain/instance"
	"github.com/servorahq/servora/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
)

func TestSanitizeName(t *testing.T) {
	assert.Equal(t, "postgres", SanitizeName("Postgres"))
	assert.Equal(t, "my-app-2", SanitizeName("My App_2"))
	assert.Equal(t, "abc", SanitizeName("--abc--"))
	assert.Equal(t, "a-b", SanitizeName("a.b"))

	long := strings.Repeat("x", 100)
	sanitized := SanitizeName(long)
	assert.Len(t, sanitized, 63)

	// Truncation never leaves a trailing dash.
	edge := strings.Repeat("x", 62) + "-tail"
	assert.False(t, strings.HasSuffix(SanitizeName(edge), "-"))
}

func TestNamespaceForUser(t *testing.T) {
	assert.Equal(t, "user-user-01h2xcejqtf2nbrexx3vqjhp41", NamespaceForUser("user_01H2XCEJQTF2NBREXX3VQJHP41"))
}

func TestBuildSubdomain(t *testing.T) {
	now := time.Date(2026, time.August, 25, 12, 0, 0, 0, time.UTC)

	sub := BuildSubdomain("postgres", "user_01H2XCEJQTF2NBREXX3VQJHP41", now)
	assert.True(t, strings.HasPrefix(sub, "postgres-qjhp41-"))
	assert.Equal(t, sub, SanitizeName(sub))

	// Different creation times yield different names for the same user+slug.
	other := BuildSubdomain("postgres", "user_01H2XCEJQTF2NBREXX3VQJHP41", now.Add(time.Second))
	assert.NotEqual(t, sub, other)

	// Short user IDs are used whole.
	assert.True(t, strings.HasPrefix(BuildSubdomain("redis", "u1", now), "redis-u1-"))
}

func TestNamesForIsDeterministic(t *testing.T) {
	names := NamesFor("user_abc123", "My Postgres")
	assert.Equal(t, "user-user-abc123", names.Namespace)
	assert.Equal(t, "my-postgres", names.Deployment)
	assert.Equal(t, "my-postgres-svc", names.Service)
	assert.Equal(t, "my-postgres-ingress", names.Ingress)
	assert.Equal(t, "my-postgres-config", names.ConfigMap)
	assert.Equal(t, "my-postgres-pvc", names.PVC)

	assert.Equal(t, names, NamesFor("user_abc123", "My Postgres"))
}

func testFixtures() (*catalog.Service, *catalog.Plan, *instance.Instance) {
	svc := &catalog.Service{
		ID:            "svc_postgres",
		Slug:          "postgres",
		DockerImage:   "postgres:16",
		ContainerPort: 5432,
		EnvTemplate:   types.Metadata{"LOG_LEVEL": "info", "PGDATA": "/var/lib/postgresql/data"},
		MountPath:     "/var/lib/postgresql",
	}
	plan := &catalog.Plan{
		ID:        "plan_basic",
		ServiceID: svc.ID,
		PlanType:  types.PlanTypeBasic,
		CPUMilli:  500,
		MemoryMB:  512,
		StorageGB: 10,
	}
	names := NamesFor("user_abc123", "db-one")
	inst := &instance.Instance{
		ID:             "inst_01",
		Name:           "db-one",
		Namespace:      names.Namespace,
		DeploymentName: names.Deployment,
		ServiceName:    names.Service,
		IngressName:    names.Ingress,
		ConfigMapName:  names.ConfigMap,
		PVCName:        names.PVC,
		Subdomain:      "postgres-abc123-xyz.apps.servora.test",
		PublicURL:      "https://postgres-abc123-xyz.apps.servora.test",
		EnvOverrides:   types.Metadata{"LOG_LEVEL": "debug"},
	}
	return svc, plan, inst
}

func TestEnvForOverlayPrecedence(t *testing.T) {
	svc, _, inst := testFixtures()

	env := EnvFor(svc, inst)

	// Instance overrides beat the template; fixed instance keys beat both.
	assert.Equal(t, "debug", env["LOG_LEVEL"])
	assert.Equal(t, "/var/lib/postgresql/data", env["PGDATA"])
	assert.Equal(t, inst.ID, env["INSTANCE_ID"])
	assert.Equal(t, inst.Subdomain, env["SUBDOMAIN"])
	assert.Equal(t, inst.PublicURL, env["PUBLIC_URL"])

	// The inputs are not mutated.
	assert.Equal(t, "info", svc.EnvTemplate["LOG_LEVEL"])
}

func TestGenerateManifestsShape(t *testing.T) {
	svc, plan, inst := testFixtures()

	objs := GenerateManifests(svc, plan, inst)
	require.Len(t, objs, 6)

	ns, ok := objs[0].(*corev1.Namespace)
	require.True(t, ok)
	assert.Equal(t, inst.Namespace, ns.Name)
	assert.Equal(t, "true", ns.Labels[ManagedLabel])

	cm, ok := objs[1].(*corev1.ConfigMap)
	require.True(t, ok)
	assert.Equal(t, inst.ConfigMapName, cm.Name)
	assert.Equal(t, "debug", cm.Data["LOG_LEVEL"])

	pvc, ok := objs[2].(*corev1.PersistentVolumeClaim)
	require.True(t, ok)
	assert.Equal(t, inst.PVCName, pvc.Name)
	storage := pvc.Spec.Resources.Requests[corev1.ResourceStorage]
	assert.Equal(t, "10Gi", storage.String())

	dep, ok := objs[3].(*appsv1.Deployment)
	require.True(t, ok)
	assert.Equal(t, inst.DeploymentName, dep.Name)
	require.Len(t, dep.Spec.Template.Spec.Containers, 1)
	container := dep.Spec.Template.Spec.Containers[0]
	assert.Equal(t, "postgres", container.Name)
	assert.Equal(t, "postgres:16", container.Image)
	cpu := container.Resources.Limits[corev1.ResourceCPU]
	assert.Equal(t, "500m", cpu.String())
	require.Len(t, container.VolumeMounts, 1)
	assert.Equal(t, "/var/lib/postgresql", container.VolumeMounts[0].MountPath)

	kubeSvc, ok := objs[4].(*corev1.Service)
	require.True(t, ok)
	assert.Equal(t, inst.ServiceName, kubeSvc.Name)
	assert.Equal(t, int32(5432), kubeSvc.Spec.Ports[0].TargetPort.IntVal)

	ing, ok := objs[5].(*networkingv1.Ingress)
	require.True(t, ok)
	assert.Equal(t, inst.IngressName, ing.Name)
	require.Len(t, ing.Spec.Rules, 1)
	assert.Equal(t, inst.Subdomain, ing.Spec.Rules[0].Host)
	assert.Empty(t, ing.Spec.TLS)
}

func TestGenerateManifestsSkipsPVCWithoutStorage(t *testing.T) {
	svc, plan, inst := testFixtures()
	plan.StorageGB = 0

	objs := GenerateManifests(svc, plan, inst)
	require.Len(t, objs, 5)
	for _, obj := range objs {
		_, isPVC := obj.(*corev1.PersistentVolumeClaim)
		assert.False(t, isPVC)
	}

	dep := objs[2].(*appsv1.Deployment)
	assert.Empty(t, dep.Spec.Template.Spec.Volumes)
	assert.Empty(t, dep.Spec.Template.Spec.Containers[0].VolumeMounts)
}

func TestIngressTLSAndCustomDomain(t *testing.T) {
	svc, plan, inst := testFixtures()
	inst.SSLEnabled = true
	inst.CustomDomain = "db.example.com"

	objs := GenerateManifests(svc, plan, inst)
	ing := objs[5].(*networkingv1.Ingress)

	assert.Equal(t, "db.example.com", ing.Spec.Rules[0].Host)
	require.Len(t, ing.Spec.TLS, 1)
	assert.Equal(t, []string{"db.example.com"}, ing.Spec.TLS[0].Hosts)
	assert.Equal(t, inst.DeploymentName+"-tls", ing.Spec.TLS[0].SecretName)
}

func TestDeploymentEnvIsSorted(t *testing.T) {
	svc, plan, inst := testFixtures()

	dep := GenerateManifests(svc, plan, inst)[3].(*appsv1.Deployment)
	env := dep.Spec.Template.Spec.Containers[0].Env

	for i := 0; i < len(env)-1; i++ {
		assert.Less(t, env[i].Name, env[i+1].Name)
	}
}
