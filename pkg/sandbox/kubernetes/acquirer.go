// Package kubernetes acquires remote sandbox servers through agent-sandbox
// SandboxClaim CRDs, one claim per execution.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/rhuss/tabula/pkg/debug"
	"github.com/rhuss/tabula/pkg/sandbox"
)

// Ensure ClaimAcquirer implements sandbox.Acquirer.
var _ sandbox.Acquirer = (*ClaimAcquirer)(nil)

// Config configures a ClaimAcquirer.
type Config struct {
	// Template is the SandboxTemplate the claims reference.
	Template string

	Namespace string

	// Timeout bounds the wait for a claimed Sandbox to become ready.
	Timeout time.Duration

	// Port is the sandbox server port. Zero means 8080.
	Port int

	// PollInterval is how often the Sandbox status is checked. Zero means 500ms.
	PollInterval time.Duration

	// Labels are added to every claim.
	Labels map[string]string
}

// ClaimAcquirer creates a SandboxClaim per Acquire, waits for the Sandbox
// the controller binds to it, and returns the Sandbox's serviceFQDN as the
// sandbox URL. Releasing deletes the claim.
type ClaimAcquirer struct {
	client client.Client
	cfg    Config
}

// NewClaimAcquirer creates a ClaimAcquirer.
func NewClaimAcquirer(c client.Client, cfg Config) *ClaimAcquirer {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	return &ClaimAcquirer{client: c, cfg: cfg}
}

// NewScheme returns a runtime.Scheme with the agent-sandbox types registered.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := sandboxv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register sandbox types: %w", err)
	}
	if err := extensionsv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register extensions types: %w", err)
	}
	return scheme, nil
}

// Acquire claims a sandbox and blocks until it is serving. The returned
// release func deletes the claim; on error the claim is already gone.
func (a *ClaimAcquirer) Acquire(ctx context.Context) (string, func(), error) {
	claim := a.newClaim(generateClaimNameFn())
	name := claim.Name

	start := time.Now()
	if err := a.client.Create(ctx, claim); err != nil {
		return "", nil, fmt.Errorf("create SandboxClaim %q: %w", name, err)
	}
	debug.Log("sandbox", "claim created", "name", name, "namespace", a.cfg.Namespace, "template", a.cfg.Template)

	fqdn, err := a.await(ctx, name)
	if err != nil {
		a.deleteClaim(context.Background(), name)
		return "", nil, err
	}

	url := fmt.Sprintf("http://%s:%d", fqdn, a.cfg.Port)
	slog.Info("sandbox acquired", "claim", name, "url", url, "wait_ms", time.Since(start).Milliseconds())
	return url, func() { a.deleteClaim(context.Background(), name) }, nil
}

func (a *ClaimAcquirer) newClaim(name string) *extensionsv1alpha1.SandboxClaim {
	labels := make(map[string]string, len(a.cfg.Labels)+1)
	for k, v := range a.cfg.Labels {
		labels[k] = v
	}
	labels["app.kubernetes.io/managed-by"] = "tabula"

	return &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: a.cfg.Namespace, Labels: labels},
		Spec: extensionsv1alpha1.SandboxClaimSpec{
			TemplateRef: extensionsv1alpha1.SandboxTemplateRef{Name: a.cfg.Template},
		},
	}
}

// await polls the Sandbox bound to the claim until it reports Ready with
// a service FQDN, the configured timeout passes, or ctx ends.
func (a *ClaimAcquirer) await(ctx context.Context, name string) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	key := types.NamespacedName{Name: name, Namespace: a.cfg.Namespace}
	for {
		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return "", fmt.Errorf("waiting for Sandbox %q: %w", name, ctx.Err())
			}
			return "", fmt.Errorf("sandbox %q not ready after %s", name, a.cfg.Timeout)
		case <-ticker.C:
		}

		var sb sandboxv1alpha1.Sandbox
		if err := a.client.Get(waitCtx, key, &sb); err != nil {
			debug.Log("sandbox", "sandbox not bound yet", "name", name, "error", err.Error())
			continue
		}
		if isReady(&sb) && sb.Status.ServiceFQDN != "" {
			return sb.Status.ServiceFQDN, nil
		}
	}
}

func isReady(sb *sandboxv1alpha1.Sandbox) bool {
	for _, c := range sb.Status.Conditions {
		if c.Type == string(sandboxv1alpha1.SandboxConditionReady) && c.Status == metav1.ConditionTrue {
			return true
		}
	}
	return false
}

// deleteClaim logs rather than returns errors; it runs from release paths.
func (a *ClaimAcquirer) deleteClaim(ctx context.Context, name string) {
	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: a.cfg.Namespace,
		},
	}
	if err := a.client.Delete(ctx, claim); err != nil {
		slog.Warn("failed to delete SandboxClaim", "name", name, "namespace", a.cfg.Namespace, "error", err.Error())
		return
	}
	debug.Log("sandbox", "deleted SandboxClaim", "name", name, "namespace", a.cfg.Namespace)
}

// generateClaimNameFn is replaceable in tests.
var generateClaimNameFn = func() string {
	return "tabula-sb-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
