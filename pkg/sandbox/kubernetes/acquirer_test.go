package kubernetes

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"
)

// newFakeClient returns a controller-runtime fake client that knows the
// sandbox and claim kinds.
func newFakeClient(t *testing.T) client.Client {
	t.Helper()
	scheme, err := NewScheme()
	if err != nil {
		t.Fatalf("NewScheme: %v", err)
	}
	return fake.NewClientBuilder().
		WithScheme(scheme).
		WithStatusSubresource(&sandboxv1alpha1.Sandbox{}).
		Build()
}

// fixedNames makes claim names predictable for the duration of the test:
// prefix-1, prefix-2 and so on.
func fixedNames(t *testing.T, prefix string) {
	t.Helper()
	var n atomic.Int32
	orig := generateClaimNameFn
	generateClaimNameFn = func() string {
		return fmt.Sprintf("%s-%d", prefix, n.Add(1))
	}
	t.Cleanup(func() { generateClaimNameFn = orig })
}

// markReady plays the controller's part: it creates the Sandbox backing a
// claim and flips its Ready condition.
func markReady(t *testing.T, c client.Client, name, namespace, fqdn string) {
	t.Helper()
	ctx := context.Background()
	sb := &sandboxv1alpha1.Sandbox{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: namespace},
	}
	if err := c.Create(ctx, sb); err != nil {
		t.Errorf("creating sandbox %s: %v", name, err)
		return
	}
	sb.Status.ServiceFQDN = fqdn
	sb.Status.Conditions = []metav1.Condition{{
		Type:               string(sandboxv1alpha1.SandboxConditionReady),
		Status:             metav1.ConditionTrue,
		LastTransitionTime: metav1.Now(),
		Reason:             "Ready",
	}}
	if err := c.Status().Update(ctx, sb); err != nil {
		t.Errorf("marking sandbox %s ready: %v", name, err)
	}
}

func claimExists(c client.Client, name, namespace string) bool {
	var claim extensionsv1alpha1.SandboxClaim
	return c.Get(context.Background(), client.ObjectKey{Name: name, Namespace: namespace}, &claim) == nil
}

func TestClaimAcquirerReady(t *testing.T) {
	tests := []struct {
		name      string
		cfg       Config
		fqdn      string
		wantURL   string
		wantLabel map[string]string
	}{
		{
			name:    "defaults",
			cfg:     Config{Template: "js-runtime"},
			fqdn:    "sb-1.default.svc.cluster.local",
			wantURL: "http://sb-1.default.svc.cluster.local:8080",
			wantLabel: map[string]string{
				"app.kubernetes.io/managed-by": "tabula",
			},
		},
		{
			name: "custom port namespace and labels",
			cfg: Config{
				Template:  "js-runtime",
				Namespace: "analytics",
				Port:      9090,
				Labels:    map[string]string{"team": "finance"},
			},
			fqdn:    "sb.analytics.svc",
			wantURL: "http://sb.analytics.svc:9090",
			wantLabel: map[string]string{
				"app.kubernetes.io/managed-by": "tabula",
				"team":                         "finance",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeClient(t)
			fixedNames(t, "ready")
			tt.cfg.Timeout = 5 * time.Second
			tt.cfg.PollInterval = 20 * time.Millisecond
			acq := NewClaimAcquirer(c, tt.cfg)
			ns := acq.cfg.Namespace

			go func() {
				time.Sleep(80 * time.Millisecond)
				markReady(t, c, "ready-1", ns, tt.fqdn)
			}()

			url, release, err := acq.Acquire(context.Background())
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			if url != tt.wantURL {
				t.Errorf("url = %q, want %q", url, tt.wantURL)
			}

			var claim extensionsv1alpha1.SandboxClaim
			if err := c.Get(context.Background(), client.ObjectKey{Name: "ready-1", Namespace: ns}, &claim); err != nil {
				t.Fatalf("claim not created: %v", err)
			}
			if claim.Spec.TemplateRef.Name != tt.cfg.Template {
				t.Errorf("template = %q, want %q", claim.Spec.TemplateRef.Name, tt.cfg.Template)
			}
			for k, v := range tt.wantLabel {
				if claim.Labels[k] != v {
					t.Errorf("label %s = %q, want %q", k, claim.Labels[k], v)
				}
			}

			release()
			if claimExists(c, "ready-1", ns) {
				t.Error("claim survived release")
			}
		})
	}
}

func TestClaimAcquirerCleansUpOnFailure(t *testing.T) {
	tests := []struct {
		name    string
		timeout time.Duration
		ctx     func() (context.Context, context.CancelFunc)
	}{
		{
			name:    "sandbox never ready",
			timeout: 300 * time.Millisecond,
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithCancel(context.Background())
			},
		},
		{
			name:    "caller gives up",
			timeout: 30 * time.Second,
			ctx: func() (context.Context, context.CancelFunc) {
				return context.WithTimeout(context.Background(), 150*time.Millisecond)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newFakeClient(t)
			fixedNames(t, "fail")
			acq := NewClaimAcquirer(c, Config{
				Template:     "js-runtime",
				Timeout:      tt.timeout,
				PollInterval: 20 * time.Millisecond,
			})

			ctx, cancel := tt.ctx()
			defer cancel()

			if _, _, err := acq.Acquire(ctx); err == nil {
				t.Fatal("expected an error")
			}
			if claimExists(c, "fail-1", "default") {
				t.Error("claim left behind after failed acquisition")
			}
		})
	}
}

func TestClaimAcquirerConcurrent(t *testing.T) {
	c := newFakeClient(t)
	fixedNames(t, "conc")
	acq := NewClaimAcquirer(c, Config{
		Template:     "js-runtime",
		Timeout:      5 * time.Second,
		PollInterval: 20 * time.Millisecond,
	})

	const n = 4
	go func() {
		time.Sleep(100 * time.Millisecond)
		for i := 1; i <= n; i++ {
			markReady(t, c, fmt.Sprintf("conc-%d", i), "default", fmt.Sprintf("sb-%d.svc", i))
		}
	}()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = map[string]bool{}
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			url, release, err := acq.Acquire(context.Background())
			if err != nil {
				t.Errorf("Acquire: %v", err)
				return
			}
			defer release()
			mu.Lock()
			seen[url] = true
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(seen) != n {
		t.Errorf("got %d distinct sandbox URLs, want %d: %v", len(seen), n, seen)
	}
}

func TestGenerateClaimName(t *testing.T) {
	a, b := generateClaimNameFn(), generateClaimNameFn()
	if a == b {
		t.Errorf("generated names collide: %q", a)
	}
	if !strings.HasPrefix(a, "tabula-sb-") || len(a) != len("tabula-sb-")+12 {
		t.Errorf("unexpected name %q", a)
	}
}

func TestIsReady(t *testing.T) {
	ready := string(sandboxv1alpha1.SandboxConditionReady)
	tests := []struct {
		name       string
		conditions []metav1.Condition
		want       bool
	}{
		{"no conditions", nil, false},
		{"ready", []metav1.Condition{{Type: ready, Status: metav1.ConditionTrue}}, true},
		{"not ready", []metav1.Condition{{Type: ready, Status: metav1.ConditionFalse}}, false},
		{"unrelated condition", []metav1.Condition{{Type: "Available", Status: metav1.ConditionTrue}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sb := &sandboxv1alpha1.Sandbox{
				Status: sandboxv1alpha1.SandboxStatus{Conditions: tt.conditions},
			}
			if got := isReady(sb); got != tt.want {
				t.Errorf("isReady() = %v, want %v", got, tt.want)
			}
		})
	}
}
