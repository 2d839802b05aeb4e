package pending

import (
	"context"
	"crypto/subtle"
	"fmt"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"

	v1alpha1 "swipify/pkg/apis/swipify.io/v1alpha1"
	"swipify/pkg/validation"
)

const (
	managedByLabel = "app.kubernetes.io/managed-by"
	managedBy      = "swipify"
)

// KubernetesStore keeps pending logins as PendingLogin custom resources so
// that every replica in a cluster sees them without extra infrastructure.
type KubernetesStore struct {
	client    dynamic.Interface
	namespace string
	now       func() time.Time
}

var _ Store = (*KubernetesStore)(nil)

// NewKubernetesStore creates a store backed by the given dynamic client.
func NewKubernetesStore(client dynamic.Interface, namespace string) (*KubernetesStore, error) {
	if err := validation.ValidateResourceName(namespace); err != nil {
		return nil, fmt.Errorf("invalid namespace: %w", err)
	}
	return &KubernetesStore{client: client, namespace: namespace, now: time.Now}, nil
}

// NewKubernetesStoreForConfig builds the dynamic client from a REST config.
func NewKubernetesStoreForConfig(config *rest.Config, namespace string) (*KubernetesStore, error) {
	client, err := dynamic.NewForConfig(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	return NewKubernetesStore(client, namespace)
}

func (s *KubernetesStore) resource() dynamic.ResourceInterface {
	return s.client.Resource(v1alpha1.PendingLoginsResource).Namespace(s.namespace)
}

func objectName(state string) string {
	return validation.ResourceNameForKey("login", state)
}

func (s *KubernetesStore) Put(ctx context.Context, p *PendingLogin) error {
	if err := validate(p); err != nil {
		return err
	}

	obj := &v1alpha1.PendingLogin{
		TypeMeta: metav1.TypeMeta{
			APIVersion: v1alpha1.SchemeGroupVersion.String(),
			Kind:       v1alpha1.Kind,
		},
		ObjectMeta: metav1.ObjectMeta{
			Name:      objectName(p.State),
			Namespace: s.namespace,
			Labels: map[string]string{
				managedByLabel: managedBy,
			},
		},
		Spec: v1alpha1.PendingLoginSpec{
			State:        p.State,
			CodeVerifier: p.CodeVerifier,
			Provider:     p.Provider,
			ReturnTo:     p.ReturnTo,
			CreatedAt:    metav1.NewTime(p.CreatedAt),
			ExpiresAt:    metav1.NewTime(p.ExpiresAt),
		},
	}

	unstructuredMap, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		return fmt.Errorf("failed to convert to unstructured: %w", err)
	}

	_, err = s.resource().Create(ctx, &unstructured.Unstructured{Object: unstructuredMap}, metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return ErrExists
	}
	if err != nil {
		return fmt.Errorf("failed to create PendingLogin: %w", err)
	}
	return nil
}

// Take reads the object and deletes it with UID and resourceVersion
// preconditions. A concurrent taker that loses the race sees a conflict or
// not-found from the API server and gets ErrNotFound.
func (s *KubernetesStore) Take(ctx context.Context, state string) (*PendingLogin, error) {
	name := objectName(state)
	result, err := s.resource().Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get PendingLogin: %w", err)
	}

	obj, err := fromUnstructured(result)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(obj.Spec.State), []byte(state)) != 1 {
		return nil, ErrNotFound
	}

	var pre metav1.Preconditions
	if uid := obj.GetUID(); uid != "" {
		pre.UID = &uid
	}
	if rv := obj.GetResourceVersion(); rv != "" {
		pre.ResourceVersion = &rv
	}
	err = s.resource().Delete(ctx, name, metav1.DeleteOptions{Preconditions: &pre})
	if apierrors.IsNotFound(err) || apierrors.IsConflict(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to delete PendingLogin: %w", err)
	}

	return &PendingLogin{
		State:        obj.Spec.State,
		CodeVerifier: obj.Spec.CodeVerifier,
		Provider:     obj.Spec.Provider,
		ReturnTo:     obj.Spec.ReturnTo,
		CreatedAt:    obj.Spec.CreatedAt.Time,
		ExpiresAt:    obj.Spec.ExpiresAt.Time,
	}, nil
}

// Cleanup deletes pending logins past their retention window and returns
// how many were removed. The API server has no TTL of its own, so the
// server runs this periodically.
func (s *KubernetesStore) Cleanup(ctx context.Context) (int, error) {
	list, err := s.resource().List(ctx, metav1.ListOptions{
		LabelSelector: managedByLabel + "=" + managedBy,
	})
	if err != nil {
		return 0, fmt.Errorf("failed to list pending logins: %w", err)
	}

	cutoff := s.now().Add(-retention)
	removed := 0
	for i := range list.Items {
		obj, err := fromUnstructured(&list.Items[i])
		if err != nil {
			continue
		}
		if !obj.Spec.ExpiresAt.Time.Before(cutoff) {
			continue
		}
		uid := obj.GetUID()
		opts := metav1.DeleteOptions{}
		if uid != "" {
			opts.Preconditions = &metav1.Preconditions{UID: &uid}
		}
		err = s.resource().Delete(ctx, obj.GetName(), opts)
		if err != nil && !apierrors.IsNotFound(err) {
			return removed, fmt.Errorf("failed to delete PendingLogin %s: %w", obj.GetName(), err)
		}
		if err == nil {
			removed++
		}
	}
	return removed, nil
}

// DefaultCleanupInterval is used when RunCleanup is given a non-positive interval.
const DefaultCleanupInterval = 5 * time.Minute

// RunCleanup calls Cleanup every interval until ctx is done, reporting
// each pass to report when it is non-nil.
func (s *KubernetesStore) RunCleanup(ctx context.Context, interval time.Duration, report func(removed int, err error)) {
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Cleanup(ctx)
			if report != nil {
				report(removed, err)
			}
		}
	}
}

func fromUnstructured(u *unstructured.Unstructured) (*v1alpha1.PendingLogin, error) {
	var obj v1alpha1.PendingLogin
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(u.Object, &obj); err != nil {
		return nil, fmt.Errorf("failed to convert from unstructured: %w", err)
	}
	return &obj, nil
}
