package pending

import (
	"context"
	"fmt"

	apiextensionsv1 "k8s.io/apiextensions-apiserver/pkg/apis/apiextensions/v1"
	apiextensionsclient "k8s.io/apiextensions-apiserver/pkg/client/clientset/clientset"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	v1alpha1 "swipify/pkg/apis/swipify.io/v1alpha1"
)

// CustomResourceDefinition describes the PendingLogin resource used by
// KubernetesStore.
func CustomResourceDefinition() *apiextensionsv1.CustomResourceDefinition {
	str := apiextensionsv1.JSONSchemaProps{Type: "string"}
	timestamp := apiextensionsv1.JSONSchemaProps{Type: "string", Format: "date-time"}

	return &apiextensionsv1.CustomResourceDefinition{
		ObjectMeta: metav1.ObjectMeta{
			Name: v1alpha1.Resource + "." + v1alpha1.GroupName,
			Labels: map[string]string{
				managedByLabel: managedBy,
			},
		},
		Spec: apiextensionsv1.CustomResourceDefinitionSpec{
			Group: v1alpha1.GroupName,
			Scope: apiextensionsv1.NamespaceScoped,
			Names: apiextensionsv1.CustomResourceDefinitionNames{
				Plural:   v1alpha1.Resource,
				Singular: "pendinglogin",
				Kind:     v1alpha1.Kind,
				ListKind: v1alpha1.ListKind,
			},
			Versions: []apiextensionsv1.CustomResourceDefinitionVersion{{
				Name:    v1alpha1.Version,
				Served:  true,
				Storage: true,
				Schema: &apiextensionsv1.CustomResourceValidation{
					OpenAPIV3Schema: &apiextensionsv1.JSONSchemaProps{
						Type: "object",
						Properties: map[string]apiextensionsv1.JSONSchemaProps{
							"spec": {
								Type:     "object",
								Required: []string{"state", "codeVerifier", "createdAt", "expiresAt"},
								Properties: map[string]apiextensionsv1.JSONSchemaProps{
									"state":        str,
									"codeVerifier": str,
									"provider":     str,
									"returnTo":     str,
									"createdAt":    timestamp,
									"expiresAt":    timestamp,
								},
							},
						},
					},
				},
				AdditionalPrinterColumns: []apiextensionsv1.CustomResourceColumnDefinition{
					{Name: "Provider", Type: "string", JSONPath: ".spec.provider"},
					{Name: "Expires", Type: "date", JSONPath: ".spec.expiresAt"},
				},
			}},
		},
	}
}

// EnsureCRD installs the PendingLogin CRD when it is missing. It reports
// whether the definition was created.
func EnsureCRD(ctx context.Context, client apiextensionsclient.Interface) (bool, error) {
	_, err := client.ApiextensionsV1().CustomResourceDefinitions().Create(ctx, CustomResourceDefinition(), metav1.CreateOptions{})
	if apierrors.IsAlreadyExists(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to create CustomResourceDefinition: %w", err)
	}
	return true, nil
}
