package v1alpha1

import (
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	GroupName = "swipify.io"
	Version   = "v1alpha1"

	Kind     = "PendingLogin"
	ListKind = "PendingLoginList"
	Resource = "pendinglogins"
)

// SchemeGroupVersion is the group version used to register these objects.
var SchemeGroupVersion = schema.GroupVersion{Group: GroupName, Version: Version}

// PendingLoginsResource identifies the PendingLogin resource for dynamic clients.
var PendingLoginsResource = SchemeGroupVersion.WithResource(Resource)

// +genclient
// +k8s:deepcopy-gen:interfaces=k8s.io/apimachinery/pkg/runtime.Object

// PendingLogin holds the server-side secrets of one in-flight login attempt.
type PendingLogin struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitzero"`

	Spec PendingLoginSpec `json:"spec"`
}

// PendingLoginSpec defines a login attempt awaiting its callback
type PendingLoginSpec struct {
	// State is the OAuth state parameter for CSRF protection
	State string `json:"state"`

	// CodeVerifier is the PKCE verifier for code exchange
	CodeVerifier string `json:"codeVerifier"`

	// Provider names the identity provider the attempt was sent to
	Provider string `json:"provider,omitempty"`

	// ReturnTo is the local path to land on after login
	ReturnTo string `json:"returnTo,omitempty"`

	CreatedAt metav1.Time `json:"createdAt"`
	ExpiresAt metav1.Time `json:"expiresAt"`
}

// +k8s:deepcopy-gen:interfaces=k8s.io/apimachinery/pkg/runtime.Object

// PendingLoginList contains a list of PendingLogin
type PendingLoginList struct {
	metav1.TypeMeta `json:",inline"`
	metav1.ListMeta `json:"metadata,omitzero"`
	Items           []PendingLogin `json:"items"`
}
