package v1alpha1

import (
	"k8s.io/apimachinery/pkg/runtime"
)

// DeepCopyObject implements runtime.Object interface
func (in *PendingLogin) DeepCopyObject() runtime.Object {
	if in == nil {
		return nil
	}
	return in.DeepCopy()
}

// DeepCopyInto copies all properties from in to out
func (in *PendingLogin) DeepCopyInto(out *PendingLogin) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ObjectMeta.DeepCopyInto(&out.ObjectMeta)
	in.Spec.DeepCopyInto(&out.Spec)
}

// DeepCopy creates a deep copy
func (in *PendingLogin) DeepCopy() *PendingLogin {
	if in == nil {
		return nil
	}
	out := new(PendingLogin)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies the spec; metav1.Time values copy by assignment.
func (in *PendingLoginSpec) DeepCopyInto(out *PendingLoginSpec) {
	*out = *in
	in.CreatedAt.DeepCopyInto(&out.CreatedAt)
	in.ExpiresAt.DeepCopyInto(&out.ExpiresAt)
}

// DeepCopyObject implements runtime.Object interface
func (in *PendingLoginList) DeepCopyObject() runtime.Object {
	if in == nil {
		return nil
	}
	out := new(PendingLoginList)
	in.DeepCopyInto(out)
	return out
}

// DeepCopyInto copies all properties from in to out
func (in *PendingLoginList) DeepCopyInto(out *PendingLoginList) {
	*out = *in
	out.TypeMeta = in.TypeMeta
	in.ListMeta.DeepCopyInto(&out.ListMeta)
	if in.Items != nil {
		out.Items = make([]PendingLogin, len(in.Items))
		for i := range in.Items {
			in.Items[i].DeepCopyInto(&out.Items[i])
		}
	}
}
