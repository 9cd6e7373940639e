package claim

import (
	"context"
	"fmt"
	"time"

	"github.com/go-logr/logr"
	coordinationv1 "k8s.io/api/coordination/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/types"
	utilrand "k8s.io/apimachinery/pkg/util/rand"
	"k8s.io/utils/ptr"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	// DefaultLeaseDuration bounds how long a crashed run blocks others
	DefaultLeaseDuration = 30 * time.Minute

	LabelManagedBy   = "app.kubernetes.io/managed-by"
	AnnotationDomain = "awseb-https/domain"
	AnnotationEnv    = "awseb-https/environment"

	managedByValue  = "awseb-https"
	leaseNamePrefix = "awseb-https-"
)

// LeaseLocker claims keys with coordination.k8s.io Leases. The first run to
// create the Lease owns it until it is released or expires.
type LeaseLocker struct {
	Client    client.Client
	Namespace string
	Duration  time.Duration
	Log       logr.Logger

	// Holder prefixes the identity written to the Lease. Every Acquire adds
	// a random suffix so two runs on one host never share a claim.
	Holder string

	// Now is overridden in tests
	Now func() time.Time
}

func (l *LeaseLocker) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

func (l *LeaseLocker) duration() time.Duration {
	if l.Duration > 0 {
		return l.Duration
	}
	return DefaultLeaseDuration
}

func (l *LeaseLocker) leaseKey(key Key) types.NamespacedName {
	return types.NamespacedName{Namespace: l.Namespace, Name: leaseNamePrefix + key.Name()}
}

// Acquire creates the Lease for key or takes over an expired one. A live
// Lease is never shared, whoever holds it.
func (l *LeaseLocker) Acquire(ctx context.Context, key Key) (Release, error) {
	nn := l.leaseKey(key)
	now := metav1.NewMicroTime(l.now())
	identity := l.Holder + "-" + utilrand.String(8)

	var lease coordinationv1.Lease
	err := l.Client.Get(ctx, nn, &lease)
	switch {
	case apierrors.IsNotFound(err):
		lease = coordinationv1.Lease{
			ObjectMeta: metav1.ObjectMeta{
				Name:        nn.Name,
				Namespace:   nn.Namespace,
				Labels:      map[string]string{LabelManagedBy: managedByValue},
				Annotations: map[string]string{AnnotationDomain: key.Domain, AnnotationEnv: key.Environment},
			},
			Spec: coordinationv1.LeaseSpec{
				HolderIdentity:       ptr.To(identity),
				LeaseDurationSeconds: ptr.To(int32(l.duration().Seconds())),
				AcquireTime:          &now,
				RenewTime:            &now,
			},
		}
		if err := l.Client.Create(ctx, &lease); err != nil {
			if apierrors.IsAlreadyExists(err) {
				// Lost the race between Get and Create
				return nil, &ClaimedError{Key: key, Holder: "unknown"}
			}
			return nil, fmt.Errorf("failed to create lease %s: %w", nn, err)
		}
		l.Log.Info("Acquired claim", "lease", nn.String(), "holder", identity)

	case err != nil:
		return nil, fmt.Errorf("failed to get lease %s: %w", nn, err)

	default:
		holder := ptr.Deref(lease.Spec.HolderIdentity, "")
		if !l.expired(&lease) {
			return nil, &ClaimedError{Key: key, Holder: holder}
		}
		l.Log.Info("Taking over expired claim", "lease", nn.String(), "previousHolder", holder, "holder", identity)
		lease.Spec.HolderIdentity = ptr.To(identity)
		lease.Spec.LeaseDurationSeconds = ptr.To(int32(l.duration().Seconds()))
		lease.Spec.LeaseTransitions = ptr.To(ptr.Deref(lease.Spec.LeaseTransitions, 0) + 1)
		lease.Spec.AcquireTime = &now
		lease.Spec.RenewTime = &now
		if err := l.Client.Update(ctx, &lease); err != nil {
			if apierrors.IsConflict(err) {
				return nil, &ClaimedError{Key: key, Holder: "unknown"}
			}
			return nil, fmt.Errorf("failed to update lease %s: %w", nn, err)
		}
	}

	return func(ctx context.Context) error { return l.release(ctx, nn, identity) }, nil
}

func (l *LeaseLocker) expired(lease *coordinationv1.Lease) bool {
	if lease.Spec.RenewTime == nil || lease.Spec.LeaseDurationSeconds == nil {
		return true
	}
	expiry := lease.Spec.RenewTime.Add(time.Duration(*lease.Spec.LeaseDurationSeconds) * time.Second)
	return l.now().After(expiry)
}

// release deletes the Lease if identity still owns it
func (l *LeaseLocker) release(ctx context.Context, nn types.NamespacedName, identity string) error {
	var lease coordinationv1.Lease
	if err := l.Client.Get(ctx, nn, &lease); err != nil {
		return client.IgnoreNotFound(err)
	}
	if ptr.Deref(lease.Spec.HolderIdentity, "") != identity {
		return nil
	}
	if err := client.IgnoreNotFound(l.Client.Delete(ctx, &lease)); err != nil {
		return fmt.Errorf("failed to delete lease %s: %w", nn, err)
	}
	l.Log.Info("Released claim", "lease", nn.String())
	return nil
}
