package broadcast

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound            = errors.New("broadcast resource not found")
	ErrRedundantTransition = errors.New("broadcast already in requested state")
)

// TargetState is a state a broadcast can be asked to move into.
type TargetState string

const (
	TargetTesting  TargetState = "testing"
	TargetLive     TargetState = "live"
	TargetComplete TargetState = "complete"
)

// LifecycleStatus is the provider-reported broadcast state.
type LifecycleStatus string

const (
	LifecycleCreated      LifecycleStatus = "created"
	LifecycleReady        LifecycleStatus = "ready"
	LifecycleTestStarting LifecycleStatus = "testStarting"
	LifecycleTesting      LifecycleStatus = "testing"
	LifecycleLiveStarting LifecycleStatus = "liveStarting"
	LifecycleLive         LifecycleStatus = "live"
	LifecycleComplete     LifecycleStatus = "complete"
	LifecycleRevoked      LifecycleStatus = "revoked"
)

// IsLive reports whether the broadcast is live or on its way there.
func (s LifecycleStatus) IsLive() bool {
	return s == LifecycleLive || s == LifecycleLiveStarting
}

// InTesting reports whether the testing step has been reached.
func (s LifecycleStatus) InTesting() bool {
	return s == LifecycleTesting || s == LifecycleTestStarting
}

type Privacy string

const (
	PrivacyPublic   Privacy = "public"
	PrivacyUnlisted Privacy = "unlisted"
	PrivacyPrivate  Privacy = "private"
)

type CreateRequest struct {
	Title          string
	Description    string
	ScheduledStart time.Time
	Privacy        Privacy
}

type Broadcast struct {
	ID       string
	WatchURL string
}

type PhysicalStream struct {
	ExternalStreamID string
	IngestAddress    string
	StreamCredential string
}

// StreamHealth is the provider's view of incoming video on a stream.
type StreamHealth struct {
	Status       string `json:"status"`
	HealthStatus string `json:"healthStatus"`
}

func (h StreamHealth) IsActive() bool {
	return h.Status == "active"
}

// Provider is the external live video platform.
type Provider interface {
	CreateBroadcast(ctx context.Context, req CreateRequest) (Broadcast, error)
	BindStream(ctx context.Context, broadcastID, externalStreamID string) error
	TransitionBroadcast(ctx context.Context, broadcastID string, target TargetState) error
	DeleteBroadcast(ctx context.Context, broadcastID string) error
	GetBroadcastStatus(ctx context.Context, broadcastID string) (LifecycleStatus, error)
	CreatePhysicalStream(ctx context.Context, title string) (PhysicalStream, error)
	GetStreamHealth(ctx context.Context, externalStreamID string) (StreamHealth, error)
}
