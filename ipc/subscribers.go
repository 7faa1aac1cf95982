package ipc

import (
	"sync"

	"github.com/pop-os/upgrade-daemon/events"
	"google.golang.org/protobuf/types/known/structpb"
)

// Subscribers fans out events drained from the bus to every active
// Subscribe RPC stream, mirroring a D-Bus signal's multiple listeners. A
// plain mutex-guarded slice is enough here: registration only happens when a
// client opens a stream, and publication happens once per dispatcher tick,
// never at a rate that would make a lock-free structure worth its
// complexity (contrast status.Register, which is read from every IPC
// method call and so must be wait-free).
type Subscribers struct {
	mu   sync.Mutex
	subs map[int]chan *structpb.Struct
	next int
}

// NewSubscribers returns an empty subscriber registry.
func NewSubscribers() *Subscribers {
	return &Subscribers{subs: make(map[int]chan *structpb.Struct)}
}

// Register adds a new subscriber and returns its feed channel and an
// unregister function the Subscribe handler must call when its stream ends.
func (s *Subscribers) Register() (<-chan *structpb.Struct, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.next
	s.next++
	ch := make(chan *structpb.Struct, 256)
	s.subs[id] = ch

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(existing)
		}
	}
}

// Publish encodes e as a signal envelope and delivers it to every current
// subscriber, dropping it for any subscriber whose feed is full rather than
// blocking the dispatcher tick on a slow reader.
func (s *Subscribers) Publish(e events.Event) {
	msg := encodeSignal(e)
	if msg == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

// encodeSignal maps one events.Event onto the signal envelope named in
// spec.md §6.1's signal list: {"signal": name, "payload": {...}}.
func encodeSignal(e events.Event) *structpb.Struct {
	var name string
	payload := map[string]any{}

	switch e.Kind {
	case events.KindFetchResult:
		name = "PackageFetchResult"
		payload["ok"] = e.Result.Ok
		payload["why"] = e.Result.Why
	case events.KindFetching:
		name = "PackageFetching"
		payload["name"] = e.PackageName
	case events.KindFetched:
		name = "PackageFetched"
		payload["name"] = e.PackageName
		payload["completed"] = float64(e.Completed)
		payload["total"] = float64(e.Total)
	case events.KindNoConnection:
		name = "NoConnection"
	case events.KindRecoveryProgress:
		name = "RecoveryDownloadProgress"
		payload["bytes"] = float64(e.Bytes)
		payload["total"] = float64(e.ByteTotal)
	case events.KindRecoveryPhase:
		name = "RecoveryUpgradeEvent"
		payload["phase"] = float64(e.RecoveryPhase)
	case events.KindRecoveryResult:
		name = "RecoveryResult"
		payload["ok"] = e.Result.Ok
		payload["why"] = e.Result.Why
	case events.KindReleasePhase:
		name = "ReleaseEvent"
		payload["phase"] = float64(e.ReleasePhase)
	case events.KindReleaseResult:
		name = "ReleaseResult"
		payload["ok"] = e.Result.Ok
		payload["why"] = e.Result.Why
	case events.KindAptUpgrade:
		name = "PackageUpgrade"
		versions := make(map[string]any, len(e.Versions))
		for pkg, ver := range e.Versions {
			versions[pkg] = ver
		}
		payload["versions"] = versions
	default:
		return nil
	}

	env, err := structpb.NewStruct(map[string]any{
		"signal":  name,
		"payload": payload,
	})
	if err != nil {
		return nil
	}
	return env
}
