package plugin

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

type stubPlugin struct {
	name    string
	initErr error

	mu    sync.Mutex
	inits int
	calls []any
	hooks map[Hook]HookFunc
}

func (s *stubPlugin) Name() string { return s.name }

func (s *stubPlugin) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inits++
	return s.initErr
}

func (s *stubPlugin) Hooks() map[Hook]HookFunc {
	if s.hooks != nil {
		return s.hooks
	}
	return map[Hook]HookFunc{
		HookOrderCreate: func(ctx context.Context, payload any) error {
			s.mu.Lock()
			defer s.mu.Unlock()
			s.calls = append(s.calls, payload)
			return nil
		},
	}
}

func (s *stubPlugin) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

func TestRegisterDuplicateNameIgnored(t *testing.T) {
	r := NewRegistry(testLogger(), Options{})
	first := &stubPlugin{name: "dup"}
	second := &stubPlugin{name: "dup"}
	r.Register(first)
	r.Register(second)

	require.NoError(t, r.TriggerHook(context.Background(), HookOrderCreate, "payload"))
	assert.Equal(t, 1, first.callCount(), "first registration should handle the hook")
	assert.Equal(t, 0, second.callCount(), "duplicate registration should be a no-op")
}

func TestInitializeAllIsIdempotent(t *testing.T) {
	r := NewRegistry(testLogger(), Options{})
	p := &stubPlugin{name: "p"}
	r.Register(p)

	r.InitializeAll(context.Background())
	r.InitializeAll(context.Background())

	assert.Equal(t, 1, p.inits, "second InitializeAll must be a no-op")
	assert.True(t, r.Initialized("p"))
}

func TestInitializeAllContinuesPastFailure(t *testing.T) {
	r := NewRegistry(testLogger(), Options{})
	bad := &stubPlugin{name: "bad", initErr: errors.New("boom")}
	good := &stubPlugin{name: "good"}
	r.Register(bad)
	r.Register(good)

	r.InitializeAll(context.Background())

	assert.False(t, r.Initialized("bad"))
	assert.True(t, r.Initialized("good"), "a failing plugin must not block the rest")
	assert.Equal(t, 1, good.inits)
}

func TestTriggerHookContinuesPastFailure(t *testing.T) {
	r := NewRegistry(testLogger(), Options{})
	failing := &stubPlugin{name: "failing", hooks: map[Hook]HookFunc{
		HookOrderCreate: func(ctx context.Context, payload any) error {
			return errors.New("plugin exploded")
		},
	}}
	recording := &stubPlugin{name: "recording"}
	r.Register(failing)
	r.Register(recording)

	err := r.TriggerHook(context.Background(), HookOrderCreate, "p")

	require.NoError(t, err, "best-effort hooks swallow plugin errors")
	assert.Equal(t, 1, recording.callCount(), "dispatch must reach plugins after a failure")
}

func TestTriggerHookCriticalReturnsFirstError(t *testing.T) {
	r := NewRegistry(testLogger(), Options{Critical: []Hook{HookOrderCreate}})
	errFirst := errors.New("first failure")
	errSecond := errors.New("second failure")

	var secondCalled bool
	r.Register(&stubPlugin{name: "a", hooks: map[Hook]HookFunc{
		HookOrderCreate: func(ctx context.Context, payload any) error { return errFirst },
	}})
	r.Register(&stubPlugin{name: "b", hooks: map[Hook]HookFunc{
		HookOrderCreate: func(ctx context.Context, payload any) error {
			secondCalled = true
			return errSecond
		},
	}})

	err := r.TriggerHook(context.Background(), HookOrderCreate, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, errFirst)
	assert.NotErrorIs(t, err, errSecond)
	assert.True(t, secondCalled, "critical failure must not abort dispatch to later plugins")
}

func TestTriggerHookRecoversPanic(t *testing.T) {
	r := NewRegistry(testLogger(), Options{Critical: []Hook{HookOrderCreate}})
	r.Register(&stubPlugin{name: "panicky", hooks: map[Hook]HookFunc{
		HookOrderCreate: func(ctx context.Context, payload any) error { panic("kaboom") },
	}})
	after := &stubPlugin{name: "after"}
	r.Register(after)

	err := r.TriggerHook(context.Background(), HookOrderCreate, nil)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "kaboom")
	assert.Equal(t, 1, after.callCount())
}

func TestTriggerHookTimeout(t *testing.T) {
	r := NewRegistry(testLogger(), Options{
		Critical:    []Hook{HookOrderCreate},
		HookTimeout: 30 * time.Millisecond,
	})
	r.Register(&stubPlugin{name: "stuck", hooks: map[Hook]HookFunc{
		HookOrderCreate: func(ctx context.Context, payload any) error {
			time.Sleep(2 * time.Second) // ignores ctx on purpose
			return nil
		},
	}})

	start := time.Now()
	err := r.TriggerHook(context.Background(), HookOrderCreate, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second, "a stuck plugin must not stall dispatch")
}

func TestTriggerHookRunsInRegistrationOrder(t *testing.T) {
	r := NewRegistry(testLogger(), Options{})
	var order []string
	for _, name := range []string{"one", "two", "three"} {
		n := name
		r.Register(&stubPlugin{name: n, hooks: map[Hook]HookFunc{
			HookOrderCreate: func(ctx context.Context, payload any) error {
				order = append(order, n)
				return nil
			},
		}})
	}

	require.NoError(t, r.TriggerHook(context.Background(), HookOrderCreate, nil))
	assert.Equal(t, []string{"one", "two", "three"}, order)
}

func TestTriggerHookSkipsUnimplementedHooks(t *testing.T) {
	r := NewRegistry(testLogger(), Options{})
	createOnly := &stubPlugin{name: "create-only"}
	r.Register(createOnly)

	require.NoError(t, r.TriggerHook(context.Background(), HookOrderCancel, nil))
	assert.Equal(t, 0, createOnly.callCount())
}

func TestTriggerHookPassesPayload(t *testing.T) {
	r := NewRegistry(testLogger(), Options{})
	p := &stubPlugin{name: "p"}
	r.Register(p)

	payload := map[string]int{"qty": 3}
	require.NoError(t, r.TriggerHook(context.Background(), HookOrderCreate, payload))

	require.Equal(t, 1, p.callCount())
	assert.Equal(t, payload, p.calls[0])
}
