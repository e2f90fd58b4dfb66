package mounts

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/fx"
	"umbasa.net/seraph-mounts/messaging"
)

const RefreshFlagsBucket = "SERAPH_MOUNTS_REFRESH"

// RefreshFlags remembers the users whose mounts must be recomputed by
// the background refresh job.
type RefreshFlags interface {
	Flag(ctx context.Context, users ...string) error
	// Flagged returns all flagged users, sorted.
	Flagged(ctx context.Context) ([]string, error)
	Clear(ctx context.Context, user string) error
}

type FlagsParams struct {
	fx.In

	Config Config
	Js     jetstream.JetStream `optional:"true"`
}

type FlagsResult struct {
	fx.Out

	Flags RefreshFlags
}

// NewRefreshFlags returns the flag store selected by mounts.refresh.flags.
func NewRefreshFlags(p FlagsParams) (FlagsResult, error) {
	if p.Config.Refresh.Flags != "jetstream" {
		return FlagsResult{Flags: NewMemoryFlags()}, nil
	}
	if p.Js == nil {
		return FlagsResult{}, errors.New("refresh flags need JetStream but no NATS connection is available")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	flags, err := NewKeyValueFlags(ctx, p.Js, p.Config.Refresh.FlagTtl)
	return FlagsResult{Flags: flags}, err
}

type memoryFlags struct {
	mu    sync.Mutex
	users map[string]struct{}
}

func NewMemoryFlags() RefreshFlags {
	return &memoryFlags{users: make(map[string]struct{})}
}

func (f *memoryFlags) Flag(ctx context.Context, users ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, u := range users {
		f.users[u] = struct{}{}
	}
	return nil
}

func (f *memoryFlags) Flagged(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	users := make([]string, 0, len(f.users))
	for u := range f.users {
		users = append(users, u)
	}
	slices.Sort(users)
	return users, nil
}

func (f *memoryFlags) Clear(ctx context.Context, user string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	delete(f.users, user)
	return nil
}

// kvFlags keeps one key per flagged user in a JetStream key value bucket
// so that flags survive restarts and are shared between instances.
type kvFlags struct {
	kv jetstream.KeyValue
}

// NewKeyValueFlags creates the flag bucket if needed. Flags older than ttl
// expire; zero keeps them until cleared.
func NewKeyValueFlags(ctx context.Context, js jetstream.JetStream, ttl time.Duration) (RefreshFlags, error) {
	kv, err := messaging.KeyValue(ctx, js, RefreshFlagsBucket, ttl)
	if err != nil {
		return nil, fmt.Errorf("While creating refresh flag bucket: %w", err)
	}
	return &kvFlags{kv: kv}, nil
}

// user ids may contain characters that are not valid in keys
func flagKey(user string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(user))
}

func (f *kvFlags) Flag(ctx context.Context, users ...string) error {
	for _, u := range users {
		_, err := f.kv.PutString(ctx, flagKey(u), time.Now().UTC().Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("While flagging %s for refresh: %w", u, err)
		}
	}
	return nil
}

func (f *kvFlags) Flagged(ctx context.Context) ([]string, error) {
	keys, err := messaging.Keys(ctx, f.kv)
	if err != nil {
		return nil, fmt.Errorf("While listing refresh flags: %w", err)
	}
	users := make([]string, 0, len(keys))
	for _, k := range keys {
		u, err := base64.RawURLEncoding.DecodeString(k)
		if err != nil {
			continue
		}
		users = append(users, string(u))
	}
	slices.Sort(users)
	return users, nil
}

func (f *kvFlags) Clear(ctx context.Context, user string) error {
	err := f.kv.Delete(ctx, flagKey(user))
	if err != nil {
		return fmt.Errorf("While clearing refresh flag of %s: %w", user, err)
	}
	return nil
}
