package team

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hupe1980/agentbridge/core"
)

// Roles assigned when a member joins without one.
const (
	RoleLeader = "leader"
	RoleMember = "member"
)

// Team groups agent identities around one shared context. The first member
// to join is the leader; names are unique within the team.
type Team struct {
	id     string
	broker core.ContextBroker

	mu      sync.RWMutex
	members []core.AgentInfo
}

// New creates a team bound to broker.
func New(id string, broker core.ContextBroker) *Team {
	return &Team{id: id, broker: broker}
}

// ID returns the team identifier.
func (t *Team) ID() string { return t.id }

// Broker returns the team's context broker.
func (t *Team) Broker() core.ContextBroker { return t.broker }

// AddMember registers an agent. An empty role becomes "leader" for the first
// member and "member" otherwise.
func (t *Team) AddMember(info core.AgentInfo) (core.AgentInfo, error) {
	if info.Name == "" {
		return core.AgentInfo{}, core.NewConfigurationError("name", "team member name must not be empty")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, m := range t.members {
		if m.Name == info.Name {
			return core.AgentInfo{}, fmt.Errorf("%w: %s", ErrDuplicateMember, info.Name)
		}
	}
	if info.Role == "" {
		if len(t.members) == 0 {
			info.Role = RoleLeader
		} else {
			info.Role = RoleMember
		}
	}
	t.members = append(t.members, info)

	return info, nil
}

// RemoveMember drops an agent from the team.
func (t *Team) RemoveMember(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i, m := range t.members {
		if m.Name == name {
			t.members = append(t.members[:i], t.members[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrMemberNotFound, name)
}

// Member returns the identity registered under name.
func (t *Team) Member(name string) (core.AgentInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, m := range t.members {
		if m.Name == name {
			return m, true
		}
	}
	return core.AgentInfo{}, false
}

// Members returns the members in join order.
func (t *Team) Members() []core.AgentInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]core.AgentInfo, len(t.members))
	copy(out, t.members)
	return out
}

// MemberNames returns member names in join order.
func (t *Team) MemberNames() []string {
	members := t.Members()
	names := make([]string, len(members))
	for i, m := range members {
		names[i] = m.Name
	}
	return names
}

// Leader returns the first member, if any.
func (t *Team) Leader() (core.AgentInfo, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if len(t.members) == 0 {
		return core.AgentInfo{}, false
	}
	return t.members[0], true
}

// Publish writes value under key on behalf of author.
func (t *Team) Publish(ctx context.Context, author, key string, value any) error {
	return t.broker.Set(ctx, t.id, key, value, author)
}

// Read returns the value stored under key.
func (t *Team) Read(ctx context.Context, key string) (any, bool, error) {
	e, ok, err := t.broker.Get(ctx, t.id, key)
	return e.Value, ok, err
}

// Snapshot returns the whole team context.
func (t *Team) Snapshot(ctx context.Context) (map[string]core.ContextEntry, error) {
	return t.broker.Snapshot(ctx, t.id)
}

// Teardown removes every member and destroys the team context.
func (t *Team) Teardown(ctx context.Context) error {
	t.mu.Lock()
	t.members = nil
	t.mu.Unlock()
	return t.broker.Teardown(ctx, t.id)
}

// FormatSnapshot renders a context snapshot as sorted "key: value" lines.
func FormatSnapshot(snap map[string]core.ContextEntry) string {
	keys := make([]string, 0, len(snap))
	for k := range snap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "- %s: %v\n", k, snap[k].Value)
	}
	return strings.TrimRight(sb.String(), "\n")
}
