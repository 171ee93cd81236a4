// SPDX-License-Identifier: Apache-2.0

package orchestrator

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/jllopis/agentnet/pkg/errors"
	"github.com/jllopis/agentnet/pkg/store"
)

// Record keys. Every record expires with its network's retention.
const (
	networkPrefix   = "network:"
	agentPrefix     = "agent:"
	taskPrefix      = "task:"
	networkIndexKey = "networks"
)

func networkKey(id string) string       { return networkPrefix + id }
func agentKey(id string) string         { return agentPrefix + id }
func taskKey(id string) string          { return taskPrefix + id }
func networkAgentsKey(id string) string { return networkPrefix + id + ":agents" }
func networkTasksKey(id string) string  { return networkPrefix + id + ":tasks" }

// repository persists networks, agents and tasks as JSON records in a
// store.KV, plus per-network id sets and a global network index.
type repository struct {
	kv    store.KV
	clock func() time.Time
}

// ttl keeps every record of n alive until the network's retention ends.
func (r *repository) ttl(n Network) time.Duration {
	left := n.ExpiresAt().Sub(r.clock())
	if left < time.Second {
		return time.Second
	}
	return left
}

func encode(key string, v any, ttl time.Duration) (store.Entry, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return store.Entry{}, errors.New(errors.CodeStoreError, "encode record", err).WithContext("key", key)
	}
	return store.Entry{Key: key, Value: b, TTL: ttl}, nil
}

func decode[T any](key string, b []byte) (T, error) {
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return v, errors.New(errors.CodeStoreError, "decode record", err).WithContext("key", key)
	}
	return v, nil
}

// save writes the network, agents and tasks in one atomic step.
func (r *repository) save(ctx context.Context, n Network, agents []Agent, tasks []Task) error {
	ttl := r.ttl(n)
	entries := make([]store.Entry, 0, 1+len(agents)+len(tasks))
	e, err := encode(networkKey(n.ID), n, ttl)
	if err != nil {
		return err
	}
	entries = append(entries, e)
	for _, a := range agents {
		e, err := encode(agentKey(a.ID), a, ttl)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	for _, t := range tasks {
		e, err := encode(taskKey(t.ID), t, ttl)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	return r.kv.PutMany(ctx, entries...)
}

// saveAgents writes agents without touching the network record.
func (r *repository) saveAgents(ctx context.Context, n Network, agents ...Agent) error {
	return r.saveEntities(ctx, n, agents, nil)
}

// saveTask writes t without touching the network record.
func (r *repository) saveTask(ctx context.Context, n Network, t Task) error {
	return r.saveEntities(ctx, n, nil, []Task{t})
}

// saveTaskAndAgent writes both records in one atomic step.
func (r *repository) saveTaskAndAgent(ctx context.Context, n Network, t Task, a Agent) error {
	return r.saveEntities(ctx, n, []Agent{a}, []Task{t})
}

func (r *repository) saveEntities(ctx context.Context, n Network, agents []Agent, tasks []Task) error {
	ttl := r.ttl(n)
	entries := make([]store.Entry, 0, len(agents)+len(tasks))
	for _, a := range agents {
		e, err := encode(agentKey(a.ID), a, ttl)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	for _, t := range tasks {
		e, err := encode(taskKey(t.ID), t, ttl)
		if err != nil {
			return err
		}
		entries = append(entries, e)
	}
	return r.kv.PutMany(ctx, entries...)
}

// createNetwork stores n with its agents and registers every id set.
func (r *repository) createNetwork(ctx context.Context, n Network, agents []Agent) error {
	if err := r.save(ctx, n, agents, nil); err != nil {
		return err
	}
	if err := r.indexAgents(ctx, n, agents...); err != nil {
		return err
	}
	return r.kv.SetAdd(ctx, networkIndexKey, 0, n.ID)
}

func (r *repository) indexAgents(ctx context.Context, n Network, agents ...Agent) error {
	if len(agents) == 0 {
		return nil
	}
	ids := make([]string, len(agents))
	for i, a := range agents {
		ids[i] = a.ID
	}
	return r.kv.SetAdd(ctx, networkAgentsKey(n.ID), r.ttl(n), ids...)
}

// addTask stores t and adds it to the network's task set.
func (r *repository) addTask(ctx context.Context, n Network, t Task) error {
	if err := r.saveTask(ctx, n, t); err != nil {
		return err
	}
	return r.kv.SetAdd(ctx, networkTasksKey(n.ID), r.ttl(n), t.ID)
}

func (r *repository) getNetwork(ctx context.Context, id string) (Network, error) {
	return get[Network](ctx, r.kv, networkKey(id), "network", id)
}

func (r *repository) getTask(ctx context.Context, id string) (Task, error) {
	return get[Task](ctx, r.kv, taskKey(id), "task", id)
}

func (r *repository) getAgent(ctx context.Context, id string) (Agent, error) {
	return get[Agent](ctx, r.kv, agentKey(id), "agent", id)
}

// getTaskRecord returns the task together with its stored bytes, which
// claimTask compares against.
func (r *repository) getTaskRecord(ctx context.Context, id string) (Task, []byte, error) {
	return getRecord[Task](ctx, r.kv, taskKey(id), "task", id)
}

// claimTask writes t and a only if the stored task still equals prev. It
// reports false when another caller changed the task first.
func (r *repository) claimTask(ctx context.Context, n Network, prev []byte, t Task, a Agent) (bool, error) {
	ttl := r.ttl(n)
	te, err := encode(taskKey(t.ID), t, ttl)
	if err != nil {
		return false, err
	}
	ae, err := encode(agentKey(a.ID), a, ttl)
	if err != nil {
		return false, err
	}
	return r.kv.CompareAndPut(ctx, te.Key, prev, te, ae)
}

func get[T any](ctx context.Context, kv store.KV, key, kind, id string) (T, error) {
	v, _, err := getRecord[T](ctx, kv, key, kind, id)
	return v, err
}

func getRecord[T any](ctx context.Context, kv store.KV, key, kind, id string) (T, []byte, error) {
	var zero T
	if id == "" {
		return zero, nil, errors.Validation("%s id is required", kind)
	}
	b, ok, err := kv.Get(ctx, key)
	if err != nil {
		return zero, nil, err
	}
	if !ok {
		return zero, nil, errors.NotFound(kind, id)
	}
	v, err := decode[T](key, b)
	return v, b, err
}

// listAgents returns the network's agents ordered by creation. Ids whose
// record is gone are dropped from the result and from the set.
func (r *repository) listAgents(ctx context.Context, networkID string) ([]Agent, error) {
	agents, err := list[Agent](ctx, r.kv, networkAgentsKey(networkID), agentKey)
	if err != nil {
		return nil, err
	}
	sort.Slice(agents, func(i, j int) bool {
		if agents[i].CreatedAt.Equal(agents[j].CreatedAt) {
			return agents[i].Name < agents[j].Name
		}
		return agents[i].CreatedAt.Before(agents[j].CreatedAt)
	})
	return agents, nil
}

// listTasks returns the network's tasks, newest first.
func (r *repository) listTasks(ctx context.Context, networkID string) ([]Task, error) {
	tasks, err := list[Task](ctx, r.kv, networkTasksKey(networkID), taskKey)
	if err != nil {
		return nil, err
	}
	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.After(tasks[j].CreatedAt)
	})
	return tasks, nil
}

// listNetworks returns every indexed network that still has a record.
func (r *repository) listNetworks(ctx context.Context) ([]Network, []string, error) {
	ids, err := r.kv.SetMembers(ctx, networkIndexKey)
	if err != nil {
		return nil, nil, err
	}
	found, dangling, err := fetch[Network](ctx, r.kv, ids, networkKey)
	if err != nil {
		return nil, nil, err
	}
	sort.Slice(found, func(i, j int) bool { return found[i].CreatedAt.Before(found[j].CreatedAt) })
	return found, dangling, nil
}

func list[T any](ctx context.Context, kv store.KV, setKey string, keyOf func(string) string) ([]T, error) {
	ids, err := kv.SetMembers(ctx, setKey)
	if err != nil {
		return nil, err
	}
	found, dangling, err := fetch[T](ctx, kv, ids, keyOf)
	if err != nil {
		return nil, err
	}
	if len(dangling) > 0 {
		// Best effort; a failure here only delays the cleanup.
		_ = kv.SetRemove(ctx, setKey, dangling...)
	}
	return found, nil
}

// fetch batch-reads the records of ids, returning the decoded records and
// the ids whose record is missing or unreadable.
func fetch[T any](ctx context.Context, kv store.KV, ids []string, keyOf func(string) string) ([]T, []string, error) {
	if len(ids) == 0 {
		return nil, nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyOf(id)
	}
	values, err := kv.MGet(ctx, keys)
	if err != nil {
		return nil, nil, err
	}
	out := make([]T, 0, len(values))
	var dangling []string
	for i, key := range keys {
		b, ok := values[key]
		if !ok {
			dangling = append(dangling, ids[i])
			continue
		}
		v, err := decode[T](key, b)
		if err != nil {
			dangling = append(dangling, ids[i])
			continue
		}
		out = append(out, v)
	}
	return out, dangling, nil
}

// removeAgent deletes one agent record and its set membership.
func (r *repository) removeAgent(ctx context.Context, networkID, agentID string) error {
	if err := r.kv.Delete(ctx, agentKey(agentID)); err != nil {
		return err
	}
	return r.kv.SetRemove(ctx, networkAgentsKey(networkID), agentID)
}

// deleteNetwork removes the network record, every agent and task record it
// lists, its id sets and its index entry.
func (r *repository) deleteNetwork(ctx context.Context, networkID string) (agents, tasks int, err error) {
	agentIDs, err := r.kv.SetMembers(ctx, networkAgentsKey(networkID))
	if err != nil {
		return 0, 0, err
	}
	taskIDs, err := r.kv.SetMembers(ctx, networkTasksKey(networkID))
	if err != nil {
		return 0, 0, err
	}
	keys := make([]string, 0, 3+len(agentIDs)+len(taskIDs))
	keys = append(keys, networkKey(networkID), networkAgentsKey(networkID), networkTasksKey(networkID))
	for _, id := range agentIDs {
		keys = append(keys, agentKey(id))
	}
	for _, id := range taskIDs {
		keys = append(keys, taskKey(id))
	}
	if err := r.kv.Delete(ctx, keys...); err != nil {
		return 0, 0, err
	}
	if err := r.kv.SetRemove(ctx, networkIndexKey, networkID); err != nil {
		return 0, 0, err
	}
	return len(agentIDs), len(taskIDs), nil
}
