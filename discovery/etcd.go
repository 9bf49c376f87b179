// Package discovery registers this node under an etcd lease and watches
// the same key prefix to learn about peers, feeding pkg/transport's peer
// set.
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
)

const nodePrefix = "/pgreg/nodes/"

// NewClient dials the etcd cluster at endpoints.
func NewClient(endpoints []string) (*clientv3.Client, error) {
	return clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: 5 * time.Second,
	})
}

// RegisterNode puts id->addr under a lease with the given ttl (seconds)
// and keeps the lease alive until the returned cancel func is called.
// The caller is responsible for calling cancel (and typically revoking
// the lease) on shutdown.
func RegisterNode(ctx context.Context, cli *clientv3.Client, id, addr string, ttl int64) (clientv3.LeaseID, func(), error) {
	lease, err := cli.Grant(ctx, ttl)
	if err != nil {
		return 0, nil, err
	}
	key := nodePrefix + id
	if _, err := cli.Put(ctx, key, addr, clientv3.WithLease(lease.ID)); err != nil {
		return 0, nil, err
	}

	keepAliveCtx, cancel := context.WithCancel(ctx)
	keepAlive, err := cli.KeepAlive(keepAliveCtx, lease.ID)
	if err != nil {
		cancel()
		return 0, nil, err
	}
	go func() {
		for range keepAlive {
			// Drain acknowledgements; nothing to act on per tick.
		}
	}()

	return lease.ID, cancel, nil
}

// GetPeers lists every node currently registered under the prefix,
// keyed by node ID.
func GetPeers(ctx context.Context, cli *clientv3.Client) (map[string]string, error) {
	resp, err := cli.Get(ctx, nodePrefix, clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}
	peers := make(map[string]string, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		id := strings.TrimPrefix(string(kv.Key), nodePrefix)
		peers[id] = string(kv.Value)
	}
	return peers, nil
}

// WatchPeers calls onChange with the full current peer set every time the
// prefix changes (a node registers, re-leases, or its lease expires). It
// blocks until ctx is cancelled or the watch channel closes, so callers
// should run it in its own goroutine.
func WatchPeers(ctx context.Context, cli *clientv3.Client, onChange func(map[string]string)) error {
	if peers, err := GetPeers(ctx, cli); err == nil {
		onChange(peers)
	}

	watch := cli.Watch(ctx, nodePrefix, clientv3.WithPrefix())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case resp, ok := <-watch:
			if !ok {
				return fmt.Errorf("discovery: watch channel closed")
			}
			if resp.Err() != nil {
				return resp.Err()
			}
			peers, err := GetPeers(ctx, cli)
			if err != nil {
				continue
			}
			onChange(peers)
		}
	}
}
