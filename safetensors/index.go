package safetensors

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ybubnov/metalchat/alloc"
)

// indexFile is the sharded-archive index: weight_map maps every tensor
// name to the shard file that holds it.
type indexFile struct {
	WeightMap map[string]string `json:"weight_map"`
}

// OpenSharded loads a *.safetensors.index.json file, opening every shard
// file it references exactly once (fanned out with errgroup.Group, one
// goroutine per shard) and presenting the result as a single merged
// Archive.
func OpenSharded(indexPath string, device alloc.Device) (*Archive, error) {
	raw, err := os.ReadFile(indexPath)
	if err != nil {
		return nil, err
	}
	var idx indexFile
	if err := json.Unmarshal(raw, &idx); err != nil {
		return nil, fmt.Errorf("%w: index: %w", ErrBadHeader, err)
	}

	shards := make(map[string]struct{})
	for _, shard := range idx.WeightMap {
		shards[shard] = struct{}{}
	}

	dir := filepath.Dir(indexPath)
	var mu sync.Mutex
	archives := make(map[string]*Archive, len(shards))

	g, _ := errgroup.WithContext(context.Background())
	for shard := range shards {
		shard := shard
		g.Go(func() error {
			a, err := Open(filepath.Join(dir, shard), device)
			if err != nil {
				return fmt.Errorf("shard %s: %w", shard, err)
			}
			mu.Lock()
			archives[shard] = a
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		for _, a := range archives {
			a.Close()
		}
		return nil, err
	}

	merged := &Archive{byName: make(map[string]int), metadata: map[string]string{}}
	for name, shard := range idx.WeightMap {
		src := archives[shard]
		e, err := src.Entry(name)
		if err != nil {
			return nil, fmt.Errorf("index: %w", err)
		}
		merged.byName[name] = len(merged.entries)
		merged.entries = append(merged.entries, e)
	}
	merged.shards = archives
	return merged, nil
}
