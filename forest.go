package grove

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"
	"github.com/pbanos/grove/blob"
)

/*
Forest is the list of the trees of an ensemble, kept as a blob under
its key. Trees are kept as encoded blobs under the keys on TreeKeys,
which grows as trees are built, and predict classes below Classes.
Total is the number of trees the
ensemble was dispatched with; once the dispatch is over Done is set,
and trees whose build failed are counted in Failed.
*/
type Forest struct {
	Key        string   `json:"-"`
	DatasetKey string   `json:"dataset"`
	Params     Params   `json:"params"`
	Classes    int      `json:"classes"`
	Total      int      `json:"total"`
	Done       bool     `json:"done"`
	Failed     int      `json:"failed"`
	TreeKeys   []string `json:"trees"`
}

// TreeKey returns the key of the tree at the given index of the forest
// with the given key
func TreeKey(forestKey string, i int) string {
	return fmt.Sprintf("%s:tree:%d", forestKey, i)
}

// LoadForest gets the forest under the given key from the store
func LoadForest(ctx context.Context, store blob.Store, key string) (*Forest, error) {
	data, err := store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading forest %q: %w", key, err)
	}
	f := &Forest{}
	if err := json.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("loading forest %q: %w", key, err)
	}
	f.Key = key
	return f, nil
}

// Save puts the forest on the store under its key
func (f *Forest) Save(ctx context.Context, store blob.Store) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("saving forest %q: %w", f.Key, err)
	}
	if err := store.Put(ctx, f.Key, data); err != nil {
		return fmt.Errorf("saving forest %q: %w", f.Key, err)
	}
	return nil
}

// FinalSize returns the number of trees the forest will have once
// its dispatch is over
func (f *Forest) FinalSize() int {
	if f.Done {
		return len(f.TreeKeys)
	}
	return f.Total
}

// Trees gets the encoded trees of the forest from the store, at most
// max of them unless max is below 1
func (f *Forest) Trees(ctx context.Context, store blob.Store, max int) ([][]byte, error) {
	keys := f.TreeKeys
	if max > 0 && max < len(keys) {
		keys = keys[:max]
	}
	trees := make([][]byte, len(keys))
	for i, k := range keys {
		bits, err := store.Get(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("loading tree %d of forest %q: %w", i, f.Key, err)
		}
		trees[i] = bits
	}
	return trees, nil
}
