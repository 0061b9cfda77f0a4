package broker

import (
	"encoding/json"
	"time"

	pebblestore "github.com/rzbill/courier/internal/storage/pebble"
)

// QueueMeta is the registry record of a queue.
type QueueMeta struct {
	Name        string `json:"name"`
	CreatedAtMs int64  `json:"createdAtMs"`
}

// ensureMeta creates the registry record if absent and returns the
// effective one. A corrupted record is rewritten.
func ensureMeta(db *pebblestore.DB, name string, now time.Time) (QueueMeta, error) {
	key := MetaKey(name)
	if b, err := db.Get(key); err == nil && len(b) > 0 {
		var m QueueMeta
		if err := json.Unmarshal(b, &m); err == nil {
			return m, nil
		}
	} else if err != nil && !pebblestore.IsNotFound(err) {
		return QueueMeta{}, err
	}
	m := QueueMeta{Name: name, CreatedAtMs: now.UnixMilli()}
	b, err := json.Marshal(m)
	if err != nil {
		return QueueMeta{}, err
	}
	if err := db.Set(key, b); err != nil {
		return QueueMeta{}, err
	}
	return m, nil
}

func listMeta(db *pebblestore.DB) ([]QueueMeta, error) {
	var out []QueueMeta
	err := db.ScanPrefix([]byte(prefixMeta), func(_, v []byte) bool {
		var m QueueMeta
		if json.Unmarshal(v, &m) == nil {
			out = append(out, m)
		}
		return true
	})
	return out, err
}
