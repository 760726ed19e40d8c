// Package change defines the pending-change tuple that flows from
// package uploads through the propagation engine to per-device sync
// queues, and its durable key encoding.
package change

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	// fixed-width nanosecond timestamp so that lexicographic key order
	// equals chronological order
	tsWidth = 20

	keySep  = "_"
	listSep = ","
)

// Tuple identifies one accepted version of one relative path. Its
// encoded form is the key of the pending-change queue, the key of the
// change log, and the element appended to device sync queues.
type Tuple struct {
	Timestamp time.Time
	TopDir    int64
	RelPath   string
	Hash      string
}

func New(topDir int64, relPath, hash string) *Tuple {
	return &Tuple{
		Timestamp: time.Now().UTC(),
		TopDir:    topDir,
		RelPath:   relPath,
		Hash:      hash,
	}
}

// Key encodes the tuple as "<ts>_<topdir>_<relpath>_<hash>" with a
// zero-padded timestamp. RelPath is a GUID and Hash is hex, so neither
// can contain the separator.
func (t *Tuple) Key() string {
	return fmt.Sprintf("%0*d%s%d%s%s%s%s",
		tsWidth, t.Timestamp.UnixNano(), keySep,
		t.TopDir, keySep,
		t.RelPath, keySep,
		t.Hash)
}

func (t *Tuple) String() string {
	return t.Key()
}

// ParseKey decodes a tuple key produced by Key.
func ParseKey(key string) (*Tuple, error) {
	parts := strings.SplitN(key, keySep, 4)
	if len(parts) != 4 {
		return nil, fmt.Errorf("change: malformed tuple key %q", key)
	}

	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("change: bad timestamp in %q: %w", key, err)
	}

	topDir, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("change: bad top dir in %q: %w", key, err)
	}

	if parts[2] == "" || parts[3] == "" {
		return nil, fmt.Errorf("change: empty field in tuple key %q", key)
	}

	return &Tuple{
		Timestamp: time.Unix(0, nanos).UTC(),
		TopDir:    topDir,
		RelPath:   parts[2],
		Hash:      parts[3],
	}, nil
}

// JoinList appends an encoded tuple to a comma-joined list value.
func JoinList(list, key string) string {
	if list == "" {
		return key
	}
	return list + listSep + key
}

// SplitList decodes a comma-joined list of tuple keys. Malformed
// entries are skipped rather than failing the whole list.
func SplitList(list string) []*Tuple {
	if list == "" {
		return nil
	}

	var tuples []*Tuple
	for _, k := range strings.Split(list, listSep) {
		t, err := ParseKey(k)
		if err != nil {
			continue
		}
		tuples = append(tuples, t)
	}
	return tuples
}
