// Package pebble stores messages, groups, direct conversations and users in
// an embedded Pebble database for single-node deployments.
//
// Key layout:
//
//	g/<group-id>                 group JSON
//	d/<conversation-id>          direct conversation JSON
//	u/<user-id>                  user JSON
//	s/<conversation-id>          last sequence number
//	m/<conversation-id>/<seq>    message JSON, seq as 8 big-endian bytes
//	i/<conversation-id>/<id>     sequence number of a message id
package pebble

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	"github.com/cockroachdb/pebble"

	apperrors "chatcore-backend/pkg/errors"
	"chatcore-backend/pkg/metrics"
)

const backend = "pebble"

// getJSON decodes the value at key into v. found is false when key is absent.
func getJSON(db *pebble.DB, key []byte, v any) (found bool, err error) {
	data, closer, err := db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	defer closer.Close()

	return true, json.Unmarshal(data, v)
}

// scanPrefix calls fn for every value under prefix in key order
func scanPrefix(db *pebble.DB, prefix []byte, fn func(key, value []byte) error) error {
	iter, err := db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return err
	}

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			_ = iter.Close()
			return err
		}
	}
	return iter.Close()
}

// upperBound is the smallest key greater than every key starting with prefix
func upperBound(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func key(parts ...[]byte) []byte {
	var out []byte
	for i, p := range parts {
		if i > 0 {
			out = append(out, '/')
		}
		out = append(out, p...)
	}
	return out
}

func encodeSeq(seq int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(seq))
	return buf
}

func decodeSeq(data []byte) int64 {
	if len(data) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(data))
}

func observe(m *metrics.Metrics, op string, start time.Time, err error) error {
	m.RecordStoreOp(backend, op, time.Since(start), err)
	if err == nil || apperrors.IsAppError(err) {
		return err
	}
	return apperrors.TransientError(op, err)
}
