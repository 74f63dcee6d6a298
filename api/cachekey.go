package api

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// maxKeyLen is the longest cache key kept verbatim
const maxKeyLen = 256

// CacheKey builds the deduplication and cache key of a request: method, path
// and the canonical JSON of params, whose object keys are sorted at every
// depth. Keys longer than 256 bytes keep method and path and replace the
// params with their xxhash64 digest.
func CacheKey(method, path string, params any) string {
	prefix := strings.ToUpper(method) + " " + path
	if params == nil {
		return prefix
	}
	canon, err := canonicalJSON(params)
	if err != nil {
		// unencodable params still need a stable identity
		canon = []byte(strconv.Quote(err.Error()))
	}
	key := prefix + " " + string(canon)
	if len(key) <= maxKeyLen {
		return key
	}
	return prefix + " #" + strconv.FormatUint(xxhash.Sum64(canon), 16)
}

// canonicalJSON round-trips v through a generic value; encoding/json writes
// map keys in sorted order, so the result is independent of field order.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, err
	}
	return json.Marshal(generic)
}
