package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/allaspectsdev/otel-api-scraper/internal/extract"
)

// fingerprint computes sha256(source + ":" + canonical_json(subset)). The
// subset is the full record under fingerprintMode=full_record, or only the
// values at fingerprintKeys otherwise. encoding/json marshals map[string]T
// with lexicographically sorted keys at every nesting level, which gives us
// canonical JSON for free: the same logical record fingerprints identically
// regardless of the map's original iteration order.
func fingerprint(source string, record Record, mode string, keys []string) (string, error) {
	subset, err := fingerprintSubset(record, mode, keys)
	if err != nil {
		return "", err
	}
	data, err := json.Marshal(subset)
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte(source))
	h.Write([]byte{':'})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil)), nil
}

func fingerprintSubset(record Record, mode string, keys []string) (interface{}, error) {
	if mode != "keys" || len(keys) == 0 {
		return record, nil
	}
	subset := make(map[string]interface{}, len(keys))
	for _, k := range keys {
		v, err := extract.LookupPath(record, record, k)
		if err != nil {
			return nil, err
		}
		subset[k] = v
	}
	return subset, nil
}
