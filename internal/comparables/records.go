package comparables

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// seedFile is the YAML layout read by LoadSeedFile:
//
//	comparables:
//	  - location: Lisboa
//	    type: apartment
//	    price: 240000
//	    ref: idealista-3312   # optional
//	    observed_at: 2026-02-01T00:00:00Z
type seedFile struct {
	Comparables []Record `yaml:"comparables"`
}

// LoadSeedFile reads comparable records from a YAML file.
func LoadSeedFile(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "comparables: read seed file %s", path)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "comparables: decode seed file %s", path)
	}
	return f.Comparables, nil
}

// keyedRecord is a validated record with its lookup keys.
type keyedRecord struct {
	Record
	LocationKey string
	TypeKey     string
}

// prepare validates records, fills defaults and drops duplicates (the last
// record for a key wins). Records without a ref get one derived from their
// values so reloading the same file is idempotent.
func prepare(records []Record, now time.Time) ([]keyedRecord, error) {
	out := make([]keyedRecord, 0, len(records))
	index := make(map[string]int, len(records))
	for i, r := range records {
		r.Location = strings.TrimSpace(r.Location)
		if r.Location == "" {
			return nil, eris.Errorf("comparables: record %d: location is required", i)
		}
		if r.Price <= 0 {
			return nil, eris.Errorf("comparables: record %d (%s): price must be > 0", i, r.Location)
		}
		if r.ObservedAt.IsZero() {
			r.ObservedAt = now
		}
		kr := keyedRecord{Record: r, LocationKey: NormalizeKey(r.Location), TypeKey: NormalizeKey(r.Type)}
		if strings.TrimSpace(kr.Ref) == "" {
			kr.Ref = "auto:" + strconv.FormatFloat(r.Price, 'f', -1, 64)
		}

		id := kr.LocationKey + "\x00" + kr.TypeKey + "\x00" + kr.Ref
		if j, ok := index[id]; ok {
			out[j] = kr
			continue
		}
		index[id] = len(out)
		out = append(out, kr)
	}
	return out, nil
}
