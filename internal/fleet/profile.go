package fleet

import (
	"bytes"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

// Profile is a named, versioned configuration bundle assignable to containers.
type Profile struct {
	Name    string
	Version string
	Parents []string
	// Config maps a configuration pid to its key/value properties.
	Config map[string]map[string]string
}

// Fingerprint is the BLAKE3 keyed digest of a profile's effective configuration.
type Fingerprint [32]byte

// String returns the lowercase hex form.
func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

// fingerprintDomainKey is the ASCII domain name zero-padded to 32 bytes.
var fingerprintDomainKey = [32]byte{
	'f', 'l', 'e', 'e', 't', 'c', 't', 'l', '.', 'p', 'r', 'o', 'f', 'i', 'l', 'e',
	'.', 'c', 'o', 'n', 'f', 'i', 'g', 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

var fingerprintEncMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.NilContainers = cbor.NilContainerAsEmpty
	mode, err := opts.EncMode()
	if err != nil {
		panic("fleet: CBOR encoder initialization failed: " + err.Error())
	}
	fingerprintEncMode = mode
}

// fingerprintDocument is the name-free projection that gets hashed.
type fingerprintDocument struct {
	Parents []string                     `cbor:"1,keyasint"`
	Config  map[string]map[string]string `cbor:"2,keyasint"`
}

// Fingerprint hashes parents and config; name and version do not contribute.
func (p Profile) Fingerprint() Fingerprint {
	doc := fingerprintDocument{
		Parents: normalizeParents(p.Parents),
		Config:  normalizeConfig(p.Config),
	}
	data, err := fingerprintEncMode.Marshal(doc)
	if err != nil {
		// String-only documents always encode.
		panic("fleet: profile fingerprint encoding failed: " + err.Error())
	}
	hasher, err := blake3.NewKeyed(fingerprintDomainKey[:])
	if err != nil {
		panic("fleet: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(data)
	var out Fingerprint
	copy(out[:], hasher.Sum(nil))
	return out
}

// ConfigurationEqual reports whether a and b carry the same effective configuration.
func ConfigurationEqual(a Profile, b Profile) bool {
	return a.Fingerprint() == b.Fingerprint()
}

// SortProfiles returns a copy ordered by fingerprint, then name.
func SortProfiles(in []Profile) []Profile {
	type keyed struct {
		profile Profile
		print   Fingerprint
	}
	items := make([]keyed, 0, len(in))
	for _, p := range in {
		items = append(items, keyed{profile: p, print: p.Fingerprint()})
	}
	sort.SliceStable(items, func(i, j int) bool {
		if c := bytes.Compare(items[i].print[:], items[j].print[:]); c != 0 {
			return c < 0
		}
		return items[i].profile.Name < items[j].profile.Name
	})
	out := make([]Profile, 0, len(items))
	for _, item := range items {
		out = append(out, item.profile)
	}
	return out
}

// SameConfiguration compares two profile sets element-wise after sorting.
func SameConfiguration(current []Profile, desired []Profile) bool {
	if len(current) != len(desired) {
		return false
	}
	a := SortProfiles(current)
	b := SortProfiles(desired)
	for i := range a {
		if !ConfigurationEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

// CloneProfiles returns a copy safe to hand across registry boundaries.
func CloneProfiles(in []Profile) []Profile {
	out := make([]Profile, 0, len(in))
	for _, p := range in {
		out = append(out, p.Clone())
	}
	return out
}

// Clone returns a deep copy of p.
func (p Profile) Clone() Profile {
	out := Profile{
		Name:    p.Name,
		Version: p.Version,
		Parents: append([]string(nil), p.Parents...),
		Config:  make(map[string]map[string]string, len(p.Config)),
	}
	for pid, props := range p.Config {
		cp := make(map[string]string, len(props))
		for k, v := range props {
			cp[k] = v
		}
		out.Config[pid] = cp
	}
	return out
}

func normalizeParents(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, raw := range in {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func normalizeConfig(in map[string]map[string]string) map[string]map[string]string {
	out := make(map[string]map[string]string, len(in))
	for pid, props := range in {
		key := strings.TrimSpace(pid)
		if key == "" {
			continue
		}
		cp := make(map[string]string, len(props))
		for k, v := range props {
			cp[strings.TrimSpace(k)] = v
		}
		out[key] = cp
	}
	return out
}
