package record

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf16"

	"golang.org/x/text/unicode/norm"
)

// DomainResources is the domain prefix for resource-signature hashing. The
// version suffix enables future algorithm migration.
const DomainResources = "gridflow/resources/v1"

// ResourceSpec declares the resource requirements of one action run: cores,
// nodes, scheduler, shell and scheduler pass-through arguments. Two runs with
// equal specs share one Signature and may be grouped into one jobscript.
type ResourceSpec struct {
	NumCores      int               `json:"num_cores,omitempty" yaml:"num_cores,omitempty"`
	NumNodes      int               `json:"num_nodes,omitempty" yaml:"num_nodes,omitempty"`
	Scheduler     string            `json:"scheduler,omitempty" yaml:"scheduler,omitempty"`
	Shell         string            `json:"shell,omitempty" yaml:"shell,omitempty"`
	TimeLimit     string            `json:"time_limit,omitempty" yaml:"time_limit,omitempty"`
	SchedulerArgs map[string]string `json:"scheduler_args,omitempty" yaml:"scheduler_args,omitempty"`
}

// Signature computes the deduplicated identity of the spec: SHA-256 over the
// canonical JSON form, with domain separation. Equal specs always produce
// equal signatures regardless of map iteration order.
func (r ResourceSpec) Signature() string {
	canonical, err := marshalCanonical(r.asMap())
	if err != nil {
		// asMap only emits strings, ints and string maps; the canonical
		// encoder accepts all of them.
		panic(fmt.Sprintf("resource spec canonical encoding: %v", err))
	}
	return hashWithDomain(DomainResources, canonical)
}

func (r ResourceSpec) asMap() map[string]any {
	m := map[string]any{}
	if r.NumCores != 0 {
		m["num_cores"] = r.NumCores
	}
	if r.NumNodes != 0 {
		m["num_nodes"] = r.NumNodes
	}
	if r.Scheduler != "" {
		m["scheduler"] = r.Scheduler
	}
	if r.Shell != "" {
		m["shell"] = r.Shell
	}
	if r.TimeLimit != "" {
		m["time_limit"] = r.TimeLimit
	}
	if len(r.SchedulerArgs) > 0 {
		args := make(map[string]any, len(r.SchedulerArgs))
		for k, v := range r.SchedulerArgs {
			args[k] = v
		}
		m["scheduler_args"] = args
	}
	return m
}

// SignatureSet deduplicates resource specs into a stable, first-appearance
// ordered list. Index returns the position of a spec's signature, appending
// the spec when it is new. The positions are the integer signature indices
// used in the scheduler's resource matrix.
type SignatureSet struct {
	specs []ResourceSpec
	index map[string]int
}

// NewSignatureSet returns an empty signature set.
func NewSignatureSet() *SignatureSet {
	return &SignatureSet{index: map[string]int{}}
}

// Index returns the signature index for spec, adding it if unseen.
func (s *SignatureSet) Index(spec ResourceSpec) int {
	sig := spec.Signature()
	if idx, ok := s.index[sig]; ok {
		return idx
	}
	idx := len(s.specs)
	s.specs = append(s.specs, spec)
	s.index[sig] = idx
	return idx
}

// Specs returns the deduplicated specs in first-appearance order.
func (s *SignatureSet) Specs() []ResourceSpec {
	return slices.Clone(s.specs)
}

// Len returns the number of distinct specs.
func (s *SignatureSet) Len() int {
	return len(s.specs)
}

// hashWithDomain computes SHA-256 with domain separation:
// SHA256(domain + 0x00 + data). The null separator prevents domain/data
// boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// marshalCanonical produces RFC 8785-style canonical JSON for hashing:
// object keys sorted by UTF-16 code units, strings NFC normalized, no HTML
// escaping, no floats, no null.
func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical JSON")
	case string:
		return marshalCanonicalString(val)
	case int:
		return []byte(fmt.Sprintf("%d", val)), nil
	case int64:
		return []byte(fmt.Sprintf("%d", val)), nil
	case bool:
		if val {
			return []byte("true"), nil
		}
		return []byte("false"), nil
	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			b, err := marshalCanonical(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			buf.Write(b)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil
	case map[string]any:
		return marshalCanonicalObject(val)
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func marshalCanonicalObject(obj map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	// RFC 8785 requires UTF-16 code unit ordering, not UTF-8 byte ordering.
	slices.SortFunc(keys, compareUTF16)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := marshalCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := marshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func compareUTF16(a, b string) int {
	ua := utf16.Encode([]rune(a))
	ub := utf16.Encode([]rune(b))
	for i := 0; i < len(ua) && i < len(ub); i++ {
		if ua[i] != ub[i] {
			if ua[i] < ub[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(ua) < len(ub):
		return -1
	case len(ua) > len(ub):
		return 1
	default:
		return 0
	}
}

// marshalCanonicalString NFC-normalizes at the serialization boundary and
// encodes without HTML escaping.
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}
	result := buf.Bytes()
	if len(result) > 0 && result[len(result)-1] == '\n' {
		result = result[:len(result)-1]
	}
	return result, nil
}
