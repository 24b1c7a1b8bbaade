package models

// Keywords is an insertion-ordered keyword map for an LM-63 header.
// Setting an existing key replaces its value but keeps its original position.
type Keywords struct {
	keys   []string
	values map[string]string
}

// NewKeywords creates an empty keyword map.
func NewKeywords() *Keywords {
	return &Keywords{
		keys:   make([]string, 0),
		values: make(map[string]string),
	}
}

// Set stores value under key. Last write wins.
func (k *Keywords) Set(key, value string) {
	if _, ok := k.values[key]; !ok {
		k.keys = append(k.keys, key)
	}
	k.values[key] = value
}

// Get returns the value stored for key.
func (k *Keywords) Get(key string) (string, bool) {
	v, ok := k.values[key]
	return v, ok
}

// Keys returns the keys in insertion order.
func (k *Keywords) Keys() []string {
	out := make([]string, len(k.keys))
	copy(out, k.keys)
	return out
}

// Len returns the number of keywords.
func (k *Keywords) Len() int {
	return len(k.keys)
}

// Clone returns an independent copy of the keyword map.
func (k *Keywords) Clone() *Keywords {
	c := &Keywords{
		keys:   make([]string, len(k.keys)),
		values: make(map[string]string, len(k.values)),
	}
	copy(c.keys, k.keys)
	for key, v := range k.values {
		c.values[key] = v
	}
	return c
}

// Each calls fn for every keyword in insertion order.
func (k *Keywords) Each(fn func(key, value string)) {
	for _, key := range k.keys {
		fn(key, k.values[key])
	}
}

// KeywordPair is one keyword entry, used when keywords leave the process.
type KeywordPair struct {
	Key   string `json:"key" msgpack:"key" yaml:"key"`
	Value string `json:"value" msgpack:"value" yaml:"value"`
}

// Pairs returns the keywords as an ordered slice.
func (k *Keywords) Pairs() []KeywordPair {
	out := make([]KeywordPair, 0, len(k.keys))
	for _, key := range k.keys {
		out = append(out, KeywordPair{Key: key, Value: k.values[key]})
	}
	return out
}
