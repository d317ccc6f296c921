// Package mcc loads and queries the mobile-country-code plist database so
// logged cells can be annotated with country and operator names. Keys are
// either a 3-digit MCC or a full PLMN (MCC+MNC); lookups resolve the longest
// key that prefixes the PLMN, so an operator entry wins over its country.
package mcc

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"howett.net/plist"
)

// Info describes one database entry.
type Info struct {
	Country   string `plist:"Country"`
	ISO       string `plist:"ISO"`
	Operator  string `plist:"Operator"`
	Continent string `plist:"Continent"`
	Key       string `plist:"-"`
}

// Database holds the plist data and a digit trie for longest-prefix lookup.
// It is read-only after load and safe for concurrent use.
type Database struct {
	Data map[string]Info
	Keys []string
	trie plmnTrie

	lookups atomic.Uint64
	misses  atomic.Uint64
}

// Metrics summarizes lookup behavior.
type Metrics struct {
	Lookups uint64
	Misses  uint64
}

// plmnTrie is a read-only trie over the ten decimal digits. Walking a PLMN
// from the root, the last terminal node seen is the longest matching key.
type plmnTrie struct {
	nodes []plmnNode
}

type plmnNode struct {
	next     [10]int32 // 0 means no child; the root is never a child
	terminal string
}

func buildTrie(keys []string) plmnTrie {
	tr := plmnTrie{nodes: []plmnNode{{}}}
	for _, key := range keys {
		state := 0
		for i := 0; i < len(key); i++ {
			d := key[i] - '0'
			child := tr.nodes[state].next[d]
			if child == 0 {
				child = int32(len(tr.nodes))
				tr.nodes = append(tr.nodes, plmnNode{})
				tr.nodes[state].next[d] = child
			}
			state = int(child)
		}
		tr.nodes[state].terminal = key
	}
	return tr
}

func (tr *plmnTrie) longestPrefix(plmn string) (string, bool) {
	if len(tr.nodes) == 0 {
		return "", false
	}
	state := 0
	best := ""
	for i := 0; i < len(plmn); i++ {
		c := plmn[i]
		if c < '0' || c > '9' {
			break
		}
		child := tr.nodes[state].next[c-'0']
		if child == 0 {
			break
		}
		state = int(child)
		if t := tr.nodes[state].terminal; t != "" {
			best = t
		}
	}
	return best, best != ""
}

// Load reads the plist database at path.
func Load(path string) (*Database, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open mcc plist: %w", err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader decodes the database from r. Keys that are not all digits or
// shorter than an MCC are rejected.
func LoadFromReader(r io.ReadSeeker) (*Database, error) {
	var raw map[string]Info
	if err := plist.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode plist: %w", err)
	}
	data := make(map[string]Info, len(raw))
	for k, v := range raw {
		key := strings.TrimSpace(k)
		if len(key) < 3 || len(key) > 6 || !allDigits(key) {
			return nil, fmt.Errorf("mcc plist: invalid key %q", k)
		}
		v.Key = key
		data[key] = v
	}
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return &Database{Data: data, Keys: keys, trie: buildTrie(keys)}, nil
}

// LookupPLMN resolves the most specific entry for an MCC+MNC string (an MCC
// alone also works). A nil database never matches.
func (db *Database) LookupPLMN(plmn string) (*Info, bool) {
	if db == nil {
		return nil, false
	}
	db.lookups.Add(1)
	key, ok := db.trie.longestPrefix(strings.TrimSpace(plmn))
	if !ok {
		db.misses.Add(1)
		return nil, false
	}
	info := db.Data[key]
	return &info, true
}

// Country returns the country name for a 3-digit MCC, or "".
func (db *Database) Country(mcc string) string {
	if db == nil {
		return ""
	}
	mcc = strings.TrimSpace(mcc)
	if len(mcc) != 3 {
		return ""
	}
	if info, ok := db.Data[mcc]; ok {
		return info.Country
	}
	return ""
}

// Metrics returns a snapshot of lookup counters.
func (db *Database) Metrics() Metrics {
	if db == nil {
		return Metrics{}
	}
	return Metrics{Lookups: db.lookups.Load(), Misses: db.misses.Load()}
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
