// Package match holds the in-memory alias index: normalized name -> ranked
// candidate identities. Exact lookups are a hash hit; fuzzy lookups pre-filter
// through blocking buckets (first letter + token count) so an observation is
// scored against a handful of aliases instead of the whole alias universe.
package match

import (
	"fmt"
	"sort"
	"sync"

	"github.com/rollcall/rollcall/internal/normalize"
)

// Candidate is one ranked lookup result.
type Candidate struct {
	IdentityID   uint
	IdentityUUID string
	Score        float64
	Appearances  int
}

// Params bound a fuzzy lookup.
type Params struct {
	Floor float64 // minimum score to be considered at all
	TopK  int     // maximum candidates returned
}

type identityInfo struct {
	uuid        string
	appearances int
}

// Index is safe for concurrent use. It is a projection of the alias table and
// is kept in sync by the identity service on every mutation.
type Index struct {
	mu sync.RWMutex

	// normalized -> identityID -> number of alias rows with that normalized form
	exact map[string]map[uint]int

	// blocking key -> set of normalized strings in that bucket
	blocks map[string]map[string]struct{}

	identities map[uint]identityInfo
}

// NewIndex creates an empty alias index.
func NewIndex() *Index {
	return &Index{
		exact:      make(map[string]map[uint]int),
		blocks:     make(map[string]map[string]struct{}),
		identities: make(map[uint]identityInfo),
	}
}

// blockKey buckets a normalized name by first letter and token count.
func blockKey(normalized string, tokenCount int) string {
	first, _ := firstRune(normalized)
	return fmt.Sprintf("%c:%d", first, tokenCount)
}

func firstRune(s string) (rune, bool) {
	for _, r := range s {
		return r, true
	}
	return 0, false
}

// SetIdentity registers or updates an identity's UUID and appearance count.
func (ix *Index) SetIdentity(id uint, uuid string, appearances int) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.identities[id] = identityInfo{uuid: uuid, appearances: appearances}
}

// IncrementAppearances bumps the tie-break counter for an identity.
func (ix *Index) IncrementAppearances(id uint, delta int) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	info := ix.identities[id]
	info.appearances += delta
	ix.identities[id] = info
}

// AddAlias records that the normalized name belongs to the identity.
// Adding the same pair again just bumps the per-pair refcount (one identity can
// own several raw variants sharing a normalized form).
func (ix *Index) AddAlias(identityID uint, normalized string) {
	if normalized == "" {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	owners := ix.exact[normalized]
	if owners == nil {
		owners = make(map[uint]int)
		ix.exact[normalized] = owners
	}
	owners[identityID]++

	key := blockKey(normalized, len(normalize.Tokens(normalized)))
	bucket := ix.blocks[key]
	if bucket == nil {
		bucket = make(map[string]struct{})
		ix.blocks[key] = bucket
	}
	bucket[normalized] = struct{}{}
}

// RemoveAlias drops one reference of the normalized name from the identity,
// cleaning up empty buckets.
func (ix *Index) RemoveAlias(identityID uint, normalized string) {
	if normalized == "" {
		return
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	owners := ix.exact[normalized]
	if owners == nil {
		return
	}
	owners[identityID]--
	if owners[identityID] <= 0 {
		delete(owners, identityID)
	}
	if len(owners) == 0 {
		delete(ix.exact, normalized)
		key := blockKey(normalized, len(normalize.Tokens(normalized)))
		if bucket := ix.blocks[key]; bucket != nil {
			delete(bucket, normalized)
			if len(bucket) == 0 {
				delete(ix.blocks, key)
			}
		}
	}
}

// RemoveIdentity drops an identity and all of its alias references
// (used when an identity is tombstoned by a merge).
func (ix *Index) RemoveIdentity(identityID uint) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	delete(ix.identities, identityID)
	for normalized, owners := range ix.exact {
		if _, ok := owners[identityID]; !ok {
			continue
		}
		delete(owners, identityID)
		if len(owners) == 0 {
			delete(ix.exact, normalized)
			key := blockKey(normalized, len(normalize.Tokens(normalized)))
			if bucket := ix.blocks[key]; bucket != nil {
				delete(bucket, normalized)
				if len(bucket) == 0 {
					delete(ix.blocks, key)
				}
			}
		}
	}
}

// LookupExact returns live identities owning exactly this normalized name,
// confidence 1.0, most-established first.
func (ix *Index) LookupExact(normalized string) []Candidate {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.exactLocked(normalized)
}

func (ix *Index) exactLocked(normalized string) []Candidate {
	owners := ix.exact[normalized]
	if len(owners) == 0 {
		return nil
	}
	candidates := make([]Candidate, 0, len(owners))
	for id := range owners {
		info := ix.identities[id]
		candidates = append(candidates, Candidate{
			IdentityID:   id,
			IdentityUUID: info.uuid,
			Score:        1.0,
			Appearances:  info.appearances,
		})
	}
	sortCandidates(candidates)
	return candidates
}

// Lookup returns ranked candidates for a normalized name: an exact hit wins
// outright; otherwise blocking buckets within one token of the query length
// and sharing its first letter are scored.
func (ix *Index) Lookup(normalized string, p Params) []Candidate {
	if normalized == "" {
		return nil
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if exact := ix.exactLocked(normalized); len(exact) > 0 {
		return exact
	}

	tokenCount := len(normalize.Tokens(normalized))

	// score per identity = best score across its alias strings
	best := make(map[uint]float64)
	for tc := tokenCount - 1; tc <= tokenCount+1; tc++ {
		if tc < 1 {
			continue
		}
		bucket := ix.blocks[blockKey(normalized, tc)]
		for alias := range bucket {
			score := Similarity(normalized, alias)
			if score < p.Floor {
				continue
			}
			for id := range ix.exact[alias] {
				if score > best[id] {
					best[id] = score
				}
			}
		}
	}

	candidates := make([]Candidate, 0, len(best))
	for id, score := range best {
		info := ix.identities[id]
		candidates = append(candidates, Candidate{
			IdentityID:   id,
			IdentityUUID: info.uuid,
			Score:        score,
			Appearances:  info.appearances,
		})
	}
	sortCandidates(candidates)

	if p.TopK > 0 && len(candidates) > p.TopK {
		candidates = candidates[:p.TopK]
	}
	return candidates
}

// sortCandidates orders by score descending; ties go to the identity with more
// appearances, which keeps new observations flowing toward established
// identities instead of fragmenting the index.
func sortCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		if candidates[i].Appearances != candidates[j].Appearances {
			return candidates[i].Appearances > candidates[j].Appearances
		}
		return candidates[i].IdentityID < candidates[j].IdentityID
	})
}
