package engine

import (
	"sync/atomic"

	"github.com/komadai/shogi-engine/internal/shogi"
)

// Bound classifies how the stored score relates to the true value of the
// node: Exact for a PV node, Lower for a fail-high/cut node, Upper for a
// fail-low/all node.
type Bound uint8

const (
	BoundNone Bound = iota
	BoundExact
	BoundLower
	BoundUpper
)

// Mate-score bookkeeping: a position this many plies or closer to a forced
// mate has its score adjusted on store/probe so that mate scores recorded
// at one search depth remain meaningful when replayed from a different
// ply, the same compensation every shogi/chess TT needs since "mate in N"
// is root-relative but the TT is shared across the whole tree.
const (
	MateValue    = 30000
	MateInMaxPly = MateValue - 1024
)

// AdjustScoreToTT rewrites a mate score measured from the current search
// ply into one measured from the root, the form stored in the table.
func AdjustScoreToTT(score, ply int) int {
	switch {
	case score >= MateInMaxPly:
		return score + ply
	case score <= -MateInMaxPly:
		return score - ply
	default:
		return score
	}
}

// AdjustScoreFromTT is the inverse of AdjustScoreToTT, applied when a probe
// hits a mate score and the result must be re-based onto the probing node's
// ply.
func AdjustScoreFromTT(score, ply int) int {
	switch {
	case score >= MateInMaxPly:
		return score - ply
	case score <= -MateInMaxPly:
		return score + ply
	default:
		return score
	}
}

// Entry bit layout within the 64-bit data word (the key word holds the
// upper 32 bits of the zobrist hash, shifted into place so a partial torn
// read of the key still compares unequal to any real key with high
// probability):
//
//	[63:48] move           (16 bits, shogi.Move)
//	[47:34] score          (14 bits, signed, sign-extended)
//	[33]    singular_flag  (1 bit)
//	[32]    null_move_flag (1 bit)
//	[31:25] depth          (7 bits, 0-127)
//	[24:23] node_type      (2 bits: Exact | LowerBound | UpperBound)
//	[22:20] age            (3 bits, generation counter 0-7)
//	[19]    pv_flag        (1 bit)
//	[18]    tt_move_tried  (1 bit)
//	[17]    mate_threat    (1 bit)
//	[16]    reserved
//	[15:2]  eval           (14 bits, signed, sign-extended)
//	[1:0]   reserved
const (
	dataMoveShift        = 48
	dataScoreShift       = 34
	dataSingularShift    = 33
	dataNullMoveShift    = 32
	dataDepthShift       = 25
	dataNodeTypeShift    = 23
	dataAgeShift         = 20
	dataPVShift          = 19
	dataTTMoveTriedShift = 18
	dataMateThreatShift  = 17
	dataEvalShift        = 2

	data14BitMask = 0x3FFF
	data14BitSign = 0x2000 // bit 13: set means negative under sign extension
	dataDepthMask = 0x7F
	dataNodeMask  = 0x3
	ageMask       = 0x7

	keyShift = 32

	// minTTValue/maxTTValue bound the 14-bit sign-extended score/eval field;
	// a value outside this range is clamped before storage (spec's "modulo
	// the 14-bit clamp of score/eval").
	minTTValue = -8192
	maxTTValue = 8191
)

// encode14 packs v, clamped to [minTTValue, maxTTValue], into the low 14
// bits of the returned word.
func encode14(v int16) uint64 {
	if v < minTTValue {
		v = minTTValue
	} else if v > maxTTValue {
		v = maxTTValue
	}
	return uint64(v) & data14BitMask
}

// decode14 sign-extends a 14-bit field back to int16.
func decode14(bits uint64) int16 {
	bits &= data14BitMask
	if bits&data14BitSign != 0 {
		return int16(int64(bits) - (data14BitMask + 1))
	}
	return int16(bits)
}

// StoreFlags bundles the auxiliary single-bit flags a Store call tags an
// entry with, kept together so Store's signature doesn't grow a long run
// of positional bools.
type StoreFlags struct {
	Singular    bool
	NullMove    bool
	PV          bool
	TTMoveTried bool
	MateThreat  bool
}

func packData(m shogi.Move, score, eval int16, depth uint8, bound Bound, age uint8, flags StoreFlags) uint64 {
	d := uint64(m)<<dataMoveShift |
		encode14(score)<<dataScoreShift |
		encode14(eval)<<dataEvalShift |
		uint64(depth&dataDepthMask)<<dataDepthShift |
		uint64(bound&dataNodeMask)<<dataNodeTypeShift |
		uint64(age&ageMask)<<dataAgeShift
	if flags.Singular {
		d |= 1 << dataSingularShift
	}
	if flags.NullMove {
		d |= 1 << dataNullMoveShift
	}
	if flags.PV {
		d |= 1 << dataPVShift
	}
	if flags.TTMoveTried {
		d |= 1 << dataTTMoveTriedShift
	}
	if flags.MateThreat {
		d |= 1 << dataMateThreatShift
	}
	return d
}

func ttKey(hash uint64) uint64 { return (hash >> keyShift) << keyShift }

// Probed is a snapshot of a transposition table entry returned by Probe.
type Probed struct {
	Move  shogi.Move
	Score int16
	Eval  int16
	Depth uint8
	Bound Bound
	PV    bool

	Singular    bool // entry was produced behind a singular-extension verification
	NullMove    bool // entry was stored from a null-move pruning cutoff
	TTMoveTried bool // the TT move from a prior probe was present and searched
	MateThreat  bool // this subtree contains or threatens a forced mate
}

func unpackData(data uint64) Probed {
	return Probed{
		Move:        shogi.Move(data >> dataMoveShift),
		Score:       decode14(data >> dataScoreShift),
		Eval:        decode14(data >> dataEvalShift),
		Depth:       uint8(data>>dataDepthShift) & dataDepthMask,
		Bound:       Bound((data >> dataNodeTypeShift) & dataNodeMask),
		PV:          (data>>dataPVShift)&1 != 0,
		Singular:    (data>>dataSingularShift)&1 != 0,
		NullMove:    (data>>dataNullMoveShift)&1 != 0,
		TTMoveTried: (data>>dataTTMoveTriedShift)&1 != 0,
		MateThreat:  (data>>dataMateThreatShift)&1 != 0,
	}
}

func entryAge(data uint64) uint8 { return uint8(data>>dataAgeShift) & ageMask }

func isEmptyEntry(key, data uint64) bool { return key == 0 && data == 0 }

// priorityScore ranks an occupied slot for replacement: deeper and more
// recent entries are worth more, PV and exact nodes get a small bonus to
// survive longer, matching the Apery-style "prefer shallow and stale over
// deep and fresh" replacement heuristic. An empty slot always scores lowest.
func priorityScore(data uint64, currentAge uint8) int32 {
	if data == 0 {
		return -1 << 31
	}
	p := unpackData(data)
	ageDistance := int32((currentAge - entryAge(data)) & ageMask)
	score := int32(p.Depth) - ageDistance
	if p.PV {
		score += 32
	}
	if p.Bound == BoundExact {
		score += 16
	}
	return score
}

// bucketSize is the number of entries sharing a hash slot. A bucket of N
// entries lets a single probe sweep a handful of candidates before falling
// back to the table-wide replacement scheme, trading a larger scan per
// probe for far fewer collisions than a single-entry table at the same
// total size.
type bucketSize int

const (
	bucketSmall  bucketSize = 4
	bucketMedium bucketSize = 8
	bucketLarge  bucketSize = 16
)

func optimalBucketSize(sizeMB int) bucketSize {
	switch {
	case sizeMB <= 8:
		return bucketSmall
	case sizeMB <= 32:
		return bucketMedium
	default:
		return bucketLarge
	}
}

// ttBucket packs bucketSize entries as interleaved (key, data) atomic
// words. Each entry's key word is written with a Release-equivalent store
// (sync/atomic's sequential consistency is strictly stronger than the
// Release/Acquire pairing a lock-free table formally needs, so a plain
// Store/Load pair is sufficient here) before its data word. A reader that
// races a writer can observe the new key with the old data word (a torn
// read, see TranspositionTable), or a stale key and simply miss; neither
// corrupts table state.
type ttBucket struct {
	words []atomic.Uint64 // len == 2*size
}

func newBucket(size bucketSize) *ttBucket {
	return &ttBucket{words: make([]atomic.Uint64, int(size)*2)}
}

func (b *ttBucket) entries() int { return len(b.words) / 2 }

func (b *ttBucket) probe(hash uint64) (Probed, bool) {
	target := ttKey(hash)
	for i := 0; i < b.entries(); i++ {
		key := b.words[i*2].Load()
		if key == target {
			data := b.words[i*2+1].Load()
			p := unpackData(data)
			if p.Depth == 0 {
				// An empty slot (key 0) matches hashes whose key is 0;
				// a depth-0 entry is treated as absent.
				continue
			}
			return p, true
		}
	}
	return Probed{}, false
}

// store claims a matching or empty slot via CAS; if none is found it
// replaces the lowest-priority occupied slot, but only when the new entry's
// priority is higher than that slot's; otherwise the new entry is dropped.
// A CAS race on the claim pass
// simply causes a retry against the next candidate slot rather than a
// spin, since any other writer finishing first is an acceptable outcome
// (both are storing valid entries for overlapping positions).
func (b *ttBucket) store(hash uint64, data uint64, currentAge uint8) {
	target := ttKey(hash)

	for i := 0; i < b.entries(); i++ {
		keyWord := &b.words[i*2]
		old := keyWord.Load()
		if old != 0 && old != target {
			continue
		}
		if keyWord.CompareAndSwap(old, target) {
			b.words[i*2+1].Store(data)
			return
		}
		// Lost the race for this slot; re-check what's there now.
		cur := keyWord.Load()
		if cur == target {
			b.words[i*2+1].Store(data)
			return
		}
	}

	worst := 0
	var worstScore int32 = 1<<31 - 1
	for i := 0; i < b.entries(); i++ {
		d := b.words[i*2+1].Load()
		k := b.words[i*2].Load()
		var score int32
		if k == 0 {
			score = -1 << 31
		} else {
			score = priorityScore(d, currentAge)
		}
		if score < worstScore {
			worstScore = score
			worst = i
		}
	}

	newScore := priorityScore(data, currentAge)
	if newScore <= worstScore && worstScore != -1<<31 {
		return
	}
	b.words[worst*2].Store(target)
	b.words[worst*2+1].Store(data)
}

func (b *ttBucket) clear() {
	for i := range b.words {
		b.words[i].Store(0)
	}
}

// TranspositionTable is a lock-free, bucketed hash table shared by every
// search worker. Entries are claimed and replaced purely through atomic
// compare-and-swap; no mutex ever guards a probe or a store, so concurrent
// Lazy-SMP workers never block each other on table access. A torn read
// (a probe observing a key from one writer's store and a data word from
// another's) can only ever produce a false miss or a garbled-but-harmless
// hit filtered by the caller's own verification of score/bound/depth — it
// can never corrupt table state, since every write is a single atomic
// word store.
type TranspositionTable struct {
	buckets []*ttBucket
	mask    uint64
	size    bucketSize
	age     atomic.Uint32
}

// NewTranspositionTable allocates a table of approximately sizeMB
// megabytes, choosing a bucket width from the table's tier and rounding
// the bucket count down to a power of two so indexing is a mask, not a
// modulo.
func NewTranspositionTable(sizeMB int) *TranspositionTable {
	size := optimalBucketSize(sizeMB)
	bytesPerBucket := int(size) * 16
	numBuckets := 1024
	if sizeMB > 0 {
		numBuckets = (sizeMB * 1024 * 1024) / bytesPerBucket
	}
	numBuckets = roundDownToPowerOf2(numBuckets)
	if numBuckets < 1 {
		numBuckets = 1
	}

	buckets := make([]*ttBucket, numBuckets)
	for i := range buckets {
		buckets[i] = newBucket(size)
	}
	return &TranspositionTable{
		buckets: buckets,
		mask:    uint64(numBuckets - 1),
		size:    size,
	}
}

func roundDownToPowerOf2(n int) int {
	if n < 1 {
		return 1
	}
	p := 1
	for p*2 <= n {
		p *= 2
	}
	return p
}

func (t *TranspositionTable) bucketIndex(hash uint64) uint64 { return hash & t.mask }

// Probe looks up hash and returns the stored entry, if any.
func (t *TranspositionTable) Probe(hash uint64) (Probed, bool) {
	return t.buckets[t.bucketIndex(hash)].probe(hash)
}

// Store records a search result for hash, tagging it with the table's
// current generation and the auxiliary flags in flags.
func (t *TranspositionTable) Store(hash uint64, m shogi.Move, score, eval int16, depth uint8, bound Bound, flags StoreFlags) {
	age := uint8(t.age.Load())
	data := packData(m, score, eval, depth, bound, age, flags)
	t.buckets[t.bucketIndex(hash)].store(hash, data, age)
}

// NewSearch advances the table's generation counter, so entries from prior
// searches lose replacement priority without needing to be cleared.
func (t *TranspositionTable) NewSearch() {
	t.age.Store((t.age.Load() + 1) & ageMask)
}

// Clear zeroes every entry and resets the generation counter.
func (t *TranspositionTable) Clear() {
	for _, b := range t.buckets {
		b.clear()
	}
	t.age.Store(0)
}

// HashFull estimates per-mille occupancy by sampling up to the first 1000
// buckets, cheap enough to call every few thousand nodes for USI "info"
// output without contending with search workers.
func (t *TranspositionTable) HashFull() int {
	sampleBuckets := len(t.buckets)
	if sampleBuckets > 1000 {
		sampleBuckets = 1000
	}
	if sampleBuckets < 1 {
		sampleBuckets = 1
	}
	filled, total := 0, 0
	for i := 0; i < sampleBuckets; i++ {
		b := t.buckets[i]
		for j := 0; j < b.entries(); j++ {
			total++
			if b.words[j*2].Load() != 0 {
				filled++
			}
		}
	}
	if total == 0 {
		return 0
	}
	return filled * 1000 / total
}

// Size returns the total number of entry slots across all buckets.
func (t *TranspositionTable) Size() int { return len(t.buckets) * int(t.size) }
