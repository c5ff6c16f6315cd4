package nnue

import (
	"bytes"
	"encoding/binary"
	"math/rand"

	"github.com/komadai/shogi-engine/internal/shogi"
	"github.com/komadai/shogi-engine/sfnnue/layers"
)

// NetworkVariant tags which of the two quantized architectures a weight
// file/Network holds: Classic is the full three-layer network, Single is a
// single-channel network that skips the L2 hidden layer entirely (a
// smaller, faster net intended for low-resource time controls).
type NetworkVariant uint8

const (
	VariantClassic NetworkVariant = iota
	VariantSingleChannel
)

// Network holds the full set of quantized weights. Layer 1 (the feature
// transformer) is a custom sparse table since only a handful of its rows
// are active in any position; layers 2 and output reuse the dense
// scrambled-layout affine transform this module shares with sfnnue.
type Network struct {
	Variant NetworkVariant

	L1Weights [HalfKPSize][L1Size]int16
	L1Bias    [L1Size]int16

	// Populated when Variant == VariantClassic.
	L2     *layers.AffineTransform
	L2ReLU *layers.ClippedReLU
	Out    *layers.AffineTransform

	// Populated when Variant == VariantSingleChannel.
	SingleOut *layers.AffineTransform
}

// NewNetwork allocates a classic three-layer network with zero weights;
// callers must load or randomize weights before evaluating.
func NewNetwork() *Network { return NewNetworkVariant(VariantClassic) }

// NewNetworkVariant allocates the layer set for the requested architecture.
func NewNetworkVariant(v NetworkVariant) *Network {
	n := &Network{Variant: v}
	switch v {
	case VariantSingleChannel:
		n.SingleOut = layers.NewAffineTransform(L1Size*2, OutputSize)
	default:
		n.L2 = layers.NewAffineTransform(L1Size*2, L2Size)
		n.L2ReLU = layers.NewClippedReLU(L2Size)
		n.Out = layers.NewAffineTransform(L2Size, OutputSize)
	}
	return n
}

// Forward computes the network's evaluation in centipawns from sideToMove's
// perspective.
func (n *Network) Forward(acc *Accumulator, sideToMove shogi.Color) int {
	var stm, nstm *[L1Size]int16
	if sideToMove == shogi.Black {
		stm, nstm = &acc.Black, &acc.White
	} else {
		stm, nstm = &acc.White, &acc.Black
	}

	var l1Out [L1Size * 2]uint8
	for i := 0; i < L1Size; i++ {
		l1Out[i] = ClampedReLU16(stm[i])
		l1Out[L1Size+i] = ClampedReLU16(nstm[i])
	}

	outRaw := make([]int32, OutputSize)
	if n.Variant == VariantSingleChannel {
		n.SingleOut.Propagate(l1Out[:], outRaw)
		return int((int64(outRaw[0]) * OutputScale) >> OutputScaleShift)
	}

	l2Raw := make([]int32, L2Size)
	n.L2.Propagate(l1Out[:], l2Raw)
	l2Out := make([]uint8, L2Size)
	n.L2ReLU.Propagate(l2Raw, l2Out)
	n.Out.Propagate(l2Out, outRaw)

	return int((int64(outRaw[0]) * OutputScale) >> OutputScaleShift)
}

// InitRandom seeds the network with small deterministic pseudo-random
// weights, for tests and for running without a trained weight file. The
// dense layers are seeded by feeding pseudo-random bytes through the same
// ReadParameters path a real weight file uses, so the scrambled SIMD
// layout is exercised identically in both cases.
func (n *Network) InitRandom(seed int64) {
	rng := rand.New(rand.NewSource(seed))

	for i := range n.L1Weights {
		for j := range n.L1Weights[i] {
			n.L1Weights[i][j] = int16(rng.Intn(9) - 4)
		}
	}
	for i := range n.L1Bias {
		n.L1Bias[i] = int16(rng.Intn(33) - 16)
	}

	mustRead := func(layer *layers.AffineTransform) {
		var buf bytes.Buffer
		for i := 0; i < layer.OutputDimensions; i++ {
			binary.Write(&buf, binary.LittleEndian, int32(rng.Intn(201)-100))
		}
		total := layer.OutputDimensions * layer.PaddedInputDimensions
		for i := 0; i < total; i++ {
			buf.WriteByte(byte(rng.Intn(256) - 128))
		}
		if err := layer.ReadParameters(&buf); err != nil {
			panic("nnue: in-memory random weight stream rejected: " + err.Error())
		}
	}
	if n.Variant == VariantSingleChannel {
		mustRead(n.SingleOut)
		return
	}
	mustRead(n.L2)
	mustRead(n.Out)
}
