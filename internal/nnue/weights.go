package nnue

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/dustin/go-humanize"

	"github.com/komadai/shogi-engine/sfnnue/layers"
)

// Weight file framing:
//
//	magic   uint32  "SHNN"
//	version uint32
//	variant uint8   (NetworkVariant)
//	L1Bias  [L1Size]int16
//	L1Weights [HalfKPSize][L1Size]int16
//	L2 parameters (classic only): biases then scrambled weights, see
//	  sfnnue/layers.AffineTransform.ReadParameters
//	Out parameters: same framing
//
// A sidecar "<file>.json" carries quantization metadata and an xxhash64
// checksum of the binary payload, so a loader can detect a truncated or
// mismatched bundle before committing it to a running engine.
const (
	weightsMagic   uint32 = 0x53484E4E // "SHNN"
	weightsVersion uint32 = 1
)

// WeightsMetadata is the JSON sidecar written next to a weight file.
type WeightsMetadata struct {
	Version          uint32         `json:"version"`
	Variant          NetworkVariant `json:"variant"`
	WeightScaleBits  int            `json:"weight_scale_bits"`
	OutputScaleShift int            `json:"output_scale_shift"`
	OutputScale      int            `json:"output_scale"`
	Checksum         uint64         `json:"xxhash64"`
	SizeBytes        int64          `json:"size_bytes"`
}

func metadataPath(weightsFile string) string { return weightsFile + ".json" }

// LoadWeights reads a network from filename, verifying the sidecar
// checksum if present.
func (n *Network) LoadWeights(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("nnue: open weights file: %w", err)
	}
	if meta, err := readMetadata(filename); err == nil {
		if sum := xxhash.Sum64(data); sum != meta.Checksum {
			return fmt.Errorf("nnue: weights checksum mismatch: file has drifted from %s", metadataPath(filename))
		}
	}

	r := bytes.NewReader(data)
	var magic, version uint32
	var variant uint8
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return fmt.Errorf("nnue: read magic: %w", err)
	}
	if magic != weightsMagic {
		return fmt.Errorf("nnue: bad magic %x, want %x", magic, weightsMagic)
	}
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return fmt.Errorf("nnue: read version: %w", err)
	}
	if version != weightsVersion {
		return fmt.Errorf("nnue: unsupported weights version %d", version)
	}
	if err := binary.Read(r, binary.LittleEndian, &variant); err != nil {
		return fmt.Errorf("nnue: read variant: %w", err)
	}

	n.Variant = NetworkVariant(variant)
	if n.Variant == VariantSingleChannel {
		n.SingleOut = layers.NewAffineTransform(L1Size*2, OutputSize)
		n.L2, n.L2ReLU, n.Out = nil, nil, nil
	} else {
		n.L2 = layers.NewAffineTransform(L1Size*2, L2Size)
		n.L2ReLU = layers.NewClippedReLU(L2Size)
		n.Out = layers.NewAffineTransform(L2Size, OutputSize)
		n.SingleOut = nil
	}
	if err := binary.Read(r, binary.LittleEndian, &n.L1Bias); err != nil {
		return fmt.Errorf("nnue: read L1 bias: %w", err)
	}
	for i := range n.L1Weights {
		if err := binary.Read(r, binary.LittleEndian, &n.L1Weights[i]); err != nil {
			return fmt.Errorf("nnue: read L1 weights row %d: %w", i, err)
		}
	}

	if n.Variant == VariantSingleChannel {
		if err := n.SingleOut.ReadParameters(r); err != nil {
			return fmt.Errorf("nnue: read single-channel output layer: %w", err)
		}
		return nil
	}
	if err := n.L2.ReadParameters(r); err != nil {
		return fmt.Errorf("nnue: read L2 layer: %w", err)
	}
	if err := n.Out.ReadParameters(r); err != nil {
		return fmt.Errorf("nnue: read output layer: %w", err)
	}
	return nil
}

// SaveWeights writes n to filename along with its JSON metadata sidecar.
func (n *Network) SaveWeights(filename string) error {
	var buf bytes.Buffer
	w := io.Writer(&buf)
	if err := binary.Write(w, binary.LittleEndian, weightsMagic); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, weightsVersion); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint8(n.Variant)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, &n.L1Bias); err != nil {
		return err
	}
	for i := range n.L1Weights {
		if err := binary.Write(w, binary.LittleEndian, &n.L1Weights[i]); err != nil {
			return err
		}
	}

	if n.Variant == VariantSingleChannel {
		if err := writeAffineParameters(w, n.SingleOut); err != nil {
			return err
		}
	} else {
		if err := writeAffineParameters(w, n.L2); err != nil {
			return err
		}
		if err := writeAffineParameters(w, n.Out); err != nil {
			return err
		}
	}

	data := buf.Bytes()
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("nnue: write weights file: %w", err)
	}

	checksum := xxhash.Sum64(data)
	meta := WeightsMetadata{
		Version:          weightsVersion,
		Variant:          n.Variant,
		WeightScaleBits:  WeightScaleBits,
		OutputScaleShift: OutputScaleShift,
		OutputScale:      OutputScale,
		Checksum:         checksum,
		SizeBytes:        int64(len(data)),
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("nnue: marshal metadata: %w", err)
	}
	if err := os.WriteFile(metadataPath(filename), metaBytes, 0o644); err != nil {
		return fmt.Errorf("nnue: write metadata sidecar: %w", err)
	}
	log.Printf("nnue: wrote %s weights bundle, %s (checksum %x)", filename, humanize.Bytes(uint64(len(data))), checksum)
	return nil
}

func readMetadata(weightsFile string) (WeightsMetadata, error) {
	var meta WeightsMetadata
	data, err := os.ReadFile(metadataPath(weightsFile))
	if err != nil {
		return meta, err
	}
	err = json.Unmarshal(data, &meta)
	return meta, err
}

// writeAffineParameters serializes a layer's biases and weights back to
// the same scrambled-chunk-of-4 layout AffineTransform.ReadParameters
// expects, by inverting its (unexported, so independently replicated here)
// getWeightIndex permutation.
func writeAffineParameters(w io.Writer, layer *layers.AffineTransform) error {
	if err := binary.Write(w, binary.LittleEndian, layer.Biases); err != nil {
		return fmt.Errorf("write biases: %w", err)
	}
	padded := layer.PaddedInputDimensions
	outputDims := layer.OutputDimensions
	total := outputDims * padded
	raw := make([]int8, total)
	for i := 0; i < total; i++ {
		idx := scrambledWeightIndex(i, padded, outputDims)
		raw[i] = layer.Weights[idx]
	}
	if err := binary.Write(w, binary.LittleEndian, raw); err != nil {
		return fmt.Errorf("write weights: %w", err)
	}
	return nil
}

// scrambledWeightIndex mirrors AffineTransform.getWeightIndex exactly, so
// a file this package writes loads back byte-identical through
// AffineTransform.ReadParameters.
func scrambledWeightIndex(i, paddedInputDimensions, outputDimensions int) int {
	return (i/4)%(paddedInputDimensions/4)*outputDimensions*4 + i/paddedInputDimensions*4 + i%4
}
