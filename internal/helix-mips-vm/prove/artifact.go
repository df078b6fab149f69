package prove

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fxamacker/cbor/v2"
)

// Artifact file names under the configured output location: one file per
// closed segment, indexed by segment sequence number, plus one aggregate.
const (
	AggregateFileName = "aggregate.proof"
	segmentFilePat    = "segment-%05d.proof"
)

// SegmentFileName returns the artifact file name for a segment index
func SegmentFileName(index int) string {
	return fmt.Sprintf(segmentFilePat, index)
}

// WriteSegmentProof persists one segment proof as CBOR
func WriteSegmentProof(dir string, p *SegmentProof) error {
	data, err := cbor.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding segment %d proof: %w", p.SegmentIndex, err)
	}
	path := filepath.Join(dir, SegmentFileName(p.SegmentIndex))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing segment %d proof: %w", p.SegmentIndex, err)
	}
	return nil
}

// ReadSegmentProof loads one segment proof artifact
func ReadSegmentProof(path string) (*SegmentProof, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading segment proof: %w", err)
	}
	var p SegmentProof
	if err := cbor.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decoding segment proof %s: %w", path, err)
	}
	return &p, nil
}

// EncodeAggregateProof serializes the aggregate proof to its CBOR wire form
func EncodeAggregateProof(agg *AggregateProof) ([]byte, error) {
	data, err := cbor.Marshal(agg)
	if err != nil {
		return nil, fmt.Errorf("encoding aggregate proof: %w", err)
	}
	return data, nil
}

// DecodeAggregateProof parses the CBOR wire form of an aggregate proof
func DecodeAggregateProof(data []byte) (*AggregateProof, error) {
	var agg AggregateProof
	if err := cbor.Unmarshal(data, &agg); err != nil {
		return nil, fmt.Errorf("decoding aggregate proof: %w", err)
	}
	return &agg, nil
}

// WriteAggregateProof persists the aggregate proof as CBOR
func WriteAggregateProof(dir string, agg *AggregateProof) error {
	data, err := cbor.Marshal(agg)
	if err != nil {
		return fmt.Errorf("encoding aggregate proof: %w", err)
	}
	path := filepath.Join(dir, AggregateFileName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing aggregate proof: %w", err)
	}
	return nil
}

// ReadAggregateProof loads an aggregate proof artifact
func ReadAggregateProof(path string) (*AggregateProof, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading aggregate proof: %w", err)
	}
	var agg AggregateProof
	if err := cbor.Unmarshal(data, &agg); err != nil {
		return nil, fmt.Errorf("decoding aggregate proof %s: %w", path, err)
	}
	return &agg, nil
}
