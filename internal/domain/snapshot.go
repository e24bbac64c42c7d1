package domain

import "time"

// Snapshot is an immutable copy of the full symbol mapping.
type Snapshot struct {
	Seq       uint64            `json:"seq" yaml:"seq"`
	SessionID string            `json:"session_id" yaml:"session_id"`
	Timestamp time.Time         `json:"timestamp" yaml:"timestamp"`
	Symbols   map[string]Symbol `json:"symbols" yaml:"symbols"`
}

// Before orders snapshots by timestamp, ties broken by sequence number.
func (s Snapshot) Before(o Snapshot) bool {
	if !s.Timestamp.Equal(o.Timestamp) {
		return s.Timestamp.Before(o.Timestamp)
	}
	return s.Seq < o.Seq
}

// GraphDocument is the persisted form of the Memory Graph.
type GraphDocument struct {
	FormatVersion int                  `json:"format_version" yaml:"format_version"`
	Dimension     int                  `json:"dimension" yaml:"dimension"`
	Symbols       map[string]Symbol    `json:"symbols" yaml:"symbols"`
	Embeddings    map[string][]float32 `json:"embeddings,omitempty" yaml:"embeddings,omitempty"`
	Snapshots     []Snapshot           `json:"snapshots" yaml:"snapshots"`
}

const GraphFormatVersion = 1

// SymbolVersion is one entry of a symbol's history across snapshots.
type SymbolVersion struct {
	SnapshotSeq uint64    `json:"snapshot_seq"`
	SessionID   string    `json:"session_id"`
	Timestamp   time.Time `json:"timestamp"`
	Symbol      Symbol    `json:"symbol"`
}
