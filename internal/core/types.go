package core

import (
	"perfstore/internal/compress"
)

// RunStatus is the completion state reported for a run.
type RunStatus string

const (
	StatusUnknown    RunStatus = "UNKNOWN"
	StatusIncomplete RunStatus = "INCOMPLETE"
	StatusComplete   RunStatus = "COMPLETE"
	StatusFailed     RunStatus = "FAILED"
)

// Valid reports whether s is one of the known statuses.
func (s RunStatus) Valid() bool {
	switch s {
	case StatusUnknown, StatusIncomplete, StatusComplete, StatusFailed:
		return true
	default:
		return false
	}
}

// Case is a named performance test. Names are unique.
type Case struct {
	ID          int64  `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"uniqueIndex;not null" json:"name"`
	Description string `json:"description"`
	Created     int64  `json:"created"`
}

// Run is one execution of a case.
type Run struct {
	ID        int64     `gorm:"primaryKey" json:"id"`
	CaseID    int64     `gorm:"index;not null" json:"caseID"`
	Version   string    `json:"version"`
	ClassName string    `json:"className"`
	Checksum  string    `json:"checksum"`
	Status    RunStatus `gorm:"default:UNKNOWN" json:"status"`
	Baseline  bool      `json:"baseline"`
	Created   int64     `json:"created"`
}

// Job is one load-generating client of a run.
type Job struct {
	ID           int64  `gorm:"primaryKey" json:"id"`
	RunID        int64  `gorm:"index;not null" json:"runID"`
	ClientNumber int    `json:"clientNumber"`
	Host         string `json:"host"`
	SymbolicName string `json:"symbolicName"`
	Details      string `json:"details"`
	Created      int64  `json:"created"`
}

// Blob locates a stored payload.
type Blob struct {
	Format         compress.Format `json:"format"`
	OriginalLength int             `json:"originalLength"`
	Size           int64           `json:"size"`
	StoragePath    string          `json:"storagePath"`
}

// Anchor is the integrity record of an output payload: the sha256 of the
// decoded log and its inclusion proof in a ledger-anchored Merkle root.
type Anchor struct {
	FileHash   string      `json:"fileHash"`
	MerkleRoot string      `json:"merkleRoot,omitempty"`
	TxID       string      `json:"txID,omitempty"`
	LeafIndex  int         `json:"leafIndex"`
	BatchSize  int         `json:"batchSize"`
	Proof      []ProofStep `gorm:"serializer:json" json:"proof,omitempty"`
}

// Anchored reports whether a ledger root was recorded.
func (a Anchor) Anchored() bool {
	return a.MerkleRoot != ""
}

// OutputLog is the HDR log of one operation recorded by one job.
type OutputLog struct {
	ID        int64  `gorm:"primaryKey" json:"id"`
	JobID     int64  `gorm:"index;not null" json:"jobID"`
	RunID     int64  `gorm:"index;not null" json:"runID"`
	Operation string `gorm:"index;not null" json:"operation"`
	Blob      `gorm:"embedded"`
	Anchor    `gorm:"embedded;embeddedPrefix:anchor_"`
	Created   int64 `json:"created"`
}

// MonitorLog is a host statistics log attached to a run.
type MonitorLog struct {
	ID      int64  `gorm:"primaryKey" json:"id"`
	RunID   int64  `gorm:"index;not null" json:"runID"`
	Host    string `json:"host"`
	Type    string `json:"type"`
	Blob    `gorm:"embedded"`
	Created int64 `json:"created"`
}

// SummaryKey identifies a cached chart document: either one output log, or
// one operation of a run aggregated over all its output logs.
type SummaryKey struct {
	RunID     int64
	OutputID  int64
	Operation string
}

// Verification is the result of re-checking a stored output against its anchor.
type Verification struct {
	OutputID    int64  `json:"outputID"`
	FileHash    string `json:"fileHash"`
	ActualHash  string `json:"actualHash"`
	MerkleRoot  string `json:"merkleRoot"`
	TxID        string `json:"txID"`
	HashMatches bool   `json:"hashMatches"`
	ProofValid  bool   `json:"proofValid"`
}

// Valid reports whether both the payload hash and the proof check out.
func (v *Verification) Valid() bool {
	return v.HashMatches && v.ProofValid
}
