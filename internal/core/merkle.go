package core

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"

	"github.com/hyp3rd/ewrap"

	"perfstore/internal/sentinel"
)

// Proof step sides. With SideLeft the sibling hash is on the left:
// H = sha256(sibling || current); with SideRight, H = sha256(current || sibling).
const (
	SideLeft  = "L"
	SideRight = "R"
)

// ProofStep is one step of a Merkle inclusion proof.
type ProofStep struct {
	Hash string `json:"hash"`
	Side string `json:"side"`
}

// merkleTree holds every level of the tree, level 0 being the leaves.
type merkleTree [][][]byte

// buildMerkleTree hashes pairs up to a single root. A level with an odd
// number of nodes pairs its last node with itself.
func buildMerkleTree(leaves [][]byte) (merkleTree, error) {
	if len(leaves) == 0 {
		return nil, ewrap.Wrap(sentinel.ErrInvalidArgument, "merkle tree without leaves")
	}

	level := make([][]byte, len(leaves))

	for i, leaf := range leaves {
		if len(leaf) == 0 {
			return nil, ewrap.Wrapf(sentinel.ErrInvalidArgument, "empty merkle leaf %d", i)
		}

		level[i] = bytes.Clone(leaf)
	}

	tree := merkleTree{level}

	for len(level) > 1 {
		next := make([][]byte, 0, (len(level)+1)/2)

		for i := 0; i < len(level); i += 2 {
			right := level[i]
			if i+1 < len(level) {
				right = level[i+1]
			}

			next = append(next, hashPair(level[i], right))
		}

		tree = append(tree, next)
		level = next
	}

	return tree, nil
}

func hashPair(left, right []byte) []byte {
	h := sha256.New()
	h.Write(left)
	h.Write(right)

	return h.Sum(nil)
}

func (t merkleTree) root() []byte {
	return t[len(t)-1][0]
}

// proof returns the inclusion proof of the leaf at index.
func (t merkleTree) proof(index int) ([]ProofStep, error) {
	if index < 0 || index >= len(t[0]) {
		return nil, ewrap.Wrapf(sentinel.ErrInvalidArgument, "leaf index %d out of range", index)
	}

	steps := make([]ProofStep, 0, len(t)-1)

	for _, nodes := range t[:len(t)-1] {
		sibling, side := index+1, SideRight
		if index%2 == 1 {
			sibling, side = index-1, SideLeft
		}

		if sibling >= len(nodes) {
			sibling = index
		}

		steps = append(steps, ProofStep{Hash: hex.EncodeToString(nodes[sibling]), Side: side})
		index /= 2
	}

	return steps, nil
}

// RootFromProof folds the proof over leaf and returns the implied root.
func RootFromProof(leaf []byte, proof []ProofStep) ([]byte, error) {
	if len(leaf) == 0 {
		return nil, ewrap.Wrap(sentinel.ErrInvalidArgument, "empty merkle leaf")
	}

	current := bytes.Clone(leaf)

	for i, step := range proof {
		sibling, err := hex.DecodeString(step.Hash)
		if err != nil {
			return nil, ewrap.Wrapf(sentinel.ErrInvalidArgument, "proof step %d: hash encoding", i)
		}

		switch step.Side {
		case SideLeft:
			current = hashPair(sibling, current)
		case SideRight:
			current = hashPair(current, sibling)
		default:
			return nil, ewrap.Wrapf(sentinel.ErrInvalidArgument, "proof step %d: side %q", i, step.Side)
		}
	}

	return current, nil
}

// VerifyProof reports whether leaf and proof lead to rootHex.
func VerifyProof(leaf []byte, proof []ProofStep, rootHex string) (bool, error) {
	root, err := hex.DecodeString(rootHex)
	if err != nil {
		return false, ewrap.Wrap(sentinel.ErrInvalidArgument, "root hash encoding")
	}

	computed, err := RootFromProof(leaf, proof)
	if err != nil {
		return false, err
	}

	return bytes.Equal(computed, root), nil
}
