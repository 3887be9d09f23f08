package policy

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
)

const checkpointVersion = 1

// State is everything needed to resume a policy: both networks, the optimizer
// moments, the replay memory, epsilon and the position in the random stream.
type State struct {
	Version   int          `json:"version"`
	Policy    *Network     `json:"policy"`
	Target    *Network     `json:"target"`
	Optimizer *Adam        `json:"optimizer"`
	Epsilon   float64      `json:"epsilon"`
	Memory    []Experience `json:"memory"`
	Seed      int64        `json:"seed"`
	Draws     uint64       `json:"draws"`
}

// Snapshot returns a deep copy of the current policy state
func (d *DQN) Snapshot() *State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot()
}

func (d *DQN) snapshot() *State {
	d.rngMu.Lock()
	draws := d.src.draws
	d.rngMu.Unlock()

	return &State{
		Version:   checkpointVersion,
		Policy:    d.policy.Clone(),
		Target:    d.target.Clone(),
		Optimizer: d.optimizer.clone(),
		Epsilon:   d.epsilon,
		Memory:    d.memory.Snapshot(),
		Seed:      d.seed,
		Draws:     draws,
	}
}

// Restore replaces the whole policy state. Nothing is changed when the state
// does not fit this policy's network shape.
func (d *DQN) Restore(state *State) error {
	if err := d.checkState(state); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.policy = state.Policy.Clone()
	d.target = state.Target.Clone()
	d.optimizer = state.Optimizer.clone()
	d.epsilon = state.Epsilon
	d.memory = NewReplayMemory(d.cfg.MemoryCapacity)
	d.memory.restore(state.Memory)

	d.rngMu.Lock()
	d.seed = state.Seed
	d.src = newCountingSource(state.Seed)
	d.src.advance(state.Draws)
	d.rng = rand.New(d.src)
	d.rngMu.Unlock()

	return nil
}

func (d *DQN) checkState(state *State) error {
	if state == nil {
		return fmt.Errorf("%w: empty state", ErrCheckpointMismatch)
	}
	if state.Version != checkpointVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrCheckpointMismatch, state.Version)
	}

	shape := shapeOf(d.cfg.layerSizes())
	if !shape.sameShape(state.Policy) || !shape.sameShape(state.Target) {
		return ErrCheckpointMismatch
	}
	if state.Optimizer == nil || !shape.sameShape(state.Optimizer.M) || !shape.sameShape(state.Optimizer.V) {
		return fmt.Errorf("%w: optimizer state", ErrCheckpointMismatch)
	}

	for _, e := range state.Memory {
		if len(e.State) != d.cfg.StateSize || len(e.NextState) != d.cfg.StateSize ||
			e.Action < 0 || e.Action >= d.cfg.ActionSize {
			return fmt.Errorf("%w: replay memory", ErrCheckpointMismatch)
		}
	}
	return nil
}

// MarshalState encodes a policy state for storage
func MarshalState(state *State) ([]byte, error) {
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode policy state: %w", err)
	}
	return data, nil
}

func UnmarshalState(data []byte) (*State, error) {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to decode policy state: %w", err)
	}
	return &state, nil
}

// Save writes the full policy state to path atomically
func (d *DQN) Save(path string) error {
	data, err := MarshalState(d.Snapshot())
	if err != nil {
		return err
	}
	if err := WriteStateFile(path, data); err != nil {
		return err
	}

	d.logger.Info().Str("path", path).Int("bytes", len(data)).Msg("policy checkpoint saved")
	return nil
}

// WriteStateFile atomically replaces path with an encoded state
func WriteStateFile(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp checkpoint: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move checkpoint into place: %w", err)
	}
	return nil
}

// Load restores the full policy state from path
func (d *DQN) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read checkpoint: %w", err)
	}

	state, err := UnmarshalState(data)
	if err != nil {
		return err
	}
	if err := d.Restore(state); err != nil {
		return err
	}

	d.logger.Info().Str("path", path).Float64("epsilon", state.Epsilon).Msg("policy checkpoint loaded")
	return nil
}
