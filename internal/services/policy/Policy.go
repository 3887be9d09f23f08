package policy

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"TradeMate/internal/logging"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/floats"
)

// Actions produced by the policy
const (
	ActionBuy  = 0
	ActionSell = 1
	ActionHold = 2
)

const (
	DefaultStateSize    = 10
	DefaultActionSize   = 3
	DefaultGamma        = 0.95
	DefaultBatchSize    = 32
	DefaultEpsilon      = 1.0
	DefaultEpsilonMin   = 0.01
	DefaultEpsilonDecay = 0.995
)

var (
	ErrInvalidState       = errors.New("invalid state vector")
	ErrInvalidAction      = errors.New("invalid action")
	ErrCheckpointMismatch = errors.New("checkpoint does not match network shape")
	ErrNonFiniteLoss      = errors.New("non-finite training loss")
)

type Config struct {
	StateSize      int
	HiddenSizes    []int
	ActionSize     int
	LearningRate   float64
	Gamma          float64
	BatchSize      int
	MemoryCapacity int
	Epsilon        float64
	EpsilonMin     float64
	EpsilonDecay   float64
	// Seed for weight init, exploration and replay sampling; 0 picks one from the clock
	Seed int64
}

func DefaultConfig() Config {
	return Config{
		StateSize:      DefaultStateSize,
		HiddenSizes:    []int{128, 64},
		ActionSize:     DefaultActionSize,
		LearningRate:   DefaultLearningRate,
		Gamma:          DefaultGamma,
		BatchSize:      DefaultBatchSize,
		MemoryCapacity: DefaultMemoryCapacity,
		Epsilon:        DefaultEpsilon,
		EpsilonMin:     DefaultEpsilonMin,
		EpsilonDecay:   DefaultEpsilonDecay,
	}
}

// withDefaults fills unset sizes and rates. Epsilon is left alone since 0 is a valid greedy setting.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StateSize <= 0 {
		c.StateSize = d.StateSize
	}
	if len(c.HiddenSizes) == 0 {
		c.HiddenSizes = d.HiddenSizes
	}
	if c.ActionSize <= 0 {
		c.ActionSize = d.ActionSize
	}
	if c.LearningRate <= 0 {
		c.LearningRate = d.LearningRate
	}
	if c.Gamma <= 0 {
		c.Gamma = d.Gamma
	}
	if c.BatchSize <= 0 {
		c.BatchSize = d.BatchSize
	}
	if c.MemoryCapacity <= 0 {
		c.MemoryCapacity = d.MemoryCapacity
	}
	if c.EpsilonDecay <= 0 {
		c.EpsilonDecay = d.EpsilonDecay
	}
	return c
}

func (c Config) layerSizes() []int {
	sizes := make([]int, 0, len(c.HiddenSizes)+2)
	sizes = append(sizes, c.StateSize)
	sizes = append(sizes, c.HiddenSizes...)
	return append(sizes, c.ActionSize)
}

// TrainStats describes the outcome of one Train call
type TrainStats struct {
	Trained    bool
	Loss       float64
	Epsilon    float64
	MemorySize int
}

// DQN is a deep Q-network policy with a target network and experience replay.
// It is safe for concurrent use.
type DQN struct {
	mu        sync.RWMutex
	cfg       Config
	policy    *Network
	target    *Network
	optimizer *Adam
	memory    *ReplayMemory
	epsilon   float64
	seed      int64

	rngMu sync.Mutex
	src   *countingSource
	rng   *rand.Rand

	logger zerolog.Logger
}

func New(cfg Config, logger zerolog.Logger) *DQN {
	cfg = cfg.withDefaults()
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	src := newCountingSource(seed)
	rng := rand.New(src)

	policy := NewNetwork(cfg.layerSizes(), rng)
	target := policy.Clone()

	return &DQN{
		cfg:       cfg,
		policy:    policy,
		target:    target,
		optimizer: NewAdam(policy, cfg.LearningRate),
		memory:    NewReplayMemory(cfg.MemoryCapacity),
		epsilon:   cfg.Epsilon,
		seed:      seed,
		src:       src,
		rng:       rng,
		logger:    logging.Component(logger, "policy"),
	}
}

// PredictAction picks an action epsilon-greedily. It never fails: any internal
// problem yields ActionHold.
func (d *DQN) PredictAction(state []float64) (action int) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Msg("policy prediction panicked, holding")
			action = ActionHold
		}
	}()

	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.validateState(state); err != nil {
		d.logger.Error().Err(err).Msg("policy prediction failed, holding")
		return ActionHold
	}

	if d.epsilon > 0 {
		d.rngMu.Lock()
		explore := d.rng.Float64() < d.epsilon
		var random int
		if explore {
			random = d.rng.Intn(d.cfg.ActionSize)
		}
		d.rngMu.Unlock()
		if explore {
			return random
		}
	}

	q, err := d.policy.Forward(state)
	if err != nil || !finite(q) {
		d.logger.Error().Err(err).Msg("policy network produced no usable output, holding")
		return ActionHold
	}
	return floats.MaxIdx(q)
}

// QValues returns the policy network output for state
func (d *DQN) QValues(state []float64) ([]float64, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if err := d.validateState(state); err != nil {
		return nil, err
	}
	return d.policy.Forward(state)
}

// Train records the transition and, once enough experience is stored, performs
// one minibatch update followed by a target sync and an epsilon decay.
func (d *DQN) Train(state []float64, action int, reward float64, nextState []float64) (TrainStats, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.validateState(state); err != nil {
		return TrainStats{}, err
	}
	if err := d.validateState(nextState); err != nil {
		return TrainStats{}, err
	}
	if action < 0 || action >= d.cfg.ActionSize {
		return TrainStats{}, fmt.Errorf("%w: %d", ErrInvalidAction, action)
	}
	if !finite([]float64{reward}) {
		return TrainStats{}, fmt.Errorf("%w: reward %v", ErrInvalidState, reward)
	}

	d.memory.Push(Experience{
		State:     append([]float64(nil), state...),
		Action:    action,
		Reward:    reward,
		NextState: append([]float64(nil), nextState...),
	})

	stats := TrainStats{Epsilon: d.epsilon, MemorySize: d.memory.Len()}
	if d.memory.Len() < d.cfg.BatchSize {
		return stats, nil
	}

	d.rngMu.Lock()
	batch := d.memory.Sample(d.cfg.BatchSize, d.rng)
	d.rngMu.Unlock()

	grads := d.policy.zeros()
	outGrad := make([]float64, d.cfg.ActionSize)
	scale := 2 / float64(len(batch))
	var loss float64

	for _, e := range batch {
		acts := d.policy.activations(e.State)
		q := acts[len(acts)-1]

		next, err := d.target.Forward(e.NextState)
		if err != nil {
			return stats, err
		}
		y := e.Reward + d.cfg.Gamma*floats.Max(next)
		diff := q[e.Action] - y
		loss += diff * diff

		for i := range outGrad {
			outGrad[i] = 0
		}
		outGrad[e.Action] = scale * diff
		d.policy.backward(acts, outGrad, grads)
	}
	loss /= float64(len(batch))

	if math.IsNaN(loss) || math.IsInf(loss, 0) {
		return stats, ErrNonFiniteLoss
	}

	d.optimizer.Apply(d.policy, grads)
	if err := d.target.CopyFrom(d.policy); err != nil {
		return stats, err
	}
	d.epsilon = math.Max(d.cfg.EpsilonMin, d.epsilon*d.cfg.EpsilonDecay)

	stats.Trained = true
	stats.Loss = loss
	stats.Epsilon = d.epsilon
	return stats, nil
}

func (d *DQN) Epsilon() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.epsilon
}

func (d *DQN) SetEpsilon(epsilon float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.epsilon = math.Min(1, math.Max(0, epsilon))
}

func (d *DQN) MemoryLen() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.memory.Len()
}

func (d *DQN) validateState(state []float64) error {
	if len(state) != d.cfg.StateSize {
		return fmt.Errorf("%w: expected %d values, got %d", ErrInvalidState, d.cfg.StateSize, len(state))
	}
	if !finite(state) {
		return fmt.Errorf("%w: non-finite values", ErrInvalidState)
	}
	return nil
}

func finite(values []float64) bool {
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// countingSource counts draws so a restored policy can resume the exact random stream
type countingSource struct {
	src   rand.Source64
	draws uint64
}

func newCountingSource(seed int64) *countingSource {
	return &countingSource{src: rand.NewSource(seed).(rand.Source64)}
}

func (s *countingSource) Int63() int64 {
	s.draws++
	return s.src.Int63()
}

func (s *countingSource) Uint64() uint64 {
	s.draws++
	return s.src.Uint64()
}

func (s *countingSource) Seed(seed int64) {
	s.src.Seed(seed)
	s.draws = 0
}

func (s *countingSource) advance(n uint64) {
	for i := uint64(0); i < n; i++ {
		s.Uint64()
	}
}
