package rl

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"TradeMind/internal/domain/models"
)

var (
	ErrInvalidReward = errors.New("reward must be a finite number")
	ErrInvalidAction = errors.New("invalid action")
)

// Config holds the learning hyper-parameters.
type Config struct {
	LearningRate     float64
	DiscountFactor   float64
	ExplorationRate  float64
	ExplorationDecay float64
	MinExploration   float64
	Seed             int64 // zero seeds from the clock
}

func DefaultConfig() Config {
	return Config{
		LearningRate:     0.1,
		DiscountFactor:   0.95,
		ExplorationRate:  0.1,
		ExplorationDecay: 0.995,
		MinExploration:   0.01,
	}
}

// Agent owns the Q-table and performs epsilon-greedy selection and
// Q-learning updates. It is safe for concurrent use.
type Agent struct {
	cfg Config

	mu      sync.Mutex
	q       models.QTable
	epsilon float64
	rng     *rand.Rand
}

func NewAgent(cfg Config) *Agent {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Agent{
		cfg:     cfg,
		q:       make(models.QTable),
		epsilon: clamp01(cfg.ExplorationRate),
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// SelectAction visits state and picks an action. Exploration only happens
// in training mode.
func (a *Agent) SelectAction(s State, training bool) models.Action {
	key := s.Key()

	a.mu.Lock()
	defer a.mu.Unlock()

	values := a.visitLocked(key)
	if training && a.rng.Float64() < a.epsilon {
		return models.AllActions[a.rng.Intn(models.NumActions)]
	}
	return argmax(values)
}

// Explore visits state and picks an action using the caller's exploration
// rate and random source. The agent's own schedule is left alone, so offline
// replay can explore harder than live trading. rng must not be shared
// between goroutines.
func (a *Agent) Explore(s State, epsilon float64, rng *rand.Rand) models.Action {
	key := s.Key()
	a.mu.Lock()
	values := a.visitLocked(key)
	a.mu.Unlock()

	if rng.Float64() < epsilon {
		return models.AllActions[rng.Intn(models.NumActions)]
	}
	return argmax(values)
}

// BestAction returns the greedy action and its value without visiting.
func (a *Agent) BestAction(s State) (models.Action, float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	values := a.q[s.Key()]
	best := argmax(values)
	return best, values[best]
}

// UpdateQValue applies Q(s,a) += lr * (r + gamma * max Q(s',.) - Q(s,a)).
// The bootstrap term is zero on terminal transitions, which also decay the
// exploration rate toward its floor.
func (a *Agent) UpdateQValue(s State, action models.Action, reward float64, next State, done bool) error {
	return a.update(s, action, reward, next, done, true)
}

// ReplayUpdate applies the same update without decaying the exploration
// rate on terminal transitions.
func (a *Agent) ReplayUpdate(s State, action models.Action, reward float64, next State, done bool) error {
	return a.update(s, action, reward, next, done, false)
}

func (a *Agent) update(s State, action models.Action, reward float64, next State, done, decay bool) error {
	if !action.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidAction, int(action))
	}
	if math.IsNaN(reward) || math.IsInf(reward, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidReward, reward)
	}
	key := s.Key()

	a.mu.Lock()
	defer a.mu.Unlock()

	values := a.visitLocked(key)
	maxNext := 0.0
	if !done {
		nv := a.visitLocked(next.Key())
		maxNext = nv[argmax(nv)]
	}

	current := values[action]
	updated := current + a.cfg.LearningRate*(reward+a.cfg.DiscountFactor*maxNext-current)
	if math.IsNaN(updated) || math.IsInf(updated, 0) {
		return fmt.Errorf("q update for %s/%s diverged: %v", key, action, updated)
	}
	values[action] = updated
	a.q[key] = values

	if done && decay {
		a.epsilon = math.Max(a.cfg.MinExploration, a.epsilon*a.cfg.ExplorationDecay)
	}
	return nil
}

// Confidence maps Q(s,a) through the logistic sigmoid. Unseen pairs are 0.5.
func (a *Agent) Confidence(s State, action models.Action) float64 {
	if !action.Valid() {
		return 0.5
	}
	a.mu.Lock()
	values, ok := a.q[s.Key()]
	a.mu.Unlock()
	if !ok {
		return 0.5
	}
	return sigmoid(values[action])
}

// Visit creates a zero entry for s if needed and reports whether it did.
func (a *Agent) Visit(s State) bool {
	key := s.Key()
	a.mu.Lock()
	defer a.mu.Unlock()
	_, seen := a.q[key]
	a.visitLocked(key)
	return !seen
}

// Values returns the stored action values for s.
func (a *Agent) Values(s State) (models.ActionValues, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, ok := a.q[s.Key()]
	return v, ok
}

func (a *Agent) ExplorationRate() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.epsilon
}

func (a *Agent) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.q)
}

// Snapshot returns a deep copy of the table and the current epsilon.
func (a *Agent) Snapshot() (models.QTable, float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.q.Clone(), a.epsilon
}

// Restore replaces the table and epsilon wholesale.
func (a *Agent) Restore(q models.QTable, epsilon float64) {
	if q == nil {
		q = make(models.QTable)
	}
	a.mu.Lock()
	a.q = q.Clone()
	a.epsilon = clamp01(epsilon)
	a.mu.Unlock()
}

// Reset drops everything learned and restores the configured epsilon.
func (a *Agent) Reset() {
	a.Restore(nil, a.cfg.ExplorationRate)
}

func (a *Agent) visitLocked(key string) models.ActionValues {
	v, ok := a.q[key]
	if !ok {
		a.q[key] = v
	}
	return v
}

// argmax resolves ties to the earliest action in enumeration order.
func argmax(v models.ActionValues) models.Action {
	best := models.AllActions[0]
	for _, act := range models.AllActions[1:] {
		if v[act] > v[best] {
			best = act
		}
	}
	return best
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
