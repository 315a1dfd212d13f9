// Package dice rolls NdS±M formulas for ability checks, attacks and damage.
package dice

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// Limits on a single formula.
const (
	MaxDice  = 100
	MaxSides = 1000
)

// ErrBadFormula is returned for anything that is not NdS with an optional ±M.
var ErrBadFormula = errors.New("bad formula")

var formulaRE = regexp.MustCompile(`^(\d+)d(\d+)([+-]\d+)?$`)

// Result is one evaluated roll.
type Result struct {
	Formula string `json:"formula"`
	Rolls   []int  `json:"rolls"`
	Mod     int    `json:"mod"`
	Total   int    `json:"total"`
}

// Roller evaluates formulas against its own random source.
type Roller struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRoller returns a roller seeded from the runtime.
func NewRoller() *Roller {
	return &Roller{rng: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

// NewSeededRoller returns a deterministic roller.
func NewSeededRoller(seed1, seed2 uint64) *Roller {
	return &Roller{rng: rand.New(rand.NewPCG(seed1, seed2))}
}

var defaultRoller = NewRoller()

// Roll evaluates formula with the package roller.
func Roll(formula string) (Result, error) {
	return defaultRoller.Roll(formula)
}

// Roll evaluates formula. Spaces are ignored; "d" is lowercase only.
func (r *Roller) Roll(formula string) (Result, error) {
	n, sides, mod, err := Parse(formula)
	if err != nil {
		return Result{}, err
	}

	rolls := make([]int, n)
	total := mod
	r.mu.Lock()
	for i := range rolls {
		rolls[i] = r.rng.IntN(sides) + 1
		total += rolls[i]
	}
	r.mu.Unlock()

	return Result{Formula: strings.ReplaceAll(formula, " ", ""), Rolls: rolls, Mod: mod, Total: total}, nil
}

// Parse splits formula into dice count, sides and modifier.
func Parse(formula string) (n, sides, mod int, err error) {
	m := formulaRE.FindStringSubmatch(strings.ReplaceAll(formula, " ", ""))
	if m == nil {
		return 0, 0, 0, fmt.Errorf("%w: %q", ErrBadFormula, formula)
	}
	n, _ = strconv.Atoi(m[1])
	sides, _ = strconv.Atoi(m[2])
	if m[3] != "" {
		mod, err = strconv.Atoi(m[3])
		if err != nil {
			return 0, 0, 0, fmt.Errorf("%w: modifier %q", ErrBadFormula, m[3])
		}
	}
	if n < 1 || n > MaxDice {
		return 0, 0, 0, fmt.Errorf("%w: dice count must be 1-%d", ErrBadFormula, MaxDice)
	}
	if sides < 1 || sides > MaxSides {
		return 0, 0, 0, fmt.Errorf("%w: sides must be 1-%d", ErrBadFormula, MaxSides)
	}
	return n, sides, mod, nil
}
