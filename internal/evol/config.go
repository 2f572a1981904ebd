package evol

import (
	"errors"
	"fmt"
	"runtime"
	"time"
)

var ErrInvalidConfig = errors.New("evol: invalid config")

// Config drives one engine run. Zero values of the optional limits disable
// them; at least one termination criterion must remain.
type Config struct {
	PopulationSize int `yaml:"populationSize" json:"populationSize"`
	// Offspring is the number of recombination slots per generation.
	Offspring int `yaml:"offspring" json:"offspring"`
	// Ancestors bounds the queue of evicted members kept for duplicate checks.
	Ancestors int `yaml:"ancestors" json:"ancestors"`
	// Neighbors is how many nearest members define a member's diversity.
	Neighbors     int     `yaml:"neighbors" json:"neighbors"`
	FitnessWeight float64 `yaml:"fitnessWeight" json:"fitnessWeight"`
	ParentDice    int     `yaml:"parentDice" json:"parentDice"`
	MateDice      int     `yaml:"mateDice" json:"mateDice"`
	MutationRate  float64 `yaml:"mutationRate" json:"mutationRate"`

	MaxGenerations int           `yaml:"maxGenerations" json:"maxGenerations"`
	TimeLimit      time.Duration `yaml:"timeLimit" json:"timeLimit"`
	// StallGenerations and StallPeriod stop a run whose best cost has not
	// improved by MinImprovement for that many generations or that long.
	// StallPeriod is wall-clock and only applies to unseeded runs.
	StallGenerations int           `yaml:"stallGenerations" json:"stallGenerations"`
	StallPeriod      time.Duration `yaml:"stallPeriod" json:"stallPeriod"`
	MinImprovement   float64       `yaml:"minImprovement" json:"minImprovement"`

	// Workers limits parallel offspring production; 0 means GOMAXPROCS.
	Workers int `yaml:"workers" json:"workers"`
	// Seed fixes the random stream. Nil draws one from the system.
	Seed *uint64 `yaml:"seed,omitempty" json:"seed,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		PopulationSize:   200,
		Offspring:        10,
		Ancestors:        40,
		Neighbors:        5,
		FitnessWeight:    0.8,
		ParentDice:       1,
		MateDice:         3,
		MutationRate:     0.5,
		MaxGenerations:   10000,
		StallGenerations: 2000,
		StallPeriod:      3 * time.Second,
		MinImprovement:   0.01,
	}
}

func (c Config) Validate() error {
	switch {
	case c.PopulationSize < 2:
		return fmt.Errorf("%w: populationSize %d < 2", ErrInvalidConfig, c.PopulationSize)
	case c.Offspring < 1:
		return fmt.Errorf("%w: offspring %d < 1", ErrInvalidConfig, c.Offspring)
	case c.Offspring >= 1<<16:
		return fmt.Errorf("%w: offspring %d too large", ErrInvalidConfig, c.Offspring)
	case c.Ancestors < 0:
		return fmt.Errorf("%w: ancestors %d < 0", ErrInvalidConfig, c.Ancestors)
	case c.Neighbors < 1:
		return fmt.Errorf("%w: neighbors %d < 1", ErrInvalidConfig, c.Neighbors)
	case c.FitnessWeight < 0 || c.FitnessWeight > 1:
		return fmt.Errorf("%w: fitnessWeight %g outside [0,1]", ErrInvalidConfig, c.FitnessWeight)
	case c.ParentDice < 1 || c.MateDice < 1:
		return fmt.Errorf("%w: dice must be >= 1", ErrInvalidConfig)
	case c.MutationRate < 0 || c.MutationRate > 1:
		return fmt.Errorf("%w: mutationRate %g outside [0,1]", ErrInvalidConfig, c.MutationRate)
	case c.MaxGenerations < 0 || c.StallGenerations < 0 || c.TimeLimit < 0 || c.StallPeriod < 0:
		return fmt.Errorf("%w: negative limit", ErrInvalidConfig)
	case c.MinImprovement < 0:
		return fmt.Errorf("%w: minImprovement %g < 0", ErrInvalidConfig, c.MinImprovement)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers %d < 0", ErrInvalidConfig, c.Workers)
	case c.MaxGenerations == 0 && c.TimeLimit == 0 && c.StallGenerations == 0 && c.stallPeriod() == 0:
		return fmt.Errorf("%w: no termination criterion", ErrInvalidConfig)
	}
	return nil
}

// Reproducible reports whether two runs with this config return the same
// result: the seed is fixed and no wall-clock limit can end the run.
func (c Config) Reproducible() bool {
	return c.Seed != nil && c.TimeLimit == 0
}

func (c Config) stallPeriod() time.Duration {
	if c.Seed != nil {
		return 0
	}
	return c.StallPeriod
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}
