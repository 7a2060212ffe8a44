// Package config loads the settings of a run from the environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
)

const prefix = "fidder"

// Environment contains the imported environment variables.
type Environment struct {
	// Debug vs Deploy
	Mode string `default:"dev"`
	// JSON manifest of the input tilt-series
	InputManifest string `required:"true" split_words:"true"`
	// Directory holding tmp, extra and the journals
	WorkDir string `default:"./fidder-run" split_words:"true"`
	// Fiducial probability threshold, in (0, 1]
	ProbThreshold float64 `default:"0.5" split_words:"true"`
	// Erase the fiducials in the odd/even tilt-series
	DoEvenOdd bool `default:"false" split_words:"true"`
	// Save the fiducial-segmented stack
	SaveMaskStack bool `default:"false" split_words:"true"`
	// GPU ids, such as "0 1" or "0,1"
	GPUList string `default:"0" envconfig:"GPU_LIST"`
	// Maximum number of steps running at the same time
	Parallelism int `default:"2"`
	// Keep polling the input manifest until it is closed
	Streaming bool `default:"false"`
	// Interval between two polls of the input manifest
	PollIntervalSec int `default:"10" split_words:"true"`
	// fidder executable
	FidderBin string `default:"fidder" split_words:"true"`
	// Command run before fidder, such as a conda activation
	FidderActivation string `split_words:"true"`
	// Prepended to LD_LIBRARY_PATH of the fidder process
	CudaLib string `split_words:"true"`
	// Address of the status endpoint, disabled when empty
	StatusAddr string `split_words:"true"`
	// DOT file written with the step graph at the end of the run, disabled when empty
	GraphFile string `split_words:"true"`
	// Replay the journals of a previous run
	Resume bool `default:"true"`
}

func (e Environment) String() string {
	settings, err := json.MarshalIndent(e, "", "    ")
	if err != nil {
		return fmt.Errorf("Failed to marshal env: %v", err).Error()
	}
	return fmt.Sprintf("Environment Settings:\n%s\n", string(settings))
}

// PollInterval returns the poll interval as a duration.
func (e Environment) PollInterval() time.Duration {
	return time.Duration(e.PollIntervalSec) * time.Second
}

// Load imports the environment variables and returns them in an Environment.
func Load(envFile string) (*Environment, error) {
	testEnv := os.Getenv("FIDDER_MODE")
	// if the mode is not set in the existing environment, load it from the env file,
	// otherwise just check the host environment
	if testEnv == "" {
		err := godotenv.Load(envFile)
		if err != nil {
			return nil, errors.Wrapf(err, "Error loading %s file", envFile)
		}
	}

	var env Environment
	err := envconfig.Process(prefix, &env)
	if err != nil {
		return nil, errors.Wrap(err, "Error processing environment config")
	}
	return &env, nil
}
