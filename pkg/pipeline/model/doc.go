// Package model provides the data structures shared by the pipeline package and its options.
// It defines the steps of the pipeline, the interface used to submit them,
// and the hooks that options implement to follow the life of each step.
package model
