// Package pipeline runs a graph of steps.
//
// Each step is a function tagged with the resources it needs and the steps it depends on.
// A step starts as soon as all its prerequisites are done, so independent chains of work run
// side by side. The pipeline limits how many steps run at the same time, and hands out GPU
// devices to the steps tagged with one.
//
// Steps can submit new steps while the pipeline runs. A step that watches an input for new
// work keeps the pipeline alive until it returns, and every step it submitted is waited for.
//
// A failing step does not stop the pipeline: the steps depending on it are skipped and its
// error is returned by Run, together with the errors of the other failed steps.
//
// Options implementing model.PipelineOption follow the life of every step. The measure
// package records durations and the drawer package exports the graph as a DOT file.
package pipeline
