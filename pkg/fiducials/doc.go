// Package fiducials detects gold fiducials in tilt-series and erases them.
//
// Each tilt-series goes through a chain of three steps: unstack, predict and erase, then
// register. Chains of different tilt-series are independent and joined only by a final
// step that closes the output collections. In batch mode every chain is submitted up
// front; in streaming mode a poller submits chains as new tilt-series show up in the input.
//
// A tilt-series that cannot be processed is recorded as failed and registered, with its
// original images, in the failed output collection. Its siblings are not affected.
package fiducials
