// Package tomo defines the tilt-series domain objects handled by the fiducial pipeline:
// tilt images, tilt-series and the streamable sets that group them.
package tomo
