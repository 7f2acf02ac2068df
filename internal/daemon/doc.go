// Package daemon wires the display registry, the animation gate and the
// screenshot tracker into the engine that extanimd serves.
package daemon
