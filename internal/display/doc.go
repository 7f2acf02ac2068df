// Package display classifies display handles into built-in, pluggable and
// virtual categories and tracks the displays currently known to the compositor.
package display
