// Package dbus carries the daemon's traffic over D-Bus.
//
// It has three parts: a client for the vendor display-config service
// (display-index negotiation and the animating capability), a proxy that
// forwards refresh requests to the compositor, and the exported
// io.github.jmylchreest.ExtAnim1 service through which the compositor reports
// transactions, composed frames and hotplug events.
package dbus
