// Package event defines the typed messages peers exchange. Each event is
// encoded with the serial buffer and travels as one transport frame whose
// type tag is the event's Type.
package event
