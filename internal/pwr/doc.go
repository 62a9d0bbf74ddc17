// Package pwr holds the shared vocabulary of the power API: attribute names,
// object types, value-combination operators, timestamps, and result codes.
package pwr
