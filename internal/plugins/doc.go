// Package plugins defines the device plugin boundary: factories registered by
// id, devices built from an init string, and handles opened per hardware
// element.
package plugins
