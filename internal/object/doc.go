// Package object models the hierarchy of power objects.
//
// An Object resolves attributes locally from device handles and local
// children. A DistObject adds remote resolution: attributes whose AttrInfo
// carries a CommHandler are forwarded as one CommRequest per call, while the
// rest resolve synchronously.
package object
