// Package request tracks fan-out operations until every remote part has
// answered.
//
// A Request is the caller-visible handle. Each remote exchange inside it is
// a CommRequest; the Request is complete when its pending count of
// unfinished CommRequests reaches zero. Per-attribute failures accumulate in
// the Request's Status.
package request
