// Package aggregator collects the status of many nodes concurrently and
// merges the answers into one types.AggregateStatus.
//
// Each node is queried once with the "status" remote command through a
// bounded worker pool. A node that cannot be reached, answers with an HTTP
// error, or returns something that is not a status report gets an error
// marker instead of a report; the aggregate itself never fails. Every
// requested node is present in the result.
package aggregator
