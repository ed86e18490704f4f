// Package pcs runs the external Pacemaker/Corosync tools and parses their
// output.
//
// Commands are argument vectors executed directly with a timeout, never a
// shell string. A non-zero exit is returned as *ExitError with the captured
// stdout and stderr so callers can hand them back to the operator.
package pcs
