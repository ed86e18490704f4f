/*
Package rpc is the client side of pcsd's node-to-node protocol.

Every call is a single HTTPS request to https://<node>:2224/remote/<command>,
GET for reads and POST for mutations, carrying the peer token both as a
bearer header and as the "token" cookie. Node certificates are self-signed
and are not verified.

A call either succeeds or returns an *Error whose Kind tells an unreachable
node (connection refused, timeout, TLS failure, other transport errors) apart
from a node that answered with an HTTP error. In the latter case the response
is returned as well so it can be relayed.
*/
package rpc
