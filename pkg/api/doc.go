/*
Package api serves pcsd's HTTP surface: the remote command dispatcher used by
other nodes and the console, browser login, cluster registry management and
the health and metrics endpoints.

# Remote Commands

Every call to /remote/<command> is turned into a Request and handed to the
Dispatcher, which does not depend on gin:

	Received ─▶ Authenticated ─▶ Routed ─┬─▶ Local (pcs, crm_mon, ...)
	                                     ├─▶ Aggregation (status_all)
	                                     └─▶ Passthrough (node=<other>)

The auth command is the only one served without a token. Other commands need
a token, sent as "Authorization: Bearer <token>" or in the "token" cookie, or
a browser session. API callers that fail get 401 {"notauthorized":"true"};
callers that accept text/html are redirected to /login.

Commands that change cluster state must be sent with POST, and so must auth;
password endpoints are throttled per client. Values passed on to pcs may not
start with "-". A "node"
parameter naming another node relays the command there and returns that
node's status code and body unchanged; when the node cannot be reached the
answer is 502 with the failure reason.

Local tool results use the historical pcsd bodies:

	200 {"success":"true","stdout":"..."}
	400 {"error":"true","stdout":"...","stderror":"..."}

# HTTP Routes

	GET|POST /remote/:command
	GET|POST /login, GET /logout
	GET      /manage/clusters
	POST     /manage/clusters          name, nodes
	POST     /manage/clusters/remove   name
	GET      /manage/auth
	POST     /manage/auth              nodes, username, password
	POST     /manage/auth/remove       nodes
	GET      /health, /ready, /live, /metrics
*/
package api
