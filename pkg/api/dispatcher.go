package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/cuemby/pcsd/pkg/aggregator"
	"github.com/cuemby/pcsd/pkg/auth"
	"github.com/cuemby/pcsd/pkg/events"
	"github.com/cuemby/pcsd/pkg/log"
	"github.com/cuemby/pcsd/pkg/metrics"
	"github.com/cuemby/pcsd/pkg/pcs"
	"github.com/cuemby/pcsd/pkg/registry"
	"github.com/cuemby/pcsd/pkg/rpc"
	"github.com/cuemby/pcsd/pkg/types"
)

// LoginPath is where browser callers are sent when they are not logged in
const LoginPath = "/login"

// ContentTypeJSON is the content type of every JSON body pcsd writes
const ContentTypeJSON = "application/json"

// LocalCluster is the view of the local cluster stack the dispatcher needs.
// *pcs.Cluster implements it.
type LocalCluster interface {
	LocalStatus(ctx context.Context, nodeName string) (*types.NodeStatusReport, error)
	ServiceActive(ctx context.Context, unit string) bool
	Start(ctx context.Context) (*pcs.Result, error)
	Stop(ctx context.Context) (*pcs.Result, error)
	Enable(ctx context.Context) (*pcs.Result, error)
	Disable(ctx context.Context) (*pcs.Result, error)
	AddNode(ctx context.Context, node string) (*pcs.Result, error)
	RemoveNode(ctx context.Context, node string) (*pcs.Result, error)
	EnableResource(ctx context.Context, id string) (*pcs.Result, error)
	DisableResource(ctx context.Context, id string) (*pcs.Result, error)
}

// StatusAggregator collects status reports from a set of nodes
type StatusAggregator interface {
	Aggregate(ctx context.Context, nodes []string) types.AggregateStatus
}

// Context holds the values every request is served against
type Context struct {
	NodeName    string
	ClusterName string
}

// Request is one remote command call, independent of the HTTP framework
type Request struct {
	Command    string
	Post       bool
	Params     url.Values
	Token      string
	Session    *auth.Session
	ClientAddr string
	// Browser callers are redirected instead of receiving a 401
	Browser bool
}

// Response is what the dispatcher answers with
type Response struct {
	Status      int
	ContentType string
	Body        []byte
	// Location is set for redirects
	Location string
}

// DispatcherConfig wires a Dispatcher
type DispatcherConfig struct {
	Context       Context
	Authenticator *auth.Authenticator
	Cluster       LocalCluster
	Registry      *registry.Registry
	Aggregator    StatusAggregator
	// Forwarder relays commands that target another node
	Forwarder aggregator.Caller
	Events    *events.Broker
}

type handlerFunc func(ctx context.Context, req *Request) *Response

// Dispatcher routes remote commands to local actions, the aggregator or
// another node
type Dispatcher struct {
	ctx        Context
	auth       *auth.Authenticator
	cluster    LocalCluster
	registry   *registry.Registry
	aggregator StatusAggregator
	forwarder  aggregator.Caller
	events     *events.Broker
	handlers   map[Command]handlerFunc
}

// NewDispatcher creates a dispatcher. It panics if a command has no handler.
func NewDispatcher(cfg DispatcherConfig) *Dispatcher {
	d := &Dispatcher{
		ctx:        cfg.Context,
		auth:       cfg.Authenticator,
		cluster:    cfg.Cluster,
		registry:   cfg.Registry,
		aggregator: cfg.Aggregator,
		forwarder:  cfg.Forwarder,
		events:     cfg.Events,
	}

	d.handlers = map[Command]handlerFunc{
		CommandAuth:           d.handleAuth,
		CommandCheckAuth:      d.handleCheckAuth,
		CommandStatus:         d.handleStatus,
		CommandStatusAll:      d.handleStatusAll,
		CommandNodeAvailable:  d.handleNodeAvailable,
		CommandClusterStart:   d.tool(d.cluster.Start),
		CommandClusterStop:    d.tool(d.cluster.Stop),
		CommandClusterEnable:  d.tool(d.cluster.Enable),
		CommandClusterDisable: d.tool(d.cluster.Disable),
		CommandAddNode:        d.toolWithParam("new_nodename", d.cluster.AddNode),
		CommandRemoveNode:     d.toolWithParam("remove_nodename", d.cluster.RemoveNode),
		CommandResourceStart:  d.toolWithParam("resource_id", d.cluster.EnableResource),
		CommandResourceStop:   d.toolWithParam("resource_id", d.cluster.DisableResource),
	}
	for _, c := range Commands {
		if d.handlers[c] == nil {
			panic(fmt.Sprintf("api: no handler for command %q", c))
		}
	}
	return d
}

// Context returns the values requests are served against
func (d *Dispatcher) Context() Context {
	return d.ctx
}

// Dispatch serves one remote command
func (d *Dispatcher) Dispatch(ctx context.Context, req *Request) *Response {
	timer := metrics.NewTimer()
	label := req.Command
	if _, err := ParseCommand(req.Command); err != nil {
		label = "unknown"
	}

	resp := d.dispatch(ctx, req)

	timer.ObserveDurationVec(metrics.RemoteRequestDuration, label)
	metrics.RemoteRequestsTotal.WithLabelValues(label, strconv.Itoa(resp.Status)).Inc()

	logger := log.WithCommand(req.Command)
	logger.Debug().
		Int("status", resp.Status).
		Str("client", req.ClientAddr).
		Dur("duration", timer.Duration()).
		Msg("remote command served")
	return resp
}

func (d *Dispatcher) dispatch(ctx context.Context, req *Request) *Response {
	if req.Command != string(CommandAuth) {
		if !d.auth.IsLoggedIn(req.Session, req.Token) {
			return d.notAuthorized(req)
		}
		if !d.auth.IsAuthorized(req.Session) {
			return d.notAuthorized(req)
		}
	}

	cmd, err := ParseCommand(req.Command)
	if err != nil {
		return jsonResponse(http.StatusNotFound, map[string]string{
			"error":   "true",
			"message": "Unknown Request",
		})
	}

	if cmd.RequiresPost() && !req.Post {
		return errorResponse(http.StatusMethodNotAllowed, fmt.Sprintf("%s requires POST", cmd))
	}

	if cmd.Forwardable() {
		if node := req.Params.Get("node"); node != "" && node != d.ctx.NodeName {
			return d.forward(ctx, cmd, node, req)
		}
	}

	return d.handlers[cmd](ctx, req)
}

func (d *Dispatcher) notAuthorized(req *Request) *Response {
	if req.Browser {
		return &Response{Status: http.StatusFound, Location: LoginPath}
	}
	return jsonResponse(http.StatusUnauthorized, map[string]string{"notauthorized": "true"})
}

// forward relays cmd to node and returns its answer unchanged
func (d *Dispatcher) forward(ctx context.Context, cmd Command, node string, req *Request) *Response {
	logger := log.WithNode(node)

	if d.forwarder == nil {
		return errorResponse(http.StatusBadGateway, "forwarding is not configured")
	}

	params := url.Values{}
	for k, v := range req.Params {
		if k == "node" {
			continue
		}
		params[k] = append([]string(nil), v...)
	}

	resp, err := d.forwarder.Call(ctx, node, rpc.Request{
		Command: string(cmd),
		Post:    req.Post,
		Form:    params,
	})

	d.publish(events.EventCommandForwarded, fmt.Sprintf("%s forwarded to %s", cmd, node), map[string]string{
		"command": string(cmd),
		"node":    node,
	})

	if resp != nil {
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = "text/plain; charset=utf-8"
		}
		return &Response{Status: resp.StatusCode, ContentType: contentType, Body: resp.Body}
	}

	reason := rpc.KindUnreachable.String()
	if kind, ok := rpc.KindOf(err); ok {
		reason = kind.String()
	}
	logger.Warn().Err(err).Str("command", string(cmd)).Msg("Failed to forward command")
	return jsonResponse(http.StatusBadGateway, map[string]string{
		"error":   "true",
		"node":    node,
		"reason":  reason,
		"message": errString(err),
	})
}

func (d *Dispatcher) handleAuth(ctx context.Context, req *Request) *Response {
	username := req.Params.Get("username")
	token, err := d.auth.Login(username, req.Params.Get("password"), req.ClientAddr)
	if err != nil {
		d.publish(events.EventAuthFailed, "authentication failed", map[string]string{
			"user":   username,
			"client": req.ClientAddr,
		})
		if errors.Is(err, auth.ErrAuthenticationFailed) {
			return &Response{Status: http.StatusUnauthorized, ContentType: "text/plain; charset=utf-8"}
		}
		return errorResponse(http.StatusInternalServerError, err.Error())
	}

	d.publish(events.EventTokenIssued, "token issued", map[string]string{
		"user":   username,
		"client": req.ClientAddr,
	})
	return &Response{
		Status:      http.StatusOK,
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(token),
	}
}

func (d *Dispatcher) handleCheckAuth(ctx context.Context, req *Request) *Response {
	return jsonResponse(http.StatusOK, map[string]any{
		"success":   true,
		"node_name": d.ctx.NodeName,
	})
}

func (d *Dispatcher) handleStatus(ctx context.Context, req *Request) *Response {
	report, err := d.cluster.LocalStatus(ctx, d.ctx.NodeName)
	if err != nil {
		logger := log.WithComponent("api")
		logger.Error().Err(err).Msg("Failed to build local status")
		return errorResponse(http.StatusInternalServerError, err.Error())
	}
	return jsonResponse(http.StatusOK, report)
}

func (d *Dispatcher) handleStatusAll(ctx context.Context, req *Request) *Response {
	nodes, err := d.resolveNodes(req.Params)
	if err != nil {
		return errorResponse(http.StatusBadRequest, err.Error())
	}
	if len(nodes) == 0 {
		return errorResponse(http.StatusBadRequest, "no clusters registered")
	}
	return jsonResponse(http.StatusOK, d.aggregator.Aggregate(ctx, nodes))
}

// resolveNodes picks the status_all targets: explicit nodes, then a named
// cluster, then every registered node
func (d *Dispatcher) resolveNodes(params url.Values) ([]string, error) {
	if nodes := splitList(params["nodes"]); len(nodes) > 0 {
		return aggregator.Dedupe(nodes), nil
	}
	if name := params.Get("cluster"); name != "" {
		return d.registry.Nodes(name)
	}
	return d.registry.AllNodes(), nil
}

func (d *Dispatcher) handleNodeAvailable(ctx context.Context, req *Request) *Response {
	return jsonResponse(http.StatusOK, map[string]bool{
		"node_available": !d.cluster.ServiceActive(ctx, "pacemaker"),
	})
}

// tool adapts a local pcs command taking no argument
func (d *Dispatcher) tool(fn func(context.Context) (*pcs.Result, error)) handlerFunc {
	return func(ctx context.Context, req *Request) *Response {
		res, err := fn(ctx)
		return d.toolResponse(req, res, err)
	}
}

// toolWithParam adapts a local pcs command taking one required parameter
func (d *Dispatcher) toolWithParam(param string, fn func(context.Context, string) (*pcs.Result, error)) handlerFunc {
	return func(ctx context.Context, req *Request) *Response {
		value := req.Params.Get(param)
		if value == "" {
			return errorResponse(http.StatusBadRequest, fmt.Sprintf("missing parameter %q", param))
		}
		// values are passed to pcs as arguments and must not read as options
		if strings.HasPrefix(value, "-") {
			return errorResponse(http.StatusBadRequest, fmt.Sprintf("invalid value for %q: %s", param, value))
		}
		res, err := fn(ctx, value)
		return d.toolResponse(req, res, err)
	}
}

func (d *Dispatcher) toolResponse(req *Request, res *pcs.Result, err error) *Response {
	meta := map[string]string{"command": req.Command, "client": req.ClientAddr}

	if err == nil {
		d.publish(events.EventCommandSucceeded, req.Command+" succeeded", meta)
		stdout := ""
		if res != nil {
			stdout = res.Stdout
		}
		return jsonResponse(http.StatusOK, map[string]string{
			"success": "true",
			"stdout":  stdout,
		})
	}

	d.publish(events.EventCommandFailed, req.Command+" failed", meta)

	var exitErr *pcs.ExitError
	if errors.As(err, &exitErr) {
		return jsonResponse(http.StatusBadRequest, map[string]string{
			"error":    "true",
			"stdout":   exitErr.Stdout,
			"stderror": exitErr.Stderr,
		})
	}

	logger := log.WithCommand(req.Command)
	logger.Error().Err(err).Msg("Failed to run local command")
	return errorResponse(http.StatusInternalServerError, err.Error())
}

func (d *Dispatcher) publish(t events.EventType, msg string, meta map[string]string) {
	d.events.Publish(&events.Event{Type: t, Message: msg, Metadata: meta})
}

func jsonResponse(status int, v any) *Response {
	body, err := json.Marshal(v)
	if err != nil {
		return &Response{
			Status:      http.StatusInternalServerError,
			ContentType: ContentTypeJSON,
			Body:        []byte(`{"error":"true","message":"failed to encode response"}`),
		}
	}
	return &Response{Status: status, ContentType: ContentTypeJSON, Body: body}
}

func errorResponse(status int, message string) *Response {
	return jsonResponse(status, map[string]string{
		"error":   "true",
		"message": message,
	})
}

// splitList flattens repeated and comma or space separated values
func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, strings.FieldsFunc(v, func(r rune) bool {
			return r == ',' || unicode.IsSpace(r)
		})...)
	}
	return out
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
