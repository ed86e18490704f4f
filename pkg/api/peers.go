package api

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cuemby/pcsd/pkg/auth"
	"github.com/cuemby/pcsd/pkg/events"
	"github.com/cuemby/pcsd/pkg/log"
	"github.com/cuemby/pcsd/pkg/rpc"
	"github.com/cuemby/pcsd/pkg/storage"
)

// PeerAuthenticator logs in to another node and returns the token it issues.
// *rpc.Client implements it.
type PeerAuthenticator interface {
	Authenticate(ctx context.Context, node, username, password string) (string, error)
}

// PeerAuthResult is the outcome of authenticating to one node
type PeerAuthResult struct {
	Authorized bool   `json:"authorized"`
	Reason     string `json:"reason,omitempty"`
	Message    string `json:"message,omitempty"`
}

// PeerAuthResponse is the body of POST /manage/auth
type PeerAuthResponse struct {
	Nodes map[string]PeerAuthResult `json:"nodes"`
}

func (s *Server) peersEnabled(c *gin.Context) bool {
	if s.cfg.Peers == nil || s.cfg.PeerAuth == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "true", "message": "peer store is not configured"})
		return false
	}
	return true
}

func (s *Server) handleListPeers(c *gin.Context) {
	if !s.peersEnabled(c) {
		return
	}
	peers, err := s.cfg.Peers.ListPeers()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "true", "message": err.Error()})
		return
	}

	out := make([]gin.H, 0, len(peers))
	for _, p := range peers {
		out = append(out, gin.H{"node": p.Node, "authenticated_at": p.AuthenticatedAt})
	}
	c.JSON(http.StatusOK, out)
}

// handleAuthPeers logs in to every node and stores the issued tokens in the
// daemon's peer store. One node failing does not stop the others.
func (s *Server) handleAuthPeers(c *gin.Context) {
	if !s.peersEnabled(c) {
		return
	}

	nodes := splitList(c.PostFormArray("nodes"))
	password := c.PostForm("password")
	username := c.DefaultPostForm("username", auth.SuperUser)
	if len(nodes) == 0 || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "true", "message": "nodes and password are required"})
		return
	}

	resp := PeerAuthResponse{Nodes: make(map[string]PeerAuthResult, len(nodes))}
	for _, node := range nodes {
		resp.Nodes[node] = s.authPeer(c.Request.Context(), node, username, password, s.caller(c))
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) authPeer(ctx context.Context, node, username, password, caller string) PeerAuthResult {
	logger := log.WithNode(node)

	token, err := s.cfg.PeerAuth.Authenticate(ctx, node, username, password)
	if err != nil {
		reason := rpc.KindUnreachable.String()
		if kind, ok := rpc.KindOf(err); ok {
			reason = kind.String()
		}
		logger.Warn().Err(err).Msg("Failed to authenticate to node")
		return PeerAuthResult{Reason: reason, Message: err.Error()}
	}

	if err := s.cfg.Peers.PutPeer(&storage.Peer{Node: node, Token: token, AuthenticatedAt: time.Now()}); err != nil {
		logger.Error().Err(err).Msg("Failed to store peer token")
		return PeerAuthResult{Reason: "storage", Message: err.Error()}
	}

	s.events.Publish(&events.Event{
		Type:     events.EventPeerAuthenticated,
		Message:  "peer authenticated",
		Metadata: map[string]string{"node": node, "user": username, "by": caller},
	})
	return PeerAuthResult{Authorized: true}
}

func (s *Server) handleRemovePeers(c *gin.Context) {
	if !s.peersEnabled(c) {
		return
	}

	nodes := splitList(c.PostFormArray("nodes"))
	if len(nodes) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "true", "message": "nodes are required"})
		return
	}

	removed := make([]string, 0, len(nodes))
	for _, node := range nodes {
		if _, err := s.cfg.Peers.GetPeer(node); err != nil {
			continue
		}
		if err := s.cfg.Peers.DeletePeer(node); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "true", "message": err.Error()})
			return
		}
		removed = append(removed, node)
	}
	sort.Strings(removed)

	if len(removed) > 0 {
		s.events.Publish(&events.Event{
			Type:     events.EventPeerRemoved,
			Message:  "peer tokens removed",
			Metadata: map[string]string{"nodes": strings.Join(removed, ","), "by": s.caller(c)},
		})
	}
	c.JSON(http.StatusOK, gin.H{"success": "true", "removed": removed})
}

// caller names who made a management request, for the audit trail
func (s *Server) caller(c *gin.Context) string {
	if session := s.sessions.Load(c.Request); session != nil {
		return session.Username
	}
	if user, ok := s.auth.TokenUser(requestToken(c.Request)); ok {
		return user
	}
	return ""
}
