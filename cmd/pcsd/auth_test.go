package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cuemby/pcsd/pkg/api"
	"github.com/cuemby/pcsd/pkg/types"
)

func TestPrintPeerAuth(t *testing.T) {
	out := api.PeerAuthResponse{Nodes: map[string]api.PeerAuthResult{
		"cat8": {Authorized: true},
		"ace8": {Reason: types.ReasonConnectionRefused},
	}}

	var buf bytes.Buffer
	err := printPeerAuth(&buf, []string{"cat8", "ace8", "bob"}, out)

	assert.EqualError(t, err, "unable to authenticate to ace8, bob")
	assert.Equal(t, "cat8: Authorized\nace8: connection_refused\nbob: no answer\n", buf.String())
}

func TestPrintPeerAuthAllAuthorized(t *testing.T) {
	out := api.PeerAuthResponse{Nodes: map[string]api.PeerAuthResult{"cat8": {Authorized: true}}}

	var buf bytes.Buffer
	assert.NoError(t, printPeerAuth(&buf, []string{"cat8"}, out))
}
