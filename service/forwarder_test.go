package service_test

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/layer-3/memowallet/core"
	"github.com/layer-3/memowallet/service"
	"github.com/stretchr/testify/require"
)

func evidenceRequest() core.ForwardRequest {
	return core.ForwardRequest{
		NS:    service.NamespaceEvidenceCommit,
		Owner: "5FHneW46xGXgs5mUiveU4sbTyGBzmstUspZC92UhjJM694ty",
		Call: core.Call{
			Section: "evidence",
			Method:  "commit",
			Args:    map[string]any{"domain": 2, "target": 7, "cid": "bafy..."},
		},
		Nonce:     0,
		ValidTill: 1000,
	}
}

func TestBuildForwardRequest(t *testing.T) {
	tx, err := service.BuildForwardRequest(evidenceRequest())
	require.NoError(t, err)
	require.Equal(t, "evid___ ", tx.NS)
	require.Equal(t, uint32(0), tx.Nonce)
	require.Equal(t, uint32(1000), tx.ValidTill)
	require.Nil(t, tx.Signature)
	require.Empty(t, tx.SessionID)

	raw, err := json.Marshal(tx)
	require.NoError(t, err)
	require.NotContains(t, string(raw), "signature")
	require.NotContains(t, string(raw), "sessionId")
}

func TestBuildForwardRequestDeterministic(t *testing.T) {
	req := evidenceRequest()
	req.SessionID = "s1"
	req.Nonce = 42

	a, err := service.BuildForwardRequest(req)
	require.NoError(t, err)
	b, err := service.BuildForwardRequest(req)
	require.NoError(t, err)
	require.Equal(t, a, b)
	require.Equal(t, service.Pretty(a), service.Pretty(b))
}

func TestBuildForwardRequestNamespaceLength(t *testing.T) {
	for n := 0; n <= 16; n++ {
		req := evidenceRequest()
		req.NS = strings.Repeat("x", n)

		_, err := service.BuildForwardRequest(req)
		if n == service.NamespaceLength {
			require.NoError(t, err)
			continue
		}
		require.ErrorIs(t, err, core.ErrValidation, "length %d", n)

		var verr *core.ValidationError
		require.ErrorAs(t, err, &verr)
		require.Equal(t, "ns", verr.Field)
	}
}

func TestBuildForwardRequestValidation(t *testing.T) {
	tests := []struct {
		name  string
		mut   func(*core.ForwardRequest)
		field string
	}{
		{"empty owner", func(r *core.ForwardRequest) { r.Owner = "" }, "owner"},
		{"blank owner", func(r *core.ForwardRequest) { r.Owner = "   " }, "owner"},
		{"missing section", func(r *core.ForwardRequest) { r.Call.Section = "" }, "call.section"},
		{"missing method", func(r *core.ForwardRequest) { r.Call.Method = "" }, "call.method"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := evidenceRequest()
			tt.mut(&req)

			tx, err := service.BuildForwardRequest(req)
			require.Nil(t, tx)
			var verr *core.ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, tt.field, verr.Field)
		})
	}
}

func TestBuildForwardRequestWrapsCounters(t *testing.T) {
	req := evidenceRequest()
	req.Nonce = math.MaxUint32 + 1
	req.ValidTill = -1

	tx, err := service.BuildForwardRequest(req)
	require.NoError(t, err)
	require.Equal(t, uint32(0), tx.Nonce)
	require.Equal(t, uint32(math.MaxUint32), tx.ValidTill)
}

func TestNamespaces(t *testing.T) {
	names := service.Namespaces()
	require.Len(t, names, 4)
	for _, ns := range names {
		require.Len(t, ns, service.NamespaceLength)
		require.True(t, service.IsKnownNamespace(ns))
	}
	require.False(t, service.IsKnownNamespace("evid____"))

	names[0] = "mutated!"
	require.True(t, service.IsKnownNamespace(service.NamespaceEvidenceCommit))
}

func TestPretty(t *testing.T) {
	require.Equal(t, "{\n  \"a\": 1\n}", service.Pretty(map[string]int{"a": 1}))
}
