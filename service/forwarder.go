package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/layer-3/memowallet/core"
)

// NamespaceLength is the exact byte length of a forwarder namespace
const NamespaceLength = 8

// Namespaces accepted by the sponsor relayer
const (
	NamespaceEvidenceCommit    = "evid___ "
	NamespaceArbitrationDecide = "arb_dcd_"
	NamespaceOTCListing        = "otc_lst_"
	NamespaceOTCOrder          = "otc_ord_"
)

var namespaces = []string{
	NamespaceEvidenceCommit,
	NamespaceArbitrationDecide,
	NamespaceOTCListing,
	NamespaceOTCOrder,
}

// Namespaces returns the known forwarder namespaces
func Namespaces() []string {
	return append([]string(nil), namespaces...)
}

// IsKnownNamespace reports whether ns is registered
func IsKnownNamespace(ns string) bool {
	for _, known := range namespaces {
		if ns == known {
			return true
		}
	}
	return false
}

// BuildForwardRequest shapes req into an unsigned forward meta-transaction.
// Nonce and ValidTill wrap into the unsigned 32-bit range.
func BuildForwardRequest(req core.ForwardRequest) (*core.ForwardMetaTx, error) {
	if strings.TrimSpace(req.Owner) == "" {
		return nil, &core.ValidationError{Field: "owner", Reason: "must not be empty"}
	}
	if len(req.NS) != NamespaceLength {
		return nil, &core.ValidationError{Field: "ns", Reason: fmt.Sprintf("must be exactly %d bytes, got %d", NamespaceLength, len(req.NS))}
	}
	if req.Call.Section == "" {
		return nil, &core.ValidationError{Field: "call.section", Reason: "is required"}
	}
	if req.Call.Method == "" {
		return nil, &core.ValidationError{Field: "call.method", Reason: "is required"}
	}

	return &core.ForwardMetaTx{
		NS:        req.NS,
		SessionID: req.SessionID,
		Owner:     req.Owner,
		Call:      req.Call,
		Nonce:     uint32(req.Nonce),
		ValidTill: uint32(req.ValidTill),
	}, nil
}

// Pretty renders v as two-space indented JSON
func Pretty(v any) string {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%+v", v)
	}
	return string(out)
}
