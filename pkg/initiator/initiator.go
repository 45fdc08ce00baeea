// Copyright 2019 Hewlett Packard Enterprise Development LP

// Package initiator classifies SAN initiator identifiers by protocol and
// computes the add/remove sets between the initiators on a host and the
// initiators requested by the caller.
package initiator

import (
	"sort"
	"strings"

	"github.com/powerstore-tools/host-reconciler/pkg/model"
)

// Classify maps a raw initiator identifier to its protocol family. The
// precedence is fixed: "iqn" prefixed identifiers are iSCSI, "nqn" are
// NVMe, everything else is treated as an FC WWN. Identifiers are not
// checked for well-formedness beyond the prefix.
func Classify(portName string) model.PortType {
	switch {
	case strings.HasPrefix(portName, "iqn"):
		return model.PortTypeISCSI
	case strings.HasPrefix(portName, "nqn"):
		return model.PortTypeNVMe
	default:
		return model.PortTypeFC
	}
}

// Additions returns the requested initiators that are not already present
// on the host. The result is sorted for deterministic request payloads.
func Additions(existing, requested []string) []string {
	present := toSet(existing)
	added := map[string]bool{}
	var additions []string
	for _, portName := range requested {
		if present[portName] || added[portName] {
			continue
		}
		added[portName] = true
		additions = append(additions, portName)
	}
	sort.Strings(additions)
	return additions
}

// Removals returns the requested initiators that are actually present on
// the host. Requesting removal of an initiator the host does not have is
// a silent no-op. The result is sorted.
func Removals(existing, requested []string) []string {
	wanted := toSet(requested)
	removed := map[string]bool{}
	var removals []string
	for _, portName := range existing {
		if !wanted[portName] || removed[portName] {
			continue
		}
		removed[portName] = true
		removals = append(removals, portName)
	}
	sort.Strings(removals)
	return removals
}

// IsSubset reports whether every requested initiator is already present
func IsSubset(requested, existing []string) bool {
	present := toSet(existing)
	for _, portName := range requested {
		if !present[portName] {
			return false
		}
	}
	return true
}

func toSet(portNames []string) map[string]bool {
	set := make(map[string]bool, len(portNames))
	for _, portName := range portNames {
		set[portName] = true
	}
	return set
}
