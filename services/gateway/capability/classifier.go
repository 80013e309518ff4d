// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package capability

import (
	"strings"

	"github.com/AleutianAI/AleutianGraph/services/gateway/dgraph"
)

// Outcome is the result of classifying a namespace-probe response.
type Outcome int

const (
	// OutcomeInconclusive means the response revealed nothing either way
	// (typically a transport failure). Callers must treat this
	// conservatively.
	OutcomeInconclusive Outcome = iota
	// OutcomeSupported means the administrative surface recognized the
	// namespace parameter.
	OutcomeSupported
	// OutcomeUnsupported means the surface rejected or ignored the
	// namespace parameter.
	OutcomeUnsupported
)

// String returns the string representation of Outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeSupported:
		return "supported"
	case OutcomeUnsupported:
		return "unsupported"
	default:
		return "inconclusive"
	}
}

// ProbeClassifier turns a namespace-probe response into an Outcome.
//
// The heuristic lives behind this interface so it can be swapped or tightened
// without touching the prober or its callers.
type ProbeClassifier interface {
	Classify(resp *dgraph.Response, err error) Outcome
}

// ResponseShapeClassifier is the default classifier. It inspects the
// administrative response shape:
//
//   - a clean success means the namespace parameter was accepted
//   - a GraphQL error that talks about namespaces proves the parameter was
//     at least recognized, which is enough to call the surface namespace-aware
//   - any other well-formed rejection means the surface does not know the
//     parameter
//   - a transport failure proves nothing
type ResponseShapeClassifier struct{}

// Classify implements ProbeClassifier.
func (ResponseShapeClassifier) Classify(resp *dgraph.Response, err error) Outcome {
	if err != nil {
		if gqlErr, ok := err.(*dgraph.GraphQLError); ok {
			return classifyErrors(gqlErr.Errors)
		}
		return OutcomeInconclusive
	}
	if resp == nil {
		return OutcomeInconclusive
	}
	if len(resp.Errors) > 0 {
		return classifyErrors(resp.Errors)
	}
	return OutcomeSupported
}

func classifyErrors(errs []dgraph.ResponseError) Outcome {
	for _, re := range errs {
		if strings.Contains(strings.ToLower(re.Message), "namespace") {
			// The error names the namespace parameter, so the surface
			// understands it even if this particular value was rejected.
			return OutcomeSupported
		}
	}
	return OutcomeUnsupported
}
