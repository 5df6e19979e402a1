// Package agent defines the named agents, picks one for a message and
// runs it against the provider with a bounded tool-use loop.
package agent

import (
	"errors"
	"fmt"

	"CodeChat/internal/tools"
)

// ID names an agent.
type ID string

const (
	CodeReviewAgent    ID = "codeReviewAgent"
	GeneralCodingAgent ID = "generalCodingAgent"
)

// Known lists every agent the service is expected to offer, in report order.
var Known = []ID{CodeReviewAgent, GeneralCodingAgent}

// ErrAgentNotFound is returned by Lookup for an unregistered ID.
var ErrAgentNotFound = errors.New("agent not found")

// Definition is an agent: a display name, its system instructions and the
// tools it may call.
type Definition struct {
	ID           ID
	Name         string
	Instructions string
	Tools        []string
}

// Registry holds the agent definitions. It is built once and read-only
// afterwards, so it needs no locking.
type Registry struct {
	defs  map[ID]Definition
	order []ID
}

// NewRegistry builds a registry from defs.
func NewRegistry(defs ...Definition) *Registry {
	r := &Registry{defs: make(map[ID]Definition, len(defs))}
	for _, d := range defs {
		if _, dup := r.defs[d.ID]; !dup {
			r.order = append(r.order, d.ID)
		}
		r.defs[d.ID] = d
	}
	return r
}

// DefaultRegistry returns the code review and general coding agents.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Definition{
			ID:           CodeReviewAgent,
			Name:         "Code Review Agent",
			Instructions: codeReviewInstructions,
			Tools:        []string{tools.CodeReview, tools.CodeOptimization, tools.CodeExplanation},
		},
		Definition{
			ID:           GeneralCodingAgent,
			Name:         "General Coding Assistant",
			Instructions: generalCodingInstructions,
			Tools:        []string{tools.CodeExplanation},
		},
	)
}

// Lookup returns the definition for id.
func (r *Registry) Lookup(id ID) (Definition, error) {
	d, ok := r.defs[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %s", ErrAgentNotFound, id)
	}
	return d, nil
}

// IDs returns the registered agent IDs in registration order.
func (r *Registry) IDs() []ID {
	return append([]ID(nil), r.order...)
}

const codeReviewInstructions = `You are a senior code reviewer fluent in many programming languages.

## Core abilities
1. Code quality assessment: structure, readability, maintainability
2. Security review: find vulnerabilities and missing input validation
3. Performance advice: identify bottlenecks and propose improvements
4. Best practices: recommend industry-standard approaches
5. Code explanation: describe what the code does and how

## Review process
When the user shares code:
1. Identify the language, purpose and structure
2. Check style, naming and comments
3. Analyse algorithmic efficiency and correctness of the logic
4. Look for security problems
5. Look for performance problems
6. Give concrete changes and best practices

## Response format
Always return a structured report with:
- Overall score: code quality from 1 to 10
- Issues: the specific problems found
- Improvements: detailed suggestions
- Security: security-related fixes
- Performance: performance improvements
- Best practices: relevant conventions

Keep a professional, friendly tone and give constructive feedback.`

const generalCodingInstructions = `You are an all-round programming assistant.

## Core functions
1. Writing code: produce high-quality code for the user's requirements
2. Debugging: help locate and fix problems
3. Technical questions: answer programming questions
4. Architecture: advise on system design
5. Learning: help the user pick up new technologies and best practices

## Principles
- Explain clearly and simply
- Give runnable code examples
- Keep maintainability and extensibility in mind
- Follow the conventions of the language at hand
- Pay attention to security and performance

When the user needs something:
1. Understand the actual requirement
2. Offer a clear solution
3. Give a complete code example
4. Explain the key parts of the implementation
5. Point out caveats and best practices`
