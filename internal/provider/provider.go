package provider

import (
	"context"
)

// PromptTemplate is sent with every request. The provider substitutes the
// retrieved passages for $search_results$ and the user question for $query$.
const PromptTemplate = "Use the following context to answer the question:\n" +
	"Context: $search_results$\n" +
	"Question: $query$\n" +
	"Answer:"

// Generator defines the interface to a managed retrieval-and-generation service
type Generator interface {
	Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error)
	Name() string
}

// GenerateRequest carries everything one provider call needs
type GenerateRequest struct {
	Query           string
	SessionID       *string
	KnowledgeBaseID string
	ModelID         string
	PromptTemplate  string
	TopK            int
}

// GenerateResult is the provider answer reshaped into our own types
type GenerateResult struct {
	Answer    string
	SessionID *string
	Citations []Citation
}

// Citation links a span of the generated answer to the passages backing it.
type Citation struct {
	GeneratedResponsePart *GeneratedResponsePart `json:"generatedResponsePart,omitempty"`
	RetrievedReferences   []RetrievedReference   `json:"retrievedReferences"`
}

type GeneratedResponsePart struct {
	TextResponsePart *TextResponsePart `json:"textResponsePart,omitempty"`
}

type TextResponsePart struct {
	Text string `json:"text"`
	Span *Span  `json:"span,omitempty"`
}

type Span struct {
	Start int32 `json:"start"`
	End   int32 `json:"end"`
}

type RetrievedReference struct {
	Content  *ReferenceContent  `json:"content,omitempty"`
	Location *ReferenceLocation `json:"location,omitempty"`
}

type ReferenceContent struct {
	Text string `json:"text"`
}

// ReferenceLocation flattens the provider's per-source location variants
// into a type tag and a single locator.
type ReferenceLocation struct {
	Type string `json:"type"`
	URI  string `json:"uri,omitempty"`
}
