package relay

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/knowledge-engine/relay/internal/config"
	"github.com/knowledge-engine/relay/internal/provider"
)

// ChatResponse is what a successful relay call returns to the client
type ChatResponse struct {
	Answer    string              `json:"answer"`
	SessionID *string             `json:"sessionId"`
	Citations []provider.Citation `json:"citations"`
}

// Relay forwards validated queries to the retrieval-and-generation provider
type Relay struct {
	Config    config.KnowledgeBaseConfig
	Logger    *logrus.Entry
	Generator provider.Generator
}

func NewRelay(cfg config.KnowledgeBaseConfig, logger *logrus.Entry, gen provider.Generator) *Relay {
	return &Relay{
		Config:    cfg,
		Logger:    logger,
		Generator: gen,
	}
}

// Handle validates the query, makes exactly one provider call and maps the
// outcome. A nil or empty sessionID starts a new provider session.
// Errors are always *Error.
func (r *Relay) Handle(ctx context.Context, query string, sessionID *string) (*ChatResponse, error) {
	if query == "" {
		return nil, invalidInput(MsgQueryRequired)
	}
	if sessionID != nil && *sessionID == "" {
		sessionID = nil
	}

	log := r.Logger.WithContext(ctx)
	log.WithField("query", query).Info("Processing query")

	req := &provider.GenerateRequest{
		Query:           query,
		SessionID:       sessionID,
		KnowledgeBaseID: r.Config.ID,
		ModelID:         r.Config.ModelID,
		PromptTemplate:  provider.PromptTemplate,
		TopK:            r.Config.TopK,
	}
	log.WithFields(logrus.Fields{
		"provider":       r.Generator.Name(),
		"knowledge_base": req.KnowledgeBaseID,
		"model":          req.ModelID,
		"top_k":          req.TopK,
		"session_id":     stringOrEmpty(req.SessionID),
	}).Debug("Calling provider")

	// The upstream call outlives a disconnected client.
	res, err := r.Generator.Generate(context.WithoutCancel(ctx), req)
	if err != nil {
		relayErr := upstreamFailure(err)
		log.WithError(err).WithField("provider", r.Generator.Name()).Error("Provider call failed")
		return nil, relayErr
	}

	citations := res.Citations
	if citations == nil {
		citations = []provider.Citation{}
	}

	log.WithFields(logrus.Fields{
		"session_id": stringOrEmpty(res.SessionID),
		"citations":  len(citations),
		"answer_len": len(res.Answer),
	}).Debug("Received provider response")

	return &ChatResponse{
		Answer:    res.Answer,
		SessionID: res.SessionID,
		Citations: citations,
	}, nil
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
