package augment

import (
	"context"
	"fmt"

	"github.com/veriscope/veriscope/internal/domain/catalog"
)

// Provider dispatches a lookup to the adapter matching the agent type.
type Provider struct {
	KnowledgeBase *KnowledgeBaseClient
	RestAPI       *RestAPIClient
	Athena        *AthenaClient
}

func (p *Provider) Lookup(ctx context.Context, agent *catalog.Agent, query string) (string, error) {
	switch agent.Type {
	case catalog.AgentKnowledgeBase:
		if p.KnowledgeBase == nil {
			return "", fmt.Errorf("knowledge base agent %s: client not configured", agent.ID)
		}
		return p.KnowledgeBase.Lookup(ctx, agent, query)
	case catalog.AgentRestAPI:
		if p.RestAPI == nil {
			return "", fmt.Errorf("rest api agent %s: client not configured", agent.ID)
		}
		return p.RestAPI.Lookup(ctx, agent, query)
	case catalog.AgentAthena:
		if p.Athena == nil {
			return "", fmt.Errorf("athena agent %s: client not configured", agent.ID)
		}
		return p.Athena.Lookup(ctx, agent, query)
	default:
		return "", fmt.Errorf("agent %s: unknown type %q", agent.ID, agent.Type)
	}
}
