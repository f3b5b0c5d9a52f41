package augment

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	bedrockagent "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime"
	batypes "github.com/aws/aws-sdk-go-v2/service/bedrockagentruntime/types"

	"github.com/veriscope/veriscope/internal/domain/catalog"
)

const retrievalResults = 5

type KnowledgeBaseClient struct {
	client *bedrockagent.Client
}

func NewKnowledgeBaseClient(client *bedrockagent.Client) *KnowledgeBaseClient {
	return &KnowledgeBaseClient{client: client}
}

// Lookup retrieves the top documents for the query, hybrid semantic plus
// keyword search.
func (c *KnowledgeBaseClient) Lookup(ctx context.Context, agent *catalog.Agent, query string) (string, error) {
	if agent.KnowledgeBaseID == "" {
		return "", fmt.Errorf("agent %s: no knowledge base id configured", agent.ID)
	}

	out, err := c.client.Retrieve(ctx, &bedrockagent.RetrieveInput{
		KnowledgeBaseId: aws.String(agent.KnowledgeBaseID),
		RetrievalQuery:  &batypes.KnowledgeBaseQuery{Text: aws.String(query)},
		RetrievalConfiguration: &batypes.KnowledgeBaseRetrievalConfiguration{
			VectorSearchConfiguration: &batypes.KnowledgeBaseVectorSearchConfiguration{
				NumberOfResults:    aws.Int32(retrievalResults),
				OverrideSearchType: batypes.SearchTypeHybrid,
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("knowledge base retrieve: %w", err)
	}

	if len(out.RetrievalResults) == 0 {
		return fmt.Sprintf("No relevant information found in the knowledge base for query: %q", query), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Found %d relevant result(s) for query: %q\n", len(out.RetrievalResults), query)
	for i, res := range out.RetrievalResults {
		fmt.Fprintf(&b, "\n--- Result %d (Relevance Score: %.3f) ---\n", i+1, aws.ToFloat64(res.Score))
		if res.Location != nil && res.Location.S3Location != nil {
			fmt.Fprintf(&b, "Source: %s\n", aws.ToString(res.Location.S3Location.Uri))
		}
		if res.Content != nil {
			fmt.Fprintf(&b, "Content: %s\n", aws.ToString(res.Content.Text))
		}
	}
	return b.String(), nil
}
