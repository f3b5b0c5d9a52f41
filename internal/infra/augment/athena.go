package augment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"

	"github.com/veriscope/veriscope/internal/domain/catalog"
)

const (
	pollInterval  = 2 * time.Second
	maxResultRows = 100
)

type AthenaClient struct {
	client         *athena.Client
	outputLocation string
}

func NewAthenaClient(client *athena.Client, outputLocation string) *AthenaClient {
	return &AthenaClient{client: client, outputLocation: outputLocation}
}

// Lookup runs the agent's configured query and renders the result set as
// pipe-separated text, capped at maxResultRows rows.
func (c *AthenaClient) Lookup(ctx context.Context, agent *catalog.Agent, _ string) (string, error) {
	if agent.AthenaQuery == "" {
		return "", fmt.Errorf("agent %s: no athena query configured", agent.ID)
	}

	start, err := c.client.StartQueryExecution(ctx, &athena.StartQueryExecutionInput{
		QueryString: aws.String(agent.AthenaQuery),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{
			Database: aws.String(agent.AthenaDatabase),
		},
		ResultConfiguration: &athenatypes.ResultConfiguration{
			OutputLocation: aws.String(c.outputLocation),
		},
	})
	if err != nil {
		return "", fmt.Errorf("starting athena query: %w", err)
	}
	execID := start.QueryExecutionId

	for {
		exec, err := c.client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{
			QueryExecutionId: execID,
		})
		if err != nil {
			return "", fmt.Errorf("polling athena query: %w", err)
		}
		state := exec.QueryExecution.Status.State
		if state == athenatypes.QueryExecutionStateSucceeded {
			break
		}
		if state == athenatypes.QueryExecutionStateFailed || state == athenatypes.QueryExecutionStateCancelled {
			reason := aws.ToString(exec.QueryExecution.Status.StateChangeReason)
			return "", fmt.Errorf("athena query %s: %s", strings.ToLower(string(state)), reason)
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(pollInterval):
		}
	}

	results, err := c.client.GetQueryResults(ctx, &athena.GetQueryResultsInput{
		QueryExecutionId: execID,
		MaxResults:       aws.Int32(maxResultRows + 1),
	})
	if err != nil {
		return "", fmt.Errorf("fetching athena results: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Query results from database %s:\n", agent.AthenaDatabase)
	for i, row := range results.ResultSet.Rows {
		if i > maxResultRows {
			b.WriteString("... (truncated)\n")
			break
		}
		cells := make([]string, 0, len(row.Data))
		for _, d := range row.Data {
			cells = append(cells, aws.ToString(d.VarCharValue))
		}
		b.WriteString(strings.Join(cells, " | "))
		b.WriteString("\n")
	}
	return b.String(), nil
}
