package athena

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsmiddleware "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/smithy-go"

	"github.com/athenaq/athenaq/internal/execution"
)

type api interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
	StopQueryExecution(ctx context.Context, params *athena.StopQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StopQueryExecutionOutput, error)
}

type Service struct {
	client api
}

func New(cfg aws.Config) *Service {
	return NewWithClient(athena.NewFromConfig(cfg))
}

func NewWithClient(client api) *Service {
	return &Service{client: client}
}

func (s *Service) Submit(ctx context.Context, in execution.SubmitInput) (string, error) {
	if strings.TrimSpace(in.Query) == "" {
		return "", fmt.Errorf("query is required")
	}
	params := &athena.StartQueryExecutionInput{
		QueryString: aws.String(in.Query),
	}
	if in.Database != "" {
		params.QueryExecutionContext = &types.QueryExecutionContext{Database: aws.String(in.Database)}
	}
	if in.Workgroup != "" {
		params.WorkGroup = aws.String(in.Workgroup)
	}
	if in.OutputLocation != "" {
		params.ResultConfiguration = &types.ResultConfiguration{OutputLocation: aws.String(in.OutputLocation)}
	}

	out, err := s.client.StartQueryExecution(ctx, params)
	if err != nil {
		if qerr := invalidRequest(err); qerr != nil {
			return "", qerr
		}
		return "", fmt.Errorf("start query execution: %w", err)
	}
	id := aws.ToString(out.QueryExecutionId)
	if id == "" {
		return "", fmt.Errorf("start query execution: empty execution id")
	}
	return id, nil
}

func (s *Service) Status(ctx context.Context, id string) (execution.Record, error) {
	out, err := s.client.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{QueryExecutionId: aws.String(id)})
	if err != nil {
		return execution.Record{}, fmt.Errorf("get query execution %s: %w", id, err)
	}
	if out.QueryExecution == nil {
		return execution.Record{}, fmt.Errorf("get query execution %s: empty response", id)
	}
	return recordFrom(*out.QueryExecution), nil
}

// Stop returns the AWS request id as the acknowledgement.
func (s *Service) Stop(ctx context.Context, id string) (string, error) {
	out, err := s.client.StopQueryExecution(ctx, &athena.StopQueryExecutionInput{QueryExecutionId: aws.String(id)})
	if err != nil {
		return "", fmt.Errorf("stop query execution %s: %w", id, err)
	}
	requestID, _ := awsmiddleware.GetRequestIDMetadata(out.ResultMetadata)
	return requestID, nil
}

func recordFrom(q types.QueryExecution) execution.Record {
	rec := execution.Record{
		ID:            aws.ToString(q.QueryExecutionId),
		Query:         aws.ToString(q.Query),
		Workgroup:     aws.ToString(q.WorkGroup),
		StatementType: execution.StatementType(q.StatementType),
	}
	if q.QueryExecutionContext != nil {
		rec.Database = aws.ToString(q.QueryExecutionContext.Database)
	}
	if q.ResultConfiguration != nil {
		rec.OutputLocation = aws.ToString(q.ResultConfiguration.OutputLocation)
	}
	if st := q.Status; st != nil {
		rec.State = execution.State(st.State)
		rec.StateChangeReason = aws.ToString(st.StateChangeReason)
		rec.SubmittedAt = st.SubmissionDateTime
		rec.CompletedAt = st.CompletionDateTime
	}
	if stats := q.Statistics; stats != nil {
		rec.DataScannedBytes = aws.ToInt64(stats.DataScannedInBytes)
		rec.EngineExecutionMs = aws.ToInt64(stats.EngineExecutionTimeInMillis)
	}
	return rec
}

// invalidRequest turns a syntax rejection at submit time into a QueryError
// so the caller can point at the offending line.
func invalidRequest(err error) *execution.QueryError {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "InvalidRequestException" {
		return nil
	}
	return execution.NewQueryError("", execution.StateFailed, apiErr.ErrorMessage())
}
