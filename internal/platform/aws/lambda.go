package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/wolfeidau/jitr/internal/platform"
)

// LambdaAPI is the subset of the Lambda client used by Lambda.
type LambdaAPI interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

var _ platform.Invoker = (*Lambda)(nil)

// Lambda invokes verifier functions synchronously.
type Lambda struct {
	client LambdaAPI
}

// NewLambda creates a new Lambda invoker
func NewLambda(client LambdaAPI) *Lambda {
	return &Lambda{client: client}
}

// Invoke calls the named function and returns its payload. A function that
// raised an error is reported as a failed invocation.
func (l *Lambda) Invoke(ctx context.Context, name string, payload []byte) ([]byte, error) {
	out, err := l.client.Invoke(ctx, &lambda.InvokeInput{
		FunctionName: aws.String(name),
		Payload:      payload,
	})
	if err != nil {
		return nil, wrapAWSError(err, "failed to invoke function")
	}

	if out.FunctionError != nil {
		return nil, fmt.Errorf("function %s returned error %s: %s", name, aws.ToString(out.FunctionError), out.Payload)
	}

	if len(out.Payload) == 0 {
		return nil, nil
	}

	return out.Payload, nil
}
