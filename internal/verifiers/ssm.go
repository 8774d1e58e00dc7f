package verifiers

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/wolfeidau/jitr/internal/dealer"
)

// SSMAPI is the subset of the SSM client used by SSMSource.
type SSMAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// SSMSource reads the allow-list from an SSM parameter holding a JSON array.
type SSMSource struct {
	client SSMAPI
	name   string
}

// NewSSMSource creates a source reading the named parameter.
func NewSSMSource(client SSMAPI, name string) *SSMSource {
	return &SSMSource{client: client, name: name}
}

func (s *SSMSource) Verifiers(ctx context.Context) ([]string, error) {
	value, err := getParameter(ctx, s.client, s.name)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load verifiers from SSM: %w", dealer.ErrProcessing, err)
	}

	return Parse(value)
}

// getParameter fetches a parameter from SSM
func getParameter(ctx context.Context, client SSMAPI, name string) (string, error) {
	output, err := client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", err
	}
	if output.Parameter == nil || output.Parameter.Value == nil {
		return "", fmt.Errorf("parameter %s has no value", name)
	}
	return *output.Parameter.Value, nil
}
