package verifiers

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/require"
	"github.com/wolfeidau/jitr/internal/dealer"
)

func TestCheck(t *testing.T) {
	src := JSONSource(`["checkDevice","arn%3Aaws%3Alambda%3Aus-east-1%3A123456789012%3Afunction%3Averify"]`)

	tests := []struct {
		name    string
		src     Source
		verifier string
		wantErr error
	}{
		{name: "empty name always allowed", src: JSONSource(""), verifier: ""},
		{name: "allowed", src: src, verifier: "checkDevice"},
		{name: "allowed encoded arn", src: src, verifier: "arn%3Aaws%3Alambda%3Aus-east-1%3A123456789012%3Afunction%3Averify"},
		{name: "not allowed", src: src, verifier: "bogus", wantErr: dealer.ErrInput},
		{name: "empty allow-list", src: JSONSource(""), verifier: "checkDevice", wantErr: dealer.ErrInput},
		{name: "malformed allow-list", src: JSONSource(`checkDevice`), verifier: "checkDevice", wantErr: dealer.ErrProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Check(context.Background(), tt.src, tt.verifier)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

type fakeSSM struct {
	value *string
	err   error
	name  string
}

func (f *fakeSSM) GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.name = aws.ToString(params.Name)
	if f.err != nil {
		return nil, f.err
	}
	return &ssm.GetParameterOutput{Parameter: &types.Parameter{Value: f.value}}, nil
}

func TestSSMSource(t *testing.T) {
	client := &fakeSSM{value: aws.String(`["checkDevice"]`)}
	src := NewSSMSource(client, "/jitr/dev/verifiers")

	names, err := src.Verifiers(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"checkDevice"}, names)
	require.Equal(t, "/jitr/dev/verifiers", client.name)
}

func TestSSMSource_failures(t *testing.T) {
	_, err := NewSSMSource(&fakeSSM{err: errors.New("access denied")}, "p").Verifiers(context.Background())
	require.ErrorIs(t, err, dealer.ErrProcessing)

	_, err = NewSSMSource(&fakeSSM{}, "p").Verifiers(context.Background())
	require.ErrorContains(t, err, "has no value")
}
