package aws

import (
	"errors"
	"fmt"
	"strings"

	iottypes "github.com/aws/aws-sdk-go-v2/service/iot/types"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"github.com/aws/smithy-go"
	"github.com/wolfeidau/jitr/internal/dealer"
)

// ErrThrottled marks a request rejected by AWS rate limiting
var ErrThrottled = errors.New("AWS request throttled")

// wrapAWSError wraps AWS SDK errors, identifying missing resources and throttling.
// Missing resources become dealer.ErrResourceNotFound, everything else dealer.ErrProcessing.
func wrapAWSError(err error, msg string) error {
	if err == nil {
		return nil
	}

	var (
		iotNotFound    *iottypes.ResourceNotFoundException
		lambdaNotFound *lambdatypes.ResourceNotFoundException
	)
	if errors.As(err, &iotNotFound) || errors.As(err, &lambdaNotFound) {
		return fmt.Errorf("%s: %w: %v", msg, dealer.ErrResourceNotFound, err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchBucket", "NotFound", "ResourceNotFoundException":
			return fmt.Errorf("%s: %w: %v", msg, dealer.ErrResourceNotFound, err)
		}
	}

	// AWS SDK v2 doesn't always use typed errors for throttling
	errMsg := err.Error()
	if strings.Contains(errMsg, "ThrottlingException") ||
		strings.Contains(errMsg, "RequestLimitExceeded") ||
		strings.Contains(errMsg, "TooManyRequestsException") ||
		strings.Contains(errMsg, "Throttling") {
		return fmt.Errorf("%s: %w: %w: %v", msg, dealer.ErrProcessing, ErrThrottled, err)
	}

	return fmt.Errorf("%s: %w: %w", msg, dealer.ErrProcessing, err)
}
