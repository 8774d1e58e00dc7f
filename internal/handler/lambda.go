package handler

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"

	"github.com/aws/aws-lambda-go/events"

	"github.com/wolfeidau/jitr/internal/dealer"
	"github.com/wolfeidau/jitr/internal/queue"
	"github.com/wolfeidau/jitr/internal/store"
)

// proxyShape picks out the fields that mark an API Gateway proxy event.
type proxyShape struct {
	HTTPMethod     string          `json:"httpMethod"`
	RequestContext json.RawMessage `json:"requestContext"`
}

// RegistrationLambda returns a Lambda handler for CA registration. It accepts an
// API Gateway proxy event, answering with a proxy response, or the registration
// event itself, answering with a Response.
func (h *Handlers) RegistrationLambda() func(ctx context.Context, payload json.RawMessage) (any, error) {
	return func(ctx context.Context, payload json.RawMessage) (any, error) {
		var shape proxyShape
		if err := json.Unmarshal(payload, &shape); err != nil {
			resp, _ := h.reject(ctx, store.PipelineRegistration, dealer.Inputf("invalid registration event: %v", err))
			return resp, nil
		}

		if shape.HTTPMethod == "" && len(shape.RequestContext) == 0 {
			resp, _ := h.Register(ctx, payload)
			return resp, nil
		}

		var req events.APIGatewayProxyRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			resp, _ := h.reject(ctx, store.PipelineRegistration, dealer.Inputf("invalid proxy event: %v", err))
			return proxyResponse(resp)
		}

		body := []byte(req.Body)
		if req.IsBase64Encoded {
			decoded, err := base64.StdEncoding.DecodeString(req.Body)
			if err != nil {
				resp, _ := h.reject(ctx, store.PipelineRegistration, dealer.Inputf("invalid base64 body: %v", err))
				return proxyResponse(resp)
			}
			body = decoded
		}

		resp, _ := h.Register(ctx, body)
		return proxyResponse(resp)
	}
}

// ActivationLambda returns a Lambda handler for device activation fed by an SQS
// event source. Only the first record is processed. Processing failures are
// returned as errors so the event source redelivers the message, other
// rejections are final.
func (h *Handlers) ActivationLambda() func(ctx context.Context, evt events.SQSEvent) (Response, error) {
	return func(ctx context.Context, evt events.SQSEvent) (Response, error) {
		if len(evt.Records) == 0 {
			resp, _ := h.reject(ctx, store.PipelineActivation, dealer.Inputf("event contains no records"))
			return resp, nil
		}

		resp, err := h.Activate(ctx, bytes.TrimSpace([]byte(evt.Records[0].Body)))
		if queue.Retryable(err) {
			return resp, err
		}
		return resp, nil
	}
}

func proxyResponse(resp Response) (events.APIGatewayProxyResponse, error) {
	body, err := json.Marshal(resp.Body)
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}

	return events.APIGatewayProxyResponse{
		StatusCode: resp.StatusCode,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(body),
	}, nil
}
