package activation

import "encoding/json"

const policyVersion = "2012-10-17"

type policyDocument struct {
	Version   string            `json:"Version"`
	Statement []policyStatement `json:"Statement"`
}

type policyStatement struct {
	Effect   string   `json:"Effect"`
	Action   []string `json:"Action"`
	Resource string   `json:"Resource"`
}

// devicePolicyDocument allows a device to connect and publish, nothing else.
func devicePolicyDocument() (string, error) {
	doc := policyDocument{
		Version: policyVersion,
		Statement: []policyStatement{
			{
				Effect:   "Allow",
				Action:   []string{"iot:Connect", "iot:Publish"},
				Resource: "*",
			},
		},
	}

	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}

	return string(b), nil
}
