// Package bedrock builds Amazon Bedrock runtime clients from the standard
// AWS credential chain.
package bedrock

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
)

// DefaultRegion is used when neither config nor environment name one.
const DefaultRegion = "us-east-1"

// NewRuntime returns a runtime client for region. A non-empty endpoint
// replaces the regional endpoint (VPC endpoints, local proxies).
// Credentials are resolved lazily, so a missing profile surfaces on the
// first call rather than here.
func NewRuntime(ctx context.Context, region, endpoint string) (*bedrockruntime.Client, error) {
	if region == "" {
		region = DefaultRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return bedrockruntime.NewFromConfig(cfg, func(o *bedrockruntime.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	}), nil
}
