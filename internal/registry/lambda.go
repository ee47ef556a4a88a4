package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
)

// LambdaRegistry implements Registry against the AWS Lambda API.
type LambdaRegistry struct {
	client *lambda.Client
}

func NewLambdaRegistry(client *lambda.Client) (*LambdaRegistry, error) {
	if client == nil {
		return nil, errors.New("lambda client is required")
	}
	return &LambdaRegistry{client: client}, nil
}

// NewLambdaRegistryFromEnv builds a client from the default AWS
// credential chain, honoring an optional shared-config profile.
func NewLambdaRegistryFromEnv(ctx context.Context, profile string) (*LambdaRegistry, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if strings.TrimSpace(profile) != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewLambdaRegistry(lambda.NewFromConfig(cfg))
}

func (r *LambdaRegistry) GetFunction(ctx context.Context, name, qualifier string) (FunctionState, error) {
	out, err := r.client.GetFunction(ctx, &lambda.GetFunctionInput{
		FunctionName: aws.String(name),
		Qualifier:    aws.String(qualifier),
	})
	if err != nil {
		return FunctionState{}, fmt.Errorf("get function %s:%s: %w", name, qualifier, err)
	}
	cfg := out.Configuration
	if cfg == nil {
		return FunctionState{}, fmt.Errorf("get function %s:%s: empty configuration", name, qualifier)
	}
	return FunctionState{
		Version:     aws.ToString(cfg.Version),
		CodeSha256:  aws.ToString(cfg.CodeSha256),
		RevisionTag: aws.ToString(cfg.Description),
		ARN:         aws.ToString(cfg.FunctionArn),
	}, nil
}

func (r *LambdaRegistry) LatestLayer(ctx context.Context, layerName string) (LayerState, error) {
	out, err := r.client.ListLayerVersions(ctx, &lambda.ListLayerVersionsInput{
		LayerName: aws.String(layerName),
		MaxItems:  aws.Int32(1),
	})
	if err != nil {
		return LayerState{}, fmt.Errorf("list layer versions %s: %w", layerName, err)
	}
	if len(out.LayerVersions) == 0 {
		return LayerState{}, nil
	}
	latest := out.LayerVersions[0]
	return LayerState{
		Version:     latest.Version,
		RevisionTag: aws.ToString(latest.Description),
	}, nil
}

func (r *LambdaRegistry) PublishLayerVersion(ctx context.Context, in PublishLayerInput) (LayerVersion, error) {
	out, err := r.client.PublishLayerVersion(ctx, &lambda.PublishLayerVersionInput{
		LayerName:   aws.String(in.LayerName),
		Description: aws.String(in.Description),
		Content: &types.LayerVersionContentInput{
			S3Bucket: aws.String(in.Bucket),
			S3Key:    aws.String(in.Key),
		},
		CompatibleRuntimes: []types.Runtime{types.Runtime(in.CompatibleRuntime)},
	})
	if err != nil {
		return LayerVersion{}, classify(fmt.Errorf("publish layer version %s: %w", in.LayerName, err))
	}
	return LayerVersion{
		Version: out.Version,
		ARN:     aws.ToString(out.LayerVersionArn),
	}, nil
}

func (r *LambdaRegistry) AttachLayer(ctx context.Context, functionName, layerARN string) error {
	_, err := r.client.UpdateFunctionConfiguration(ctx, &lambda.UpdateFunctionConfigurationInput{
		FunctionName: aws.String(functionName),
		Layers:       []string{layerARN},
	})
	if err != nil {
		return classify(fmt.Errorf("attach layer to %s: %w", functionName, err))
	}
	return nil
}

func (r *LambdaRegistry) UpdateFunctionCode(ctx context.Context, functionName, bucket, key string) error {
	_, err := r.client.UpdateFunctionCode(ctx, &lambda.UpdateFunctionCodeInput{
		FunctionName: aws.String(functionName),
		S3Bucket:     aws.String(bucket),
		S3Key:        aws.String(key),
	})
	if err != nil {
		return classify(fmt.Errorf("update function code %s: %w", functionName, err))
	}
	return nil
}

func (r *LambdaRegistry) PublishVersion(ctx context.Context, functionName, description string) (string, error) {
	out, err := r.client.PublishVersion(ctx, &lambda.PublishVersionInput{
		FunctionName: aws.String(functionName),
		Description:  aws.String(description),
	})
	if err != nil {
		return "", classify(fmt.Errorf("publish version %s: %w", functionName, err))
	}
	return aws.ToString(out.Version), nil
}

func (r *LambdaRegistry) UpdateAlias(ctx context.Context, functionName, alias, version, description string) error {
	_, err := r.client.UpdateAlias(ctx, &lambda.UpdateAliasInput{
		FunctionName:    aws.String(functionName),
		Name:            aws.String(alias),
		FunctionVersion: aws.String(version),
		Description:     aws.String(description),
	})
	if err != nil {
		return classify(fmt.Errorf("update alias %s:%s: %w", functionName, alias, err))
	}
	return nil
}

// classify folds the platform's mid-update signal into ErrConflict so
// the retry wrapper can act on it without knowing the SDK.
func classify(err error) error {
	var conflict *types.ResourceConflictException
	if errors.As(err, &conflict) {
		return fmt.Errorf("%w: %s", ErrConflict, err)
	}
	return err
}
