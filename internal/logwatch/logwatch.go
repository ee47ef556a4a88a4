// Package logwatch tails the execution platform's log group for a
// just-published function version.
package logwatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
)

const pollInterval = 2 * time.Second

// Client is the slice of the CloudWatch Logs API the watcher uses.
type Client interface {
	FilterLogEvents(ctx context.Context, in *cloudwatchlogs.FilterLogEventsInput, opts ...func(*cloudwatchlogs.Options)) (*cloudwatchlogs.FilterLogEventsOutput, error)
}

type Watcher struct {
	client   Client
	interval time.Duration
}

func New(client Client) (*Watcher, error) {
	if client == nil {
		return nil, errors.New("cloudwatch logs client is required")
	}
	return &Watcher{client: client, interval: pollInterval}, nil
}

// NewFromEnv builds a watcher on the default AWS credential chain.
func NewFromEnv(ctx context.Context, profile string) (*Watcher, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if strings.TrimSpace(profile) != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(profile))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return New(cloudwatchlogs.NewFromConfig(cfg))
}

// Watch polls the function's log group and writes events produced by
// the given published version until the context is canceled.
func (w *Watcher) Watch(ctx context.Context, functionName, version string, out io.Writer) error {
	group := "/aws/lambda/" + functionName
	marker := "[" + version + "]"
	start := time.Now().Add(-w.interval).UnixMilli()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		var nextToken *string
		for {
			resp, err := w.client.FilterLogEvents(ctx, &cloudwatchlogs.FilterLogEventsInput{
				LogGroupName: aws.String(group),
				StartTime:    aws.Int64(start),
				NextToken:    nextToken,
			})
			if err != nil {
				return fmt.Errorf("filter log events %s: %w", group, err)
			}
			for _, event := range resp.Events {
				if !strings.Contains(aws.ToString(event.LogStreamName), marker) {
					continue
				}
				fmt.Fprintln(out, strings.TrimRight(aws.ToString(event.Message), "\n"))
				if ts := aws.ToInt64(event.Timestamp); ts >= start {
					start = ts + 1
				}
			}
			nextToken = resp.NextToken
			if nextToken == nil {
				break
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
