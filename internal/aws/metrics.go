package aws

import (
	"context"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/sirupsen/logrus"
)

// Metrics publishes counters to CloudWatch. Failures are logged and never
// returned; metrics must not fail an order operation.
type Metrics struct {
	client    CloudWatchAPI
	namespace string
	timeout   time.Duration
	log       *logrus.Entry
}

// NewMetrics returns a CloudWatch-backed counter publisher.
func NewMetrics(client CloudWatchAPI, namespace string, log *logrus.Entry) *Metrics {
	if namespace == "" {
		namespace = "BiteBuddy/Orders"
	}
	return &Metrics{
		client:    client,
		namespace: namespace,
		timeout:   2 * time.Second,
		log:       log.WithField("component", "metrics"),
	}
}

// Count records a single occurrence of name with the given dimensions.
func (m *Metrics) Count(ctx context.Context, name string, dims map[string]string) {
	if m == nil || m.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	dimensions := make([]cwtypes.Dimension, 0, len(keys))
	for _, k := range keys {
		dimensions = append(dimensions, cwtypes.Dimension{Name: awsString(k), Value: awsString(dims[k])})
	}

	one := 1.0
	_, err := m.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace: awsString(m.namespace),
		MetricData: []cwtypes.MetricDatum{
			{
				MetricName: awsString(name),
				Dimensions: dimensions,
				Unit:       cwtypes.StandardUnitCount,
				Value:      &one,
			},
		},
	})
	if err != nil {
		m.log.WithError(err).WithField("metric", name).Warn("put metric data failed")
	}
}
