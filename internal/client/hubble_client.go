package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"traffic-anomaly-detector/internal/model"
	"traffic-anomaly-detector/internal/pipeline"

	flowpb "github.com/cilium/cilium/api/v1/flow"
	"github.com/cilium/cilium/api/v1/observer"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

type HubbleGRPCClient struct {
	conn    *grpc.ClientConn
	server  string
	metrics *PrometheusMetrics
	logger  *logrus.Logger
}

func NewHubbleGRPCClient(server string, metrics *PrometheusMetrics, logger *logrus.Logger, opts ...grpc.DialOption) (*HubbleGRPCClient, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(server, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Hubble server: %w", err)
	}

	return &HubbleGRPCClient{
		conn:    conn,
		server:  server,
		metrics: metrics,
		logger:  logger,
	}, nil
}

func (c *HubbleGRPCClient) Close() error {
	return c.conn.Close()
}

// namespaceFilters matches flows whose source or destination lives in one of namespaces
func namespaceFilters(namespaces []string) []*observer.FlowFilter {
	var filters []*observer.FlowFilter
	for _, ns := range namespaces {
		if ns == "" {
			continue
		}
		filters = append(filters,
			&observer.FlowFilter{
				SourceLabel: []string{"k8s:io.kubernetes.pod.namespace=" + ns},
			},
			&observer.FlowFilter{
				DestinationLabel: []string{"k8s:io.kubernetes.pod.namespace=" + ns},
			},
		)
	}
	return filters
}

// RecentEndpoints reads up to maxFlows buffered flows and returns the distinct endpoint
// identities seen on either side, sorted
func (c *HubbleGRPCClient) RecentEndpoints(ctx context.Context, namespaces []string, maxFlows uint64) ([]string, error) {
	client := observer.NewObserverClient(c.conn)

	req := &observer.GetFlowsRequest{
		Number:    maxFlows,
		Follow:    false,
		Whitelist: namespaceFilters(namespaces),
	}

	stream, err := client.GetFlows(ctx, req)
	if err != nil {
		c.recordError("stream_start_failed")
		return nil, fmt.Errorf("failed to start flow streaming: %w", err)
	}

	seen := make(map[string]struct{})
	flowCount := 0
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.recordError("stream_receive_failed")
			return nil, fmt.Errorf("failed to receive flow: %w", err)
		}

		flow := response.GetFlow()
		if flow == nil {
			continue
		}
		flowCount++
		for _, ep := range []*flowpb.Endpoint{flow.GetSource(), flow.GetDestination()} {
			if id := convertEndpoint(ep).Identity(); id != "" && inNamespaces(ep.GetNamespace(), namespaces) {
				seen[id] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if c.logger != nil {
		c.logger.Debugf("Read %d flows from %s, %d distinct endpoints", flowCount, c.server, len(ids))
	}
	return ids, nil
}

func (c *HubbleGRPCClient) recordError(reason string) {
	if c.metrics != nil {
		c.metrics.RecordSourceError("hubble", reason)
	}
}

func inNamespaces(ns string, namespaces []string) bool {
	if len(namespaces) == 0 {
		return true
	}
	for _, n := range namespaces {
		if n == ns {
			return true
		}
	}
	return false
}

func convertEndpoint(ep *flowpb.Endpoint) *model.Endpoint {
	if ep == nil || ep.GetPodName() == "" {
		return nil
	}

	endpoint := &model.Endpoint{
		Namespace: ep.GetNamespace(),
		PodName:   ep.GetPodName(),
	}
	if workloads := ep.GetWorkloads(); len(workloads) > 0 && workloads[0].GetName() != "" {
		endpoint.Workload = workloads[0].GetName()
	} else {
		endpoint.Workload = extractServiceName(ep.GetPodName())
	}
	return endpoint
}

// extractServiceName extracts service name from pod name (e.g., demo-api-5f7b8c9d4f-abc12 -> demo-api)
func extractServiceName(podName string) string {
	parts := strings.Split(podName, "-")
	if len(parts) <= 2 {
		return podName
	}
	// Deployment pods end in two generated hash segments
	lastPart := parts[len(parts)-1]
	secondLastPart := parts[len(parts)-2]
	if len(lastPart) >= 5 && len(secondLastPart) >= 5 {
		return strings.Join(parts[:len(parts)-2], "-")
	}
	return podName
}

// HubbleSource lists the workloads recently seen by a Hubble relay as capture identifiers
type HubbleSource struct {
	client     *HubbleGRPCClient
	namespaces []string
	maxFlows   uint64
	timeout    time.Duration
}

func NewHubbleSource(client *HubbleGRPCClient, namespaces []string, maxFlows uint64, timeout time.Duration) *HubbleSource {
	return &HubbleSource{
		client:     client,
		namespaces: namespaces,
		maxFlows:   maxFlows,
		timeout:    timeout,
	}
}

// Identifiers implements pipeline.Source
func (s *HubbleSource) Identifiers(ctx context.Context) ([]string, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	ids, err := s.client.RecentEndpoints(ctx, s.namespaces, s.maxFlows)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no endpoints observed by %s in namespaces %s",
			pipeline.ErrConfiguration, s.client.server, strings.Join(s.namespaces, ","))
	}
	return ids, nil
}

// Describe implements pipeline.Source
func (s *HubbleSource) Describe() string {
	return "hubble:" + s.client.server
}
