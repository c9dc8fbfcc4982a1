package intake

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/data/azcosmos"
)

// CosmosConfig locates the forms container in an Azure Cosmos DB account.
type CosmosConfig struct {
	ConnectionString string
	Database         string
	Container        string
	// PartitionKey restricts the scan to one logical partition. Empty runs a
	// cross-partition query.
	PartitionKey string
	PageSize     int
}

type cosmosQueryPager interface {
	More() bool
	NextPage(ctx context.Context) (azcosmos.QueryItemsResponse, error)
}

type cosmosSource struct {
	container *azcosmos.ContainerClient
	query     string
	pk        azcosmos.PartitionKey
	pageSize  int32
}

// NewCosmosSource connects to the container holding the processed forms.
func NewCosmosSource(cfg CosmosConfig) (RecordSource, error) {
	client, err := azcosmos.NewClientFromConnectionString(cfg.ConnectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create cosmos client: %w", err)
	}

	container, err := client.NewContainer(cfg.Database, cfg.Container)
	if err != nil {
		return nil, fmt.Errorf("open container %s/%s: %w", cfg.Database, cfg.Container, err)
	}

	return &cosmosSource{
		container: container,
		query:     "SELECT * FROM " + cfg.Container,
		pk:        partitionKey(cfg.PartitionKey),
		pageSize:  int32(cfg.PageSize),
	}, nil
}

// partitionKey scopes the scan to one logical partition, or to all of them
// when value is empty.
func partitionKey(value string) azcosmos.PartitionKey {
	if value == "" {
		return azcosmos.NewPartitionKey()
	}
	return azcosmos.NewPartitionKeyString(value)
}

func (s *cosmosSource) Pager(_ context.Context) (RecordPager, error) {
	opts := &azcosmos.QueryOptions{}
	if s.pageSize > 0 {
		opts.PageSizeHint = s.pageSize
	}
	return &cosmosPager{pager: s.container.NewQueryItemsPager(s.query, s.pk, opts)}, nil
}

func (s *cosmosSource) Close() error { return nil }

type cosmosPager struct {
	pager cosmosQueryPager
}

func (p *cosmosPager) More() bool { return p.pager.More() }

func (p *cosmosPager) NextPage(ctx context.Context) ([]*FormRecord, error) {
	resp, err := p.pager.NextPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("query forms container: %w", err)
	}

	items := make([]*FormRecord, 0, len(resp.Items))
	for i, item := range resp.Items {
		var rec FormRecord
		if err := json.Unmarshal(item, &rec); err != nil {
			return nil, fmt.Errorf("decode item %d of page: %w", i+1, err)
		}
		items = append(items, &rec)
	}
	return items, nil
}
