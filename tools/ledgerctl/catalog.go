package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/hkshop/storefront/models"
	awspkg "github.com/hkshop/storefront/pkg/aws"
	"github.com/hkshop/storefront/repository"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const syncBatchSize = 500

type productWriter interface {
	PutProduct(ctx context.Context, p *models.Product) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, pid int64) error
}

func catalogCmd(open opener) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Maintain the product catalog",
	}
	cmd.AddCommand(catalogSyncDynamoCmd(open))
	return cmd
}

func catalogSyncDynamoCmd(open opener) *cobra.Command {
	var table, redisAddr, redisPassword string
	cmd := &cobra.Command{
		Use:   "sync-dynamo",
		Short: "Copy the Postgres products table into the DynamoDB catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			e, err := open(ctx)
			if err != nil {
				return err
			}
			defer e.close()

			awsCfg, err := awspkg.LoadAWSConfig(ctx)
			if err != nil {
				return err
			}
			dst := repository.NewDynamoProductRepository(dynamodb.NewFromConfig(awsCfg), table)

			var cache cacheInvalidator
			if redisAddr != "" {
				client := redis.NewClient(&redis.Options{Addr: redisAddr, Password: redisPassword})
				defer client.Close()
				cache = repository.NewCachedProductRepository(dst, client, 0, zap.NewNop())
			}
			return syncCatalog(ctx, e.db, dst, cache, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&table, "table", "products", "DynamoDB table name")
	cmd.Flags().StringVar(&redisAddr, "redis-addr", os.Getenv("REDIS_ADDR"), "catalog cache to invalidate after each write")
	cmd.Flags().StringVar(&redisPassword, "redis-password", os.Getenv("REDIS_PASSWORD"), "catalog cache password")
	return cmd
}

// syncCatalog copies every product in pid order. A failed write stops the
// sync. Each written product is evicted from cache when one is given; an
// eviction failure only warns, the entry still expires with its TTL.
func syncCatalog(ctx context.Context, db *gorm.DB, dst productWriter, cache cacheInvalidator, out io.Writer) error {
	var batch []models.Product
	count := 0
	res := db.WithContext(ctx).FindInBatches(&batch, syncBatchSize, func(tx *gorm.DB, _ int) error {
		for i := range batch {
			if err := dst.PutProduct(ctx, &batch[i]); err != nil {
				return fmt.Errorf("product %d: %w", batch[i].PID, err)
			}
			if cache != nil {
				if err := cache.Invalidate(ctx, batch[i].PID); err != nil {
					fmt.Fprintf(out, "warning: product %d: cache invalidation failed: %v\n", batch[i].PID, err)
				}
			}
			count++
		}
		fmt.Fprintf(out, "synced %d products\n", count)
		return nil
	})
	if res.Error != nil {
		return res.Error
	}
	fmt.Fprintf(out, "Sync complete. synced=%d\n", count)
	return nil
}
