// Package awsconf собирает aws.Config для клиентов AWS SDK.
package awsconf

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"

	"github.com/magabrotheeeer/account-service/internal/config"
)

// Load возвращает aws.Config для региона из cfg. Если ключи заданы явно,
// используются статические учётные данные, иначе стандартная цепочка SDK.
func Load(ctx context.Context, cfg config.AWS) (aws.Config, error) {
	const op = "awsconf.Load"
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("%s: %w", op, err)
	}
	return awsCfg, nil
}
