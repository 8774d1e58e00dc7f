package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// CreateBucket creates the certificate bundle bucket.
// If cleanResources is true, deletes an existing bucket and its objects first
func CreateBucket(ctx context.Context, client *s3.Client, bucketName string, cleanResources bool) error {
	if cleanResources {
		if err := deleteBucketIfExists(ctx, client, bucketName); err != nil {
			return err
		}
	}

	input := &s3.CreateBucketInput{
		Bucket: aws.String(bucketName),
	}

	// us-east-1 rejects an explicit location constraint
	if region := client.Options().Region; region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}

	_, err := client.CreateBucket(ctx, input)
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		if !cleanResources && errors.As(err, &owned) {
			return nil
		}
		return err
	}

	waiter := s3.NewBucketExistsWaiter(client)
	return waiter.Wait(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucketName)}, 30*time.Second)
}

// deleteBucketIfExists empties and deletes a bucket if it exists
func deleteBucketIfExists(ctx context.Context, client *s3.Client, bucketName string) error {
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucketName),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			var noSuchBucket *types.NoSuchBucket
			if errors.As(err, &noSuchBucket) {
				return nil
			}
			return fmt.Errorf("failed to list objects in %s: %w", bucketName, err)
		}

		for _, obj := range page.Contents {
			if _, err := client.DeleteObject(ctx, &s3.DeleteObjectInput{
				Bucket: aws.String(bucketName),
				Key:    obj.Key,
			}); err != nil {
				return fmt.Errorf("failed to delete object %s: %w", aws.ToString(obj.Key), err)
			}
		}
	}

	if _, err := client.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(bucketName)}); err != nil {
		return err
	}

	waiter := s3.NewBucketNotExistsWaiter(client)
	return waiter.Wait(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucketName)}, 30*time.Second)
}
