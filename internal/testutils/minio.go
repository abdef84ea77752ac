//go:build integration

package testutils

import (
	"context"
	"fmt"
	"io"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"gocloud.dev/blob"
)

const (
	minioUser     = "minioadmin"
	minioPassword = "minioadmin"
)

// Minio is a running MinIO server holding one bucket.
type Minio struct {
	Container testcontainers.Container
	// BucketURL opens the bucket through gocloud's s3blob driver.
	BucketURL string
}

// Close terminates the container.
func (m *Minio) Close(ctx context.Context) error {
	if m.Container == nil {
		return nil
	}
	return m.Container.Terminate(ctx)
}

// OpenBucket opens the bucket.
func (m *Minio) OpenBucket(ctx context.Context) (*blob.Bucket, error) {
	return blob.OpenBucket(ctx, m.BucketURL)
}

// StartMinioContainer starts MinIO, creates bucketName with the bundled mc
// client and exports credentials for s3blob.
func StartMinioContainer(t *testing.T, ctx context.Context, bucketName string) *Minio {
	t.Helper()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "minio/minio:latest",
			ExposedPorts: []string{"9000/tcp"},
			Env: map[string]string{
				"MINIO_ROOT_USER":     minioUser,
				"MINIO_ROOT_PASSWORD": minioPassword,
			},
			Cmd:        []string{"server", "/data"},
			WaitingFor: wait.ForHTTP("/minio/health/ready").WithPort("9000"),
		},
		Started: true,
	})
	if err != nil {
		t.Fatalf("start minio container: %v", err)
	}

	script := fmt.Sprintf("mc alias set local http://127.0.0.1:9000 %s %s && mc mb --ignore-existing local/%s",
		minioUser, minioPassword, bucketName)
	code, out, err := container.Exec(ctx, []string{"sh", "-c", script})
	if err != nil {
		t.Fatalf("create bucket: %v", err)
	}
	if code != 0 {
		msg, _ := io.ReadAll(out)
		t.Fatalf("create bucket: mc exited with %d: %s", code, msg)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "9000")
	if err != nil {
		t.Fatalf("get container port: %v", err)
	}

	t.Setenv("AWS_ACCESS_KEY_ID", minioUser)
	t.Setenv("AWS_SECRET_ACCESS_KEY", minioPassword)

	return &Minio{
		Container: container,
		BucketURL: fmt.Sprintf("s3://%s?endpoint=http://%s:%s&use_path_style=true&disable_https=true&region=us-east-1",
			bucketName, host, port.Port()),
	}
}
