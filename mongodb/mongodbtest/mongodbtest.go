// Package mongodbtest runs a MongoDB container for integration tests.
package mongodbtest

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/spf13/viper"
	"github.com/testcontainers/testcontainers-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/fx/fxtest"
	"umbasa.net/seraph-mounts/mongodb"
	"umbasa.net/seraph-mounts/tracing"
)

var (
	once      sync.Once
	container testcontainers.Container
	url       string
	startErr  error
)

// dockerHealth reports why no container runtime can be used. Looking up the
// docker host panics when none is configured.
var dockerHealth = sync.OnceValue(func() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("no docker host: %v", r)
		}
	}()
	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		return err
	}
	defer provider.Close()
	return provider.Health(context.Background())
})

func start() {
	req := testcontainers.ContainerRequest{
		Image:        "mongo:8",
		ExposedPorts: []string{"27017/tcp"},
	}

	container, startErr = testcontainers.GenericContainer(context.Background(), testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if startErr != nil {
		return
	}

	endpoint, err := container.Endpoint(context.Background(), "")
	if err != nil {
		startErr = err
		return
	}

	url = fmt.Sprintf("mongodb://%s/", endpoint)
}

// Viper returns a configuration pointing at database dbName of the test
// container. The test is skipped when no container runtime is available.
func Viper(t *testing.T, dbName string) *viper.Viper {
	if err := dockerHealth(); err != nil {
		t.Skipf("Docker is not available: %s", err)
	}

	once.Do(start)
	if startErr != nil {
		t.Fatal(startErr)
	}

	v := viper.New()
	v.Set("mongo.url", url)
	v.Set("mongo.db", dbName)
	return v
}

// Database returns a client connected to the database of the test container.
func Database(t *testing.T, v *viper.Viper) *mongo.Database {
	res, err := mongodb.NewClient(mongodb.ClientParams{
		Viper:   v,
		Tracing: tracing.NewNoopTracing(),
		Lc:      fxtest.NewLifecycle(t),
	})
	if err != nil {
		t.Fatal(err)
	}

	return res.Client.Database(v.GetString("mongo.db"))
}

// Shutdown terminates the container if it was started.
func Shutdown() {
	if container != nil {
		testcontainers.TerminateContainer(container)
		container = nil
	}
}
