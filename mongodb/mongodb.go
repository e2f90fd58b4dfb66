package mongodb

import (
	"context"

	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsoncodec"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/contrib/instrumentation/go.mongodb.org/mongo-driver/mongo/otelmongo"
	"go.uber.org/fx"
	"umbasa.net/seraph-mounts/entities"
	"umbasa.net/seraph-mounts/tracing"
)

var Module = fx.Module("mongodb",
	fx.Provide(
		NewClient,
		NewDb,
	),
)

type ClientParams struct {
	fx.In

	Viper   *viper.Viper
	Tracing *tracing.Tracing
	Lc      fx.Lifecycle
}

type ClientResult struct {
	fx.Out

	Client *mongo.Client
}

func getCustomRegistry() *bsoncodec.Registry {
	r := bson.NewRegistry()

	entities.RegisterEncoders(r)

	return r
}

func NewClient(p ClientParams) (ClientResult, error) {
	p.Viper.SetDefault("mongo.url", "mongodb://localhost:27017/")

	uri := p.Viper.GetString("mongo.url")
	opts := options.Client().
		ApplyURI(uri).
		SetRegistry(getCustomRegistry()).
		SetMonitor(otelmongo.NewMonitor(otelmongo.WithTracerProvider(p.Tracing.TracerProvider)))

	client, err := mongo.Connect(context.Background(), opts)
	if err != nil {
		return ClientResult{}, err
	}

	p.Lc.Append(fx.StopHook(func(ctx context.Context) error {
		return client.Disconnect(ctx)
	}))

	return ClientResult{
		Client: client,
	}, nil
}

type DbParams struct {
	fx.In

	Viper  *viper.Viper
	Client *mongo.Client
}

type DbResult struct {
	fx.Out

	Db *mongo.Database
}

func NewDb(p DbParams) DbResult {
	dbName := p.Viper.GetString("mongo.db")
	db := p.Client.Database(dbName)

	return DbResult{
		Db: db,
	}
}
