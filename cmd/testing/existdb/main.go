// Existdb is a manual end to end test of the XML store against a running eXist-db server.
//
// It stores a few books on a collection, reads them back with queries, mirrors them on a bucket
// and prints the document events published along the way. Configuration comes from env vars:
//
//   - XMLSTORE_TEST_EXISTDB_URL, XMLSTORE_TEST_EXISTDB_USER, XMLSTORE_TEST_EXISTDB_PASSWORD (see existdb.LoadConfig)
//   - XMLSTORE_TEST_LOG_LEVEL and XMLSTORE_TEST_LOG_FMT
//   - COLLECTION: defaults to /db/xmlstore-test
//   - EVENTS_URL: a gocloud.dev pubsub topic URL, defaults to mem://xmlstore-test
//   - SUBSCRIPTION_URL: a gocloud.dev pubsub subscription URL, defaults to EVENTS_URL
//   - GOOGLE_PROJECT, TOPIC_NAME and SUBSCRIPTION_NAME: when GOOGLE_PROJECT is set the Google Pub/Sub
//     topic and subscription are created (if needed) and used instead of EVENTS_URL and SUBSCRIPTION_URL
//   - PUBSUB_EMULATOR_HOST: host:port of a Pub/Sub emulator, used without authentication
//   - BUCKET_URL: a gocloud.dev blob URL, defaults to mem://
//   - METRICS_ADDR: when set, metrics are served on http://METRICS_ADDR/metrics
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	"github.com/birdie-ai/xmlstore/event"
	"github.com/birdie-ai/xmlstore/existdb"
	"github.com/birdie-ai/xmlstore/service"
	"github.com/birdie-ai/xmlstore/slog"
	"github.com/birdie-ai/xmlstore/tracing"
	"github.com/birdie-ai/xmlstore/xmldb"
	"github.com/birdie-ai/xmlstore/xmlfile"
	"github.com/birdie-ai/xmlstore/xquery"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gocloud.dev/blob"
	"gocloud.dev/pubsub"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// Book is the test record.
type Book struct {
	Title  string
	Author string
	Year   int
	Price  float64
}

// XMLSerializable marks Book as an XML record.
func (Book) XMLSerializable() {}

const serviceName = "XMLSTORE_TEST"

var books = []Book{
	{Title: "1984", Author: "Orwell", Year: 1949, Price: 9.5},
	{Title: "Animal Farm", Author: "Orwell", Year: 1945, Price: 7},
	{Title: "Dune", Author: "Herbert", Year: 1965, Price: 12.25},
}

func main() {
	logcfg, err := slog.LoadConfig(serviceName)
	panicerr(err)
	panicerr(slog.Configure(logcfg))

	dbcfg, err := existdb.LoadConfig(serviceName)
	panicerr(err)

	collection := getenv("COLLECTION", "/db/xmlstore-test")
	eventsURL := getenv("EVENTS_URL", "mem://xmlstore-test")
	subscriptionURL := getenv("SUBSCRIPTION_URL", eventsURL)
	bucketURL := getenv("BUCKET_URL", "mem://")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if projectID := os.Getenv("GOOGLE_PROJECT"); projectID != "" {
		eventsURL, subscriptionURL, err = createGoogleSubscription(ctx, projectID,
			getenv("TOPIC_NAME", "xmlstore-test"), getenv("SUBSCRIPTION_NAME", "xmlstore-test"))
		panicerr(err)
	}

	registry := prometheus.NewRegistry()
	xmldb.MustRegisterMetrics(registry)
	event.MustRegisterMetrics(registry)
	service.MustRegisterMetrics(registry)
	service.SampleBuildInfo("xmlstore-test")

	shutdown := service.NewShutdownHandler(10 * time.Second)
	g, gctx := errgroup.WithContext(ctx)

	if addr := os.Getenv("METRICS_ADDR"); addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		shutdown.Add("metrics server", server)
		g.Go(func() error {
			if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	// The subscription of mem:// topics must be opened after the topic.
	topic, err := pubsub.OpenTopic(ctx, eventsURL)
	panicerr(err)
	publisher := event.NewPublisher[existdb.DocumentEvent](existdb.DocumentEventName, topic)
	subscription, err := event.NewSubscription[existdb.DocumentEvent](existdb.DocumentEventName, subscriptionURL, 1)
	panicerr(err)
	shutdown.Add("subscription", subscription)
	shutdown.Add("publisher", publisher)

	g.Go(func() error {
		err := subscription.Serve(gctx, func(ctx context.Context, ev existdb.DocumentEvent) error {
			slog.FromCtx(ctx).Info("document event", "op", ev.Op, "collection", ev.Collection, "document", ev.Document)
			return nil
		})
		if gctx.Err() != nil {
			return nil
		}
		return err
	})

	bucket, err := xmlfile.OpenBucket(ctx, bucketURL)
	panicerr(err)
	shutdown.Add("bucket", service.Closer(bucket))

	client, err := existdb.Open(ctx, dbcfg, existdb.WithEvents(publisher))
	panicerr(err)
	shutdown.Add("existdb", service.Closer(client))

	g.Go(func() error {
		return shutdown.Wait(gctx)
	})

	runErr := run(ctx, client, bucket, collection)
	if runErr != nil {
		slog.Error("manual test failed", "error", runErr)
	}
	cancel()

	if err := g.Wait(); err != nil {
		slog.Fatal("shutdown failed", "error", err)
	}
	if runErr != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, client *existdb.Client, bucket *blob.Bucket, collection string) error {
	ctx, traceID := tracing.Start(ctx)
	log := slog.FromCtx(ctx)
	log.Info("starting manual test", "trace_id", traceID, "collection", collection)

	if err := client.CreateCollection(ctx, collection); err != nil {
		return err
	}
	name, err := existdb.StoreRecords(ctx, client, collection, "", books)
	if err != nil {
		return err
	}
	defer func() {
		if err := client.DeleteDocument(ctx, collection, name); err != nil {
			log.Error("deleting test document", "document", name, "error", err)
		}
	}()

	stored, err := existdb.LoadRecords[Book](ctx, client, collection, name)
	if err != nil {
		return err
	}
	log.Info("document read back", "document", name, "records", len(stored))

	orwell := xmldb.ExecuteQuery[Book](ctx, client, xquery.For[Book](collection, xquery.Equals("author", "Orwell")))
	log.Info("books by Orwell", "books", fmt.Sprint(orwell))

	q := xquery.For[Book](collection, xquery.Where("year", xquery.Gt, "1950"))
	q.OrderBy = "title"
	q.Fields = []string{"title", "year"}
	recent := xmldb.ExecuteQuery[Book](ctx, client, q)
	log.Info("books after 1950", "query", q.String(), "books", fmt.Sprint(recent))

	cheap := xmldb.Execute[Book](ctx, client, xquery.Build(collection, "book", []string{"price < 10"}, "", "price"), collection)
	log.Info("cheap books", "books", fmt.Sprint(cheap))

	key, err := xmlfile.SaveNew(ctx, bucket, "books/", stored)
	if err != nil {
		return err
	}
	mirrored, err := xmlfile.LoadAll[Book](ctx, bucket, "books/", 4)
	if err != nil {
		return err
	}
	log.Info("books mirrored on bucket", "key", key, "records", len(mirrored))
	return nil
}

// createGoogleSubscription creates the topic and its subscription, unless they exist,
// and returns their gocloud.dev URLs.
func createGoogleSubscription(ctx context.Context, projectID, topicName, subscriptionName string) (string, string, error) {
	client, err := gpubsub.NewClient(ctx, projectID, pubsubOptions()...)
	if err != nil {
		return "", "", fmt.Errorf("creating pubsub client: %w", err)
	}
	defer func() {
		_ = client.Close()
	}()

	if _, err := client.CreateTopic(ctx, topicName); err != nil && status.Code(err) != codes.AlreadyExists {
		return "", "", fmt.Errorf("creating topic %q: %w", topicName, err)
	}
	_, err = client.CreateSubscription(ctx, subscriptionName, gpubsub.SubscriptionConfig{
		Topic:            client.Topic(topicName),
		ExpirationPolicy: 24 * time.Hour,
	})
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return "", "", fmt.Errorf("creating subscription %q: %w", subscriptionName, err)
	}

	slog.FromCtx(ctx).Info("google pubsub ready", "project", projectID, "topic", topicName, "subscription", subscriptionName)
	return fmt.Sprintf("gcppubsub://projects/%s/topics/%s", projectID, topicName),
		fmt.Sprintf("gcppubsub://projects/%s/subscriptions/%s", projectID, subscriptionName), nil
}

func pubsubOptions() []option.ClientOption {
	host := os.Getenv("PUBSUB_EMULATOR_HOST")
	if host == "" {
		return nil
	}
	return []option.ClientOption{
		option.WithEndpoint(host),
		option.WithoutAuthentication(),
		option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
	}
}

func getenv(name, def string) string {
	if v := os.Getenv(name); v != "" {
		return v
	}
	return def
}

func panicerr(err error) {
	if err != nil {
		panic(err)
	}
}
