package kvstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go"
)

// payloadHeadroom is reserved in each message for the KV subject and headers.
const payloadHeadroom = 1024

// JetStream stores values in a JetStream key-value bucket. Values must fit in
// a single message, so the server's max payload bounds them.
type JetStream struct {
	kv       nats.KeyValue
	maxValue int64
}

// OpenJetStream binds to bucket, creating it when it does not exist.
// maxPayload is the connection's negotiated limit; zero disables the check.
func OpenJetStream(js nats.JetStreamContext, bucket string, maxPayload int64) (*JetStream, error) {
	kv, err := js.KeyValue(bucket)
	if errors.Is(err, nats.ErrBucketNotFound) {
		kv, err = js.CreateKeyValue(&nats.KeyValueConfig{
			Bucket:      bucket,
			Description: "vocalforge persisted session state",
			History:     1,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("bind kv bucket %q: %w", bucket, err)
	}
	j := &JetStream{kv: kv}
	if maxPayload > payloadHeadroom {
		j.maxValue = maxPayload - payloadHeadroom
	}
	return j, nil
}

// JetStream keys may not contain spaces; everything else used here is valid.
func kvKey(key string) string {
	return strings.ReplaceAll(key, " ", "_")
}

func (j *JetStream) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	entry, err := j.kv.Get(kvKey(key))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(entry.Value()), nil
}

func (j *JetStream) Set(ctx context.Context, key, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if j.maxValue > 0 && int64(len(value)) > j.maxValue {
		return fmt.Errorf("%w: value for %q is %d bytes, bus payload limit %d", ErrQuotaExceeded, key, len(value), j.maxValue)
	}
	_, err := j.kv.Put(kvKey(key), []byte(value))
	if errors.Is(err, nats.ErrMaxPayload) {
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	}
	return err
}

func (j *JetStream) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := j.kv.Delete(kvKey(key))
	if errors.Is(err, nats.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Close is a no-op; the connection belongs to the bus client.
func (j *JetStream) Close() error { return nil }
