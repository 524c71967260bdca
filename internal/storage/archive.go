package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/OFFIS-RIT/kiwi-live/pkg/graph"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const graphPrefix = "graphs/"

var ErrNotFound = errors.New("graph snapshot not found")

// GraphArchive keeps one JSON graph snapshot per session under
// graphs/<session>.json.
type GraphArchive struct {
	client ObjectAPI
	bucket string
}

func NewGraphArchive(client ObjectAPI, bucket string) *GraphArchive {
	return &GraphArchive{client: client, bucket: bucket}
}

func graphKey(sessionID string) string {
	return graphPrefix + sessionID + ".json"
}

func (a *GraphArchive) Save(ctx context.Context, sessionID string, snap graph.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode graph snapshot: %w", err)
	}
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(graphKey(sessionID)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload graph snapshot: %w", err)
	}
	return nil
}

// Load returns ErrNotFound when no snapshot was archived for sessionID.
func (a *GraphArchive) Load(ctx context.Context, sessionID string) (graph.Snapshot, error) {
	result, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(graphKey(sessionID)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return graph.Snapshot{}, ErrNotFound
		}
		return graph.Snapshot{}, fmt.Errorf("failed to get graph snapshot: %w", err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return graph.Snapshot{}, fmt.Errorf("failed to read graph snapshot: %w", err)
	}
	var snap graph.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return graph.Snapshot{}, fmt.Errorf("failed to decode graph snapshot: %w", err)
	}
	return snap, nil
}

func (a *GraphArchive) Delete(ctx context.Context, sessionID string) error {
	_, err := a.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(graphKey(sessionID)),
	})
	if err != nil {
		return fmt.Errorf("failed to delete graph snapshot: %w", err)
	}
	return nil
}

// List returns the ids of all archived sessions.
func (a *GraphArchive) List(ctx context.Context) ([]string, error) {
	keys, err := listKeysWithPrefix(ctx, a.client, a.bucket, graphPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		id, ok := strings.CutSuffix(strings.TrimPrefix(k, graphPrefix), ".json")
		if ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
