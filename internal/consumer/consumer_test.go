package consumer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/local/docstream/internal/config"
	"github.com/local/docstream/internal/docmodel"
	"github.com/local/docstream/internal/queue"
)

type fakeEvents struct {
	batches [][]queue.Message
	acked   []string
	dead    []string
}

func (f *fakeEvents) Fetch(_ context.Context, _ string) ([]queue.Message, error) {
	if len(f.batches) == 0 {
		return nil, nil
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return batch, nil
}

func (f *fakeEvents) Ack(_ context.Context, msgID string) error {
	f.acked = append(f.acked, msgID)
	return nil
}

func (f *fakeEvents) DeadLetter(_ context.Context, _ []byte, reason string) error {
	f.dead = append(f.dead, reason)
	return nil
}

func (f *fakeEvents) ReportDepths(context.Context) {}

// fakeBlobs serves blobs from an in-memory map keyed container/blob.
type fakeBlobs struct {
	blobs map[string][]byte
}

func (f *fakeBlobs) DownloadBlob(_ context.Context, container, blob, localPath string) error {
	data, ok := f.blobs[container+"/"+blob]
	if !ok {
		return fmt.Errorf("blob %s/%s not found", container, blob)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0o644)
}

type fakeRunner struct {
	got *docmodel.PipelineConfiguration
	err error
}

func (f *fakeRunner) RunJob(_ context.Context, pc *docmodel.PipelineConfiguration) error {
	f.got = pc
	return f.err
}

func testStorage() config.StorageConfig {
	return config.StorageConfig{
		Bucket:                  "test",
		UploadDocumentContainer: "upload-documents",
		UploadJSONContainer:     "upload-json",
		OutputContainer:         "output",
	}
}

func eventPayload(blobURL string) []byte {
	return []byte(fmt.Sprintf(`{
		"topic": "/subscriptions/x/storage",
		"subject": "/blobServices/default/containers/upload-json/blobs/report_config.json",
		"eventType": "Microsoft.Storage.BlobCreated",
		"id": "evt-1",
		"eventTime": "2025-06-01T12:00:00Z",
		"data": {"url": %q},
		"dataVersion": "1.0",
		"metadataVersion": "1"
	}`, blobURL))
}

func configJSON(t *testing.T, pdfPath string) []byte {
	t.Helper()
	pc := docmodel.DefaultPipelineConfiguration(pdfPath)
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, pc.SaveToJSON(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func TestHandleRunsJobFromEvent(t *testing.T) {
	workDir := t.TempDir()
	blobs := &fakeBlobs{blobs: map[string][]byte{
		"upload-json/report_config.json": configJSON(t, "https://acct.blob.example.com/upload-documents/report.pdf"),
		"upload-documents/report.pdf":    []byte("%PDF-1.4"),
	}}
	events := &fakeEvents{}
	runner := &fakeRunner{}
	c := New(events, blobs, runner, testStorage(), workDir, "worker-test")

	msg := queue.Message{ID: "1-0", Payload: eventPayload("https://acct.blob.example.com/upload-json/report_config.json")}
	c.handle(context.Background(), msg)

	assert.Equal(t, []string{"1-0"}, events.acked)
	assert.Empty(t, events.dead)

	require.NotNil(t, runner.got)
	// The blob URL was substituted with the downloaded local copy.
	assert.True(t, filepath.IsAbs(runner.got.PDFPath))
	assert.Equal(t, "report.pdf", filepath.Base(runner.got.PDFPath))
	assert.FileExists(t, runner.got.PDFPath)
	assert.NotEmpty(t, runner.got.OutputDirectory)
	assert.Equal(t, "report", filepath.Base(runner.got.OutputDirectory))
}

func TestHandleRedeliverySharesJobDirectory(t *testing.T) {
	workDir := t.TempDir()
	blobs := &fakeBlobs{blobs: map[string][]byte{
		"upload-json/report_config.json": configJSON(t, "https://acct.blob.example.com/upload-documents/report.pdf"),
		"upload-documents/report.pdf":    []byte("%PDF-1.4"),
	}}
	events := &fakeEvents{}
	runner := &fakeRunner{}
	c := New(events, blobs, runner, testStorage(), workDir, "worker-test")

	payload := eventPayload("https://acct.blob.example.com/upload-json/report_config.json")
	c.handle(context.Background(), queue.Message{ID: "5-0", Payload: payload})
	require.NotNil(t, runner.got)
	firstPDF := runner.got.PDFPath
	firstOut := runner.got.OutputDirectory

	// Redelivering the same document must land in the same directory, or an
	// interrupted run could never find its resume state.
	runner.got = nil
	c.handle(context.Background(), queue.Message{ID: "5-1", Payload: payload})
	require.NotNil(t, runner.got)
	assert.Equal(t, firstPDF, runner.got.PDFPath)
	assert.Equal(t, firstOut, runner.got.OutputDirectory)
	assert.Empty(t, events.dead)
}

func TestHandleLocalPDFPathPassesThrough(t *testing.T) {
	workDir := t.TempDir()
	localPDF := filepath.Join(workDir, "local.pdf")
	require.NoError(t, os.WriteFile(localPDF, []byte("%PDF-1.4"), 0o644))

	blobs := &fakeBlobs{blobs: map[string][]byte{
		"upload-json/local_config.json": configJSON(t, localPDF),
	}}
	events := &fakeEvents{}
	runner := &fakeRunner{}
	c := New(events, blobs, runner, testStorage(), workDir, "worker-test")

	c.handle(context.Background(), queue.Message{ID: "1-1", Payload: eventPayload("https://acct.blob.example.com/upload-json/local_config.json")})

	require.NotNil(t, runner.got)
	assert.Equal(t, localPDF, runner.got.PDFPath)
	assert.Empty(t, events.dead)
}

func TestHandleMalformedEventDeadLetters(t *testing.T) {
	events := &fakeEvents{}
	runner := &fakeRunner{}
	c := New(events, &fakeBlobs{}, runner, testStorage(), t.TempDir(), "worker-test")

	c.handle(context.Background(), queue.Message{ID: "2-0", Payload: []byte("not json")})

	assert.Equal(t, []string{"2-0"}, events.acked, "broken events are still acked")
	require.Len(t, events.dead, 1)
	assert.Nil(t, runner.got)
}

func TestHandleMissingConfigBlobDeadLetters(t *testing.T) {
	events := &fakeEvents{}
	c := New(events, &fakeBlobs{blobs: map[string][]byte{}}, &fakeRunner{}, testStorage(), t.TempDir(), "worker-test")

	c.handle(context.Background(), queue.Message{ID: "3-0", Payload: eventPayload("https://acct.blob.example.com/upload-json/missing_config.json")})

	assert.Equal(t, []string{"3-0"}, events.acked)
	require.Len(t, events.dead, 1)
	assert.Contains(t, events.dead[0], "missing_config.json")
}

func TestHandleRunnerFailureDeadLetters(t *testing.T) {
	workDir := t.TempDir()
	localPDF := filepath.Join(workDir, "local.pdf")
	require.NoError(t, os.WriteFile(localPDF, []byte("%PDF-1.4"), 0o644))

	blobs := &fakeBlobs{blobs: map[string][]byte{
		"upload-json/local_config.json": configJSON(t, localPDF),
	}}
	events := &fakeEvents{}
	runner := &fakeRunner{err: errors.New("page 2 failed")}
	c := New(events, blobs, runner, testStorage(), workDir, "worker-test")

	c.handle(context.Background(), queue.Message{ID: "4-0", Payload: eventPayload("https://acct.blob.example.com/upload-json/local_config.json")})

	assert.Equal(t, []string{"4-0"}, events.acked)
	require.Len(t, events.dead, 1)
	assert.Contains(t, events.dead[0], "page 2 failed")
}

func TestRunStopsOnCancel(t *testing.T) {
	events := &fakeEvents{}
	c := New(events, &fakeBlobs{}, &fakeRunner{}, testStorage(), t.TempDir(), "worker-test")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop on cancel")
	}
}

func TestParseBlobCreatedEvent(t *testing.T) {
	evt, err := ParseBlobCreatedEvent(eventPayload("https://acct.blob.example.com/upload-json/a_config.json"))
	require.NoError(t, err)
	assert.Equal(t, "evt-1", evt.ID)
	assert.Equal(t, "Microsoft.Storage.BlobCreated", evt.EventType)

	name, err := evt.BlobName()
	require.NoError(t, err)
	assert.Equal(t, "a_config.json", name)

	_, err = ParseBlobCreatedEvent([]byte(`{"id":"x","data":{}}`))
	require.Error(t, err)
}
