package diagnostics

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/amazon-label-extractor/internal/config"
)

type MockRedisClient struct {
	mock.Mock
}

func (m *MockRedisClient) HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	args := m.Called(ctx, key, values)
	cmd := redis.NewIntCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(int64(len(values) / 2))
	}
	return cmd
}

func (m *MockRedisClient) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	args := m.Called(ctx, key, expiration)
	cmd := redis.NewBoolCmd(ctx)
	if err := args.Error(0); err != nil {
		cmd.SetErr(err)
	} else {
		cmd.SetVal(true)
	}
	return cmd
}

func TestNop(t *testing.T) {
	assert.NoError(t, Nop{}.Record(context.Background(), "u", []byte("x")))
}

func TestFileSink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last_amazon_response.html")
	sink := NewFileSink(path)

	require.NoError(t, sink.Record(context.Background(), "u1", []byte("<html>first</html>")))
	require.NoError(t, sink.Record(context.Background(), "u2", []byte("<html>second</html>")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html>second</html>", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files are cleaned up")
}

func TestFileSink_Concurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "last.html")
	sink := NewFileSink(path)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sink.Record(context.Background(), "u", []byte("<html>body</html>")))
		}()
	}
	wg.Wait()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<html>body</html>", string(data))
}

func TestFileSink_MissingDir(t *testing.T) {
	sink := NewFileSink(filepath.Join(t.TempDir(), "missing", "last.html"))
	assert.Error(t, sink.Record(context.Background(), "u", []byte("x")))
}

func TestRedisSink(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	client.On("HSet", ctx, "extractor:last_response", mock.MatchedBy(func(values []interface{}) bool {
		return len(values) == 6 && values[0] == "url" && values[1] == "https://www.amazon.in/dp/X"
	})).Return(nil)
	client.On("Expire", ctx, "extractor:last_response", time.Hour).Return(nil)

	sink := NewRedisSink(client, "extractor:last_response", time.Hour)
	require.NoError(t, sink.Record(ctx, "https://www.amazon.in/dp/X", []byte("<html></html>")))

	client.AssertExpectations(t)
}

func TestRedisSink_Errors(t *testing.T) {
	ctx := context.Background()

	client := new(MockRedisClient)
	client.On("HSet", ctx, "k", mock.Anything).Return(errors.New("connection refused"))
	err := NewRedisSink(client, "k", time.Hour).Record(ctx, "u", nil)
	assert.ErrorContains(t, err, "connection refused")
	client.AssertNotCalled(t, "Expire", mock.Anything, mock.Anything, mock.Anything)

	client = new(MockRedisClient)
	client.On("HSet", ctx, "k", mock.Anything).Return(nil)
	client.On("Expire", ctx, "k", time.Minute).Return(errors.New("readonly"))
	err = NewRedisSink(client, "k", time.Minute).Record(ctx, "u", nil)
	assert.ErrorContains(t, err, "ttl")
}

func TestRedisSink_NoTTL(t *testing.T) {
	ctx := context.Background()
	client := new(MockRedisClient)
	client.On("HSet", ctx, "k", mock.Anything).Return(nil)

	require.NoError(t, NewRedisSink(client, "k", 0).Record(ctx, "u", []byte("x")))
	client.AssertNotCalled(t, "Expire", mock.Anything, mock.Anything, mock.Anything)
}

func TestFromConfig(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	tests := []struct {
		name    string
		sink    string
		want    interface{}
		wantErr bool
	}{
		{"default", "", Nop{}, false},
		{"none", "none", Nop{}, false},
		{"file", "file", &FileSink{}, false},
		{"unknown", "s3", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink, closeFn, err := FromConfig(ctx, config.DiagnosticsConfig{
				Sink:     tt.sink,
				FilePath: filepath.Join(dir, "last.html"),
			}, config.RedisConfig{})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, sink)
			assert.NoError(t, closeFn())
		})
	}
}
